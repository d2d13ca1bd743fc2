package tree

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func waitForSnapshot(t *testing.T, ch <-chan json.RawMessage) json.RawMessage {
	t.Helper()
	select {
	case raw := <-ch:
		return raw
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func decode(t *testing.T, raw json.RawMessage) any {
	t.Helper()
	if raw == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	return v
}

func TestMemoryStoreReadWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Update(ctx, map[string]any{
		"games/AB12CD/status": "lobby",
		"games/AB12CD/host":   "player_1",
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	raw, err := s.Read(ctx, "games/AB12CD/status")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := decode(t, raw); got != "lobby" {
		t.Errorf("status = %v, want lobby", got)
	}

	// Reading a branch reassembles the subtree.
	raw, err = s.Read(ctx, "games/AB12CD")
	if err != nil {
		t.Fatalf("Read branch: %v", err)
	}
	m, ok := decode(t, raw).(map[string]any)
	if !ok {
		t.Fatalf("branch read = %T, want object", decode(t, raw))
	}
	if m["status"] != "lobby" || m["host"] != "player_1" {
		t.Errorf("branch = %v", m)
	}

	raw, err = s.Read(ctx, "games/NOPE")
	if err != nil {
		t.Fatalf("Read absent: %v", err)
	}
	if raw != nil {
		t.Errorf("absent path = %s, want nil", raw)
	}
}

func TestMemoryStoreNilDeletes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Update(ctx, map[string]any{
		"games/X/players/a/name": "Alice",
		"games/X/players/b/name": "Bob",
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.Update(ctx, map[string]any{"games/X/players/a": nil}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	raw, _ := s.Read(ctx, "games/X/players/a")
	if raw != nil {
		t.Errorf("deleted subtree still present: %s", raw)
	}
	raw, _ = s.Read(ctx, "games/X/players/b/name")
	if got := decode(t, raw); got != "Bob" {
		t.Errorf("sibling lost: %v", got)
	}

	if err := s.Remove(ctx, "games/X"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	raw, _ = s.Read(ctx, "games/X")
	if raw != nil {
		t.Errorf("removed subtree still present: %s", raw)
	}
}

func TestMemoryStoreSubscribeInitialSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Update(ctx, map[string]any{"games/Y/status": "lobby"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	ch := make(chan json.RawMessage, 16)
	sub, err := s.Subscribe("games/Y", func(raw json.RawMessage) { ch <- raw })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()

	m, _ := decode(t, waitForSnapshot(t, ch)).(map[string]any)
	if m["status"] != "lobby" {
		t.Errorf("initial snapshot = %v", m)
	}
}

func TestMemoryStoreSubscribeSeesOverlappingWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ch := make(chan json.RawMessage, 16)
	sub, err := s.Subscribe("games/Z/players", func(raw json.RawMessage) { ch <- raw })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()

	// Initial snapshot of an absent path is nil.
	if raw := waitForSnapshot(t, ch); raw != nil {
		t.Errorf("initial snapshot = %s, want nil", raw)
	}

	// A write below the subscription path notifies.
	if err := s.Update(ctx, map[string]any{"games/Z/players/a/name": "Alice"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for {
		var raw json.RawMessage
		select {
		case raw = <-ch:
		case <-deadline:
			t.Fatal("never observed the write")
		}
		m, _ := decode(t, raw).(map[string]any)
		if m == nil {
			continue
		}
		if a, _ := m["a"].(map[string]any); a != nil && a["name"] == "Alice" {
			break
		}
	}

	// A write to an unrelated branch does not notify. Drain earlier
	// coalesced deliveries first, then confirm the channel stays quiet.
	time.Sleep(50 * time.Millisecond)
	for {
		select {
		case <-ch:
			continue
		default:
		}
		break
	}
	if err := s.Update(ctx, map[string]any{"games/OTHER/status": "lobby"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	select {
	case raw := <-ch:
		t.Fatalf("unrelated write delivered to subscription: %s", raw)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryStoreSubscribeCancel(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ch := make(chan json.RawMessage, 16)
	sub, err := s.Subscribe("games/C", func(raw json.RawMessage) { ch <- raw })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitForSnapshot(t, ch)

	sub.Cancel()
	sub.Cancel() // idempotent

	if err := s.Update(ctx, map[string]any{"games/C/status": "playing"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	select {
	case raw := <-ch:
		t.Errorf("delivery after cancel: %s", raw)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryStoreSlowSubscriberSeesFinalState(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// Block the subscriber on its initial snapshot while far more updates
	// than the queue holds pile up. Coalescing may drop intermediate
	// snapshots but never the newest one.
	gate := make(chan struct{})
	first := true
	ch := make(chan json.RawMessage, 256)
	sub, err := s.Subscribe("games/S", func(raw json.RawMessage) {
		if first {
			first = false
			<-gate
		}
		ch <- raw
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()

	const writes = 200
	for i := 0; i < writes; i++ {
		if err := s.Update(ctx, map[string]any{"games/S/counter": i}); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	close(gate)

	deadline := time.After(2 * time.Second)
	for {
		var raw json.RawMessage
		select {
		case raw = <-ch:
		case <-deadline:
			t.Fatal("final state never delivered")
		}
		m, _ := decode(t, raw).(map[string]any)
		if m == nil {
			continue
		}
		if counter, _ := m["counter"].(float64); int(counter) == writes-1 {
			return
		}
	}
}

func TestMemoryStoreServerTimestamp(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	before := time.Now().UnixMilli()
	if err := s.Update(ctx, map[string]any{"games/T/createdAt": ServerTimestamp}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	after := time.Now().UnixMilli()

	raw, _ := s.Read(ctx, "games/T/createdAt")
	ms, ok := decode(t, raw).(float64)
	if !ok {
		t.Fatalf("createdAt = %s, want number", raw)
	}
	if int64(ms) < before || int64(ms) > after {
		t.Errorf("createdAt = %d, want within [%d, %d]", int64(ms), before, after)
	}
}

func TestMemoryStoreUpdateIf(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// Absent rev counts as 0.
	if err := s.UpdateIf(ctx, "games/R/rev", 0, map[string]any{
		"games/R/status": "lobby",
		"games/R/rev":    int64(1),
	}); err != nil {
		t.Fatalf("UpdateIf from absent: %v", err)
	}

	// Stale expectation conflicts and applies nothing.
	err := s.UpdateIf(ctx, "games/R/rev", 0, map[string]any{
		"games/R/status": "playing",
		"games/R/rev":    int64(1),
	})
	if err != ErrConflict {
		t.Fatalf("stale UpdateIf err = %v, want ErrConflict", err)
	}
	raw, _ := s.Read(ctx, "games/R/status")
	if got := decode(t, raw); got != "lobby" {
		t.Errorf("status after conflict = %v, want lobby", got)
	}

	// Matching expectation applies.
	if err := s.UpdateIf(ctx, "games/R/rev", 1, map[string]any{
		"games/R/status": "playing",
		"games/R/rev":    int64(2),
	}); err != nil {
		t.Fatalf("UpdateIf: %v", err)
	}
	raw, _ = s.Read(ctx, "games/R/status")
	if got := decode(t, raw); got != "playing" {
		t.Errorf("status = %v, want playing", got)
	}
}
