package tree

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store with last-write-wins semantics. It
// backs local development and tests; every subscriber sees writes from every
// client sharing the store, mirroring the hosted substrate.
type MemoryStore struct {
	mu   sync.Mutex
	root map[string]any
	subs map[string]*memorySub
}

type memorySub struct {
	store *MemoryStore
	id    string
	path  string
	queue chan json.RawMessage
	done  chan struct{}
	once  sync.Once
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		root: make(map[string]any),
		subs: make(map[string]*memorySub),
	}
}

// Read returns the marshaled subtree at path, or nil if absent.
func (s *MemoryStore) Read(_ context.Context, path string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(path)
}

// Update applies all writes atomically, then notifies overlapping
// subscriptions in order.
func (s *MemoryStore) Update(_ context.Context, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(updates)
}

// Remove deletes the subtree at path.
func (s *MemoryStore) Remove(ctx context.Context, path string) error {
	return s.Update(ctx, map[string]any{path: nil})
}

// UpdateIf applies updates only when the integer leaf at revPath still holds
// the expected value (0 for absent).
func (s *MemoryStore) UpdateIf(_ context.Context, revPath string, expected int64, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current int64
	if v, ok := s.valueLocked(revPath).(float64); ok {
		current = int64(v)
	}
	if current != expected {
		return ErrConflict
	}
	return s.applyLocked(updates)
}

// Subscribe registers fn for the subtree at path. Delivery runs on a
// dedicated goroutine per subscription so store writers never block on
// slow consumers; per-path ordering is preserved.
func (s *MemoryStore) Subscribe(path string, fn func(json.RawMessage)) (Subscription, error) {
	sub := &memorySub{
		store: s,
		id:    uuid.NewString(),
		path:  path,
		queue: make(chan json.RawMessage, 64),
		done:  make(chan struct{}),
	}

	go func() {
		for {
			select {
			case snap := <-sub.queue:
				fn(snap)
			case <-sub.done:
				return
			}
		}
	}()

	s.mu.Lock()
	s.subs[sub.id] = sub
	snap, err := s.snapshotLocked(path)
	s.mu.Unlock()
	if err != nil {
		sub.Cancel()
		return nil, err
	}
	sub.deliver(snap)
	return sub, nil
}

// Cancel stops delivery and removes the subscription from the store.
func (m *memorySub) Cancel() {
	m.once.Do(func() {
		close(m.done)
		m.store.mu.Lock()
		delete(m.store.subs, m.id)
		m.store.mu.Unlock()
	})
}

// deliver enqueues a snapshot. When the queue is full the oldest queued
// snapshot is dropped in its favor, so a slow subscriber always ends on the
// latest state.
func (m *memorySub) deliver(snap json.RawMessage) {
	select {
	case m.queue <- snap:
		return
	default:
	}
	select {
	case <-m.queue:
	default:
	}
	select {
	case m.queue <- snap:
	default:
	}
}

func (s *MemoryStore) applyLocked(updates map[string]any) error {
	normalized := make(map[string]any, len(updates))
	for path, v := range updates {
		nv, err := normalize(v)
		if err != nil {
			return err
		}
		normalized[path] = nv
	}
	for path, v := range normalized {
		s.setLocked(splitPath(path), v)
	}
	for _, sub := range s.subs {
		for path := range normalized {
			if pathsOverlap(path, sub.path) {
				snap, err := s.snapshotLocked(sub.path)
				if err == nil {
					sub.deliver(snap)
				}
				break
			}
		}
	}
	return nil
}

// setLocked writes (or deletes, for nil) the value at the given segments,
// pruning branches left empty by a delete.
func (s *MemoryStore) setLocked(segs []string, value any) {
	if len(segs) == 0 {
		return
	}
	node := s.root
	for i := 0; i < len(segs)-1; i++ {
		child, ok := node[segs[i]].(map[string]any)
		if !ok {
			if value == nil {
				return
			}
			child = make(map[string]any)
			node[segs[i]] = child
		}
		node = child
	}
	leaf := segs[len(segs)-1]
	if value == nil {
		delete(node, leaf)
		s.pruneLocked(segs[:len(segs)-1])
		return
	}
	node[leaf] = value
}

// pruneLocked removes empty map branches bottom-up along the given prefix.
func (s *MemoryStore) pruneLocked(segs []string) {
	for end := len(segs); end > 0; end-- {
		node := s.root
		ok := true
		for i := 0; i < end-1; i++ {
			child, isMap := node[segs[i]].(map[string]any)
			if !isMap {
				ok = false
				break
			}
			node = child
		}
		if !ok {
			continue
		}
		if child, isMap := node[segs[end-1]].(map[string]any); isMap && len(child) == 0 {
			delete(node, segs[end-1])
		}
	}
}

func (s *MemoryStore) valueLocked(path string) any {
	var node any = s.root
	for _, seg := range splitPath(path) {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return node
}

func (s *MemoryStore) snapshotLocked(path string) (json.RawMessage, error) {
	v := s.valueLocked(path)
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Compile-time checks that MemoryStore satisfies both contracts.
var (
	_ Store            = (*MemoryStore)(nil)
	_ ConditionalStore = (*MemoryStore)(nil)
)
