package tree

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTreeTableSQL = `
CREATE TABLE IF NOT EXISTS tree_node (
	path  TEXT PRIMARY KEY,
	value JSONB NOT NULL
);
`

const notifyChannel = "tree_changed"

// PGStore is a Store backed by Postgres. Subtrees are flattened into leaf
// rows keyed by path; change fan-out uses LISTEN/NOTIFY so every process
// sharing the database observes every committed write, which makes a plain
// Postgres instance serve as the hosted tree substrate.
type PGStore struct {
	pool *pgxpool.Pool

	mu     sync.Mutex
	subs   map[string]*pgSub
	cancel context.CancelFunc
}

type pgSub struct {
	store *PGStore
	id    string
	path  string
	queue chan json.RawMessage
	done  chan struct{}
	once  sync.Once
}

// NewPGStore connects to Postgres, ensures the tree table exists, and
// starts the notification listener.
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTreeTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s := &PGStore{
		pool:   pool,
		subs:   make(map[string]*pgSub),
		cancel: cancel,
	}
	go s.listen(listenCtx)
	slog.Info("connected to Postgres tree store", "tag", "tree")
	return s, nil
}

// Close stops the listener and releases the connection pool.
func (s *PGStore) Close() {
	if s == nil {
		return
	}
	s.cancel()
	s.pool.Close()
}

// Read reassembles the subtree at path from its leaf rows.
func (s *PGStore) Read(ctx context.Context, path string) (json.RawMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT path, value FROM tree_node WHERE path = $1 OR path LIKE $1 || '/%'`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	node := make(map[string]any)
	found := false
	for rows.Next() {
		var rowPath string
		var raw []byte
		if err := rows.Scan(&rowPath, &raw); err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		found = true
		if rowPath == path {
			return json.Marshal(v)
		}
		rel := strings.TrimPrefix(rowPath, path+"/")
		setNode(node, splitPath(rel), v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return json.Marshal(node)
}

// Update applies all writes in one transaction and notifies listeners.
func (s *PGStore) Update(ctx context.Context, updates map[string]any) error {
	return s.update(ctx, "", 0, updates)
}

// Remove deletes the subtree at path.
func (s *PGStore) Remove(ctx context.Context, path string) error {
	return s.Update(ctx, map[string]any{path: nil})
}

// UpdateIf applies updates only when the integer leaf at revPath still
// holds the expected value, using a row lock as the guard.
func (s *PGStore) UpdateIf(ctx context.Context, revPath string, expected int64, updates map[string]any) error {
	return s.update(ctx, revPath, expected, updates)
}

func (s *PGStore) update(ctx context.Context, revPath string, expected int64, updates map[string]any) error {
	normalized := make(map[string]any, len(updates))
	for path, v := range updates {
		nv, err := normalize(v)
		if err != nil {
			return err
		}
		normalized[path] = nv
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if revPath != "" {
		var current int64
		var raw []byte
		err := tx.QueryRow(ctx, `SELECT value FROM tree_node WHERE path = $1 FOR UPDATE`, revPath).Scan(&raw)
		switch err {
		case nil:
			var v float64
			if json.Unmarshal(raw, &v) == nil {
				current = int64(v)
			}
		case pgx.ErrNoRows:
			// Absent counts as revision 0.
		default:
			return err
		}
		if current != expected {
			return ErrConflict
		}
	}

	for path, v := range normalized {
		if _, err := tx.Exec(ctx,
			`DELETE FROM tree_node WHERE path = $1 OR path LIKE $1 || '/%'`, path); err != nil {
			return err
		}
		if v == nil {
			continue
		}
		leaves := make(map[string]any)
		flatten(path, v, leaves)
		for leafPath, leafValue := range leaves {
			raw, err := json.Marshal(leafValue)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO tree_node (path, value) VALUES ($1, $2)
				 ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value`, leafPath, raw); err != nil {
				return err
			}
		}
	}

	// Notify inside the transaction; Postgres delivers after commit.
	for path := range normalized {
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, path); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Subscribe registers fn for the subtree at path with an immediate initial
// snapshot. Later snapshots arrive whenever any process commits an
// overlapping write.
func (s *PGStore) Subscribe(path string, fn func(json.RawMessage)) (Subscription, error) {
	sub := &pgSub{
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
	s.mu.Unlock()

	snap, err := s.Read(context.Background(), path)
	if err != nil {
		sub.Cancel()
		return nil, err
	}
	sub.deliver(snap)
	return sub, nil
}

func (p *pgSub) Cancel() {
	p.once.Do(func() {
		close(p.done)
		p.store.mu.Lock()
		delete(p.store.subs, p.id)
		p.store.mu.Unlock()
	})
}

// deliver enqueues a snapshot, dropping the oldest queued one when full so
// the subscriber always ends on the latest state.
func (p *pgSub) deliver(snap json.RawMessage) {
	select {
	case p.queue <- snap:
		return
	default:
	}
	select {
	case <-p.queue:
	default:
	}
	select {
	case p.queue <- snap:
	default:
	}
}

// listen holds a dedicated connection on LISTEN and re-reads affected
// subtrees for overlapping subscriptions. The connection is re-acquired on
// failure until the store closes.
func (s *PGStore) listen(ctx context.Context) {
	for ctx.Err() == nil {
		conn, err := s.pool.Acquire(ctx)
		if err != nil {
			time.Sleep(time.Second)
			continue
		}
		if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
			conn.Release()
			time.Sleep(time.Second)
			continue
		}
		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				conn.Release()
				break
			}
			s.dispatch(ctx, notification.Payload)
		}
	}
}

func (s *PGStore) dispatch(ctx context.Context, changedPath string) {
	s.mu.Lock()
	affected := make([]*pgSub, 0, len(s.subs))
	for _, sub := range s.subs {
		if pathsOverlap(changedPath, sub.path) {
			affected = append(affected, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range affected {
		snap, err := s.Read(ctx, sub.path)
		if err != nil {
			slog.Error("reading subtree for dispatch", "tag", "tree", "path", sub.path, "err", err)
			continue
		}
		sub.deliver(snap)
	}
}

// flatten decomposes a normalized value into leaf rows. Non-empty objects
// recurse; scalars, arrays, and empty objects are stored as single leaves.
func flatten(prefix string, v any, out map[string]any) {
	if m, ok := v.(map[string]any); ok && len(m) > 0 {
		for key, child := range m {
			flatten(prefix+"/"+key, child, out)
		}
		return
	}
	out[prefix] = v
}

// setNode writes a value into a nested map at the given segments.
func setNode(node map[string]any, segs []string, v any) {
	for i := 0; i < len(segs)-1; i++ {
		child, ok := node[segs[i]].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[segs[i]] = child
		}
		node = child
	}
	if len(segs) > 0 {
		node[segs[len(segs)-1]] = v
	}
}

var (
	_ Store            = (*PGStore)(nil)
	_ ConditionalStore = (*PGStore)(nil)
)
