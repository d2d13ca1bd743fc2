// Package tree provides the shared mutable document substrate: a remote
// key-value tree with per-path reads and writes and subscription to change
// events. Game logic depends only on the Store contract, not on a concrete
// transport.
package tree

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrConflict is returned by UpdateIf when the revision guard does not match.
var ErrConflict = errors.New("conditional update conflict")

// serverTimestamp is the type of the ServerTimestamp sentinel.
type serverTimestamp struct{}

// ServerTimestamp is a sentinel value replaced with the store's current time
// (unix milliseconds) when an update is applied.
var ServerTimestamp = serverTimestamp{}

// Subscription is a handle for an active change-event subscription.
type Subscription interface {
	// Cancel stops delivery. Safe to call more than once.
	Cancel()
}

// Store is the synchronization contract every higher component consumes.
//
// Values written through Update may be any JSON-marshalable Go value; a nil
// value deletes the subtree at that path. Snapshots are delivered and read
// back as raw JSON; a nil snapshot means the path is absent. Updates apply
// all paths atomically and conflicting concurrent updates resolve as last
// write wins.
type Store interface {
	// Read returns the current value at path without subscribing.
	Read(ctx context.Context, path string) (json.RawMessage, error)

	// Update atomically applies every path->value write as one transaction.
	Update(ctx context.Context, updates map[string]any) error

	// Remove deletes the subtree at path.
	Remove(ctx context.Context, path string) error

	// Subscribe invokes fn once with the present value at path, then again
	// after every mutation anywhere under (or above) path, in order, until
	// cancelled. Rapid successive updates may be coalesced.
	Subscribe(path string, fn func(json.RawMessage)) (Subscription, error)
}

// ConditionalStore is an optional Store extension providing a
// compare-and-swap against a revision counter leaf. Engines use it when
// available to close the cross-client resolution race; the plain Update
// path remains correct (idempotent transitions) without it.
type ConditionalStore interface {
	Store

	// UpdateIf applies updates only if the integer at revPath still equals
	// expected (0 means absent). Returns ErrConflict otherwise.
	UpdateIf(ctx context.Context, revPath string, expected int64, updates map[string]any) error
}

// splitPath splits a slash-separated path into non-empty segments.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

// pathsOverlap reports whether a change at one path is visible from a
// subscription at the other (either is a prefix of the other).
func pathsOverlap(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

// normalize converts v into the store's generic JSON representation,
// resolving ServerTimestamp sentinels. A nil result means deletion.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if _, ok := v.(serverTimestamp); ok {
		return float64(time.Now().UnixMilli()), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
