package catalog

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Provider produces a fresh Snapshot from some schema source.
type Provider interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// Store holds the current Snapshot and swaps it atomically on refresh.
// Readers never block and never observe a partially updated schema: a
// refresh either installs a complete new snapshot or leaves the old
// one in place.
type Store struct {
	cur      atomic.Pointer[Snapshot]
	provider Provider
}

// NewStore creates a Store backed by the given provider. The store
// starts empty; call Refresh to load the first snapshot.
func NewStore(p Provider) *Store {
	s := &Store{provider: p}
	s.cur.Store(NewSnapshot(nil, nil, "empty"))
	return s
}

// Snapshot returns the current snapshot. The returned value is
// immutable and remains valid after later refreshes.
func (s *Store) Snapshot() *Snapshot {
	return s.cur.Load()
}

// Swap installs the given snapshot directly, bypassing the provider.
func (s *Store) Swap(snap *Snapshot) {
	s.cur.Store(snap)
}

// Refresh fetches a new snapshot from the provider and installs it.
// On fetch failure the previous snapshot stays installed.
func (s *Store) Refresh(ctx context.Context) error {
	snap, err := s.provider.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("catalog refresh: %w", err)
	}
	s.Swap(snap)
	return nil
}

// Run refreshes the snapshot on the given interval until ctx is
// cancelled. Refresh errors are reported through onErr if non-nil and
// do not stop the loop.
func (s *Store) Run(ctx context.Context, interval time.Duration, onErr func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}
