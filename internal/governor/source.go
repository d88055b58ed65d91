package governor

import (
	"context"
	"sync"

	"github.com/erg0nix/kontekst-governor/internal/snapshot"
)

// ContinuitySource supplies the executor's current four-part continuity state when the
// Governor needs to write a snapshot.
type ContinuitySource interface {
	Continuity(ctx context.Context) (snapshot.Snapshot, error)
}

type ContinuityFunc func(ctx context.Context) (snapshot.Snapshot, error)

func (f ContinuityFunc) Continuity(ctx context.Context) (snapshot.Snapshot, error) {
	return f(ctx)
}

// LatchedSource holds the most recent continuity state pushed by a remote executor.
type LatchedSource struct {
	mu   sync.Mutex
	snap snapshot.Snapshot
	set  bool
}

func (s *LatchedSource) Update(snap snapshot.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap = snap
	s.set = true
}

func (s *LatchedSource) Continuity(context.Context) (snapshot.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.set {
		return snapshot.Snapshot{}, ErrNoContinuity
	}
	return s.snap, nil
}
