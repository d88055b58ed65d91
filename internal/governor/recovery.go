package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/erg0nix/kontekst-governor/internal/core"
	"github.com/erg0nix/kontekst-governor/internal/snapshot"
)

// SnapshotWriter is the part of snapshot.Store the Governor depends on.
type SnapshotWriter interface {
	Locations() []snapshot.Location
	WriteAt(ctx context.Context, i int, snap snapshot.Snapshot) (snapshot.Handle, error)
	ReadLatest(sessionID core.SessionID) (snapshot.Snapshot, error)
}

type RecoveryOutcome string

const (
	OutcomePersisted  RecoveryOutcome = "persisted"
	OutcomeDisclosed  RecoveryOutcome = "disclosed"
	OutcomeIncomplete RecoveryOutcome = "incomplete"
)

type recoveryResult struct {
	Outcome    RecoveryOutcome
	Handle     snapshot.Handle
	Disclosure string
	Failures   []string
	Err        error
}

// recoveryStrategy is one step of the ordered snapshot persistence chain.
type recoveryStrategy interface {
	name() string
	apply(ctx context.Context, snap snapshot.Snapshot) (recoveryResult, error)
}

type persistStrategy struct {
	store    SnapshotWriter
	index    int
	location string
}

func (p persistStrategy) name() string {
	return p.location
}

func (p persistStrategy) apply(ctx context.Context, snap snapshot.Snapshot) (recoveryResult, error) {
	handle, err := p.store.WriteAt(ctx, p.index, snap)
	if err != nil {
		return recoveryResult{}, err
	}
	return recoveryResult{Outcome: OutcomePersisted, Handle: handle}, nil
}

// discloseStrategy never fails: it hands the rendered snapshot back to the caller.
type discloseStrategy struct{}

func (discloseStrategy) name() string {
	return "inline disclosure"
}

func (discloseStrategy) apply(_ context.Context, snap snapshot.Snapshot) (recoveryResult, error) {
	return recoveryResult{Outcome: OutcomeDisclosed, Disclosure: snapshot.Render(snap)}, nil
}

// recoveryChain builds primary, fallback(s), then inline disclosure.
func recoveryChain(store SnapshotWriter) []recoveryStrategy {
	locations := store.Locations()
	chain := make([]recoveryStrategy, 0, len(locations)+1)
	for i, loc := range locations {
		chain = append(chain, persistStrategy{store: store, index: i, location: loc.Name})
	}
	return append(chain, discloseStrategy{})
}

// persist runs the chain until a strategy succeeds. Incomplete content stops the chain
// because no location can accept it.
func persist(ctx context.Context, chain []recoveryStrategy, snap snapshot.Snapshot) recoveryResult {
	if err := snap.Validate(); err != nil {
		return recoveryResult{Outcome: OutcomeIncomplete, Err: err}
	}

	var failures []string
	for _, strategy := range chain {
		result, err := strategy.apply(ctx, snap)
		if err != nil {
			if errors.Is(err, snapshot.ErrIncomplete) {
				return recoveryResult{Outcome: OutcomeIncomplete, Err: err, Failures: failures}
			}
			failures = append(failures, fmt.Sprintf("%s: %v", strategy.name(), err))
			continue
		}

		result.Failures = failures
		if result.Outcome == OutcomeDisclosed {
			result.Err = errors.New("snapshot write failed: " + strings.Join(failures, "; "))
			slog.Error("snapshot could not be persisted, disclosing inline", "session", snap.SessionID, "failures", failures)
		}
		return result
	}

	return recoveryResult{Outcome: OutcomeIncomplete, Err: errors.New("empty recovery chain"), Failures: failures}
}
