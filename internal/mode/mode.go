// Package mode maps budget levels to output and behavior policies.
package mode

import (
	"fmt"

	"github.com/erg0nix/kontekst-governor/internal/core"
)

type Verbosity string

const (
	VerbosityNormal  Verbosity = "normal"
	VerbosityTerse   Verbosity = "terse"
	VerbosityMinimal Verbosity = "minimal"
)

// ChunkLimit bounds the size of a single output chunk in lines.
// Lines is only meaningful when Bounded is true.
type ChunkLimit struct {
	Bounded bool `json:"bounded"`
	Lines   int  `json:"lines,omitempty"`
}

func Unbounded() ChunkLimit {
	return ChunkLimit{}
}

func Bounded(lines int) ChunkLimit {
	return ChunkLimit{Bounded: true, Lines: lines}
}

// Allows reports whether an output of size lines fits in one chunk.
func (c ChunkLimit) Allows(size int64) bool {
	return !c.Bounded || size <= int64(c.Lines)
}

func (c ChunkLimit) String() string {
	if !c.Bounded {
		return "unbounded"
	}
	return fmt.Sprintf("bounded(%d)", c.Lines)
}

type Policy struct {
	Level             core.Level `json:"level"`
	Verbosity         Verbosity  `json:"verbosity"`
	Chunk             ChunkLimit `json:"chunk"`
	SnapshotRequired  bool       `json:"snapshot_required,omitempty"`
	DeferNonCritical  bool       `json:"defer_non_critical,omitempty"`
	AttemptFailover   bool       `json:"attempt_failover,omitempty"`
	HaltAfterSnapshot bool       `json:"halt_after_snapshot,omitempty"`
}

// Controller derives policies. ChunkSize is the bounded chunk size N used at Orange;
// Red halves it.
type Controller struct {
	ChunkSize int
}

func NewController(chunkSize int) (*Controller, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	return &Controller{ChunkSize: chunkSize}, nil
}

func (c *Controller) PolicyFor(level core.Level) Policy {
	switch level {
	case core.LevelGreen:
		return Policy{Level: level, Verbosity: VerbosityNormal, Chunk: Unbounded()}
	case core.LevelYellow:
		return Policy{Level: level, Verbosity: VerbosityNormal, Chunk: Unbounded(), SnapshotRequired: true}
	case core.LevelOrange:
		return Policy{Level: level, Verbosity: VerbosityTerse, Chunk: Bounded(c.ChunkSize), SnapshotRequired: true, DeferNonCritical: true}
	case core.LevelRed:
		return Policy{Level: level, Verbosity: VerbosityTerse, Chunk: Bounded(max(c.ChunkSize/2, 1)), SnapshotRequired: true, DeferNonCritical: true, AttemptFailover: true}
	default:
		return Policy{Level: core.LevelCritical, Verbosity: VerbosityMinimal, Chunk: Bounded(0), SnapshotRequired: true, HaltAfterSnapshot: true}
	}
}
