package mode

import (
	"testing"

	"github.com/erg0nix/kontekst-governor/internal/core"
)

func TestNewController_RejectsNonPositiveChunkSize(t *testing.T) {
	if _, err := NewController(0); err == nil {
		t.Fatal("expected error for zero chunk size")
	}
}

func TestPolicyFor(t *testing.T) {
	c := &Controller{ChunkSize: 200}

	tests := []struct {
		level     core.Level
		verbosity Verbosity
		chunk     ChunkLimit
		snapshot  bool
		deferNC   bool
		failover  bool
		halt      bool
	}{
		{core.LevelGreen, VerbosityNormal, Unbounded(), false, false, false, false},
		{core.LevelYellow, VerbosityNormal, Unbounded(), true, false, false, false},
		{core.LevelOrange, VerbosityTerse, Bounded(200), true, true, false, false},
		{core.LevelRed, VerbosityTerse, Bounded(100), true, true, true, false},
		{core.LevelCritical, VerbosityMinimal, Bounded(0), true, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			p := c.PolicyFor(tt.level)
			if p.Level != tt.level {
				t.Errorf("level = %s, want %s", p.Level, tt.level)
			}
			if p.Verbosity != tt.verbosity {
				t.Errorf("verbosity = %s, want %s", p.Verbosity, tt.verbosity)
			}
			if p.Chunk != tt.chunk {
				t.Errorf("chunk = %s, want %s", p.Chunk, tt.chunk)
			}
			if p.SnapshotRequired != tt.snapshot || p.DeferNonCritical != tt.deferNC ||
				p.AttemptFailover != tt.failover || p.HaltAfterSnapshot != tt.halt {
				t.Errorf("unexpected flags: %+v", p)
			}
		})
	}
}

func TestPolicyFor_RedChunkNeverZero(t *testing.T) {
	c := &Controller{ChunkSize: 1}

	if got := c.PolicyFor(core.LevelRed).Chunk.Lines; got != 1 {
		t.Errorf("expected red chunk of 1 line, got %d", got)
	}
}

func TestChunkLimit_Allows(t *testing.T) {
	if !Unbounded().Allows(1 << 40) {
		t.Error("unbounded limit should allow any size")
	}
	if !Bounded(50).Allows(50) {
		t.Error("bounded(50) should allow 50")
	}
	if Bounded(50).Allows(51) {
		t.Error("bounded(50) should reject 51")
	}
}
