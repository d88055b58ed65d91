// Package snapshot persists four-part continuity snapshots so a later session can resume work.
//
// Every snapshot is written to a temporary directory, verified, and then published by
// renaming it into place and swapping the session's LATEST pointer. A reader therefore
// sees either the previous complete snapshot or the new complete one, never a mix.
//
// Layout under each location root:
//
//	sessions/<session-id>/snapshots/<snapshot-id>/{context,progress,decisions,next}.md
//	sessions/<session-id>/snapshots/<snapshot-id>/meta.json
//	sessions/<session-id>/LATEST
//	sessions/<session-id>/archive/<snapshot-id>/
package snapshot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erg0nix/kontekst-governor/internal/core"
)

var (
	ErrNotFound   = errors.New("snapshot not found")
	ErrIncomplete = errors.New("snapshot incomplete")
)

// Part names one of the four independently stored sections of a snapshot.
type Part string

const (
	PartContext   Part = "context"
	PartProgress  Part = "progress"
	PartDecisions Part = "decisions"
	PartNext      Part = "next"
)

// Parts lists the sections in their canonical order.
var Parts = []Part{PartContext, PartProgress, PartDecisions, PartNext}

func (p Part) fileName() string {
	return string(p) + ".md"
}

func (p Part) title() string {
	return strings.ToUpper(string(p[:1])) + string(p[1:])
}

// Snapshot is a continuity record. Context holds the task identity, phase and loaded scope;
// Progress the completed steps, current step and blockers; Decisions the key choices with
// rationale and reversibility; Next the immediate actions and an alternate path.
type Snapshot struct {
	ID        core.SnapshotID `json:"id"`
	SessionID core.SessionID  `json:"session_id"`
	Step      int64           `json:"step"`
	Level     core.Level      `json:"level"`
	CreatedAt time.Time       `json:"created_at"`

	Context   string `json:"context"`
	Progress  string `json:"progress"`
	Decisions string `json:"decisions"`
	Next      string `json:"next"`
}

func (s Snapshot) Part(p Part) string {
	switch p {
	case PartContext:
		return s.Context
	case PartProgress:
		return s.Progress
	case PartDecisions:
		return s.Decisions
	case PartNext:
		return s.Next
	default:
		return ""
	}
}

func (s *Snapshot) setPart(p Part, content string) {
	switch p {
	case PartContext:
		s.Context = content
	case PartProgress:
		s.Progress = content
	case PartDecisions:
		s.Decisions = content
	case PartNext:
		s.Next = content
	}
}

// Missing returns the parts that are empty or whitespace only.
func (s Snapshot) Missing() []Part {
	var missing []Part
	for _, p := range Parts {
		if strings.TrimSpace(s.Part(p)) == "" {
			missing = append(missing, p)
		}
	}
	return missing
}

func (s Snapshot) Complete() bool {
	return len(s.Missing()) == 0
}

// Validate returns ErrIncomplete naming the empty parts.
func (s Snapshot) Validate() error {
	missing := s.Missing()
	if len(missing) == 0 {
		return nil
	}

	names := make([]string, 0, len(missing))
	for _, p := range missing {
		names = append(names, string(p))
	}
	return fmt.Errorf("%w: empty parts: %s", ErrIncomplete, strings.Join(names, ", "))
}

// Render formats the snapshot as Markdown. It is the text handed to the caller when
// no location could persist the snapshot.
func Render(s Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Continuity snapshot %s\n\n", s.ID)
	fmt.Fprintf(&b, "- session: %s\n", s.SessionID)
	fmt.Fprintf(&b, "- step: %d\n", s.Step)
	fmt.Fprintf(&b, "- level: %s\n", s.Level)
	if !s.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- created: %s\n", s.CreatedAt.UTC().Format(time.RFC3339))
	}

	for _, p := range Parts {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", p.title(), strings.TrimRight(s.Part(p), "\n"))
	}

	return b.String()
}
