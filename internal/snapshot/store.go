package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/erg0nix/kontekst-governor/internal/core"
)

const (
	latestFileName = "LATEST"
	metaFileName   = "meta.json"
	tmpPrefix      = ".tmp-"
)

// Location is a named root directory snapshots can be written under.
type Location struct {
	Name string
	Root string
}

// Attempt records the result of writing to one location.
type Attempt struct {
	Location string
	Err      error
}

// Handle identifies a published snapshot.
type Handle struct {
	ID        core.SnapshotID
	SessionID core.SessionID
	Location  string
	Path      string
	Attempts  []Attempt
}

// WriteError reports that no location accepted a snapshot.
type WriteError struct {
	Attempts []Attempt
}

func (e *WriteError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Location, a.Err))
	}
	return "snapshot write failed: " + strings.Join(parts, "; ")
}

func (e *WriteError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

type meta struct {
	ID        core.SnapshotID     `json:"id"`
	SessionID core.SessionID      `json:"session_id"`
	Step      int64               `json:"step"`
	Level     core.Level          `json:"level"`
	CreatedAt time.Time           `json:"created_at"`
	Parts     map[Part]partDigest `json:"parts"`
}

type partDigest struct {
	Size   int    `json:"size"`
	SHA256 string `json:"sha256"`
}

// Store writes snapshots to an ordered list of locations. The first location is the
// primary; the rest are tried in order when it fails.
type Store struct {
	locations []Location
	now       func() time.Time

	// beforePublish runs after the temp directory is verified and before it is renamed.
	beforePublish func(tmpDir string) error
}

func NewStore(locations ...Location) (*Store, error) {
	if len(locations) == 0 {
		return nil, errors.New("snapshot store needs at least one location")
	}

	for i, loc := range locations {
		if strings.TrimSpace(loc.Root) == "" {
			return nil, fmt.Errorf("snapshot location %d has no root", i)
		}
		if loc.Name == "" {
			locations[i].Name = fmt.Sprintf("location-%d", i)
		}
	}

	return &Store{locations: locations, now: time.Now}, nil
}

func (s *Store) Locations() []Location {
	out := make([]Location, len(s.locations))
	copy(out, s.locations)
	return out
}

// WriteSnapshot publishes snap to the first location that accepts it.
func (s *Store) WriteSnapshot(ctx context.Context, snap Snapshot) (Handle, error) {
	var attempts []Attempt

	for i := range s.locations {
		handle, err := s.WriteAt(ctx, i, snap)
		attempts = append(attempts, Attempt{Location: s.locations[i].Name, Err: err})
		if err == nil {
			handle.Attempts = attempts
			return handle, nil
		}
		if errors.Is(err, ErrIncomplete) {
			return Handle{Attempts: attempts}, err
		}
	}

	return Handle{Attempts: attempts}, &WriteError{Attempts: attempts}
}

// WriteAt publishes snap to the location at index i.
func (s *Store) WriteAt(ctx context.Context, i int, snap Snapshot) (Handle, error) {
	if i < 0 || i >= len(s.locations) {
		return Handle{}, fmt.Errorf("snapshot location index %d out of range", i)
	}
	loc := s.locations[i]

	_, span := otel.Tracer("snapshot").Start(ctx, "snapshot.Write")
	defer span.End()
	span.SetAttributes(
		attribute.String("location", loc.Name),
		attribute.String("session_id", string(snap.SessionID)),
		attribute.Int64("step", snap.Step),
	)

	handle, err := s.writeAt(ctx, loc, snap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		slog.Warn("snapshot write failed", "location", loc.Name, "session", snap.SessionID, "error", err)
		return Handle{}, err
	}

	slog.Info("snapshot published", "location", loc.Name, "session", snap.SessionID, "snapshot", handle.ID, "step", snap.Step)
	return handle, nil
}

func (s *Store) writeAt(ctx context.Context, loc Location, snap Snapshot) (Handle, error) {
	if err := snap.Validate(); err != nil {
		return Handle{}, err
	}
	if !core.ValidID(string(snap.SessionID)) {
		return Handle{}, fmt.Errorf("invalid session id %q", snap.SessionID)
	}
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}

	if snap.ID == "" {
		snap.ID = core.NewSnapshotID()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = s.now().UTC()
	}

	sessionDir := sessionPath(loc.Root, snap.SessionID)
	snapshotsDir := filepath.Join(sessionDir, "snapshots")
	if err := ensureDirDurable(snapshotsDir); err != nil {
		return Handle{}, fmt.Errorf("create snapshot directory: %w", err)
	}

	tmpDir, err := os.MkdirTemp(snapshotsDir, tmpPrefix+string(snap.ID)+"-")
	if err != nil {
		return Handle{}, fmt.Errorf("create temp directory: %w", err)
	}
	published := false
	defer func() {
		if !published {
			_ = os.RemoveAll(tmpDir)
		}
	}()

	m := meta{
		ID:        snap.ID,
		SessionID: snap.SessionID,
		Step:      snap.Step,
		Level:     snap.Level,
		CreatedAt: snap.CreatedAt,
		Parts:     make(map[Part]partDigest, len(Parts)),
	}

	for _, p := range Parts {
		content := []byte(snap.Part(p))
		if err := writeFileDurable(filepath.Join(tmpDir, p.fileName()), content); err != nil {
			return Handle{}, fmt.Errorf("write %s: %w", p, err)
		}
		m.Parts[p] = digest(content)
	}

	metaData, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return Handle{}, fmt.Errorf("marshal snapshot meta: %w", err)
	}
	if err := writeFileDurable(filepath.Join(tmpDir, metaFileName), metaData); err != nil {
		return Handle{}, fmt.Errorf("write snapshot meta: %w", err)
	}

	if _, err := readSnapshotDir(tmpDir); err != nil {
		return Handle{}, fmt.Errorf("verify snapshot: %w", err)
	}
	if err := fsyncDir(tmpDir); err != nil {
		return Handle{}, fmt.Errorf("sync temp directory: %w", err)
	}

	if s.beforePublish != nil {
		if err := s.beforePublish(tmpDir); err != nil {
			return Handle{}, err
		}
	}

	finalDir := filepath.Join(snapshotsDir, string(snap.ID))
	if err := os.Rename(tmpDir, finalDir); err != nil {
		return Handle{}, fmt.Errorf("publish snapshot: %w", err)
	}
	if err := fsyncDir(snapshotsDir); err != nil {
		_ = os.RemoveAll(finalDir)
		return Handle{}, fmt.Errorf("sync snapshot directory: %w", err)
	}

	if err := writeFileAtomicDurable(filepath.Join(sessionDir, latestFileName), []byte(snap.ID+"\n")); err != nil {
		_ = os.RemoveAll(finalDir)
		return Handle{}, fmt.Errorf("update latest pointer: %w", err)
	}
	published = true

	return Handle{
		ID:        snap.ID,
		SessionID: snap.SessionID,
		Location:  loc.Name,
		Path:      finalDir,
	}, nil
}

// ReadLatest returns the newest complete snapshot of a session across all locations.
func (s *Store) ReadLatest(sessionID core.SessionID) (Snapshot, error) {
	if !core.ValidID(string(sessionID)) {
		return Snapshot{}, fmt.Errorf("invalid session id %q", sessionID)
	}

	var (
		best  Snapshot
		found bool
	)

	for _, loc := range s.locations {
		snap, err := readLatestAt(loc.Root, sessionID)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				slog.Warn("skipping unreadable snapshot", "location", loc.Name, "session", sessionID, "error", err)
			}
			continue
		}

		if !found || newer(snap, best) {
			best = snap
			found = true
		}
	}

	if !found {
		return Snapshot{}, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	return best, nil
}

// List returns the published snapshot IDs of a session in the primary location, oldest first.
func (s *Store) List(sessionID core.SessionID) ([]core.SnapshotID, error) {
	if !core.ValidID(string(sessionID)) {
		return nil, fmt.Errorf("invalid session id %q", sessionID)
	}

	dir := filepath.Join(sessionPath(s.locations[0].Root, sessionID), "snapshots")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	var ids []core.SnapshotID
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), tmpPrefix) {
			continue
		}
		ids = append(ids, core.SnapshotID(entry.Name()))
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Archive moves every published snapshot of a session into its archive directory
// in all locations and clears the LATEST pointer. It returns the number of snapshots moved.
func (s *Store) Archive(sessionID core.SessionID) (int, error) {
	if !core.ValidID(string(sessionID)) {
		return 0, fmt.Errorf("invalid session id %q", sessionID)
	}

	moved := 0
	for _, loc := range s.locations {
		sessionDir := sessionPath(loc.Root, sessionID)
		snapshotsDir := filepath.Join(sessionDir, "snapshots")

		entries, err := os.ReadDir(snapshotsDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return moved, fmt.Errorf("archive %s: %w", loc.Name, err)
		}

		if err := os.Remove(filepath.Join(sessionDir, latestFileName)); err != nil && !os.IsNotExist(err) {
			return moved, fmt.Errorf("archive %s: clear latest: %w", loc.Name, err)
		}

		archiveDir := filepath.Join(sessionDir, "archive")
		if err := os.MkdirAll(archiveDir, 0o755); err != nil {
			return moved, fmt.Errorf("archive %s: %w", loc.Name, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if strings.HasPrefix(entry.Name(), tmpPrefix) {
				_ = os.RemoveAll(filepath.Join(snapshotsDir, entry.Name()))
				continue
			}
			if err := os.Rename(filepath.Join(snapshotsDir, entry.Name()), filepath.Join(archiveDir, entry.Name())); err != nil {
				return moved, fmt.Errorf("archive %s: %w", loc.Name, err)
			}
			moved++
		}
	}

	return moved, nil
}

func sessionPath(root string, sessionID core.SessionID) string {
	return filepath.Join(root, "sessions", string(sessionID))
}

func newer(a, b Snapshot) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if a.Step != b.Step {
		return a.Step > b.Step
	}
	return a.ID > b.ID
}

func readLatestAt(root string, sessionID core.SessionID) (Snapshot, error) {
	sessionDir := sessionPath(root, sessionID)

	data, err := os.ReadFile(filepath.Join(sessionDir, latestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("read latest pointer: %w", err)
	}

	id := strings.TrimSpace(string(data))
	if !core.ValidID(id) {
		return Snapshot{}, fmt.Errorf("invalid latest pointer %q", id)
	}

	snap, err := readSnapshotDir(filepath.Join(sessionDir, "snapshots", id))
	if err != nil {
		return Snapshot{}, err
	}
	if snap.SessionID != sessionID {
		return Snapshot{}, fmt.Errorf("snapshot %s belongs to session %s", id, snap.SessionID)
	}
	return snap, nil
}

// readSnapshotDir loads and verifies a snapshot directory against its meta digests.
func readSnapshotDir(dir string) (Snapshot, error) {
	metaData, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot meta: %w", err)
	}

	var m meta
	if err := json.Unmarshal(metaData, &m); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot meta: %w", err)
	}

	snap := Snapshot{
		ID:        m.ID,
		SessionID: m.SessionID,
		Step:      m.Step,
		Level:     m.Level,
		CreatedAt: m.CreatedAt,
	}

	for _, p := range Parts {
		content, err := os.ReadFile(filepath.Join(dir, p.fileName()))
		if err != nil {
			return Snapshot{}, fmt.Errorf("read %s: %w", p, err)
		}

		want, ok := m.Parts[p]
		if !ok {
			return Snapshot{}, fmt.Errorf("%w: %s missing from meta", ErrIncomplete, p)
		}
		if got := digest(content); got != want {
			return Snapshot{}, fmt.Errorf("%s does not match its recorded digest", p)
		}

		snap.setPart(p, string(content))
	}

	if err := snap.Validate(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func digest(content []byte) partDigest {
	sum := sha256.Sum256(content)
	return partDigest{Size: len(content), SHA256: hex.EncodeToString(sum[:])}
}
