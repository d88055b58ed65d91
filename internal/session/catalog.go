// Package session lists and removes governed sessions found under the snapshot locations.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/erg0nix/kontekst-governor/internal/core"
)

var ErrNotFound = errors.New("session not found")

// Info describes a session as it exists on disk across all locations.
type Info struct {
	ID         core.SessionID
	Snapshots  int
	Archived   int
	Latest     core.SnapshotID
	Locations  []string
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Catalog reads the session directories a snapshot store writes under each root.
type Catalog struct {
	Roots []string
}

func (c *Catalog) sessionsDir(root string) string {
	return filepath.Join(root, "sessions")
}

func (c *Catalog) sessionDir(root string, id core.SessionID) string {
	return filepath.Join(c.sessionsDir(root), string(id))
}

// List returns all sessions sorted by most recently modified first.
func (c *Catalog) List() ([]Info, error) {
	seen := make(map[core.SessionID]bool)

	for _, root := range c.Roots {
		entries, err := os.ReadDir(c.sessionsDir(root))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("list sessions: %w", err)
		}

		for _, entry := range entries {
			if entry.IsDir() && core.ValidID(entry.Name()) {
				seen[core.SessionID(entry.Name())] = true
			}
		}
	}

	var result []Info
	for id := range seen {
		info, err := c.Get(id)
		if err != nil {
			continue
		}
		result = append(result, info)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].ModifiedAt.Equal(result[j].ModifiedAt) {
			return result[i].ModifiedAt.After(result[j].ModifiedAt)
		}
		return result[i].ID > result[j].ID
	})

	return result, nil
}

// Get merges what every root holds for one session.
func (c *Catalog) Get(id core.SessionID) (Info, error) {
	if !core.ValidID(string(id)) {
		return Info{}, fmt.Errorf("invalid session id %q", id)
	}

	info := Info{ID: id, CreatedAt: core.ParseSessionTimestamp(id)}
	var latestAt time.Time

	for _, root := range c.Roots {
		dir := c.sessionDir(root, id)

		stat, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Info{}, fmt.Errorf("stat session: %w", err)
		}

		info.Locations = append(info.Locations, root)
		info.Snapshots += countDirs(filepath.Join(dir, "snapshots"))
		info.Archived += countDirs(filepath.Join(dir, "archive"))

		modified := stat.ModTime()
		if latest, err := os.Stat(filepath.Join(dir, "LATEST")); err == nil {
			modified = latest.ModTime()
			if data, err := os.ReadFile(filepath.Join(dir, "LATEST")); err == nil && !modified.Before(latestAt) {
				info.Latest = core.SnapshotID(strings.TrimSpace(string(data)))
				latestAt = modified
			}
		}
		if modified.After(info.ModifiedAt) {
			info.ModifiedAt = modified
		}
	}

	if len(info.Locations) == 0 {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return info, nil
}

// Delete removes the session's snapshots and archive from every root.
func (c *Catalog) Delete(id core.SessionID) error {
	info, err := c.Get(id)
	if err != nil {
		return err
	}

	for _, root := range info.Locations {
		if err := os.RemoveAll(c.sessionDir(root, id)); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	return nil
}

// countDirs counts published entries, skipping in-flight temp directories.
func countDirs(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			count++
		}
	}
	return count
}
