package core

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SessionID string

type SnapshotID string

func NewSessionID() SessionID {
	return SessionID("sess_" + timestamp() + "_" + randomSeed())
}

// NewSnapshotID returns an ID that sorts by creation time within a session.
func NewSnapshotID() SnapshotID {
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return SnapshotID("snap_" + timestamp() + "_" + short)
}

// ParseSessionTimestamp extracts the creation time encoded in a session ID.
func ParseSessionTimestamp(id SessionID) time.Time {
	s := string(id)
	if !strings.HasPrefix(s, "sess_") {
		return time.Time{}
	}

	s = strings.TrimPrefix(s, "sess_")
	parts := strings.SplitN(s, "_", 2)
	if len(parts) == 0 {
		return time.Time{}
	}

	t, err := time.Parse(timestampLayout, parts[0])
	if err != nil {
		return time.Time{}
	}
	return t
}

// ValidID reports whether id is safe to use as a single path element.
func ValidID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}

const timestampLayout = "20060102T150405.000000000"

func timestamp() string {
	return time.Now().UTC().Format(timestampLayout)
}

func randomSeed() string {
	buffer := make([]byte, 6)
	_, _ = rand.Read(buffer)
	return hex.EncodeToString(buffer)
}
