package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/erg0nix/kontekst-governor/internal/core"
	"github.com/erg0nix/kontekst-governor/internal/governor"
)

const journalFileName = "journal.jsonl"

// Journal appends directives to sessions/<id>/journal.jsonl under root.
type Journal struct {
	root string
	mu   sync.Mutex
}

func NewJournal(root string) *Journal {
	return &Journal{root: root}
}

func (j *Journal) Record(entry governor.JournalEntry) error {
	if !core.ValidID(string(entry.SessionID)) {
		return fmt.Errorf("invalid session id %q", entry.SessionID)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	dir := filepath.Join(j.root, "sessions", string(entry.SessionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	file, err := os.OpenFile(filepath.Join(dir, journalFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewEncoder(file).Encode(entry)
}

// ReadJournal returns the recorded directives of a session, oldest first.
// Lines that fail to decode are skipped.
func ReadJournal(root string, id core.SessionID) ([]governor.JournalEntry, error) {
	if !core.ValidID(string(id)) {
		return nil, fmt.Errorf("invalid session id %q", id)
	}

	file, err := os.Open(filepath.Join(root, "sessions", string(id), journalFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var entries []governor.JournalEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry governor.JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}
