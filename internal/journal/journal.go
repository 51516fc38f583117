// Package journal records the rebuild history to an append-only file of
// newline-delimited JSON, one entry per child lifecycle event.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Action describes what happened.
type Action string

const (
	ActionSpawn Action = "spawn" // child started
	ActionReady Action = "ready" // probe finished; see Reason
	ActionKill  Action = "kill"  // child stopped for the next cycle or shutdown
)

// Entry is a single journal record.
type Entry struct {
	Timestamp  time.Time `json:"ts"`
	Action     Action    `json:"action"`
	Cycle      uint64    `json:"cycle"`
	BuildID    string    `json:"build_id,omitempty"`
	PID        int       `json:"pid,omitempty"`
	Signals    int       `json:"signals,omitempty"` // raw change signals behind the trigger
	Reason     string    `json:"reason,omitempty"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Journal writes entries to an append-only file.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Open creates or opens a journal file for appending.
func Open(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return &Journal{file: f, path: path}, nil
}

// Record appends an entry, stamping it with the current time if unset.
func (j *Journal) Record(entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling journal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing journal entry: %w", err)
	}
	return nil
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the journal file.
func (j *Journal) Close() error {
	return j.file.Close()
}
