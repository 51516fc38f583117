// Package state persists the identity of the running child so a later
// supervisor can find and kill it if this one dies without cleaning up.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

// ChildRecord is the persisted state of the current child.
type ChildRecord struct {
	PID           int    `json:"pid"`
	SupervisorPID int    `json:"supervisor_pid"`
	Command       string `json:"command"` // for PID reuse detection
	Cycle         uint64 `json:"cycle"`
	BuildID       string `json:"build_id"`
	StartedAt     int64  `json:"started_at"` // Unix timestamp
}

// File reads and writes a ChildRecord at a fixed path.
type File struct {
	path string
	mu   sync.Mutex
}

// New returns a File at path. Nothing is touched on disk.
func New(path string) *File {
	return &File{path: path}
}

// DefaultPath returns the state file location under the user cache dir,
// keyed by the front door address so concurrent supervisors don't collide.
func DefaultPath(addr string) (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locating cache dir: %w", err)
	}
	name := "child-" + sanitize(addr) + ".json"
	return filepath.Join(dir, "sunfish", name), nil
}

func sanitize(s string) string {
	out := []byte(s)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '.':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Load returns the stored record, or nil if there is none.
func (f *File) Load() (*ChildRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var rec ChildRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing state file: %w", err)
	}
	return &rec, nil
}

// Save atomically replaces the stored record.
func (f *File) Save(rec ChildRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}

// Clear removes the stored record.
func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}
