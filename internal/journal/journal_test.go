package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestJournalWritesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rebuilds.jsonl")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	ts := time.Date(2026, 2, 19, 10, 30, 0, 0, time.UTC)
	code := 1

	j.Record(Entry{Timestamp: ts, Action: ActionSpawn, Cycle: 1, BuildID: "b1", PID: 100, Signals: 3})
	j.Record(Entry{Timestamp: ts.Add(time.Second), Action: ActionReady, Cycle: 1, Reason: "exited", ExitCode: &code})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var e1 Entry
	json.Unmarshal([]byte(lines[0]), &e1)
	if e1.Action != ActionSpawn || e1.PID != 100 || e1.Signals != 3 {
		t.Errorf("unexpected first entry %+v", e1)
	}
	if e1.ExitCode != nil {
		t.Errorf("spawn entry should carry no exit code, got %d", *e1.ExitCode)
	}

	var e2 Entry
	json.Unmarshal([]byte(lines[1]), &e2)
	if e2.Reason != "exited" || e2.ExitCode == nil || *e2.ExitCode != 1 {
		t.Errorf("unexpected second entry %+v", e2)
	}
}

func TestJournalAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rebuilds.jsonl")

	j1, _ := Open(path)
	j1.Record(Entry{Action: ActionSpawn, Cycle: 1})
	j1.Close()

	j2, _ := Open(path)
	j2.Record(Entry{Action: ActionSpawn, Cycle: 2})
	j2.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
}

func TestJournalDefaultTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rebuilds.jsonl")
	j, _ := Open(path)
	defer j.Close()

	before := time.Now().UTC()
	j.Record(Entry{Action: ActionKill, Cycle: 1})
	after := time.Now().UTC()

	data, _ := os.ReadFile(path)
	var e Entry
	json.Unmarshal(data, &e)

	if e.Timestamp.Before(before) || e.Timestamp.After(after) {
		t.Errorf("timestamp %v not between %v and %v", e.Timestamp, before, after)
	}
}

func TestJournalFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rebuilds.jsonl")
	j, _ := Open(path)
	j.Close()

	info, _ := os.Stat(path)
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected 0600, got %o", perm)
	}
}
