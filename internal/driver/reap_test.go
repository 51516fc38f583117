package driver

import (
	"context"
	"testing"
	"time"
)

func TestReapMissingPID(t *testing.T) {
	killed, err := Reap(0, "sleep")
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if killed {
		t.Error("expected nothing to be killed for pid 0")
	}
}

func TestReapKillsMatchingChild(t *testing.T) {
	d := NewNative(NativeConfig{Command: "sleep 61.5"})
	start(t, d, context.Background())
	pid := d.Info().PID
	if !Alive(pid) {
		t.Fatalf("pid %d not alive after start", pid)
	}

	killed, err := Reap(pid, "sleep 61.5")
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if !killed {
		t.Error("expected the matching child to be killed")
	}

	waitDone(t, d)
}

func TestReapIgnoresReusedPID(t *testing.T) {
	d := NewNative(NativeConfig{Command: "sleep 62.5"})
	start(t, d, context.Background())
	defer d.Stop(context.Background(), 0)
	pid := d.Info().PID

	killed, err := Reap(pid, "some-other-server --port 8081")
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if killed {
		t.Error("expected a process with another command line to be left alone")
	}

	select {
	case <-d.Done():
		t.Fatal("unrelated process was killed")
	case <-time.After(100 * time.Millisecond):
	}
}
