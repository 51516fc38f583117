package probe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func expectReason(t *testing.T, got Reason, err error, want Reason) {
	t.Helper()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got != want {
		t.Errorf("expected reason %q, got %q", want, got)
	}
}

func TestWaitListening(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	reason, err := Wait(context.Background(), Config{Addr: ln.Addr().String(), Interval: 10 * time.Millisecond}, nil, testLogger())
	expectReason(t, reason, err, ReasonListening)
}

func TestWaitListeningLater(t *testing.T) {
	addr := freeAddr(t)

	go func() {
		time.Sleep(100 * time.Millisecond)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		time.Sleep(2 * time.Second)
		ln.Close()
	}()

	start := time.Now()
	reason, err := Wait(context.Background(), Config{Addr: addr, Interval: 20 * time.Millisecond}, nil, testLogger())
	expectReason(t, reason, err, ReasonListening)
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("ready after %v, before anything listened", elapsed)
	}
}

func TestWaitExitedCountsAsReady(t *testing.T) {
	exited := make(chan struct{})
	close(exited)

	reason, err := Wait(context.Background(), Config{Addr: freeAddr(t), Interval: 10 * time.Millisecond}, exited, testLogger())
	expectReason(t, reason, err, ReasonExited)
}

func TestWaitExitWhilePolling(t *testing.T) {
	exited := make(chan struct{})
	time.AfterFunc(50*time.Millisecond, func() { close(exited) })

	reason, err := Wait(context.Background(), Config{Addr: freeAddr(t), Interval: time.Second}, exited, testLogger())
	expectReason(t, reason, err, ReasonExited)
}

func TestWaitTimeout(t *testing.T) {
	reason, err := Wait(context.Background(), Config{
		Addr:     freeAddr(t),
		Interval: 10 * time.Millisecond,
		Timeout:  50 * time.Millisecond,
	}, nil, testLogger())
	expectReason(t, reason, err, ReasonTimeout)
}

func TestWaitCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Wait(ctx, Config{Addr: freeAddr(t), Interval: 10 * time.Millisecond}, nil, testLogger())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestCheckRefused(t *testing.T) {
	if err := Check(context.Background(), freeAddr(t), time.Second); err == nil {
		t.Error("expected an error dialing a closed port")
	}
}
