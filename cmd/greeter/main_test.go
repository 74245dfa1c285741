package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/tokuhirom/greeter"
)

// TestRun_BindError tests that run surfaces a BindError when the port is taken.
func TestRun_BindError(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Failed to reserve a port: %v", err)
	}
	defer ln.Close()

	var stdout bytes.Buffer
	cfg := greeter.DefaultConfig()
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	cfg.Stdout = &stdout

	err = run(context.Background(), cfg)
	var bindErr *greeter.BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("Expected *greeter.BindError, got %T: %v", err, err)
	}
	if stdout.Len() != 0 {
		t.Errorf("Expected no startup line, got %q", stdout.String())
	}
}

// TestRun_Cancel tests that run returns nil once its context is cancelled.
func TestRun_Cancel(t *testing.T) {
	var stdout syncBuffer
	cfg := greeter.DefaultConfig()
	cfg.Port = 0
	cfg.Stdout = &stdout

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, cfg) }()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.HasPrefix(stdout.String(), "Server running on http://localhost:") {
		if time.Now().After(deadline) {
			t.Fatalf("Startup line not printed, got %q", stdout.String())
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Expected nil error after cancel, got %v", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("run did not return after cancel")
	}
}
