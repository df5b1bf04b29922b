package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"
)

var discard = slog.New(slog.DiscardHandler)

func TestExecPeer(t *testing.T) {
	p, err := execPeer(context.Background(), "cat", discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := p.Write([]byte("ping")); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(p, buf); err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if string(buf) != "ping" {
		t.Errorf("expected echo, got %q", buf)
	}

	if err := p.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}

type failingCloser struct{}

func (failingCloser) Close() error { return errors.New("bad file descriptor") }

func TestStopCommand(t *testing.T) {
	t.Run("Stdin close failure is logged", func(t *testing.T) {
		var logs strings.Builder
		logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

		cmd := exec.Command("/bin/sh", "-c", "exit 0")
		if err := cmd.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}

		if err := stopCommand(cmd, failingCloser{}, time.Second, logger); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if !strings.Contains(logs.String(), "closing peer command stdin") ||
			!strings.Contains(logs.String(), "bad file descriptor") {
			t.Errorf("expected stdin close failure to be logged, got %q", logs.String())
		}
	})

	t.Run("Lingering command is killed", func(t *testing.T) {
		cmd := exec.Command("/bin/sh", "-c", "exec sleep 10")
		stdin, err := cmd.StdinPipe()
		if err != nil {
			t.Fatalf("stdin: %v", err)
		}
		if err := cmd.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}

		start := time.Now()
		if err := stopCommand(cmd, stdin, 50*time.Millisecond, discard); err == nil {
			t.Error("expected an error from a killed command")
		}
		if time.Since(start) > 5*time.Second {
			t.Error("command was not killed after the grace period")
		}
	})
}

func TestExecPeerEndOfStream(t *testing.T) {
	p, err := execPeer(context.Background(), "printf hello", discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()

	out, err := io.ReadAll(p)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if string(out) != "hello" {
		t.Errorf("expected hello, got %q", out)
	}
}

func TestListenPeer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Reserve a free port, then hand it to listenPeer.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	type result struct {
		p   *Peer
		err error
	}
	done := make(chan result, 1)
	go func() {
		p, err := listenPeer(ctx, addr, discard)
		done <- result{p, err}
	}()

	var conn net.Conn
	for i := 0; i < 50; i++ {
		if conn, err = net.Dial("tcp", addr); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	r := <-done
	if r.err != nil {
		t.Fatalf("unexpected error: %v", r.err)
	}
	defer r.p.Close()

	conn.Write([]byte("abc"))
	buf := make([]byte, 3)
	if _, err := io.ReadFull(r.p, buf); err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if string(buf) != "abc" {
		t.Errorf("expected abc, got %q", buf)
	}

	// Only one connection is accepted.
	if c, err := net.DialTimeout("tcp", addr, time.Second); err == nil {
		c.Close()
		t.Error("listener should be closed after the first connection")
	}
}

func TestListenPeerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := listenPeer(ctx, "127.0.0.1:0", discard)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

func TestOpenPeerDefaultsToStdio(t *testing.T) {
	p, err := openPeer(context.Background(), &Config{}, discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}
