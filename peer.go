package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/term"
)

// execGrace is how long a peer command may run on after its stdin closed.
const execGrace = 2 * time.Second

// Peer is the local end of the bridge: bytes read from it go to the remote
// endpoint, bytes from the remote endpoint are written to it.
type Peer struct {
	io.Reader
	io.Writer
	close func() error
}

// Close releases whatever the peer holds: a terminal mode, a child process
// or a connection.
func (p *Peer) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}

// openPeer selects the peer source from the configuration. stdio is the
// default.
func openPeer(ctx context.Context, config *Config, logger *slog.Logger) (*Peer, error) {
	switch {
	case config.Exec != "":
		return execPeer(ctx, config.Exec, logger)
	case config.Listen != "":
		return listenPeer(ctx, config.Listen, logger)
	default:
		return stdioPeer(config.Raw, logger)
	}
}

// stdioPeer bridges stdin and stdout. With raw set and a terminal on stdin,
// the terminal is switched to raw mode until Close.
func stdioPeer(raw bool, logger *slog.Logger) (*Peer, error) {
	p := &Peer{Reader: os.Stdin, Writer: os.Stdout}

	fd := int(os.Stdin.Fd())
	if !raw || !term.IsTerminal(fd) {
		return p, nil
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("raw terminal: %w", err)
	}
	logger.Debug("terminal in raw mode")
	p.close = func() error {
		return term.Restore(fd, state)
	}
	return p, nil
}

// execPeer runs command through the shell. Its stdout feeds the remote
// endpoint and remote data is written to its stdin.
func execPeer(ctx context.Context, command string, logger *slog.Logger) (*Peer, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd.exe", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", command)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("exec %q: %w", command, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("exec %q: %w", command, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("exec %q: %w", command, err)
	}
	logger.Info("peer command started", "command", command, "pid", cmd.Process.Pid)

	return &Peer{
		Reader: stdout,
		Writer: stdin,
		close: func() error {
			return stopCommand(cmd, stdin, execGrace, logger)
		},
	}, nil
}

// stopCommand closes the command's stdin and waits for it to exit, killing
// it once grace has passed.
func stopCommand(cmd *exec.Cmd, stdin io.Closer, grace time.Duration, logger *slog.Logger) error {
	if err := stdin.Close(); err != nil {
		logger.Debug("closing peer command stdin", "error", err)
	}

	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()

	select {
	case err := <-waited:
		return err
	case <-time.After(grace):
		logger.Warn("peer command still running, killing it", "command", cmd.String())
		if err := cmd.Process.Kill(); err != nil {
			logger.Debug("killing peer command", "error", err)
		}
		return <-waited
	}
}

// listenPeer accepts exactly one TCP connection on addr and uses it as the
// peer. The listener is closed once the connection is accepted.
func listenPeer(ctx context.Context, addr string, logger *slog.Logger) (*Peer, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	logger.Info("waiting for peer connection", "address", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	conn, err := ln.Accept()
	stop()
	ln.Close()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("accept %s: %w", addr, err)
	}
	logger.Info("peer connected", "remote", conn.RemoteAddr().String())

	return &Peer{Reader: conn, Writer: conn, close: conn.Close}, nil
}
