package modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"i4.energy/across/cipbridge/at"
)

// Modem drives a modem that exposes one TCP connection through AT+CIP
// commands and presents it to a local peer as a plain byte pipe.
//
// All protocol state lives in a Session owned by the goroutine calling New
// and Loop. Two helper goroutines only move bytes: one reads the modem
// transport continuously, the other reads the peer on request.
type Modem struct {
	// transport provides the physical connection to the modem (serial, TCP, etc.)
	transport Transport
	// config contains the modem configuration settings
	config Config
	logger *slog.Logger

	session Session
	reader  *frameReader
	// lastCmd is the most recent command written, for error reports
	lastCmd string

	// modemIn receives raw reads from the modem pump
	modemIn chan inbound
	// peerReq arms one peer read, peerData delivers its result
	peerReq    chan struct{}
	peerData   chan peerChunk
	peerArmed  bool
	peerPumped bool

	// done is closed by Close and stops both pumps
	done        chan struct{}
	closed      bool
	loopRunning bool

	bytesIn  int
	bytesOut int
}

// peerChunk is the result of one armed peer read.
type peerChunk struct {
	data []byte
	err  error
}

// New creates a new Modem with the given configuration. It opens the
// transport through the configured Dialer and brings the session up:
// echo off, stale connection closed, remote connection opened.
//
// On success the session is idle with the connection open and Loop may be
// called. Returns an error if the transport connection or the bring-up
// fails; ErrRemoteClosed means the remote closed during bring-up.
func New(ctx context.Context, config Config) (*Modem, error) {
	config.setDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	m := &Modem{
		transport: transport,
		config:    config,
		logger:    config.logger,
		modemIn:   make(chan inbound, 16),
		peerReq:   make(chan struct{}, 1),
		peerData:  make(chan peerChunk),
		done:      make(chan struct{}),
	}
	m.reader = newFrameReader(m.modemIn, config.timeout)
	go m.pumpModem()

	initCtx, cancel := context.WithTimeout(ctx, config.initTimeout)
	defer cancel()

	if err := m.init(initCtx); err != nil {
		m.Close()
		return nil, fmt.Errorf("initialize modem: %w", err)
	}

	return m, nil
}

// Session returns a snapshot of the protocol state. It must not be called
// while Loop is running.
func (m *Modem) Session() Session {
	return m.session
}

// Loop is the steady-state event loop. It waits, one timeout window at a
// time, for modem input and, while the session is idle with the connection
// open and nothing pending, for peer input:
//
//  1. Modem input is interpreted first, message by message.
//  2. Peer data is queued and announced with AT+CIPSEND; the bytes follow
//     when the modem prompts for them.
//  3. Peer end-of-stream closes the connection and ends the loop.
//  4. A timeout while a command is outstanding or the connection is not
//     open ends the loop with ErrStalled.
//
// Loop returns nil when the session ended gracefully (peer end-of-stream or
// remote close) and an error otherwise. It must be called at most once at a
// time, after New.
func (m *Modem) Loop(ctx context.Context) error {
	if m.closed {
		return ErrAlreadyClosed
	}
	if m.transport == nil {
		return ErrNotInitialized
	}
	if m.loopRunning {
		return ErrLoopRunning
	}
	m.loopRunning = true
	defer func() {
		m.loopRunning = false
	}()

	if !m.peerPumped {
		m.peerPumped = true
		go m.pumpPeer()
	}

	err := m.loop(ctx)
	m.logger.Info("session finished", "bytes_in", m.bytesIn, "bytes_out", m.bytesOut, "error", err)
	return err
}

func (m *Modem) loop(ctx context.Context) error {
	timer := time.NewTimer(m.config.timeout)
	defer timer.Stop()

	for {
		if done, err := m.serviceModem(ctx); done || err != nil {
			return err
		}

		var peerData <-chan peerChunk
		if m.session.PeerEligible() {
			m.armPeer()
			peerData = m.peerData
		}

		timer.Reset(m.config.timeout)

		select {
		case in, ok := <-m.modemIn:
			m.reader.accept(in, ok)

		case c := <-peerData:
			m.peerArmed = false
			// Modem input that arrived together with the peer data goes first.
			if done, err := m.serviceModem(ctx); done || err != nil {
				return err
			}
			if done, err := m.onPeerData(ctx, c); done || err != nil {
				return err
			}

		case <-timer.C:
			if m.session.Busy() || !m.session.Open() {
				m.abort()
				return fmt.Errorf("%w: no modem response within %s (busy=%v open=%v)",
					ErrStalled, m.config.timeout, m.session.Busy(), m.session.Open())
			}

		case <-ctx.Done():
			m.abort()
			return ctx.Err()
		}
	}
}

// serviceModem interprets every modem message that can be started without
// waiting. It reports done once the remote closed.
func (m *Modem) serviceModem(ctx context.Context) (bool, error) {
	for {
		if m.reader.Buffered() == 0 && m.reader.err == nil {
			select {
			case in, ok := <-m.modemIn:
				m.reader.accept(in, ok)
			default:
				return false, nil
			}
		}
		out, err := m.step(ctx)
		if err != nil {
			return true, err
		}
		if out == outcomeClosed {
			return true, nil
		}
	}
}

// onPeerData handles one peer read: data becomes the pending chunk,
// end-of-stream closes the remote connection.
func (m *Modem) onPeerData(ctx context.Context, c peerChunk) (bool, error) {
	if !m.session.PeerEligible() {
		return true, fmt.Errorf("peer data while session not ready (busy=%v open=%v pending=%d)",
			m.session.Busy(), m.session.Open(), m.session.Pending())
	}

	switch {
	case len(c.data) > 0:
		m.session.queue(c.data)
		if err := m.writeCommand(at.CmdSend(len(c.data))); err != nil {
			return true, err
		}
		return false, nil

	case errors.Is(c.err, io.EOF):
		m.logger.Info("peer closed, closing connection")
		_, err := m.command(ctx, at.CmdClose)
		if err != nil && !errors.Is(err, ErrCommandFailed) {
			return true, err
		}
		return true, nil

	case c.err != nil:
		return true, fmt.Errorf("read peer: %w", c.err)
	}
	return false, nil
}

// abort asks the modem to drop the connection without waiting for an answer.
func (m *Modem) abort() {
	if err := m.writeCommand(at.CmdClose); err != nil {
		m.logger.Warn("close on abort failed", "error", err)
	}
}

func (m *Modem) armPeer() {
	if m.peerArmed {
		return
	}
	m.peerArmed = true
	m.peerReq <- struct{}{}
}

// pumpModem feeds raw transport reads to the frame reader until the
// transport fails or the modem is closed.
func (m *Modem) pumpModem() {
	for {
		buf := make([]byte, MaxLineLength)
		n, err := m.transport.Read(buf)
		if n > 0 {
			select {
			case m.modemIn <- inbound{data: buf[:n]}:
			case <-m.done:
				return
			}
		}
		if err != nil {
			select {
			case m.modemIn <- inbound{err: err}:
			case <-m.done:
			}
			return
		}
	}
}

// pumpPeer performs one peer read per request. A read error that arrives
// together with data is kept for the next request.
func (m *Modem) pumpPeer() {
	buf := make([]byte, m.config.chunkSize)
	var sticky error
	for {
		select {
		case <-m.peerReq:
		case <-m.done:
			return
		}

		c := peerChunk{err: sticky}
		if sticky == nil {
			n, err := m.config.peerIn.Read(buf)
			c.data = buf[:n]
			if n == 0 {
				c.err = err
			} else {
				sticky = err
			}
		}

		select {
		case m.peerData <- c:
		case <-m.done:
			return
		}
	}
}

// Close shuts down the modem and releases all resources.
// It stops both pumps and closes the transport connection. After calling
// Close(), the modem cannot be reused.
func (m *Modem) Close() error {
	if m.closed {
		return ErrAlreadyClosed
	}
	m.closed = true
	close(m.done)

	if m.transport != nil {
		return m.transport.Close()
	}
	return nil
}

// init performs the bring-up sequence. The connection is only considered
// up once CONNECT OK was seen, which may come before or after the OK of
// AT+CIPSTART.
func (m *Modem) init(ctx context.Context) error {
	m.logger.Info("disabling command echo")
	if err := m.expectIdle(ctx, at.CmdEchoOff); err != nil {
		return fmt.Errorf("could not disable echo: %w", err)
	}

	// A failure only means there was nothing to close, and a +TCPCLOSED
	// belongs to the stale connection.
	m.logger.Info("closing stale connection")
	if _, err := m.command(ctx, at.CmdClose); err != nil {
		if !errors.Is(err, ErrCommandFailed) {
			return fmt.Errorf("close stale connection: %w", err)
		}
		m.logger.Debug("no stale connection", "error", err)
	}

	m.logger.Info("opening connection", "host", m.config.host, "port", m.config.port)
	if err := m.expectIdle(ctx, at.CmdStart(m.config.host, m.config.port)); err != nil {
		return fmt.Errorf("connect %s:%d: %w", m.config.host, m.config.port, err)
	}
	for !m.session.Open() {
		out, err := m.step(ctx)
		if err != nil {
			return fmt.Errorf("connect %s:%d: %w", m.config.host, m.config.port, err)
		}
		if out == outcomeClosed {
			return ErrRemoteClosed
		}
	}
	return nil
}

// expectIdle runs cmd and treats a remote close as ErrRemoteClosed.
func (m *Modem) expectIdle(ctx context.Context, cmd string) error {
	out, err := m.command(ctx, cmd)
	if err != nil {
		return err
	}
	if out == outcomeClosed {
		return ErrRemoteClosed
	}
	return nil
}
