package modem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"i4.energy/across/cipbridge/at"
)

// outcome tells the caller of step whether the session goes on.
type outcome int

const (
	outcomeContinue outcome = iota
	// outcomeClosed is the graceful end: the remote side closed.
	outcomeClosed
)

// step reads one modem message and applies it to the session. Command
// failures are returned as *CommandError after busy has been cleared.
func (m *Modem) step(ctx context.Context) (outcome, error) {
	ev, err := m.readEvent(ctx)
	if err != nil {
		return outcomeContinue, err
	}
	return m.apply(ctx, ev)
}

// readEvent decodes the next message. The first byte decides the shape: a
// filler, a send prompt, or a line. Lines that turn out to be a +CIPRCV
// header end at the comma so that payload bytes are never read as text.
func (m *Modem) readEvent(ctx context.Context) (at.Event, error) {
	b, err := m.reader.ReadByte(ctx)
	if err != nil {
		return at.Event{}, err
	}

	switch b {
	case at.Filler:
		return at.Event{Kind: at.KindFiller, Line: []byte{b}}, nil
	case at.Prompt:
		// The prompt is always followed by a single space.
		next, err := m.reader.ReadByte(ctx)
		if err != nil {
			return at.Event{}, err
		}
		return at.Event{Kind: at.KindPrompt, Line: []byte{b, next}}, nil
	}

	var length int
	line, err := m.reader.ReadLine(ctx, []byte{b}, func(line []byte) (bool, error) {
		n, complete, err := at.ParseReceiveHeader(line)
		length = n
		return complete, err
	})
	if errors.Is(err, at.ErrBadReceiveHeader) {
		return at.Event{}, fmt.Errorf("%w: %q", ErrMalformedFrame, line)
	}
	if err != nil {
		return at.Event{}, err
	}
	return at.Event{Kind: at.Classify(line), Line: line, Length: length}, nil
}

func (m *Modem) apply(ctx context.Context, ev at.Event) (outcome, error) {
	m.logger.Debug("modem message", "kind", ev.Kind, "data", head(ev.Line))

	switch ev.Kind {
	case at.KindPrompt:
		p := m.session.take()
		if len(p) == 0 {
			m.logger.Warn("send prompt without pending data")
			return outcomeContinue, nil
		}
		if err := writeFull(m.transport, p); err != nil {
			return outcomeContinue, fmt.Errorf("write modem: %w", err)
		}
		m.bytesOut += len(p)

	case at.KindOK:
		m.session.completed()

	case at.KindConnectOK:
		m.session.connected()
		m.logger.Info("connection open", "host", m.config.host, "port", m.config.port)

	case at.KindReceive:
		if err := m.receive(ctx, ev.Length); err != nil {
			return outcomeContinue, err
		}

	case at.KindTCPClosed:
		m.session.closed()
		m.logger.Info("connection closed by remote")
		return outcomeClosed, nil

	case at.KindFailure:
		m.session.completed()
		return outcomeContinue, &CommandError{
			Command:  m.lastCmd,
			Response: string(bytes.TrimRight(ev.Line, "\r\n")),
		}

	case at.KindFiller, at.KindUnrecognized:
	}
	return outcomeContinue, nil
}

// receive copies a +CIPRCV payload of n bytes to the peer: first whatever
// the reader already holds, then the remainder with a single exact read.
func (m *Modem) receive(ctx context.Context, n int) error {
	present := m.reader.take(n)
	if len(present) > 0 {
		if err := writeFull(m.config.peerOut, present); err != nil {
			return fmt.Errorf("write peer: %w", err)
		}
	}
	if rest := n - len(present); rest > 0 {
		p, err := m.reader.ReadFull(ctx, rest)
		if err != nil {
			return err
		}
		if err := writeFull(m.config.peerOut, p); err != nil {
			return fmt.Errorf("write peer: %w", err)
		}
	}
	m.bytesIn += n
	return nil
}

// drain steps the interpreter until the outstanding command completed.
func (m *Modem) drain(ctx context.Context) (outcome, error) {
	for m.session.Busy() {
		out, err := m.step(ctx)
		if err != nil || out == outcomeClosed {
			return out, err
		}
	}
	return outcomeContinue, nil
}

// command writes cmd, marks the modem busy and drains to idle.
func (m *Modem) command(ctx context.Context, cmd string) (outcome, error) {
	if err := m.writeCommand(cmd); err != nil {
		return outcomeContinue, err
	}
	m.session.commandIssued()
	return m.drain(ctx)
}

func (m *Modem) writeCommand(cmd string) error {
	m.lastCmd = cmd
	m.logger.Debug("modem command", "command", cmd)
	if err := writeFull(m.transport, at.Wire(cmd)); err != nil {
		return fmt.Errorf("write command %q: %w", cmd, err)
	}
	return nil
}

// writeFull retries short writes until p is written or w fails.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// head returns the start of a message for logging, like a short hex dump.
func head(p []byte) string {
	if len(p) > 8 {
		p = p[:8]
	}
	return fmt.Sprintf("%q", p)
}
