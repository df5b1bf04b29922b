package modem

import (
	"context"
	"fmt"
	"io"
	"time"
)

// inbound is one raw read from the modem transport as delivered by the pump.
type inbound struct {
	data []byte
	err  error
}

// frameReader serves byte, exact-length and line reads on top of the chunks
// produced by the modem pump. Partial results never reach the caller: a read
// either completes or fails, and transport failures are sticky.
type frameReader struct {
	src     <-chan inbound
	buf     []byte
	err     error
	timeout time.Duration
	reads   int // chunks consumed, for diagnostics and tests
}

func newFrameReader(src <-chan inbound, timeout time.Duration) *frameReader {
	return &frameReader{src: src, timeout: timeout}
}

// Buffered returns the number of bytes available without waiting.
func (r *frameReader) Buffered() int { return len(r.buf) }

// accept appends a chunk received by someone else on the pump channel.
func (r *frameReader) accept(in inbound, ok bool) {
	r.reads++
	if !ok {
		in.err = io.EOF
	}
	if len(in.data) > 0 {
		r.buf = append(r.buf, in.data...)
	}
	if in.err != nil && r.err == nil {
		if in.err == io.EOF {
			in.err = io.ErrUnexpectedEOF
		}
		r.err = fmt.Errorf("read modem: %w", in.err)
	}
}

// fill waits for the next chunk, at most one timeout window.
func (r *frameReader) fill(ctx context.Context) error {
	if r.err != nil {
		return r.err
	}
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case in, ok := <-r.src:
		r.accept(in, ok)
		if len(r.buf) == 0 && r.err != nil {
			return r.err
		}
		return nil
	case <-timer.C:
		return ErrStalled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadByte returns the next byte.
func (r *frameReader) ReadByte(ctx context.Context) (byte, error) {
	for len(r.buf) == 0 {
		if err := r.fill(ctx); err != nil {
			return 0, err
		}
	}
	b := r.buf[0]
	r.buf = r.buf[1:]
	return b, nil
}

// ReadFull returns exactly n bytes.
func (r *frameReader) ReadFull(ctx context.Context, n int) ([]byte, error) {
	for len(r.buf) < n {
		if err := r.fill(ctx); err != nil {
			return nil, err
		}
	}
	return r.next(n), nil
}

// ReadLine reads up to and including '\n'. The bytes already consumed by the
// caller are passed as prefix. stop is consulted after every byte and may
// end the line early, which is how a +CIPRCV header is cut at its comma.
func (r *frameReader) ReadLine(ctx context.Context, prefix []byte, stop func([]byte) (bool, error)) ([]byte, error) {
	line := prefix
	for {
		if len(line) > 0 {
			if stop != nil {
				done, err := stop(line)
				if err != nil || done {
					return line, err
				}
			}
			if line[len(line)-1] == '\n' {
				return line, nil
			}
		}
		if len(line) >= MaxLineLength {
			return line, ErrLineTooLong
		}
		b, err := r.ReadByte(ctx)
		if err != nil {
			return line, err
		}
		line = append(line, b)
	}
}

// take returns up to n bytes that are already buffered, without waiting.
func (r *frameReader) take(n int) []byte {
	return r.next(min(n, len(r.buf)))
}

func (r *frameReader) next(n int) []byte {
	p := make([]byte, n)
	copy(p, r.buf)
	r.buf = r.buf[n:]
	return p
}
