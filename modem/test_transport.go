package modem

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// TestTransport is a test helper that simulates a blocking modem transport
// using channels. Reads block until data is queued (like a real serial port
// would), and replies can be scripted against the exact bytes the Modem
// writes, so a whole AT conversation can be replayed.
//
// TestTransport is also a Dialer that returns itself.
type TestTransport struct {
	mu       sync.Mutex
	readChan chan []byte
	closed   bool
	written  bytes.Buffer
	replies  map[string][]string
	// unread holds the tail of a queued chunk that did not fit the last Read.
	// Only the reading goroutine touches it.
	unread []byte
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 64),
		replies:  make(map[string][]string),
	}
}

// On queues reply to be sent the next time exactly write is written.
// Replies for the same write are used in the order they were queued.
func (t *TestTransport) On(write, reply string) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies[write] = append(t.replies[write], reply)
	return t
}

func (t *TestTransport) Dial(ctx context.Context) (Transport, error) {
	return t, nil
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	t.written.Write(p)

	key := string(p)
	if queue := t.replies[key]; len(queue) > 0 {
		t.replies[key] = queue[1:]
		t.send(queue[0])
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	if len(t.unread) == 0 {
		data, ok := <-t.readChan
		if !ok {
			return 0, io.EOF
		}
		t.unread = data
	}
	n = copy(p, t.unread)
	t.unread = t.unread[n:]
	return n, nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the modem.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.send(data)
}

func (t *TestTransport) send(data string) {
	if !t.closed && data != "" {
		t.readChan <- []byte(data)
	}
}

// Written returns everything written to the transport so far.
func (t *TestTransport) Written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written.String()
}
