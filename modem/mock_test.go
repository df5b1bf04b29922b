package modem_test

import (
	"fmt"
	"io"
	"sync"

	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/cipbridge/modem"
)

// MockSequenceBuilder scripts a modem conversation on a MockTransport.
// Writes are collected for gomock.InOrder; each one queues the modem's
// answer, which the transport's Read hands out. Reads happen on the modem
// pump goroutine, so they are not ordered against the writes.
type MockSequenceBuilder struct {
	transport *modem.MockTransport
	calls     []any
	replies   chan []byte
	closeOnce sync.Once
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	b := &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
		replies:   make(chan []byte, 16),
	}
	transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		resp, ok := <-b.replies
		if !ok {
			return 0, io.EOF
		}
		return copy(p, resp), nil
	}).AnyTimes()
	return b
}

func (b *MockSequenceBuilder) command(cmd, resp string) *MockSequenceBuilder {
	wire := []byte(cmd + "\r\n")
	b.calls = append(b.calls,
		b.transport.EXPECT().Write(wire).DoAndReturn(func(p []byte) (int, error) {
			if resp != "" {
				b.replies <- []byte(resp)
			}
			return len(p), nil
		}),
	)
	return b
}

func (b *MockSequenceBuilder) EchoOff() *MockSequenceBuilder {
	return b.command("ATE0", "ATE0\r\r\nOK\r\n")
}

func (b *MockSequenceBuilder) CloseStale() *MockSequenceBuilder {
	return b.command("AT+CIPCLOSE", "\r\n+CME ERROR: 3\r\n")
}

func (b *MockSequenceBuilder) Connect(host string, port int) *MockSequenceBuilder {
	return b.command(fmt.Sprintf(`AT+CIPSTART="TCP","%s",%d`, host, port), "\r\nOK\r\n\r\nCONNECT OK\r\n")
}

func (b *MockSequenceBuilder) ConnectFails(host string, port int) *MockSequenceBuilder {
	return b.command(fmt.Sprintf(`AT+CIPSTART="TCP","%s",%d`, host, port), "\r\nCOMMAND NO RESPONSE!\r\n")
}

// Abort expects the best-effort close written when giving up.
func (b *MockSequenceBuilder) Abort() *MockSequenceBuilder {
	return b.command("AT+CIPCLOSE", "")
}

func (b *MockSequenceBuilder) Close() *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Close().DoAndReturn(func() error {
			b.closeOnce.Do(func() { close(b.replies) })
			return nil
		}),
	)
	return b
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}
