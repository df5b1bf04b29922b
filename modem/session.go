package modem

// Session tracks the protocol state shared by the interpreter and the loop.
// It is owned by a single goroutine and carries no locks.
type Session struct {
	// busy is set while a command's completion has not been observed.
	busy bool
	// open is set once CONNECT OK was seen and cleared by +TCPCLOSED.
	open bool
	// pending holds the one outbound chunk awaiting the send prompt.
	pending []byte
}

// Busy reports whether a command is outstanding.
func (s Session) Busy() bool { return s.busy }

// Open reports whether the remote TCP connection is established.
func (s Session) Open() bool { return s.open }

// Pending returns the length of the chunk waiting for the send prompt.
func (s Session) Pending() int { return len(s.pending) }

// PeerEligible reports whether the peer may be read: no command in flight,
// the connection open and no chunk pending.
func (s Session) PeerEligible() bool {
	return !s.busy && s.open && len(s.pending) == 0
}

// commandIssued marks the modem busy after a command was written.
func (s *Session) commandIssued() { s.busy = true }

// completed clears busy on OK and on command failures.
func (s *Session) completed() { s.busy = false }

func (s *Session) connected() { s.open = true }

func (s *Session) closed() {
	s.open = false
	s.busy = false
}

// queue stores an outbound chunk. The caller issues AT+CIPSEND right after,
// which keeps pending paired with busy.
func (s *Session) queue(p []byte) {
	s.pending = append([]byte(nil), p...)
	s.busy = true
}

// take hands out the pending chunk on a send prompt and clears it. busy stays
// set until the modem confirms the transfer.
func (s *Session) take() []byte {
	p := s.pending
	s.pending = nil
	return p
}
