package modem

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNoRemote is returned when the remote host or port is missing or out
	// of range.
	ErrNoRemote = errors.New("no remote endpoint configured")

	// ErrNoPeer is returned when either direction of the peer stream is nil.
	ErrNoPeer = errors.New("no peer stream configured")

	// ErrInvalidChunkSize is returned when the outbound chunk size is outside
	// 1..MaxLineLength.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has not been successfully initialized.
	//
	// This can occur if the Dialer returned no Transport or if the Modem was
	// not created via New.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrLoopRunning is returned when Loop is called while another Loop is
	// still running.
	ErrLoopRunning = errors.New("loop already running")

	// ErrLineTooLong is returned when a modem response line exceeds the
	// maximum allowed length.
	//
	// This typically indicates malformed input, unexpected binary data,
	// or a protocol framing error.
	ErrLineTooLong = errors.New("response line too long")

	// ErrMalformedFrame is returned when a +CIPRCV notification does not
	// carry a decimal length followed by a comma. The stream cannot be
	// resynchronized after this.
	ErrMalformedFrame = errors.New("malformed receive notification")

	// ErrCommandFailed is the sentinel wrapped by every CommandError.
	ErrCommandFailed = errors.New("modem command failed")

	// ErrStalled is returned when the modem stays silent for a whole timeout
	// window while a command is outstanding or the connection is not open.
	ErrStalled = errors.New("modem stalled")

	// ErrRemoteClosed is returned by New when the modem reports the remote
	// connection closed before bring-up finished. Like every other remote
	// close it is a graceful outcome.
	ErrRemoteClosed = errors.New("remote connection closed")
)

// CommandError reports a command-level failure (+CME ERROR, COMMAND NO
// RESPONSE) together with the command it answered.
type CommandError struct {
	Command  string // last command written, "" if unknown
	Response string // the failure line as received, without CR/LF
}

func (e *CommandError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("%v: %s", ErrCommandFailed, e.Response)
	}
	return fmt.Sprintf("%s: %v: %s", e.Command, ErrCommandFailed, e.Response)
}

func (e *CommandError) Unwrap() error { return ErrCommandFailed }
