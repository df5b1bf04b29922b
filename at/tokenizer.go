package at

import (
	"bytes"
	"errors"
)

// Kind identifies the nature of one modem message.
type Kind int

const (
	KindFiller       Kind = iota // NUL byte between messages
	KindPrompt                   // ">" send-ready prompt
	KindOK                       // command completed
	KindConnectOK                // remote TCP connection established
	KindReceive                  // +CIPRCV header, raw payload follows
	KindTCPClosed                // remote closed the connection
	KindFailure                  // +CME ERROR, COMMAND NO RESPONSE
	KindUnrecognized             // vendor chatter, blank lines
)

func (k Kind) String() string {
	switch k {
	case KindFiller:
		return "filler"
	case KindPrompt:
		return "prompt"
	case KindOK:
		return "ok"
	case KindConnectOK:
		return "connect-ok"
	case KindReceive:
		return "receive"
	case KindTCPClosed:
		return "tcp-closed"
	case KindFailure:
		return "failure"
	case KindUnrecognized:
		return "unrecognized"
	default:
		return "unknown"
	}
}

// Event is one decoded modem message. Line holds the raw bytes consumed for
// it; for KindReceive it ends at the comma and Length is the declared
// payload size, which the caller still has to read.
type Event struct {
	Kind   Kind
	Line   []byte
	Length int
}

// ErrBadReceiveHeader is returned by ParseReceiveHeader when the bytes
// between "+CIPRCV:" and the comma are not a decimal length.
var ErrBadReceiveHeader = errors.New("malformed +CIPRCV header")

// Classify identifies a complete modem line. Matching is by prefix, so
// trailing CR/LF and vendor suffixes ("+CME ERROR: 3") are tolerated.
//
// A line starting with UrcReceive is only reported as KindReceive; its length
// must be taken from ParseReceiveHeader.
func Classify(line []byte) Kind {
	switch {
	case len(line) == 1 && line[0] == Filler:
		return KindFiller
	case len(line) > 0 && line[0] == Prompt:
		return KindPrompt
	case bytes.HasPrefix(line, []byte(OK)):
		return KindOK
	case bytes.HasPrefix(line, []byte(ConnectOK)):
		return KindConnectOK
	case bytes.HasPrefix(line, []byte(UrcReceive)):
		return KindReceive
	case bytes.HasPrefix(line, []byte(UrcTCPClosed)):
		return KindTCPClosed
	case bytes.HasPrefix(line, []byte(CmeError)), bytes.HasPrefix(line, []byte(NoResponse)):
		return KindFailure
	default:
		return KindUnrecognized
	}
}

// ParseReceiveHeader inspects a partially read line that begins with
// UrcReceive. It reports complete at the comma that separates the decimal
// length from the payload; bytes after that comma are not examined.
//
// Callers feed the line one byte at a time, so that no payload byte is ever
// read as part of the header.
func ParseReceiveHeader(line []byte) (n int, complete bool, err error) {
	if !bytes.HasPrefix(line, []byte(UrcReceive)) {
		return 0, false, nil
	}
	digits := line[len(UrcReceive):]
	for i, c := range digits {
		switch {
		case c >= '0' && c <= '9':
			n = n*10 + int(c-'0')
			if n > maxReceiveLength {
				return 0, false, ErrBadReceiveHeader
			}
		case c == ',' && i > 0:
			return n, true, nil
		default:
			return 0, false, ErrBadReceiveHeader
		}
	}
	return 0, false, nil
}

// maxReceiveLength bounds the declared payload of a single notification.
const maxReceiveLength = 1 << 16
