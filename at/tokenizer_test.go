package at_test

import (
	"errors"
	"testing"

	"i4.energy/across/cipbridge/at"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected at.Kind
	}{
		{name: "Filler byte", input: "\x00", expected: at.KindFiller},
		{name: "Send prompt", input: "> ", expected: at.KindPrompt},
		{name: "OK", input: "OK\r\n", expected: at.KindOK},
		{name: "OK without CR", input: "OK\n", expected: at.KindOK},
		{name: "Connect OK", input: "CONNECT OK\r\n", expected: at.KindConnectOK},
		{name: "Receive notification", input: "+CIPRCV:5,", expected: at.KindReceive},
		{name: "Remote closed", input: "+TCPCLOSED\r\n", expected: at.KindTCPClosed},
		{name: "Remote closed with suffix", input: "+TCPCLOSED:0\r\n", expected: at.KindTCPClosed},
		{name: "CME error with code", input: "+CME ERROR: 3\r\n", expected: at.KindFailure},
		{name: "Command no response", input: "COMMAND NO RESPONSE!\r\n", expected: at.KindFailure},
		{name: "Blank line", input: "\r\n", expected: at.KindUnrecognized},
		{name: "Plain ERROR is chatter", input: "ERROR\r\n", expected: at.KindUnrecognized},
		{name: "Vendor chatter", input: "+CREG: 1\r\n", expected: at.KindUnrecognized},
		{name: "Lowercase ok", input: "ok\r\n", expected: at.KindUnrecognized},
		{name: "Connect fail", input: "CONNECT FAIL\r\n", expected: at.KindUnrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := at.Classify([]byte(tt.input)); got != tt.expected {
				t.Errorf("Classify(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseReceiveHeader(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		n        int
		complete bool
		err      error
	}{
		{name: "Prefix only", input: "+CIPRCV:", n: 0, complete: false},
		{name: "Partial prefix", input: "+CIP", n: 0, complete: false},
		{name: "Digits without comma", input: "+CIPRCV:12", n: 0, complete: false},
		{name: "Complete header", input: "+CIPRCV:5,", n: 5, complete: true},
		{name: "Multi digit length", input: "+CIPRCV:1460,", n: 1460, complete: true},
		{name: "Payload after comma is not examined", input: "+CIPRCV:5,+CME ERROR", n: 5, complete: true},
		{name: "Zero length", input: "+CIPRCV:0,", n: 0, complete: true},
		{name: "Missing length", input: "+CIPRCV:,", err: at.ErrBadReceiveHeader},
		{name: "Line ends before comma", input: "+CIPRCV:5\r", err: at.ErrBadReceiveHeader},
		{name: "Non digit length", input: "+CIPRCV:x", err: at.ErrBadReceiveHeader},
		{name: "Absurd length", input: "+CIPRCV:99999999", err: at.ErrBadReceiveHeader},
		{name: "Other line", input: "OK\r\n", n: 0, complete: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, complete, err := at.ParseReceiveHeader([]byte(tt.input))
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected error %v, got %v", tt.err, err)
			}
			if n != tt.n || complete != tt.complete {
				t.Errorf("ParseReceiveHeader(%q) = (%d, %v), want (%d, %v)", tt.input, n, complete, tt.n, tt.complete)
			}
		})
	}
}

func TestCommands(t *testing.T) {
	if got := at.CmdStart("58.211.27.18", 22); got != `AT+CIPSTART="TCP","58.211.27.18",22` {
		t.Errorf("unexpected start command: %q", got)
	}
	if got := at.CmdSend(1460); got != "AT+CIPSEND=1460" {
		t.Errorf("unexpected send command: %q", got)
	}
	if got := string(at.Wire(at.CmdEchoOff)); got != "ATE0\r\n" {
		t.Errorf("unexpected wire form: %q", got)
	}
}

func TestKindString(t *testing.T) {
	if at.KindReceive.String() != "receive" {
		t.Errorf("unexpected name: %s", at.KindReceive)
	}
	if at.Kind(42).String() != "unknown" {
		t.Errorf("unexpected name for out of range kind: %s", at.Kind(42))
	}
}
