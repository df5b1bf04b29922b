package at

import (
	"fmt"
	"strconv"
)

const (
	// Terminal Control
	CRLF   = "\r\n"
	Prompt = '>'
	Filler = 0x00

	// Commands
	CmdEchoOff = "ATE0"
	CmdClose   = "AT+CIPCLOSE"

	// Response Codes
	OK         = "OK"
	ConnectOK  = "CONNECT OK"
	CmeError   = "+CME ERROR"
	NoResponse = "COMMAND NO RESPONSE"

	// URCs (Unsolicited Result Codes)
	UrcReceive   = "+CIPRCV:"
	UrcTCPClosed = "+TCPCLOSED"
)

// CmdStart returns the command opening a TCP connection to host:port.
func CmdStart(host string, port int) string {
	return fmt.Sprintf(`AT+CIPSTART="TCP","%s",%d`, host, port)
}

// CmdSend returns the command announcing an outbound chunk of n bytes.
// The modem answers with a Prompt once it is ready for the raw bytes.
func CmdSend(n int) string {
	return "AT+CIPSEND=" + strconv.Itoa(n)
}

// Wire terminates cmd for transmission.
func Wire(cmd string) []byte {
	return []byte(cmd + CRLF)
}
