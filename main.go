package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"i4.energy/across/cipbridge/modem"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

// run is the whole program; its result is the process exit status.
func run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("cipbridge", flag.ContinueOnError)
	fs.String("serial-port", "/dev/ttyS1", "Serial port to connect to the modem")
	fs.Int("baud-rate", 115200, "Baud rate for serial communication")
	fs.String("modem-addr", "", "Reach the modem over TCP at host:port instead of the serial port")
	fs.Duration("timeout", 0, "Stall timeout while a modem command is outstanding (default 10s)")
	fs.Duration("init-timeout", 0, "Bound on the modem bring-up (default 1m0s)")
	fs.Int("chunk-size", 4096, "Largest chunk sent with one AT+CIPSEND (1-4096)")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringP("exec", "e", "", "Run a shell command as the local peer")
	fs.StringP("listen", "l", "", "Accept one TCP connection on this address as the local peer")
	fs.Bool("raw", false, "Put a terminal on stdin into raw mode")
	fs.Usage = func() { printUsage(fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "cipbridge: %v\n", err)
		return 1
	}

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(fs), WithArgs(fs.Args()))
	if err == nil {
		err = config.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "cipbridge: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(config.LogLevel)}))

	p, err := openPeer(ctx, config, logger.With("component", "peer"))
	if err != nil {
		logger.Error("Failed to open peer", "error", err)
		return 1
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("Failed to close peer", "error", err)
		}
	}()

	var dialer modem.Dialer = modem.SerialDialer{
		PortName: config.SerialPort,
		BaudRate: config.BaudRate,
	}
	if config.ModemAddr != "" {
		dialer = modem.TCPDialer{Address: config.ModemAddr}
	}

	modemConfig, err := modem.NewConfigBuilder().
		WithDialer(dialer).
		WithRemote(config.Host, config.Port).
		WithTimeout(config.Timeout).
		WithInitTimeout(config.InitTimeout).
		WithChunkSize(config.ChunkSize).
		WithPeer(p, p).
		WithLogger(logger.With("component", "modem")).
		Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		return 1
	}

	logger.Info("Starting bridge", "host", config.Host, "port", config.Port)

	m, err := modem.New(ctx, modemConfig)
	if errors.Is(err, modem.ErrRemoteClosed) {
		logger.Info("Remote closed during bring-up")
		return 0
	}
	if err != nil {
		logger.Error("Failed to bring up modem", "error", err)
		return 1
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Error("Failed to close modem", "error", err)
		}
	}()

	err = m.Loop(ctx)
	if err != nil && !errors.Is(err, modem.ErrRemoteClosed) {
		logger.Error("Bridge failed", "error", err)
	}
	return exitCode(err)
}

// exitCode maps the end of a session to the process status: a graceful end
// is 0, everything else 1.
func exitCode(err error) int {
	if err == nil || errors.Is(err, modem.ErrRemoteClosed) {
		return 0
	}
	return 1
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `cipbridge - TCP through an AT+CIP modem

Usage:
  cipbridge [options] <host> <port>

Options:
`)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Environment:
  SERIAL_PORT BAUD_RATE MODEM_ADDR TIMEOUT INIT_TIMEOUT CHUNK_SIZE
  LOG_LEVEL EXEC LISTEN RAW_TTY REMOTE_HOST REMOTE_PORT

Examples:
  cipbridge 58.211.27.18 22                   stdio over /dev/ttyS1
  cipbridge -l 127.0.0.1:2222 example.com 22  serve one local client
  cipbridge --modem-addr 127.0.0.1:5555 example.com 80
  cipbridge -e 'cat request.bin' example.com 80
`)
}
