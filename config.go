package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
)

// Config holds the application configuration
type Config struct {
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyS1")
	SerialPort string
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int
	// ModemAddr reaches the modem over TCP instead of the serial port (e.g. "127.0.0.1:5555")
	ModemAddr string

	// Host and Port name the remote endpoint the modem connects to
	Host string
	Port int

	// Timeout is the stall window while a command is outstanding
	Timeout time.Duration
	// InitTimeout bounds the whole modem bring-up
	InitTimeout time.Duration
	// ChunkSize is the largest peer read sent with one AT+CIPSEND
	ChunkSize int

	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string

	// Exec runs a shell command as the peer instead of stdio
	Exec string
	// Listen accepts a single TCP connection as the peer instead of stdio
	Listen string
	// Raw puts a terminal on stdin into raw mode
	Raw bool
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.SerialPort = "/dev/ttyS1"
		c.BaudRate = 115200
		c.Timeout = 10 * time.Second
		c.InitTimeout = 60 * time.Second
		c.ChunkSize = 4096
		c.LogLevel = "info"
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if addr := os.Getenv("MODEM_ADDR"); addr != "" {
			c.ModemAddr = addr
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if host := os.Getenv("REMOTE_HOST"); host != "" {
			c.Host = host
		}

		if cmd := os.Getenv("EXEC"); cmd != "" {
			c.Exec = cmd
		}

		if addr := os.Getenv("LISTEN"); addr != "" {
			c.Listen = addr
		}

		for _, v := range []struct {
			env string
			set func(string) error
		}{
			{"BAUD_RATE", intSetter(&c.BaudRate)},
			{"REMOTE_PORT", intSetter(&c.Port)},
			{"CHUNK_SIZE", intSetter(&c.ChunkSize)},
			{"TIMEOUT", durationSetter(&c.Timeout)},
			{"INIT_TIMEOUT", durationSetter(&c.InitTimeout)},
			{"RAW_TTY", boolSetter(&c.Raw)},
		} {
			if s := os.Getenv(v.env); s != "" {
				if err := v.set(s); err != nil {
					return fmt.Errorf("%s: %w", v.env, err)
				}
			}
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags that were set
// explicitly, so that they override defaults and the environment.
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var err error
		fSet.Visit(func(f *flag.Flag) {
			if err != nil {
				return
			}
			v := f.Value.String()
			switch f.Name {
			case "serial-port":
				c.SerialPort = v
			case "baud-rate":
				err = intSetter(&c.BaudRate)(v)
			case "modem-addr":
				c.ModemAddr = v
			case "timeout":
				err = durationSetter(&c.Timeout)(v)
			case "init-timeout":
				err = durationSetter(&c.InitTimeout)(v)
			case "chunk-size":
				err = intSetter(&c.ChunkSize)(v)
			case "log-level":
				c.LogLevel = v
			case "exec":
				c.Exec = v
			case "listen":
				c.Listen = v
			case "raw":
				err = boolSetter(&c.Raw)(v)
			}
			if err != nil {
				err = fmt.Errorf("--%s: %w", f.Name, err)
			}
		})
		return err
	}
}

// WithArgs takes the remote endpoint from the positional arguments
// <host> <port>. Missing arguments leave the environment values in place.
func WithArgs(args []string) ConfigOption {
	return func(c *Config) error {
		switch len(args) {
		case 0:
		case 1:
			c.Host = args[0]
		case 2:
			port, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid port %q", args[1])
			}
			c.Host = args[0]
			c.Port = port
		default:
			return errors.New("too many arguments (expected <host> <port>)")
		}
		return nil
	}
}

// Validate checks for conflicting or missing options.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("remote host required (use --help for usage)")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("remote port %d out of range 1-65535", c.Port)
	}
	if c.ModemAddr == "" && c.SerialPort == "" {
		return errors.New("either --serial-port or --modem-addr is required")
	}
	if c.BaudRate < 1 {
		return fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}
	if c.Timeout <= 0 || c.InitTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.ChunkSize < 1 || c.ChunkSize > 4096 {
		return fmt.Errorf("chunk size %d out of range 1-4096", c.ChunkSize)
	}
	if c.Exec != "" && c.Listen != "" {
		return errors.New("--exec and --listen are mutually exclusive")
	}
	if c.Raw && (c.Exec != "" || c.Listen != "") {
		return errors.New("--raw only applies to the stdio peer")
	}
	return nil
}

func intSetter(dst *int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		*dst = n
		return nil
	}
}

func durationSetter(dst *time.Duration) func(string) error {
	return func(s string) error {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

// boolSetter accepts "1", "true" and "yes" and their negations, in any case.
func boolSetter(dst *bool) func(string) error {
	return func(s string) error {
		switch strings.ToLower(s) {
		case "1", "true", "yes":
			*dst = true
		case "0", "false", "no":
			*dst = false
		default:
			return fmt.Errorf("invalid boolean %q", s)
		}
		return nil
	}
}
