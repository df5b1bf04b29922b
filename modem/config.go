package modem

import (
	"io"
	"log/slog"
	"time"
)

// MaxLineLength bounds a single modem line and an outbound chunk.
const MaxLineLength = 4096

// Config holds everything New needs. It is assembled with NewConfigBuilder.
type Config struct {
	dialer      Dialer
	host        string
	port        int
	timeout     time.Duration
	initTimeout time.Duration
	chunkSize   int
	peerIn      io.Reader
	peerOut     io.Writer
	logger      *slog.Logger
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	if c.host == "" || c.port < 1 || c.port > 65535 {
		return ErrNoRemote
	}
	if c.peerIn == nil || c.peerOut == nil {
		return ErrNoPeer
	}
	if c.chunkSize < 1 || c.chunkSize > MaxLineLength {
		return ErrInvalidChunkSize
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.timeout == 0 {
		c.timeout = 10 * time.Second
	}
	if c.initTimeout == 0 {
		c.initTimeout = time.Minute
	}
	if c.chunkSize == 0 {
		c.chunkSize = MaxLineLength
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
}

// ConfigBuilder assembles a Config step by step.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder returns a builder with no settings applied.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

// WithDialer sets how the modem Transport is opened.
func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

// WithRemote sets the TCP endpoint the modem connects to.
func (b *ConfigBuilder) WithRemote(host string, port int) *ConfigBuilder {
	b.config.host = host
	b.config.port = port
	return b
}

// WithTimeout sets the stall window: how long the modem may stay silent
// while a command is outstanding or the connection is not yet open.
func (b *ConfigBuilder) WithTimeout(d time.Duration) *ConfigBuilder {
	b.config.timeout = d
	return b
}

// WithInitTimeout bounds the whole bring-up sequence.
func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.initTimeout = d
	return b
}

// WithChunkSize sets the largest outbound chunk announced by one AT+CIPSEND.
func (b *ConfigBuilder) WithChunkSize(n int) *ConfigBuilder {
	b.config.chunkSize = n
	return b
}

// WithPeer sets the local byte streams: bytes read from r go to the remote
// endpoint, bytes from the remote endpoint are written to w.
func (b *ConfigBuilder) WithPeer(r io.Reader, w io.Writer) *ConfigBuilder {
	b.config.peerIn = r
	b.config.peerOut = w
	return b
}

// WithLogger sets the logger, slog.Default() otherwise.
func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// Build applies defaults and validates the result.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	c.setDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
