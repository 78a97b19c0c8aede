package bridge

import (
	"log/slog"
	"time"

	"github.com/codetide/agent-bridge/transport"
)

// Config holds bridge configuration.
type Config struct {
	ClientName    string
	ClientVersion string

	// InitializeTimeout bounds the initialize handshake.
	InitializeTimeout time.Duration

	// SessionTimeout bounds session/new.
	SessionTimeout time.Duration

	// PromptTimeout bounds a whole turn. Zero means unbounded: turns can
	// legitimately run for a long time, so callers usually bound them with
	// ctx instead.
	PromptTimeout time.Duration

	Logger    *slog.Logger
	Transport transport.Transport
}

func defaultConfig() Config {
	return Config{
		ClientName:        "agent-bridge",
		ClientVersion:     "1.0.0",
		InitializeTimeout: 30 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
}

// Option is a functional option for configuring a Bridge.
type Option func(*Config)

// WithClientInfo sets the client identity sent during initialize.
func WithClientInfo(name, version string) Option {
	return func(c *Config) {
		c.ClientName = name
		c.ClientVersion = version
	}
}

// WithLogger sets the bridge logger. The default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(c *Config) { c.Logger = log }
}

// WithTransport injects a transport. The default is a StdioTransport wired
// to the bridge's dispatcher; tests inject fakes and feed Dispatch directly.
func WithTransport(tr transport.Transport) Option {
	return func(c *Config) { c.Transport = tr }
}

// WithInitializeTimeout overrides the initialize handshake deadline.
func WithInitializeTimeout(d time.Duration) Option {
	return func(c *Config) { c.InitializeTimeout = d }
}

// WithSessionTimeout overrides the session/new deadline.
func WithSessionTimeout(d time.Duration) Option {
	return func(c *Config) { c.SessionTimeout = d }
}

// WithPromptTimeout bounds each turn; an expired turn fails with a
// transport error through OnError.
func WithPromptTimeout(d time.Duration) Option {
	return func(c *Config) { c.PromptTimeout = d }
}
