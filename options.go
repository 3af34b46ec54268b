package halcache

import (
	"log/slog"
	"time"
)

const (
	// DefaultTTL is how long a response stays fresh when the request sets no TTL
	// and the transport gives no expiration hint
	DefaultTTL = 15 * time.Minute
	// DefaultRetention is how long an expired entry is kept around after its TTL,
	// so a stale payload can still be rendered while it is being re-fetched
	DefaultRetention = time.Hour
)

// Config holds client configuration
type Config struct {
	RootURL   string
	TTL       time.Duration
	Retention time.Duration
	Logger    *slog.Logger
	Types     *TypeRegistry
	Now       func() time.Time
}

// Option is a functional option for configuring the client
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		TTL:       DefaultTTL,
		Retention: DefaultRetention,
		Logger:    slog.Default(),
		Types:     NewTypeRegistry(),
		Now:       time.Now,
	}
}

func newConfig(opts []Option) *Config {
	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	return config
}

// WithRootURL sets the root endpoint used for HAL endpoint discovery
func WithRootURL(url string) Option {
	return func(c *Config) {
		c.RootURL = url
	}
}

// WithDefaultTTL sets the time-to-live for responses that don't carry their own
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.TTL = ttl
	}
}

// WithRetention sets how long expired objects are retained in the store
func WithRetention(retention time.Duration) Option {
	return func(c *Config) {
		c.Retention = retention
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithTypeRegistry sets the registry used to decode typed HAL resources
func WithTypeRegistry(types *TypeRegistry) Option {
	return func(c *Config) {
		if types != nil {
			c.Types = types
		}
	}
}

// WithClock overrides the time source, mostly useful in tests
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.Now = now
		}
	}
}
