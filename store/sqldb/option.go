package sqldb

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultTablePrefix = ""
	DefaultTimeout     = 10 * time.Second
)

// options holds SQL store configuration.
type options struct {
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		prefix:  DefaultTablePrefix,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a SQL store.
type Option func(*options)

// WithTablePrefix prefixes every table name, e.g. "blog_" gives "blog_mode".
func WithTablePrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithTimeout sets the operation timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
