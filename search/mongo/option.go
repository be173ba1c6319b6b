package mongo

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultDatabase         = "blog"
	DefaultCollectionPrefix = "search"
	DefaultTimeout          = 10 * time.Second
)

// options holds MongoDB index configuration.
type options struct {
	database string
	prefix   string
	timeout  time.Duration
	logger   *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		database: DefaultDatabase,
		prefix:   DefaultCollectionPrefix,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a MongoDB index.
type Option func(*options)

// WithDatabase sets the database name.
func WithDatabase(name string) Option {
	return func(o *options) {
		if name != "" {
			o.database = name
		}
	}
}

// WithCollectionPrefix sets the prefix of the per-kind collections.
// Documents of kind "post" live in "<prefix>_post".
func WithCollectionPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
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
