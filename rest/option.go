package rest

import (
	"log/slog"
)

// DefaultAppName prefixes alert headers and alert keys.
const DefaultAppName = "blogApp"

type options struct {
	appName string
	logger  *slog.Logger
}

// Option configures the REST server.
type Option func(*options)

// WithAppName sets the application name used in X-<app>-alert headers.
// Default is "blogApp".
func WithAppName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.appName = name
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
