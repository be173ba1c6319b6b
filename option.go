package blog

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/blog/retry"
	"github.com/rbaliyan/blog/search"
	"github.com/rbaliyan/blog/store"
	"github.com/rbaliyan/event/v3/transport"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Default configuration values.
const (
	DefaultShutdownTimeout = 30 * time.Second // default graceful shutdown timeout
	MinShutdownTimeout     = 1 * time.Second  // minimum shutdown timeout

	// Field limits
	DefaultMaxFieldLength = 255         // names, handles, titles
	DefaultMaxContentSize = 1024 * 1024 // 1 MB post content
	MinModeNameLength     = 3
	MinModeHandleLength   = 2

	// Index synchronization
	DefaultMaxConcurrentIndexWrites = 10               // in-flight index syncs per service
	DefaultIndexTimeout             = 30 * time.Second // per sync, including retries
	DefaultMaxIndexAttempts         = 10               // drain skips tasks failed this often
	DefaultDrainBatchSize           = 100              // tasks per DrainIndexOutbox call
	DefaultReindexBatchSize         = 200              // rows per page when rebuilding

	// Search
	DefaultSearchBatchSize = 100 // hits per page when streaming mode search results
)

// IndexFailureFunc is called when an entity could not be synced to the index.
type IndexFailureFunc func(err *IndexSyncError)

// EventPublishFailureFunc is called when an event fails to publish.
// The eventName is the name of the event (e.g., "EntityCreated"), and err is the publish error.
type EventPublishFailureFunc func(eventName string, err error)

// options holds service configuration.
type options struct {
	store  store.Store
	index  search.Index
	logger *slog.Logger

	plugins []Plugin

	// Field limits
	maxFieldLength int
	maxContentSize int

	// Index synchronization
	syncIndexing             bool
	maxConcurrentIndexWrites int
	indexTimeout             time.Duration
	indexRetry               retry.Config
	maxIndexAttempts         int
	drainBatchSize           int
	reindexBatchSize         int
	searchBatchSize          int
	onIndexFailure           IndexFailureFunc

	// Shutdown
	shutdownTimeout time.Duration

	// OpenTelemetry
	tracingEnabled bool
	metricsEnabled bool
	serviceName    string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// Event handling
	eventErrorsFatal      bool
	eventTransport        transport.Transport
	redisClient           redis.UniversalClient
	onEventPublishFailure EventPublishFailureFunc
}

// safeEventPublishFailure calls the event failure callback with panic recovery.
// If the callback panics, the panic is logged and suppressed to prevent cascading failures.
func (o *options) safeEventPublishFailure(eventName string, err error) {
	if o.onEventPublishFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in event publish failure handler",
				"event", eventName,
				"original_error", err,
				"panic", r,
			)
		}
	}()
	o.onEventPublishFailure(eventName, err)
}

// safeIndexFailure calls the index failure callback with panic recovery.
func (o *options) safeIndexFailure(err *IndexSyncError) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in index failure handler",
				"kind", err.Kind,
				"id", err.ID,
				"original_error", err.Err,
				"panic", r,
			)
		}
	}()
	o.onIndexFailure(err)
}

// newOptions creates options with defaults and applies provided options.
func newOptions(opts ...Option) *options {
	retryCfg := retry.DefaultConfig()
	retryCfg.IsRetryable = IsRetryableError

	o := &options{
		logger:                   slog.Default(),
		maxFieldLength:           DefaultMaxFieldLength,
		maxContentSize:           DefaultMaxContentSize,
		maxConcurrentIndexWrites: DefaultMaxConcurrentIndexWrites,
		indexTimeout:             DefaultIndexTimeout,
		indexRetry:               retryCfg,
		maxIndexAttempts:         DefaultMaxIndexAttempts,
		drainBatchSize:           DefaultDrainBatchSize,
		reindexBatchSize:         DefaultReindexBatchSize,
		searchBatchSize:          DefaultSearchBatchSize,
		shutdownTimeout:          DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	// Ensure failure callbacks are always set
	if o.onEventPublishFailure == nil {
		o.onEventPublishFailure = func(eventName string, err error) {
			o.logger.Error("failed to publish event", "event", eventName, "error", err)
		}
	}
	if o.onIndexFailure == nil {
		o.onIndexFailure = func(err *IndexSyncError) {
			o.logger.Error("index sync failed, entity left pending in outbox",
				"kind", err.Kind, "id", err.ID, "error", err.Err)
		}
	}

	return o
}

// Option configures the blog service.
type Option func(*options)

// --- Core Options ---

// WithStore sets the primary store (required).
func WithStore(s store.Store) Option {
	return func(o *options) {
		if s != nil {
			o.store = s
		}
	}
}

// WithIndex sets the search index (required).
func WithIndex(x search.Index) Option {
	return func(o *options) {
		if x != nil {
			o.index = x
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

// WithPlugin registers a plugin with the service.
// Multiple plugins can be registered by calling this option multiple times.
func WithPlugin(p Plugin) Option {
	return func(o *options) {
		if p != nil {
			o.plugins = append(o.plugins, p)
		}
	}
}

// WithPlugins registers multiple plugins at once.
func WithPlugins(plugins ...Plugin) Option {
	return func(o *options) {
		for _, p := range plugins {
			if p != nil {
				o.plugins = append(o.plugins, p)
			}
		}
	}
}

// --- Field Limit Options ---

// WithMaxFieldLength sets the maximum length of names, handles and titles.
// Default is 255.
func WithMaxFieldLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFieldLength = n
		}
	}
}

// WithMaxContentSize sets the maximum post content size in bytes.
// Default is 1 MB.
func WithMaxContentSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxContentSize = n
		}
	}
}

// --- Index Options ---

// WithSyncIndexing makes mutations wait for the index sync before returning.
// Sync failures are still reported through the failure handler and never
// fail the mutation. Default is false (background sync).
func WithSyncIndexing(enabled bool) Option {
	return func(o *options) {
		o.syncIndexing = enabled
	}
}

// WithMaxConcurrentIndexWrites bounds the number of in-flight index syncs.
// Default is 10.
func WithMaxConcurrentIndexWrites(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrentIndexWrites = n
		}
	}
}

// WithIndexTimeout bounds one index sync including its retries.
// Default is 30 seconds.
func WithIndexTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.indexTimeout = d
		}
	}
}

// WithIndexRetry sets the backoff used for index syncs.
// A nil IsRetryable defaults to IsRetryableError.
func WithIndexRetry(cfg retry.Config) Option {
	return func(o *options) {
		if cfg.IsRetryable == nil {
			cfg.IsRetryable = IsRetryableError
		}
		o.indexRetry = cfg
	}
}

// WithMaxIndexAttempts sets how many failed attempts DrainIndexOutbox tolerates
// before it skips a task. Default is 10.
func WithMaxIndexAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxIndexAttempts = n
		}
	}
}

// WithDrainBatchSize sets the number of tasks DrainIndexOutbox handles per call.
// Default is 100.
func WithDrainBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.drainBatchSize = n
		}
	}
}

// WithReindexBatchSize sets the page size used by Reindex.
// Default is 200.
func WithReindexBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.reindexBatchSize = n
		}
	}
}

// WithSearchBatchSize sets the page size used when streaming mode search results.
// Default is 100.
func WithSearchBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.searchBatchSize = n
		}
	}
}

// WithIndexFailureHandler sets a callback for index sync failures.
// By default, failures are logged using the configured logger.
func WithIndexFailureHandler(fn IndexFailureFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.onIndexFailure = fn
		}
	}
}

// WithShutdownTimeout sets the maximum time Close waits for in-flight index
// syncs. Default is 30 seconds. Minimum is 1 second.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= MinShutdownTimeout {
			o.shutdownTimeout = d
		}
	}
}

// --- OTel Options ---

// WithTracing enables or disables OpenTelemetry tracing.
// Default is disabled.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables or disables OpenTelemetry metrics.
// Default is disabled.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithOTel enables both OpenTelemetry tracing and metrics.
func WithOTel(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
		o.metricsEnabled = enabled
	}
}

// WithServiceName sets the service name used for telemetry and the event bus.
// Default is "blog".
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithTracerProvider sets a custom OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets a custom OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// --- Event Options ---

// WithEventErrorsFatal configures whether event publishing failures fail the
// operation. The primary write has already committed when this happens, so the
// returned error is an *EventPublishError alongside the saved entity. The
// rest package answers such writes as successes and logs the publish
// failure. Default is false.
func WithEventErrorsFatal(fatal bool) Option {
	return func(o *options) {
		o.eventErrorsFatal = fatal
	}
}

// WithEventTransport sets the event transport for publishing and subscribing.
// If not provided, a noop transport is used (events are silently dropped).
func WithEventTransport(t transport.Transport) Option {
	return func(o *options) {
		if t != nil {
			o.eventTransport = t
		}
	}
}

// WithRedisClient sets a Redis client for the event transport.
// When provided, events are published to Redis Streams.
//
// Compatible with *redis.Client, *redis.ClusterClient, and redis.UniversalClient.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		if client != nil {
			o.redisClient = client
		}
	}
}

// WithEventPublishFailureHandler sets a callback for event publishing failures.
// By default, failures are logged using the configured logger.
func WithEventPublishFailureHandler(fn EventPublishFailureFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.onEventPublishFailure = fn
		}
	}
}
