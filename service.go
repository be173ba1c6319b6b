package blog

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/rbaliyan/blog/search"
	"github.com/rbaliyan/blog/store"
	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport/noop"
	eventredis "github.com/rbaliyan/event/v3/transport/redis"
	"golang.org/x/sync/semaphore"
)

// ServiceHealth provides health and state information about the service.
type ServiceHealth interface {
	// IsConnected returns true if the service is connected and ready.
	IsConnected() bool
	// IndexBacklog returns the number of index tasks still pending in the outbox.
	IndexBacklog(ctx context.Context) (int64, error)
}

// IndexMaintainer repairs the search index from the primary store.
type IndexMaintainer interface {
	// DrainIndexOutbox re-applies pending index tasks. Call it periodically.
	DrainIndexOutbox(ctx context.Context) (*DrainResult, error)
	// Reindex clears the index of one kind and rebuilds it from the store.
	Reindex(ctx context.Context, kind store.Kind) (int64, error)
}

// Service manages the blog entities (server-side).
// It owns the primary store and the search index and keeps them in sync.
//
// Composed of:
//   - ServiceHealth: Health and state queries (IsConnected, IndexBacklog)
//   - IndexMaintainer: Outbox drain and full reindex
type Service interface {
	ServiceHealth
	IndexMaintainer

	// Connect establishes connections to the store, the index and the event bus.
	Connect(ctx context.Context) error
	// Close waits for in-flight index syncs and closes all connections.
	Close(ctx context.Context) error
	// Events returns per-service event instances for subscribing.
	// It is nil until Connect succeeds.
	Events() *ServiceEvents

	Modes() ModeClient
	Posts() PostClient
	Tags() TagClient
}

// ModeClient manages modes. Reads return modes with their user loaded.
type ModeClient interface {
	Create(ctx context.Context, m *store.Mode) (*store.Mode, error)
	Update(ctx context.Context, id int64, m *store.Mode) (*store.Mode, error)
	Patch(ctx context.Context, id int64, p ModePatch) (*store.Mode, error)
	Get(ctx context.Context, id int64) (*store.Mode, error)
	// List returns every mode. With eager false the user carries only its id.
	List(ctx context.Context, eager bool) ([]*store.Mode, error)
	// Delete removes the mode. Deleting a missing mode is not an error.
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
	// Search streams every matching mode in relevance order. The sequence
	// can be ranged over more than once; each range runs the query again.
	Search(ctx context.Context, query string) iter.Seq2[*store.Mode, error]
	// SearchAll collects Search into a slice.
	SearchAll(ctx context.Context, query string) ([]*store.Mode, error)
}

// PostClient manages posts. Reads return posts with their mode and tags loaded.
type PostClient interface {
	Create(ctx context.Context, p *store.Post) (*store.Post, error)
	Update(ctx context.Context, id int64, p *store.Post) (*store.Post, error)
	Patch(ctx context.Context, id int64, p PostPatch) (*store.Post, error)
	Get(ctx context.Context, id int64) (*store.Post, error)
	// List returns one page of posts. With eager false relations carry only ids.
	List(ctx context.Context, req store.PageRequest, eager bool) (*store.Page[*store.Post], error)
	// Delete removes the post. Deleting a missing post is not an error.
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
	// Search returns one page of matching posts in relevance order.
	Search(ctx context.Context, query string, req store.PageRequest) (*store.Page[*store.Post], error)
}

// TagClient manages tags.
type TagClient interface {
	Create(ctx context.Context, t *store.Tag) (*store.Tag, error)
	Update(ctx context.Context, id int64, t *store.Tag) (*store.Tag, error)
	Patch(ctx context.Context, id int64, p TagPatch) (*store.Tag, error)
	Get(ctx context.Context, id int64) (*store.Tag, error)
	List(ctx context.Context, req store.PageRequest) (*store.Page[*store.Tag], error)
	// Delete removes the tag. Deleting a missing tag is not an error.
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
	Search(ctx context.Context, query string, req store.PageRequest) (*store.Page[*store.Tag], error)
}

// Connection states for the service.
const (
	stateDisconnected int32 = 0
	stateConnecting   int32 = 1
	stateConnected    int32 = 2
)

// service is the default implementation of Service.
type service struct {
	store    store.Store
	index    search.Index
	logger   *slog.Logger
	opts     *options
	state    int32 // stateDisconnected, stateConnecting, or stateConnected
	plugins  *pluginRegistry
	otel     *otelInstrumentation
	indexSem *semaphore.Weighted // bounds in-flight index syncs
	locks    *stripedLocks       // serializes syncs of one entity
	eventBus *event.Bus
	events   *ServiceEvents
}

// NewService creates a new blog service.
// Call Connect() to establish connections to backends.
func NewService(opts ...Option) (Service, error) {
	o := newOptions(opts...)

	if o.store == nil {
		return nil, ErrStoreRequired
	}
	if o.index == nil {
		return nil, ErrIndexRequired
	}
	if o.serviceName == "" {
		o.serviceName = "blog"
	}

	plugins := newPluginRegistry(o.logger)
	for _, p := range o.plugins {
		plugins.register(p)
	}

	otelInstr, err := newOtelInstrumentation(o)
	if err != nil {
		return nil, fmt.Errorf("init otel: %w", err)
	}

	return &service{
		store:    o.store,
		index:    o.index,
		logger:   o.logger,
		opts:     o,
		plugins:  plugins,
		otel:     otelInstr,
		indexSem: semaphore.NewWeighted(int64(o.maxConcurrentIndexWrites)),
		locks:    newStripedLocks(syncLockStripes),
	}, nil
}

// Events returns per-service event instances for subscribing and publishing.
func (s *service) Events() *ServiceEvents {
	return s.events
}

// IsConnected returns true if the service is connected and ready.
func (s *service) IsConnected() bool {
	return atomic.LoadInt32(&s.state) == stateConnected
}

func (s *service) checkConnected() error {
	if !s.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Connect establishes connections to the store, the index and the event bus.
func (s *service) Connect(ctx context.Context) error {
	// stateDisconnected -> stateConnecting -> stateConnected
	if !atomic.CompareAndSwapInt32(&s.state, stateDisconnected, stateConnecting) {
		return ErrAlreadyConnected
	}

	success := false
	defer func() {
		if success {
			atomic.StoreInt32(&s.state, stateConnected)
		} else {
			atomic.StoreInt32(&s.state, stateDisconnected)
		}
	}()

	if err := s.store.Connect(ctx); err != nil {
		return fmt.Errorf("connect store: %w", err)
	}

	if err := s.index.Connect(ctx); err != nil {
		s.store.Close(ctx)
		return fmt.Errorf("connect index: %w", err)
	}

	if err := s.initEventBus(ctx); err != nil {
		s.index.Close(ctx)
		s.store.Close(ctx)
		return fmt.Errorf("init event bus: %w", err)
	}

	if err := s.plugins.initAll(ctx); err != nil {
		s.closeEventBus(ctx)
		s.index.Close(ctx)
		s.store.Close(ctx)
		return fmt.Errorf("init plugins: %w", err)
	}

	success = true
	s.logger.Info("blog service connected")
	return nil
}

// busCounter generates unique suffixes for event bus names.
var busCounter int64

// initEventBus creates this service's bus and registers its events.
func (s *service) initEventBus(ctx context.Context) error {
	// Each bus needs a unique name, so append a counter suffix
	busName := fmt.Sprintf("%s-%d", s.opts.serviceName, atomic.AddInt64(&busCounter, 1))

	var bus *event.Bus
	var err error

	switch {
	case s.opts.eventTransport != nil:
		s.logger.Info("initializing event bus with custom transport")
		bus, err = event.NewBus(busName, event.WithTransport(s.opts.eventTransport))
	case s.opts.redisClient != nil:
		s.logger.Info("initializing event bus with Redis transport")
		t, transportErr := eventredis.New(s.opts.redisClient)
		if transportErr != nil {
			return fmt.Errorf("create redis transport: %w", transportErr)
		}
		bus, err = event.NewBus(busName, event.WithTransport(t))
	default:
		s.logger.Debug("initializing event bus with noop transport")
		bus, err = event.NewBus(busName, event.WithTransport(noop.New()))
	}
	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	s.eventBus = bus

	s.events = newServiceEvents(busName)
	if err := registerServiceEvents(ctx, bus, s.events); err != nil {
		bus.Close(ctx)
		return fmt.Errorf("register service events: %w", err)
	}
	return nil
}

// closeEventBus closes the bus only if it uses a real transport.
func (s *service) closeEventBus(ctx context.Context) error {
	if s.eventBus == nil || (s.opts.eventTransport == nil && s.opts.redisClient == nil) {
		return nil
	}
	return s.eventBus.Close(ctx)
}

// Close waits for in-flight index syncs and closes all connections.
func (s *service) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateConnected, stateDisconnected) {
		return nil
	}

	var errs []error

	// No new syncs start once the state is disconnected. Acquiring every
	// semaphore slot waits for the running ones.
	s.logger.Info("waiting for in-flight index syncs to complete", "timeout", s.opts.shutdownTimeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
	defer shutdownCancel()
	if err := s.indexSem.Acquire(shutdownCtx, int64(s.opts.maxConcurrentIndexWrites)); err != nil {
		s.logger.Warn("timeout waiting for index syncs, pending tasks stay in the outbox",
			"error", err)
		errs = append(errs, fmt.Errorf("graceful shutdown timeout: %w", err))
	} else {
		s.indexSem.Release(int64(s.opts.maxConcurrentIndexWrites))
	}

	if err := s.plugins.closeAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close plugins: %w", err))
	}
	if err := s.closeEventBus(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close event bus: %w", err))
	}
	if err := s.index.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close index: %w", err))
	}
	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	return errors.Join(errs...)
}

// IndexBacklog returns the number of pending outbox tasks.
func (s *service) IndexBacklog(ctx context.Context) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	n, err := s.store.Outbox().PendingCount(ctx)
	return n, translateError(err)
}

func (s *service) Modes() ModeClient { return &modeClient{s: s} }
func (s *service) Posts() PostClient { return &postClient{s: s} }
func (s *service) Tags() TagClient   { return &tagClient{s: s} }
