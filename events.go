package blog

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/blog/store"
	"github.com/rbaliyan/event/v3"
)

// Event names for blog events.
const (
	EventNameEntityCreated   = "blog.entity.created"
	EventNameEntityUpdated   = "blog.entity.updated"
	EventNameEntityDeleted   = "blog.entity.deleted"
	EventNameIndexSyncFailed = "blog.index.sync_failed"
)

// EntityEvent is published after a mutation commits to the primary store.
type EntityEvent struct {
	Kind string    `json:"kind"`
	ID   int64     `json:"id"`
	At   time.Time `json:"at"`
}

// IndexSyncFailedEvent is published when an entity could not be synced to the
// search index after all retries. The entity stays pending in the outbox.
type IndexSyncFailedEvent struct {
	Kind     string    `json:"kind"`
	ID       int64     `json:"id"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// ServiceEvents provides access to per-service event instances.
// Each service creates its own events bound to its own event bus.
//
// Subscribe to events:
//
//	svc.Events().EntityCreated.Subscribe(ctx, handler)
//	svc.Events().IndexSyncFailed.Subscribe(ctx, handler)
type ServiceEvents struct {
	// EntityCreated is published when a mode, post or tag is created.
	EntityCreated event.Event[EntityEvent]

	// EntityUpdated is published on full and partial updates.
	EntityUpdated event.Event[EntityEvent]

	// EntityDeleted is published when an entity is deleted.
	EntityDeleted event.Event[EntityEvent]

	// IndexSyncFailed is published when the search index diverges.
	IndexSyncFailed event.Event[IndexSyncFailedEvent]
}

// newServiceEvents creates per-service event instances with a unique name prefix.
func newServiceEvents(namePrefix string) *ServiceEvents {
	return &ServiceEvents{
		EntityCreated:   event.New[EntityEvent](namePrefix + "." + EventNameEntityCreated),
		EntityUpdated:   event.New[EntityEvent](namePrefix + "." + EventNameEntityUpdated),
		EntityDeleted:   event.New[EntityEvent](namePrefix + "." + EventNameEntityDeleted),
		IndexSyncFailed: event.New[IndexSyncFailedEvent](namePrefix + "." + EventNameIndexSyncFailed),
	}
}

// registerServiceEvents registers per-service events with the given bus.
func registerServiceEvents(ctx context.Context, bus *event.Bus, events *ServiceEvents) error {
	if err := event.Register(ctx, bus, events.EntityCreated); err != nil {
		return fmt.Errorf("register EntityCreated: %w", err)
	}
	if err := event.Register(ctx, bus, events.EntityUpdated); err != nil {
		return fmt.Errorf("register EntityUpdated: %w", err)
	}
	if err := event.Register(ctx, bus, events.EntityDeleted); err != nil {
		return fmt.Errorf("register EntityDeleted: %w", err)
	}
	if err := event.Register(ctx, bus, events.IndexSyncFailed); err != nil {
		return fmt.Errorf("register IndexSyncFailed: %w", err)
	}
	return nil
}

// publishEntity publishes a lifecycle event. A failure is returned only when
// event errors are fatal; otherwise it goes to the failure handler.
func (s *service) publishEntity(ctx context.Context, name string, ev event.Event[EntityEvent], kind store.Kind, id int64) error {
	err := ev.Publish(ctx, EntityEvent{Kind: string(kind), ID: id, At: time.Now().UTC()})
	if err == nil {
		return nil
	}
	if s.opts.eventErrorsFatal {
		return &EventPublishError{Event: name, Kind: kind, ID: id, Err: err}
	}
	s.opts.safeEventPublishFailure(name, err)
	return nil
}

func (s *service) publishCreated(ctx context.Context, kind store.Kind, id int64) error {
	return s.publishEntity(ctx, "EntityCreated", s.events.EntityCreated, kind, id)
}

func (s *service) publishUpdated(ctx context.Context, kind store.Kind, id int64) error {
	return s.publishEntity(ctx, "EntityUpdated", s.events.EntityUpdated, kind, id)
}

func (s *service) publishDeleted(ctx context.Context, kind store.Kind, id int64) error {
	return s.publishEntity(ctx, "EntityDeleted", s.events.EntityDeleted, kind, id)
}

// publishIndexSyncFailed never fails the caller; the sync already failed.
func (s *service) publishIndexSyncFailed(ctx context.Context, failure *IndexSyncError) {
	err := s.events.IndexSyncFailed.Publish(ctx, IndexSyncFailedEvent{
		Kind:     string(failure.Kind),
		ID:       failure.ID,
		Error:    failure.Err.Error(),
		FailedAt: time.Now().UTC(),
	})
	if err != nil {
		s.opts.safeEventPublishFailure("IndexSyncFailed", err)
	}
}
