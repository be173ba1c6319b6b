package blog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rbaliyan/blog/store"
)

// Plugin defines the interface for service extensions.
//
// For observing mutations after the fact, use the event system instead
// (EntityCreated, EntityUpdated, EntityDeleted).
type Plugin interface {
	// Name returns the plugin identifier.
	Name() string
	// Init initializes the plugin. Called when service connects.
	Init(ctx context.Context) error
	// Close cleans up plugin resources. Called when service closes.
	Close(ctx context.Context) error
}

// SaveHook is called around every create, update and patch.
type SaveHook interface {
	Plugin
	// BeforeSave is called after validation and before the primary write.
	// The entity may be modified. Return an error to abort the write.
	BeforeSave(ctx context.Context, kind store.Kind, e store.Entity) error
	// AfterSave is called after the primary write commits.
	// The entity is already stored and cannot be rolled back.
	AfterSave(ctx context.Context, kind store.Kind, e store.Entity) error
}

// DeleteHook is called around every delete.
type DeleteHook interface {
	Plugin
	// BeforeDelete is called before the primary delete. Return an error to abort.
	BeforeDelete(ctx context.Context, kind store.Kind, id int64) error
}

// pluginRegistry holds registered plugins.
type pluginRegistry struct {
	all    []Plugin
	save   []SaveHook
	delete []DeleteHook
	logger *slog.Logger
}

// newPluginRegistry creates a new plugin registry.
func newPluginRegistry(logger *slog.Logger) *pluginRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &pluginRegistry{logger: logger}
}

// register adds a plugin to the registry.
func (r *pluginRegistry) register(p Plugin) {
	r.all = append(r.all, p)

	if h, ok := p.(SaveHook); ok {
		r.save = append(r.save, h)
	}
	if h, ok := p.(DeleteHook); ok {
		r.delete = append(r.delete, h)
	}
}

// initAll initializes all plugins.
// On failure, already-initialized plugins are closed in reverse order.
func (r *pluginRegistry) initAll(ctx context.Context) error {
	for i, p := range r.all {
		if err := p.Init(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if closeErr := r.all[j].Close(ctx); closeErr != nil {
					r.logger.Error("failed to close plugin during init rollback",
						"plugin", r.all[j].Name(), "error", closeErr)
				}
			}
			return &PluginError{Plugin: p.Name(), Op: "init", Err: err}
		}
	}
	return nil
}

// closeAll closes all plugins in reverse order.
func (r *pluginRegistry) closeAll(ctx context.Context) error {
	var errs []error
	for i := len(r.all) - 1; i >= 0; i-- {
		if err := r.all[i].Close(ctx); err != nil {
			errs = append(errs, &PluginError{Plugin: r.all[i].Name(), Op: "close", Err: err})
		}
	}
	return errors.Join(errs...)
}

// Hook execution helpers

func (r *pluginRegistry) beforeSave(ctx context.Context, kind store.Kind, e store.Entity) error {
	for _, h := range r.save {
		if err := h.BeforeSave(ctx, kind, e); err != nil {
			return &PluginError{Plugin: h.Name(), Op: "BeforeSave", Err: err}
		}
	}
	return nil
}

// afterSave runs every hook and logs failures; the write is already committed.
func (r *pluginRegistry) afterSave(ctx context.Context, kind store.Kind, e store.Entity) {
	for _, h := range r.save {
		if err := h.AfterSave(ctx, kind, e); err != nil {
			r.logger.Warn("plugin AfterSave failed",
				"plugin", h.Name(), "kind", kind, "id", e.GetID(), "error", err)
		}
	}
}

func (r *pluginRegistry) beforeDelete(ctx context.Context, kind store.Kind, id int64) error {
	for _, h := range r.delete {
		if err := h.BeforeDelete(ctx, kind, id); err != nil {
			return &PluginError{Plugin: h.Name(), Op: "BeforeDelete", Err: err}
		}
	}
	return nil
}
