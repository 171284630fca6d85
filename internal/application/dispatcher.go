package application

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"moysklad-sync-layer/internal/domain"
)

// TaskHandler executes queued tasks of one entity category.
type TaskHandler interface {
	Category() domain.EntityCategory
	Handle(ctx context.Context, task *domain.SyncTask) error
}

// TaskDispatcher routes claimed tasks to the handler registered for their
// category.
type TaskDispatcher struct {
	handlers map[domain.EntityCategory]TaskHandler
	logger   zerolog.Logger
}

// NewTaskDispatcher creates an empty dispatcher.
func NewTaskDispatcher(logger zerolog.Logger) *TaskDispatcher {
	return &TaskDispatcher{
		handlers: make(map[domain.EntityCategory]TaskHandler),
		logger:   logger,
	}
}

// RegisterHandler wires one handler. Registering a category twice replaces
// the earlier handler.
func (d *TaskDispatcher) RegisterHandler(handler TaskHandler) {
	d.handlers[handler.Category()] = handler
	d.logger.Debug().Str("category", string(handler.Category())).Msg("Task handler registered")
}

// Dispatch runs the task through its category handler.
func (d *TaskDispatcher) Dispatch(ctx context.Context, task *domain.SyncTask) error {
	handler, ok := d.handlers[task.Category]
	if !ok {
		return fmt.Errorf("no handler registered for category %s", task.Category)
	}
	return handler.Handle(ctx, task)
}
