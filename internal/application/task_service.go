package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/infrastructure/metrics"
	"moysklad-sync-layer/internal/ports"
)

// Backfill tuning. The platform pages at 1000 rows; batch tasks chunk well
// below that so a single failure retries a bounded slice.
const (
	backfillPageSize  = 100
	backfillBatchSize = 20
	retryBaseDelay    = 30 * time.Second
	retryMaxDelay     = 15 * time.Minute
)

// TaskService owns the persistent queue: enqueueing work, executing claimed
// tasks through the dispatcher, and the retry/backoff bookkeeping around both.
type TaskService struct {
	tasks      ports.TaskRepository
	clients    ports.ClientPool
	dispatcher *TaskDispatcher
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewTaskService creates a task service.
func NewTaskService(tasks ports.TaskRepository, clients ports.ClientPool, dispatcher *TaskDispatcher, m *metrics.Metrics, logger zerolog.Logger) *TaskService {
	return &TaskService{
		tasks:      tasks,
		clients:    clients,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger,
	}
}

// Enqueue stores a new pending task. ID, status, scheduling and retry bounds
// are assigned here; callers only describe the work.
func (s *TaskService) Enqueue(ctx context.Context, task *domain.SyncTask) error {
	now := time.Now().UTC()
	task.ID = uuid.NewString()
	task.Status = domain.TaskPending
	task.Attempts = 0
	if task.MaxAttempts == 0 {
		task.MaxAttempts = domain.DefaultMaxAttempts
	}
	if task.ScheduledAt.IsZero() {
		task.ScheduledAt = now
	}
	task.CreatedAt = now
	task.UpdatedAt = now
	if err := s.tasks.Insert(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	s.logger.Debug().
		Str("taskId", task.ID).
		Str("category", string(task.Category)).
		Str("operation", string(task.Operation)).
		Int("priority", task.Priority).
		Msg("Task enqueued")
	return nil
}

// EnqueueEntity is the common case: one operation against one entity on one
// target account.
func (s *TaskService) EnqueueEntity(ctx context.Context, targetAccountID, mainAccountID string, category domain.EntityCategory, entityID string, op domain.TaskOperation, priority int, changedFields []string) error {
	return s.Enqueue(ctx, &domain.SyncTask{
		AccountID: targetAccountID,
		Category:  category,
		EntityID:  entityID,
		Operation: op,
		Priority:  priority,
		Payload: domain.TaskPayload{
			MainAccountID: mainAccountID,
			ChangedFields: changedFields,
		},
	})
}

// EnqueueCategory walks the whole main-account collection of a category and
// enqueues batch tasks covering it, for initial backfill or operator-driven
// resync of one child. Returns the number of entities covered.
func (s *TaskService) EnqueueCategory(ctx context.Context, mainAccountID, childAccountID string, category domain.EntityCategory) (int, error) {
	if !category.CatalogCategory() {
		return 0, fmt.Errorf("category %s cannot be backfilled", category)
	}
	client, err := s.clients.GetClient(ctx, mainAccountID)
	if err != nil {
		return 0, err
	}

	var ids []string
	for offset := 0; ; offset += backfillPageSize {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(backfillPageSize))
		query.Set("offset", strconv.Itoa(offset))
		page, err := client.Get(ctx, fmt.Sprintf("/entity/%s", category), query)
		if err != nil {
			return 0, fmt.Errorf("failed to list %s: %w", category, err)
		}
		rows, _ := page["rows"].([]any)
		for _, item := range rows {
			row, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if id := entityID(row); id != "" {
				ids = append(ids, id)
			}
		}
		if len(rows) < backfillPageSize {
			break
		}
	}

	now := time.Now().UTC()
	var batches []*domain.SyncTask
	for start := 0; start < len(ids); start += backfillBatchSize {
		end := start + backfillBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, &domain.SyncTask{
			ID:          uuid.NewString(),
			AccountID:   childAccountID,
			Category:    category,
			Operation:   domain.OpBatchSync,
			Priority:    domain.PriorityLow,
			Status:      domain.TaskPending,
			MaxAttempts: domain.DefaultMaxAttempts,
			Payload: domain.TaskPayload{
				MainAccountID: mainAccountID,
				EntityIDs:     ids[start:end],
			},
			ScheduledAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if len(batches) > 0 {
		if _, err := s.tasks.InsertMany(ctx, batches); err != nil {
			return 0, fmt.Errorf("failed to enqueue backfill batches: %w", err)
		}
	}
	s.logger.Info().
		Str("category", string(category)).
		Str("childAccountId", childAccountID).
		Int("entities", len(ids)).
		Int("batches", len(batches)).
		Msg("Backfill enqueued")
	return len(ids), nil
}

// ExecuteNext claims the highest-priority due task and runs it. Returns false
// when the queue had nothing due.
func (s *TaskService) ExecuteNext(ctx context.Context) (bool, error) {
	task, err := s.tasks.ClaimNext(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to claim task: %w", err)
	}
	if task == nil {
		return false, nil
	}
	s.Execute(ctx, task)
	return true, nil
}

// Execute runs one claimed task and settles its state: completed on success,
// rescheduled with backoff on a transient failure with attempts remaining,
// failed otherwise. A 404 on an update or delete means the child-side entity
// vanished; its mapping is stale and the task converts to a create.
func (s *TaskService) Execute(ctx context.Context, task *domain.SyncTask) {
	task.Attempts++
	err := s.dispatcher.Dispatch(ctx, task)
	now := time.Now().UTC()
	task.UpdatedAt = now

	switch {
	case err == nil:
		task.Status = domain.TaskCompleted
		task.Error = ""
		task.CompletedAt = &now

	case isStaleMapping(err) && task.Operation != domain.OpCreate:
		// The handler drops the stale mapping before surfacing a 404, so
		// the converted create resolves the child entity from scratch.
		task.Operation = domain.OpCreate
		task.Status = domain.TaskPending
		task.Error = err.Error()
		task.ScheduledAt = now
		s.logger.Warn().
			Str("taskId", task.ID).
			Str("category", string(task.Category)).
			Str("entityId", task.EntityID).
			Msg("Stale mapping, task converted to create")

	case isRetryable(err) && !task.AttemptsExhausted():
		task.Status = domain.TaskPending
		task.Error = err.Error()
		task.ScheduledAt = now.Add(retryDelay(task.Attempts))
		s.logger.Warn().
			Err(err).
			Str("taskId", task.ID).
			Int("attempts", task.Attempts).
			Time("scheduledAt", task.ScheduledAt).
			Msg("Task failed, rescheduled")

	default:
		task.Status = domain.TaskFailed
		task.Error = err.Error()
		s.logger.Error().
			Err(err).
			Str("taskId", task.ID).
			Str("category", string(task.Category)).
			Str("operation", string(task.Operation)).
			Int("attempts", task.Attempts).
			Msg("Task failed permanently")
	}

	s.metrics.TasksProcessed.WithLabelValues(string(task.Status)).Inc()
	if updErr := s.tasks.Update(ctx, task); updErr != nil {
		s.logger.Error().Err(updErr).Str("taskId", task.ID).Msg("Failed to settle task state")
	}
}

// Retry puts a terminally failed task back in the queue with a fresh retry
// budget. Operator-facing.
func (s *TaskService) Retry(ctx context.Context, taskID string) error {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %s not found", taskID)
	}
	if task.Status != domain.TaskFailed {
		return fmt.Errorf("task %s is %s, only failed tasks can be retried", taskID, task.Status)
	}
	now := time.Now().UTC()
	task.Status = domain.TaskPending
	task.Attempts = 0
	task.Error = ""
	task.ScheduledAt = now
	task.UpdatedAt = now
	return s.tasks.Update(ctx, task)
}

// ListFailed exposes the dead letters for one account.
func (s *TaskService) ListFailed(ctx context.Context, accountID string, limit int64) ([]*domain.SyncTask, error) {
	return s.tasks.ListFailed(ctx, accountID, limit)
}

func retryDelay(attempt int) time.Duration {
	delay := time.Duration(float64(retryBaseDelay) * math.Pow(2, float64(attempt-1)))
	if delay > retryMaxDelay {
		return retryMaxDelay
	}
	return delay
}

func isRetryable(err error) bool {
	if errors.Is(err, domain.ErrMappingMissing) {
		// The mapping may appear once the parent's own task lands.
		return true
	}
	return domain.IsTransient(err)
}

func isStaleMapping(err error) bool {
	return domain.IsNotFound(err)
}
