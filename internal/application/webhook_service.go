package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/infrastructure/metrics"
	"moysklad-sync-layer/internal/ports"
)

// WebhookService is the ingestion and processing pipeline for platform
// notifications. Receive validates and persists; Process runs the sync logic
// after the HTTP response has already been sent.
type WebhookService struct {
	webhookLogs  ports.WebhookLogRepository
	webhookStats ports.WebhookStatRepository
	accounts     ports.AccountRepository
	childLinks   ports.ChildLinkRepository
	mappings     ports.EntityMappingRepository
	classifier   *Classifier
	selector     *StrategySelector
	executor     *Executor
	syncer       *EntitySyncer
	taskService  *TaskService
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

// NewWebhookService creates the pipeline.
func NewWebhookService(
	webhookLogs ports.WebhookLogRepository,
	webhookStats ports.WebhookStatRepository,
	accounts ports.AccountRepository,
	childLinks ports.ChildLinkRepository,
	mappings ports.EntityMappingRepository,
	classifier *Classifier,
	selector *StrategySelector,
	executor *Executor,
	syncer *EntitySyncer,
	taskService *TaskService,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *WebhookService {
	return &WebhookService{
		webhookLogs:  webhookLogs,
		webhookStats: webhookStats,
		accounts:     accounts,
		childLinks:   childLinks,
		mappings:     mappings,
		classifier:   classifier,
		selector:     selector,
		executor:     executor,
		syncer:       syncer,
		taskService:  taskService,
		metrics:      m,
		logger:       logger,
	}
}

// Receive validates a raw notification and records it exactly once. It
// returns domain.ErrMalformedPayload for structural problems and
// domain.ErrDuplicateRequest when the request id was already accepted.
// Validation runs before persistence so malformed bodies leave no record.
func (s *WebhookService) Receive(ctx context.Context, requestID string, body []byte) (*domain.WebhookLog, error) {
	if requestID == "" {
		s.metrics.WebhooksMalformed.Inc()
		return nil, fmt.Errorf("missing requestId: %w", domain.ErrMalformedPayload)
	}

	payload, err := parsePayload(body)
	if err != nil {
		s.metrics.WebhooksMalformed.Inc()
		return nil, err
	}

	// The platform emits one notification per registration, so every event
	// in a batch shares the first event's entity type and action; the stat
	// counters below still count each event individually.
	first := payload.Events[0]
	log := &domain.WebhookLog{
		RequestID:     requestID,
		AccountID:     first.AccountID,
		EntityType:    first.Meta.Type,
		Action:        first.Action,
		Payload:       json.RawMessage(body),
		ChangedFields: changedFields(payload),
		Status:        domain.WebhookPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.webhookLogs.Insert(ctx, log); err != nil {
		if errors.Is(err, domain.ErrDuplicateRequest) {
			s.metrics.WebhooksDuplicate.Inc()
			s.logger.Debug().Str("requestId", requestID).Msg("Duplicate webhook ignored")
			return nil, err
		}
		return nil, fmt.Errorf("failed to record webhook: %w", err)
	}

	s.metrics.WebhooksReceived.Inc()
	for _, event := range payload.Events {
		if err := s.webhookStats.IncrementReceived(ctx, event.AccountID, event.Meta.Type, event.Action); err != nil {
			s.logger.Warn().Err(err).Str("entityType", event.Meta.Type).Msg("Failed to count webhook stat")
		}
	}
	s.logger.Info().
		Str("requestId", requestID).
		Str("accountId", first.AccountID).
		Str("entityType", first.Meta.Type).
		Str("action", string(first.Action)).
		Int("events", len(payload.Events)).
		Msg("Webhook accepted")
	return log, nil
}

// Process runs the sync pipeline for an accepted notification. Events are
// isolated from each other: one failing event does not stop the rest, and the
// log ends failed only if at least one event failed.
func (s *WebhookService) Process(ctx context.Context, log *domain.WebhookLog) error {
	start := time.Now()
	log.Status = domain.WebhookProcessing
	if err := s.webhookLogs.Update(ctx, log); err != nil {
		return fmt.Errorf("failed to mark webhook processing: %w", err)
	}

	var payload domain.WebhookPayload
	if err := json.Unmarshal(log.Payload, &payload); err != nil {
		return s.finish(ctx, log, start, []string{fmt.Sprintf("payload decode: %v", err)})
	}

	var failures []string
	for i, event := range payload.Events {
		if err := s.processEvent(ctx, event); err != nil {
			failures = append(failures, fmt.Sprintf("event %d (%s %s): %v", i, event.Action, event.EntityID(), err))
			if statErr := s.webhookStats.IncrementFailed(ctx, event.AccountID, event.Meta.Type, event.Action); statErr != nil {
				s.logger.Warn().Err(statErr).Msg("Failed to count webhook failure")
			}
		}
	}
	return s.finish(ctx, log, start, failures)
}

func (s *WebhookService) finish(ctx context.Context, log *domain.WebhookLog, start time.Time, failures []string) error {
	now := time.Now().UTC()
	log.ProcessedAt = &now
	log.Duration = time.Since(start)
	s.metrics.ProcessDuration.Observe(log.Duration.Seconds())

	if len(failures) > 0 {
		log.Status = domain.WebhookFailed
		log.Error = strings.Join(failures, "; ")
		s.metrics.WebhooksFailed.Inc()
	} else {
		log.Status = domain.WebhookCompleted
		log.Error = ""
	}
	if err := s.webhookLogs.Update(ctx, log); err != nil {
		return fmt.Errorf("failed to finish webhook log: %w", err)
	}
	if len(failures) > 0 {
		s.logger.Error().
			Str("requestId", log.RequestID).
			Strs("failures", failures).
			Msg("Webhook processing finished with failures")
		return errors.New(log.Error)
	}
	s.logger.Info().
		Str("requestId", log.RequestID).
		Dur("duration", log.Duration).
		Msg("Webhook processed")
	return nil
}

// processEvent routes one entity change by the role of the account that sent
// it: main-account catalog changes fan out to every linked child; child
// account orders flow back to the main account through the queue.
func (s *WebhookService) processEvent(ctx context.Context, event domain.WebhookEvent) error {
	category, ok := domain.CategoryFromType(event.Meta.Type)
	if !ok {
		s.logger.Debug().Str("entityType", event.Meta.Type).Msg("Unhandled entity type, skipping")
		return nil
	}

	account, err := s.accounts.GetByAccountID(ctx, event.AccountID)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("unknown account %s", event.AccountID)
	}
	if !account.Active() {
		s.logger.Debug().Str("accountId", event.AccountID).Str("status", string(account.Status)).Msg("Account not active, skipping event")
		return nil
	}

	switch account.Role {
	case domain.RoleMain:
		if category == domain.CategoryImage {
			return s.fanOutImages(ctx, event)
		}
		if !category.CatalogCategory() {
			return nil // orders on the main account are not echoed back
		}
		return s.fanOut(ctx, category, event)
	case domain.RoleChild:
		if category != domain.CategoryOrder {
			return nil // child catalog edits are not propagated upstream
		}
		return s.enqueueOrder(ctx, event)
	default:
		return fmt.Errorf("account %s has unknown role %q", event.AccountID, account.Role)
	}
}

// fanOut applies one main-account change to every active child link. Errors
// are aggregated so one broken child does not stop the others.
func (s *WebhookService) fanOut(ctx context.Context, category domain.EntityCategory, event domain.WebhookEvent) error {
	links, err := s.childLinks.ListByMain(ctx, event.AccountID)
	if err != nil {
		return err
	}

	var failures []string
	for _, link := range links {
		if !link.Active {
			continue
		}
		if err := s.applyToChild(ctx, category, event, link); err != nil {
			failures = append(failures, fmt.Sprintf("child %s: %v", link.ChildAccountID, err))
		}
	}
	if len(failures) > 0 {
		return errors.New(strings.Join(failures, "; "))
	}
	return nil
}

// fanOutImages re-converges a product's whole image set on every child. The
// image handler diffs by filename, so create, update and delete all reduce to
// the same task; the parent product is carried in the payload because image
// ids alone are useless across accounts.
func (s *WebhookService) fanOutImages(ctx context.Context, event domain.WebhookEvent) error {
	parentType, parentID := imageParent(event.Meta.Href)
	if parentID == "" {
		return fmt.Errorf("image event %s carries no parent entity", event.Meta.Href)
	}
	if parentType != string(domain.CategoryProduct) {
		s.logger.Debug().Str("parentType", parentType).Msg("Images on non-product entities are not mirrored")
		return nil
	}

	links, err := s.childLinks.ListByMain(ctx, event.AccountID)
	if err != nil {
		return err
	}
	var failures []string
	for _, link := range links {
		if !link.Active || !link.Config.SyncImages {
			continue
		}
		task := &domain.SyncTask{
			AccountID: link.ChildAccountID,
			Category:  domain.CategoryImage,
			EntityID:  event.EntityID(),
			Operation: domain.OpUpdate,
			Priority:  domain.PriorityDefault,
			Payload: domain.TaskPayload{
				MainAccountID: event.AccountID,
				ParentID:      parentID,
			},
		}
		if err := s.taskService.Enqueue(ctx, task); err != nil {
			failures = append(failures, fmt.Sprintf("child %s: %v", link.ChildAccountID, err))
		}
	}
	if len(failures) > 0 {
		return errors.New(strings.Join(failures, "; "))
	}
	return nil
}

// imageParent extracts the owning entity from a nested image href of the form
// .../entity/{type}/{id}/images/{imageId}.
func imageParent(href string) (entityType, id string) {
	segments := strings.Split(strings.Trim(href, "/"), "/")
	for i, segment := range segments {
		if segment == "images" && i >= 2 {
			return segments[i-2], segments[i-1]
		}
	}
	return "", ""
}

func (s *WebhookService) applyToChild(ctx context.Context, category domain.EntityCategory, event domain.WebhookEvent, link *domain.ChildLink) error {
	if !link.Config.CategoryEnabled(category) {
		return nil
	}
	mainEntityID := event.EntityID()

	switch event.Action {
	case domain.ActionCreate:
		return s.taskService.EnqueueEntity(ctx, link.ChildAccountID, event.AccountID, category, mainEntityID, domain.OpCreate, domain.PriorityDefault, nil)
	case domain.ActionDelete:
		return s.taskService.EnqueueEntity(ctx, link.ChildAccountID, event.AccountID, category, mainEntityID, domain.OpDelete, domain.PriorityDefault, nil)
	case domain.ActionUpdate:
		return s.applyUpdate(ctx, category, event, link)
	default:
		return fmt.Errorf("unknown action %q", event.Action)
	}
}

// applyUpdate is the partial-sync fast path: classify the changed fields,
// pick a strategy for this link, and run narrow strategies inline. Full
// resyncs and unmapped entities go through the queue instead; they involve
// extra platform round trips that do not belong on the webhook path.
func (s *WebhookService) applyUpdate(ctx context.Context, category domain.EntityCategory, event domain.WebhookEvent, link *domain.ChildLink) error {
	mainEntityID := event.EntityID()

	cls, err := s.classifier.Classify(ctx, category, event.UpdatedFields, event.AccountID, link.ChildAccountID)
	if err != nil {
		return err
	}
	strategy, err := s.selector.Determine(ctx, category, cls, link.Config, event.AccountID, link.ChildAccountID)
	if err != nil {
		return err
	}

	switch strategy.Kind {
	case domain.StrategySkip:
		s.logger.Debug().
			Str("category", string(category)).
			Str("mainEntityId", mainEntityID).
			Str("childAccountId", link.ChildAccountID).
			Strs("updatedFields", event.UpdatedFields).
			Msg("Update produced no syncable changes, skipping")
		return nil
	case domain.StrategyFullResync:
		if err := s.taskService.EnqueueEntity(ctx, link.ChildAccountID, event.AccountID, category, mainEntityID, domain.OpUpdate, domain.PriorityDefault, event.UpdatedFields); err != nil {
			return err
		}
		if category == domain.CategoryProduct && link.Config.SyncVariants {
			// A product-wide change cascades into its variants: variant
			// names and shared fields derive from the parent product.
			return s.taskService.Enqueue(ctx, &domain.SyncTask{
				AccountID: link.ChildAccountID,
				Category:  domain.CategoryBatchVariant,
				Operation: domain.OpBatchSync,
				Priority:  domain.PriorityLow,
				Payload: domain.TaskPayload{
					MainAccountID: event.AccountID,
					ParentID:      mainEntityID,
				},
			})
		}
		return nil
	}

	mapping, err := s.mappings.Get(ctx, event.AccountID, link.ChildAccountID, category, mainEntityID)
	if err != nil {
		return err
	}
	if mapping == nil {
		// Never synced; a partial write has nothing to target.
		return s.taskService.EnqueueEntity(ctx, link.ChildAccountID, event.AccountID, category, mainEntityID, domain.OpCreate, domain.PriorityDefault, nil)
	}

	_, err = s.executor.Apply(ctx, strategy, category, event.AccountID, link.ChildAccountID, mainEntityID, mapping.ChildEntityID, link.Config, &cls)
	if domain.IsNotFound(err) {
		if dropErr := s.syncer.DropStaleMapping(ctx, category, event.AccountID, link.ChildAccountID, mainEntityID); dropErr != nil {
			return dropErr
		}
		return s.taskService.EnqueueEntity(ctx, link.ChildAccountID, event.AccountID, category, mainEntityID, domain.OpCreate, domain.PriorityDefault, nil)
	}
	return err
}

// enqueueOrder queues reverse propagation of a child-account order. The main
// account is derived from the link, not the payload, and order tasks run at
// high priority: a sale is time-sensitive in a way catalog edits are not.
func (s *WebhookService) enqueueOrder(ctx context.Context, event domain.WebhookEvent) error {
	link, err := s.childLinks.GetByChild(ctx, event.AccountID)
	if err != nil {
		return err
	}
	if link == nil || !link.Config.SyncOrders {
		return nil
	}
	if event.Action == domain.ActionDelete {
		return nil // order deletions are not mirrored
	}
	return s.taskService.EnqueueEntity(ctx, event.AccountID, "", domain.CategoryOrder, event.EntityID(), domain.OpCreate, domain.PriorityHigh, event.UpdatedFields)
}

func parsePayload(body []byte) (*domain.WebhookPayload, error) {
	var payload domain.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if len(payload.Events) == 0 {
		return nil, fmt.Errorf("%w: no events", domain.ErrMalformedPayload)
	}
	for i, event := range payload.Events {
		switch {
		case event.AccountID == "":
			return nil, fmt.Errorf("%w: event %d has no accountId", domain.ErrMalformedPayload, i)
		case event.Meta.Href == "" || event.Meta.Type == "":
			return nil, fmt.Errorf("%w: event %d has no entity meta", domain.ErrMalformedPayload, i)
		}
		switch event.Action {
		case domain.ActionCreate, domain.ActionUpdate, domain.ActionDelete:
		default:
			return nil, fmt.Errorf("%w: event %d has unknown action %q", domain.ErrMalformedPayload, i, event.Action)
		}
	}
	return &payload, nil
}

func changedFields(payload *domain.WebhookPayload) []string {
	seen := map[string]struct{}{}
	var fields []string
	for _, event := range payload.Events {
		if event.Action != domain.ActionUpdate {
			continue
		}
		for _, field := range event.UpdatedFields {
			if _, ok := seen[field]; ok {
				continue
			}
			seen[field] = struct{}{}
			fields = append(fields, field)
		}
	}
	return fields
}
