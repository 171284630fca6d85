package application

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/ports"
)

// matchFields holds the per-category field used to locate an existing child
// entity before creating a duplicate. Categories absent here are matched by
// name.
var matchFields = map[domain.EntityCategory]string{
	domain.CategoryProduct: "article",
	domain.CategoryVariant: "code",
	domain.CategoryBundle:  "article",
}

// EntitySyncer locates or creates the child-side counterpart of a main
// entity and keeps the identifier mapping current. Handlers use it for the
// create path and for full resyncs of entities that have never been mapped.
type EntitySyncer struct {
	clients        ports.ClientPool
	entityMappings ports.EntityMappingRepository
	executor       *Executor
	logger         zerolog.Logger
}

// NewEntitySyncer creates a syncer.
func NewEntitySyncer(clients ports.ClientPool, entityMappings ports.EntityMappingRepository, executor *Executor, logger zerolog.Logger) *EntitySyncer {
	return &EntitySyncer{
		clients:        clients,
		entityMappings: entityMappings,
		executor:       executor,
		logger:         logger,
	}
}

// SyncFull ensures the child counterpart exists and runs a full resync
// against it. When no mapping exists the child account is searched by the
// category's match field before a create, so re-linked accounts do not end
// up with duplicates.
func (s *EntitySyncer) SyncFull(ctx context.Context, category domain.EntityCategory, mainAccountID, mainEntityID string, link *domain.ChildLink) (*domain.EntityUpdateLog, error) {
	childEntityID, err := s.EnsureMapping(ctx, category, mainAccountID, mainEntityID, link)
	if err != nil {
		return nil, err
	}
	strategy := domain.Strategy{Kind: domain.StrategyFullResync}
	return s.executor.Apply(ctx, strategy, category, mainAccountID, link.ChildAccountID, mainEntityID, childEntityID, link.Config, nil)
}

// EnsureMapping returns the child entity id for a main entity, creating the
// child entity and the mapping row when neither exists yet.
func (s *EntitySyncer) EnsureMapping(ctx context.Context, category domain.EntityCategory, mainAccountID, mainEntityID string, link *domain.ChildLink) (string, error) {
	mapping, err := s.entityMappings.Get(ctx, mainAccountID, link.ChildAccountID, category, mainEntityID)
	if err != nil {
		return "", err
	}
	if mapping != nil {
		return mapping.ChildEntityID, nil
	}

	mainClient, err := s.clients.GetClient(ctx, mainAccountID)
	if err != nil {
		return "", err
	}
	source, err := mainClient.Get(ctx, fmt.Sprintf("/entity/%s/%s", category, mainEntityID), nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch source entity: %w", err)
	}

	matchField := matchFields[category]
	if matchField == "" {
		matchField = "name"
	}
	matchValue, _ := source[matchField].(string)

	childEntityID, err := s.findOrCreate(ctx, category, link.ChildAccountID, matchField, matchValue, source)
	if err != nil {
		return "", err
	}

	mapping = &domain.EntityMapping{
		MainAccountID:  mainAccountID,
		ChildAccountID: link.ChildAccountID,
		Category:       category,
		MainEntityID:   mainEntityID,
		ChildEntityID:  childEntityID,
		MatchField:     matchField,
		MatchValue:     matchValue,
	}
	if err := s.entityMappings.Save(ctx, mapping); err != nil {
		return "", fmt.Errorf("failed to save entity mapping: %w", err)
	}
	s.logger.Info().
		Str("category", string(category)).
		Str("mainEntityId", mainEntityID).
		Str("childEntityId", childEntityID).
		Str("childAccountId", link.ChildAccountID).
		Msg("Entity mapping established")
	return childEntityID, nil
}

func (s *EntitySyncer) findOrCreate(ctx context.Context, category domain.EntityCategory, childAccountID, matchField, matchValue string, source map[string]any) (string, error) {
	childClient, err := s.clients.GetClient(ctx, childAccountID)
	if err != nil {
		return "", err
	}

	if matchValue != "" {
		query := url.Values{}
		query.Set("filter", fmt.Sprintf("%s=%s", matchField, matchValue))
		query.Set("limit", "1")
		found, err := childClient.Get(ctx, fmt.Sprintf("/entity/%s", category), query)
		if err != nil {
			return "", fmt.Errorf("failed to search child account: %w", err)
		}
		if rows, ok := found["rows"].([]any); ok && len(rows) > 0 {
			if row, ok := rows[0].(map[string]any); ok {
				if id := entityID(row); id != "" {
					return id, nil
				}
			}
		}
	}

	body := map[string]any{"name": source["name"]}
	if matchField != "name" && matchValue != "" {
		body[matchField] = matchValue
	}
	created, err := childClient.Post(ctx, fmt.Sprintf("/entity/%s", category), body)
	if err != nil {
		return "", fmt.Errorf("failed to create child entity: %w", err)
	}
	id := entityID(created)
	if id == "" {
		return "", errors.New("create response carries no entity id")
	}
	return id, nil
}

// Archive marks the mapped child entity archived instead of deleting it; the
// child account keeps its history and order references stay valid.
func (s *EntitySyncer) Archive(ctx context.Context, category domain.EntityCategory, mainAccountID, mainEntityID string, link *domain.ChildLink) error {
	mapping, err := s.entityMappings.Get(ctx, mainAccountID, link.ChildAccountID, category, mainEntityID)
	if err != nil {
		return err
	}
	if mapping == nil {
		s.logger.Debug().
			Str("category", string(category)).
			Str("mainEntityId", mainEntityID).
			Msg("Delete for unmapped entity, nothing to archive")
		return nil
	}

	childClient, err := s.clients.GetClient(ctx, link.ChildAccountID)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/entity/%s/%s", category, mapping.ChildEntityID)
	if _, err := childClient.Put(ctx, path, map[string]any{"archived": true}); err != nil {
		return fmt.Errorf("failed to archive child entity: %w", err)
	}
	return nil
}

// DropStaleMapping removes a mapping whose child entity no longer exists.
func (s *EntitySyncer) DropStaleMapping(ctx context.Context, category domain.EntityCategory, mainAccountID, childAccountID, mainEntityID string) error {
	mapping, err := s.entityMappings.Get(ctx, mainAccountID, childAccountID, category, mainEntityID)
	if err != nil {
		return err
	}
	if mapping == nil {
		return nil
	}
	return s.entityMappings.Delete(ctx, mapping.ID)
}

func entityID(entity map[string]any) string {
	if id, ok := entity["id"].(string); ok && id != "" {
		return id
	}
	return extractMeta(entity).EntityID()
}
