package task_handlers

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/ports"
)

// OrderHandler recreates child-account customer orders on the main account.
// This is the one flow that runs child -> main: the task's target account is
// the child that produced the order, and the main account is derived from the
// link rather than the payload.
type OrderHandler struct {
	childLinks     ports.ChildLinkRepository
	entityMappings ports.EntityMappingRepository
	nameMappings   ports.NameMappingRepository
	clients        ports.ClientPool
	logger         zerolog.Logger
}

// NewOrderHandler creates the handler.
func NewOrderHandler(
	childLinks ports.ChildLinkRepository,
	entityMappings ports.EntityMappingRepository,
	nameMappings ports.NameMappingRepository,
	clients ports.ClientPool,
	logger zerolog.Logger,
) *OrderHandler {
	return &OrderHandler{
		childLinks:     childLinks,
		entityMappings: entityMappings,
		nameMappings:   nameMappings,
		clients:        clients,
		logger:         logger,
	}
}

func (h *OrderHandler) Category() domain.EntityCategory {
	return domain.CategoryOrder
}

func (h *OrderHandler) Handle(ctx context.Context, task *domain.SyncTask) error {
	link, err := h.childLinks.GetByChild(ctx, task.AccountID)
	if err != nil {
		return err
	}
	if link == nil || !link.Config.SyncOrders {
		return nil
	}
	defaults := link.Config.OrderDefaults
	if defaults.Organization == "" {
		return fmt.Errorf("order defaults not configured for link %s: %w", link.ID, domain.ErrSyncDisabled)
	}

	childClient, err := h.clients.GetClient(ctx, task.AccountID)
	if err != nil {
		return err
	}
	query := url.Values{}
	query.Set("expand", "positions.assortment,agent")
	order, err := childClient.Get(ctx, fmt.Sprintf("/entity/customerorder/%s", task.EntityID), query)
	if err != nil {
		return fmt.Errorf("failed to fetch child order: %w", err)
	}

	body, err := h.buildOrder(ctx, order, link, defaults)
	if err != nil {
		return err
	}

	mainClient, err := h.clients.GetClient(ctx, link.MainAccountID)
	if err != nil {
		return err
	}

	mapping, err := h.entityMappings.GetByChildEntity(ctx, link.MainAccountID, task.AccountID, domain.CategoryOrder, task.EntityID)
	if err != nil {
		return err
	}
	if mapping != nil {
		if _, err := mainClient.Put(ctx, fmt.Sprintf("/entity/customerorder/%s", mapping.MainEntityID), body); err != nil {
			return fmt.Errorf("failed to update main order: %w", err)
		}
		return nil
	}

	created, err := mainClient.Post(ctx, "/entity/customerorder", body)
	if err != nil {
		return fmt.Errorf("failed to create main order: %w", err)
	}
	mainID, _ := created["id"].(string)
	if mainID == "" {
		return fmt.Errorf("order create response carries no id")
	}

	name, _ := order["name"].(string)
	mapping = &domain.EntityMapping{
		MainAccountID:  link.MainAccountID,
		ChildAccountID: task.AccountID,
		Category:       domain.CategoryOrder,
		MainEntityID:   mainID,
		ChildEntityID:  task.EntityID,
		MatchField:     "name",
		MatchValue:     name,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.entityMappings.Save(ctx, mapping); err != nil {
		return fmt.Errorf("failed to save order mapping: %w", err)
	}
	h.logger.Info().
		Str("childAccountId", task.AccountID).
		Str("childOrderId", task.EntityID).
		Str("mainOrderId", mainID).
		Msg("Order propagated to main account")
	return nil
}

func (h *OrderHandler) buildOrder(ctx context.Context, order map[string]any, link *domain.ChildLink, defaults domain.OrderDefaults) (map[string]any, error) {
	body := map[string]any{
		"organization": refFromHref(defaults.Organization, "organization"),
	}
	if name, ok := order["name"].(string); ok {
		body["name"] = name
	}
	if moment, ok := order["moment"].(string); ok {
		body["moment"] = moment
	}
	if description, ok := order["description"].(string); ok && description != "" {
		body["description"] = description
	}
	if defaults.Store != "" {
		body["store"] = refFromHref(defaults.Store, "store")
	}
	if defaults.Project != "" {
		body["project"] = refFromHref(defaults.Project, "project")
	}
	if defaults.Owner != "" {
		body["owner"] = refFromHref(defaults.Owner, "employee")
	}
	if defaults.State != "" {
		body["state"] = refFromHref(defaults.State, "state")
	}
	if defaults.SalesChannel != "" {
		body["salesChannel"] = refFromHref(defaults.SalesChannel, "saleschannel")
	}

	agent, err := h.translateAgent(ctx, order, link)
	if err != nil {
		return nil, err
	}
	body["agent"] = agent

	positions, err := h.translatePositions(ctx, order, link)
	if err != nil {
		return nil, err
	}
	body["positions"] = positions
	return body, nil
}

// translateAgent maps the order's counterparty by name. Every order needs an
// agent, so a missing mapping blocks the order until the counterparty is
// mirrored.
func (h *OrderHandler) translateAgent(ctx context.Context, order map[string]any, link *domain.ChildLink) (map[string]any, error) {
	agent, ok := order["agent"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("order has no agent")
	}
	name, _ := agent["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("order agent has no name")
	}
	mapping, err := h.nameMappings.GetByName(ctx, link.MainAccountID, link.ChildAccountID, domain.MappingCounterparty, name)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		return nil, fmt.Errorf("counterparty %q: %w", name, domain.ErrMappingMissing)
	}
	return map[string]any{"meta": domain.EntityMeta("counterparty", mapping.MainID)}, nil
}

// translatePositions rewrites every position's assortment reference from the
// child account's id space to the main account's, using the reverse mapping
// lookup. Orders are financial documents: one untranslatable position fails
// the whole order rather than silently shipping a shorter one.
func (h *OrderHandler) translatePositions(ctx context.Context, order map[string]any, link *domain.ChildLink) ([]map[string]any, error) {
	positionsDoc, _ := order["positions"].(map[string]any)
	rows, _ := positionsDoc["rows"].([]any)
	if len(rows) == 0 {
		return nil, fmt.Errorf("order has no positions")
	}

	translated := make([]map[string]any, 0, len(rows))
	for i, item := range rows {
		position, ok := item.(map[string]any)
		if !ok {
			continue
		}
		assortment, ok := position["assortment"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("position %d has no assortment", i)
		}
		meta, ok := assortment["meta"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("position %d assortment has no meta", i)
		}
		metaType, _ := meta["type"].(string)
		href, _ := meta["href"].(string)
		category, ok := domain.CategoryFromType(metaType)
		if !ok {
			return nil, fmt.Errorf("position %d has unsupported assortment type %q", i, metaType)
		}
		childEntityID := (domain.Meta{Href: href}).EntityID()

		mapping, err := h.entityMappings.GetByChildEntity(ctx, link.MainAccountID, link.ChildAccountID, category, childEntityID)
		if err != nil {
			return nil, err
		}
		if mapping == nil {
			return nil, fmt.Errorf("%s %s not mapped to main account: %w", category, childEntityID, domain.ErrMappingMissing)
		}

		entry := map[string]any{
			"assortment": map[string]any{"meta": domain.EntityMeta(metaType, mapping.MainEntityID)},
			"quantity":   position["quantity"],
			"price":      position["price"],
		}
		if discount, ok := position["discount"]; ok {
			entry["discount"] = discount
		}
		if vat, ok := position["vat"]; ok {
			entry["vat"] = vat
		}
		translated = append(translated, entry)
	}
	return translated, nil
}

func refFromHref(href, entityType string) map[string]any {
	return map[string]any{"meta": domain.Meta{
		Href:      href,
		Type:      entityType,
		MediaType: "application/json",
	}}
}
