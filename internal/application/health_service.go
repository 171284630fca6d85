package application

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/ports"
)

// requiredRegistrations lists the (entity type, action) pairs an account must
// have registered for the sync layer to see every relevant change.
var requiredRegistrations = map[domain.AccountRole][]struct {
	EntityType string
	Action     domain.WebhookAction
}{
	domain.RoleMain: {
		{"product", domain.ActionCreate}, {"product", domain.ActionUpdate}, {"product", domain.ActionDelete},
		{"variant", domain.ActionCreate}, {"variant", domain.ActionUpdate}, {"variant", domain.ActionDelete},
		{"bundle", domain.ActionCreate}, {"bundle", domain.ActionUpdate}, {"bundle", domain.ActionDelete},
		{"service", domain.ActionCreate}, {"service", domain.ActionUpdate}, {"service", domain.ActionDelete},
		{"productfolder", domain.ActionCreate}, {"productfolder", domain.ActionUpdate}, {"productfolder", domain.ActionDelete},
	},
	domain.RoleChild: {
		{"customerorder", domain.ActionCreate}, {"customerorder", domain.ActionUpdate},
	},
}

// HealthService watches the external webhook registrations the whole pipeline
// depends on: it verifies they still exist on the platform, reports their
// state, and recreates the ones that silently disappeared.
type HealthService struct {
	accounts     ports.AccountRepository
	webhookStats ports.WebhookStatRepository
	webhookLogs  ports.WebhookLogRepository
	clients      ports.ClientPool
	endpointURL  string
	logger       zerolog.Logger
}

// NewHealthService creates the monitor. endpointURL is the public webhook
// receiver address registered on the platform.
func NewHealthService(
	accounts ports.AccountRepository,
	webhookStats ports.WebhookStatRepository,
	webhookLogs ports.WebhookLogRepository,
	clients ports.ClientPool,
	endpointURL string,
	logger zerolog.Logger,
) *HealthService {
	return &HealthService{
		accounts:     accounts,
		webhookStats: webhookStats,
		webhookLogs:  webhookLogs,
		clients:      clients,
		endpointURL:  endpointURL,
		logger:       logger,
	}
}

// EnsureRegistrations creates the required platform registrations for an
// account and seeds their stat records. Already-present registrations are
// adopted, not duplicated. Called on account activation.
func (s *HealthService) EnsureRegistrations(ctx context.Context, accountID string) error {
	account, err := s.accounts.GetByAccountID(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("unknown account %s", accountID)
	}

	existing, err := s.listPlatformRegistrations(ctx, accountID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, want := range requiredRegistrations[account.Role] {
		registrationID, found := existing[registrationKey(want.EntityType, want.Action)]
		if !found {
			registrationID, err = s.register(ctx, accountID, want.EntityType, want.Action)
			if err != nil {
				return fmt.Errorf("failed to register %s %s: %w", want.EntityType, want.Action, err)
			}
		}

		stat, err := s.webhookStats.Get(ctx, accountID, want.EntityType, want.Action)
		if err != nil {
			return err
		}
		if stat == nil {
			stat = &domain.WebhookStat{
				AccountID:  accountID,
				EntityType: want.EntityType,
				Action:     want.Action,
				CreatedAt:  now,
			}
		}
		stat.RegistrationID = registrationID
		stat.Active = true
		stat.FailedChecks = 0
		stat.LastError = ""
		stat.UpdatedAt = now
		if err := s.webhookStats.Save(ctx, stat); err != nil {
			return err
		}
	}
	s.logger.Info().
		Str("accountId", accountID).
		Str("role", string(account.Role)).
		Int("registrations", len(requiredRegistrations[account.Role])).
		Msg("Webhook registrations ensured")
	return nil
}

// CheckRegistrations verifies every tracked registration still exists on the
// platform and is enabled, updating the failed-check counters that drive the
// health classification.
func (s *HealthService) CheckRegistrations(ctx context.Context, accountID string) error {
	stats, err := s.webhookStats.List(ctx, accountID)
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		return nil
	}

	existing, err := s.listPlatformRegistrations(ctx, accountID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, stat := range stats {
		stat.LastCheckAt = &now
		stat.UpdatedAt = now
		if _, found := existing[registrationKey(stat.EntityType, stat.Action)]; found {
			stat.Active = true
			stat.FailedChecks = 0
			stat.LastSuccessAt = &now
			stat.LastError = ""
		} else {
			stat.Active = false
			stat.FailedChecks++
			stat.LastError = "registration not found on platform"
			s.logger.Warn().
				Str("accountId", accountID).
				Str("entityType", stat.EntityType).
				Str("action", string(stat.Action)).
				Int("failedChecks", stat.FailedChecks).
				Msg("Webhook registration missing")
		}
		if err := s.webhookStats.Save(ctx, stat); err != nil {
			return err
		}
	}
	return nil
}

// Report aggregates the tracked registrations of one account into a single
// health view with a 24h delivery success rate.
func (s *HealthService) Report(ctx context.Context, accountID string) (*domain.HealthReport, error) {
	stats, err := s.webhookStats.List(ctx, accountID)
	if err != nil {
		return nil, err
	}

	report := &domain.HealthReport{AccountID: accountID, Overall: domain.HealthHealthy}
	var received, failed int64
	for _, stat := range stats {
		report.Total++
		if stat.Active {
			report.Active++
		} else {
			report.Inactive++
		}
		received += stat.ReceivedCount
		failed += stat.FailedCount

		switch stat.Health() {
		case domain.HealthHealthy:
			report.Healthy++
		case domain.HealthDegraded:
			report.Degraded++
			report.Problems = append(report.Problems, fmt.Sprintf("%s %s: degraded (%d failed checks)", stat.EntityType, stat.Action, stat.FailedChecks))
		case domain.HealthCritical:
			report.Critical++
			report.Problems = append(report.Problems, fmt.Sprintf("%s %s: registration lost", stat.EntityType, stat.Action))
		}
	}
	switch {
	case report.Critical > 0:
		report.Overall = domain.HealthCritical
	case report.Degraded > 0:
		report.Overall = domain.HealthDegraded
	}
	if received > 0 {
		report.LifetimeFailureRate = float64(failed) / float64(received)
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	total, err := s.webhookLogs.CountAllSince(ctx, accountID, since)
	if err != nil {
		return nil, err
	}
	completed, err := s.webhookLogs.CountSince(ctx, accountID, domain.WebhookCompleted, since)
	if err != nil {
		return nil, err
	}
	if total > 0 {
		report.SuccessRate24h = float64(completed) / float64(total)
	} else {
		report.SuccessRate24h = 1
	}
	return report, nil
}

// AutoHeal recreates every critical registration of an account. Failures are
// accumulated per registration; one stubborn registration never stops the
// rest from healing.
func (s *HealthService) AutoHeal(ctx context.Context, accountID string) (*domain.HealResult, error) {
	stats, err := s.webhookStats.List(ctx, accountID)
	if err != nil {
		return nil, err
	}

	result := &domain.HealResult{AccountID: accountID}
	now := time.Now().UTC()
	for _, stat := range stats {
		if stat.Health() != domain.HealthCritical {
			continue
		}
		key := registrationKey(stat.EntityType, stat.Action)

		// A disabled registration still occupies its (type, action) slot on
		// the platform; it has to go before a fresh one is created.
		if err := s.deleteRegistration(ctx, accountID, stat.RegistrationID); err != nil {
			result.Failed = append(result.Failed, key)
			s.logger.Error().Err(err).Str("accountId", accountID).Str("registration", key).Msg("Auto-heal could not remove stale registration")
			continue
		}

		registrationID, err := s.register(ctx, accountID, stat.EntityType, stat.Action)
		if err != nil {
			result.Failed = append(result.Failed, key)
			s.logger.Error().Err(err).Str("accountId", accountID).Str("registration", key).Msg("Auto-heal failed")
			continue
		}

		stat.RegistrationID = registrationID
		stat.Active = true
		stat.FailedChecks = 0
		stat.LastError = ""
		stat.LastSuccessAt = &now
		stat.UpdatedAt = now
		if err := s.webhookStats.Save(ctx, stat); err != nil {
			result.Failed = append(result.Failed, key)
			continue
		}
		result.Healed = append(result.Healed, key)
		s.logger.Info().Str("accountId", accountID).Str("registration", key).Msg("Webhook registration healed")
	}
	return result, nil
}

// listPlatformRegistrations returns the account's registrations pointed at
// our endpoint, keyed by entity type and action.
func (s *HealthService) listPlatformRegistrations(ctx context.Context, accountID string) (map[string]string, error) {
	client, err := s.clients.GetClient(ctx, accountID)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("limit", "100")
	page, err := client.Get(ctx, "/entity/webhook", query)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook registrations: %w", err)
	}

	registrations := map[string]string{}
	rows, _ := page["rows"].([]any)
	for _, item := range rows {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rowURL, _ := row["url"].(string)
		if rowURL != s.endpointURL {
			continue
		}
		if enabled, ok := row["enabled"].(bool); ok && !enabled {
			continue
		}
		entityType, _ := row["entityType"].(string)
		action, _ := row["action"].(string)
		registrations[registrationKey(entityType, domain.WebhookAction(action))] = entityID(row)
	}
	return registrations, nil
}

// deleteRegistration removes a registration from the platform. A 404 means
// it is already gone, which is the desired end state.
func (s *HealthService) deleteRegistration(ctx context.Context, accountID, registrationID string) error {
	if registrationID == "" {
		return nil
	}
	client, err := s.clients.GetClient(ctx, accountID)
	if err != nil {
		return err
	}
	if err := client.Delete(ctx, "/entity/webhook/"+registrationID); err != nil && !domain.IsNotFound(err) {
		return err
	}
	return nil
}

func (s *HealthService) register(ctx context.Context, accountID, entityType string, action domain.WebhookAction) (string, error) {
	client, err := s.clients.GetClient(ctx, accountID)
	if err != nil {
		return "", err
	}
	body := map[string]any{
		"url":        s.endpointURL,
		"entityType": entityType,
		"action":     string(action),
	}
	if action == domain.ActionUpdate {
		body["diffType"] = "FIELDS"
	}
	created, err := client.Post(ctx, "/entity/webhook", body)
	if err != nil {
		return "", err
	}
	return entityID(created), nil
}

func registrationKey(entityType string, action domain.WebhookAction) string {
	return entityType + ":" + string(action)
}
