package application

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/ports"
)

// In-memory stand-ins for the persistence and platform ports. Shared by the
// service tests in this package.

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]string{}}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.entries[key]
	return value, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

type fakeNameMappings struct {
	mappings map[string]*domain.NameMapping
	getCalls int
}

func newFakeNameMappings() *fakeNameMappings {
	return &fakeNameMappings{mappings: map[string]*domain.NameMapping{}}
}

func nameKey(main, child string, kind domain.NameMappingKind, name string) string {
	return strings.Join([]string{main, child, string(kind), name}, "|")
}

func (r *fakeNameMappings) add(m *domain.NameMapping) {
	r.mappings[nameKey(m.MainAccountID, m.ChildAccountID, m.Kind, m.Name)] = m
}

func (r *fakeNameMappings) GetByName(_ context.Context, main, child string, kind domain.NameMappingKind, name string) (*domain.NameMapping, error) {
	r.getCalls++
	return r.mappings[nameKey(main, child, kind, name)], nil
}

func (r *fakeNameMappings) ListByKind(_ context.Context, main, child string, kind domain.NameMappingKind) ([]*domain.NameMapping, error) {
	var out []*domain.NameMapping
	for _, m := range r.mappings {
		if m.MainAccountID == main && m.ChildAccountID == child && m.Kind == kind {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeNameMappings) Save(_ context.Context, m *domain.NameMapping) error {
	r.add(m)
	return nil
}

type fakeEntityMappings struct {
	mappings map[string]*domain.EntityMapping
	nextID   int
}

func newFakeEntityMappings() *fakeEntityMappings {
	return &fakeEntityMappings{mappings: map[string]*domain.EntityMapping{}}
}

func entityKey(main, child string, category domain.EntityCategory, mainEntityID string) string {
	return strings.Join([]string{main, child, string(category), mainEntityID}, "|")
}

func (r *fakeEntityMappings) add(m *domain.EntityMapping) {
	if m.ID == "" {
		r.nextID++
		m.ID = fmt.Sprintf("mapping-%d", r.nextID)
	}
	r.mappings[entityKey(m.MainAccountID, m.ChildAccountID, m.Category, m.MainEntityID)] = m
}

func (r *fakeEntityMappings) Get(_ context.Context, main, child string, category domain.EntityCategory, mainEntityID string) (*domain.EntityMapping, error) {
	return r.mappings[entityKey(main, child, category, mainEntityID)], nil
}

func (r *fakeEntityMappings) GetByChildEntity(_ context.Context, main, child string, category domain.EntityCategory, childEntityID string) (*domain.EntityMapping, error) {
	for _, m := range r.mappings {
		if m.MainAccountID == main && m.ChildAccountID == child && m.Category == category && m.ChildEntityID == childEntityID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeEntityMappings) Save(_ context.Context, m *domain.EntityMapping) error {
	r.add(m)
	return nil
}

func (r *fakeEntityMappings) Delete(_ context.Context, id string) error {
	for key, m := range r.mappings {
		if m.ID == id {
			delete(r.mappings, key)
			return nil
		}
	}
	return nil
}

type fakeUpdateLogs struct {
	inserted []*domain.EntityUpdateLog
	updated  []*domain.EntityUpdateLog
	nextID   int
}

func (r *fakeUpdateLogs) Insert(_ context.Context, log *domain.EntityUpdateLog) error {
	r.nextID++
	log.ID = fmt.Sprintf("audit-%d", r.nextID)
	r.inserted = append(r.inserted, log)
	return nil
}

func (r *fakeUpdateLogs) Update(_ context.Context, log *domain.EntityUpdateLog) error {
	r.updated = append(r.updated, log)
	return nil
}

type fakeWebhookLogs struct {
	byRequestID map[string]*domain.WebhookLog
	nextID      int
}

func newFakeWebhookLogs() *fakeWebhookLogs {
	return &fakeWebhookLogs{byRequestID: map[string]*domain.WebhookLog{}}
}

func (r *fakeWebhookLogs) Insert(_ context.Context, log *domain.WebhookLog) error {
	if _, exists := r.byRequestID[log.RequestID]; exists {
		return domain.ErrDuplicateRequest
	}
	r.nextID++
	log.ID = fmt.Sprintf("log-%d", r.nextID)
	r.byRequestID[log.RequestID] = log
	return nil
}

func (r *fakeWebhookLogs) Update(_ context.Context, log *domain.WebhookLog) error {
	r.byRequestID[log.RequestID] = log
	return nil
}

func (r *fakeWebhookLogs) GetByRequestID(_ context.Context, requestID string) (*domain.WebhookLog, error) {
	return r.byRequestID[requestID], nil
}

func (r *fakeWebhookLogs) CountSince(_ context.Context, accountID string, status domain.WebhookStatus, since time.Time) (int64, error) {
	var n int64
	for _, log := range r.byRequestID {
		if log.AccountID == accountID && log.Status == status && log.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (r *fakeWebhookLogs) CountAllSince(_ context.Context, accountID string, since time.Time) (int64, error) {
	var n int64
	for _, log := range r.byRequestID {
		if log.AccountID == accountID && log.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

type fakeWebhookStats struct {
	stats    map[string]*domain.WebhookStat
	received int
	failed   int
}

func newFakeWebhookStats() *fakeWebhookStats {
	return &fakeWebhookStats{stats: map[string]*domain.WebhookStat{}}
}

func statKey(accountID, entityType string, action domain.WebhookAction) string {
	return strings.Join([]string{accountID, entityType, string(action)}, "|")
}

func (r *fakeWebhookStats) add(stat *domain.WebhookStat) {
	r.stats[statKey(stat.AccountID, stat.EntityType, stat.Action)] = stat
}

func (r *fakeWebhookStats) Get(_ context.Context, accountID, entityType string, action domain.WebhookAction) (*domain.WebhookStat, error) {
	return r.stats[statKey(accountID, entityType, action)], nil
}

func (r *fakeWebhookStats) List(_ context.Context, accountID string) ([]*domain.WebhookStat, error) {
	var out []*domain.WebhookStat
	for _, stat := range r.stats {
		if stat.AccountID == accountID {
			out = append(out, stat)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EntityType+string(out[i].Action) < out[j].EntityType+string(out[j].Action)
	})
	return out, nil
}

func (r *fakeWebhookStats) Save(_ context.Context, stat *domain.WebhookStat) error {
	r.add(stat)
	return nil
}

func (r *fakeWebhookStats) IncrementReceived(_ context.Context, accountID, entityType string, action domain.WebhookAction) error {
	r.received++
	if stat, ok := r.stats[statKey(accountID, entityType, action)]; ok {
		stat.ReceivedCount++
	}
	return nil
}

func (r *fakeWebhookStats) IncrementFailed(_ context.Context, accountID, entityType string, action domain.WebhookAction) error {
	r.failed++
	if stat, ok := r.stats[statKey(accountID, entityType, action)]; ok {
		stat.FailedCount++
	}
	return nil
}

type fakeTasks struct {
	tasks []*domain.SyncTask
}

func (r *fakeTasks) Insert(_ context.Context, task *domain.SyncTask) error {
	copied := *task
	r.tasks = append(r.tasks, &copied)
	return nil
}

func (r *fakeTasks) InsertMany(_ context.Context, tasks []*domain.SyncTask) (int, error) {
	for _, task := range tasks {
		copied := *task
		r.tasks = append(r.tasks, &copied)
	}
	return len(tasks), nil
}

func (r *fakeTasks) ClaimNext(_ context.Context) (*domain.SyncTask, error) {
	now := time.Now()
	var best *domain.SyncTask
	for _, task := range r.tasks {
		if task.Status != domain.TaskPending || task.ScheduledAt.After(now) {
			continue
		}
		if best == nil || task.Priority > best.Priority ||
			(task.Priority == best.Priority && task.ScheduledAt.Before(best.ScheduledAt)) {
			best = task
		}
	}
	if best == nil {
		return nil, nil
	}
	best.Status = domain.TaskProcessing
	copied := *best
	return &copied, nil
}

func (r *fakeTasks) Update(_ context.Context, task *domain.SyncTask) error {
	for i, existing := range r.tasks {
		if existing.ID == task.ID {
			copied := *task
			r.tasks[i] = &copied
			return nil
		}
	}
	return fmt.Errorf("task %s not found", task.ID)
}

func (r *fakeTasks) GetByID(_ context.Context, id string) (*domain.SyncTask, error) {
	for _, task := range r.tasks {
		if task.ID == id {
			copied := *task
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeTasks) ListFailed(_ context.Context, accountID string, limit int64) ([]*domain.SyncTask, error) {
	var out []*domain.SyncTask
	for _, task := range r.tasks {
		if task.AccountID == accountID && task.Status == domain.TaskFailed {
			out = append(out, task)
		}
		if int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

type fakeAccounts struct {
	accounts map[string]*domain.Account
}

func newFakeAccounts(accounts ...*domain.Account) *fakeAccounts {
	r := &fakeAccounts{accounts: map[string]*domain.Account{}}
	for _, account := range accounts {
		r.accounts[account.AccountID] = account
	}
	return r
}

func (r *fakeAccounts) Save(_ context.Context, account *domain.Account) error {
	r.accounts[account.AccountID] = account
	return nil
}

func (r *fakeAccounts) GetByAccountID(_ context.Context, accountID string) (*domain.Account, error) {
	return r.accounts[accountID], nil
}

func (r *fakeAccounts) ListActive(_ context.Context) ([]*domain.Account, error) {
	var out []*domain.Account
	for _, account := range r.accounts {
		if account.Active() {
			out = append(out, account)
		}
	}
	return out, nil
}

type fakeChildLinks struct {
	links []*domain.ChildLink
}

func (r *fakeChildLinks) Save(_ context.Context, link *domain.ChildLink) error {
	r.links = append(r.links, link)
	return nil
}

func (r *fakeChildLinks) GetByChild(_ context.Context, childAccountID string) (*domain.ChildLink, error) {
	for _, link := range r.links {
		if link.ChildAccountID == childAccountID && link.Active {
			return link, nil
		}
	}
	return nil, nil
}

func (r *fakeChildLinks) ListByMain(_ context.Context, mainAccountID string) ([]*domain.ChildLink, error) {
	var out []*domain.ChildLink
	for _, link := range r.links {
		if link.MainAccountID == mainAccountID {
			out = append(out, link)
		}
	}
	return out, nil
}

// fakeClient replays scripted responses keyed by "METHOD path" and records
// every call.
type fakeClient struct {
	responses map[string]map[string]any
	errors    map[string]error
	calls     []recordedCall
}

type recordedCall struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		responses: map[string]map[string]any{},
		errors:    map[string]error{},
	}
}

func (c *fakeClient) on(method, path string, response map[string]any) {
	c.responses[method+" "+path] = response
}

func (c *fakeClient) fail(method, path string, err error) {
	c.errors[method+" "+path] = err
}

func (c *fakeClient) callsTo(method, path string) []recordedCall {
	var out []recordedCall
	for _, call := range c.calls {
		if call.Method == method && call.Path == path {
			out = append(out, call)
		}
	}
	return out
}

func (c *fakeClient) do(method, path string, query url.Values, body any) (map[string]any, error) {
	c.calls = append(c.calls, recordedCall{Method: method, Path: path, Query: query, Body: body})
	key := method + " " + path
	if err, ok := c.errors[key]; ok {
		return nil, err
	}
	if response, ok := c.responses[key]; ok {
		return response, nil
	}
	return map[string]any{}, nil
}

func (c *fakeClient) Get(_ context.Context, path string, query url.Values) (map[string]any, error) {
	return c.do("GET", path, query, nil)
}

func (c *fakeClient) Post(_ context.Context, path string, body any) (map[string]any, error) {
	return c.do("POST", path, nil, body)
}

func (c *fakeClient) Put(_ context.Context, path string, body any) (map[string]any, error) {
	return c.do("PUT", path, nil, body)
}

func (c *fakeClient) Delete(_ context.Context, path string) error {
	_, err := c.do("DELETE", path, nil, nil)
	return err
}

func (c *fakeClient) Download(_ context.Context, href string) ([]byte, error) {
	c.calls = append(c.calls, recordedCall{Method: "DOWNLOAD", Path: href})
	return []byte("image-bytes"), nil
}

type fakePool struct {
	clients map[string]*fakeClient
}

func newFakePool() *fakePool {
	return &fakePool{clients: map[string]*fakeClient{}}
}

func (p *fakePool) client(accountID string) *fakeClient {
	if c, ok := p.clients[accountID]; ok {
		return c
	}
	c := newFakeClient()
	p.clients[accountID] = c
	return c
}

func (p *fakePool) GetClient(_ context.Context, accountID string) (ports.PlatformClient, error) {
	return p.client(accountID), nil
}
