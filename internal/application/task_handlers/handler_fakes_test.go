package task_handlers

import (
	"context"
	"net/url"
	"strings"

	"moysklad-sync-layer/internal/domain"
	"moysklad-sync-layer/internal/ports"
)

type stubChildLinks struct {
	link *domain.ChildLink
}

func (r *stubChildLinks) Save(context.Context, *domain.ChildLink) error { return nil }

func (r *stubChildLinks) GetByChild(_ context.Context, childAccountID string) (*domain.ChildLink, error) {
	if r.link != nil && r.link.ChildAccountID == childAccountID {
		return r.link, nil
	}
	return nil, nil
}

func (r *stubChildLinks) ListByMain(context.Context, string) ([]*domain.ChildLink, error) {
	if r.link == nil {
		return nil, nil
	}
	return []*domain.ChildLink{r.link}, nil
}

type stubEntityMappings struct {
	mappings []*domain.EntityMapping
	saved    []*domain.EntityMapping
}

func (r *stubEntityMappings) Get(_ context.Context, main, child string, category domain.EntityCategory, mainEntityID string) (*domain.EntityMapping, error) {
	for _, m := range r.mappings {
		if m.MainAccountID == main && m.ChildAccountID == child && m.Category == category && m.MainEntityID == mainEntityID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *stubEntityMappings) GetByChildEntity(_ context.Context, main, child string, category domain.EntityCategory, childEntityID string) (*domain.EntityMapping, error) {
	for _, m := range r.mappings {
		if m.MainAccountID == main && m.ChildAccountID == child && m.Category == category && m.ChildEntityID == childEntityID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *stubEntityMappings) Save(_ context.Context, m *domain.EntityMapping) error {
	r.mappings = append(r.mappings, m)
	r.saved = append(r.saved, m)
	return nil
}

func (r *stubEntityMappings) Delete(_ context.Context, id string) error {
	kept := r.mappings[:0]
	for _, m := range r.mappings {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	r.mappings = kept
	return nil
}

type stubNameMappings struct {
	mappings []*domain.NameMapping
}

func (r *stubNameMappings) GetByName(_ context.Context, main, child string, kind domain.NameMappingKind, name string) (*domain.NameMapping, error) {
	for _, m := range r.mappings {
		if m.MainAccountID == main && m.ChildAccountID == child && m.Kind == kind && m.Name == name {
			return m, nil
		}
	}
	return nil, nil
}

func (r *stubNameMappings) ListByKind(context.Context, string, string, domain.NameMappingKind) ([]*domain.NameMapping, error) {
	return nil, nil
}

func (r *stubNameMappings) Save(context.Context, *domain.NameMapping) error { return nil }

type stubCall struct {
	Method string
	Path   string
	Body   any
}

type stubClient struct {
	responses map[string]map[string]any
	errors    map[string]error
	calls     []stubCall
}

func newStubClient() *stubClient {
	return &stubClient{
		responses: map[string]map[string]any{},
		errors:    map[string]error{},
	}
}

func (c *stubClient) on(method, path string, response map[string]any) {
	c.responses[method+" "+path] = response
}

func (c *stubClient) fail(method, path string, err error) {
	c.errors[method+" "+path] = err
}

func (c *stubClient) record(method, path string, body any) (map[string]any, error) {
	c.calls = append(c.calls, stubCall{Method: method, Path: path, Body: body})
	if err, ok := c.errors[method+" "+path]; ok {
		return nil, err
	}
	if response, ok := c.responses[method+" "+path]; ok {
		return response, nil
	}
	return map[string]any{}, nil
}

func (c *stubClient) callsTo(method, pathPrefix string) []stubCall {
	var out []stubCall
	for _, call := range c.calls {
		if call.Method == method && strings.HasPrefix(call.Path, pathPrefix) {
			out = append(out, call)
		}
	}
	return out
}

func (c *stubClient) Get(_ context.Context, path string, _ url.Values) (map[string]any, error) {
	return c.record("GET", path, nil)
}

func (c *stubClient) Post(_ context.Context, path string, body any) (map[string]any, error) {
	return c.record("POST", path, body)
}

func (c *stubClient) Put(_ context.Context, path string, body any) (map[string]any, error) {
	return c.record("PUT", path, body)
}

func (c *stubClient) Delete(_ context.Context, path string) error {
	_, err := c.record("DELETE", path, nil)
	return err
}

func (c *stubClient) Download(_ context.Context, href string) ([]byte, error) {
	if _, err := c.record("DOWNLOAD", href, nil); err != nil {
		return nil, err
	}
	return []byte("bytes"), nil
}

type stubPool struct {
	clients map[string]*stubClient
}

func newStubPool() *stubPool {
	return &stubPool{clients: map[string]*stubClient{}}
}

func (p *stubPool) client(accountID string) *stubClient {
	if c, ok := p.clients[accountID]; ok {
		return c
	}
	c := newStubClient()
	p.clients[accountID] = c
	return c
}

func (p *stubPool) GetClient(_ context.Context, accountID string) (ports.PlatformClient, error) {
	return p.client(accountID), nil
}
