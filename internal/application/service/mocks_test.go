package service

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"

	"github.com/garyjia/logistics-console/internal/domain/entity"
	"github.com/garyjia/logistics-console/internal/domain/event"
)

type backendCall struct {
	Method   string
	Resource string
	Query    url.Values
	Body     any
}

// mockBackend implements port.Backend with per-method funcs and records every call
type mockBackend struct {
	GetFunc    func(ctx context.Context, resource string, query url.Values) (json.RawMessage, error)
	PostFunc   func(ctx context.Context, resource string, body any) (json.RawMessage, error)
	PutFunc    func(ctx context.Context, resource string, body any) (json.RawMessage, error)
	DeleteFunc func(ctx context.Context, resource string) (json.RawMessage, error)

	mu    sync.Mutex
	calls []backendCall
}

func (m *mockBackend) record(c backendCall) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()
}

func (m *mockBackend) Get(ctx context.Context, resource string, query url.Values) (json.RawMessage, error) {
	m.record(backendCall{Method: "GET", Resource: resource, Query: query})
	if m.GetFunc != nil {
		return m.GetFunc(ctx, resource, query)
	}
	return json.RawMessage("[]"), nil
}

func (m *mockBackend) Post(ctx context.Context, resource string, body any) (json.RawMessage, error) {
	m.record(backendCall{Method: "POST", Resource: resource, Body: body})
	if m.PostFunc != nil {
		return m.PostFunc(ctx, resource, body)
	}
	return json.RawMessage("null"), nil
}

func (m *mockBackend) Put(ctx context.Context, resource string, body any) (json.RawMessage, error) {
	m.record(backendCall{Method: "PUT", Resource: resource, Body: body})
	if m.PutFunc != nil {
		return m.PutFunc(ctx, resource, body)
	}
	return json.RawMessage("null"), nil
}

func (m *mockBackend) Delete(ctx context.Context, resource string) (json.RawMessage, error) {
	m.record(backendCall{Method: "DELETE", Resource: resource})
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, resource)
	}
	return json.RawMessage("null"), nil
}

func (m *mockBackend) Calls() []backendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]backendCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *mockBackend) CallsTo(method, resource string) []backendCall {
	var out []backendCall
	for _, c := range m.Calls() {
		if c.Method == method && c.Resource == resource {
			out = append(out, c)
		}
	}
	return out
}

// routes maps "METHOD resource" to a canned response
type routes map[string]string

func (r routes) get(ctx context.Context, resource string, _ url.Values) (json.RawMessage, error) {
	if body, ok := r["GET "+resource]; ok {
		return json.RawMessage(body), nil
	}
	return json.RawMessage("[]"), nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockPublisher) DispatchAsync(_ context.Context, evt *event.Event) {
	m.mu.Lock()
	m.events = append(m.events, evt)
	m.mu.Unlock()
}

func (m *mockPublisher) OfType(t event.Type) []*event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*event.Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type mockIdentity struct {
	identity *entity.Identity
	err      error
}

func (m *mockIdentity) Current(context.Context) (*entity.Identity, error) {
	return m.identity, m.err
}

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

func bodyJSON(body any) string {
	b, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return string(b)
}
