package workspace

import (
	"context"
	"net/http"
	"sync"
)

type appKey struct{}

// WithApp marks requests made with ctx as belonging to appID.
func WithApp(ctx context.Context, appID int) context.Context {
	return context.WithValue(ctx, appKey{}, appID)
}

func AppFromContext(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(appKey{}).(int)
	return id, ok
}

// Headers holds the token each unlocked app attaches to its requests.
type Headers struct {
	mu     sync.RWMutex
	tokens map[int]string
}

func NewHeaders() *Headers {
	return &Headers{tokens: make(map[int]string)}
}

func (h *Headers) Set(appID int, token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tokens[appID] = token
}

func (h *Headers) Clear(appID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.tokens, appID)
}

func (h *Headers) ClearAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.tokens)
}

func (h *Headers) Token(appID int) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	tok, ok := h.tokens[appID]
	return tok, ok
}

// Transport attaches the app's bearer token to requests whose context was
// built with WithApp. An Authorization header already on the request wins.
type Transport struct {
	Headers *Headers
	Base    http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	appID, ok := AppFromContext(req.Context())
	if !ok || req.Header.Get("Authorization") != "" {
		return base.RoundTrip(req)
	}
	tok, ok := t.Headers.Token(appID)
	if !ok {
		return base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+tok)
	return base.RoundTrip(clone)
}

// Client returns an http.Client using a Transport over h.
func (h *Headers) Client() *http.Client {
	return &http.Client{Transport: &Transport{Headers: h}}
}
