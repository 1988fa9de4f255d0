package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mattjoyce/gwiz/internal/auth"
	"github.com/mattjoyce/gwiz/internal/dispatch"
)

func newScopedServer(t *testing.T) *Server {
	t.Helper()
	dc := dispatch.NewContext(dispatch.Options{Machine: "bench", StartPaused: true})
	return New(Config{
		APIKey: testKey,
		Tokens: []auth.TokenConfig{
			{Token: "viewer-token", Scopes: []string{auth.ScopeRead}},
			{Token: "driver-token", Scopes: []string{auth.ScopeControl}},
		},
	}, dc, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAuthScopes(t *testing.T) {
	t.Parallel()
	s := newScopedServer(t)

	tests := []struct {
		name   string
		token  string
		method string
		path   string
		want   int
	}{
		{"no token", "", http.MethodGet, "/snapshot", http.StatusUnauthorized},
		{"unknown token", "nope", http.MethodGet, "/snapshot", http.StatusUnauthorized},
		{"viewer reads", "viewer-token", http.MethodGet, "/snapshot", http.StatusOK},
		{"viewer metrics", "viewer-token", http.MethodGet, "/metrics", http.StatusOK},
		{"viewer cannot drive", "viewer-token", http.MethodPost, "/control/run", http.StatusForbidden},
		{"driver drives", "driver-token", http.MethodPost, "/control/run", http.StatusOK},
		{"driver reads", "driver-token", http.MethodGet, "/snapshot", http.StatusOK},
		{"operator key drives", testKey, http.MethodPost, "/control/pause", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("%s %s with %q: status %d, want %d (%s)", tt.method, tt.path, tt.token, rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}
