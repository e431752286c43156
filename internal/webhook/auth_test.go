package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"
)

func TestTokenCache_AcquiresToken(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if r.FormValue("grant_type") != "client_credentials" {
			t.Errorf("grant_type: got %q, want %q", r.FormValue("grant_type"), "client_credentials")
		}
		if r.FormValue("client_id") != "test-client-id" {
			t.Errorf("client_id: got %q, want %q", r.FormValue("client_id"), "test-client-id")
		}
		if r.FormValue("client_secret") != "test-client-secret" {
			t.Errorf("client_secret: got %q, want %q", r.FormValue("client_secret"), "test-client-secret")
		}
		if r.FormValue("scope") != "webhook.write" {
			t.Errorf("scope: got %q, want %q", r.FormValue("scope"), "webhook.write")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "test-access-token", ExpiresIn: 3600})
	}))
	defer server.Close()

	tc := newTokenCache(OAuthConfig{
		TokenURL:     server.URL,
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		Scope:        "webhook.write",
	}, server.Client())

	token, err := tc.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "test-access-token" {
		t.Errorf("token: got %q, want %q", token, "test-access-token")
	}
}

func TestTokenCache_CachesAndInvalidates(t *testing.T) {
	t.Parallel()

	var callCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "cached-token", ExpiresIn: 3600})
	}))
	defer server.Close()

	tc := newTokenCache(OAuthConfig{TokenURL: server.URL}, server.Client())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tc.Token(context.Background()); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := callCount.Load(); got != 1 {
		t.Errorf("token requests: got %d, want 1", got)
	}

	tc.Invalidate()
	if _, err := tc.Token(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := callCount.Load(); got != 2 {
		t.Errorf("token requests after Invalidate: got %d, want 2", got)
	}
}

func TestTokenCache_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "invalid_client", http.StatusUnauthorized)
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("{not json"))
			},
		},
		{
			name: "missing token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"expires_in":3600}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			tc := newTokenCache(OAuthConfig{TokenURL: server.URL}, server.Client())
			if _, err := tc.Token(context.Background()); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
