package webhook

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// tokenExpiryBuffer is subtracted from the advertised lifetime so a token is
// never sent right before it expires.
const tokenExpiryBuffer = 1 * time.Minute

// OAuthConfig holds OAuth2 client-credentials settings for the webhook.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
}

// tokenResponse represents the OAuth2 token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// tokenCache caches a client-credentials access token and refreshes it
// before expiry. Safe for concurrent use.
type tokenCache struct {
	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
	cfg         OAuthConfig
	httpClient  *http.Client
}

func newTokenCache(cfg OAuthConfig, httpClient *http.Client) *tokenCache {
	return &tokenCache{
		cfg:        cfg,
		httpClient: httpClient,
	}
}

// Token returns a valid access token, fetching a new one when needed.
func (tc *tokenCache) Token(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.accessToken != "" && time.Now().Before(tc.expiresAt) {
		return tc.accessToken, nil
	}

	return tc.refresh(ctx)
}

// Invalidate drops the cached token; the next Token call fetches a new one.
func (tc *tokenCache) Invalidate() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.accessToken = ""
	tc.expiresAt = time.Time{}
}

// refresh acquires a new token. The caller must hold tc.mu.
func (tc *tokenCache) refresh(ctx context.Context) (string, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {tc.cfg.ClientID},
		"client_secret": {tc.cfg.ClientSecret},
	}
	if tc.cfg.Scope != "" {
		data.Set("scope", tc.cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tc.cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tc.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	lifetime := time.Duration(tokenResp.ExpiresIn)*time.Second - tokenExpiryBuffer
	if lifetime < 0 {
		lifetime = 0
	}
	tc.accessToken = tokenResp.AccessToken
	tc.expiresAt = time.Now().Add(lifetime)

	return tc.accessToken, nil
}
