package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/njmarshall/techstream/internal/logging"
)

// TokenSource provides OAuth bearer tokens for authenticated endpoints.
// Implementations return ("", nil) when no credentials are configured;
// callers fall back to public endpoints in that case.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

const redditTokenURL = "https://www.reddit.com/api/v1/access_token"

// RedditTokenSource acquires app-only tokens via the client-credentials
// grant and caches them until shortly before expiry.
type RedditTokenSource struct {
	clientID     string
	clientSecret string
	userAgent    string
	client       *http.Client
	tokenURL     string // overridable for tests

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewRedditTokenSource creates a token source. Empty credentials are
// allowed; Token then reports no token without error.
func NewRedditTokenSource(clientID, clientSecret, userAgent string) *RedditTokenSource {
	return &RedditTokenSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		userAgent:    userAgent,
		client:       &http.Client{Timeout: 10 * time.Second},
		tokenURL:     redditTokenURL,
	}
}

// Token returns a cached token or fetches a fresh one.
func (t *RedditTokenSource) Token(ctx context.Context) (string, error) {
	if t.clientID == "" || t.clientSecret == "" {
		return "", nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Now().Before(t.expiry) {
		return t.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(t.clientID, t.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty token")
	}

	t.token = body.AccessToken
	// Refresh a minute early so in-flight requests never carry a stale token.
	t.expiry = time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - time.Minute)
	logging.Debug("reddit token refreshed", "expires_in", body.ExpiresIn)
	return t.token, nil
}
