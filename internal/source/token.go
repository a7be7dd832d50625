package source

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// RefreshFunc obtains a fresh provider token and its expiry.
type RefreshFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// CredentialCache holds a provider auth token with time-based expiry. It is
// an explicit value owned by the process context and passed to whichever
// adapter needs authenticated calls; expiry is a pure comparison of current
// time against expiresAt.
type CredentialCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	refresh   RefreshFunc

	// now is swappable for tests.
	now func() time.Time
}

// NewCredentialCache creates a cache that refreshes via fn on expiry.
func NewCredentialCache(fn RefreshFunc) *CredentialCache {
	return &CredentialCache{refresh: fn, now: time.Now}
}

// expirySlack refreshes slightly early so a token never expires mid-request.
const expirySlack = 30 * time.Second

// Token returns a valid token, refreshing when the cached one has expired.
func (c *CredentialCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Add(expirySlack).Before(c.expiresAt) {
		return c.token, nil
	}

	if c.refresh == nil {
		return "", eris.New("source: credential cache has no refresh function")
	}

	token, expiresAt, err := c.refresh(ctx)
	if err != nil {
		return "", eris.Wrap(err, "source: refresh provider token")
	}
	c.token = token
	c.expiresAt = expiresAt
	return token, nil
}

// Invalidate drops the cached token, forcing a refresh on next use. Called
// after a provider rejects the token before its advertised expiry.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}
