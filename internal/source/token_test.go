package source

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialCache_RefreshOnceWhileValid(t *testing.T) {
	refreshes := 0
	cc := NewCredentialCache(func(ctx context.Context) (string, time.Time, error) {
		refreshes++
		return "tok-1", time.Now().Add(time.Hour), nil
	})

	for range 3 {
		tok, err := cc.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok-1", tok)
	}
	assert.Equal(t, 1, refreshes)
}

func TestCredentialCache_RefreshesAfterExpiry(t *testing.T) {
	now := time.Date(2024, 11, 3, 7, 0, 0, 0, time.UTC)
	refreshes := 0
	cc := NewCredentialCache(func(ctx context.Context) (string, time.Time, error) {
		refreshes++
		return "tok", now.Add(10 * time.Minute), nil
	})
	cc.now = func() time.Time { return now }

	_, err := cc.Token(context.Background())
	require.NoError(t, err)

	// Advance past expiry; the next call must refresh.
	now = now.Add(11 * time.Minute)
	_, err = cc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, refreshes)
}

func TestCredentialCache_RefreshWithinSlackWindow(t *testing.T) {
	now := time.Date(2024, 11, 3, 7, 0, 0, 0, time.UTC)
	refreshes := 0
	cc := NewCredentialCache(func(ctx context.Context) (string, time.Time, error) {
		refreshes++
		return "tok", now.Add(time.Minute), nil
	})
	cc.now = func() time.Time { return now }

	_, err := cc.Token(context.Background())
	require.NoError(t, err)

	// 45s later the token is technically alive but inside the slack
	// window, so it refreshes rather than risking mid-request expiry.
	now = now.Add(45 * time.Second)
	_, err = cc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, refreshes)
}

func TestCredentialCache_Invalidate(t *testing.T) {
	refreshes := 0
	cc := NewCredentialCache(func(ctx context.Context) (string, time.Time, error) {
		refreshes++
		return "tok", time.Now().Add(time.Hour), nil
	})

	_, err := cc.Token(context.Background())
	require.NoError(t, err)
	cc.Invalidate()
	_, err = cc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, refreshes)
}

func TestCredentialCache_RefreshFailure(t *testing.T) {
	cc := NewCredentialCache(func(ctx context.Context) (string, time.Time, error) {
		return "", time.Time{}, eris.New("provider auth is down")
	})
	_, err := cc.Token(context.Background())
	assert.Error(t, err)
}
