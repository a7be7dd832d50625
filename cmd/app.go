package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/milestone-prints/raceday/internal/browser"
	"github.com/milestone-prints/raceday/internal/config"
	"github.com/milestone-prints/raceday/internal/research"
	"github.com/milestone-prints/raceday/internal/source"
	"github.com/milestone-prints/raceday/internal/store"
	"github.com/milestone-prints/raceday/internal/weather"
)

// appEnv bundles the process-wide collaborators built once per command.
type appEnv struct {
	Store        store.Store
	Registry     *source.Registry
	Orchestrator *research.Orchestrator

	browserSession *browser.Session
}

// initApp opens the store, builds the adapter environment and wires the
// orchestrator. Callers must Close.
func initApp(ctx context.Context) (*appEnv, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	env := &appEnv{Store: st}

	var runner source.BrowserRunner
	if cfg.Browser.Enabled {
		env.browserSession = browser.NewSession(browser.Config{
			NavigationTimeout: time.Duration(cfg.Browser.NavigationTimeoutSecs) * time.Second,
		})
		runner = env.browserSession
	}

	var creds *source.CredentialCache
	if cfg.Sources.NYRRAppID != "" && cfg.Sources.NYRRAppKey != "" {
		creds = source.NewCredentialCache(nyrrTokenRefresher(cfg.Sources))
	}

	srcEnv := source.NewEnv(runner, creds, cfg.Sources.RequestsPerSecond)
	registry, err := source.NewRegistry(srcEnv)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Registry = registry

	var enricher research.Enricher
	if cfg.Weather.Enabled {
		enricher = weather.New()
	}

	env.Orchestrator = research.New(st, registry, enricher, research.Options{
		Concurrency:    cfg.Batch.MaxConcurrentOrders,
		AdapterTimeout: time.Duration(cfg.Sources.AdapterTimeoutSecs) * time.Second,
	})
	return env, nil
}

// Close releases the browser session and the store.
func (e *appEnv) Close() {
	if e.browserSession != nil {
		if err := e.browserSession.Close(); err != nil {
			zap.L().Warn("close browser session", zap.Error(err))
		}
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver (RACEDAY_STORE_DATABASE_URL)")
		}
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case "sqlite", "":
		st, err := store.NewSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// nyrrTokenRefresher exchanges the configured app credentials for a bearer
// token at the NYRR token endpoint.
func nyrrTokenRefresher(sc config.SourcesConfig) source.RefreshFunc {
	client := &http.Client{Timeout: 15 * time.Second}

	return func(ctx context.Context) (string, time.Time, error) {
		payload, err := json.Marshal(map[string]string{
			"appId":  sc.NYRRAppID,
			"appKey": sc.NYRRAppKey,
		})
		if err != nil {
			return "", time.Time{}, eris.Wrap(err, "marshal token request")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sc.NYRRTokenURL, bytes.NewReader(payload))
		if err != nil {
			return "", time.Time{}, eris.Wrap(err, "build token request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return "", time.Time{}, eris.Wrap(err, "request provider token")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return "", time.Time{}, eris.Wrap(err, "read token response")
		}
		if resp.StatusCode != http.StatusOK {
			return "", time.Time{}, eris.Errorf("token endpoint returned status %d", resp.StatusCode)
		}

		var tok struct {
			Token     string `json:"token"`
			ExpiresIn int    `json:"expiresIn"`
		}
		if err := json.Unmarshal(body, &tok); err != nil {
			return "", time.Time{}, eris.Wrap(err, "decode token response")
		}
		if tok.Token == "" {
			return "", time.Time{}, eris.New("token endpoint returned an empty token")
		}

		expiresIn := tok.ExpiresIn
		if expiresIn <= 0 {
			expiresIn = 3600
		}
		return tok.Token, time.Now().Add(time.Duration(expiresIn) * time.Second), nil
	}
}
