package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/milestone-prints/raceday/internal/resilience"
)

const (
	requestTimeout = 30 * time.Second

	// maxBodyBytes bounds how much of a provider response is read; results
	// pages are small and a runaway body should not exhaust memory.
	maxBodyBytes = 4 << 20
)

// userAgent identifies us politely to result providers.
const userAgent = "raceday-research/1.0 (order research; contact: support@milestone-prints.com)"

// NewEnv builds the shared adapter environment with a sane default HTTP
// client and a global outbound rate limit.
func NewEnv(browser BrowserRunner, creds *CredentialCache, rps float64) *Env {
	if rps <= 0 {
		rps = 2
	}
	return &Env{
		HTTP:    &http.Client{Timeout: requestTimeout},
		Browser: browser,
		Creds:   creds,
		Limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// get performs a rate-limited GET and returns the body. Non-2xx responses
// become errors, wrapped as transient when the status warrants a retry.
func (e *Env) get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if e.Limiter != nil {
		if err := e.Limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "source: rate limit wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "source: build request")
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.HTTP.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "source: request"), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "source: read body"), resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := eris.Errorf("source: %s returned status %d", url, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	return body, nil
}

// unmarshalOutcomeBody decodes a search-response body kept around as the
// raw audit record.
func unmarshalOutcomeBody(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "source: decode body")
	}
	return nil
}

// getJSON performs a GET and decodes the JSON body into out.
func (e *Env) getJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	body, err := e.get(ctx, url, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "source: decode response from %s", url)
	}
	return nil
}
