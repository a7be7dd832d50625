// Package source routes race names to per-venue result-source adapters and
// implements one adapter per supported venue. Venue result sites are
// volatile third parties: every adapter catches its own provider failures
// and collapses them into the four-state research outcome rather than
// letting errors escape its search path.
package source

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/milestone-prints/raceday/internal/model"
)

// RaceInfo holds the race-tier facts an adapter resolves once per year.
// Values must be stable across repeated calls for the same year.
type RaceInfo struct {
	RaceDate        time.Time
	Location        string
	EventTypes      []string
	ResultsURL      string
	ResultsSiteType model.ResultsSiteType
}

// Outcome is the result of a runner search, already collapsed to the
// four-state enum. Candidates is populated for ambiguous outcomes so the
// operator can adjudicate.
type Outcome struct {
	Status       model.ResearchStatus
	BibNumber    string
	OfficialTime string
	OfficialPace string
	EventType    string
	Notes        string
	RawRecord    []byte
	Candidates   []model.CandidateMatch
}

// Adapter is the per-venue implementation of race-info resolution and
// runner search. Adapters are cheap, stateless apart from their construction
// year, and built fresh per request by the registry.
type Adapter interface {
	// Venue returns the canonical venue name the adapter serves.
	Venue() string

	// FetchRaceInfo resolves race-level facts for the adapter's year.
	FetchRaceInfo(ctx context.Context) (*RaceInfo, error)

	// SearchRunner looks the runner up in the venue's results. Provider
	// failures never propagate: they surface as Status == error with the
	// failure message in Notes.
	SearchRunner(ctx context.Context, name string) Outcome
}

// Env carries the shared collaborators adapters need. One Env is built at
// process start and reused for every adapter construction.
type Env struct {
	HTTP    *http.Client
	Browser BrowserRunner
	Creds   *CredentialCache

	// Limiter throttles outbound provider calls so batch research cannot
	// hammer a results site.
	Limiter *rate.Limiter
}

// BrowserRunner abstracts the headless-browser capability used by venues
// that expose no structured API. Implemented by internal/browser.
type BrowserRunner interface {
	// SearchResults navigates the venue's public results page, runs the
	// search and returns the scraped result rows.
	SearchResults(ctx context.Context, pageURL, runnerName string) ([]model.CandidateMatch, error)
}

// errorOutcome builds the error-state outcome carried back to the
// orchestrator when a provider call fails.
func errorOutcome(err error) Outcome {
	return Outcome{
		Status: model.ResearchError,
		Notes:  err.Error(),
	}
}

// notFoundOutcome is the shared empty-result outcome.
func notFoundOutcome(name string) Outcome {
	return Outcome{
		Status: model.ResearchNotFound,
		Notes:  "no results matching " + name,
	}
}
