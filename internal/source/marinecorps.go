package source

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/milestone-prints/raceday/internal/model"
	"github.com/milestone-prints/raceday/internal/resilience"
)

// marineCorpsAdapter drives the venue's interactive results site through a
// headless browser: the page builds its result grid with scripts and offers
// no fetchable endpoint. Same timeout and retry contract as the API
// adapters; the extra latency is the orchestrator's problem, not a special
// case. Race date rule: last Sunday of October.
type marineCorpsAdapter struct {
	env  *Env
	year int
}

const marineCorpsResultsURL = "https://results.marinemarathon.com"

func newMarineCorpsAdapter(env *Env, year int) Adapter {
	return &marineCorpsAdapter{env: env, year: year}
}

func (a *marineCorpsAdapter) Venue() string { return "Marine Corps Marathon" }

func (a *marineCorpsAdapter) FetchRaceInfo(ctx context.Context) (*RaceInfo, error) {
	return &RaceInfo{
		RaceDate:        lastWeekdayOfMonth(a.year, time.October, time.Sunday),
		Location:        "Arlington, VA",
		EventTypes:      []string{"Marathon", "10K"},
		ResultsURL:      fmt.Sprintf("%s/?year=%d", marineCorpsResultsURL, a.year),
		ResultsSiteType: model.SiteTypeBrowser,
	}, nil
}

func (a *marineCorpsAdapter) SearchRunner(ctx context.Context, name string) Outcome {
	if a.env.Browser == nil {
		return errorOutcome(eris.New("marinecorps: browser automation not configured"))
	}

	pageURL := fmt.Sprintf("%s/?year=%d", marineCorpsResultsURL, a.year)

	cfg := resilience.DefaultRetryConfig()
	// Browser sessions are expensive; one retry is enough.
	cfg.MaxAttempts = 2
	cfg.OnRetry = resilience.RetryLogger("marinecorps", "search_runner")

	candidates, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]model.CandidateMatch, error) {
		return a.env.Browser.SearchResults(ctx, pageURL, name)
	})
	if err != nil {
		return errorOutcome(eris.Wrapf(err, "marinecorps: search %d", a.year))
	}

	return classify(a.Venue(), name, "Marathon", candidates, nil)
}
