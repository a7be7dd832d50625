package source

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/milestone-prints/raceday/internal/model"
	"github.com/milestone-prints/raceday/internal/resilience"
)

// bostonAdapter scrapes the B.A.A. athlete-search results page. No
// structured API exists; the page renders a plain results table. The race
// date follows the calendar rule: Patriots' Day, the third Monday of April.
type bostonAdapter struct {
	env  *Env
	year int
}

var bostonBaseURL = "https://results.baa.org"

func newBostonAdapter(env *Env, year int) Adapter {
	return &bostonAdapter{env: env, year: year}
}

func (a *bostonAdapter) Venue() string { return "Boston Marathon" }

func (a *bostonAdapter) FetchRaceInfo(ctx context.Context) (*RaceInfo, error) {
	return &RaceInfo{
		RaceDate:        nthWeekdayOfMonth(a.year, time.April, time.Monday, 3),
		Location:        "Boston, MA",
		EventTypes:      []string{"Marathon"},
		ResultsURL:      fmt.Sprintf("%s/%d/search", bostonBaseURL, a.year),
		ResultsSiteType: model.SiteTypeHTML,
	}, nil
}

func (a *bostonAdapter) SearchRunner(ctx context.Context, name string) Outcome {
	searchURL := fmt.Sprintf("%s/%d/search?name=%s", bostonBaseURL, a.year, url.QueryEscape(name))

	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("baa", "search_runner")

	body, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		return a.env.get(ctx, searchURL, nil)
	})
	if err != nil {
		return errorOutcome(eris.Wrapf(err, "boston: search %d", a.year))
	}

	// Row layout: bib | name | time. The header row's "Bib" cell filters
	// itself out of the candidates.
	rows := parseResultsTable(body, "results-table")
	var candidates []model.CandidateMatch
	for _, cells := range rows {
		if len(cells) < 3 || cells[0] == "" || cells[0] == "Bib" {
			continue
		}
		candidates = append(candidates, model.CandidateMatch{
			Bib:  cells[0],
			Name: cells[1],
			Time: cells[2],
		})
	}

	return classify(a.Venue(), name, "Marathon", candidates, body)
}
