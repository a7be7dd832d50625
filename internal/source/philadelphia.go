package source

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/milestone-prints/raceday/internal/model"
	"github.com/milestone-prints/raceday/internal/resilience"
)

// philadelphiaAdapter scrapes the Philadelphia Marathon weekend results
// pages. The weekend hosts a marathon and a half, so rows carry an event
// column. Race date rule: the Sunday before Thanksgiving.
type philadelphiaAdapter struct {
	env  *Env
	year int
}

var phillyBaseURL = "https://results.philadelphiamarathon.com"

func newPhiladelphiaAdapter(env *Env, year int) Adapter {
	return &philadelphiaAdapter{env: env, year: year}
}

func (a *philadelphiaAdapter) Venue() string { return "Philadelphia Marathon" }

func (a *philadelphiaAdapter) FetchRaceInfo(ctx context.Context) (*RaceInfo, error) {
	return &RaceInfo{
		RaceDate:        sundayBeforeThanksgiving(a.year),
		Location:        "Philadelphia, PA",
		EventTypes:      []string{"Marathon", "Half Marathon"},
		ResultsURL:      fmt.Sprintf("%s/%d", phillyBaseURL, a.year),
		ResultsSiteType: model.SiteTypeHTML,
	}, nil
}

func (a *philadelphiaAdapter) SearchRunner(ctx context.Context, name string) Outcome {
	searchURL := fmt.Sprintf("%s/%d/results?lastname=%s", phillyBaseURL, a.year, url.QueryEscape(name))

	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("philadelphia", "search_runner")

	body, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		return a.env.get(ctx, searchURL, nil)
	})
	if err != nil {
		return errorOutcome(eris.Wrapf(err, "philadelphia: search %d", a.year))
	}

	// Row layout: name | bib | event | time. The page mixes marathon and
	// half rows, so each candidate keeps its own event column.
	rows := parseResultsTable(body, "finishers")
	var candidates []model.CandidateMatch
	for _, cells := range rows {
		if len(cells) < 4 || cells[0] == "" || cells[0] == "Name" {
			continue
		}
		candidates = append(candidates, model.CandidateMatch{
			Name:  cells[0],
			Bib:   cells[1],
			Time:  cells[3],
			Event: cells[2],
		})
	}

	return classify(a.Venue(), name, "Marathon", candidates, body)
}
