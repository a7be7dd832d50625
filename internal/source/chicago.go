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

// chicagoAdapter queries the timing partner's public search endpoint for
// the Chicago Marathon. The provider exposes no event-metadata API, so the
// race date follows the calendar rule: second Sunday of October.
type chicagoAdapter struct {
	env  *Env
	year int
}

var chicagoBaseURL = "https://results.chicagomarathon.com"

func newChicagoAdapter(env *Env, year int) Adapter {
	return &chicagoAdapter{env: env, year: year}
}

func (a *chicagoAdapter) Venue() string { return "Chicago Marathon" }

func (a *chicagoAdapter) FetchRaceInfo(ctx context.Context) (*RaceInfo, error) {
	return &RaceInfo{
		RaceDate:        nthWeekdayOfMonth(a.year, time.October, time.Sunday, 2),
		Location:        "Chicago, IL",
		EventTypes:      []string{"Marathon"},
		ResultsURL:      fmt.Sprintf("%s/%d", chicagoBaseURL, a.year),
		ResultsSiteType: model.SiteTypeAPI,
	}, nil
}

type chicagoSearchResponse struct {
	Results []struct {
		Name   string `json:"name"` // "Last, First"
		BibNum string `json:"bib_num"`
		Finish string `json:"finish_time"`
		Event  string `json:"event"`
	} `json:"results"`
}

func (a *chicagoAdapter) SearchRunner(ctx context.Context, name string) Outcome {
	searchURL := fmt.Sprintf("%s/%d/api/search?name=%s", chicagoBaseURL, a.year, url.QueryEscape(name))

	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("chicago", "search_runner")

	body, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		return a.env.get(ctx, searchURL, nil)
	})
	if err != nil {
		return errorOutcome(eris.Wrapf(err, "chicago: search %d", a.year))
	}

	var resp chicagoSearchResponse
	if err := unmarshalOutcomeBody(body, &resp); err != nil {
		return errorOutcome(eris.Wrap(err, "chicago: decode search response"))
	}

	candidates := make([]model.CandidateMatch, 0, len(resp.Results))
	for _, row := range resp.Results {
		candidates = append(candidates, model.CandidateMatch{
			Name:  row.Name,
			Bib:   row.BibNum,
			Time:  row.Finish,
			Event: row.Event,
		})
	}

	return classify(a.Venue(), name, "Marathon", candidates, body)
}
