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

// nycAdapter queries the NYRR results API. The API is authoritative for the
// race date and requires a short-lived bearer token, refreshed through the
// shared credential cache.
type nycAdapter struct {
	env  *Env
	year int
}

var nycBaseURL = "https://results.nyrr.org/api"

func newNYCAdapter(env *Env, year int) Adapter {
	return &nycAdapter{env: env, year: year}
}

func (a *nycAdapter) Venue() string { return "New York City Marathon" }

type nycEventResponse struct {
	Event struct {
		Name      string   `json:"name"`
		StartDate string   `json:"startDate"` // 2006-01-02
		Venue     string   `json:"venue"`
		Distances []string `json:"distances"`
	} `json:"event"`
}

func (a *nycAdapter) FetchRaceInfo(ctx context.Context) (*RaceInfo, error) {
	eventURL := fmt.Sprintf("%s/events/M%d", nycBaseURL, a.year)

	resp, err := resilience.DoVal(ctx, a.retryConfig("race_info"), func(ctx context.Context) (*nycEventResponse, error) {
		headers, err := a.authHeaders(ctx)
		if err != nil {
			return nil, err
		}
		var out nycEventResponse
		if err := a.env.getJSON(ctx, eventURL, headers, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "nyc: fetch event %d", a.year)
	}

	raceDate, err := time.Parse("2006-01-02", resp.Event.StartDate)
	if err != nil {
		// API responded but without a usable date; the race is always run
		// on the first Sunday of November.
		raceDate = nthWeekdayOfMonth(a.year, time.November, time.Sunday, 1)
	}

	events := resp.Event.Distances
	if len(events) == 0 {
		events = []string{"Marathon"}
	}

	location := resp.Event.Venue
	if location == "" {
		location = "New York, NY"
	}

	return &RaceInfo{
		RaceDate:        raceDate,
		Location:        location,
		EventTypes:      events,
		ResultsURL:      fmt.Sprintf("https://results.nyrr.org/event/M%d/finishers", a.year),
		ResultsSiteType: model.SiteTypeAPI,
	}, nil
}

type nycSearchResponse struct {
	Items []struct {
		FirstName    string `json:"firstName"`
		LastName     string `json:"lastName"`
		BibNumber    string `json:"bib"`
		OfficialTime string `json:"overallTime"`
		Pace         string `json:"pace"`
	} `json:"items"`
}

func (a *nycAdapter) SearchRunner(ctx context.Context, name string) Outcome {
	searchURL := fmt.Sprintf("%s/runners/finishers-filter?eventCode=M%d&search=%s",
		nycBaseURL, a.year, url.QueryEscape(name))

	body, err := resilience.DoVal(ctx, a.retryConfig("search_runner"), func(ctx context.Context) ([]byte, error) {
		headers, err := a.authHeaders(ctx)
		if err != nil {
			return nil, err
		}
		return a.env.get(ctx, searchURL, headers)
	})
	if err != nil {
		return errorOutcome(eris.Wrapf(err, "nyc: search %d", a.year))
	}

	var resp nycSearchResponse
	if err := unmarshalOutcomeBody(body, &resp); err != nil {
		return errorOutcome(eris.Wrap(err, "nyc: decode search response"))
	}

	candidates := make([]model.CandidateMatch, 0, len(resp.Items))
	for _, item := range resp.Items {
		candidates = append(candidates, model.CandidateMatch{
			Name: item.FirstName + " " + item.LastName,
			Bib:  item.BibNumber,
			Time: item.OfficialTime,
		})
	}

	out := classify(a.Venue(), name, "Marathon", candidates, body)

	// The API reports pace directly; prefer it over the derived value when
	// the found row carried one.
	if out.Status == model.ResearchFound {
		for _, item := range resp.Items {
			if item.BibNumber == out.BibNumber && item.Pace != "" {
				out.OfficialPace = item.Pace
				break
			}
		}
	}
	return out
}

func (a *nycAdapter) authHeaders(ctx context.Context) (map[string]string, error) {
	if a.env.Creds == nil {
		return nil, nil
	}
	token, err := a.env.Creds.Token(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

func (a *nycAdapter) retryConfig(op string) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("nyrr", op)
	return cfg
}
