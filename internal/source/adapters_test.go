package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milestone-prints/raceday/internal/model"
)

func testEnv() *Env {
	return NewEnv(nil, nil, 1000)
}

func withBaseURL(t *testing.T, target *string, url string) {
	t.Helper()
	old := *target
	*target = url
	t.Cleanup(func() { *target = old })
}

func TestChicagoSearchRunner_Found(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2024/api/search", r.URL.Path)
		assert.Equal(t, "Mallory Girvin", r.URL.Query().Get("name"))
		w.Write([]byte(`{"results":[
			{"name":"Girvin, Mallory","bib_num":"52331","finish_time":"4:12:45","event":"Marathon"},
			{"name":"Girvin, Thomas","bib_num":"52332","finish_time":"3:58:02","event":"Marathon"}
		]}`))
	}))
	defer srv.Close()
	withBaseURL(t, &chicagoBaseURL, srv.URL)

	a := newChicagoAdapter(testEnv(), 2024)
	out := a.SearchRunner(context.Background(), "Mallory Girvin")

	require.Equal(t, model.ResearchFound, out.Status)
	assert.Equal(t, "52331", out.BibNumber)
	assert.Equal(t, "4:12:45", out.OfficialTime)
	assert.Equal(t, "9:38/mi", out.OfficialPace)
	assert.Equal(t, "Marathon", out.EventType)
	assert.NotEmpty(t, out.RawRecord)
}

func TestChicagoSearchRunner_MatchedRowEventWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[
			{"name":"Roe, Jane","bib_num":"887","finish_time":"1:45:00","event":"Half Marathon"},
			{"name":"Girvin, Thomas","bib_num":"52332","finish_time":"3:58:02","event":"Marathon"}
		]}`))
	}))
	defer srv.Close()
	withBaseURL(t, &chicagoBaseURL, srv.URL)

	a := newChicagoAdapter(testEnv(), 2024)
	out := a.SearchRunner(context.Background(), "Jane Roe")

	require.Equal(t, model.ResearchFound, out.Status)
	assert.Equal(t, "Half Marathon", out.EventType)
	assert.Equal(t, "8:01/mi", out.OfficialPace)
}

func TestChicagoSearchRunner_Ambiguous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[
			{"name":"Smith, John","bib_num":"100","finish_time":"3:10:00","event":"Marathon"},
			{"name":"John Smith","bib_num":"200","finish_time":"4:02:13","event":"Marathon"}
		]}`))
	}))
	defer srv.Close()
	withBaseURL(t, &chicagoBaseURL, srv.URL)

	a := newChicagoAdapter(testEnv(), 2024)
	out := a.SearchRunner(context.Background(), "John Smith")

	require.Equal(t, model.ResearchAmbiguous, out.Status)
	assert.Len(t, out.Candidates, 2)
	assert.Contains(t, out.Notes, "2 candidates")
}

func TestChicagoSearchRunner_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()
	withBaseURL(t, &chicagoBaseURL, srv.URL)

	a := newChicagoAdapter(testEnv(), 2024)
	out := a.SearchRunner(context.Background(), "Nobody Here")
	assert.Equal(t, model.ResearchNotFound, out.Status)
}

func TestChicagoSearchRunner_ProviderDownCollapsesToError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusNotImplemented) // 501: permanent, no retry loop
	}))
	defer srv.Close()
	withBaseURL(t, &chicagoBaseURL, srv.URL)

	a := newChicagoAdapter(testEnv(), 2024)
	out := a.SearchRunner(context.Background(), "John Smith")
	require.Equal(t, model.ResearchError, out.Status)
	assert.Contains(t, out.Notes, "501")
}

func TestChicagoFetchRaceInfo_CalendarRule(t *testing.T) {
	a := newChicagoAdapter(testEnv(), 2024)
	info, err := a.FetchRaceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.October, 13, 0, 0, 0, 0, time.UTC), info.RaceDate)
	assert.Equal(t, "Chicago, IL", info.Location)
	assert.Equal(t, model.SiteTypeAPI, info.ResultsSiteType)

	// Stable across repeated calls.
	again, err := a.FetchRaceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, info.RaceDate, again.RaceDate)
}

func TestNYCFetchRaceInfo_APIDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events/M2024", r.URL.Path)
		assert.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))
		w.Write([]byte(`{"event":{"name":"TCS New York City Marathon","startDate":"2024-11-03","venue":"New York, NY","distances":["Marathon"]}}`))
	}))
	defer srv.Close()
	withBaseURL(t, &nycBaseURL, srv.URL)

	env := testEnv()
	env.Creds = NewCredentialCache(func(ctx context.Context) (string, time.Time, error) {
		return "tok-abc", time.Now().Add(time.Hour), nil
	})

	a := newNYCAdapter(env, 2024)
	info, err := a.FetchRaceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.November, 3, 0, 0, 0, 0, time.UTC), info.RaceDate)
	assert.Equal(t, []string{"Marathon"}, info.EventTypes)
}

func TestNYCSearchRunner_PrefersProviderPace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"firstName":"Jennifer","lastName":"Samp","bib":"41022","overallTime":"3:41:22","pace":"8:27/mi"}]}`))
	}))
	defer srv.Close()
	withBaseURL(t, &nycBaseURL, srv.URL)

	a := newNYCAdapter(testEnv(), 2024)
	out := a.SearchRunner(context.Background(), "Jennifer Samp")
	require.Equal(t, model.ResearchFound, out.Status)
	assert.Equal(t, "41022", out.BibNumber)
	assert.Equal(t, "8:27/mi", out.OfficialPace)
}

func TestBostonSearchRunner_ParsesHTMLTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<table class="results-table">
			<tr><th>Bib</th><th>Name</th><th>Time</th></tr>
			<tr><td>1234</td><td>Samp, Jennifer</td><td>3:41:22</td></tr>
			</table></body></html>`))
	}))
	defer srv.Close()
	withBaseURL(t, &bostonBaseURL, srv.URL)

	a := newBostonAdapter(testEnv(), 2024)
	out := a.SearchRunner(context.Background(), "Jennifer Samp")
	require.Equal(t, model.ResearchFound, out.Status)
	assert.Equal(t, "1234", out.BibNumber)
	assert.Equal(t, "3:41:22", out.OfficialTime)
}

func TestPhiladelphiaSearchRunner_EventColumn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<table class="finishers">
			<tr><th>Name</th><th>Bib</th><th>Event</th><th>Time</th></tr>
			<tr><td>Roe, Jane</td><td>887</td><td>Half Marathon</td><td>1:45:00</td></tr>
			</table></body></html>`))
	}))
	defer srv.Close()
	withBaseURL(t, &phillyBaseURL, srv.URL)

	a := newPhiladelphiaAdapter(testEnv(), 2023)
	out := a.SearchRunner(context.Background(), "Jane Roe")
	require.Equal(t, model.ResearchFound, out.Status)
	assert.Equal(t, "Half Marathon", out.EventType)
	assert.Equal(t, "8:01/mi", out.OfficialPace)
}

func TestPhiladelphiaSearchRunner_MixedEventRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<table class="finishers">
			<tr><th>Name</th><th>Bib</th><th>Event</th><th>Time</th></tr>
			<tr><td>Roe, Jane</td><td>887</td><td>Half Marathon</td><td>1:45:00</td></tr>
			<tr><td>Girvin, Thomas</td><td>1201</td><td>Marathon</td><td>3:58:02</td></tr>
			</table></body></html>`))
	}))
	defer srv.Close()
	withBaseURL(t, &phillyBaseURL, srv.URL)

	a := newPhiladelphiaAdapter(testEnv(), 2023)
	out := a.SearchRunner(context.Background(), "Jane Roe")
	require.Equal(t, model.ResearchFound, out.Status)

	// The matched row's event drives classification and pace, not whatever
	// event appeared last on the page.
	assert.Equal(t, "Half Marathon", out.EventType)
	assert.Equal(t, "8:01/mi", out.OfficialPace)
}

type fakeBrowser struct {
	candidates []model.CandidateMatch
	err        error
	calls      int
}

func (f *fakeBrowser) SearchResults(ctx context.Context, pageURL, runnerName string) ([]model.CandidateMatch, error) {
	f.calls++
	return f.candidates, f.err
}

func TestMarineCorpsSearchRunner_ViaBrowser(t *testing.T) {
	env := testEnv()
	env.Browser = &fakeBrowser{candidates: []model.CandidateMatch{
		{Name: "Girvin, Mallory", Bib: "7", Time: "4:30:00"},
	}}

	a := newMarineCorpsAdapter(env, 2024)
	out := a.SearchRunner(context.Background(), "Mallory Girvin")
	require.Equal(t, model.ResearchFound, out.Status)
	assert.Equal(t, "7", out.BibNumber)
}

func TestMarineCorpsSearchRunner_BrowserFailure(t *testing.T) {
	env := testEnv()
	env.Browser = &fakeBrowser{err: eris.New("navigation timed out")}

	a := newMarineCorpsAdapter(env, 2024)
	out := a.SearchRunner(context.Background(), "Mallory Girvin")
	assert.Equal(t, model.ResearchError, out.Status)
	assert.Contains(t, out.Notes, "navigation timed out")
}

func TestMarineCorpsSearchRunner_NoBrowserConfigured(t *testing.T) {
	a := newMarineCorpsAdapter(testEnv(), 2024)
	out := a.SearchRunner(context.Background(), "Anyone")
	assert.Equal(t, model.ResearchError, out.Status)
}

func TestFoundOutcome_NoBibNoTimeDemoted(t *testing.T) {
	out := foundOutcome("test", "Marathon", model.CandidateMatch{Name: "Jane Roe"}, nil)
	assert.Equal(t, model.ResearchNotFound, out.Status)
}
