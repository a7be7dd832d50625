// Package browser drives a headless Chrome session for venues whose results
// sites render through scripts and expose no fetchable endpoint. It
// implements the source.BrowserRunner capability behind the same
// timeout/retry contract as the API-backed adapters.
package browser

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/milestone-prints/raceday/internal/model"
)

// Config controls the headless session.
type Config struct {
	// NavigationTimeout bounds a full page navigation + render.
	NavigationTimeout time.Duration

	// ResultsSelector locates the rendered results table.
	ResultsSelector string

	// SearchSelector locates the name search input.
	SearchSelector string
}

// DefaultConfig returns settings that work for the supported venues.
func DefaultConfig() Config {
	return Config{
		NavigationTimeout: 45 * time.Second,
		ResultsSelector:   "table.results tbody tr",
		SearchSelector:    `input[type="search"], input[name="search"]`,
	}
}

// Session owns one browser process, launched lazily on first use and shared
// by all research tasks. Page navigation is serialized: result sites are
// slow and one tab of polite traffic is the point of the browser path.
type Session struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
}

// NewSession creates a session; the browser process starts on first search.
func NewSession(cfg Config) *Session {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultConfig().NavigationTimeout
	}
	if cfg.ResultsSelector == "" {
		cfg.ResultsSelector = DefaultConfig().ResultsSelector
	}
	if cfg.SearchSelector == "" {
		cfg.SearchSelector = DefaultConfig().SearchSelector
	}
	return &Session{cfg: cfg}
}

// SearchResults navigates the venue results page, runs the runner search
// and scrapes the rendered rows into candidate matches.
func (s *Session) SearchResults(ctx context.Context, pageURL, runnerName string) ([]model.CandidateMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.ensureBrowser()
	if err != nil {
		return nil, err
	}

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout)
	defer cancel()

	page, err := b.Context(navCtx).Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		return nil, eris.Wrapf(err, "browser: open %s", pageURL)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			zap.L().Debug("browser: page close failed", zap.Error(closeErr))
		}
	}()

	if err := page.WaitLoad(); err != nil {
		return nil, eris.Wrap(err, "browser: wait load")
	}

	searchBox, err := page.Element(s.cfg.SearchSelector)
	if err != nil {
		return nil, eris.Wrap(err, "browser: locate search input")
	}
	if err := searchBox.Input(runnerName); err != nil {
		return nil, eris.Wrap(err, "browser: type runner name")
	}
	if err := searchBox.Type(input.Enter); err != nil {
		return nil, eris.Wrap(err, "browser: submit search")
	}

	// The grid repaints in place; wait for it to settle before scraping.
	if err := page.WaitStable(time.Second); err != nil {
		return nil, eris.Wrap(err, "browser: wait for results")
	}

	rows, err := page.Elements(s.cfg.ResultsSelector)
	if err != nil {
		return nil, eris.Wrap(err, "browser: locate result rows")
	}

	var candidates []model.CandidateMatch
	for _, row := range rows {
		cells, err := row.Elements("td")
		if err != nil || len(cells) < 3 {
			continue
		}
		candidates = append(candidates, model.CandidateMatch{
			Name: cellText(cells[0]),
			Bib:  cellText(cells[1]),
			Time: cellText(cells[2]),
		})
	}

	zap.L().Debug("browser: search complete",
		zap.String("url", pageURL),
		zap.Int("rows", len(candidates)),
	)
	return candidates, nil
}

// Close shuts the browser process down.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.browser = nil
	if err != nil {
		return eris.Wrap(err, "browser: close")
	}
	return nil
}

func (s *Session) ensureBrowser() (*rod.Browser, error) {
	if s.browser != nil {
		return s.browser, nil
	}

	path, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return nil, eris.Wrap(err, "browser: launch chrome")
	}

	b := rod.New().ControlURL(path)
	if err := b.Connect(); err != nil {
		return nil, eris.Wrap(err, "browser: connect")
	}
	s.browser = b
	return b, nil
}

func cellText(el *rod.Element) string {
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}
