// Package research coordinates the pipeline: race-tier cache fill, runner
// search through the venue adapter, outcome persistence and status machine
// application, for single orders and bounded-concurrency batches.
package research

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/milestone-prints/raceday/internal/model"
	"github.com/milestone-prints/raceday/internal/resilience"
	"github.com/milestone-prints/raceday/internal/source"
	"github.com/milestone-prints/raceday/internal/status"
	"github.com/milestone-prints/raceday/internal/store"
	"github.com/milestone-prints/raceday/internal/weather"
)

// Resolver routes race names to venue adapters. Implemented by
// source.Registry.
type Resolver interface {
	Resolve(raceName string, year int) (source.Adapter, error)
	ListSupported() []string
}

// Enricher resolves historical race-day weather. Implemented by
// weather.Client; never blocks research on failure.
type Enricher interface {
	FetchHistoricalWeather(ctx context.Context, date time.Time, location string) weather.Result
}

// Options tunes the orchestrator.
type Options struct {
	// Concurrency bounds the batch research window.
	Concurrency int

	// AdapterTimeout bounds each race-info fetch and runner search.
	AdapterTimeout time.Duration
}

// DefaultOptions returns the batch tuning used when config supplies nothing.
func DefaultOptions() Options {
	return Options{
		Concurrency:    4,
		AdapterTimeout: 90 * time.Second,
	}
}

// Summary is the per-order research result reported to the operator.
type Summary struct {
	OrderNumber string               `json:"order_number"`
	Outcome     model.ResearchStatus `json:"outcome,omitempty"`
	OrderStatus model.OrderStatus    `json:"order_status"`
	Notes       string               `json:"notes,omitempty"`
}

// Orchestrator drives research for orders against the venue adapters.
type Orchestrator struct {
	store   store.Store
	sources Resolver
	weather Enricher
	opts    Options

	// raceGroup collapses concurrent race-tier fetches for the same
	// (raceName, year) into one provider call.
	raceGroup singleflight.Group
}

// New creates an Orchestrator.
func New(st store.Store, sources Resolver, enricher Enricher, opts Options) *Orchestrator {
	def := DefaultOptions()
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.AdapterTimeout <= 0 {
		opts.AdapterTimeout = def.AdapterTimeout
	}
	return &Orchestrator{
		store:   st,
		sources: sources,
		weather: enricher,
		opts:    opts,
	}
}

// Research runs the full pipeline for one order: ensure the race-tier cache,
// search the runner, persist the outcome and move the status machine.
// Provider failures collapse into an error outcome; only store failures and
// unroutable races return an error.
func (o *Orchestrator) Research(ctx context.Context, orderNumber string) (*Summary, error) {
	order, err := o.store.GetOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("order", orderNumber), zap.String("race", order.RaceName))

	if order.RunnerName == nil || order.RaceYear == nil {
		if err := status.MarkNeedsAttention(order); err == nil {
			if err := o.store.UpdateOrder(ctx, order); err != nil {
				return nil, err
			}
		}
		log.Info("research: missing runner name or race year, routed to attention")
		return &Summary{
			OrderNumber: orderNumber,
			OrderStatus: order.Status,
			Notes:       "missing runner name or race year",
		}, nil
	}

	adapter, err := o.sources.Resolve(order.RaceName, *order.RaceYear)
	if err != nil {
		if eris.Is(err, source.ErrNoAdapter) {
			return nil, eris.Wrapf(err, "supported venues: %s", strings.Join(o.sources.ListSupported(), ", "))
		}
		return nil, err
	}

	race, raceErr := o.ensureRace(ctx, order.RaceName, *order.RaceYear, adapter)
	if raceErr != nil {
		log.Warn("research: race-tier fetch failed", zap.Error(raceErr))
		out := source.Outcome{
			Status: model.ResearchError,
			Notes:  "race info unavailable: " + raceErr.Error(),
		}
		return o.recordOutcome(ctx, order, nil, out)
	}

	searchCtx, cancel := context.WithTimeout(ctx, o.opts.AdapterTimeout)
	defer cancel()
	out := adapter.SearchRunner(searchCtx, *order.RunnerName)

	log.Info("research: runner search finished",
		zap.String("venue", adapter.Venue()),
		zap.String("outcome", string(out.Status)),
	)
	return o.recordOutcome(ctx, order, race, out)
}

// ResearchBatch researches the given orders with a bounded concurrency
// window. A failed order is reported in its summary and never aborts the
// batch; summaries keep the input order.
func (o *Orchestrator) ResearchBatch(ctx context.Context, orderNumbers []string) ([]Summary, error) {
	summaries := make([]Summary, len(orderNumbers))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)

	for i, num := range orderNumbers {
		g.Go(func() error {
			s, err := o.Research(gctx, num)
			if err != nil {
				zap.L().Error("research: order failed in batch",
					zap.String("order", num),
					zap.Error(err),
				)
				s = &Summary{OrderNumber: num, Notes: err.Error()}
				// Status stays empty only when the order never loaded.
				if ord, gerr := o.store.GetOrder(gctx, num); gerr == nil {
					s.OrderStatus = ord.Status
				}
			}
			mu.Lock()
			summaries[i] = *s
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summaries, eris.Wrap(err, "research: batch")
	}
	return summaries, nil
}

// Awaiting returns the order numbers still awaiting research results.
func (o *Orchestrator) Awaiting(ctx context.Context, limit int) ([]string, error) {
	var numbers []string
	for _, st := range []model.OrderStatus{model.OrderStatusPending, model.OrderStatusMissingYear} {
		orders, err := o.store.ListOrders(ctx, store.OrderFilter{Status: st, Limit: limit})
		if err != nil {
			return nil, err
		}
		for _, ord := range orders {
			numbers = append(numbers, ord.OrderNumber)
		}
	}
	return numbers, nil
}

// AcceptMatch records the operator's choice among ambiguous candidates as a
// found result and promotes the order to ready.
func (o *Orchestrator) AcceptMatch(ctx context.Context, orderNumber string, candidate model.CandidateMatch) (*Summary, error) {
	order, err := o.store.GetOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	latest, err := o.store.LatestResearch(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if latest.ResearchStatus != model.ResearchAmbiguous {
		return nil, eris.Errorf("research: order %s has no ambiguous result to adjudicate (latest is %s)",
			orderNumber, latest.ResearchStatus)
	}

	eventType := latest.EventType
	if candidate.Event != "" {
		eventType = candidate.Event
	}

	rec := &model.RunnerResearch{
		OrderID:        order.ID,
		RaceID:         latest.RaceID,
		BibNumber:      candidate.Bib,
		EventType:      eventType,
		ResearchStatus: model.ResearchFound,
		ResearchNotes:  fmt.Sprintf("operator accepted candidate %q", candidate.Name),
	}
	if candidate.Time != "" {
		if canonical, err := source.NormalizeTime(candidate.Time); err == nil {
			rec.OfficialTime = canonical
			if miles := source.DistanceForEvent(eventType); miles > 0 {
				if pace, err := source.DerivePace(canonical, miles); err == nil {
					rec.OfficialPace = pace
				}
			}
		} else {
			rec.OfficialTime = candidate.Time
		}
	}
	if err := o.store.CreateResearch(ctx, rec); err != nil {
		return nil, err
	}

	if err := status.MarkReady(order); err != nil {
		return nil, err
	}
	if err := o.store.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}

	zap.L().Info("research: ambiguous match adjudicated",
		zap.String("order", orderNumber),
		zap.String("candidate", candidate.Name),
	)
	return &Summary{
		OrderNumber: orderNumber,
		Outcome:     model.ResearchFound,
		OrderStatus: order.Status,
		Notes:       rec.ResearchNotes,
	}, nil
}

// Payload assembles the research outcome consumed by the status API.
func (o *Orchestrator) Payload(ctx context.Context, orderNumber string) (*model.ResearchPayload, error) {
	order, err := o.store.GetOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	payload := &model.ResearchPayload{}

	latest, err := o.store.LatestResearch(ctx, order.ID)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return payload, nil
		}
		return nil, err
	}
	payload.Results = latest
	payload.Found = latest.ResearchStatus == model.ResearchFound
	payload.Ambiguous = latest.ResearchStatus == model.ResearchAmbiguous

	if order.RaceYear != nil {
		race, err := o.store.GetRace(ctx, order.RaceName, *order.RaceYear)
		if err == nil {
			payload.Race = race
		} else if !eris.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return payload, nil
}

// ensureRace returns the cached race for (raceName, year), fetching race
// info and weather on first touch. Concurrent callers for the same key share
// one fetch; the underlying facts do not change, so a cached resolved entry
// is returned without touching the provider.
func (o *Orchestrator) ensureRace(ctx context.Context, raceName string, year int, adapter source.Adapter) (*model.Race, error) {
	key := fmt.Sprintf("%s|%d", raceName, year)
	v, err, _ := o.raceGroup.Do(key, func() (any, error) {
		race, err := o.store.GetRace(ctx, raceName, year)
		if err != nil && !eris.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if race != nil && race.Resolved() {
			return race, nil
		}
		if race == nil {
			race = &model.Race{RaceName: raceName, Year: year}
		}

		cfg := resilience.DefaultRetryConfig()
		cfg.OnRetry = resilience.RetryLogger(adapter.Venue(), "fetch race info")
		info, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*source.RaceInfo, error) {
			fetchCtx, cancel := context.WithTimeout(ctx, o.opts.AdapterTimeout)
			defer cancel()
			return adapter.FetchRaceInfo(fetchCtx)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "research: fetch race info for %s %d", raceName, year)
		}

		if !info.RaceDate.IsZero() {
			d := info.RaceDate
			race.RaceDate = &d
		}
		race.Location = info.Location
		race.EventTypes = info.EventTypes
		race.ResultsURL = info.ResultsURL
		race.ResultsSiteType = info.ResultsSiteType

		o.enrichWeather(ctx, race)

		if err := o.store.UpsertRace(ctx, race); err != nil {
			return nil, err
		}
		return race, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Race), nil
}

func (o *Orchestrator) enrichWeather(ctx context.Context, race *model.Race) {
	if o.weather == nil || race.RaceDate == nil || race.Location == "" {
		return
	}
	res := o.weather.FetchHistoricalWeather(ctx, *race.RaceDate, race.Location)
	race.WeatherTemp = res.Temp
	race.WeatherCondition = res.Condition
	if res.Note != "" {
		zap.L().Debug("research: weather note",
			zap.String("race", race.RaceName),
			zap.Int("year", race.Year),
			zap.String("note", res.Note),
		)
	}
}

// recordOutcome persists the research row and applies the status machine.
func (o *Orchestrator) recordOutcome(ctx context.Context, order *model.Order, race *model.Race, out source.Outcome) (*Summary, error) {
	rec := &model.RunnerResearch{
		OrderID:           order.ID,
		BibNumber:         out.BibNumber,
		OfficialTime:      out.OfficialTime,
		OfficialPace:      out.OfficialPace,
		EventType:         out.EventType,
		ResearchStatus:    out.Status,
		ResearchNotes:     out.Notes,
		RawProviderRecord: out.RawRecord,
	}
	if race != nil {
		rec.RaceID = race.ID
	}
	if err := o.store.CreateResearch(ctx, rec); err != nil {
		return nil, err
	}

	if out.Status == model.ResearchFound {
		// Completed orders keep their status; a re-run just refreshes the
		// research record.
		if err := status.MarkReady(order); err == nil {
			if err := o.store.UpdateOrder(ctx, order); err != nil {
				return nil, err
			}
		}
	}

	return &Summary{
		OrderNumber: order.OrderNumber,
		Outcome:     out.Status,
		OrderStatus: order.Status,
		Notes:       out.Notes,
	}, nil
}
