// Package store persists orders, the race-tier cache and runner research.
// Two implementations exist: Postgres for shared deployments and SQLite for
// single-operator setups, selected by config.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/milestone-prints/raceday/internal/model"
)

// ErrNotFound is returned when a lookup matches no row. Callers distinguish
// it from infrastructure failures with eris.Is.
var ErrNotFound = eris.New("store: not found")

// OrderFilter specifies criteria for listing orders.
type OrderFilter struct {
	Status   model.OrderStatus `json:"status,omitempty"`
	RaceName string            `json:"race_name,omitempty"`
	Limit    int               `json:"limit,omitempty"`
	Offset   int               `json:"offset,omitempty"`
}

// Store defines the persistence interface for the research workflow.
type Store interface {
	// Orders. The external key is the marketplace order number; the surrogate
	// id only threads through to runner_research rows.
	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, orderNumber string) (*model.Order, error)
	UpdateOrder(ctx context.Context, o *model.Order) error
	ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error)
	DeleteStalePending(ctx context.Context, olderThan time.Duration) (int, error)

	// Race-tier cache, keyed by (race_name, year).
	GetRace(ctx context.Context, raceName string, year int) (*model.Race, error)
	UpsertRace(ctx context.Context, race *model.Race) error
	ClearRaceCache(ctx context.Context, raceName string, year int) (int, error)

	// Runner research, append-only with latest-wins reads.
	CreateResearch(ctx context.Context, r *model.RunnerResearch) error
	LatestResearch(ctx context.Context, orderID string) (*model.RunnerResearch, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
