package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milestone-prints/raceday/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var orderColumns = []string{
	"id", "order_number", "source", "race_name", "race_year", "runner_name",
	"had_no_time", "status", "design_status", "notes", "created_at", "researched_at",
}

func TestPostgresStore_GetOrder_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM orders WHERE order_number = \$1`).
		WithArgs("ETSY-404").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetOrder(context.Background(), "ETSY-404")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetOrder(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	created := time.Date(2024, 11, 10, 9, 0, 0, 0, time.UTC)
	year := 2024
	runner := "Mallory Girvin"

	mock.ExpectQuery(`SELECT .+ FROM orders WHERE order_number = \$1`).
		WithArgs("ETSY-1001").
		WillReturnRows(pgxmock.NewRows(orderColumns).AddRow(
			"id-1", "ETSY-1001", "etsy", "New York City Marathon", &year, &runner,
			false, "ready", nil, "", created, nil,
		))

	o, err := s.GetOrder(context.Background(), "ETSY-1001")
	require.NoError(t, err)
	assert.Equal(t, "ETSY-1001", o.OrderNumber)
	assert.Equal(t, model.OrderSourceEtsy, o.Source)
	require.NotNil(t, o.RaceYear)
	assert.Equal(t, 2024, *o.RaceYear)
	assert.Equal(t, model.OrderStatusReady, o.Status)
	assert.Nil(t, o.DesignStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetOrder_DesignStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	design := "in_revision"
	mock.ExpectQuery(`SELECT .+ FROM orders WHERE order_number = \$1`).
		WithArgs("SHOP-7").
		WillReturnRows(pgxmock.NewRows(orderColumns).AddRow(
			"id-7", "SHOP-7", "shopify", "Chicago Marathon", nil, nil,
			false, "missing_year", &design, "", time.Now().UTC(), nil,
		))

	o, err := s.GetOrder(context.Background(), "SHOP-7")
	require.NoError(t, err)
	require.NotNil(t, o.DesignStatus)
	assert.Equal(t, model.DesignStatusInRevision, *o.DesignStatus)
	assert.Nil(t, o.RaceYear)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateOrder(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO orders`).
		WithArgs(pgxmock.AnyArg(), "ETSY-2", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	o := &model.Order{
		OrderNumber: "ETSY-2",
		Source:      model.OrderSourceEtsy,
		RaceName:    "Boston Marathon",
		Status:      model.OrderStatusPending,
	}
	require.NoError(t, s.CreateOrder(context.Background(), o))
	assert.NotEmpty(t, o.ID)
	assert.False(t, o.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateOrder_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE orders SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"GHOST-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateOrder(context.Background(), &model.Order{OrderNumber: "GHOST-1"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListOrders_StatusFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM orders WHERE true AND status = \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs("ready", 100).
		WillReturnRows(pgxmock.NewRows(orderColumns).
			AddRow("a", "ORD-1", "etsy", "Chicago Marathon", nil, nil, false, "ready", nil, "", now, nil).
			AddRow("b", "ORD-2", "manual", "Chicago Marathon", nil, nil, true, "ready", nil, "", now, nil))

	orders, err := s.ListOrders(context.Background(), OrderFilter{Status: model.OrderStatusReady})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "ORD-1", orders[0].OrderNumber)
	assert.True(t, orders[1].HadNoTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteStalePending(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM orders WHERE status = \$1 AND created_at <= \$2`).
		WithArgs("pending", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.DeleteStalePending(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRace_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM races WHERE race_name = \$1 AND year = \$2`).
		WithArgs("Chicago Marathon", 2024).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRace(context.Background(), "Chicago Marathon", 2024)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRace(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	raceDate := time.Date(2024, 10, 13, 0, 0, 0, 0, time.UTC)
	temp := 48.5
	cond := "cloudy"

	mock.ExpectQuery(`SELECT .+ FROM races WHERE race_name = \$1 AND year = \$2`).
		WithArgs("Chicago Marathon", 2024).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "race_name", "year", "race_date", "location", "event_types",
			"weather_temp", "weather_condition", "results_url", "results_site_type", "created_at",
		}).AddRow(
			"race-1", "Chicago Marathon", 2024, &raceDate, "Chicago, IL",
			[]byte(`["Marathon"]`), &temp, &cond, "https://results.example/2024", "api",
			time.Now().UTC(),
		))

	r, err := s.GetRace(context.Background(), "Chicago Marathon", 2024)
	require.NoError(t, err)
	assert.True(t, r.Resolved())
	assert.Equal(t, []string{"Marathon"}, r.EventTypes)
	require.NotNil(t, r.WeatherCondition)
	assert.Equal(t, model.WeatherCloudy, *r.WeatherCondition)
	require.NotNil(t, r.WeatherTemp)
	assert.Equal(t, 48.5, *r.WeatherTemp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertRace(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	existingCreated := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO races .+ ON CONFLICT \(race_name, year\) DO UPDATE SET`).
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).
			AddRow("existing-race-id", existingCreated))

	race := &model.Race{RaceName: "Chicago Marathon", Year: 2024, Location: "Chicago, IL"}
	require.NoError(t, s.UpsertRace(context.Background(), race))

	// Conflict keeps the original row identity.
	assert.Equal(t, "existing-race-id", race.ID)
	assert.Equal(t, existingCreated, race.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClearRaceCache_Scoped(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE races SET race_date = NULL.+ WHERE true AND race_name = \$1 AND year = \$2`).
		WithArgs("Chicago Marathon", 2024).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	n, err := s.ClearRaceCache(context.Background(), "Chicago Marathon", 2024)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClearRaceCache_All(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE races SET race_date = NULL.+ WHERE true`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 12))

	n, err := s.ClearRaceCache(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateResearch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runner_research`).
		WithArgs(pgxmock.AnyArg(), "order-1", "race-1", "52331", "4:12:45", "9:38/mi",
			"Marathon", "found", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	r := &model.RunnerResearch{
		OrderID:        "order-1",
		RaceID:         "race-1",
		BibNumber:      "52331",
		OfficialTime:   "4:12:45",
		OfficialPace:   "9:38/mi",
		EventType:      "Marathon",
		ResearchStatus: model.ResearchFound,
	}
	require.NoError(t, s.CreateResearch(context.Background(), r))
	assert.NotEmpty(t, r.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestResearch_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM runner_research WHERE order_id = \$1 ORDER BY created_at DESC LIMIT 1`).
		WithArgs("order-x").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.LatestResearch(context.Background(), "order-x")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
