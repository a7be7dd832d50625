package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/milestone-prints/raceday/internal/model"
)

// pgxPool is the subset of pgxpool.Pool the store uses; pgxmock implements
// the same surface for unit tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    pgxPool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_order":       `SELECT id, order_number, source, race_name, race_year, runner_name, had_no_time, status, design_status, notes, created_at, researched_at FROM orders WHERE order_number = $1`,
	"update_order":    `UPDATE orders SET race_name = $1, race_year = $2, runner_name = $3, had_no_time = $4, status = $5, design_status = $6, notes = $7, researched_at = $8 WHERE order_number = $9`,
	"get_race":        `SELECT id, race_name, year, race_date, location, event_types, weather_temp, weather_condition, results_url, results_site_type, created_at FROM races WHERE race_name = $1 AND year = $2`,
	"insert_research": `INSERT INTO runner_research (id, order_id, race_id, bib_number, official_time, official_pace, event_type, research_status, research_notes, raw_provider_record, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	"latest_research": `SELECT id, order_id, race_id, bib_number, official_time, official_pace, event_type, research_status, research_notes, raw_provider_record, created_at FROM runner_research WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS orders (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	order_number  TEXT NOT NULL UNIQUE,
	source        TEXT NOT NULL,
	race_name     TEXT NOT NULL,
	race_year     INTEGER,
	runner_name   TEXT,
	had_no_time   BOOLEAN NOT NULL DEFAULT false,
	status        TEXT NOT NULL DEFAULT 'pending',
	design_status TEXT,
	notes         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	researched_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS races (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	race_name         TEXT NOT NULL,
	year              INTEGER NOT NULL,
	race_date         TIMESTAMPTZ,
	location          TEXT NOT NULL DEFAULT '',
	event_types       JSONB,
	weather_temp      DOUBLE PRECISION,
	weather_condition TEXT,
	results_url       TEXT NOT NULL DEFAULT '',
	results_site_type TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (race_name, year)
);

CREATE TABLE IF NOT EXISTS runner_research (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	order_id            TEXT NOT NULL REFERENCES orders(id),
	race_id             TEXT,
	bib_number          TEXT NOT NULL DEFAULT '',
	official_time       TEXT NOT NULL DEFAULT '',
	official_pace       TEXT NOT NULL DEFAULT '',
	event_type          TEXT NOT NULL DEFAULT '',
	research_status     TEXT NOT NULL,
	research_notes      TEXT NOT NULL DEFAULT '',
	raw_provider_record JSONB,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_race ON orders(race_name, race_year);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);
CREATE INDEX IF NOT EXISTS idx_races_key ON races(race_name, year);
CREATE INDEX IF NOT EXISTS idx_research_order ON runner_research(order_id, created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateOrder(ctx context.Context, o *model.Order) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO orders (id, order_number, source, race_name, race_year, runner_name, had_no_time, status, design_status, notes, created_at, researched_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, o.OrderNumber, string(o.Source), o.RaceName, o.RaceYear, o.RunnerName,
		o.HadNoTime, string(o.Status), designStatusArg(o.DesignStatus), o.Notes,
		o.CreatedAt, o.ResearchedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert order %s", o.OrderNumber)
	}
	return nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, orderNumber string) (*model.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, order_number, source, race_name, race_year, runner_name, had_no_time, status, design_status, notes, created_at, researched_at FROM orders WHERE order_number = $1`,
		orderNumber,
	)
	o, err := scanOrder(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "order %s", orderNumber)
		}
		return nil, eris.Wrapf(err, "postgres: get order %s", orderNumber)
	}
	return o, nil
}

func (s *PostgresStore) UpdateOrder(ctx context.Context, o *model.Order) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET race_name = $1, race_year = $2, runner_name = $3, had_no_time = $4, status = $5, design_status = $6, notes = $7, researched_at = $8 WHERE order_number = $9`,
		o.RaceName, o.RaceYear, o.RunnerName, o.HadNoTime, string(o.Status),
		designStatusArg(o.DesignStatus), o.Notes, o.ResearchedAt, o.OrderNumber,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update order %s", o.OrderNumber)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "order %s", o.OrderNumber)
	}
	return nil
}

func (s *PostgresStore) ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error) {
	query := `SELECT id, order_number, source, race_name, race_year, runner_name, had_no_time, status, design_status, notes, created_at, researched_at FROM orders WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.RaceName != "" {
		query += fmt.Sprintf(` AND race_name = $%d`, argIdx)
		args = append(args, filter.RaceName)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list orders")
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan order")
		}
		orders = append(orders, *o)
	}
	return orders, eris.Wrap(rows.Err(), "postgres: list orders")
}

func (s *PostgresStore) DeleteStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM orders WHERE status = $1 AND created_at <= $2`,
		string(model.OrderStatusPending), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete stale pending")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) GetRace(ctx context.Context, raceName string, year int) (*model.Race, error) {
	var r model.Race
	var eventTypesJSON []byte
	var condition *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, race_name, year, race_date, location, event_types, weather_temp, weather_condition, results_url, results_site_type, created_at FROM races WHERE race_name = $1 AND year = $2`,
		raceName, year,
	).Scan(&r.ID, &r.RaceName, &r.Year, &r.RaceDate, &r.Location, &eventTypesJSON,
		&r.WeatherTemp, &condition, &r.ResultsURL, &r.ResultsSiteType, &r.CreatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "race %s %d", raceName, year)
		}
		return nil, eris.Wrapf(err, "postgres: get race %s %d", raceName, year)
	}

	if len(eventTypesJSON) > 0 {
		if err := json.Unmarshal(eventTypesJSON, &r.EventTypes); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal event types")
		}
	}
	if condition != nil {
		c := model.WeatherCondition(*condition)
		r.WeatherCondition = &c
	}
	return &r, nil
}

func (s *PostgresStore) UpsertRace(ctx context.Context, race *model.Race) error {
	if race.ID == "" {
		race.ID = uuid.New().String()
	}
	if race.CreatedAt.IsZero() {
		race.CreatedAt = time.Now().UTC()
	}

	eventTypesJSON, err := json.Marshal(race.EventTypes)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal event types")
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO races (id, race_name, year, race_date, location, event_types, weather_temp, weather_condition, results_url, results_site_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (race_name, year) DO UPDATE SET
			race_date = EXCLUDED.race_date,
			location = EXCLUDED.location,
			event_types = EXCLUDED.event_types,
			weather_temp = EXCLUDED.weather_temp,
			weather_condition = EXCLUDED.weather_condition,
			results_url = EXCLUDED.results_url,
			results_site_type = EXCLUDED.results_site_type
		 RETURNING id, created_at`,
		race.ID, race.RaceName, race.Year, race.RaceDate, race.Location, eventTypesJSON,
		race.WeatherTemp, conditionArg(race.WeatherCondition), race.ResultsURL,
		string(race.ResultsSiteType), race.CreatedAt,
	).Scan(&race.ID, &race.CreatedAt)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert race %s %d", race.RaceName, race.Year)
	}
	return nil
}

func (s *PostgresStore) ClearRaceCache(ctx context.Context, raceName string, year int) (int, error) {
	query := `UPDATE races SET race_date = NULL, location = '', event_types = NULL, weather_temp = NULL, weather_condition = NULL, results_url = '', results_site_type = '' WHERE true`
	args := []any{}
	argIdx := 1

	if raceName != "" {
		query += fmt.Sprintf(` AND race_name = $%d`, argIdx)
		args = append(args, raceName)
		argIdx++
	}
	if year > 0 {
		query += fmt.Sprintf(` AND year = $%d`, argIdx)
		args = append(args, year)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear race cache")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CreateResearch(ctx context.Context, r *model.RunnerResearch) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runner_research (id, order_id, race_id, bib_number, official_time, official_pace, event_type, research_status, research_notes, raw_provider_record, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.OrderID, r.RaceID, r.BibNumber, r.OfficialTime, r.OfficialPace,
		r.EventType, string(r.ResearchStatus), r.ResearchNotes, r.RawProviderRecord,
		r.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert research for order %s", r.OrderID)
	}
	return nil
}

func (s *PostgresStore) LatestResearch(ctx context.Context, orderID string) (*model.RunnerResearch, error) {
	var r model.RunnerResearch
	err := s.pool.QueryRow(ctx,
		`SELECT id, order_id, race_id, bib_number, official_time, official_pace, event_type, research_status, research_notes, raw_provider_record, created_at FROM runner_research WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1`,
		orderID,
	).Scan(&r.ID, &r.OrderID, &r.RaceID, &r.BibNumber, &r.OfficialTime, &r.OfficialPace,
		&r.EventType, &r.ResearchStatus, &r.ResearchNotes, &r.RawProviderRecord, &r.CreatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "research for order %s", orderID)
		}
		return nil, eris.Wrapf(err, "postgres: latest research for order %s", orderID)
	}
	return &r, nil
}

// rowScanner lets scanOrder serve both QueryRow and Query results.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var o model.Order
	var design *string

	err := row.Scan(&o.ID, &o.OrderNumber, &o.Source, &o.RaceName, &o.RaceYear,
		&o.RunnerName, &o.HadNoTime, &o.Status, &design, &o.Notes,
		&o.CreatedAt, &o.ResearchedAt)
	if err != nil {
		return nil, err
	}
	if design != nil {
		d := model.DesignStatus(*design)
		o.DesignStatus = &d
	}
	return &o, nil
}

func designStatusArg(d *model.DesignStatus) *string {
	if d == nil {
		return nil
	}
	s := string(*d)
	return &s
}

func conditionArg(c *model.WeatherCondition) *string {
	if c == nil {
		return nil
	}
	s := string(*c)
	return &s
}
