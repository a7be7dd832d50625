package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/milestone-prints/raceday/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS orders (
	id            TEXT PRIMARY KEY,
	order_number  TEXT NOT NULL UNIQUE,
	source        TEXT NOT NULL,
	race_name     TEXT NOT NULL,
	race_year     INTEGER,
	runner_name   TEXT,
	had_no_time   INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'pending',
	design_status TEXT,
	notes         TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	researched_at DATETIME
);

CREATE TABLE IF NOT EXISTS races (
	id                TEXT PRIMARY KEY,
	race_name         TEXT NOT NULL,
	year              INTEGER NOT NULL,
	race_date         DATETIME,
	location          TEXT NOT NULL DEFAULT '',
	event_types       TEXT,
	weather_temp      REAL,
	weather_condition TEXT,
	results_url       TEXT NOT NULL DEFAULT '',
	results_site_type TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (race_name, year)
);

CREATE TABLE IF NOT EXISTS runner_research (
	id                  TEXT PRIMARY KEY,
	order_id            TEXT NOT NULL REFERENCES orders(id),
	race_id             TEXT,
	bib_number          TEXT NOT NULL DEFAULT '',
	official_time       TEXT NOT NULL DEFAULT '',
	official_pace       TEXT NOT NULL DEFAULT '',
	event_type          TEXT NOT NULL DEFAULT '',
	research_status     TEXT NOT NULL,
	research_notes      TEXT NOT NULL DEFAULT '',
	raw_provider_record BLOB,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_race ON orders(race_name, race_year);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);
CREATE INDEX IF NOT EXISTS idx_races_key ON races(race_name, year);
CREATE INDEX IF NOT EXISTS idx_research_order ON runner_research(order_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateOrder(ctx context.Context, o *model.Order) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (id, order_number, source, race_name, race_year, runner_name, had_no_time, status, design_status, notes, created_at, researched_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.OrderNumber, string(o.Source), o.RaceName, o.RaceYear, o.RunnerName,
		o.HadNoTime, string(o.Status), designStatusArg(o.DesignStatus), o.Notes,
		o.CreatedAt, o.ResearchedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert order %s", o.OrderNumber)
	}
	return nil
}

func (s *SQLiteStore) GetOrder(ctx context.Context, orderNumber string) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, order_number, source, race_name, race_year, runner_name, had_no_time, status, design_status, notes, created_at, researched_at FROM orders WHERE order_number = ?`,
		orderNumber,
	)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "order %s", orderNumber)
		}
		return nil, eris.Wrapf(err, "sqlite: get order %s", orderNumber)
	}
	return o, nil
}

func (s *SQLiteStore) UpdateOrder(ctx context.Context, o *model.Order) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET race_name = ?, race_year = ?, runner_name = ?, had_no_time = ?, status = ?, design_status = ?, notes = ?, researched_at = ? WHERE order_number = ?`,
		o.RaceName, o.RaceYear, o.RunnerName, o.HadNoTime, string(o.Status),
		designStatusArg(o.DesignStatus), o.Notes, o.ResearchedAt, o.OrderNumber,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update order %s", o.OrderNumber)
	}
	return checkRowsAffected(res, "order", o.OrderNumber)
}

func (s *SQLiteStore) ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error) {
	query := `SELECT id, order_number, source, race_name, race_year, runner_name, had_no_time, status, design_status, notes, created_at, researched_at FROM orders WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.RaceName != "" {
		query += ` AND race_name = ?`
		args = append(args, filter.RaceName)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list orders")
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan order")
		}
		orders = append(orders, *o)
	}
	return orders, eris.Wrap(rows.Err(), "sqlite: list orders iterate")
}

func (s *SQLiteStore) DeleteStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM orders WHERE status = ? AND created_at <= ?`,
		string(model.OrderStatusPending), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete stale pending")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) GetRace(ctx context.Context, raceName string, year int) (*model.Race, error) {
	var r model.Race
	var eventTypesJSON *string
	var condition *string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, race_name, year, race_date, location, event_types, weather_temp, weather_condition, results_url, results_site_type, created_at FROM races WHERE race_name = ? AND year = ?`,
		raceName, year,
	).Scan(&r.ID, &r.RaceName, &r.Year, &r.RaceDate, &r.Location, &eventTypesJSON,
		&r.WeatherTemp, &condition, &r.ResultsURL, &r.ResultsSiteType, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "race %s %d", raceName, year)
		}
		return nil, eris.Wrapf(err, "sqlite: get race %s %d", raceName, year)
	}

	if eventTypesJSON != nil && *eventTypesJSON != "" {
		if err := json.Unmarshal([]byte(*eventTypesJSON), &r.EventTypes); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal event types")
		}
	}
	if condition != nil {
		c := model.WeatherCondition(*condition)
		r.WeatherCondition = &c
	}
	return &r, nil
}

func (s *SQLiteStore) UpsertRace(ctx context.Context, race *model.Race) error {
	if race.ID == "" {
		race.ID = uuid.New().String()
	}
	if race.CreatedAt.IsZero() {
		race.CreatedAt = time.Now().UTC()
	}

	eventTypesJSON, err := json.Marshal(race.EventTypes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal event types")
	}

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO races (id, race_name, year, race_date, location, event_types, weather_temp, weather_condition, results_url, results_site_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (race_name, year) DO UPDATE SET
			race_date = excluded.race_date,
			location = excluded.location,
			event_types = excluded.event_types,
			weather_temp = excluded.weather_temp,
			weather_condition = excluded.weather_condition,
			results_url = excluded.results_url,
			results_site_type = excluded.results_site_type
		 RETURNING id, created_at`,
		race.ID, race.RaceName, race.Year, race.RaceDate, race.Location, string(eventTypesJSON),
		race.WeatherTemp, conditionArg(race.WeatherCondition), race.ResultsURL,
		string(race.ResultsSiteType), race.CreatedAt,
	).Scan(&race.ID, &race.CreatedAt)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert race %s %d", race.RaceName, race.Year)
	}
	return nil
}

func (s *SQLiteStore) ClearRaceCache(ctx context.Context, raceName string, year int) (int, error) {
	query := `UPDATE races SET race_date = NULL, location = '', event_types = NULL, weather_temp = NULL, weather_condition = NULL, results_url = '', results_site_type = '' WHERE 1=1`
	var args []any

	if raceName != "" {
		query += ` AND race_name = ?`
		args = append(args, raceName)
	}
	if year > 0 {
		query += ` AND year = ?`
		args = append(args, year)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear race cache")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) CreateResearch(ctx context.Context, r *model.RunnerResearch) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runner_research (id, order_id, race_id, bib_number, official_time, official_pace, event_type, research_status, research_notes, raw_provider_record, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OrderID, r.RaceID, r.BibNumber, r.OfficialTime, r.OfficialPace,
		r.EventType, string(r.ResearchStatus), r.ResearchNotes, r.RawProviderRecord,
		r.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert research for order %s", r.OrderID)
	}
	return nil
}

func (s *SQLiteStore) LatestResearch(ctx context.Context, orderID string) (*model.RunnerResearch, error) {
	var r model.RunnerResearch
	err := s.db.QueryRowContext(ctx,
		`SELECT id, order_id, race_id, bib_number, official_time, official_pace, event_type, research_status, research_notes, raw_provider_record, created_at FROM runner_research WHERE order_id = ? ORDER BY created_at DESC LIMIT 1`,
		orderID,
	).Scan(&r.ID, &r.OrderID, &r.RaceID, &r.BibNumber, &r.OfficialTime, &r.OfficialPace,
		&r.EventType, &r.ResearchStatus, &r.ResearchNotes, &r.RawProviderRecord, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "research for order %s", orderID)
		}
		return nil, eris.Wrapf(err, "sqlite: latest research for order %s", orderID)
	}
	return &r, nil
}

func checkRowsAffected(res sql.Result, kind, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", kind, key)
	}
	return nil
}
