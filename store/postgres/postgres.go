//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of databarc.
//
// databarc is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// databarc is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with databarc. If not, see https://www.gnu.org/licenses/.

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/betaplane/databarc"
)

// Package postgres implements databarc.SeriesStore on PostgreSQL.
//
// The relational model keeps series metadata in the field table (derived
// series reference their parent and carry the binning parameters), records
// in the record table with a uniqueness constraint on (field_id, t), the
// provenance links in record_assoc, and flag definitions shared across
// series through flag and flag_field.

// StoreError provides structured error information for store operations.
type StoreError struct {
	Op  string // Operation that failed (e.g., "connect", "read_records", "persist")
	Err error  // Underlying error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("postgres store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// StoreStats holds counters about the store's activity.
type StoreStats struct {
	RecordsRead    int64
	RecordsWritten int64
	SeriesWritten  int64
	ReadDuration   time.Duration
	WriteDuration  time.Duration
	LastAccess     time.Time
}

// StoreOptions configures the store.
type StoreOptions struct {
	DSN             string        // Database connection string
	MaxOpenConns    int           // Maximum open connections
	MaxIdleConns    int           // Maximum idle connections
	ConnMaxLifetime time.Duration // Maximum connection lifetime
	ConnMaxIdleTime time.Duration // Maximum connection idle time
	QueryTimeout    time.Duration // Per-query timeout
}

// StoreOption represents a configuration function for StoreOptions.
type StoreOption func(*StoreOptions)

// WithDSN sets the PostgreSQL connection string.
func WithDSN(dsn string) StoreOption {
	return func(opts *StoreOptions) { opts.DSN = dsn }
}

// WithConnectionPool configures the connection pool.
func WithConnectionPool(maxOpen, maxIdle int) StoreOption {
	return func(opts *StoreOptions) {
		opts.MaxOpenConns = maxOpen
		opts.MaxIdleConns = maxIdle
	}
}

// WithQueryTimeout sets the per-query timeout.
func WithQueryTimeout(timeout time.Duration) StoreOption {
	return func(opts *StoreOptions) { opts.QueryTimeout = timeout }
}

func (opts *StoreOptions) withDefaults() *StoreOptions {
	if opts.MaxOpenConns == 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = 2
	}
	if opts.ConnMaxLifetime == 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}
	if opts.ConnMaxIdleTime == 0 {
		opts.ConnMaxIdleTime = 5 * time.Minute
	}
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = time.Minute
	}
	return opts
}

// Store implements databarc.SeriesStore on a PostgreSQL database.
type Store struct {
	mu    sync.Mutex
	db    *sql.DB
	opts  *StoreOptions
	stats StoreStats
}

// NewStore connects to the database and verifies the connection.
func NewStore(opts ...StoreOption) (*Store, error) {
	options := &StoreOptions{}
	for _, opt := range opts {
		opt(options)
	}
	options.withDefaults()
	if options.DSN == "" {
		return nil, &StoreError{Op: "configure", Err: fmt.Errorf("DSN is required")}
	}

	db, err := sql.Open("postgres", options.DSN)
	if err != nil {
		return nil, &StoreError{Op: "connect", Err: err}
	}
	db.SetMaxOpenConns(options.MaxOpenConns)
	db.SetMaxIdleConns(options.MaxIdleConns)
	db.SetConnMaxLifetime(options.ConnMaxLifetime)
	db.SetConnMaxIdleTime(options.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), options.QueryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &StoreError{Op: "connect", Err: err}
	}
	return &Store{db: db, opts: options}, nil
}

// Close releases the database connections.
func (s *Store) Close() error {
	return s.db.Close()
}

// Stats returns a snapshot of the store's counters.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS field (
	id               BIGSERIAL PRIMARY KEY,
	name             TEXT,
	code             TEXT NOT NULL,
	station_id       INTEGER NOT NULL,
	source           TEXT NOT NULL,
	unit             TEXT,
	type             TEXT NOT NULL DEFAULT 'float',
	subclass         TEXT NOT NULL DEFAULT 'basic',
	func             TEXT,
	interval         TEXT,
	zero_hour        INTEGER NOT NULL DEFAULT 6,
	zero_incl        BOOLEAN NOT NULL DEFAULT FALSE,
	postpone_seconds BIGINT NOT NULL DEFAULT 0,
	parent_id        BIGINT REFERENCES field(id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS record (
	id       BIGSERIAL PRIMARY KEY,
	field_id BIGINT NOT NULL REFERENCES field(id) ON DELETE CASCADE,
	t        TIMESTAMPTZ NOT NULL,
	x        DOUBLE PRECISION,
	info     INTEGER NOT NULL DEFAULT 0,
	UNIQUE (field_id, t)
);
CREATE INDEX IF NOT EXISTS record_field_t_idx ON record (field_id, t);
CREATE TABLE IF NOT EXISTS record_assoc (
	parent_id BIGINT NOT NULL REFERENCES record(id) ON DELETE CASCADE,
	child_id  BIGINT NOT NULL REFERENCES record(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS record_assoc_parent_idx ON record_assoc (parent_id);
CREATE TABLE IF NOT EXISTS flag (
	id      BIGSERIAL PRIMARY KEY,
	value   INTEGER NOT NULL,
	descr   TEXT NOT NULL DEFAULT '',
	in_data BOOLEAN NOT NULL,
	UNIQUE (value, in_data, descr)
);
CREATE TABLE IF NOT EXISTS flag_field (
	flag_id  BIGINT NOT NULL REFERENCES flag(id) ON DELETE CASCADE,
	field_id BIGINT NOT NULL REFERENCES field(id) ON DELETE CASCADE
);
`

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return &StoreError{Op: "ensure_schema", Err: err}
	}
	return nil
}

// ReadOrderedRecords implements databarc.SeriesStore.
func (s *Store) ReadOrderedRecords(ctx context.Context, seriesID int64, after time.Time) ([]databarc.Record, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	query := `SELECT t, x, info FROM record WHERE field_id = $1`
	args := []interface{}{seriesID}
	if !after.IsZero() {
		query += ` AND t > $2`
		args = append(args, after)
	}
	query += ` ORDER BY t`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StoreError{Op: "read_records", Err: err}
	}
	defer rows.Close()

	var out []databarc.Record
	for rows.Next() {
		var (
			t    time.Time
			x    sql.NullFloat64
			info sql.NullInt64
		)
		if err := rows.Scan(&t, &x, &info); err != nil {
			return nil, &StoreError{Op: "read_records", Err: err}
		}
		rec := databarc.Record{T: t, Info: int(info.Int64)}
		if x.Valid {
			v := x.Float64
			rec.X = &v
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "read_records", Err: err}
	}

	s.mu.Lock()
	s.stats.RecordsRead += int64(len(out))
	s.stats.ReadDuration += time.Since(start)
	s.stats.LastAccess = time.Now()
	s.mu.Unlock()
	return out, nil
}

// FindExistingAggregate implements databarc.SeriesStore.
func (s *Store) FindExistingAggregate(ctx context.Context, key databarc.Key, interval databarc.Interval) (*databarc.Aggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, code, station_id, source, type, COALESCE(func, ''),
		       zero_hour, zero_incl, postpone_seconds, COALESCE(parent_id, 0)
		FROM field
		WHERE subclass = 'aggregate' AND code = $1 AND station_id = $2
		  AND source = $3 AND interval = $4`,
		key.Code, key.Station, key.Source, interval.String())
	if err != nil {
		return nil, &StoreError{Op: "find_aggregate", Err: err}
	}
	defer rows.Close()

	var found *databarc.Aggregate
	for rows.Next() {
		if found != nil {
			return nil, &StoreError{Op: "find_aggregate", Err: fmt.Errorf("%s/%d/%s %s: %w",
				key.Code, key.Station, key.Source, interval, databarc.ErrAmbiguousDependency)}
		}
		var (
			a        databarc.Aggregate
			kind     string
			postpone int64
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Code, &a.Station, &a.Source, &kind,
			&a.Func, &a.ZeroHour, &a.ZeroIncl, &postpone, &a.ParentID); err != nil {
			return nil, &StoreError{Op: "find_aggregate", Err: err}
		}
		a.Interval = interval
		a.Postpone = time.Duration(postpone) * time.Second
		if kind == "int" {
			a.Kind = databarc.Int
		}
		found = &a
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "find_aggregate", Err: err}
	}
	if found == nil {
		return nil, &StoreError{Op: "find_aggregate", Err: fmt.Errorf("%s/%d/%s %s: %w",
			key.Code, key.Station, key.Source, interval, databarc.ErrAggregateNotFound)}
	}
	return found, nil
}

// LoadRecordsWithProvenance implements databarc.SeriesStore.
func (s *Store) LoadRecordsWithProvenance(ctx context.Context, aggregateID int64) ([]databarc.OutputRecord, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, t, x, info FROM record WHERE field_id = $1 ORDER BY t`, aggregateID)
	if err != nil {
		return nil, &StoreError{Op: "load_provenance", Err: err}
	}
	var (
		out []databarc.OutputRecord
		ids []int64
		idx = make(map[int64]int)
	)
	for rows.Next() {
		var (
			id   int64
			t    time.Time
			x    sql.NullFloat64
			info sql.NullInt64
		)
		if err := rows.Scan(&id, &t, &x, &info); err != nil {
			rows.Close()
			return nil, &StoreError{Op: "load_provenance", Err: err}
		}
		rec := databarc.OutputRecord{T: t, Info: int(info.Int64)}
		if x.Valid {
			v := x.Float64
			rec.X = &v
		}
		idx[id] = len(out)
		ids = append(ids, id)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, &StoreError{Op: "load_provenance", Err: err}
	}
	rows.Close()
	if len(out) == 0 {
		return nil, nil
	}

	prows, err := s.db.QueryContext(ctx, `
		SELECT a.parent_id, c.t, c.x, c.info
		FROM record_assoc a JOIN record c ON c.id = a.child_id
		WHERE a.parent_id = ANY($1)
		ORDER BY a.parent_id, c.t`, pq.Array(ids))
	if err != nil {
		return nil, &StoreError{Op: "load_provenance", Err: err}
	}
	defer prows.Close()
	for prows.Next() {
		var (
			parent int64
			t      time.Time
			x      sql.NullFloat64
			info   sql.NullInt64
		)
		if err := prows.Scan(&parent, &t, &x, &info); err != nil {
			return nil, &StoreError{Op: "load_provenance", Err: err}
		}
		rec := databarc.Record{T: t, Info: int(info.Int64)}
		if x.Valid {
			v := x.Float64
			rec.X = &v
		}
		i := idx[parent]
		out[i].Binned = append(out[i].Binned, rec)
	}
	if err := prows.Err(); err != nil {
		return nil, &StoreError{Op: "load_provenance", Err: err}
	}

	s.mu.Lock()
	s.stats.RecordsRead += int64(len(out))
	s.stats.ReadDuration += time.Since(start)
	s.stats.LastAccess = time.Now()
	s.mu.Unlock()
	return out, nil
}

// Persist implements databarc.SeriesStore. The aggregate, its records, flag
// links and provenance links are written in a single transaction; any
// failure rolls the whole series back.
func (s *Store) Persist(ctx context.Context, agg *databarc.Aggregate) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "persist", Err: err}
	}
	defer tx.Rollback()

	kind := "float"
	if agg.Kind == databarc.Int {
		kind = "int"
	}
	var parentID interface{}
	if agg.ParentID != 0 {
		parentID = agg.ParentID
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO field (name, code, station_id, source, type, subclass, func,
		                   interval, zero_hour, zero_incl, postpone_seconds, parent_id)
		VALUES ($1, $2, $3, $4, $5, 'aggregate', $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		agg.Name, agg.Code, agg.Station, agg.Source, kind, agg.Func,
		agg.Interval.String(), agg.ZeroHour, agg.ZeroIncl,
		int64(agg.Postpone/time.Second), parentID).Scan(&agg.ID)
	if err != nil {
		return &StoreError{Op: "persist", Err: err}
	}

	for _, f := range agg.Flags {
		var flagID int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO flag (value, descr, in_data) VALUES ($1, $2, $3)
			ON CONFLICT (value, in_data, descr) DO UPDATE SET value = EXCLUDED.value
			RETURNING id`, f.Value, f.Desc, f.InData).Scan(&flagID)
		if err != nil {
			return &StoreError{Op: "persist", Err: err}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO flag_field (flag_id, field_id) VALUES ($1, $2)`, flagID, agg.ID); err != nil {
			return &StoreError{Op: "persist", Err: err}
		}
	}

	insertRecord, err := tx.PrepareContext(ctx,
		`INSERT INTO record (field_id, t, x, info) VALUES ($1, $2, $3, $4) RETURNING id`)
	if err != nil {
		return &StoreError{Op: "persist", Err: err}
	}
	defer insertRecord.Close()
	linkProvenance, err := tx.PrepareContext(ctx, `
		INSERT INTO record_assoc (parent_id, child_id)
		SELECT $1, id FROM record WHERE field_id = $2 AND t = $3`)
	if err != nil {
		return &StoreError{Op: "persist", Err: err}
	}
	defer linkProvenance.Close()

	for _, rec := range agg.Records {
		var x interface{}
		if rec.X != nil {
			x = *rec.X
		}
		var recordID int64
		if err := insertRecord.QueryRowContext(ctx, agg.ID, rec.T, x, rec.Info).Scan(&recordID); err != nil {
			return &StoreError{Op: "persist", Err: err}
		}
		for _, child := range rec.Binned {
			if _, err := linkProvenance.ExecContext(ctx, recordID, agg.ParentID, child.T); err != nil {
				return &StoreError{Op: "persist", Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "persist", Err: err}
	}

	s.mu.Lock()
	s.stats.SeriesWritten++
	s.stats.RecordsWritten += int64(len(agg.Records))
	s.stats.WriteDuration += time.Since(start)
	s.stats.LastAccess = time.Now()
	s.mu.Unlock()
	return nil
}

// LoadSeries fetches the raw series for a station and source by code,
// including flags and ordered records. Used by batch entry points to
// assemble RunThreads input.
func (s *Store) LoadSeries(ctx context.Context, station int, source string, codes []string) ([]*databarc.Series, error) {
	qctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(qctx, `
		SELECT id, COALESCE(name, ''), code, station_id, source, COALESCE(unit, ''), type
		FROM field
		WHERE subclass = 'basic' AND station_id = $1 AND source = $2 AND code = ANY($3)
		ORDER BY code`, station, source, pq.Array(codes))
	if err != nil {
		return nil, &StoreError{Op: "load_series", Err: err}
	}
	var out []*databarc.Series
	for rows.Next() {
		var (
			sr   databarc.Series
			kind string
		)
		if err := rows.Scan(&sr.ID, &sr.Name, &sr.Code, &sr.Station, &sr.Source, &sr.Unit, &kind); err != nil {
			rows.Close()
			return nil, &StoreError{Op: "load_series", Err: err}
		}
		if kind == "int" {
			sr.Kind = databarc.Int
		}
		out = append(out, &sr)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, &StoreError{Op: "load_series", Err: err}
	}
	rows.Close()

	for _, sr := range out {
		if err := s.loadFlags(ctx, sr); err != nil {
			return nil, err
		}
		records, err := s.ReadOrderedRecords(ctx, sr.ID, time.Time{})
		if err != nil {
			return nil, err
		}
		sr.Records = records
	}
	return out, nil
}

func (s *Store) loadFlags(ctx context.Context, sr *databarc.Series) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.value, f.descr, f.in_data
		FROM flag f JOIN flag_field ff ON ff.flag_id = f.id
		WHERE ff.field_id = $1`, sr.ID)
	if err != nil {
		return &StoreError{Op: "load_flags", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var f databarc.Flag
		if err := rows.Scan(&f.Value, &f.Desc, &f.InData); err != nil {
			return &StoreError{Op: "load_flags", Err: err}
		}
		sr.Flags = append(sr.Flags, f)
	}
	if err := rows.Err(); err != nil {
		return &StoreError{Op: "load_flags", Err: err}
	}
	return nil
}
