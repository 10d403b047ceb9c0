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

package databarc

import (
	"context"
	"time"
)

// Package databarc provides a temporal aggregation engine for irregularly
// sampled station time series.
//
// The engine converts an ordered record stream into a lower-frequency series
// (daily or monthly values) using pluggable reduction strategies. Reductions
// may consult the concurrently computed aggregation of another series from the
// same station (wind-direction averaging suppresses samples whose paired wind
// speed is zero), synchronized through auxiliary channels.
//
// This file contains the shared data model and the persistence contract.

// Record is a single timestamped sample of a series.
//
// X is nil when the measurement is missing. Sentinel values (for example the
// common -1 trace flag for precipitation) travel in-band through X and are
// distinguished from missing values by the owning series' flag set.
type Record struct {
	T    time.Time
	X    *float64
	Info int
}

// Bin is the ordered set of records whose timestamps fall into one
// aggregation interval. A bin under accumulation is mutable; once flushed it
// is retained by reference on the emitted OutputRecord and never mutated.
type Bin []Record

// OutputRecord is one aggregated value together with its provenance: the
// exact input records that produced it.
type OutputRecord struct {
	T      time.Time
	X      *float64
	Info   int
	Binned Bin
}

// Kind is the numeric kind of a series' values. Integer series round emitted
// values to whole numbers on output.
type Kind int

const (
	Float Kind = iota
	Int
)

// Flag describes an in-band special value defined for a series. Flags with
// InData set mark sentinel values carried in Record.X (for example a trace
// amount of precipitation); they are excluded from numeric reduction but are
// distinguishable from missing values.
type Flag struct {
	Value  int
	Desc   string
	InData bool
}

// Key identifies the output of one aggregation. At most one aggregation per
// key may exist within a batch run.
type Key struct {
	Code    string
	Station int
	Source  string
}

// Series holds the metadata and ordered records of a raw (parent) series.
// Records are ascending by timestamp with no duplicates.
type Series struct {
	ID      int64
	Name    string
	Code    string
	Station int
	Source  string
	Unit    string
	Kind    Kind
	Flags   []Flag
	Records []Record
}

// Key returns the registration key of the series.
func (s *Series) Key() Key {
	return Key{Code: s.Code, Station: s.Station, Source: s.Source}
}

// SentinelValues returns the in-data flag values of the series, the set a
// reduction must exclude from numeric computation.
func (s *Series) SentinelValues() []float64 {
	var vals []float64
	for _, f := range s.Flags {
		if f.InData {
			vals = append(vals, float64(f.Value))
		}
	}
	return vals
}

// Aggregate is a derived, lower-frequency series produced by the engine.
// Records are ascending by timestamp with no duplicates, mirroring the
// uniqueness constraint on (series, timestamp) in the underlying store.
type Aggregate struct {
	ID       int64
	Name     string
	Code     string
	Station  int
	Source   string
	Kind     Kind
	Func     string
	Interval Interval
	ZeroHour int
	ZeroIncl bool
	Postpone time.Duration
	Flags    []Flag
	ParentID int64
	Records  []OutputRecord
}

// Key returns the registration key of the aggregate.
func (a *Aggregate) Key() Key {
	return Key{Code: a.Code, Station: a.Station, Source: a.Source}
}

// SeriesStore is the persistence contract the aggregation engine consumes.
// Implementations must return records in ascending timestamp order and must
// persist an aggregate transactionally (all-or-nothing per series).
type SeriesStore interface {
	// ReadOrderedRecords returns the records of a raw series ascending by
	// timestamp. When after is non-zero only records with a strictly later
	// timestamp are returned, so a resumed run aggregates new data only.
	ReadOrderedRecords(ctx context.Context, seriesID int64, after time.Time) ([]Record, error)

	// FindExistingAggregate locates a previously persisted aggregate by key
	// and interval. A missing aggregate yields ErrAggregateNotFound; more
	// than one candidate yields ErrAmbiguousDependency.
	FindExistingAggregate(ctx context.Context, key Key, interval Interval) (*Aggregate, error)

	// LoadRecordsWithProvenance returns the output records of a persisted
	// aggregate including their provenance bins, for replay-mode auxiliary
	// channels.
	LoadRecordsWithProvenance(ctx context.Context, aggregateID int64) ([]OutputRecord, error)

	// Persist writes a completed aggregate and all of its records.
	Persist(ctx context.Context, agg *Aggregate) error
}

// RecordSource streams raw records in ascending timestamp order, for
// ingestion paths that do not go through a SeriesStore.
type RecordSource interface {
	// Read returns the next record or io.EOF when no more records are
	// available.
	Read(ctx context.Context) (Record, error)
	// Close releases any resources held by the source.
	Close() error
}

// F is shorthand for taking the address of a float64 literal when building
// records.
func F(x float64) *float64 { return &x }
