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

package memory

import (
	"context"
	"fmt"
	"sync"

	"time"

	"github.com/betaplane/databarc"
)

// Store is an in-memory databarc.SeriesStore, used in tests and for replay
// aggregation without a database.
type Store struct {
	mu     sync.RWMutex
	series map[int64]*databarc.Series
	aggs   []*databarc.Aggregate
	nextID int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{series: make(map[int64]*databarc.Series)}
}

// AddSeries registers a raw series with the store, assigning it an ID when
// it has none.
func (s *Store) AddSeries(series *databarc.Series) *databarc.Series {
	s.mu.Lock()
	defer s.mu.Unlock()
	if series.ID == 0 {
		s.nextID++
		series.ID = s.nextID
	}
	s.series[series.ID] = series
	return series
}

// ReadOrderedRecords implements databarc.SeriesStore.
func (s *Store) ReadOrderedRecords(ctx context.Context, seriesID int64, after time.Time) ([]databarc.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series, ok := s.series[seriesID]
	if !ok {
		return nil, fmt.Errorf("memory store: no series with id %d", seriesID)
	}
	var out []databarc.Record
	for _, r := range series.Records {
		if !after.IsZero() && !r.T.After(after) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// FindExistingAggregate implements databarc.SeriesStore.
func (s *Store) FindExistingAggregate(ctx context.Context, key databarc.Key, interval databarc.Interval) (*databarc.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *databarc.Aggregate
	for _, a := range s.aggs {
		if a.Key() == key && a.Interval == interval {
			if found != nil {
				return nil, fmt.Errorf("memory store: %s/%d/%s %s: %w", key.Code, key.Station, key.Source, interval, databarc.ErrAmbiguousDependency)
			}
			found = a
		}
	}
	if found == nil {
		return nil, fmt.Errorf("memory store: %s/%d/%s %s: %w", key.Code, key.Station, key.Source, interval, databarc.ErrAggregateNotFound)
	}
	return found, nil
}

// LoadRecordsWithProvenance implements databarc.SeriesStore.
func (s *Store) LoadRecordsWithProvenance(ctx context.Context, aggregateID int64) ([]databarc.OutputRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.aggs {
		if a.ID == aggregateID {
			return a.Records, nil
		}
	}
	return nil, fmt.Errorf("memory store: no aggregate with id %d", aggregateID)
}

// Persist implements databarc.SeriesStore. The records must be strictly
// ascending by timestamp, mirroring the relational uniqueness constraint;
// a violation rejects the whole series.
func (s *Store) Persist(ctx context.Context, agg *databarc.Aggregate) error {
	for i := 1; i < len(agg.Records); i++ {
		if !agg.Records[i].T.After(agg.Records[i-1].T) {
			return fmt.Errorf("memory store: %s: records not strictly ascending at %s", agg.Name, agg.Records[i].T)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if agg.ID == 0 {
		s.nextID++
		agg.ID = s.nextID
	}
	s.aggs = append(s.aggs, agg)
	return nil
}

// Aggregates returns the persisted aggregates in commit order.
func (s *Store) Aggregates() []*databarc.Aggregate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*databarc.Aggregate(nil), s.aggs...)
}
