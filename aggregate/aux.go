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

package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/betaplane/databarc"
)

// This file implements the auxiliary channel: the time-aligned read view a
// dependent aggregation holds into another aggregation's emitted bins.
//
// In live mode the producer runs concurrently; reads block until the producer
// has emitted a record at or past the requested timestamp, or has finished.
// In replay mode the producer's output was persisted earlier and is prefetched
// at construction; reads never block. In both modes an internal cursor only
// advances, consistent with timestamps being non-decreasing on both sides.

// AuxReader yields the auxiliary series' bin for successive interval
// timestamps. Requests must be made with non-decreasing timestamps.
type AuxReader interface {
	// Next returns the provenance bin of the producer's record at exactly t,
	// or nil when the producer has no aligned record for that interval.
	Next(t time.Time) databarc.Bin
}

// liveAux reads from a concurrently running task. The producer appends a
// completed output record under its lock and then broadcasts, so a reader
// never observes a partially written bin.
type liveAux struct {
	task *Task
	i    int
}

func (a *liveAux) Next(t time.Time) databarc.Bin {
	p := a.task
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		n := len(p.out.Records)
		if p.finished || (n > 0 && !p.out.Records[n-1].T.Before(t)) {
			break
		}
		p.emitted.Wait()
	}
	recs := p.out.Records
	for a.i+1 < len(recs) && recs[a.i].T.Before(t) {
		a.i++
	}
	if a.i < len(recs) && recs[a.i].T.Equal(t) {
		return recs[a.i].Binned
	}
	return nil
}

// replayAux reads from a prefetched list of persisted output records.
type replayAux struct {
	records []databarc.OutputRecord
	i       int
}

func (a *replayAux) Next(t time.Time) databarc.Bin {
	for a.i+1 < len(a.records) && a.records[a.i].T.Before(t) {
		a.i++
	}
	if a.i < len(a.records) && a.records[a.i].T.Equal(t) {
		return a.records[a.i].Binned
	}
	return nil
}

// resolveAux locates the auxiliary series for code: first among currently
// registered tasks (live mode), then among persisted aggregates (replay
// mode). Both failing is a missing-dependency error.
func resolveAux(ctx context.Context, code string, key databarc.Key, interval databarc.Interval, reg *Registry, store databarc.SeriesStore) (AuxReader, error) {
	auxKey := databarc.Key{Code: code, Station: key.Station, Source: key.Source}
	if reg != nil {
		if dep, ok := reg.Lookup(auxKey); ok {
			return &liveAux{task: dep}, nil
		}
	}
	if store == nil {
		return nil, fmt.Errorf("aux %s for %s/%d/%s: %w", code, key.Code, key.Station, key.Source, databarc.ErrMissingDependency)
	}
	agg, err := store.FindExistingAggregate(ctx, auxKey, interval)
	if err != nil {
		if errors.Is(err, databarc.ErrAggregateNotFound) {
			return nil, fmt.Errorf("aux %s for %s/%d/%s: %w", code, key.Code, key.Station, key.Source, databarc.ErrMissingDependency)
		}
		return nil, fmt.Errorf("aux %s for %s/%d/%s: %w", code, key.Code, key.Station, key.Source, err)
	}
	records, err := store.LoadRecordsWithProvenance(ctx, agg.ID)
	if err != nil {
		return nil, fmt.Errorf("aux %s for %s/%d/%s: %w", code, key.Code, key.Station, key.Source, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("aux %s for %s/%d/%s: %w", code, key.Code, key.Station, key.Source, databarc.ErrEmptyDependencyStore)
	}
	return &replayAux{records: records}, nil
}
