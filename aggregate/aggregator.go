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
	"log"
	"math"
	"sync"
	"time"

	"github.com/betaplane/databarc"
)

// Config describes how one series code is aggregated: the output record
// kind, the reduction function, auxiliary dependencies, extra flags for the
// derived series, and binning parameter overrides. Nil pointer fields fall
// back to the conventional defaults (zero hour 06, interval mapped to its
// end point).
type Config struct {
	Kind     databarc.Kind
	Func     string
	Aux      []string
	Flags    []databarc.Flag
	ZeroHour *int
	ZeroIncl *bool
	Postpone time.Duration
	Name     string
}

// TaskStats holds counters accumulated over one task run. Read it only after
// the task has completed.
type TaskStats struct {
	RecordsConsumed int64
	BinsFlushed     int64
	RecordsEmitted  int64
	RecordsSkipped  int64
	Started         time.Time
	Finished        time.Time
}

// Task is one aggregation: it owns the derived series under construction,
// the current bin and cursor timestamp, the reduction strategy, and readers
// for any auxiliary dependencies.
//
// A task is created before any worker starts, mutated only by the goroutine
// executing Run, and read-only once Run returns. While running, other tasks
// may observe its emitted records through live auxiliary channels; those
// appends happen under the task's lock followed by a broadcast.
type Task struct {
	parent  *databarc.Series
	out     *databarc.Aggregate
	reducer Reducer
	pflags  []float64
	aux     map[string]AuxReader

	bin databarc.Bin
	t   time.Time

	mu       sync.Mutex
	emitted  *sync.Cond
	finished bool

	store       databarc.SeriesStore
	commit      bool
	auxFallback bool
	logger      *log.Logger
	stats       TaskStats
}

// TaskOption configures a Task.
type TaskOption func(*Task)

// WithStore provides the persistence collaborator, used for replay-mode
// dependency resolution and, when committing, for persisting the result.
func WithStore(store databarc.SeriesStore) TaskOption {
	return func(t *Task) { t.store = store }
}

// WithCommit controls whether Run persists the completed aggregate to the
// store.
func WithCommit(commit bool) TaskOption {
	return func(t *Task) { t.commit = commit }
}

// WithLogger sets the task's logger.
func WithLogger(logger *log.Logger) TaskOption {
	return func(t *Task) { t.logger = logger }
}

// WithAuxFallback makes an unresolvable auxiliary dependency non-fatal: the
// task proceeds without the channel and the reduction sees no auxiliary data.
// Batch runs enable this; direct construction fails instead.
func WithAuxFallback(fallback bool) TaskOption {
	return func(t *Task) { t.auxFallback = fallback }
}

// NewTask constructs an aggregation task for parent and registers it with
// reg. Auxiliary dependencies are resolved at construction, before any
// worker runs: against reg for live channels, then against the store for
// replay channels. reg may be nil for a standalone run.
func NewTask(ctx context.Context, parent *databarc.Series, interval databarc.Interval, cfg Config, reg *Registry, opts ...TaskOption) (*Task, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("series %s: unknown interval %q", parent.Name, interval)
	}
	reducer, err := NewReducer(cfg.Func)
	if err != nil {
		return nil, fmt.Errorf("series %s: %w", parent.Name, err)
	}

	zeroHour := databarc.DefaultZeroHour
	if cfg.ZeroHour != nil {
		zeroHour = *cfg.ZeroHour
	}
	zeroIncl := false
	if cfg.ZeroIncl != nil {
		zeroIncl = *cfg.ZeroIncl
	}
	name := cfg.Name
	if name == "" {
		name = parent.Name + " " + interval.String()
	}

	flags := append([]databarc.Flag(nil), parent.Flags...)
	flags = append(flags, cfg.Flags...)

	t := &Task{
		parent:  parent,
		reducer: reducer,
		pflags:  parent.SentinelValues(),
		logger:  log.Default(),
		out: &databarc.Aggregate{
			Name:     name,
			Code:     parent.Code,
			Station:  parent.Station,
			Source:   parent.Source,
			Kind:     cfg.Kind,
			Func:     cfg.Func,
			Interval: interval,
			ZeroHour: zeroHour,
			ZeroIncl: zeroIncl,
			Postpone: cfg.Postpone,
			Flags:    flags,
			ParentID: parent.ID,
		},
	}
	t.emitted = sync.NewCond(&t.mu)
	for _, opt := range opts {
		opt(t)
	}

	if len(cfg.Aux) > 0 {
		t.aux = make(map[string]AuxReader, len(cfg.Aux))
		for _, code := range cfg.Aux {
			reader, err := resolveAux(ctx, code, t.out.Key(), interval, reg, t.store)
			if err != nil {
				if t.auxFallback && errors.Is(err, databarc.ErrMissingDependency) {
					t.logger.Printf("WARN: %s: %v, proceeding without auxiliary data", t.out.Name, err)
					continue
				}
				return nil, err
			}
			t.aux[code] = reader
		}
	}

	if reg != nil {
		if err := reg.register(t); err != nil {
			return nil, err
		}
	}
	t.logger.Printf("INFO: %s, station %d started", t.out.Name, t.out.Station)
	return t, nil
}

// Aggregate returns the derived series. It must be treated as read-only and,
// unless accessed through an auxiliary channel, only after Run has returned.
func (t *Task) Aggregate() *databarc.Aggregate { return t.out }

// Stats returns the task's counters. Valid after Run has returned.
func (t *Task) Stats() TaskStats { return t.stats }

// Run executes the binning state machine for the task's interval over the
// parent records, then persists the result when committing. It is called by
// exactly one worker; waiters on this task's auxiliary channel are always
// unblocked on return.
func (t *Task) Run(ctx context.Context) error {
	t.stats.Started = time.Now()
	defer func() {
		t.markDone()
		t.stats.Finished = time.Now()
	}()

	binner, ok := binners[t.out.Interval]
	if !ok {
		return fmt.Errorf("%s: unknown interval %q", t.out.Name, t.out.Interval)
	}
	binner(t)

	if len(t.out.Records) == 0 {
		t.logger.Printf("INFO: %s done, no output records (input empty or already aggregated)", t.out.Name)
	} else {
		t.logger.Printf("INFO: %s done, %d records", t.out.Name, len(t.out.Records))
	}

	if t.commit && t.store != nil {
		if err := t.store.Persist(ctx, t.out); err != nil {
			return fmt.Errorf("%s: persist: %w", t.out.Name, err)
		}
		t.logger.Printf("INFO: %s committed", t.out.Name)
	}
	return nil
}

// step flushes the current bin through the reduction function. An emitted
// record is appended under the lock with a copy of the bin as provenance,
// then waiters are notified. The bin is cleared in every case, so each
// traversed interval, empty ones included, is observable by dependents.
func (t *Task) step() {
	rc := &ReduceContext{
		T:         t.t,
		Bin:       t.bin,
		Sentinels: t.pflags,
		Aux:       t.aux,
		Prev:      t.lastOutput(),
	}
	if res, emit := t.reducer.Reduce(rc); emit {
		if x, ok := t.coerce(res.X); ok {
			rec := databarc.OutputRecord{
				T:      t.t,
				X:      x,
				Info:   res.Info,
				Binned: append(databarc.Bin(nil), t.bin...),
			}
			t.mu.Lock()
			t.out.Records = append(t.out.Records, rec)
			t.mu.Unlock()
			t.stats.RecordsEmitted++
		} else {
			t.logger.Printf("WARN: %s: value at %s not representable, record skipped", t.out.Name, t.t)
			t.stats.RecordsSkipped++
		}
	}
	t.bin = nil
	t.stats.BinsFlushed++
	t.emitted.Broadcast()
}

// finish performs the final flush and marks the task complete. Completion is
// signaled after the last record is visible, so a dependent never misses the
// final interval.
func (t *Task) finish() {
	t.step()
	t.markDone()
}

func (t *Task) markDone() {
	t.mu.Lock()
	t.finished = true
	t.mu.Unlock()
	t.emitted.Broadcast()
}

// lastOutput returns the most recently emitted record. Only the task's own
// goroutine appends, so reading without the lock is safe here.
func (t *Task) lastOutput() *databarc.OutputRecord {
	if n := len(t.out.Records); n > 0 {
		return &t.out.Records[n-1]
	}
	return nil
}

// coerce maps a reduction result onto the output series' numeric kind.
// Integer series round to the nearest whole number; a value with no numeric
// representation is a per-record validation failure.
func (t *Task) coerce(x *float64) (*float64, bool) {
	if x == nil {
		return nil, true
	}
	v := *x
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, false
	}
	if t.out.Kind == databarc.Int {
		v = math.Round(v)
	}
	return &v, true
}

// RunAggregation constructs and runs a single aggregation to completion,
// returning the derived series. Auxiliary dependencies must either be
// registered in reg or be resolvable from the store; use RunThreads for
// interdependent aggregations that need to run concurrently.
func RunAggregation(ctx context.Context, parent *databarc.Series, interval databarc.Interval, cfg Config, reg *Registry, opts ...TaskOption) (*databarc.Aggregate, error) {
	task, err := NewTask(ctx, parent, interval, cfg, reg, opts...)
	if err != nil {
		return nil, err
	}
	if err := task.Run(ctx); err != nil {
		return nil, err
	}
	return task.Aggregate(), nil
}
