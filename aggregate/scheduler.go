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
	"log"

	"sync"

	"github.com/betaplane/databarc"
)

// ConfigSet maps series codes to their aggregation configuration within one
// batch run.
type ConfigSet map[string]Config

// RunThreads aggregates the given series concurrently on a bounded pool of
// workers, synchronizing interdependent aggregations through live auxiliary
// channels.
//
// All tasks are constructed and registered on the calling goroutine, in an
// order that creates auxiliary dependencies strictly before their dependents;
// blocking can therefore only happen inside channel reads, never during
// setup. A dependency that is not among the requested series is skipped
// silently here and resolved by the dependent from the store, or logged and
// dropped. A task that fails to construct or run is reported in the joined
// error; its siblings continue.
//
// Cancellation is cooperative: workers observe ctx between queue pulls, a
// running task completes its series, and undispatched tasks are marked done
// so that no auxiliary waiter stays blocked.
//
// The completed aggregates are returned in registration order.
func RunThreads(ctx context.Context, interval databarc.Interval, series []*databarc.Series, configs ConfigSet, workers int, opts ...TaskOption) ([]*databarc.Aggregate, error) {
	logger := log.Default()
	opts = append([]TaskOption{WithAuxFallback(true), WithLogger(logger)}, opts...)

	reg := NewRegistry()
	var errs []error
	var queued []*Task

	for _, code := range orderCodes(series, configs) {
		cfg, ok := configs[code]
		if !ok {
			logger.Printf("WARN: no aggregation configured for code %q, skipped", code)
			continue
		}
		parent := seriesByCode(series, code)
		if parent == nil {
			// Dependency codes referenced by a config but not requested end
			// up here; the dependent resolves them from the store instead.
			continue
		}
		task, err := NewTask(ctx, parent, interval, cfg, reg, opts...)
		if err != nil {
			logger.Printf("ERROR: %s: %v", parent.Name, err)
			errs = append(errs, err)
			continue
		}
		queued = append(queued, task)
	}

	queue := make(chan *Task, len(queued))
	for _, t := range queued {
		queue <- t
	}
	close(queue)

	n := workers
	if n > len(queued) {
		n = len(queued)
	}
	if n < 1 {
		n = 1
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(queued))
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					// Drain without running; marking the tasks done frees
					// any auxiliary waiter blocked on them.
					for t := range queue {
						t.markDone()
						logger.Printf("WARN: %s cancelled before running", t.out.Name)
					}
					return
				case t, ok := <-queue:
					if !ok {
						return
					}
					if err := t.Run(ctx); err != nil {
						errCh <- err
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		errs = append(errs, err)
	}

	tasks := reg.Tasks()
	out := make([]*databarc.Aggregate, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Aggregate())
	}
	return out, errors.Join(errs...)
}

// orderCodes returns the requested codes with every auxiliary dependency
// placed before its dependents (depth-first over the configured aux lists).
// Codes without a configuration keep their place and are reported by the
// caller.
func orderCodes(series []*databarc.Series, configs ConfigSet) []string {
	var order []string
	seen := make(map[string]bool)
	var visit func(code string)
	visit = func(code string) {
		if seen[code] {
			return
		}
		seen[code] = true
		if cfg, ok := configs[code]; ok {
			for _, dep := range cfg.Aux {
				visit(dep)
			}
		}
		order = append(order, code)
	}
	for _, s := range series {
		visit(s.Code)
	}
	return order
}

func seriesByCode(series []*databarc.Series, code string) *databarc.Series {
	for _, s := range series {
		if s.Code == code {
			return s
		}
	}
	return nil
}
