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
	"fmt"
	"sync"

	"github.com/betaplane/databarc"
)

// Registry is the directory of aggregation tasks within one batch run, keyed
// by (code, station, source). It is constructed fresh per run and passed
// explicitly to the tasks that need dependency lookup; it is never a process
// singleton. After the setup phase it is only read.
type Registry struct {
	mu    sync.Mutex
	tasks map[databarc.Key]*Task
	order []databarc.Key
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[databarc.Key]*Task)}
}

// register inserts a task under its key. Registration is a single atomic
// check-and-insert; a collision means two tasks compete for the same output
// identity, a fatal configuration error.
func (r *Registry) register(t *Task) error {
	key := t.out.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[key]; exists {
		return fmt.Errorf("%s/%d/%s [%s]: %w", key.Code, key.Station, key.Source, t.out.Name, databarc.ErrDuplicateRegistration)
	}
	r.tasks[key] = t
	r.order = append(r.order, key)
	return nil
}

// Lookup returns the registered task for key, if any.
func (r *Registry) Lookup(key databarc.Key) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[key]
	return t, ok
}

// Tasks returns the registered tasks in registration order.
func (r *Registry) Tasks() []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Task, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.tasks[key])
	}
	return out
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
