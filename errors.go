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

import "errors"

// Package-level sentinel errors. Configuration errors abort task construction
// before any worker starts; dependency errors are fatal to the dependent task
// only, sibling tasks continue.

var (
	// ErrDuplicateRegistration reports two aggregations competing for the
	// same (code, station, source) output identity within one batch run.
	ErrDuplicateRegistration = errors.New("aggregation already registered for code/station/source")

	// ErrUnknownReducer reports a reduction function name with no registered
	// implementation.
	ErrUnknownReducer = errors.New("unknown reduction function")

	// ErrMissingDependency reports an auxiliary series that is neither
	// running in the current batch nor persisted in the store.
	ErrMissingDependency = errors.New("auxiliary series neither running nor persisted")

	// ErrAmbiguousDependency reports more than one persisted candidate for
	// an auxiliary series.
	ErrAmbiguousDependency = errors.New("multiple persisted candidates for auxiliary series")

	// ErrEmptyDependencyStore reports a persisted auxiliary aggregate that
	// holds no records at all, distinct from "no aligned data right now".
	ErrEmptyDependencyStore = errors.New("no records persisted for auxiliary series")

	// ErrAggregateNotFound reports that a store holds no aggregate for the
	// requested key and interval.
	ErrAggregateNotFound = errors.New("aggregate not found")
)
