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

import "fmt"

// Interval is the aggregation granularity of a derived series. It is a tagged
// variant; the binning strategy for each kind is selected by a dispatch table
// in the aggregate package.
type Interval string

const (
	Day   Interval = "day"
	Month Interval = "month"
)

// DefaultZeroHour is the conventional boundary hour for daily aggregation of
// synoptic station data (06 UTC).
const DefaultZeroHour = 6

// Valid reports whether the interval names a known granularity.
func (iv Interval) Valid() bool {
	switch iv {
	case Day, Month:
		return true
	}
	return false
}

func (iv Interval) String() string { return string(iv) }

// ParseInterval converts a string into an Interval.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if !iv.Valid() {
		return "", fmt.Errorf("unknown aggregation interval %q", s)
	}
	return iv, nil
}
