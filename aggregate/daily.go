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
	"time"

	"github.com/betaplane/databarc"
)

// binners dispatches the interval kind to its binning state machine. Both
// strategies guarantee: every input record lands in exactly one bin, step
// runs once per traversed interval (empty ones included) in strictly
// increasing cursor order, and finish runs exactly once after the last step.
var binners = map[databarc.Interval]func(*Task){
	databarc.Day:   runDaily,
	databarc.Month: runMonthly,
}

// runDaily groups the parent records into day bins bounded at the zero hour.
//
// With ZeroIncl the cursor marks the included start of the window, which
// spans [t, t+24h) extended by any postpone; a record at the zero hour opens
// the new day. Without ZeroIncl the cursor marks the included end, the
// window is (t-24h, t], and a value recorded at the zero hour closes the
// day, the convention for accumulated quantities. Postpone extends the
// effective window end so a late accumulation reading still counts toward
// the closing day.
func runDaily(t *Task) {
	recs := t.parent.Records
	if len(recs) == 0 {
		t.finish()
		return
	}

	var belongs func(rt, cur time.Time) bool
	switch {
	case t.out.ZeroIncl:
		span := 24*time.Hour + t.out.Postpone
		belongs = func(rt, cur time.Time) bool { return rt.Before(cur.Add(span)) }
	case t.out.Postpone != 0:
		belongs = func(rt, cur time.Time) bool { return rt.Before(cur.Add(t.out.Postpone)) }
	default:
		belongs = func(rt, cur time.Time) bool { return !rt.After(cur) }
	}

	t.t = initialDay(recs[0].T, t.out.ZeroHour, t.out.ZeroIncl)

	for _, r := range recs {
		if belongs(r.T, t.t) {
			t.bin = append(t.bin, r)
		} else {
			// Flush every day up to the record's, so dependents observe a
			// "no data" interval for each skipped day rather than silence.
			for !belongs(r.T, t.t) {
				t.step()
				t.t = t.t.AddDate(0, 0, 1)
			}
			t.bin = databarc.Bin{r}
		}
		t.stats.RecordsConsumed++
	}
	t.finish()
}

// initialDay computes the first cursor position: the zero-hour boundary
// nearest the first record, rounded toward the boundary whose window
// contains it under the chosen inclusion rule.
func initialDay(first time.Time, zeroHour int, zeroIncl bool) time.Time {
	s := 0
	switch {
	case first.Hour() < zeroHour:
		if zeroIncl {
			s = -1
		}
	case first.Hour() > zeroHour:
		if !zeroIncl {
			s = 1
		}
	}
	day := time.Date(first.Year(), first.Month(), first.Day(), zeroHour, 0, 0, 0, first.Location())
	return day.AddDate(0, 0, s)
}
