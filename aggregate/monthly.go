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

// runMonthly groups the parent records into calendar-month bins, the cursor
// at the first of the month.
//
// Special case: without ZeroIncl, a record falling exactly on day 1 at the
// zero hour is attributed to the closing month, because such accumulation
// readings carry the tail of the prior month's 24-hour cycle. Months with no
// records still get a flush each, as in the daily case.
func runMonthly(t *Task) {
	recs := t.parent.Records
	if len(recs) == 0 {
		t.finish()
		return
	}

	first := recs[0].T
	t.t = time.Date(first.Year(), first.Month(), 1, 0, 0, 0, 0, first.Location())

	for _, r := range recs {
		switch {
		case sameMonth(r.T, t.t):
			t.bin = append(t.bin, r)
		case r.T.Day() == 1 && r.T.Hour() == t.out.ZeroHour && !t.out.ZeroIncl:
			t.bin = append(t.bin, r)
			t.step()
			t.advanceToMonth(r.T)
		default:
			t.step()
			t.advanceToMonth(r.T)
			t.bin = databarc.Bin{r}
		}
		t.stats.RecordsConsumed++
	}
	t.finish()
}

// advanceToMonth moves the cursor to the record's month, flushing an empty
// bin for every month skipped over. The closing month was already flushed by
// the caller.
func (t *Task) advanceToMonth(target time.Time) {
	t.t = t.t.AddDate(0, 1, 0)
	for !sameMonth(t.t, target) {
		t.step()
		t.t = t.t.AddDate(0, 1, 0)
	}
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
