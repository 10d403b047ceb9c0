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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betaplane/databarc"
)

func testSeries(code string, recs ...databarc.Record) *databarc.Series {
	return &databarc.Series{
		ID:      1,
		Name:    code + " test",
		Code:    code,
		Station: 4250,
		Source:  "dmi",
		Records: recs,
	}
}

func TestDailyBinning(t *testing.T) {
	parent := testSeries("t",
		rec(1, 7, 1), rec(1, 13, 2), rec(2, 1, 3), // closes at Jan 2 06
		rec(2, 7, 4), // closes at Jan 3 06
		rec(5, 7, 5), // closes at Jan 6 06, after three skipped days
	)
	agg, err := RunAggregation(context.Background(), parent, databarc.Day,
		Config{Func: "mean"}, nil)
	require.NoError(t, err)

	require.Len(t, agg.Records, 3)
	assert.Equal(t, at(2, 6), agg.Records[0].T)
	assert.Equal(t, at(3, 6), agg.Records[1].T)
	assert.Equal(t, at(6, 6), agg.Records[2].T)
	assert.InDelta(t, 2.0, *agg.Records[0].X, 1e-9)
	assert.InDelta(t, 4.0, *agg.Records[1].X, 1e-9)
	assert.InDelta(t, 5.0, *agg.Records[2].X, 1e-9)
}

func TestDailyRecordConservation(t *testing.T) {
	parent := testSeries("t",
		rec(1, 7, 1), rec(1, 13, 2), rec(2, 1, 3), rec(2, 7, 4), rec(5, 7, 5),
	)
	agg, err := RunAggregation(context.Background(), parent, databarc.Day,
		Config{Func: "mean"}, nil)
	require.NoError(t, err)

	var binned int
	last := time.Time{}
	for _, r := range agg.Records {
		assert.True(t, r.T.After(last), "timestamps must be strictly increasing")
		last = r.T
		binned += len(r.Binned)
	}
	assert.Equal(t, len(parent.Records), binned, "every input record lands in exactly one bin")
}

func TestDailyZeroHourInclusive(t *testing.T) {
	incl := true
	parent := testSeries("t",
		rec(1, 5, 1),  // before the zero hour, window opened Dec 31
		rec(1, 6, 2),  // at the zero hour: opens the new day
		rec(1, 23, 3), // same window as the 06 record
	)
	agg, err := RunAggregation(context.Background(), parent, databarc.Day,
		Config{Func: "mean", ZeroIncl: &incl}, nil)
	require.NoError(t, err)

	require.Len(t, agg.Records, 2)
	assert.Equal(t, time.Date(2019, 12, 31, 6, 0, 0, 0, time.UTC), agg.Records[0].T)
	assert.Equal(t, at(1, 6), agg.Records[1].T)
	assert.Len(t, agg.Records[0].Binned, 1)
	assert.Len(t, agg.Records[1].Binned, 2)
}

func TestDailyPostponeExtendsWindow(t *testing.T) {
	parent := testSeries("r",
		rec(1, 18, 3),
		rec(2, 11, 5),  // within the 6h postpone of the Jan 2 06 window
		rec(2, 12, 10), // past the postpone, next day
	)
	agg, err := RunAggregation(context.Background(), parent, databarc.Day,
		Config{Func: "rain_xt", Postpone: 6 * time.Hour}, nil)
	require.NoError(t, err)

	require.Len(t, agg.Records, 2)
	assert.Equal(t, at(2, 6), agg.Records[0].T)
	assert.Equal(t, at(3, 6), agg.Records[1].T)
	assert.Len(t, agg.Records[0].Binned, 2)
	assert.Len(t, agg.Records[1].Binned, 1)
}

func TestDailyEmptyInput(t *testing.T) {
	agg, err := RunAggregation(context.Background(), testSeries("t"), databarc.Day,
		Config{Func: "mean"}, nil)
	require.NoError(t, err)
	assert.Empty(t, agg.Records)
}

func TestDailyIntKindRounds(t *testing.T) {
	parent := testSeries("n", rec(1, 7, 3), rec(1, 13, 4))
	agg, err := RunAggregation(context.Background(), parent, databarc.Day,
		Config{Kind: databarc.Int, Func: "mean"}, nil)
	require.NoError(t, err)

	require.Len(t, agg.Records, 1)
	assert.Equal(t, 4.0, *agg.Records[0].X) // 3.5 rounds up
}

func TestTaskDefaults(t *testing.T) {
	parent := testSeries("t", rec(1, 7, 1))
	agg, err := RunAggregation(context.Background(), parent, databarc.Day,
		Config{Func: "mean"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "t test day", agg.Name)
	assert.Equal(t, databarc.DefaultZeroHour, agg.ZeroHour)
	assert.False(t, agg.ZeroIncl)
	assert.Equal(t, parent.ID, agg.ParentID)
}

func TestTaskInheritsParentFlags(t *testing.T) {
	parent := testSeries("r", rec(1, 13, -1))
	parent.Flags = []databarc.Flag{{Value: -1, Desc: "trace", InData: true}}
	agg, err := RunAggregation(context.Background(), parent, databarc.Day,
		Config{Func: "rain_orig", Flags: []databarc.Flag{{Value: 999, Desc: "missing"}}}, nil)
	require.NoError(t, err)

	require.Len(t, agg.Flags, 2)
	assert.Equal(t, -1, agg.Flags[0].Value)
	assert.Equal(t, 999, agg.Flags[1].Value)
	// The inherited trace sentinel is honored by the reduction.
	require.Len(t, agg.Records, 1)
	assert.Equal(t, -1.0, *agg.Records[0].X)
}

func TestNewTaskUnknownInterval(t *testing.T) {
	_, err := NewTask(context.Background(), testSeries("t"), databarc.Interval("week"),
		Config{Func: "mean"}, nil)
	assert.Error(t, err)
}

func TestNewTaskUnknownReducer(t *testing.T) {
	_, err := NewTask(context.Background(), testSeries("t"), databarc.Day,
		Config{Func: "bogus"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, databarc.ErrUnknownReducer)
}
