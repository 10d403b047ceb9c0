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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betaplane/databarc"
	"github.com/betaplane/databarc/store/memory"
)

func TestRunThreadsWindDirectionWithSpeed(t *testing.T) {
	speed := testSeries("f", rec(1, 7, 0), rec(1, 13, 5))
	dir := testSeries("d", rec(1, 7, 90), rec(1, 13, 180))

	configs := ConfigSet{
		"d": {Kind: databarc.Int, Func: "wind_dir", Aux: []string{"f"}},
		"f": {Kind: databarc.Float, Func: "mean"},
	}
	aggs, err := RunThreads(context.Background(), databarc.Day,
		[]*databarc.Series{dir, speed}, configs, 2)
	require.NoError(t, err)
	require.Len(t, aggs, 2)

	// The dependency registers, and therefore returns, before its dependent.
	assert.Equal(t, "f", aggs[0].Code)
	assert.Equal(t, "d", aggs[1].Code)

	require.Len(t, aggs[0].Records, 1)
	assert.InDelta(t, 2.5, *aggs[0].Records[0].X, 1e-9)

	// The calm 07:00 sample is suppressed, leaving the 13:00 direction.
	require.Len(t, aggs[1].Records, 1)
	assert.Equal(t, 180.0, *aggs[1].Records[0].X)
	assert.Equal(t, 1, aggs[1].Records[0].Info)
}

func TestRunThreadsSkipsUnconfiguredCode(t *testing.T) {
	configs := ConfigSet{"t": {Func: "mean"}}
	aggs, err := RunThreads(context.Background(), databarc.Day,
		[]*databarc.Series{
			testSeries("t", rec(1, 7, 1)),
			testSeries("x", rec(1, 7, 2)),
		}, configs, 2)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, "t", aggs[0].Code)
}

func TestRunThreadsMissingAuxProceedsWithoutFiltering(t *testing.T) {
	// The speed series is configured but not requested and not in the store,
	// so wind direction aggregates unfiltered.
	configs := ConfigSet{
		"d": {Func: "wind_dir", Aux: []string{"f"}},
		"f": {Func: "mean"},
	}
	aggs, err := RunThreads(context.Background(), databarc.Day,
		[]*databarc.Series{testSeries("d", rec(1, 7, 90))}, configs, 2)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	require.Len(t, aggs[0].Records, 1)
	assert.Equal(t, 90.0, *aggs[0].Records[0].X)
}

func TestRunThreadsCommitsToStore(t *testing.T) {
	store := memory.NewStore()
	configs := ConfigSet{"t": {Func: "mean"}}
	_, err := RunThreads(context.Background(), databarc.Day,
		[]*databarc.Series{testSeries("t", rec(1, 7, 1), rec(2, 7, 2))}, configs, 1,
		WithStore(store), WithCommit(true))
	require.NoError(t, err)

	persisted := store.Aggregates()
	require.Len(t, persisted, 1)
	assert.Equal(t, "t", persisted[0].Code)
	assert.Len(t, persisted[0].Records, 2)
}

func TestRunThreadsConstructionErrorDoesNotStopSiblings(t *testing.T) {
	configs := ConfigSet{
		"t": {Func: "mean"},
		"x": {Func: "bogus"},
	}
	aggs, err := RunThreads(context.Background(), databarc.Day,
		[]*databarc.Series{
			testSeries("t", rec(1, 7, 1)),
			testSeries("x", rec(1, 7, 2)),
		}, configs, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, databarc.ErrUnknownReducer)
	require.Len(t, aggs, 1)
	assert.Equal(t, "t", aggs[0].Code)
	assert.Len(t, aggs[0].Records, 1)
}

func TestRunThreadsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	configs := ConfigSet{
		"d": {Func: "wind_dir", Aux: []string{"f"}},
		"f": {Func: "mean"},
	}
	// Must return without deadlocking even though the dependent would wait
	// on the never-run speed aggregation.
	aggs, err := RunThreads(ctx, databarc.Day,
		[]*databarc.Series{
			testSeries("d", rec(1, 7, 90)),
			testSeries("f", rec(1, 7, 5)),
		}, configs, 1)
	require.NoError(t, err)
	assert.Len(t, aggs, 2)
}

func TestOrderCodesDependenciesFirst(t *testing.T) {
	configs := ConfigSet{
		"d": {Func: "wind_dir", Aux: []string{"f"}},
		"f": {Func: "mean"},
	}
	order := orderCodes([]*databarc.Series{
		testSeries("d"), testSeries("f"),
	}, configs)
	assert.Equal(t, []string{"f", "d"}, order)
}

func TestSetByName(t *testing.T) {
	set, err := SetByName("dmi_daily")
	require.NoError(t, err)
	assert.Contains(t, set, "r")
	assert.Equal(t, "rain_xt", set["r"].Func)

	_, err = SetByName("nope")
	assert.Error(t, err)
}
