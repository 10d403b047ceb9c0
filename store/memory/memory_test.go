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

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betaplane/databarc"
)

func ts(day int) time.Time {
	return time.Date(2020, 1, day, 6, 0, 0, 0, time.UTC)
}

func TestReadOrderedRecordsResumesAfter(t *testing.T) {
	store := NewStore()
	series := store.AddSeries(&databarc.Series{
		Code: "t", Station: 4250, Source: "dmi",
		Records: []databarc.Record{
			{T: ts(1), X: databarc.F(1)},
			{T: ts(2), X: databarc.F(2)},
			{T: ts(3), X: databarc.F(3)},
		},
	})

	all, err := store.ReadOrderedRecords(context.Background(), series.ID, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	resumed, err := store.ReadOrderedRecords(context.Background(), series.ID, ts(2))
	require.NoError(t, err)
	require.Len(t, resumed, 1)
	assert.Equal(t, ts(3), resumed[0].T)

	_, err = store.ReadOrderedRecords(context.Background(), 999, time.Time{})
	assert.Error(t, err)
}

func TestPersistRejectsUnorderedRecords(t *testing.T) {
	store := NewStore()
	err := store.Persist(context.Background(), &databarc.Aggregate{
		Name: "t day",
		Records: []databarc.OutputRecord{
			{T: ts(2)}, {T: ts(2)},
		},
	})
	assert.Error(t, err)
}

func TestFindExistingAggregate(t *testing.T) {
	store := NewStore()
	key := databarc.Key{Code: "r", Station: 4250, Source: "dmi"}

	_, err := store.FindExistingAggregate(context.Background(), key, databarc.Day)
	require.Error(t, err)
	assert.ErrorIs(t, err, databarc.ErrAggregateNotFound)

	agg := &databarc.Aggregate{
		Code: "r", Station: 4250, Source: "dmi", Interval: databarc.Day,
		Records: []databarc.OutputRecord{{T: ts(1), X: databarc.F(2)}},
	}
	require.NoError(t, store.Persist(context.Background(), agg))
	assert.NotZero(t, agg.ID)

	found, err := store.FindExistingAggregate(context.Background(), key, databarc.Day)
	require.NoError(t, err)
	assert.Equal(t, agg.ID, found.ID)

	// Same key at a different interval stays invisible.
	_, err = store.FindExistingAggregate(context.Background(), key, databarc.Month)
	assert.ErrorIs(t, err, databarc.ErrAggregateNotFound)

	// A second persisted aggregate under the key makes lookup ambiguous.
	require.NoError(t, store.Persist(context.Background(), &databarc.Aggregate{
		Code: "r", Station: 4250, Source: "dmi", Interval: databarc.Day,
	}))
	_, err = store.FindExistingAggregate(context.Background(), key, databarc.Day)
	assert.ErrorIs(t, err, databarc.ErrAmbiguousDependency)
}

func TestLoadRecordsWithProvenance(t *testing.T) {
	store := NewStore()
	agg := &databarc.Aggregate{
		Code: "f", Station: 4250, Source: "dmi", Interval: databarc.Day,
		Records: []databarc.OutputRecord{
			{T: ts(2), X: databarc.F(5), Binned: databarc.Bin{{T: ts(1), X: databarc.F(5)}}},
		},
	}
	require.NoError(t, store.Persist(context.Background(), agg))

	records, err := store.LoadRecordsWithProvenance(context.Background(), agg.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Len(t, records[0].Binned, 1)

	_, err = store.LoadRecordsWithProvenance(context.Background(), 999)
	assert.Error(t, err)
}
