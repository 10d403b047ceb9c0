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
)

func TestRegistryRejectsDuplicateKey(t *testing.T) {
	reg := NewRegistry()
	_, err := NewTask(context.Background(), testSeries("t", rec(1, 7, 1)),
		databarc.Day, Config{Func: "mean"}, reg)
	require.NoError(t, err)

	_, err = NewTask(context.Background(), testSeries("t", rec(1, 7, 2)),
		databarc.Day, Config{Func: "mean"}, reg)
	require.Error(t, err)
	assert.ErrorIs(t, err, databarc.ErrDuplicateRegistration)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryLookupAndOrder(t *testing.T) {
	reg := NewRegistry()
	first, err := NewTask(context.Background(), testSeries("f", rec(1, 7, 1)),
		databarc.Day, Config{Func: "mean"}, reg)
	require.NoError(t, err)
	second, err := NewTask(context.Background(), testSeries("t", rec(1, 7, 2)),
		databarc.Day, Config{Func: "mean"}, reg)
	require.NoError(t, err)

	got, ok := reg.Lookup(databarc.Key{Code: "f", Station: 4250, Source: "dmi"})
	require.True(t, ok)
	assert.Same(t, first, got)

	_, ok = reg.Lookup(databarc.Key{Code: "f", Station: 9999, Source: "dmi"})
	assert.False(t, ok)

	tasks := reg.Tasks()
	require.Len(t, tasks, 2)
	assert.Same(t, first, tasks[0])
	assert.Same(t, second, tasks[1])
}
