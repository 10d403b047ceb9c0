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

package readers

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVSourceReadAll(t *testing.T) {
	data := strings.NewReader(`t,x,info
2020-01-01T07:00:00Z,1.5,0
2020-01-01T13:00:00Z,,0
2020-01-01T19:00:00Z,-1,12
`)
	source, err := NewCSVSource(io.NopCloser(data))
	require.NoError(t, err)
	defer source.Close()

	records, err := source.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, time.Date(2020, 1, 1, 7, 0, 0, 0, time.UTC), records[0].T)
	require.NotNil(t, records[0].X)
	assert.Equal(t, 1.5, *records[0].X)

	assert.Nil(t, records[1].X, "empty value field is a missing measurement")

	require.NotNil(t, records[2].X)
	assert.Equal(t, -1.0, *records[2].X)
	assert.Equal(t, 12, records[2].Info)

	stats := source.Stats()
	assert.Equal(t, int64(3), stats.RecordsRead)
	assert.Equal(t, int64(1), stats.MissingValues)
}

func TestCSVSourceCustomColumns(t *testing.T) {
	data := strings.NewReader("5;2020-01-01 07:00;3.25\n")
	source, err := NewCSVSource(io.NopCloser(data),
		WithCSVComma(';'),
		WithCSVHasHeaders(false),
		WithCSVTimeLayout("2006-01-02 15:04"),
		WithCSVColumns(1, 2, -1),
	)
	require.NoError(t, err)
	defer source.Close()

	rec, err := source.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 1, 7, 0, 0, 0, time.UTC), rec.T)
	require.NotNil(t, rec.X)
	assert.Equal(t, 3.25, *rec.X)

	_, err = source.Read(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestCSVSourceBadValue(t *testing.T) {
	data := strings.NewReader("t,x,info\n2020-01-01T07:00:00Z,abc,0\n")
	source, err := NewCSVSource(io.NopCloser(data))
	require.NoError(t, err)
	defer source.Close()

	_, err = source.Read(context.Background())
	require.Error(t, err)
	var serr *CSVSourceError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "parse_value", serr.Op)
	assert.Equal(t, 2, serr.Line)
}
