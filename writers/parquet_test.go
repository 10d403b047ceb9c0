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

package writers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betaplane/databarc"
)

func testAggregate() *databarc.Aggregate {
	day := func(d int) time.Time {
		return time.Date(2020, 1, d, 6, 0, 0, 0, time.UTC)
	}
	return &databarc.Aggregate{
		Name: "t test day", Code: "t", Station: 4250, Source: "dmi",
		Func: "mean", Interval: databarc.Day,
		Records: []databarc.OutputRecord{
			{T: day(2), X: databarc.F(1.5), Info: 3,
				Binned: databarc.Bin{{T: day(1), X: databarc.F(1.5)}}},
			{T: day(3), Info: 0},
			{T: day(4), X: databarc.F(2.5), Info: 2},
		},
	}
}

func TestExportParquet(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "out", "t_4250_dmi_day.parquet")
	stats, err := ExportParquet(filename, testAggregate(),
		WithCompression(compress.Codecs.Gzip),
		WithMetadata(map[string]string{"run": "test"}),
	)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.RecordsWritten)
	assert.Equal(t, int64(1), stats.NullValues)

	info, err := os.Stat(filename)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportParquetEmptyAggregate(t *testing.T) {
	agg := testAggregate()
	agg.Records = nil
	filename := filepath.Join(t.TempDir(), "empty.parquet")
	stats, err := ExportParquet(filename, agg)
	require.NoError(t, err)
	assert.Zero(t, stats.RecordsWritten)
	_, err = os.Stat(filename)
	assert.NoError(t, err)
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "t_4250_dmi_day.parquet", ExportFilename(testAggregate()))
}
