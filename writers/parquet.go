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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/betaplane/databarc"
)

// Package writers provides exporters for aggregated series.
//
// This file implements the Parquet exporter. An aggregated series maps to a
// fixed four-column schema: the bin timestamp, the nullable value, the info
// count and the number of binned source records. The series metadata travels
// in the file's key-value metadata so a file is self-describing.

// ParquetWriterError wraps Parquet-specific write errors with context about
// the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "open_file", "write_batch", "close")
	Err error  // Underlying error
}

func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriterOptions configures the Parquet exporter.
type ParquetWriterOptions struct {
	Compression  compress.Compression // Compression codec
	RowGroupSize int64                // Maximum rows per row group
	Metadata     map[string]string    // Extra file metadata
}

// ParquetOption represents a configuration function for ParquetWriterOptions.
type ParquetOption func(*ParquetWriterOptions)

// WithCompression sets the Parquet compression codec.
func WithCompression(compression compress.Compression) ParquetOption {
	return func(opts *ParquetWriterOptions) { opts.Compression = compression }
}

// WithRowGroupSize sets the maximum number of rows per row group.
func WithRowGroupSize(size int64) ParquetOption {
	return func(opts *ParquetWriterOptions) { opts.RowGroupSize = size }
}

// WithMetadata adds extra key-value metadata to the file.
func WithMetadata(metadata map[string]string) ParquetOption {
	return func(opts *ParquetWriterOptions) {
		if opts.Metadata == nil {
			opts.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			opts.Metadata[k] = v
		}
	}
}

func (opts *ParquetWriterOptions) withDefaults() *ParquetWriterOptions {
	if opts.Compression == 0 {
		opts.Compression = compress.Codecs.Snappy
	}
	if opts.RowGroupSize <= 0 {
		opts.RowGroupSize = 10000
	}
	return opts
}

// WriterStats holds counters about an export.
type WriterStats struct {
	RecordsWritten int64
	NullValues     int64
	WriteDuration  time.Duration
	LastWriteTime  time.Time
}

// ExportParquet writes an aggregated series to a Parquet file at the given
// path, creating parent directories as needed. The series metadata (code,
// station, source, interval, reduction) is embedded as file metadata.
func ExportParquet(filename string, agg *databarc.Aggregate, options ...ParquetOption) (WriterStats, error) {
	start := time.Now()
	var stats WriterStats

	opts := (&ParquetWriterOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	if dir := filepath.Dir(filename); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return stats, &ParquetWriterError{Op: "create_directory", Err: err}
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return stats, &ParquetWriterError{Op: "open_file", Err: err}
	}
	defer file.Close()

	keys := []string{"code", "station", "source", "interval", "func", "name"}
	values := []string{agg.Code, strconv.Itoa(agg.Station), agg.Source,
		agg.Interval.String(), agg.Func, agg.Name}
	for k, v := range opts.Metadata {
		keys = append(keys, k)
		values = append(values, v)
	}
	meta := arrow.NewMetadata(keys, values)

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "t", Type: arrow.FixedWidthTypes.Timestamp_us},
		{Name: "x", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "info", Type: arrow.PrimitiveTypes.Int32},
		{Name: "n_binned", Type: arrow.PrimitiveTypes.Int32},
	}, &meta)

	props := parquet.NewWriterProperties(
		parquet.WithCompression(opts.Compression),
		parquet.WithMaxRowGroupLength(opts.RowGroupSize),
	)
	writer, err := pqarrow.NewFileWriter(schema, file, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return stats, &ParquetWriterError{Op: "create_writer", Err: err}
	}

	allocator := memory.NewGoAllocator()
	tb := array.NewTimestampBuilder(allocator, arrow.FixedWidthTypes.Timestamp_us.(*arrow.TimestampType))
	xb := array.NewFloat64Builder(allocator)
	ib := array.NewInt32Builder(allocator)
	nb := array.NewInt32Builder(allocator)
	defer tb.Release()
	defer xb.Release()
	defer ib.Release()
	defer nb.Release()

	for _, rec := range agg.Records {
		tb.Append(arrow.Timestamp(rec.T.UnixMicro()))
		if rec.X != nil {
			xb.Append(*rec.X)
		} else {
			xb.AppendNull()
			stats.NullValues++
		}
		ib.Append(int32(rec.Info))
		nb.Append(int32(len(rec.Binned)))
	}

	arrays := []arrow.Array{tb.NewArray(), xb.NewArray(), ib.NewArray(), nb.NewArray()}
	for _, a := range arrays {
		defer a.Release()
	}
	record := array.NewRecord(schema, arrays, int64(len(agg.Records)))
	defer record.Release()

	if err := writer.Write(record); err != nil {
		writer.Close()
		return stats, &ParquetWriterError{Op: "write_batch", Err: err}
	}
	if err := writer.Close(); err != nil {
		return stats, &ParquetWriterError{Op: "close", Err: err}
	}

	stats.RecordsWritten = int64(len(agg.Records))
	stats.WriteDuration = time.Since(start)
	stats.LastWriteTime = time.Now()
	return stats, nil
}

// ExportFilename builds a conventional file name for an aggregate export,
// e.g. "t_4250_dmi_daily.parquet".
func ExportFilename(agg *databarc.Aggregate) string {
	return fmt.Sprintf("%s_%d_%s_%s.parquet", agg.Code, agg.Station, agg.Source, agg.Interval)
}
