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
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/betaplane/databarc"
)

// This file implements a CSV source for flat-file station dumps. Rows carry a
// timestamp, an optional value (an empty field is a missing measurement) and
// an optional info column.

// CSVSourceError wraps structured error information for the CSV source.
type CSVSourceError struct {
	Op   string
	Line int // 1-based line of the offending row, 0 when not row-specific
	Err  error
}

func (e *CSVSourceError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("csv source %s (line %d): %v", e.Op, e.Line, e.Err)
	}
	return fmt.Sprintf("csv source %s: %v", e.Op, e.Err)
}

func (e *CSVSourceError) Unwrap() error {
	return e.Err
}

// CSVSourceStats holds counters about the source's activity.
type CSVSourceStats struct {
	RecordsRead   int64
	MissingValues int64
	ReadDuration  time.Duration
	LastReadTime  time.Time
}

// CSVSourceOptions configures the CSV source.
type CSVSourceOptions struct {
	Comma      rune   // Field separator
	Comment    rune   // Comment character
	HasHeaders bool   // Skip a header row
	TimeLayout string // Layout of the timestamp column
	TimeCol    int    // Column index of the timestamp
	ValueCol   int    // Column index of the value
	InfoCol    int    // Column index of the info flag, -1 when absent
}

// CSVSourceOption allows functional customization of CSVSource.
type CSVSourceOption func(*CSVSourceOptions)

func WithCSVComma(r rune) CSVSourceOption {
	return func(o *CSVSourceOptions) { o.Comma = r }
}

func WithCSVHasHeaders(hasHeaders bool) CSVSourceOption {
	return func(o *CSVSourceOptions) { o.HasHeaders = hasHeaders }
}

func WithCSVTimeLayout(layout string) CSVSourceOption {
	return func(o *CSVSourceOptions) { o.TimeLayout = layout }
}

// WithCSVColumns sets the column indices of the timestamp, value and info
// fields. Pass -1 for info when the file has no info column.
func WithCSVColumns(timeCol, valueCol, infoCol int) CSVSourceOption {
	return func(o *CSVSourceOptions) {
		o.TimeCol = timeCol
		o.ValueCol = valueCol
		o.InfoCol = infoCol
	}
}

// CSVSource implements databarc.RecordSource for CSV files.
type CSVSource struct {
	reader *csv.Reader
	closer io.Closer
	opts   CSVSourceOptions
	stats  CSVSourceStats
	line   int
}

// NewCSVSource creates a CSVSource with default or overridden options. The
// default layout is three columns t,x,info with a header row, timestamps in
// RFC 3339.
func NewCSVSource(r io.ReadCloser, options ...CSVSourceOption) (*CSVSource, error) {
	opts := CSVSourceOptions{
		Comma:      ',',
		HasHeaders: true,
		TimeLayout: time.RFC3339,
		TimeCol:    0,
		ValueCol:   1,
		InfoCol:    2,
	}
	for _, opt := range options {
		opt(&opts)
	}

	csvReader := csv.NewReader(r)
	csvReader.Comma = opts.Comma
	csvReader.Comment = opts.Comment
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	source := &CSVSource{reader: csvReader, closer: r, opts: opts}
	if opts.HasHeaders {
		if _, err := csvReader.Read(); err != nil {
			return nil, &CSVSourceError{Op: "read_headers", Err: err}
		}
		source.line++
	}
	return source, nil
}

// Read implements databarc.RecordSource. It returns io.EOF after the last
// row.
func (c *CSVSource) Read(ctx context.Context) (databarc.Record, error) {
	start := time.Now()
	defer func() {
		c.stats.ReadDuration += time.Since(start)
		c.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return databarc.Record{}, &CSVSourceError{Op: "read", Err: ctx.Err()}
	default:
	}

	row, err := c.reader.Read()
	if err != nil {
		if err == io.EOF {
			return databarc.Record{}, io.EOF
		}
		return databarc.Record{}, &CSVSourceError{Op: "read_row", Line: c.line + 1, Err: err}
	}
	c.line++

	field := func(i int) (string, error) {
		if i < 0 || i >= len(row) {
			return "", fmt.Errorf("column %d out of range (%d fields)", i, len(row))
		}
		return row[i], nil
	}

	ts, err := field(c.opts.TimeCol)
	if err != nil {
		return databarc.Record{}, &CSVSourceError{Op: "parse_time", Line: c.line, Err: err}
	}
	t, err := time.Parse(c.opts.TimeLayout, ts)
	if err != nil {
		return databarc.Record{}, &CSVSourceError{Op: "parse_time", Line: c.line, Err: err}
	}
	rec := databarc.Record{T: t}

	xs, err := field(c.opts.ValueCol)
	if err != nil {
		return databarc.Record{}, &CSVSourceError{Op: "parse_value", Line: c.line, Err: err}
	}
	if xs != "" {
		x, err := strconv.ParseFloat(xs, 64)
		if err != nil {
			return databarc.Record{}, &CSVSourceError{Op: "parse_value", Line: c.line, Err: err}
		}
		rec.X = &x
	} else {
		c.stats.MissingValues++
	}

	if c.opts.InfoCol >= 0 && c.opts.InfoCol < len(row) {
		if is, _ := field(c.opts.InfoCol); is != "" {
			info, err := strconv.Atoi(is)
			if err != nil {
				return databarc.Record{}, &CSVSourceError{Op: "parse_info", Line: c.line, Err: err}
			}
			rec.Info = info
		}
	}

	c.stats.RecordsRead++
	return rec, nil
}

// ReadAll drains the source into a slice.
func (c *CSVSource) ReadAll(ctx context.Context) ([]databarc.Record, error) {
	var out []databarc.Record
	for {
		rec, err := c.Read(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// Close implements databarc.RecordSource.
func (c *CSVSource) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Stats returns source activity counters.
func (c *CSVSource) Stats() CSVSourceStats {
	return c.stats
}
