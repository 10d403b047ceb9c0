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
	"fmt"
	"math"
	"time"

	"github.com/betaplane/databarc"
)

// Package aggregate implements the temporal aggregation engine: interval
// binning state machines, reduction strategies, auxiliary channels between
// concurrently running aggregations, and the batch scheduler.
//
// This file contains the reduction strategies. A reduction consumes one
// flushed bin and either emits a value/info pair or declines to emit.

// ReduceContext carries everything a reduction may consult for one bin: the
// bin itself, the parent series' sentinel values, readers for auxiliary
// series, and the previously emitted output record. Reductions must not
// mutate the bin.
type ReduceContext struct {
	// T is the timestamp the emitted record will carry.
	T time.Time
	// Bin holds the records of the current interval.
	Bin databarc.Bin
	// Sentinels is the set of in-data flag values inherited from the parent
	// series, excluded from numeric reduction.
	Sentinels []float64
	// Aux maps auxiliary series codes to their time-aligned bin readers.
	Aux map[string]AuxReader
	// Prev is the last emitted output record of this aggregation, nil before
	// the first emission.
	Prev *databarc.OutputRecord
}

// Filtered returns the values of bin excluding missing values and sentinels.
func (rc *ReduceContext) Filtered(bin databarc.Bin) []float64 {
	var out []float64
	for _, r := range bin {
		if r.X == nil || rc.isSentinel(*r.X) {
			continue
		}
		out = append(out, *r.X)
	}
	return out
}

func (rc *ReduceContext) isSentinel(x float64) bool {
	for _, v := range rc.Sentinels {
		if x == v {
			return true
		}
	}
	return false
}

// Result is the output of a reduction: the aggregated value (nil for an
// explicit missing value) and an auxiliary integer, typically a sample count.
type Result struct {
	X    *float64
	Info int
}

// Reducer is the strategy applied to each flushed bin. The boolean return
// reports whether a record should be emitted for the interval.
type Reducer interface {
	Reduce(rc *ReduceContext) (Result, bool)
}

// ReducerFunc adapts an ordinary function to the Reducer interface.
type ReducerFunc func(rc *ReduceContext) (Result, bool)

// Reduce implements Reducer for ReducerFunc.
func (f ReducerFunc) Reduce(rc *ReduceContext) (Result, bool) { return f(rc) }

// Mean is the arithmetic mean over non-missing, non-sentinel values. A bin
// that holds only missing or sentinel values emits an explicit missing value
// with a zero sample count; an empty bin emits nothing.
func Mean(rc *ReduceContext) (Result, bool) {
	x := rc.Filtered(rc.Bin)
	if len(x) == 0 {
		if len(rc.Bin) > 0 {
			return Result{}, true
		}
		return Result{}, false
	}
	var sum float64
	for _, v := range x {
		sum += v
	}
	return Result{X: databarc.F(sum / float64(len(x))), Info: len(x)}, true
}

// VariableDirection is the sentinel emitted for a wind-direction bin whose
// samples were all suppressed or flagged.
const VariableDirection = 999

// WindDirection computes the circular (vector) mean of directions in degrees.
// When an auxiliary channel for AuxCode is present, samples whose concurrent
// auxiliary value is missing or <= 0 are suppressed first; calm air carries
// no direction information.
type WindDirection struct {
	// AuxCode names the auxiliary series holding the paired speeds,
	// conventionally "f".
	AuxCode string
}

// Reduce implements Reducer.
func (w WindDirection) Reduce(rc *ReduceContext) (Result, bool) {
	samples := rc.Bin
	if aux, ok := rc.Aux[w.AuxCode]; ok {
		auxBin := aux.Next(rc.T)
		samples = nil
		for _, r := range rc.Bin {
			if speed, found := lookupAt(auxBin, r.T); found && (speed == nil || *speed <= 0) {
				continue
			}
			samples = append(samples, r)
		}
	}
	y := rc.Filtered(samples)
	if len(y) == 0 {
		if len(rc.Bin) == 0 {
			return Result{}, false
		}
		return Result{X: databarc.F(VariableDirection), Info: len(samples)}, true
	}
	var sin, cos float64
	for _, deg := range y {
		rad := deg * math.Pi / 180
		sin += math.Sin(rad)
		cos += math.Cos(rad)
	}
	n := float64(len(y))
	d := int(math.Round(math.Atan2(sin/n, cos/n) * 180 / math.Pi))
	if d < 0 {
		d += 360
	}
	return Result{X: databarc.F(float64(d)), Info: len(y)}, true
}

// lookupAt returns the value of the bin record with exactly timestamp t.
func lookupAt(bin databarc.Bin, t time.Time) (*float64, bool) {
	for _, r := range bin {
		if r.T.Equal(t) {
			return r.X, true
		}
	}
	return nil, false
}

// clampPos treats a missing or negative reading as zero accumulation.
func clampPos(x *float64) float64 {
	if x == nil || *x < 0 {
		return 0
	}
	return *x
}

// traceValue is emitted when accumulated precipitation is zero but a trace
// sentinel was present in the bin.
const traceValue = -1

// RainOrig sums the accumulation readings nearest to hours 12-18 and 0-6,
// keeping the latest reading within each half-day window. A zero total with a
// trace sentinel present emits -1 (trace) instead of 0.
func RainOrig(rc *ReduceContext) (Result, bool) {
	if len(rc.Bin) == 0 {
		return Result{}, false
	}
	var a, b float64
	trace := false
	for _, r := range rc.Bin {
		if len(rc.Sentinels) > 0 && r.X != nil && *r.X == rc.Sentinels[0] {
			trace = true
		}
		switch h := r.T.Hour(); {
		case h >= 12 && h <= 18:
			a = clampPos(r.X)
		case h >= 0 && h <= 6:
			b = clampPos(r.X)
		}
	}
	total := a + b
	if total == 0 && trace {
		return Result{X: databarc.F(traceValue)}, true
	}
	return Result{X: databarc.F(total)}, true
}

// RainDMI merges the overlapping 6h/12h accumulation readings taken at hours
// 12, 18, 0 and 6 in DMI data. Within each half-day the later reading either
// supersedes the earlier one (it already contains it) or, when smaller, adds
// to it.
func RainDMI(rc *ReduceContext) (Result, bool) {
	if len(rc.Bin) == 0 {
		return Result{}, false
	}
	var a, b float64
	trace := false
	for _, r := range rc.Bin {
		if len(rc.Sentinels) > 0 && r.X != nil && *r.X == rc.Sentinels[0] {
			trace = true
		}
		x := clampPos(r.X)
		switch r.T.Hour() {
		case 12:
			a = x
		case 18:
			if x > a {
				a = x
			} else {
				a = x + a
			}
		case 0:
			b = x
		case 6:
			if x > b {
				b = x
			} else {
				b = x + b
			}
		}
	}
	total := a + b
	if total == 0 && trace {
		return Result{X: databarc.F(traceValue)}, true
	}
	return Result{X: databarc.F(total)}, true
}

// DefaultAccumulationHours returns the accumulation window length, in hours,
// implied by a record's hour of day: 12h cycles reset at 06 and 18 UTC, with
// off-cycle readings spanning hour%12+6 hours.
func DefaultAccumulationHours(r databarc.Record) int {
	return r.T.Hour()%12 + 6
}

// InfoAccumulationHours uses a record's info column as the accumulation
// window length when set and not the 99 "unknown" marker, falling back to the
// hour-of-day rule.
func InfoAccumulationHours(r databarc.Record) int {
	if r.Info != 0 && r.Info != 99 {
		return r.Info
	}
	return DefaultAccumulationHours(r)
}

// RainExtended walks the bin in reverse chronological order, summing readings
// whose accumulation windows chain together without gaps. Each record covers
// the Hours(r) hours preceding its timestamp; a reading is counted while its
// timestamp does not exceed the running window start left by the previous
// (later) reading.
//
// With CheckStart set, an amount already attributed to the previous output
// interval's last binned record is subtracted to avoid double counting. When
// the previous output record has no provenance entries no correction is
// applied.
//
// Use a postponed daily window with the default hour rule; otherwise binning
// starts too early on the previous day.
type RainExtended struct {
	Hours      func(r databarc.Record) int
	CheckStart bool
}

// Reduce implements Reducer.
func (re RainExtended) Reduce(rc *ReduceContext) (Result, bool) {
	if len(rc.Bin) == 0 {
		return Result{}, false
	}
	hours := re.Hours
	if hours == nil {
		hours = DefaultAccumulationHours
	}
	trace := false
	t := rc.Bin[len(rc.Bin)-1].T
	var total float64
	var dt time.Duration
	for i := len(rc.Bin) - 1; i >= 0; i-- {
		r := rc.Bin[i]
		dt = time.Duration(hours(r)) * time.Hour
		if r.X == nil {
			continue
		}
		if *r.X == traceValue {
			trace = true
		} else if !r.T.After(t) {
			total += *r.X
			t = r.T.Add(-dt)
		}
	}
	if re.CheckStart && rc.Prev != nil && len(rc.Prev.Binned) > 0 {
		p := rc.Prev.Binned[len(rc.Prev.Binned)-1]
		if p.X != nil && p.T.Add(-dt).Equal(t) && *p.X <= total {
			total -= *p.X
		}
	}
	if total == 0 && trace {
		return Result{X: databarc.F(traceValue)}, true
	}
	return Result{X: databarc.F(total)}, true
}

// RainMonthly sums the non-sentinel values of a monthly bin. A non-empty bin
// of only sentinel values emits the record count scaled by the implicit trace
// unit (every trace is at most 0.1 mm at x10 scaling).
func RainMonthly(rc *ReduceContext) (Result, bool) {
	x := rc.Filtered(rc.Bin)
	if len(x) == 0 {
		if len(rc.Bin) > 0 {
			return Result{X: databarc.F(float64(len(rc.Bin)))}, true
		}
		return Result{}, false
	}
	var sum float64
	for _, v := range x {
		sum += v
	}
	return Result{X: databarc.F(sum), Info: len(rc.Bin)}, true
}

// NewReducer resolves a reduction function by its registered name. An unknown
// name is a configuration error.
func NewReducer(name string) (Reducer, error) {
	switch name {
	case "mean":
		return ReducerFunc(Mean), nil
	case "wind_dir":
		return WindDirection{AuxCode: "f"}, nil
	case "rain_orig":
		return ReducerFunc(RainOrig), nil
	case "rain_dmi":
		return ReducerFunc(RainDMI), nil
	case "rain_xt":
		return RainExtended{CheckStart: true}, nil
	case "rain_xt_info":
		return RainExtended{Hours: InfoAccumulationHours, CheckStart: true}, nil
	case "rain_month":
		return ReducerFunc(RainMonthly), nil
	}
	return nil, fmt.Errorf("%w: %q", databarc.ErrUnknownReducer, name)
}
