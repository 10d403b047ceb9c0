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
	"time"

	"github.com/betaplane/databarc"
)

// Predefined aggregation sets for the data sources this engine grew up with.
// Codes follow the source conventions: d wind direction, f wind speed,
// n cloud cover, p pressure, t temperature, rh relative humidity, r
// precipitation, s sunshine, dewp dew point, stp station pressure.

// DMIDaily aggregates DMI sub-daily series to days. Wind direction depends
// on wind speed to suppress calm samples; precipitation uses the extended
// accumulation window with a six hour postpone to rescue late readings.
var DMIDaily = ConfigSet{
	"d":  {Kind: databarc.Int, Func: "wind_dir", Aux: []string{"f"}},
	"f":  {Kind: databarc.Float, Func: "mean"},
	"n":  {Kind: databarc.Int, Func: "mean"},
	"p":  {Kind: databarc.Float, Func: "mean"},
	"t":  {Kind: databarc.Float, Func: "mean"},
	"rh": {Kind: databarc.Float, Func: "mean"},
	"r":  {Kind: databarc.Int, Func: "rain_xt", Postpone: 6 * time.Hour},
	"s":  {Kind: databarc.Int, Func: "mean"},
}

// DMIMonthly aggregates DMI series to months. Monthly precipitation runs
// from 06 UTC on the first of the month to 06 UTC on the first of the next.
var DMIMonthly = ConfigSet{
	"d":   {Kind: databarc.Int, Func: "wind_dir"},
	"f":   {Kind: databarc.Float, Func: "mean"},
	"n":   {Kind: databarc.Int, Func: "mean"},
	"p":   {Kind: databarc.Float, Func: "mean"},
	"t":   {Kind: databarc.Float, Func: "mean"},
	"rh":  {Kind: databarc.Float, Func: "mean"},
	"r":   {Kind: databarc.Int, Func: "rain_month"},
	"rbc": {Kind: databarc.Int, Func: "rain_month", Name: "r bias-corr month"},
	"s":   {Kind: databarc.Int, Func: "mean"},
}

// NCDCDaily aggregates NCDC series to days. NCDC marks variable wind
// direction with 990 in-band.
var NCDCDaily = ConfigSet{
	"d": {Kind: databarc.Float, Func: "wind_dir",
		Flags: []databarc.Flag{{Value: 990, Desc: "variable", InData: true}}},
	"f":    {Kind: databarc.Float, Func: "mean"},
	"t":    {Kind: databarc.Float, Func: "mean"},
	"dewp": {Kind: databarc.Float, Func: "mean"},
	"p":    {Kind: databarc.Float, Func: "mean"},
	"stp":  {Kind: databarc.Float, Func: "mean"},
}

// SetByName resolves a named aggregation set. Unknown names are a
// configuration error.
func SetByName(name string) (ConfigSet, error) {
	switch name {
	case "dmi_daily":
		return DMIDaily, nil
	case "dmi_monthly":
		return DMIMonthly, nil
	case "ncdc_daily":
		return NCDCDaily, nil
	}
	return nil, fmt.Errorf("unknown aggregation set %q", name)
}
