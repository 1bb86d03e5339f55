// Copyright © 2023 FORTH-ICS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package queue

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ParseClock parses durations as printed by batch systems: "[D-]HH:MM:SS", "MM:SS", or "D-HH".
func ParseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}

	var days int64

	if i := strings.IndexByte(s, '-'); i >= 0 {
		d, err := strconv.ParseInt(s[:i], 10, 64)
		if err != nil || d < 0 {
			return 0, errors.Errorf("invalid days in '%s'", s)
		}

		days = d
		s = s[i+1:]
	}

	parts := strings.Split(s, ":")

	var h, m, sec int64

	values := make([]int64, len(parts))

	for i, p := range parts {
		// sacct prints fractional seconds for short jobs, e.g., 00:00.123
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, errors.Errorf("invalid duration '%s'", s)
		}

		values[i] = int64(math.Floor(v))
	}

	switch {
	case len(values) == 3:
		h, m, sec = values[0], values[1], values[2]
	case len(values) == 2 && days > 0:
		h, m = values[0], values[1]
	case len(values) == 2:
		m, sec = values[0], values[1]
	case len(values) == 1 && days > 0:
		h = values[0]
	case len(values) == 1:
		m = values[0]
	default:
		return 0, errors.Errorf("invalid duration '%s'", s)
	}

	return time.Duration(days)*24*time.Hour +
		time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second, nil
}

var sizeUnits = map[string]float64{
	"b":  1.0 / (1 << 20),
	"kb": 1.0 / (1 << 10),
	"k":  1.0 / (1 << 10),
	"mb": 1,
	"m":  1,
	"gb": 1 << 10,
	"g":  1 << 10,
	"tb": 1 << 20,
	"t":  1 << 20,
}

// ParseSizeMB parses memory sizes as printed by batch systems (e.g., "2048mb", "3000kb", "2G")
// and returns them in megabytes, rounded to the nearest one. A bare number is in megabytes.
func ParseSizeMB(s string) (int64, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return 0, errors.New("empty size")
	}

	i := len(v)
	for i > 0 && (v[i-1] < '0' || v[i-1] > '9') {
		i--
	}

	num, unit := v[:i], v[i:]
	if unit == "" {
		unit = "mb"
	}

	scale, ok := sizeUnits[unit]
	if !ok {
		return 0, errors.Errorf("unknown unit in '%s'", s)
	}

	n, err := strconv.ParseFloat(num, 64)
	if err != nil || n < 0 {
		return 0, errors.Errorf("invalid size '%s'", s)
	}

	return int64(math.Round(n * scale)), nil
}
