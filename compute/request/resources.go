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

package request

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/carv-ics-forth/batchq/compute"
	"github.com/hashicorp/go-multierror"
	"k8s.io/apimachinery/pkg/api/resource"
)

const (
	// MegabytesPerGigabyte follows the batch systems, which count memory in binary units.
	MegabytesPerGigabyte = 1024

	bytesPerMegabyte = 1 << 20
)

// Resources is what a job asks from the batch system.
//
// Walltime is kept at second granularity and memory at megabyte granularity, since these
// are the smallest units accepted by the queue systems. Fractional input is rounded to the
// nearest unit, except for CPUs, which are rounded up so that a job never gets less than it asked for.
type Resources struct {
	Walltime time.Duration
	MemoryMB int64
	CPU      int
}

// ParseResources converts flag values into Resources. All malformed values are reported together.
func ParseResources(walltime, memory, cpu string) (Resources, error) {
	var (
		res  Resources
		err  error
		merr *multierror.Error
	)

	if res.Walltime, err = ParseWalltime(walltime); err != nil {
		merr = multierror.Append(merr, err)
	}

	if res.MemoryMB, err = ParseMemory(memory); err != nil {
		merr = multierror.Append(merr, err)
	}

	if res.CPU, err = ParseCPU(cpu); err != nil {
		merr = multierror.Append(merr, err)
	}

	return res, merr.ErrorOrNil()
}

// ParseWalltime accepts fractional hours (e.g., "24.5"), or a clock value "HH:MM:SS".
func ParseWalltime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	if strings.Contains(s, ":") {
		return parseClock(s)
	}

	hours, err := parsePositive(s)
	if err != nil {
		return 0, compute.MalformedRequest("walltime="+s, "walltime must be a positive number of hours: %v", err)
	}

	seconds := math.Round(hours * 3600)
	if seconds < 1 {
		return 0, compute.MalformedRequest("walltime="+s, "walltime is shorter than one second")
	}

	if seconds > math.MaxInt64/float64(time.Second) {
		return 0, compute.MalformedRequest("walltime="+s, "walltime is too long")
	}

	return time.Duration(seconds) * time.Second, nil
}

func parseClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, compute.MalformedRequest("walltime="+s, "expected HH:MM:SS")
	}

	var fields [3]int64

	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || v < 0 || (i > 0 && v >= 60) {
			return 0, compute.MalformedRequest("walltime="+s, "expected HH:MM:SS")
		}

		fields[i] = v
	}

	d := time.Duration(fields[0])*time.Hour + time.Duration(fields[1])*time.Minute + time.Duration(fields[2])*time.Second
	if d <= 0 {
		return 0, compute.MalformedRequest("walltime="+s, "walltime must be positive")
	}

	return d, nil
}

// ParseMemory accepts fractional gigabytes (e.g., "2.5"), or a quantity with a unit suffix
// (e.g., "512Mi", "3G", "1.5Gi").
func ParseMemory(s string) (int64, error) {
	s = strings.TrimSpace(s)

	var mb float64

	if gb, err := strconv.ParseFloat(s, 64); err == nil {
		if _, err := parsePositive(s); err != nil {
			return 0, compute.MalformedRequest("memory="+s, "memory must be a positive number of GB: %v", err)
		}

		mb = gb * MegabytesPerGigabyte
	} else {
		q, err := resource.ParseQuantity(s)
		if err != nil {
			return 0, compute.MalformedRequest("memory="+s, "memory must be GB or a quantity like 512Mi: %v", err)
		}

		if q.Sign() <= 0 {
			return 0, compute.MalformedRequest("memory="+s, "memory must be positive")
		}

		mb = float64(q.Value()) / bytesPerMegabyte
	}

	rounded := math.Round(mb)
	if rounded < 1 {
		return 0, compute.MalformedRequest("memory="+s, "memory is less than 1MB")
	}

	if rounded > math.MaxInt64/2 {
		return 0, compute.MalformedRequest("memory="+s, "memory is too large")
	}

	return int64(rounded), nil
}

// ParseCPU accepts a whole or fractional number of CPUs. Fractions are rounded up.
func ParseCPU(s string) (int, error) {
	s = strings.TrimSpace(s)

	cpus, err := parsePositive(s)
	if err != nil {
		return 0, compute.MalformedRequest("cpu="+s, "cpu must be a positive number: %v", err)
	}

	if cpus > math.MaxInt32 {
		return 0, compute.MalformedRequest("cpu="+s, "cpu count is too large")
	}

	return int(math.Ceil(cpus)), nil
}

func parsePositive(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("'%s' is not a number", s)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("'%s' is not a finite number", s)
	}

	if v <= 0 {
		return 0, fmt.Errorf("'%s' is not positive", s)
	}

	return v, nil
}

// Validate checks that resources have been set.
func (r Resources) Validate() error {
	var merr *multierror.Error

	if r.Walltime <= 0 {
		merr = multierror.Append(merr, compute.MalformedRequest("walltime", "walltime must be positive"))
	}

	if r.MemoryMB <= 0 {
		merr = multierror.Append(merr, compute.MalformedRequest("memory", "memory must be positive"))
	}

	if r.CPU <= 0 {
		merr = multierror.Append(merr, compute.MalformedRequest("cpu", "cpu must be positive"))
	}

	return merr.ErrorOrNil()
}

// Hours is the walltime as fractional hours.
func (r Resources) Hours() float64 {
	return r.Walltime.Hours()
}

// MemoryGB is the memory as fractional gigabytes.
func (r Resources) MemoryGB() float64 {
	return float64(r.MemoryMB) / MegabytesPerGigabyte
}

// Clock formats the walltime as HH:MM:SS. Hours are not wrapped into days.
func (r Resources) Clock() string {
	total := int64(r.Walltime / time.Second)

	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// FormatFloat prints a float without trailing zeros, e.g. 24.5 or 2.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
