// Copyright 2025 Edgeo SCADA
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

package uacodec

import (
	"math"
	"time"
)

// DateTime is a count of 100 nanosecond intervals since 1601-01-01 UTC.
const (
	ticksPerSecond   = 10_000_000
	epochOffsetSecs  = 11_644_473_600 // seconds from 1601-01-01 to 1970-01-01
	nanosPerTick     = 100
	maxDateTimeTicks = (253_402_300_799 + epochOffsetSecs) * ticksPerSecond
)

var (
	// MinDateTime is the earliest representable DateTime. It and anything
	// before it encode as 0, which decodes as the zero time.Time.
	MinDateTime = time.Date(1601, 1, 1, 0, 0, 0, 0, time.UTC)

	// MaxDateTime is the latest representable DateTime. It and anything
	// after it encode as math.MaxInt64.
	MaxDateTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
)

// dateTimeToTicks converts t to wire ticks, clamping at both ends.
func dateTimeToTicks(t time.Time) int64 {
	if t.IsZero() || !t.After(MinDateTime) {
		return 0
	}
	if !t.Before(MaxDateTime) {
		return math.MaxInt64
	}
	return (t.Unix()+epochOffsetSecs)*ticksPerSecond + int64(t.Nanosecond()/nanosPerTick)
}

// ticksToDateTime converts wire ticks to a UTC time, clamping at both ends.
func ticksToDateTime(ticks int64) time.Time {
	switch {
	case ticks <= 0:
		return time.Time{}
	case ticks >= maxDateTimeTicks:
		return MaxDateTime
	}
	secs := ticks/ticksPerSecond - epochOffsetSecs
	nanos := (ticks % ticksPerSecond) * nanosPerTick
	return time.Unix(secs, nanos).UTC()
}
