// Package nnduration provides JSON-compatible non-negative duration types.
//
// Each type decodes from either an integer in its own unit, or a string accepted by time.ParseDuration.
// A string that is not a whole number of the unit is rejected rather than truncated.
package nnduration

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func parse(input string, unit time.Duration) (value uint64, e error) {
	if d, e := time.ParseDuration(input); e == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative duration %s", input)
		}
		if d%unit != 0 {
			return 0, fmt.Errorf("duration %s is not a multiple of %s", input, unit)
		}
		return uint64(d / unit), nil
	}
	return strconv.ParseUint(input, 10, 64)
}

func parseJSON(p []byte, unit time.Duration) (uint64, error) {
	return parse(strings.Trim(string(p), `"`), unit)
}

// Seconds is a duration in seconds.
type Seconds uint64

// Duration converts to time.Duration.
func (d Seconds) Duration() time.Duration {
	return time.Duration(d) * time.Second
}

// DurationOr converts to time.Duration, using dflt if zero.
func (d Seconds) DurationOr(dflt Seconds) time.Duration {
	if d == 0 {
		return dflt.Duration()
	}
	return d.Duration()
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (d *Seconds) UnmarshalJSON(p []byte) error {
	v, e := parseJSON(p, time.Second)
	if e != nil {
		return e
	}
	*d = Seconds(v)
	return nil
}

// Milliseconds is a duration in milliseconds.
type Milliseconds uint64

// Duration converts to time.Duration.
func (d Milliseconds) Duration() time.Duration {
	return time.Duration(d) * time.Millisecond
}

// DurationOr converts to time.Duration, using dflt if zero.
func (d Milliseconds) DurationOr(dflt Milliseconds) time.Duration {
	if d == 0 {
		return dflt.Duration()
	}
	return d.Duration()
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (d *Milliseconds) UnmarshalJSON(p []byte) error {
	v, e := parseJSON(p, time.Millisecond)
	if e != nil {
		return e
	}
	*d = Milliseconds(v)
	return nil
}

// Nanoseconds is a duration in nanoseconds.
type Nanoseconds uint64

// Duration converts to time.Duration.
func (d Nanoseconds) Duration() time.Duration {
	return time.Duration(d)
}

// DurationOr converts to time.Duration, using dflt if zero.
func (d Nanoseconds) DurationOr(dflt Nanoseconds) time.Duration {
	if d == 0 {
		return dflt.Duration()
	}
	return d.Duration()
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (d *Nanoseconds) UnmarshalJSON(p []byte) error {
	v, e := parseJSON(p, time.Nanosecond)
	if e != nil {
		return e
	}
	*d = Nanoseconds(v)
	return nil
}
