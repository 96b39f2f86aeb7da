// Package runningstat implements Knuth and Welford's method for computing the standard deviation.
package runningstat

import (
	"math"
	"time"
)

// RunningStat collects statistics and allows computing min, max, mean, and variance.
// Algorithm comes from https://www.johndcook.com/blog/standard_deviation/ .
// The zero value is an empty instance.
type RunningStat struct {
	n        uint64
	m1, m2   float64
	min, max float64
}

// Push adds an input.
func (s *RunningStat) Push(x float64) {
	s.n++
	if s.n == 1 {
		s.m1, s.m2 = x, 0
		s.min, s.max = x, x
		return
	}

	delta := x - s.m1
	s.m1 += delta / float64(s.n)
	s.m2 += delta * (x - s.m1)
	s.min, s.max = math.Min(s.min, x), math.Max(s.max, x)
}

// PushDuration adds a duration input in nanoseconds.
func (s *RunningStat) PushDuration(d time.Duration) {
	s.Push(float64(d))
}

// Clear deletes collected data.
func (s *RunningStat) Clear() {
	*s = RunningStat{}
}

// Read returns current counters as Snapshot.
func (s RunningStat) Read() Snapshot {
	return newSnapshot(s.n, s.m1, s.m2, s.min, s.max)
}
