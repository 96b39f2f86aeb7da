package runningstat

import (
	"math"
	"time"
)

// Snapshot contains a snapshot of RunningStat reading.
type Snapshot struct {
	Count    uint64  `json:"count"`
	Mean     float64 `json:"mean"`     // valid if Count>0
	Variance float64 `json:"variance"` // valid if Count>1
	Stdev    float64 `json:"stdev"`    // valid if Count>1
	Min      float64 `json:"min"`      // valid if Count>0
	Max      float64 `json:"max"`      // valid if Count>0
	M1       float64 `json:"m1"`
	M2       float64 `json:"m2"`
}

// Add combines stats with another instance.
func (s Snapshot) Add(o Snapshot) Snapshot {
	if s.Count == 0 {
		return o
	} else if o.Count == 0 {
		return s
	}
	n := s.Count + o.Count
	aN, bN, cN := float64(s.Count), float64(o.Count), float64(n)
	delta := o.M1 - s.M1
	m1 := (aN*s.M1 + bN*o.M1) / cN
	m2 := s.M2 + o.M2 + delta*delta*aN*bN/cN
	return newSnapshot(n, m1, m2, math.Min(s.Min, o.Min), math.Max(s.Max, o.Max))
}

// Durations interprets mean, min, max as nanoseconds.
func (s Snapshot) Durations() (mean, min, max time.Duration) {
	return time.Duration(s.Mean), time.Duration(s.Min), time.Duration(s.Max)
}

func newSnapshot(n uint64, m1, m2, min, max float64) (s Snapshot) {
	s.Count = n
	s.M1, s.M2 = m1, m2
	if n > 0 {
		s.Mean = m1
		s.Min, s.Max = min, max
	}
	if n > 1 {
		s.Variance = m2 / float64(n-1)
		s.Stdev = math.Sqrt(s.Variance)
	}
	return s
}
