package pktgen

import (
	"fmt"
)

// Region is a range of the packet buffer.
type Region struct {
	Offset int
	Length int
}

// End returns the offset after the last octet.
func (r Region) End() int {
	return r.Offset + r.Length
}

// Overlaps determines whether two regions share any octet.
func (r Region) Overlaps(o Region) bool {
	return r.Length > 0 && o.Length > 0 && r.Offset < o.End() && o.Offset < r.End()
}

func (r Region) String() string {
	return fmt.Sprintf("[%d,%d)", r.Offset, r.End())
}
