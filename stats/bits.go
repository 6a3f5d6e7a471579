package stats

import "math"

func float64bits(v float64) uint64     { return math.Float64bits(v) }
func float64fromBits(b uint64) float64 { return math.Float64frombits(b) }
