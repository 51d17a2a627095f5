package lunify

import "math"

func rawToFloat32(bits uint32) float32 { return math.Float32frombits(bits) }
func rawToFloat64(bits uint64) float64 { return math.Float64frombits(bits) }

func float32ToRaw(f float32) uint32 { return math.Float32bits(f) }
func float64ToRaw(f float64) uint64 { return math.Float64bits(f) }
