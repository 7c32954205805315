// Package flow estimates dense per-pixel motion between frame pairs using a
// local least-squares (Lucas-Kanade style) gradient method with gap filling
// for low-texture regions.
package flow

import (
	"math"
	"sort"
)

// MotionVector is a stride-sampled flow vector kept for diagnostics.
type MotionVector struct {
	X         int
	Y         int
	DX        float64
	DY        float64
	Magnitude float64
	Angle     float64
}

// Field is a dense per-pixel motion field between two equally shaped frames.
type Field struct {
	Width  int
	Height int

	FlowX []float64
	FlowY []float64

	// Derived per-pixel arrays.
	Magnitude []float64
	Angle     []float64

	// Summary scalars.
	AvgMotion float64
	MaxMotion float64

	// Stride-sampled vectors, populated when sampling is enabled.
	Vectors []MotionVector
}

// Direction names for the 8-way compass classification.
const (
	DirectionNone      = "none"
	DirectionEast      = "east"
	DirectionNorthEast = "northeast"
	DirectionNorth     = "north"
	DirectionNorthWest = "northwest"
	DirectionWest      = "west"
	DirectionSouthWest = "southwest"
	DirectionSouth     = "south"
	DirectionSouthEast = "southeast"
)

var compassNames = [8]string{
	DirectionEast, DirectionNorthEast, DirectionNorth, DirectionNorthWest,
	DirectionWest, DirectionSouthWest, DirectionSouth, DirectionSouthEast,
}

// DominantDirection classifies the field's overall motion into an 8-way
// compass direction. Fields with negligible motion classify as "none".
func (f *Field) DominantDirection() string {
	const minMotion = 1e-3

	sumX, sumY := 0.0, 0.0
	for i := range f.FlowX {
		sumX += f.FlowX[i]
		// Image rows grow downward; flip Y so north means upward motion.
		sumY -= f.FlowY[i]
	}
	if math.Hypot(sumX, sumY)/float64(len(f.FlowX)) < minMotion {
		return DirectionNone
	}

	angle := math.Atan2(sumY, sumX)
	if angle < 0 {
		angle += 2 * math.Pi
	}
	sector := int(math.Floor(angle/(math.Pi/4) + 0.5)) % 8
	return compassNames[sector]
}

// DirectionalConsistency returns the circular-statistics resultant length
// r in [0, 1] over pixels with meaningful motion: 1 means every vector
// points the same way, 0 means directions cancel out. Fields with no moving
// pixels report 0.
func (f *Field) DirectionalConsistency() float64 {
	const minMagnitude = 1e-3

	sumCos, sumSin := 0.0, 0.0
	n := 0
	for i := range f.FlowX {
		if f.Magnitude[i] < minMagnitude {
			continue
		}
		theta := math.Atan2(f.FlowY[i], f.FlowX[i])
		sumCos += math.Cos(theta)
		sumSin += math.Sin(theta)
		n++
	}
	if n == 0 {
		return 0
	}
	r := math.Hypot(sumCos, sumSin) / float64(n)
	if r > 1 {
		r = 1
	}
	return r
}

// MedianShift returns the per-axis medians of the flow components. This is
// the translation estimate the motion compensator consumes.
func (f *Field) MedianShift() (dx, dy float64) {
	return median(f.FlowX), median(f.FlowY)
}

// MagnitudeStdDev returns the standard deviation of the per-pixel motion
// magnitude around AvgMotion.
func (f *Field) MagnitudeStdDev() float64 {
	if len(f.Magnitude) == 0 {
		return 0
	}
	sum := 0.0
	for _, m := range f.Magnitude {
		d := m - f.AvgMotion
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(f.Magnitude)))
}

func (f *Field) finalize() {
	f.Magnitude = make([]float64, len(f.FlowX))
	f.Angle = make([]float64, len(f.FlowX))
	maxM := 0.0
	sum := 0.0
	for i := range f.FlowX {
		m := math.Hypot(f.FlowX[i], f.FlowY[i])
		f.Magnitude[i] = m
		f.Angle[i] = math.Atan2(f.FlowY[i], f.FlowX[i])
		sum += m
		if m > maxM {
			maxM = m
		}
	}
	if len(f.FlowX) > 0 {
		f.AvgMotion = sum / float64(len(f.FlowX))
	}
	f.MaxMotion = maxM
}

func (f *Field) sampleVectors(stride int) {
	if stride <= 0 {
		stride = 16
	}
	f.Vectors = f.Vectors[:0]
	for y := 0; y < f.Height; y += stride {
		for x := 0; x < f.Width; x += stride {
			idx := y*f.Width + x
			f.Vectors = append(f.Vectors, MotionVector{
				X:         x,
				Y:         y,
				DX:        f.FlowX[idx],
				DY:        f.FlowY[idx],
				Magnitude: f.Magnitude[idx],
				Angle:     f.Angle[idx],
			})
		}
	}
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
