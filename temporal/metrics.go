package temporal

import (
	"math"

	"github.com/opd-ai/retime/video"
)

// Metrics describes the temporal consistency of one adjacent frame pair.
// Score fields clamp to [0, 1].
type Metrics struct {
	FrameIndex       int
	ConsistencyScore float64
	FlickerAmount    float64
	ColorDrift       float64
	StructureDrift   float64
	Recommendations  []string
}

// AnalyzeConsistency measures flicker, color drift, and structure drift for
// every adjacent pair. Recommendations are threshold-derived diagnostics
// only; nothing is applied automatically.
func (e *Enforcer) AnalyzeConsistency(frames []*video.Frame) []Metrics {
	if len(frames) < 2 {
		return nil
	}

	metrics := make([]Metrics, 0, len(frames)-1)
	for i := 1; i < len(frames); i++ {
		m := e.analyzePair(frames[i-1], frames[i])
		m.FrameIndex = i
		metrics = append(metrics, m)
	}
	return metrics
}

func (e *Enforcer) analyzePair(a, b *video.Frame) Metrics {
	pixelDiff, err := video.MeanAbsDiff(a, b)
	if err != nil {
		// Mismatched shapes in the middle of a sequence are content-local;
		// report a fully inconsistent pair rather than aborting the run.
		return Metrics{ConsistencyScore: 0, Recommendations: []string{"frames have mismatched shapes"}}
	}

	brightnessDiff := math.Abs(a.MeanBrightness() - b.MeanBrightness())
	flicker := 0.3*brightnessDiff + 0.7*pixelDiff

	histA := video.ChannelHistogram32(a)
	histB := video.ChannelHistogram32(b)
	colorDrift := 0.0
	for c := range histA {
		colorDrift += video.HistogramL1(histA[c][:], histB[c][:])
	}
	colorDrift /= float64(len(histA))

	edgesA := video.EdgeMagnitude(a)
	edgesB := video.EdgeMagnitude(b)
	structSum := 0.0
	for i := range edgesA {
		structSum += math.Abs(edgesA[i] - edgesB[i])
	}
	structureDrift := structSum / float64(len(edgesA)) / 255.0

	score := 1 / (1 + flicker/100 + colorDrift + structureDrift)
	score = clamp01(score)

	return Metrics{
		ConsistencyScore: score,
		FlickerAmount:    flicker,
		ColorDrift:       clamp01(colorDrift),
		StructureDrift:   clamp01(structureDrift),
		Recommendations:  e.recommend(flicker, colorDrift, structureDrift, score),
	}
}

func (e *Enforcer) recommend(flicker, colorDrift, structureDrift, score float64) []string {
	var recs []string
	if flicker > e.cfg.FlickerThreshold {
		recs = append(recs, "increase temporal window to reduce flicker")
	}
	if colorDrift > 0.3 {
		recs = append(recs, "apply color stabilization")
	}
	if structureDrift > 0.1 {
		recs = append(recs, "possible scene change; verify boundary detection")
	}
	if score < 0.5 {
		recs = append(recs, "consider adaptive smoothing")
	}
	return recs
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
