// Package scene segments a frame sequence into contiguous scenes using
// content-difference metrics and classifies the transitions between them.
package scene

// ChangeType labels the transition at a detected scene boundary.
type ChangeType string

const (
	// ChangeCut is an abrupt content change between adjacent frames.
	ChangeCut ChangeType = "cut"
	// ChangeFade is a brightness ramp with mostly stable content layout.
	ChangeFade ChangeType = "fade"
	// ChangeDissolve is a content cross-blend with modest pixel deltas.
	ChangeDissolve ChangeType = "dissolve"
)

// SceneType is a coarse motion classification of a whole scene.
type SceneType string

const (
	// SceneStatic marks scenes with little frame-to-frame change.
	SceneStatic SceneType = "static"
	// SceneDynamic marks scenes with substantial motion.
	SceneDynamic SceneType = "dynamic"
)

// ChangeMetrics carries the per-pair difference measurements behind a
// detected boundary.
type ChangeMetrics struct {
	HistogramDiff  float64
	PixelDiff      float64
	EdgeDiff       float64
	ContentDiff    float64
	BrightnessDiff float64
}

// Change is a transient boundary record, consumed while building the Scene
// list and exposed separately for diagnostics.
type Change struct {
	FrameNumber int
	Timestamp   float64
	Confidence  float64
	ChangeType  ChangeType
	Metrics     ChangeMetrics
}

// Scene is one contiguous segment of the input sequence.
//
// Boundaries are ascending and non-overlapping: EndFrame of scene n is
// strictly less than StartFrame of scene n+1, and together the scenes cover
// the whole sequence.
type Scene struct {
	StartFrame int
	EndFrame   int
	StartTime  float64
	EndTime    float64
	Duration   float64
	FrameCount int

	AverageBrightness float64
	AverageMotion     float64
	DominantColors    [][3]uint8
	SceneType         SceneType
}
