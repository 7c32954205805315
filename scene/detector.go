package scene

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/retime/video"
)

// Config holds the detector's tunable parameters.
type Config struct {
	// Threshold is the content-difference score above which a boundary is
	// declared.
	Threshold float64
	// MinSceneLength is the minimum frame count a scene must have; shorter
	// scenes merge into their preceding scene.
	MinSceneLength int
	// AdaptiveThreshold scales the threshold with the running mean of the
	// observed content differences.
	AdaptiveThreshold bool
	// DetectFades enables fade/dissolve classification; when disabled every
	// boundary is labeled a cut.
	DetectFades bool
}

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:         30.0,
		MinSceneLength:    15,
		AdaptiveThreshold: false,
		DetectFades:       true,
	}
}

// Detector partitions frame sequences into scenes.
type Detector struct {
	cfg Config
}

// NewDetector validates the configuration and creates a detector.
func NewDetector(cfg Config) (*Detector, error) {
	if cfg.Threshold <= 0 {
		return nil, fmt.Errorf("%w: threshold %v", ErrInvalidConfig, cfg.Threshold)
	}
	if cfg.MinSceneLength < 1 {
		return nil, fmt.Errorf("%w: min scene length %d", ErrInvalidConfig, cfg.MinSceneLength)
	}
	return &Detector{cfg: cfg}, nil
}

// Metric weights for the combined content difference.
const (
	histWeight  = 50.0
	pixelWeight = 0.5
	edgeWeight  = 0.3
)

// DetectChanges scores every adjacent frame pair and returns the boundaries
// whose content difference clears the threshold. Fewer than two frames yield
// an empty list, not an error.
func (d *Detector) DetectChanges(ctx context.Context, frames []*video.Frame, fps float64) ([]Change, error) {
	if len(frames) < 2 {
		return nil, nil
	}
	if fps <= 0 {
		return nil, fmt.Errorf("%w: fps %v", ErrInvalidFrameRate, fps)
	}
	for i := 1; i < len(frames); i++ {
		if !frames[0].SameShape(frames[i]) {
			return nil, fmt.Errorf("%w: frame %d differs from frame 0", video.ErrShapeMismatch, i)
		}
	}

	var changes []Change
	runningSum := 0.0

	prevHist := video.Histogram256(frames[0])
	prevEdges := video.EdgeMagnitude(frames[0])
	prevBrightness := frames[0].MeanBrightness()

	for i := 1; i < len(frames); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hist := video.Histogram256(frames[i])
		edges := video.EdgeMagnitude(frames[i])
		brightness := frames[i].MeanBrightness()

		histDiff := video.HistogramL1(prevHist[:], hist[:])
		pixelDiff, err := video.MeanAbsDiff(frames[i-1], frames[i])
		if err != nil {
			return nil, err
		}
		edgeDiff := meanAbsDiffF(prevEdges, edges)

		contentDiff := histWeight*histDiff + pixelWeight*pixelDiff + edgeWeight*edgeDiff
		runningSum += contentDiff

		threshold := d.cfg.Threshold
		if d.cfg.AdaptiveThreshold && i > 1 {
			mean := runningSum / float64(i)
			threshold = d.cfg.Threshold * (1 + mean/100)
		}

		if contentDiff > threshold {
			metrics := ChangeMetrics{
				HistogramDiff:  histDiff,
				PixelDiff:      pixelDiff,
				EdgeDiff:       edgeDiff,
				ContentDiff:    contentDiff,
				BrightnessDiff: brightness - prevBrightness,
			}
			changes = append(changes, Change{
				FrameNumber: i,
				Timestamp:   float64(i) / fps,
				Confidence:  math.Min(contentDiff/100, 1.0),
				ChangeType:  d.classify(metrics),
				Metrics:     metrics,
			})
		}

		prevHist = hist
		prevEdges = edges
		prevBrightness = brightness
	}

	logrus.WithFields(logrus.Fields{
		"function": "Detector.DetectChanges",
		"frames":   len(frames),
		"changes":  len(changes),
	}).Debug("Scene change scan completed")
	return changes, nil
}

func (d *Detector) classify(m ChangeMetrics) ChangeType {
	if !d.cfg.DetectFades {
		return ChangeCut
	}
	switch {
	case math.Abs(m.BrightnessDiff) > 50 && m.HistogramDiff < 0.3:
		return ChangeFade
	case m.HistogramDiff > 0.3 && m.PixelDiff < 30:
		return ChangeDissolve
	default:
		return ChangeCut
	}
}

// DetectScenes partitions the sequence into an ordered list of scenes. Every
// retained scene has FrameCount >= MinSceneLength; boundaries that would
// create a shorter scene are ignored, merging those frames into the
// preceding scene (a too-short leading scene merges forward instead). A
// sequence shorter than MinSceneLength yields a single scene.
func (d *Detector) DetectScenes(ctx context.Context, frames []*video.Frame, fps float64) ([]Scene, error) {
	if len(frames) < 2 {
		return nil, nil
	}

	changes, err := d.DetectChanges(ctx, frames, fps)
	if err != nil {
		return nil, err
	}

	// Collect boundary starts, dropping any that would leave the previous
	// segment shorter than the minimum.
	starts := []int{0}
	for _, ch := range changes {
		if ch.FrameNumber-starts[len(starts)-1] < d.cfg.MinSceneLength {
			continue
		}
		starts = append(starts, ch.FrameNumber)
	}
	// A too-short tail merges back into the last scene.
	if len(starts) > 1 && len(frames)-starts[len(starts)-1] < d.cfg.MinSceneLength {
		starts = starts[:len(starts)-1]
	}

	scenes := make([]Scene, 0, len(starts))
	for i, start := range starts {
		end := len(frames) - 1
		if i+1 < len(starts) {
			end = starts[i+1] - 1
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scenes = append(scenes, d.buildScene(frames, start, end, fps))
	}

	logrus.WithFields(logrus.Fields{
		"function": "Detector.DetectScenes",
		"frames":   len(frames),
		"scenes":   len(scenes),
	}).Info("Scene detection completed")
	return scenes, nil
}

// Motion threshold separating static from dynamic scenes.
const dynamicMotionThreshold = 5.0

func (d *Detector) buildScene(frames []*video.Frame, start, end int, fps float64) Scene {
	count := end - start + 1

	brightnessSum := 0.0
	for i := start; i <= end; i++ {
		brightnessSum += frames[i].MeanBrightness()
	}
	avgBrightness := brightnessSum / float64(count)

	motionSum := 0.0
	pairs := 0
	for i := start + 1; i <= end; i++ {
		diff, err := video.MeanAbsDiff(frames[i-1], frames[i])
		if err == nil {
			motionSum += diff
			pairs++
		}
	}
	avgMotion := 0.0
	if pairs > 0 {
		avgMotion = motionSum / float64(pairs)
	}

	sceneType := SceneStatic
	if avgMotion > dynamicMotionThreshold {
		sceneType = SceneDynamic
	}

	return Scene{
		StartFrame:        start,
		EndFrame:          end,
		StartTime:         float64(start) / fps,
		EndTime:           float64(end+1) / fps,
		Duration:          float64(count) / fps,
		FrameCount:        count,
		AverageBrightness: avgBrightness,
		AverageMotion:     avgMotion,
		DominantColors:    dominantColors(frames, start, end),
		SceneType:         sceneType,
	}
}

// dominantColors returns up to three representative colors for the scene via
// a 4-level-per-channel quantization over a sampled pixel subset.
func dominantColors(frames []*video.Frame, start, end int) [][3]uint8 {
	const (
		frameStep = 5
		pixelStep = 7
		levels    = 4
	)

	type binStat struct {
		count            int
		sumR, sumG, sumB int64
	}
	bins := make(map[int]*binStat)

	for i := start; i <= end; i += frameStep {
		f := frames[i]
		pixels := f.Width * f.Height
		for p := 0; p < pixels; p += pixelStep {
			var r, g, b uint8
			if f.Channels == 3 {
				r = f.Pix[p*3]
				g = f.Pix[p*3+1]
				b = f.Pix[p*3+2]
			} else {
				r = f.Pix[p]
				g, b = r, r
			}
			key := (int(r)/64)*levels*levels + (int(g)/64)*levels + int(b)/64
			st := bins[key]
			if st == nil {
				st = &binStat{}
				bins[key] = st
			}
			st.count++
			st.sumR += int64(r)
			st.sumG += int64(g)
			st.sumB += int64(b)
		}
	}

	type binEntry struct {
		key int
		st  *binStat
	}
	entries := make([]binEntry, 0, len(bins))
	for k, st := range bins {
		entries = append(entries, binEntry{k, st})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].st.count != entries[j].st.count {
			return entries[i].st.count > entries[j].st.count
		}
		return entries[i].key < entries[j].key
	})

	colors := make([][3]uint8, 0, 3)
	for _, e := range entries {
		if len(colors) == 3 {
			break
		}
		n := int64(e.st.count)
		colors = append(colors, [3]uint8{
			uint8(e.st.sumR / n),
			uint8(e.st.sumG / n),
			uint8(e.st.sumB / n),
		})
	}
	return colors
}

func meanAbsDiffF(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	sum := 0.0
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum / float64(len(a))
}
