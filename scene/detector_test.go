package scene

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/retime/video"
)

func grayFrame(t *testing.T, value uint8) *video.Frame {
	t.Helper()
	f, err := video.NewFrameFilled(64, 64, 3, value)
	require.NoError(t, err)
	return f
}

// gradientFrame builds a horizontal sawtooth whose value set is closed under
// the per-frame shift, so adjacent frames share a histogram while each pixel
// moves by a fixed step.
func gradientFrame(t *testing.T, offset int) *video.Frame {
	t.Helper()
	f, err := video.NewFrame(64, 64, 3)
	require.NoError(t, err)
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8((x*4 + offset) % 256)
			for c := 0; c < 3; c++ {
				f.SetAt(x, y, c, v)
			}
		}
	}
	return f
}

func TestNewDetector_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"zero threshold", Config{Threshold: 0, MinSceneLength: 10}, true},
		{"negative threshold", Config{Threshold: -5, MinSceneLength: 10}, true},
		{"zero min length", Config{Threshold: 30, MinSceneLength: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDetector(tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDetectChanges_TooFewFrames(t *testing.T) {
	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)

	changes, err := d.DetectChanges(context.Background(), nil, 24)
	assert.NoError(t, err)
	assert.Empty(t, changes)

	changes, err = d.DetectChanges(context.Background(), []*video.Frame{grayFrame(t, 128)}, 24)
	assert.NoError(t, err)
	assert.Empty(t, changes)
}

func TestDetectChanges_InvalidFrameRate(t *testing.T) {
	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)

	frames := []*video.Frame{grayFrame(t, 128), grayFrame(t, 128)}
	_, err = d.DetectChanges(context.Background(), frames, 0)
	assert.ErrorIs(t, err, ErrInvalidFrameRate)
	_, err = d.DetectChanges(context.Background(), frames, -24)
	assert.ErrorIs(t, err, ErrInvalidFrameRate)
}

func TestDetectChanges_ShapeMismatch(t *testing.T) {
	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)

	small, err := video.NewFrameFilled(32, 32, 3, 128)
	require.NoError(t, err)
	frames := []*video.Frame{grayFrame(t, 128), small}
	_, err = d.DetectChanges(context.Background(), frames, 24)
	assert.ErrorIs(t, err, video.ErrShapeMismatch)
}

func TestDetectChanges_StaticSequenceHasNone(t *testing.T) {
	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)

	frames := make([]*video.Frame, 10)
	for i := range frames {
		frames[i] = grayFrame(t, 128)
	}
	changes, err := d.DetectChanges(context.Background(), frames, 24)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestDetectChanges_FindsCut(t *testing.T) {
	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)

	frames := make([]*video.Frame, 0, 8)
	for i := 0; i < 4; i++ {
		frames = append(frames, grayFrame(t, 128))
	}
	for i := 0; i < 4; i++ {
		frames = append(frames, gradientFrame(t, 16*i))
	}

	changes, err := d.DetectChanges(context.Background(), frames, 24)
	require.NoError(t, err)
	require.Len(t, changes, 1)

	ch := changes[0]
	assert.Equal(t, 4, ch.FrameNumber)
	assert.InDelta(t, 4.0/24.0, ch.Timestamp, 1e-9)
	assert.Equal(t, ChangeCut, ch.ChangeType)
	assert.Greater(t, ch.Confidence, 0.0)
	assert.LessOrEqual(t, ch.Confidence, 1.0)
	assert.Greater(t, ch.Metrics.ContentDiff, d.cfg.Threshold)
}

func TestDetectChanges_AdaptiveThreshold(t *testing.T) {
	// Every adjacent pair carries the same moderate content difference,
	// just above the base threshold. The static detector flags them all;
	// the adaptive detector raises its threshold with the running mean
	// from the second pair on and keeps only the first boundary.
	frames := make([]*video.Frame, 0, 6)
	for i := 0; i < 6; i++ {
		frames = append(frames, gradientFrame(t, 40*i))
	}

	static, err := NewDetector(DefaultConfig())
	require.NoError(t, err)
	changes, err := static.DetectChanges(context.Background(), frames, 24)
	require.NoError(t, err)
	assert.Len(t, changes, 5)

	cfg := DefaultConfig()
	cfg.AdaptiveThreshold = true
	adaptive, err := NewDetector(cfg)
	require.NoError(t, err)
	changes, err = adaptive.DetectChanges(context.Background(), frames, 24)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, 1, changes[0].FrameNumber)
}

func TestDetectChanges_Cancellation(t *testing.T) {
	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frames := []*video.Frame{grayFrame(t, 128), grayFrame(t, 128)}
	_, err = d.DetectChanges(ctx, frames, 24)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectScenes_StaticThenDynamic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSceneLength = 10
	d, err := NewDetector(cfg)
	require.NoError(t, err)

	frames := make([]*video.Frame, 0, 24)
	for i := 0; i < 12; i++ {
		frames = append(frames, grayFrame(t, 128))
	}
	for i := 0; i < 12; i++ {
		frames = append(frames, gradientFrame(t, 16*i))
	}

	scenes, err := d.DetectScenes(context.Background(), frames, 24)
	require.NoError(t, err)
	require.Len(t, scenes, 2)

	first, second := scenes[0], scenes[1]
	assert.Equal(t, 0, first.StartFrame)
	assert.Equal(t, 11, first.EndFrame)
	assert.Equal(t, 12, first.FrameCount)
	assert.Equal(t, SceneStatic, first.SceneType)
	assert.InDelta(t, 128.0, first.AverageBrightness, 1.0)
	assert.Zero(t, first.AverageMotion)

	assert.Equal(t, 12, second.StartFrame)
	assert.Equal(t, 23, second.EndFrame)
	assert.Equal(t, 12, second.FrameCount)
	assert.Equal(t, SceneDynamic, second.SceneType)
	assert.Greater(t, second.AverageMotion, dynamicMotionThreshold)

	assert.InDelta(t, 0.0, first.StartTime, 1e-9)
	assert.InDelta(t, 12.0/24.0, first.EndTime, 1e-9)
	assert.InDelta(t, 12.0/24.0, second.StartTime, 1e-9)
	assert.InDelta(t, 12.0/24.0, first.Duration, 1e-9)
}

func TestDetectScenes_ShortSceneMergesIntoPreceding(t *testing.T) {
	// Default minimum of 15 frames swallows both 12-frame segments.
	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)

	frames := make([]*video.Frame, 0, 24)
	for i := 0; i < 12; i++ {
		frames = append(frames, grayFrame(t, 128))
	}
	for i := 0; i < 12; i++ {
		frames = append(frames, gradientFrame(t, 16*i))
	}

	scenes, err := d.DetectScenes(context.Background(), frames, 24)
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	assert.Equal(t, 0, scenes[0].StartFrame)
	assert.Equal(t, 23, scenes[0].EndFrame)
	assert.Equal(t, 24, scenes[0].FrameCount)
}

func TestDetectScenes_CoverageAndOrdering(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSceneLength = 10
	d, err := NewDetector(cfg)
	require.NoError(t, err)

	frames := make([]*video.Frame, 0, 36)
	for i := 0; i < 12; i++ {
		frames = append(frames, grayFrame(t, 40))
	}
	for i := 0; i < 12; i++ {
		frames = append(frames, grayFrame(t, 220))
	}
	for i := 0; i < 12; i++ {
		frames = append(frames, gradientFrame(t, 16*i))
	}

	scenes, err := d.DetectScenes(context.Background(), frames, 24)
	require.NoError(t, err)
	require.NotEmpty(t, scenes)

	assert.Equal(t, 0, scenes[0].StartFrame)
	assert.Equal(t, len(frames)-1, scenes[len(scenes)-1].EndFrame)
	for i := 1; i < len(scenes); i++ {
		assert.Equal(t, scenes[i-1].EndFrame+1, scenes[i].StartFrame)
	}
	for _, s := range scenes {
		assert.GreaterOrEqual(t, s.FrameCount, cfg.MinSceneLength)
	}
}

func TestDetectScenes_TooFewFrames(t *testing.T) {
	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)

	scenes, err := d.DetectScenes(context.Background(), []*video.Frame{grayFrame(t, 128)}, 24)
	assert.NoError(t, err)
	assert.Empty(t, scenes)
}

func TestDetectScenes_DominantColors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSceneLength = 5
	d, err := NewDetector(cfg)
	require.NoError(t, err)

	frames := make([]*video.Frame, 6)
	for i := range frames {
		frames[i] = grayFrame(t, 100)
	}

	scenes, err := d.DetectScenes(context.Background(), frames, 24)
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	require.NotEmpty(t, scenes[0].DominantColors)
	assert.Equal(t, [3]uint8{100, 100, 100}, scenes[0].DominantColors[0])
}

func TestClassify_FadeAndDissolve(t *testing.T) {
	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)

	tests := []struct {
		name string
		m    ChangeMetrics
		want ChangeType
	}{
		{"brightness ramp", ChangeMetrics{BrightnessDiff: 60, HistogramDiff: 0.1}, ChangeFade},
		{"cross blend", ChangeMetrics{HistogramDiff: 0.5, PixelDiff: 10}, ChangeDissolve},
		{"abrupt", ChangeMetrics{HistogramDiff: 0.5, PixelDiff: 80}, ChangeCut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.classify(tt.m))
		})
	}

	noFades := DefaultConfig()
	noFades.DetectFades = false
	d2, err := NewDetector(noFades)
	require.NoError(t, err)
	assert.Equal(t, ChangeCut, d2.classify(ChangeMetrics{BrightnessDiff: 60, HistogramDiff: 0.1}))
}
