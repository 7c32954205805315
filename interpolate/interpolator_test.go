package interpolate

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/retime/video"
)

func solidFrame(t *testing.T, value uint8) *video.Frame {
	t.Helper()
	f, err := video.NewFrameFilled(32, 32, 3, value)
	require.NoError(t, err)
	return f
}

func texturedFrame(t *testing.T) *video.Frame {
	t.Helper()
	f, err := video.NewFrame(64, 64, 1)
	require.NoError(t, err)
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := 128 + 60*math.Sin(2*math.Pi*float64(x)/16) + 40*math.Cos(2*math.Pi*float64(y)/16)
			f.Pix[y*64+x] = uint8(v)
		}
	}
	return f
}

func TestNewInterpolator_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"weighted", Config{BlendMode: BlendWeighted, QualityThreshold: 0.7}, false},
		{"optical flow", Config{BlendMode: BlendOpticalFlow, QualityThreshold: 0.7}, false},
		{"adaptive", Config{BlendMode: BlendAdaptive, QualityThreshold: 0.7}, false},
		{"negative context", Config{ContextFrames: -1, QualityThreshold: 0.7}, true},
		{"mode below range", Config{BlendMode: BlendMode(-1), QualityThreshold: 0.7}, true},
		{"mode above range", Config{BlendMode: BlendMode(3), QualityThreshold: 0.7}, true},
		{"threshold above one", Config{QualityThreshold: 1.5}, true},
		{"negative threshold", Config{QualityThreshold: -0.1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInterpolator(tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBlendMode_String(t *testing.T) {
	assert.Equal(t, "weighted", BlendWeighted.String())
	assert.Equal(t, "optical_flow", BlendOpticalFlow.String())
	assert.Equal(t, "adaptive", BlendAdaptive.String())
	assert.Equal(t, "unknown(7)", BlendMode(7).String())
}

func TestInterpolateMulti_NoOp(t *testing.T) {
	it, err := NewInterpolator(DefaultConfig())
	require.NoError(t, err)

	// Fewer than two inputs.
	single := []*video.Frame{solidFrame(t, 128)}
	res, err := it.InterpolateMulti(context.Background(), single, 5, true)
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Same(t, single[0], res.Frames[0])

	// Target not larger than the input.
	pair := []*video.Frame{solidFrame(t, 40), solidFrame(t, 80)}
	res, err = it.InterpolateMulti(context.Background(), pair, 2, true)
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	require.Len(t, res.Quality, 2)
	assert.Equal(t, []float64{1, 1}, res.Quality)
}

func TestInterpolateMulti_MidpointExact(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ContextFrames = 0
	it, err := NewInterpolator(cfg)
	require.NoError(t, err)

	frames := []*video.Frame{solidFrame(t, 40), solidFrame(t, 80)}
	res, err := it.InterpolateMulti(context.Background(), frames, 3, true)
	require.NoError(t, err)
	require.Len(t, res.Frames, 3)
	assert.False(t, res.NoOp)

	// Endpoints pass through, the middle is the exact linear blend.
	assert.Equal(t, frames[0].Pix, res.Frames[0].Pix)
	assert.Equal(t, frames[1].Pix, res.Frames[2].Pix)
	for _, p := range res.Frames[1].Pix {
		assert.Equal(t, uint8(60), p)
	}
	assert.Equal(t, 1.0, res.Quality[0])
	assert.Equal(t, 1.0, res.Quality[2])
}

func TestInterpolateMulti_UniformPositionsWithoutEndpoints(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ContextFrames = 0
	it, err := NewInterpolator(cfg)
	require.NoError(t, err)

	frames := []*video.Frame{solidFrame(t, 40), solidFrame(t, 80)}
	res, err := it.InterpolateMulti(context.Background(), frames, 4, false)
	require.NoError(t, err)
	require.Len(t, res.Frames, 4)

	// Positions land at 0.125, 0.375, 0.625, 0.875 between the two inputs.
	want := []uint8{45, 55, 65, 75}
	for i, f := range res.Frames {
		assert.Equal(t, want[i], f.Pix[0], "frame %d", i)
	}
}

func TestInterpolateMulti_FlagsLowQuality(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ContextFrames = 0
	it, err := NewInterpolator(cfg)
	require.NoError(t, err)

	frames := []*video.Frame{solidFrame(t, 0), solidFrame(t, 255)}
	res, err := it.InterpolateMulti(context.Background(), frames, 3, true)
	require.NoError(t, err)

	require.Len(t, res.Flagged, 1)
	assert.Equal(t, 1, res.Flagged[0])
	assert.Less(t, res.Quality[1], cfg.QualityThreshold)
}

func TestInterpolateMulti_ShapeMismatch(t *testing.T) {
	it, err := NewInterpolator(DefaultConfig())
	require.NoError(t, err)

	small, err := video.NewFrameFilled(16, 16, 3, 128)
	require.NoError(t, err)
	frames := []*video.Frame{solidFrame(t, 128), small}
	_, err = it.InterpolateMulti(context.Background(), frames, 5, true)
	assert.ErrorIs(t, err, video.ErrShapeMismatch)
}

func TestInterpolateMulti_Cancellation(t *testing.T) {
	it, err := NewInterpolator(DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	frames := []*video.Frame{solidFrame(t, 40), solidFrame(t, 80)}
	_, err = it.InterpolateMulti(ctx, frames, 5, true)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInterpolateMulti_OpticalFlow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlendMode = BlendOpticalFlow
	it, err := NewInterpolator(cfg)
	require.NoError(t, err)

	frames := []*video.Frame{texturedFrame(t), texturedFrame(t)}
	res, err := it.InterpolateMulti(context.Background(), frames, 5, true)
	require.NoError(t, err)
	require.Len(t, res.Frames, 5)

	// Identical neighbors have zero flow, so every synthesized frame is the
	// input pattern.
	for i, f := range res.Frames {
		assert.Equal(t, frames[0].Pix, f.Pix, "frame %d", i)
	}
}

func TestBetween_WeightClamping(t *testing.T) {
	it, err := NewInterpolator(DefaultConfig())
	require.NoError(t, err)

	a := solidFrame(t, 40)
	b := solidFrame(t, 80)

	out, err := it.Between(a, b, 0)
	require.NoError(t, err)
	assert.Equal(t, a.Pix, out.Pix)
	assert.NotSame(t, a, out)

	out, err = it.Between(a, b, 1)
	require.NoError(t, err)
	assert.Equal(t, b.Pix, out.Pix)

	out, err = it.Between(a, b, 0.5)
	require.NoError(t, err)
	assert.Equal(t, uint8(60), out.Pix[0])
}

func TestBetween_Validation(t *testing.T) {
	it, err := NewInterpolator(DefaultConfig())
	require.NoError(t, err)

	a := solidFrame(t, 40)
	_, err = it.Between(nil, a, 0.5)
	assert.ErrorIs(t, err, video.ErrNilFrame)
	_, err = it.Between(a, nil, 0.5)
	assert.ErrorIs(t, err, video.ErrNilFrame)

	small, err := video.NewFrameFilled(16, 16, 3, 128)
	require.NoError(t, err)
	_, err = it.Between(a, small, 0.5)
	assert.ErrorIs(t, err, video.ErrShapeMismatch)
}

func TestAdaptive_MotionSelection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlendMode = BlendAdaptive
	it, err := NewInterpolator(cfg)
	require.NoError(t, err)

	// Low motion keeps the weighted path; with no usable context frames the
	// result is the plain midpoint.
	out, err := it.Between(solidFrame(t, 100), solidFrame(t, 102), 0.5)
	require.NoError(t, err)
	assert.Equal(t, uint8(101), out.Pix[0])

	// High motion falls back to a straight two-frame blend.
	out, err = it.Between(solidFrame(t, 0), solidFrame(t, 255), 0.5)
	require.NoError(t, err)
	assert.Equal(t, uint8(128), out.Pix[0])
}

func TestInterpolateBetweenKeyframes_Errors(t *testing.T) {
	it, err := NewInterpolator(DefaultConfig())
	require.NoError(t, err)

	_, err = it.InterpolateBetweenKeyframes(context.Background(), nil, 5)
	assert.ErrorIs(t, err, ErrNoKeyframes)

	keys := []*video.Frame{solidFrame(t, 40), solidFrame(t, 80)}
	_, err = it.InterpolateBetweenKeyframes(context.Background(), keys, 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestInterpolateBetweenKeyframes_SingleKeyframe(t *testing.T) {
	it, err := NewInterpolator(DefaultConfig())
	require.NoError(t, err)

	key := solidFrame(t, 90)
	res, err := it.InterpolateBetweenKeyframes(context.Background(), []*video.Frame{key}, 3)
	require.NoError(t, err)
	require.Len(t, res.Frames, 3)
	for i, f := range res.Frames {
		require.NotNil(t, f, "frame %d", i)
		assert.Equal(t, key.Pix, f.Pix, "frame %d", i)
		assert.Equal(t, 1.0, res.Quality[i], "frame %d", i)
	}
}

func TestInterpolateBetweenKeyframes_FillsGaps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ContextFrames = 0
	it, err := NewInterpolator(cfg)
	require.NoError(t, err)

	keys := []*video.Frame{solidFrame(t, 40), solidFrame(t, 80)}
	res, err := it.InterpolateBetweenKeyframes(context.Background(), keys, 5)
	require.NoError(t, err)
	require.Len(t, res.Frames, 5)

	// Keyframes land on the endpoints; the interior ramps between them.
	assert.Equal(t, keys[0].Pix, res.Frames[0].Pix)
	assert.Equal(t, keys[1].Pix, res.Frames[4].Pix)
	for i := 1; i < 4; i++ {
		require.NotNil(t, res.Frames[i])
		v := res.Frames[i].Pix[0]
		assert.GreaterOrEqual(t, v, uint8(40), "frame %d", i)
		assert.LessOrEqual(t, v, uint8(80), "frame %d", i)
	}
	prev := res.Frames[0].Pix[0]
	for i := 1; i < 5; i++ {
		assert.GreaterOrEqual(t, res.Frames[i].Pix[0], prev, "frame %d", i)
		prev = res.Frames[i].Pix[0]
	}
}
