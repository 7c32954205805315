package flow

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/retime/video"
)

// Config holds the analyzer's tunable parameters. The zero value is not
// valid; use DefaultConfig.
type Config struct {
	// WinSize is the side length of the square windows the normal-equations
	// system is solved over.
	WinSize int
	// Stride is the sampling interval for diagnostic motion vectors.
	Stride int
	// SampleVectors enables stride-sampled MotionVector collection.
	SampleVectors bool
	// CacheSize bounds the digest-keyed flow cache (frame pairs). Zero
	// disables caching.
	CacheSize int
}

// DefaultConfig returns the analyzer defaults.
func DefaultConfig() Config {
	return Config{
		WinSize:       16,
		Stride:        16,
		SampleVectors: true,
		CacheSize:     32,
	}
}

// Analyzer computes dense optical flow between frame pairs.
//
// ComputeFlow is a deterministic, pure function of its two input frames: it
// never errors for valid-shaped numeric input, and fully uniform frames
// yield an all-zero field rather than a failure.
type Analyzer struct {
	cfg   Config
	cache *fieldCache
}

// NewAnalyzer validates the configuration and creates an analyzer.
func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if cfg.WinSize < 2 {
		return nil, fmt.Errorf("%w: window size %d (minimum 2)", ErrInvalidConfig, cfg.WinSize)
	}
	if cfg.Stride <= 0 {
		return nil, fmt.Errorf("%w: stride %d", ErrInvalidConfig, cfg.Stride)
	}
	if cfg.CacheSize < 0 {
		return nil, fmt.Errorf("%w: cache size %d", ErrInvalidConfig, cfg.CacheSize)
	}

	a := &Analyzer{cfg: cfg}
	if cfg.CacheSize > 0 {
		a.cache = newFieldCache(cfg.CacheSize)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewAnalyzer",
		"win_size":   cfg.WinSize,
		"stride":     cfg.Stride,
		"cache_size": cfg.CacheSize,
	}).Info("Optical flow analyzer created")
	return a, nil
}

// ComputeFlow estimates the dense motion field carrying frame1 onto frame2.
func (a *Analyzer) ComputeFlow(frame1, frame2 *video.Frame) (*Field, error) {
	if frame1 == nil || frame2 == nil {
		return nil, video.ErrNilFrame
	}
	if !frame1.SameShape(frame2) {
		return nil, fmt.Errorf("%w: %dx%dx%d vs %dx%dx%d", video.ErrShapeMismatch,
			frame1.Width, frame1.Height, frame1.Channels,
			frame2.Width, frame2.Height, frame2.Channels)
	}

	if a.cache != nil {
		if field, ok := a.cache.get(frame1, frame2); ok {
			return field, nil
		}
	}

	field := a.computeField(frame1, frame2)

	if a.cache != nil {
		a.cache.put(frame1, frame2, field)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Analyzer.ComputeFlow",
		"width":      field.Width,
		"height":     field.Height,
		"avg_motion": field.AvgMotion,
		"max_motion": field.MaxMotion,
	}).Debug("Flow field computed")
	return field, nil
}

// computeField runs the Lucas-Kanade block solve and gap fill.
func (a *Analyzer) computeField(frame1, frame2 *video.Frame) *Field {
	width, height := frame1.Width, frame1.Height
	lum1 := frame1.Luminance()
	lum2 := frame2.Luminance()

	gx, gy := video.SobelGradients(lum1, width, height)
	it := make([]float64, len(lum1))
	for i := range it {
		it[i] = lum2[i] - lum1[i]
	}

	win := a.cfg.WinSize
	blocksX := (width + win - 1) / win
	blocksY := (height + win - 1) / win

	blockDX := make([]float64, blocksX*blocksY)
	blockDY := make([]float64, blocksX*blocksY)
	valid := make([]bool, blocksX*blocksY)

	// Smaller eigenvalue of the structure tensor must clear this for the
	// window to count as rank 2.
	const minEigen = 1e-4

	for by := 0; by < blocksY; by++ {
		for bx := 0; bx < blocksX; bx++ {
			x0, y0 := bx*win, by*win
			x1, y1 := x0+win, y0+win
			if x1 > width {
				x1 = width
			}
			if y1 > height {
				y1 = height
			}

			var sxx, sxy, syy, sxt, syt float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					idx := y*width + x
					ix, iy := gx[idx], gy[idx]
					sxx += ix * ix
					sxy += ix * iy
					syy += iy * iy
					sxt += ix * it[idx]
					syt += iy * it[idx]
				}
			}

			// Rank test via the smaller eigenvalue of [[sxx,sxy],[sxy,syy]].
			trace := sxx + syy
			disc := math.Sqrt((sxx-syy)*(sxx-syy) + 4*sxy*sxy)
			lambdaMin := (trace - disc) / 2
			b := by*blocksX + bx
			if lambdaMin < minEigen {
				continue
			}

			det := sxx*syy - sxy*sxy
			blockDX[b] = (-syy*sxt + sxy*syt) / det
			blockDY[b] = (sxy*sxt - sxx*syt) / det
			valid[b] = true
		}
	}

	fillInvalidBlocks(blockDX, blockDY, valid, blocksX, blocksY)

	field := &Field{
		Width:  width,
		Height: height,
		FlowX:  make([]float64, width*height),
		FlowY:  make([]float64, width*height),
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			b := (y/win)*blocksX + x/win
			idx := y*width + x
			field.FlowX[idx] = blockDX[b]
			field.FlowY[idx] = blockDY[b]
		}
	}
	field.finalize()
	if a.cfg.SampleVectors {
		field.sampleVectors(a.cfg.Stride)
	}
	return field
}

// fillInvalidBlocks averages valid 8-connected neighbors into rank-deficient
// blocks. Passes repeat so larger low-texture holes fill from their rims;
// a fully uniform frame pair legitimately stays all zero.
func fillInvalidBlocks(dx, dy []float64, valid []bool, blocksX, blocksY int) {
	for pass := 0; pass < blocksX+blocksY; pass++ {
		filled := make([]bool, len(valid))
		progress := false
		for by := 0; by < blocksY; by++ {
			for bx := 0; bx < blocksX; bx++ {
				b := by*blocksX + bx
				if valid[b] {
					continue
				}
				var sumX, sumY float64
				n := 0
				for oy := -1; oy <= 1; oy++ {
					for ox := -1; ox <= 1; ox++ {
						if ox == 0 && oy == 0 {
							continue
						}
						nx, ny := bx+ox, by+oy
						if nx < 0 || nx >= blocksX || ny < 0 || ny >= blocksY {
							continue
						}
						nb := ny*blocksX + nx
						if valid[nb] {
							sumX += dx[nb]
							sumY += dy[nb]
							n++
						}
					}
				}
				if n > 0 {
					dx[b] = sumX / float64(n)
					dy[b] = sumY / float64(n)
					filled[b] = true
					progress = true
				}
			}
		}
		for b, f := range filled {
			if f {
				valid[b] = true
			}
		}
		if !progress {
			break
		}
	}
}

// ComputeSequence computes flow fields for every adjacent pair in frames.
// Pairs are independent, so the work runs on an errgroup pool of the given
// size; cancellation is checked between pairs, never mid-frame. The result
// has len(frames)-1 entries, where entry i maps frames[i] onto frames[i+1].
func (a *Analyzer) ComputeSequence(ctx context.Context, frames []*video.Frame, workers int) ([]*Field, error) {
	if len(frames) < 2 {
		return nil, nil
	}
	if workers < 1 {
		workers = 1
	}

	fields := make([]*Field, len(frames)-1)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 0; i < len(frames)-1; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			field, err := a.ComputeFlow(frames[i], frames[i+1])
			if err != nil {
				return fmt.Errorf("flow for pair %d: %w", i, err)
			}
			fields[i] = field
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Analyzer.ComputeSequence",
		"pairs":    len(fields),
		"workers":  workers,
	}).Info("Sequence flow computation completed")
	return fields, nil
}

// CacheStats reports cache hits and misses since construction. Both are zero
// when caching is disabled.
func (a *Analyzer) CacheStats() (hits, misses uint64) {
	if a.cache == nil {
		return 0, 0
	}
	return a.cache.stats()
}
