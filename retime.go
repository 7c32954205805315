package retime

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/retime/compensate"
	"github.com/opd-ai/retime/convert"
	"github.com/opd-ai/retime/flow"
	"github.com/opd-ai/retime/interpolate"
	"github.com/opd-ai/retime/scene"
	"github.com/opd-ai/retime/temporal"
	"github.com/opd-ai/retime/video"
)

// Options configures every stage of the pipeline. Stage configurations are
// pure value objects; nothing is read from files or the environment.
type Options struct {
	Scene       scene.Config
	Flow        flow.Config
	Compensate  compensate.Config
	Temporal    temporal.Config
	Interpolate interpolate.Config
	Convert     convert.Config

	// PreFilters and PostFilters are caller-supplied per-frame transforms
	// applied before and after the temporal core.
	PreFilters  []video.Filter
	PostFilters []video.Filter

	// Workers bounds the pool for order-independent per-pair work.
	Workers int

	// Stabilize enables motion compensation across each scene.
	Stabilize bool
	// EnforceConsistency enables temporal anti-flicker smoothing.
	EnforceConsistency bool
}

// DefaultOptions returns the default configuration for every stage.
func DefaultOptions() Options {
	return Options{
		Scene:              scene.DefaultConfig(),
		Flow:               flow.DefaultConfig(),
		Compensate:         compensate.DefaultConfig(),
		Temporal:           temporal.DefaultConfig(),
		Interpolate:        interpolate.DefaultConfig(),
		Convert:            convert.DefaultConfig(),
		Workers:            4,
		Stabilize:          false,
		EnforceConsistency: true,
	}
}

// Pipeline binds the configured stages once and runs frame sequences through
// them. All stage configuration is validated at construction; Process never
// fails on configuration.
type Pipeline struct {
	opts Options

	detector    *scene.Detector
	analyzer    *flow.Analyzer
	compensator *compensate.Compensator
	enforcer    *temporal.Enforcer
	interp      *interpolate.Interpolator
	converter   *convert.Converter

	pre  *video.FilterChain
	post *video.FilterChain
}

// SceneMotion summarizes the optical flow measured within one scene.
type SceneMotion struct {
	SceneIndex             int
	AvgMotion              float64
	MaxMotion              float64
	DominantDirection      string
	DirectionalConsistency float64
}

// Report carries the diagnostics of one Process run.
type Report struct {
	Scenes      []scene.Scene
	Motion      []SceneMotion
	Consistency []temporal.Metrics
	Conversions []*convert.Result
	InputCount  int
	OutputCount int
	Elapsed     time.Duration
}

// New validates the options and constructs a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	detector, err := scene.NewDetector(opts.Scene)
	if err != nil {
		return nil, fmt.Errorf("scene detector: %w", err)
	}
	analyzer, err := flow.NewAnalyzer(opts.Flow)
	if err != nil {
		return nil, fmt.Errorf("flow analyzer: %w", err)
	}
	compensator, err := compensate.NewCompensator(opts.Compensate)
	if err != nil {
		return nil, fmt.Errorf("motion compensator: %w", err)
	}
	enforcer, err := temporal.NewEnforcer(opts.Temporal)
	if err != nil {
		return nil, fmt.Errorf("temporal enforcer: %w", err)
	}
	interp, err := interpolate.NewInterpolator(opts.Interpolate)
	if err != nil {
		return nil, fmt.Errorf("interpolator: %w", err)
	}
	converter, err := convert.NewConverter(opts.Convert)
	if err != nil {
		return nil, fmt.Errorf("converter: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":            "New",
		"workers":             opts.Workers,
		"stabilize":           opts.Stabilize,
		"enforce_consistency": opts.EnforceConsistency,
	}).Info("Pipeline created")

	return &Pipeline{
		opts:        opts,
		detector:    detector,
		analyzer:    analyzer,
		compensator: compensator,
		enforcer:    enforcer,
		interp:      interp,
		converter:   converter,
		pre:         video.NewFilterChain(opts.PreFilters...),
		post:        video.NewFilterChain(opts.PostFilters...),
	}, nil
}

// Process runs the full batch pipeline: pre-filters, scene detection, flow
// analysis, optional stabilization, optional temporal consistency, rate
// conversion per scene, post-filters. Temporal blending never crosses scene
// boundaries. Cancellation is checked between frames, never mid-frame.
func (p *Pipeline) Process(ctx context.Context, frames []*video.Frame, sourceFPS, targetFPS float64) ([]*video.Frame, *Report, error) {
	start := time.Now()

	if len(frames) == 0 {
		return nil, nil, convert.ErrEmptySequence
	}
	if sourceFPS <= 0 || targetFPS <= 0 {
		return nil, nil, fmt.Errorf("%w: source %v, target %v", convert.ErrInvalidFrameRate, sourceFPS, targetFPS)
	}

	filtered, err := p.applyFilters(ctx, p.pre, frames)
	if err != nil {
		return nil, nil, fmt.Errorf("pre-filters: %w", err)
	}

	scenes, err := p.detector.DetectScenes(ctx, filtered, sourceFPS)
	if err != nil {
		return nil, nil, fmt.Errorf("scene detection: %w", err)
	}
	if len(scenes) == 0 {
		// Single-frame input or no detectable structure: one scene spanning
		// everything keeps the per-scene plumbing uniform.
		scenes = []scene.Scene{{
			StartFrame: 0,
			EndFrame:   len(filtered) - 1,
			EndTime:    float64(len(filtered)) / sourceFPS,
			Duration:   float64(len(filtered)) / sourceFPS,
			FrameCount: len(filtered),
			SceneType:  scene.SceneStatic,
		}}
	}

	report := &Report{
		Scenes:     scenes,
		InputCount: len(frames),
	}
	var output []*video.Frame

	for si, sc := range scenes {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		sceneFrames := filtered[sc.StartFrame : sc.EndFrame+1]

		fields, err := p.analyzer.ComputeSequence(ctx, sceneFrames, p.opts.Workers)
		if err != nil {
			return nil, nil, fmt.Errorf("scene %d flow: %w", si, err)
		}
		report.Motion = append(report.Motion, summarizeMotion(si, fields))

		if p.opts.Stabilize && len(sceneFrames) > 1 {
			results, err := p.compensator.StabilizeSequence(ctx, sceneFrames, -1)
			if err != nil {
				return nil, nil, fmt.Errorf("scene %d stabilization: %w", si, err)
			}
			stabilized := make([]*video.Frame, len(results))
			for i, r := range results {
				stabilized[i] = r.Frame
			}
			sceneFrames = stabilized
		}

		if p.opts.EnforceConsistency && len(sceneFrames) > 1 {
			smoothed, err := p.enforcer.EnforceConsistency(ctx, sceneFrames)
			if err != nil {
				return nil, nil, fmt.Errorf("scene %d consistency: %w", si, err)
			}
			report.Consistency = append(report.Consistency, p.enforcer.AnalyzeConsistency(smoothed)...)
			sceneFrames = smoothed
		}

		conversion, err := p.converter.Convert(ctx, sceneFrames, sourceFPS, targetFPS)
		if err != nil {
			return nil, nil, fmt.Errorf("scene %d conversion: %w", si, err)
		}
		report.Conversions = append(report.Conversions, conversion)
		output = append(output, conversion.Frames...)
	}

	output, err = p.applyFilters(ctx, p.post, output)
	if err != nil {
		return nil, nil, fmt.Errorf("post-filters: %w", err)
	}

	report.OutputCount = len(output)
	report.Elapsed = time.Since(start)

	logrus.WithFields(logrus.Fields{
		"function":     "Pipeline.Process",
		"input_count":  report.InputCount,
		"output_count": report.OutputCount,
		"scenes":       len(scenes),
		"elapsed":      report.Elapsed,
	}).Info("Pipeline run completed")
	return output, report, nil
}

// InterpolateKeyframes exposes keyframe gap filling through the pipeline's
// configured interpolator.
func (p *Pipeline) InterpolateKeyframes(ctx context.Context, keyframes []*video.Frame, totalFrames int) (*interpolate.Result, error) {
	return p.interp.InterpolateBetweenKeyframes(ctx, keyframes, totalFrames)
}

// applyFilters runs a filter chain over every frame on the worker pool.
// Frames are independent, so order of execution does not matter; results
// land at their original indices.
func (p *Pipeline) applyFilters(ctx context.Context, chain *video.FilterChain, frames []*video.Frame) ([]*video.Frame, error) {
	if chain.Len() == 0 {
		return frames, nil
	}

	out := make([]*video.Frame, len(frames))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, f := range frames {
		i, f := i, f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := chain.Apply(f)
			if err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}
			out[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func summarizeMotion(sceneIndex int, fields []*flow.Field) SceneMotion {
	sm := SceneMotion{SceneIndex: sceneIndex, DominantDirection: flow.DirectionNone}
	if len(fields) == 0 {
		return sm
	}
	sumAvg := 0.0
	sumR := 0.0
	counts := make(map[string]int)
	for _, f := range fields {
		sumAvg += f.AvgMotion
		if f.MaxMotion > sm.MaxMotion {
			sm.MaxMotion = f.MaxMotion
		}
		sumR += f.DirectionalConsistency()
		counts[f.DominantDirection()]++
	}
	sm.AvgMotion = sumAvg / float64(len(fields))
	sm.DirectionalConsistency = sumR / float64(len(fields))
	best := 0
	for dir, n := range counts {
		if n > best {
			best = n
			sm.DominantDirection = dir
		}
	}
	return sm
}
