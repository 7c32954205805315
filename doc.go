// Package retime is a temporal video-enhancement pipeline operating on
// decoded frame sequences. It segments a sequence into scenes, estimates
// per-pixel motion between frames, compensates camera and object motion,
// enforces temporal consistency over a sliding window, synthesizes
// intermediate frames from multiple context frames, and resamples the
// sequence to an arbitrary target frame rate.
//
// The package has no network, file, or CLI surface of its own: an upstream
// decoder supplies ordered, equally shaped frame buffers; a downstream
// encoder consumes the retimed output plus per-frame diagnostics. Per-frame
// corrective filters (denoise, deblur, color grade, tone map) plug in as
// opaque video.Filter values at configured stages and are never implemented
// here.
//
// # Getting Started
//
// Build a pipeline from options and run a sequence through it:
//
//	opts := retime.DefaultOptions()
//	opts.EnforceConsistency = true
//
//	pipeline, err := retime.New(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	output, report, err := pipeline.Process(ctx, frames, 24, 60)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d frames in, %d out across %d scenes\n",
//	    report.InputCount, report.OutputCount, len(report.Scenes))
//
// For long clips, ProcessStream consumes a bounded sliding window from a
// channel instead of materializing the whole sequence.
//
// # Stage Packages
//
// Each stage is usable on its own:
//
//   - [github.com/opd-ai/retime/video]: frame buffers, kernels, filters
//   - [github.com/opd-ai/retime/flow]: dense optical flow estimation
//   - [github.com/opd-ai/retime/scene]: scene segmentation and classification
//   - [github.com/opd-ai/retime/compensate]: motion compensation and stabilization
//   - [github.com/opd-ai/retime/temporal]: anti-flicker consistency enforcement
//   - [github.com/opd-ai/retime/interpolate]: multi-context frame synthesis
//   - [github.com/opd-ai/retime/convert]: frame rate conversion and retiming helpers
//
// # Error Model
//
// Contract violations (mismatched frame shapes, invalid configuration,
// non-positive frame rates) surface as sentinel errors matchable with
// errors.Is, and configuration fails a run before any frame is processed.
// Content degeneracies (uniform frames, low-texture regions) resolve to
// explicit fallback values such as zero flow or pass-through frames; low
// estimation confidence is reported through result fields rather than
// errors.
package retime
