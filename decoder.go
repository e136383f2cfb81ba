package jxl

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/kelville/go-jxl/internal/bio"
	"github.com/kelville/go-jxl/internal/codestream"
	"github.com/kelville/go-jxl/internal/frame"
	"github.com/kelville/go-jxl/internal/render"
)

// DecodeFrame decodes one frame from the reader into out: it initialises a
// frame decoder, builds the per-section sub-readers with the partial-input
// window rules, runs a single ProcessSections batch, validates the section
// statuses and finalizes the frame. The reader must be positioned at the
// frame start and is left positioned after the frame's declared sections.
func DecodeFrame(opts *Options, state *State, p *Pool, r *Reader, out *Bundle) error {
	if opts == nil {
		opts = &Options{}
	}
	fd := frame.NewDecoder(state, p)
	fd.SetPipelineOptions(render.Options{
		UseSlowPipeline:  opts.UseSlowPipeline,
		Coalescing:       opts.Coalescing,
		RenderSpotcolors: opts.RenderSpotcolors,
	})

	if err := fd.InitFrame(r, out, false, opts.AllowPartialFiles,
		opts.AllowPartialFiles && opts.AllowMoreProgressiveSteps, true); err != nil {
		return err
	}

	h := fd.GetFrameHeader()
	fd.SetMaxPasses(clipMaxPasses(opts, h))
	fd.SetPauseAtProgressive(opts.PauseAtProgressive)

	processedBytes := r.TotalBitsConsumed() / 8

	var closeErr error
	var sections []frame.SectionInfo
	var closers []*bio.ScopedCloser
	var bytesToSkip uint64
	offsets := fd.SectionOffsets()
	sizes := fd.SectionSizes()
	for i := 0; i < fd.NumSections(); i++ {
		b := offsets[i]
		e := b + uint64(sizes[i])
		bytesToSkip += e - b
		pos := r.TotalBitsConsumed() / 8
		// With more progressive input still expected, the first section
		// (and every section of a modular frame) only needs its start to
		// be in range; the window is truncated to the available bytes.
		threshold := e
		if opts.AllowMoreProgressiveSteps && (i == 0 || h.Encoding == codestream.EncodingModular) {
			threshold = b
		}
		if pos+threshold <= r.TotalBytes() || (i == 0 && opts.AllowMoreProgressiveSteps) {
			data := r.FirstByte()
			start := pos + b
			if start > r.TotalBytes() {
				start = r.TotalBytes()
			}
			end := start + (e - b)
			if end > r.TotalBytes() {
				end = r.TotalBytes()
			}
			br := bio.NewReader(data[start:end])
			sections = append(sections, frame.SectionInfo{BR: br, ID: i})
			closers = append(closers, bio.NewScopedCloser(br, &closeErr))
		} else if !opts.AllowPartialFiles {
			return frame.ErrPrematureEOS
		}
	}
	// The parent reader skips over the declared section bytes whether or
	// not they were all available.
	r.SkipBits(8 * bytesToSkip)

	status := make([]frame.SectionStatus, len(sections))
	if err := fd.ProcessSections(sections, status); err != nil {
		return err
	}

	for i := range sections {
		s := status[i]
		switch {
		case s == frame.StatusDone:
			processedBytes += uint64(sizes[sections[i].ID])
		case s == frame.StatusPartial && opts.AllowMoreProgressiveSteps:
		case s == frame.StatusSkipped && opts.MaxDownsampling > 1:
		default:
			return fmt.Errorf("Invalid section %d status: %d", sections[i].ID, s)
		}
	}

	for _, c := range closers {
		c.Close()
	}
	if closeErr != nil && !opts.AllowPartialFiles {
		return closeErr
	}

	if err := fd.FinalizeFrame(); err != nil {
		return err
	}
	out.SetDecodedBytes(processedBytes)
	log.Debugf("frame decoded: %d/%d sections, %d renders",
		len(sections), fd.NumSections(), fd.NumRenders())
	return nil
}

// clipMaxPasses applies the progressive policy: the downsampling target
// caps the pass count, DC-level frames scale the target, and
// reference-only frames always decode fully.
func clipMaxPasses(opts *Options, h *codestream.FrameHeader) uint32 {
	maxPasses := opts.MaxPasses
	if maxPasses == 0 || maxPasses > h.Passes.NumPasses {
		maxPasses = h.Passes.NumPasses
	}
	maxDownsampling := opts.MaxDownsampling >> (h.DCLevel * 3)
	if maxDownsampling < 1 {
		maxDownsampling = 1
	}
	if maxDownsampling >= 8 {
		maxPasses = 0
	} else {
		for i := range h.Passes.Downsample {
			if maxDownsampling >= h.Passes.Downsample[i] && maxPasses > h.Passes.LastPass[i] {
				maxPasses = h.Passes.LastPass[i] + 1
			}
		}
	}
	if h.Type == codestream.FrameReferenceOnly {
		maxPasses = h.Passes.NumPasses
	}
	return maxPasses
}
