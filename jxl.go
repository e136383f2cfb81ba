// Package jxl provides a pure Go frame decoder for a JPEG XL-style
// codestream. A compressed frame is split into a table of contents and a
// set of sections decoded largely in parallel; the decoder drives a frame
// from raw bitstream to a reconstructed image bundle, or to a partial
// progressive preview when only part of the input is available.
//
// Basic usage:
//
//	state := jxl.NewState(&jxl.Metadata{XSize: w, YSize: h})
//	out := &jxl.Bundle{}
//	err := jxl.DecodeFrame(nil, state, jxl.NewPool(0), jxl.NewReader(data), out)
//	if err != nil {
//	    log.Fatal(err)
//	}
package jxl

import (
	"github.com/kelville/go-jxl/internal/bio"
	"github.com/kelville/go-jxl/internal/bundle"
	"github.com/kelville/go-jxl/internal/codestream"
	"github.com/kelville/go-jxl/internal/frame"
	"github.com/kelville/go-jxl/internal/pool"
)

// Re-exported collaborator types; the frame decoder is the core of this
// module and the host wires these into it.
type (
	// Metadata is the image-level information the container parsed.
	Metadata = codestream.Metadata
	// Bundle receives the reconstructed frame.
	Bundle = bundle.Bundle
	// State is the codec state shared by all frames of a file.
	State = frame.State
	// Reader is a bit-level view over frame bytes.
	Reader = bio.Reader
	// Pool runs group decoding in parallel.
	Pool = pool.Pool
)

// NewState creates the shared codec state for one file.
func NewState(m *Metadata) *State { return frame.NewState(m) }

// NewReader wraps frame bytes for decoding.
func NewReader(data []byte) *Reader { return bio.NewReader(data) }

// NewPool creates a worker pool with n workers; n <= 0 selects GOMAXPROCS.
func NewPool(n int) *Pool { return pool.New(n) }

// Options tune a DecodeFrame call.
type Options struct {
	// AllowPartialFiles drops missing sections instead of failing the
	// frame.
	AllowPartialFiles bool
	// AllowMoreProgressiveSteps tolerates section windows past the end of
	// the input; together with AllowPartialFiles it also lets the DC-global
	// section end mid-stream.
	AllowMoreProgressiveSteps bool
	// MaxPasses caps the AC passes decoded per group; 0 means all.
	MaxPasses uint32
	// MaxDownsampling requests a preview at the given downsampling; 8 or
	// more decodes DC only.
	MaxDownsampling uint32
	// PauseAtProgressive stops after DC when a preview can be emitted.
	PauseAtProgressive bool
	// UseSlowPipeline selects the reference render pipeline.
	UseSlowPipeline bool
	// Coalescing composes animation frames onto the canvas.
	Coalescing bool
	// RenderSpotcolors draws spot-colour extra channels into the image.
	RenderSpotcolors bool
}

// Option mutates Options; see With*.
type Option func(*Options)

// WithAllowPartialFiles tolerates missing sections.
func WithAllowPartialFiles() Option {
	return func(o *Options) { o.AllowPartialFiles = true }
}

// WithAllowMoreProgressiveSteps tolerates truncated section windows; with
// WithAllowPartialFiles it also tolerates truncated DC-global input.
func WithAllowMoreProgressiveSteps() Option {
	return func(o *Options) { o.AllowMoreProgressiveSteps = true }
}

// WithMaxPasses caps the decoded AC passes.
func WithMaxPasses(n uint32) Option {
	return func(o *Options) { o.MaxPasses = n }
}

// WithMaxDownsampling requests a downsampled preview.
func WithMaxDownsampling(n uint32) Option {
	return func(o *Options) { o.MaxDownsampling = n }
}

// NewOptions builds Options from opts.
func NewOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
