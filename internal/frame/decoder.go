// Package frame implements the frame-level decoder orchestrator: it parses
// the frame header and TOC, schedules section decoding across a worker
// pool, and drives the stage pipeline DC-global, DC-groups, finalize-DC,
// AC-global, AC-groups through to a rendered image bundle.
package frame

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/kelville/go-jxl/internal/bio"
	"github.com/kelville/go-jxl/internal/bundle"
	"github.com/kelville/go-jxl/internal/codestream"
	"github.com/kelville/go-jxl/internal/jpegdata"
	"github.com/kelville/go-jxl/internal/modular"
	"github.com/kelville/go-jxl/internal/plane"
	"github.com/kelville/go-jxl/internal/pool"
	"github.com/kelville/go-jxl/internal/quant"
	"github.com/kelville/go-jxl/internal/render"
)

// maxFrameDim bounds a single frame side length.
const maxFrameDim = 1 << 30

// Decoder decodes one frame. A Decoder is reused across frames by calling
// InitFrame again after FinalizeFrame; two ProcessSections batches for the
// same frame must not overlap.
type Decoder struct {
	state *State
	pool  *pool.Pool

	out     *bundle.Bundle
	header  *codestream.FrameHeader
	dim     codestream.Dimensions
	modular modular.Decoder

	sectionOffsets  []uint64
	sectionSizes    []uint32
	groupCodesBegin uint64

	allowPartialFrames   bool
	allowPartialDCGlobal bool
	pauseAtProgressive   bool
	pipelineOpts         render.Options

	decodedDCGlobal bool
	decodedACGlobal bool
	finalizedDC     bool
	isFinalized     bool
	allocated       bool

	decodedDCGroups         []bool
	decodedPassesPerACGroup []uint32
	processedSection        []bool
	maxPasses               uint32
	numRenders              int
	numSectionsDone         int

	groupDecCaches []groupDecCache
}

// NewDecoder creates a frame decoder over the shared state and pool.
func NewDecoder(state *State, p *pool.Pool) *Decoder {
	return &Decoder{state: state, pool: p, isFinalized: true}
}

var errInitBeforeFinalize = errors.New("InitFrame called before the previous frame was finalized")

// InitFrame parses the frame header and TOC and resets the per-frame
// state. The reader must be positioned at the frame start; after the call
// it is positioned at the first section. With outputNeeded false only the
// header and TOC are parsed, for skipping frames.
func (d *Decoder) InitFrame(r *bio.Reader, out *bundle.Bundle, isPreview, allowPartialFrames, allowPartialDCGlobal, outputNeeded bool) error {
	if !d.isFinalized {
		return errInitBeforeFinalize
	}
	d.out = out
	d.allowPartialFrames = allowPartialFrames
	d.allowPartialDCGlobal = allowPartialDCGlobal

	// Dequantization matrices reset to defaults before each frame.
	d.state.Matrices = quant.NewDequantMatrices()

	pos := r.TotalBitsConsumed() / 8
	var h *codestream.FrameHeader
	var headerErr error
	if r.TotalBytes() > pos {
		h, headerErr = codestream.ReadFrameHeader(r, d.state.Metadata)
	}
	if h == nil {
		if !allowPartialFrames {
			if headerErr != nil {
				return fmt.Errorf("reading frame header: %w", headerErr)
			}
			return ErrFrameHeader
		}
		// A truncated file with a DC frame on hand: assume the missing
		// frame would have used it, and decode a progressive preview.
		if d.state.DCFrames[0].W() > 0 {
			h = &codestream.FrameHeader{
				Encoding:   codestream.EncodingVarDCT,
				Flags:      codestream.FlagUseDCFrame,
				Upsampling: 1,
				Passes:     codestream.Passes{NumPasses: 1},
				Metadata:   d.state.Metadata,
			}
		} else {
			return ErrFrameHeader
		}
	}
	h.IsPreview = isPreview
	d.header = h
	d.dim = h.ToFrameDimensions()

	if d.dim.XSize <= 0 || d.dim.YSize <= 0 || d.dim.XSize > maxFrameDim || d.dim.YSize > maxFrameDim {
		return fmt.Errorf("invalid frame dimensions %dx%d", d.dim.XSize, d.dim.YSize)
	}

	// The previous frame may have had different dimensions.
	out.RemoveColor()
	out.ClearExtraChannels()
	out.Duration = h.Duration

	if !h.IsPreview && (h.IsLast || h.Duration > 0) &&
		(h.Type == codestream.FrameRegular || h.Type == codestream.FrameSkipProgressive) {
		d.state.VisibleFrameIndex++
		d.state.NonvisibleFrameIndex = 0
	} else {
		d.state.NonvisibleFrameIndex++
	}

	tocEntries := codestream.NumTocEntries(d.dim.NumGroups, d.dim.NumDCGroups, h.Passes.NumPasses, true)
	offsets, sizes, total, tocErr := codestream.ReadGroupOffsets(r, tocEntries)
	if tocErr != nil {
		if !allowPartialFrames || !errors.Is(tocErr, bio.ErrOutOfBounds) {
			return fmt.Errorf("reading TOC: %w", tocErr)
		}
		offsets = make([]uint64, tocEntries)
		sizes = make([]uint32, tocEntries)
		total = 0
	}
	d.sectionOffsets = offsets
	d.sectionSizes = sizes
	d.groupCodesBegin = r.TotalBitsConsumed() / 8

	if !validGroupCodes(d.groupCodesBegin, total) {
		return ErrInvalidGroupCodes
	}

	if !h.ChromaSubsampling.Is444() &&
		h.Flags&codestream.FlagSkipAdaptiveDCSmoothing == 0 &&
		h.Encoding == codestream.EncodingVarDCT {
		return ErrNon444DCSmoothing
	}

	if !outputNeeded {
		return nil
	}

	d.state.DC = plane.NewImage3(d.dim.XSizeBlocks, d.dim.YSizeBlocks)
	d.state.Sigma = plane.New(d.dim.XSizeBlocks, d.dim.YSizeBlocks)
	d.state.UsedACs.Store(0)
	d.state.Pipeline = nil
	d.modular.Init(d.dim, h)

	if out.IsJPEG() {
		if err := d.initJPEG(out.JPEG); err != nil {
			return err
		}
	}

	d.decodedDCGlobal = false
	d.decodedACGlobal = false
	d.isFinalized = false
	d.finalizedDC = false
	d.allocated = false
	d.numSectionsDone = 0
	d.decodedDCGroups = make([]bool, d.dim.NumDCGroups)
	d.decodedPassesPerACGroup = make([]uint32, d.dim.NumGroups)
	d.processedSection = make([]bool, len(d.sectionOffsets))
	d.maxPasses = h.Passes.NumPasses
	d.numRenders = 0

	log.Debugf("frame init: %dx%d, %d groups, %d DC groups, %d passes, %d sections",
		d.dim.XSize, d.dim.YSize, d.dim.NumGroups, d.dim.NumDCGroups,
		h.Passes.NumPasses, len(d.sectionOffsets))
	return nil
}

// initJPEG validates a JPEG reconstruction target and sizes its component
// coefficient buffers from the frame geometry.
func (d *Decoder) initJPEG(jd *jpegdata.JPEGData) error {
	if d.header.Encoding == codestream.EncodingModular {
		return ErrJPEGFromModular
	}
	numComponents := len(jd.Components)
	if numComponents != 1 && numComponents != 3 {
		return ErrInvalidNumComponents
	}
	if d.state.Metadata.XYBEncoded {
		return ErrJPEGFromXYB
	}
	order := jpegdata.JpegOrder(true, numComponents == 1)
	jd.Width = d.dim.XSize
	jd.Height = d.dim.YSize
	for c := 0; c < numComponents; c++ {
		comp := &jd.Components[order[c]]
		comp.WidthInBlocks = d.dim.XSizeBlocks >> d.header.ChromaSubsampling.HShift(c)
		comp.HeightInBlocks = d.dim.YSizeBlocks >> d.header.ChromaSubsampling.VShift(c)
		comp.HSampFactor = 1 << d.header.ChromaSubsampling.HShift(c)
		comp.VSampFactor = 1 << d.header.ChromaSubsampling.VShift(c)
		comp.Coeffs = make([]int32, comp.WidthInBlocks*comp.HeightInBlocks*64)
	}
	return nil
}

// validGroupCodes rejects section tables whose end position wraps.
func validGroupCodes(groupCodesBegin, groupsTotalSize uint64) bool {
	return groupCodesBegin+groupsTotalSize >= groupCodesBegin
}

// SectionReader returns a bounded sub-reader for one section of the parent
// reader, which must be positioned at the start of the section area. A
// single-section frame returns the parent itself. The window keeps a few
// slack bytes past the declared end, clamped to the parent.
func (d *Decoder) SectionReader(parent *bio.Reader, index int) *bio.Reader {
	if d.dim.NumGroups == 1 && d.header.Passes.NumPasses == 1 {
		return parent
	}
	begin := parent.TotalBitsConsumed() / 8
	start := begin + d.sectionOffsets[index]
	size := uint64(d.sectionSizes[index]) + 8
	data := parent.FirstByte()
	if start > parent.TotalBytes() {
		start = parent.TotalBytes()
	}
	end := start + size
	if end > parent.TotalBytes() {
		end = parent.TotalBytes()
	}
	return bio.NewReader(data[start:end])
}

// GetFrameHeader exposes the parsed header.
func (d *Decoder) GetFrameHeader() *codestream.FrameHeader { return d.header }

// FrameDimensions exposes the derived geometry.
func (d *Decoder) FrameDimensions() codestream.Dimensions { return d.dim }

// NumSections reports the section count; valid after InitFrame.
func (d *Decoder) NumSections() int { return len(d.sectionOffsets) }

// SectionOffsets reports the per-section byte offsets from the start of the
// section area.
func (d *Decoder) SectionOffsets() []uint64 { return d.sectionOffsets }

// SectionSizes reports the per-section byte sizes.
func (d *Decoder) SectionSizes() []uint32 { return d.sectionSizes }

// SetMaxPasses clips the number of AC passes to decode; sections beyond the
// cap are skipped.
func (d *Decoder) SetMaxPasses(n uint32) {
	if n > d.header.Passes.NumPasses {
		n = d.header.Passes.NumPasses
	}
	d.maxPasses = n
}

// MaxPasses reports the current pass cap.
func (d *Decoder) MaxPasses() uint32 { return d.maxPasses }

// SetPauseAtProgressive requests an early return from ProcessSections once
// a DC preview can be emitted.
func (d *Decoder) SetPauseAtProgressive(v bool) { d.pauseAtProgressive = v }

// SetPipelineOptions forwards the host's render-pipeline knobs.
func (d *Decoder) SetPipelineOptions(o render.Options) { d.pipelineOpts = o }

// NumRenders reports how many times Flush has rendered.
func (d *Decoder) NumRenders() int { return d.numRenders }

// FinalizedDC reports whether the DC stage completed.
func (d *Decoder) FinalizedDC() bool { return d.finalizedDC }

// HasEverything reports whether every section of the frame (under the
// current pass cap) has been decoded.
func (d *Decoder) HasEverything() bool {
	if !d.decodedDCGlobal || !d.decodedACGlobal {
		return false
	}
	for _, ok := range d.decodedDCGroups {
		if !ok {
			return false
		}
	}
	for _, passes := range d.decodedPassesPerACGroup {
		if passes < d.maxPasses {
			return false
		}
	}
	return true
}
