// Package codestream parses the frame-level wire format: the frame header,
// the derived frame dimensions, and the table of contents that locates each
// section inside the frame.
package codestream

import (
	"errors"

	"github.com/kelville/go-jxl/internal/bio"
)

// Encoding selects the coding mode of a frame.
type Encoding int

const (
	// EncodingVarDCT is variable-size DCT transform coding.
	EncodingVarDCT Encoding = iota
	// EncodingModular uses the lossless modular sub-codec for all channels.
	EncodingModular
)

// FrameType classifies a frame's role in the frame graph.
type FrameType int

const (
	// FrameRegular is a displayed frame.
	FrameRegular FrameType = iota
	// FrameReferenceOnly is decoded only to be referenced later.
	FrameReferenceOnly
	// FrameDC carries a coarse version of a later frame for progressive
	// decoding.
	FrameDC
	// FrameSkipProgressive is displayed but excluded from progressive
	// previews.
	FrameSkipProgressive
)

// ColorTransform values.
const (
	ColorTransformXYB = iota
	ColorTransformNone
	ColorTransformYCbCr
)

// Frame header flags.
const (
	FlagPatches uint32 = 1 << iota
	FlagSplines
	FlagNoise
	FlagUseDCFrame
	FlagSkipAdaptiveDCSmoothing
)

// BlendMode selects how a frame composes onto the canvas.
type BlendMode int

const (
	// BlendReplace overwrites the canvas.
	BlendReplace BlendMode = iota
	// BlendAdd adds onto the reference.
	BlendAdd
	// BlendBlend alpha-blends onto the reference.
	BlendBlend
	// BlendMul multiplies with the reference.
	BlendMul
)

// BlendingInfo describes per-channel blending.
type BlendingInfo struct {
	Mode   BlendMode
	Source int // reference slot 0-3
}

// Passes describes the progressive pass structure of a frame.
type Passes struct {
	NumPasses  uint32
	Downsample []uint32 // per downsample step
	LastPass   []uint32 // last pass index of each step
}

// DownsamplingBracket reports the modular downsampling shift range of pass i.
func (p *Passes) DownsamplingBracket(i uint32) (minShift, maxShift int) {
	maxShift = 3
	for j := range p.Downsample {
		if p.LastPass[j] < i {
			s := shiftOf(p.Downsample[j])
			if s < maxShift {
				maxShift = s
			}
		}
	}
	if i == p.NumPasses-1 {
		return 0, maxShift
	}
	minShift = 0
	for j := range p.Downsample {
		if p.LastPass[j] == i {
			minShift = shiftOf(p.Downsample[j])
		}
	}
	return minShift, maxShift
}

func shiftOf(downsample uint32) int {
	s := 0
	for d := downsample; d > 1; d >>= 1 {
		s++
	}
	return s
}

// ChromaSubsampling values.
type ChromaSubsampling int

const (
	Subsampling444 ChromaSubsampling = iota
	Subsampling420
	Subsampling422
	Subsampling440
)

// Is444 reports whether chroma is not subsampled.
func (c ChromaSubsampling) Is444() bool { return c == Subsampling444 }

// HShift reports the horizontal downsampling shift of channel ch.
func (c ChromaSubsampling) HShift(ch int) int {
	if ch == 1 {
		return 0 // luma
	}
	switch c {
	case Subsampling420, Subsampling422:
		return 1
	}
	return 0
}

// VShift reports the vertical downsampling shift of channel ch.
func (c ChromaSubsampling) VShift(ch int) int {
	if ch == 1 {
		return 0
	}
	switch c {
	case Subsampling420, Subsampling440:
		return 1
	}
	return 0
}

// LoopFilter carries the edge-preserving-filter parameters.
type LoopFilter struct {
	EPFIters           int
	EPFSigmaForModular float32
}

// FrameHeader is the per-frame header, parsed once by ReadFrameHeader.
type FrameHeader struct {
	Encoding       Encoding
	ColorTransform int
	Type           FrameType
	Flags          uint32

	Upsampling             uint32
	ExtraChannelUpsampling []uint32
	ChromaSubsampling      ChromaSubsampling
	GroupSizeShift         uint32

	Passes  Passes
	DCLevel uint32

	SaveAsReference          int
	canBeReferenced          bool
	SaveBeforeColorTransform bool

	CustomSizeOrOrigin bool
	X0, Y0             int
	XSize, YSize       int // 0 means: use the image size from metadata

	Blending             BlendingInfo
	ExtraChannelBlending []BlendingInfo

	Duration uint32
	IsLast   bool

	LoopFilter LoopFilter

	// Not serialised; set by the caller.
	IsPreview bool
	Metadata  *Metadata
}

var errDCFrameLevel = errors.New("DC frame must have a nonzero DC level")

// ReadFrameHeader parses a frame header. The reader is left byte-aligned.
func ReadFrameHeader(r *bio.Reader, m *Metadata) (*FrameHeader, error) {
	h := &FrameHeader{Metadata: m}
	h.Encoding = Encoding(r.ReadBits(1))
	h.ColorTransform = int(r.ReadBits(2))
	h.Type = FrameType(r.ReadBits(2))
	h.Flags = uint32(r.ReadBits(8))
	h.Upsampling = 1 << r.ReadBits(2)
	h.ExtraChannelUpsampling = make([]uint32, m.NumExtraChannels)
	for i := range h.ExtraChannelUpsampling {
		h.ExtraChannelUpsampling[i] = 1 << r.ReadBits(2)
	}
	h.ChromaSubsampling = ChromaSubsampling(r.ReadBits(2))
	h.GroupSizeShift = uint32(r.ReadBits(2))

	h.Passes.NumPasses = 1 + uint32(r.ReadBits(3))
	numDownsample := uint32(r.ReadBits(2))
	h.Passes.Downsample = make([]uint32, numDownsample)
	h.Passes.LastPass = make([]uint32, numDownsample)
	for i := uint32(0); i < numDownsample; i++ {
		h.Passes.Downsample[i] = 1 << r.ReadBits(3)
		h.Passes.LastPass[i] = uint32(r.ReadBits(3))
		if h.Passes.LastPass[i] >= h.Passes.NumPasses {
			return nil, errors.New("pass descriptor out of range")
		}
	}

	h.DCLevel = uint32(r.ReadBits(3))
	if h.DCLevel > 4 {
		return nil, errors.New("invalid DC level")
	}
	if h.Type == FrameDC && h.DCLevel == 0 {
		return nil, errDCFrameLevel
	}

	h.SaveAsReference = int(r.ReadBits(2))
	h.canBeReferenced = r.ReadBits(1) == 1
	h.SaveBeforeColorTransform = r.ReadBits(1) == 1

	h.CustomSizeOrOrigin = r.ReadBits(1) == 1
	if h.CustomSizeOrOrigin {
		h.X0 = int(r.ReadBits(16))
		h.Y0 = int(r.ReadBits(16))
		h.XSize = int(r.ReadBits(16))
		h.YSize = int(r.ReadBits(16))
	}

	h.Blending.Mode = BlendMode(r.ReadBits(2))
	h.Blending.Source = int(r.ReadBits(2))
	h.ExtraChannelBlending = make([]BlendingInfo, m.NumExtraChannels)
	for i := range h.ExtraChannelBlending {
		h.ExtraChannelBlending[i].Mode = BlendMode(r.ReadBits(2))
		h.ExtraChannelBlending[i].Source = int(r.ReadBits(2))
	}

	h.Duration = uint32(r.ReadBits(8))
	h.IsLast = r.ReadBits(1) == 1

	h.LoopFilter.EPFIters = int(r.ReadBits(2))
	if h.LoopFilter.EPFIters > 0 {
		h.LoopFilter.EPFSigmaForModular = float32(r.ReadBits(8)) / 16.0
	}

	r.JumpToByteBoundary()
	if r.Exhausted() {
		return nil, bio.ErrOutOfBounds
	}
	return h, nil
}

// CanBeReferenced reports whether later frames may blend against or patch
// from this frame. DC frames use the DC-frame slots instead.
func (h *FrameHeader) CanBeReferenced() bool {
	return h.canBeReferenced && h.Type != FrameDC
}

// SetCanBeReferenced is used when synthesising a header for a missing-header
// progressive preview.
func (h *FrameHeader) SetCanBeReferenced(v bool) {
	h.canBeReferenced = v
}
