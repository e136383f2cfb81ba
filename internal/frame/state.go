package frame

import (
	"sync/atomic"

	"github.com/kelville/go-jxl/internal/codestream"
	"github.com/kelville/go-jxl/internal/entropy"
	"github.com/kelville/go-jxl/internal/features"
	"github.com/kelville/go-jxl/internal/plane"
	"github.com/kelville/go-jxl/internal/quant"
	"github.com/kelville/go-jxl/internal/render"
)

// atomicOr32 performs an atomic bitwise OR, equivalent to atomic.Uint32.Or
// (Go 1.23+) via a CompareAndSwap loop for compatibility with older
// toolchains.
func atomicOr32(v *atomic.Uint32, mask uint32) {
	for {
		old := v.Load()
		if v.CompareAndSwap(old, old|mask) {
			return
		}
	}
}

// ReferenceFrame is one published reference slot.
type ReferenceFrame struct {
	Storage *plane.Image3
	// InXYB marks output saved before the colour transform.
	InXYB bool
}

// State is the codec state shared across the frames of one file. Frames
// borrow it: the global sections write it single-threaded, group workers
// read it. Reference and DC-frame slots outlive individual frames.
type State struct {
	Metadata *codestream.Metadata

	Quantizer   quant.Quantizer
	BlockCtxMap *quant.BlockCtxMap
	CMap        quant.CMap
	Matrices    *quant.DequantMatrices

	Patches features.PatchDictionary
	Splines features.Splines
	Noise   features.NoiseParams

	// Entropy state of the AC passes, written by ProcessACGlobal.
	NumHistograms int
	CoeffOrders   [][]int32
	Codes         []*entropy.Code
	CtxMaps       [][]uint8

	// UsedACs accumulates the AC-strategy mask from the DC groups, which
	// decode in parallel.
	UsedACs atomic.Uint32

	DC     *plane.Image3 // one value per 8x8 block
	Sigma  *plane.Plane
	Coeffs *ACCoeffs

	Pipeline *render.Pipeline

	ReferenceFrames [4]ReferenceFrame
	DCFrames        [5]*plane.Image3

	VisibleFrameIndex    uint64
	NonvisibleFrameIndex uint64
}

// NewState creates the shared state for a file.
func NewState(m *codestream.Metadata) *State {
	return &State{Metadata: m, Matrices: quant.NewDequantMatrices()}
}

// ACCoeffs is the cross-pass AC coefficient store, 16- or 32-bit per
// coefficient. Groups own disjoint rows, so parallel group decodes write
// without synchronisation.
type ACCoeffs struct {
	use16    bool
	perGroup int
	i16      [][]int16
	i32      [][]int32
}

// NewACCoeffs allocates storage for numGroups rows of perGroup
// coefficients. numGroups may be zero when no cross-pass storage is needed.
func NewACCoeffs(use16 bool, numGroups, perGroup int) *ACCoeffs {
	a := &ACCoeffs{use16: use16, perGroup: perGroup}
	if use16 {
		a.i16 = make([][]int16, numGroups)
		for i := range a.i16 {
			a.i16[i] = make([]int16, perGroup)
		}
	} else {
		a.i32 = make([][]int32, numGroups)
		for i := range a.i32 {
			a.i32[i] = make([]int32, perGroup)
		}
	}
	return a
}

// Stores reports whether cross-pass storage was allocated.
func (a *ACCoeffs) Stores() bool {
	return len(a.i16) > 0 || len(a.i32) > 0
}

// Use16 reports the storage depth.
func (a *ACCoeffs) Use16() bool { return a.use16 }

// ZeroFill clears all stored coefficients.
func (a *ACCoeffs) ZeroFill() {
	for _, row := range a.i16 {
		for i := range row {
			row[i] = 0
		}
	}
	for _, row := range a.i32 {
		for i := range row {
			row[i] = 0
		}
	}
}

// Add accumulates v into coefficient pos of group g.
func (a *ACCoeffs) Add(g, pos int, v int32) {
	if a.use16 {
		a.i16[g][pos] += int16(v)
	} else {
		a.i32[g][pos] += v
	}
}

// At reads coefficient pos of group g.
func (a *ACCoeffs) At(g, pos int) int32 {
	if a.use16 {
		return int32(a.i16[g][pos])
	}
	return a.i32[g][pos]
}
