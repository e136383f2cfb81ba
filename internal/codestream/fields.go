package codestream

import (
	"github.com/kelville/go-jxl/internal/bio"
)

// U32Sel is one arm of a U32 field distribution: either a literal value
// (Bits == 0) or Offset plus a Bits-wide read.
type U32Sel struct {
	Val    uint32
	Bits   uint
	Offset uint32
}

// U32Dist is a four-way U32 field layout selected by a 2-bit prefix.
type U32Dist [4]U32Sel

// Val makes a literal selector arm.
func Val(v uint32) U32Sel { return U32Sel{Val: v} }

// Bits makes a plain n-bit selector arm.
func Bits(n uint) U32Sel { return U32Sel{Bits: n} }

// BitsOffset makes an n-bit selector arm biased by off.
func BitsOffset(n uint, off uint32) U32Sel { return U32Sel{Bits: n, Offset: off} }

// ReadU32 reads a U32-coded field: a 2-bit selector, then the selected arm.
func ReadU32(r *bio.Reader, d U32Dist) uint32 {
	s := d[r.ReadBits(2)]
	if s.Bits == 0 {
		return s.Val
	}
	return s.Offset + uint32(r.ReadBits(s.Bits))
}

// TocDist is the section-size layout of the TOC.
var TocDist = U32Dist{Bits(10), BitsOffset(14, 1024), BitsOffset(22, 17408), BitsOffset(30, 4211712)}

// OrderDist is the layout of the per-pass used-orders bitmask.
var OrderDist = U32Dist{Val(0x5F), Val(0x13), Val(0), Bits(16)}
