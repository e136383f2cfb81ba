package codestream

import (
	"errors"

	"github.com/kelville/go-jxl/internal/bio"
)

// ErrPermutedTOC is returned for the unsupported permuted TOC layout.
var ErrPermutedTOC = errors.New("permuted TOC is not supported")

// NumTocEntries reports the number of sections of a frame. A frame with a
// single group and a single pass stores everything in one combined section.
func NumTocEntries(numGroups, numDCGroups int, numPasses uint32, hasACGlobal bool) int {
	if numGroups == 1 && numPasses == 1 {
		return 1
	}
	n := 1 + numDCGroups + numGroups*int(numPasses)
	if hasACGlobal {
		n++
	}
	return n
}

// ReadGroupOffsets parses the TOC: a permutation flag (must be clear), then
// one U32-coded size per section. Offsets are cumulative in TOC order. The
// reader is left byte-aligned. Returns the parallel offset and size vectors
// and the cumulative size of all sections.
func ReadGroupOffsets(r *bio.Reader, tocEntries int) (offsets []uint64, sizes []uint32, total uint64, err error) {
	if r.ReadBits(1) == 1 {
		return nil, nil, 0, ErrPermutedTOC
	}
	offsets = make([]uint64, tocEntries)
	sizes = make([]uint32, tocEntries)
	for i := 0; i < tocEntries; i++ {
		sizes[i] = ReadU32(r, TocDist)
	}
	r.JumpToByteBoundary()
	if r.Exhausted() {
		return nil, nil, 0, bio.ErrOutOfBounds
	}
	for i := 0; i < tocEntries; i++ {
		offsets[i] = total
		total += uint64(sizes[i])
	}
	return offsets, sizes, total, nil
}
