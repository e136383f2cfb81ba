// Package bundle provides the decoded image bundle handed back to the host:
// colour planes, extra channels, animation and placement metadata, and the
// optional JPEG reconstruction target.
package bundle

import (
	"github.com/kelville/go-jxl/internal/jpegdata"
	"github.com/kelville/go-jxl/internal/plane"
)

// Bundle is a reconstructed (possibly partial) frame.
type Bundle struct {
	Color *plane.Image3
	Extra []*plane.Plane

	OriginX, OriginY int
	Duration         uint32

	// JPEG, when non-nil, marks this bundle as a JPEG reconstruction
	// target; pixel planes stay empty.
	JPEG *jpegdata.JPEGData

	// DecodedBytes tracks how far into the frame the decode got, for
	// progressive reporting.
	DecodedBytes uint64
}

// IsJPEG reports whether the bundle reconstructs a JPEG bitstream.
func (b *Bundle) IsJPEG() bool {
	return b.JPEG != nil
}

// RemoveColor drops the colour planes. The previous frame may have had
// different dimensions, so InitFrame clears before reuse.
func (b *Bundle) RemoveColor() {
	b.Color = nil
}

// ClearExtraChannels drops the extra-channel planes.
func (b *Bundle) ClearExtraChannels() {
	b.Extra = nil
}

// SetDecodedBytes records decode progress.
func (b *Bundle) SetDecodedBytes(n uint64) {
	b.DecodedBytes = n
}
