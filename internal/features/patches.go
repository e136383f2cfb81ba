// Package features holds the image-feature caches decoded from the
// DC-global section: the patch dictionary, the spline set and the noise
// parameters.
package features

import (
	"errors"

	"github.com/kelville/go-jxl/internal/bio"
)

// Patch is one patch placement: a rectangle copied from a reference frame.
type Patch struct {
	Ref          int
	X0, Y0       int
	XSize, YSize int
	TargetX      int
	TargetY      int
	ExtraChannel bool
}

// PatchDictionary is the decoded patch set of a frame.
type PatchDictionary struct {
	patches []Patch
	refs    int
}

// Decode reads the patch dictionary. usesExtraChannels reports whether any
// patch targets an extra channel.
func (p *PatchDictionary) Decode(r *bio.Reader, xsizePadded, ysizePadded int, usesExtraChannels *bool) error {
	count := int(r.ReadBits(10))
	p.patches = make([]Patch, 0, count)
	p.refs = 0
	for i := 0; i < count; i++ {
		var pt Patch
		pt.Ref = int(r.ReadBits(2))
		pt.X0 = int(r.ReadBits(16))
		pt.Y0 = int(r.ReadBits(16))
		pt.XSize = 1 + int(r.ReadBits(10))
		pt.YSize = 1 + int(r.ReadBits(10))
		pt.TargetX = int(r.ReadBits(16))
		pt.TargetY = int(r.ReadBits(16))
		pt.ExtraChannel = r.ReadBits(1) == 1
		if pt.TargetX+pt.XSize > xsizePadded || pt.TargetY+pt.YSize > ysizePadded {
			return errors.New("patch out of bounds")
		}
		if pt.ExtraChannel {
			*usesExtraChannels = true
		}
		p.refs |= 1 << pt.Ref
		p.patches = append(p.patches, pt)
	}
	if r.Exhausted() {
		return bio.ErrOutOfBounds
	}
	return nil
}

// GetReferences reports the bitmask of reference slots the patches read.
func (p *PatchDictionary) GetReferences() int { return p.refs }

// HasAny reports whether the dictionary holds any patches.
func (p *PatchDictionary) HasAny() bool { return len(p.patches) > 0 }

// Clear resets the dictionary for frames without the patches flag.
func (p *PatchDictionary) Clear() {
	p.patches = nil
	p.refs = 0
}
