package frame

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/kelville/go-jxl/internal/bio"
	"github.com/kelville/go-jxl/internal/codestream"
	"github.com/kelville/go-jxl/internal/plane"
)

var errFlushBlending = errors.New("cannot flush a blending frame before finalization")

// hasBlending reports whether composing this frame onto the canvas needs a
// reference, which makes early flushes unsafe.
func (d *Decoder) hasBlending() bool {
	h := d.header
	if h.Blending.Mode != codestream.BlendReplace || h.CustomSizeOrOrigin {
		return true
	}
	for _, ec := range h.ExtraChannelBlending {
		if ec.Mode != codestream.BlendReplace {
			return true
		}
	}
	return false
}

// Flush renders a best-effort image from the decoded-so-far state. Groups
// missing passes are force-drawn (zero AC, or DC only before AC-global).
// Each call renders afresh; numRenders counts them.
func (d *Decoder) Flush() error {
	if d.hasBlending() && !d.isFinalized {
		return errFlushBlending
	}
	if d.header.Type == codestream.FrameSkipProgressive && !d.isFinalized {
		// Nothing to show until the frame completes.
		return nil
	}
	if d.out.IsJPEG() {
		return nil
	}
	if err := d.allocateOutput(); err != nil {
		return err
	}

	completelyDecoded := d.maxPasses
	for _, p := range d.decodedPassesPerACGroup {
		if p < completelyDecoded {
			completelyDecoded = p
		}
	}
	if completelyDecoded < d.header.Passes.NumPasses {
		for g, p := range d.decodedPassesPerACGroup {
			if p == d.header.Passes.NumPasses {
				continue
			}
			d.state.Pipeline.ClearDone(g)
		}
		err := d.pool.Run(0, d.dim.NumGroups,
			func(numThreads int) error {
				d.prepareStorage(numThreads)
				return nil
			},
			func(g, thread int) error {
				if d.decodedPassesPerACGroup[g] == d.header.Passes.NumPasses {
					// Already drawn.
					return nil
				}
				var readers []*bio.Reader
				return d.processACGroup(g, readers, 0, thread, true, !d.decodedACGlobal)
			}, "ForceDrawGroup")
		if err != nil {
			log.Debugf("force draw: %v", err)
			return ErrDrawingGroups
		}
	}

	if err := d.modular.FinalizeDecoding(d.out, d.state.Pipeline, d.pool, d.isFinalized); err != nil {
		return err
	}
	d.numRenders++
	return nil
}

// FinalizeFrame validates terminal state, renders, and publishes the frame
// into its reference or DC-frame slot. It succeeds at most once per frame.
func (d *Decoder) FinalizeFrame() error {
	if d.isFinalized {
		return ErrFinalizedTwice
	}
	d.isFinalized = true
	if d.out.IsJPEG() {
		return nil
	}
	if !d.finalizedDC {
		// Without all of DC the loop filter's DC-dependent decisions are
		// unreliable; disable it.
		d.header.LoopFilter.EPFIters = 0
	}
	if !d.HasEverything() && !d.allowPartialFrames {
		return ErrNotFullyDecoded
	}
	if !d.finalizedDC {
		if err := d.allocateOutput(); err != nil {
			return err
		}
	}
	if err := d.Flush(); err != nil {
		return err
	}

	if d.header.Type == codestream.FrameDC {
		d.state.DCFrames[d.header.DCLevel-1] = copyImage3(d.out.Color)
	} else if d.header.CanBeReferenced() {
		d.state.ReferenceFrames[d.header.SaveAsReference] = ReferenceFrame{
			Storage: copyImage3(d.out.Color),
			InXYB:   d.header.SaveBeforeColorTransform,
		}
	}
	return nil
}

func copyImage3(im *plane.Image3) *plane.Image3 {
	if im == nil {
		return nil
	}
	cp := plane.NewImage3(im.W(), im.H())
	for c := 0; c < 3; c++ {
		copy(cp.Planes[c].Pix, im.Planes[c].Pix)
	}
	return cp
}

// SavedAs computes the slot bitmask a finalized frame occupies: bits 0-3
// for the reference slots, bits 4-7 for the DC pyramid levels.
func SavedAs(h *codestream.FrameHeader) int {
	if h.Type == codestream.FrameDC {
		return 16 << (h.DCLevel - 1)
	}
	if h.CanBeReferenced() {
		return 1 << h.SaveAsReference
	}
	return 0
}

// References computes the bitmask of slots this frame read: blending and
// cropping sources, patch sources, and the DC frame one level up. Zero
// until the frame is finalized and fully decoded.
func (d *Decoder) References() int {
	if !d.isFinalized || !d.HasEverything() {
		return 0
	}
	result := 0
	h := d.header

	if h.Type == codestream.FrameRegular || h.Type == codestream.FrameSkipProgressive {
		cropped := h.CustomSizeOrOrigin
		if cropped || h.Blending.Mode != codestream.BlendReplace {
			result |= 1 << h.Blending.Source
		}
		for _, ec := range h.ExtraChannelBlending {
			if cropped || ec.Mode != codestream.BlendReplace {
				result |= 1 << ec.Source
			}
		}
	}

	if h.Flags&codestream.FlagPatches != 0 {
		result |= d.state.Patches.GetReferences()
	}

	if h.Flags&codestream.FlagUseDCFrame != 0 {
		// Reads the next DC level down the pyramid.
		result |= 16 << h.DCLevel
	}
	return result
}
