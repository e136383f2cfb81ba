// Package modular implements the lossless modular sub-decoder as seen from
// the frame orchestrator: the global stream, the per-group DC and AC
// streams, and final conversion of the integer planes into the output
// bundle. Channels are coded either as a constant or as raw per-pixel
// values; with zerofill requested a group is skipped without reading, so
// the reader may be nil.
package modular

import (
	"errors"

	"github.com/kelville/go-jxl/internal/bio"
	"github.com/kelville/go-jxl/internal/bundle"
	"github.com/kelville/go-jxl/internal/codestream"
	"github.com/kelville/go-jxl/internal/plane"
	"github.com/kelville/go-jxl/internal/pool"
	"github.com/kelville/go-jxl/internal/render"
)

// Decoder is the per-frame modular state.
type Decoder struct {
	dim    codestream.Dimensions
	header *codestream.FrameHeader

	useFullImage bool
	full         *plane.Image3

	transforms    []uint8
	globalDecoded bool
}

// Init prepares the decoder for a frame. Fully modular frames decode into a
// full-resolution integer image; VarDCT frames only route side channels.
func (d *Decoder) Init(dim codestream.Dimensions, header *codestream.FrameHeader) {
	d.dim = dim
	d.header = header
	d.useFullImage = header.Encoding == codestream.EncodingModular
	d.full = nil
	d.transforms = nil
	d.globalDecoded = false
	if d.useFullImage {
		d.full = plane.NewImage3(dim.XSize, dim.YSize)
	}
}

// DecodeGlobalInfo reads the global modular stream: the transform chain
// applied to the full image. With allowPartial, running out of input is a
// clean partial outcome (complete false, nil error) rather than a failure.
func (d *Decoder) DecodeGlobalInfo(r *bio.Reader, allowPartial bool) (complete bool, err error) {
	if allowPartial && r.TotalBitsConsumed() >= r.TotalBytes()*8 {
		return false, nil
	}
	if r.ReadBits(1) == 1 {
		n := int(r.ReadBits(4))
		d.transforms = make([]uint8, n)
		for i := range d.transforms {
			d.transforms[i] = uint8(r.ReadBits(8))
		}
	}
	if r.Exhausted() {
		if allowPartial {
			return false, nil
		}
		return false, bio.ErrOutOfBounds
	}
	d.globalDecoded = true
	return true, nil
}

// DecodeVarDCTDC reads the variable-DCT DC coefficients of one DC group
// into the DC image. mul carries the combined per-channel dequantization
// multiplier.
func (d *Decoder) DecodeVarDCTDC(dcGroup int, r *bio.Reader, dc *plane.Image3, mul [3]float32) error {
	gx := dcGroup % d.dim.XSizeDCGroups
	gy := dcGroup / d.dim.XSizeDCGroups
	rect := plane.NewRect(gx*d.dim.GroupDim, gy*d.dim.GroupDim, d.dim.GroupDim, d.dim.GroupDim,
		d.dim.XSizeBlocks, d.dim.YSizeBlocks)
	for c := 0; c < 3; c++ {
		if err := decodeChannel(r, dc.Planes[c], rect, mul[c]); err != nil {
			return err
		}
	}
	if r.Exhausted() {
		return bio.ErrOutOfBounds
	}
	return nil
}

// decodeChannel reads one channel rect: a constant marker plus value, or
// raw per-pixel values. Values are centred 16-bit, scaled by mul.
func decodeChannel(r *bio.Reader, p *plane.Plane, rect plane.Rect, mul float32) error {
	if r.ReadBits(1) == 1 {
		v := scale(uint32(r.ReadBits(16)), mul)
		plane.FillRect(p, rect, v)
		return nil
	}
	for y := 0; y < rect.YSize; y++ {
		row := p.Row(rect.Y0 + y)
		for x := 0; x < rect.XSize; x++ {
			row[rect.X0+x] = scale(uint32(r.ReadBits(16)), mul)
		}
	}
	return nil
}

func scale(raw uint32, mul float32) float32 {
	return float32(int32(raw)-32768) * mul
}

// DecodeGroup reads the modular stream of one group rect. In VarDCT mode
// the stream carries no modular channels and nothing is read. zerofill
// returns without touching the reader (which may be nil) or the pixels, so
// data from earlier passes stays. Decoded pixels always land in the full
// image; target is not written.
func (d *Decoder) DecodeGroup(rect plane.Rect, r *bio.Reader, minShift, maxShift int, zerofill bool, target *render.Input, allowPartial bool) error {
	if !d.useFullImage {
		// VarDCT groups carry their pixels in the coefficient stream; the
		// modular side has no channels to read or clear.
		return nil
	}
	if zerofill {
		// Missing passes leave their pixels at the planes' zero initial
		// value; earlier passes' data stays intact.
		return nil
	}
	for c := 0; c < 3; c++ {
		dst := d.full.Planes[c]
		dstRect := plane.NewRect(rect.X0, rect.Y0, rect.XSize, rect.YSize, d.dim.XSize, d.dim.YSize)
		if r.ReadBits(1) == 0 {
			continue // channel not present in this stream
		}
		if err := decodeChannel(r, dst, dstRect, 1.0/256); err != nil {
			return err
		}
	}
	if r != nil && r.Exhausted() {
		if allowPartial {
			return nil
		}
		return bio.ErrOutOfBounds
	}
	return nil
}

// DecodeAcMetadata reads the per-DC-group AC metadata and reports the mask
// of AC strategies the group uses.
func (d *Decoder) DecodeAcMetadata(dcGroup int, r *bio.Reader) (usedACs uint32, err error) {
	usedACs = uint32(r.ReadBits(8))
	if r.Exhausted() {
		return 0, bio.ErrOutOfBounds
	}
	return usedACs, nil
}

// UsesFullImage reports whether the frame decodes through the modular full
// image.
func (d *Decoder) UsesFullImage() bool {
	return d.useFullImage
}

// MaybeDropFullImage frees the full-image buffers when the render pipeline
// consumes per-group inputs directly.
func (d *Decoder) MaybeDropFullImage() {
	if !d.useFullImage {
		d.full = nil
	}
}

// FinalizeDecoding undoes the global transforms and converts the integer
// planes into the float output bundle. For VarDCT frames the pixels come
// from the render pipeline instead.
func (d *Decoder) FinalizeDecoding(out *bundle.Bundle, pipe *render.Pipeline, p *pool.Pool, isFinalized bool) error {
	var src *plane.Image3
	if d.useFullImage {
		if d.full == nil {
			return errors.New("modular full image dropped before finalization")
		}
		src = d.full
	} else {
		src = pipe.Output()
	}
	w, h := src.W(), src.H()
	if out.Color == nil || out.Color.W() != w || out.Color.H() != h {
		out.Color = plane.NewImage3(w, h)
	}
	err := p.Run(0, h, nil, func(y, thread int) error {
		for c := 0; c < 3; c++ {
			copy(out.Color.Planes[c].Row(y), src.Planes[c].Row(y))
		}
		return nil
	}, "FinalizeModular")
	if err != nil {
		return err
	}
	if !d.useFullImage && pipe != nil {
		out.Extra = out.Extra[:0]
		for _, e := range pipe.ExtraOutput() {
			cp := plane.New(e.W, e.H)
			copy(cp.Pix, e.Pix)
			out.Extra = append(out.Extra, cp)
		}
	}
	return nil
}
