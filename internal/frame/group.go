package frame

import (
	"errors"

	"github.com/kelville/go-jxl/internal/bio"
	"github.com/kelville/go-jxl/internal/codestream"
	"github.com/kelville/go-jxl/internal/entropy"
	"github.com/kelville/go-jxl/internal/features"
	"github.com/kelville/go-jxl/internal/jpegdata"
	"github.com/kelville/go-jxl/internal/plane"
	"github.com/kelville/go-jxl/internal/render"
)

type renderInput = render.Input

func jpegOrderFor(h *codestream.FrameHeader, numComponents int) [3]int {
	return jpegdata.JpegOrder(h.ColorTransform == codestream.ColorTransformYCbCr, numComponents == 1)
}

// groupDecCache is per-thread scratch for AC group decoding: the
// accumulated coefficients of the group currently being decoded.
type groupDecCache struct {
	coeffs []int32
}

func (c *groupDecCache) initOnce(size int) {
	if len(c.coeffs) < size {
		c.coeffs = make([]int32, size)
	}
}

var errCoeffOutOfRange = errors.New("AC coefficient position out of range")

// processACGroup decodes numPasses new AC passes of group g from the
// per-pass readers, interleaved with the modular AC streams, then draws
// noise and commits the group's pipeline input. With forceDraw, missing
// passes render zero-filled; dcOnly renders from the DC image alone.
func (d *Decoder) processACGroup(g int, readers []*bio.Reader, numPasses, thread int, forceDraw, dcOnly bool) error {
	h := d.header
	gx := g % d.dim.XSizeGroups
	gy := g / d.dim.XSizeGroups
	x := gx * d.dim.GroupDim
	y := gy * d.dim.GroupDim

	input := d.state.Pipeline.GetInputBuffers(g, thread)
	shouldRunPipeline := true

	if h.Encoding == codestream.EncodingVarDCT {
		cache := &d.groupDecCaches[thread]
		cache.initOnce(3 * d.dim.GroupDim * d.dim.GroupDim)
		if err := d.decodeVarDCTGroup(g, readers, numPasses, cache, input, dcOnly, &shouldRunPipeline); err != nil {
			return err
		}
	}

	// Modular AC streams, one per pass; the image extent is applied later.
	mrect := plane.Rect{X0: x, Y0: y, XSize: d.dim.GroupDim, YSize: d.dim.GroupDim}
	firstPass := int(d.decodedPassesPerACGroup[g])
	for i := 0; i < int(h.Passes.NumPasses); i++ {
		minShift, maxShift := h.Passes.DownsamplingBracket(uint32(i))
		switch {
		case i >= firstPass && i < firstPass+numPasses:
			if err := d.modular.DecodeGroup(mrect, readers[i-firstPass], minShift, maxShift,
				false, &input, d.allowPartialFrames); err != nil {
				return err
			}
		case i >= firstPass+numPasses && forceDraw:
			if err := d.modular.DecodeGroup(mrect, nil, minShift, maxShift,
				true, &input, d.allowPartialFrames); err != nil {
				return err
			}
		}
	}
	d.decodedPassesPerACGroup[g] += uint32(numPasses)

	if h.Flags&codestream.FlagNoise != 0 {
		d.drawNoise(gx, gy, input)
	}

	if !d.modular.UsesFullImage() && !d.out.IsJPEG() && shouldRunPipeline {
		input.Done()
	}
	return nil
}

// decodeVarDCTGroup reads the new passes' coefficients into the group
// cache (and the cross-pass store when present), then renders the group
// into the pipeline input buffers or, for JPEG targets, into the
// reconstruction coefficients.
func (d *Decoder) decodeVarDCTGroup(g int, readers []*bio.Reader, numPasses int, cache *groupDecCache, input renderInput, dcOnly bool, shouldRunPipeline *bool) error {
	s := d.state
	gd := d.dim.GroupDim
	per := 3 * gd * gd

	for i := range cache.coeffs[:per] {
		cache.coeffs[i] = 0
	}
	if !dcOnly && s.Coeffs != nil && s.Coeffs.Stores() {
		for pos := 0; pos < per; pos++ {
			cache.coeffs[pos] = s.Coeffs.At(g, pos)
		}
	}

	firstPass := int(d.decodedPassesPerACGroup[g])
	for i := 0; i < numPasses; i++ {
		pass := firstPass + i
		br := readers[i]
		code := s.Codes[pass]
		ctxMap := s.CtxMaps[pass]
		order := s.CoeffOrders[pass]
		nctx := s.BlockCtxMap.NumACContexts()
		histo := g % s.NumHistograms

		nnz := int(br.ReadBits(16))
		for j := 0; j < nnz; j++ {
			pos := int(br.ReadBits(22))
			if pos >= per {
				return errCoeffOutOfRange
			}
			// The within-block index goes through the coefficient order of
			// the first strategy class.
			pos = pos&^63 | int(order[pos&63])
			sym := code.ReadSymbol(br, ctxMap[histo*nctx+j%nctx])
			val := entropy.UnpackSigned(sym)
			cache.coeffs[pos] += val
			if s.Coeffs != nil && s.Coeffs.Stores() {
				s.Coeffs.Add(g, pos, val)
			}
		}
		if br.Exhausted() {
			return bio.ErrOutOfBounds
		}
	}

	if d.out.IsJPEG() {
		d.storeJPEGCoeffs(g, cache)
		*shouldRunPipeline = false
		return nil
	}
	d.renderVarDCTGroup(g, cache, input, dcOnly)
	return nil
}

// renderVarDCTGroup writes the group's pixels: upsampled DC plus the
// dequantized coefficient contribution at each position.
func (d *Decoder) renderVarDCTGroup(g int, cache *groupDecCache, input renderInput, dcOnly bool) {
	gd := d.dim.GroupDim
	gx := g % d.dim.XSizeGroups
	gy := g / d.dim.XSizeGroups
	x := gx * gd
	y := gy * gd
	for c := 0; c < 3; c++ {
		buf, rect := input.GetBuffer(c)
		acMul := d.state.Matrices.DCQuant(c) * 0.125
		dcPlane := d.state.DC.Planes[c]
		for py := 0; py < rect.YSize; py++ {
			row := buf.Row(rect.Y0 + py)
			for px := 0; px < rect.XSize; px++ {
				v := dcPlane.At((x+px)/8, (y+py)/8)
				if !dcOnly {
					v += float32(cache.coeffs[c*gd*gd+py*gd+px]) * acMul
				}
				row[rect.X0+px] = v
			}
		}
	}
}

// storeJPEGCoeffs routes the group's coefficients into the JPEG
// reconstruction target's per-block layout.
func (d *Decoder) storeJPEGCoeffs(g int, cache *groupDecCache) {
	jd := d.out.JPEG
	gd := d.dim.GroupDim
	gx := g % d.dim.XSizeGroups
	gy := g / d.dim.XSizeGroups
	order := jpegOrderFor(d.header, len(jd.Components))
	for c := 0; c < len(jd.Components); c++ {
		comp := &jd.Components[order[c]]
		for py := 0; py < gd; py++ {
			iy := gy*gd + py
			by := iy / 8
			if by >= comp.HeightInBlocks {
				break
			}
			for px := 0; px < gd; px++ {
				ix := gx*gd + px
				bx := ix / 8
				if bx >= comp.WidthInBlocks {
					break
				}
				v := cache.coeffs[c*gd*gd+py*gd+px]
				if v == 0 {
					continue
				}
				idx := (by*comp.WidthInBlocks+bx)*64 + (iy%8)*8 + ix%8
				comp.Coeffs[idx] += v
			}
		}
	}
}

// drawNoise fills the noise planes of the group over the upsampled tile
// grid with the deterministic generator.
func (d *Decoder) drawNoise(gx, gy int, input renderInput) {
	h := d.header
	u := int(h.Upsampling)
	gd := d.dim.GroupDim
	noiseCStart := 3 + d.state.Metadata.NumExtraChannels
	var prs [3]features.PlaneRect
	for iy := 0; iy < u; iy++ {
		for ix := 0; ix < u; ix++ {
			for c := 0; c < 3; c++ {
				buf, r := input.GetBuffer(noiseCStart + c)
				x1 := r.X0 + r.XSize
				y1 := r.Y0 + r.YSize
				prs[c].Plane = buf
				prs[c].Rect = plane.NewRect(r.X0+ix*gd, r.Y0+iy*gd, gd, gd, x1, y1)
			}
			features.Random3Planes(d.state.VisibleFrameIndex, d.state.NonvisibleFrameIndex,
				(gx*u+ix)*gd, (gy*u+iy)*gd, prs[0], prs[1], prs[2])
		}
	}
}
