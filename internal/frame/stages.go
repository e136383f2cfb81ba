package frame

import (
	"errors"
	"fmt"

	"github.com/kelville/go-jxl/internal/bio"
	"github.com/kelville/go-jxl/internal/codestream"
	"github.com/kelville/go-jxl/internal/entropy"
	"github.com/kelville/go-jxl/internal/features"
	"github.com/kelville/go-jxl/internal/jpegdata"
	"github.com/kelville/go-jxl/internal/plane"
	"github.com/kelville/go-jxl/internal/quant"
	"github.com/kelville/go-jxl/internal/render"
)

// invSigmaNum scales the constant sigma fill used for modular frames with
// the edge-preserving filter enabled.
const invSigmaNum = 13.65

// Context-map enlargement bounds: ProcessACGlobal appends
// zeroDensityContextLimit-zeroDensityContextCount zero entries to each
// pass's context map so group decoding can index past numContexts.
const (
	zeroDensityContextCount = 105
	zeroDensityContextLimit = 474
)

// partialOK maps an end-of-input failure to a clean partial outcome when
// the partial-DC-global policy permits it.
func (d *Decoder) partialOK(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if d.allowPartialDCGlobal && errors.Is(err, bio.ErrOutOfBounds) {
		return false, nil
	}
	return false, err
}

// processDCGlobal decodes the DC-global section: image features, DC
// dequantization, the VarDCT global DC state and the global modular
// stream. complete=false with a nil error is the partial outcome allowed
// under allowPartialDCGlobal.
func (d *Decoder) processDCGlobal(br *bio.Reader) (complete bool, err error) {
	s := d.state
	h := d.header

	if h.Flags&codestream.FlagPatches != 0 {
		usesExtra := false
		if err := s.Patches.Decode(br, d.dim.XSizePadded, d.dim.YSizePadded, &usesExtra); err != nil {
			return d.partialOK(err)
		}
		if usesExtra && h.Upsampling != 1 {
			for _, ecups := range h.ExtraChannelUpsampling {
				if ecups != h.Upsampling {
					return false, errPatchExtraUpsampling
				}
			}
		}
	} else {
		s.Patches.Clear()
	}

	s.Splines.Clear()
	if h.Flags&codestream.FlagSplines != 0 {
		if err := s.Splines.Decode(br, d.dim.XSize*d.dim.YSize); err != nil {
			return d.partialOK(err)
		}
	}

	if h.Flags&codestream.FlagNoise != 0 {
		if err := features.DecodeNoise(br, &s.Noise); err != nil {
			return d.partialOK(err)
		}
	}

	// When more progressive input may still arrive, an exhausted reader
	// skips the dequantization and global DC state entirely.
	if !d.allowPartialDCGlobal || br.TotalBitsConsumed() < br.TotalBytes()*8 {
		if err := s.Matrices.DecodeDC(br); err != nil {
			return d.partialOK(err)
		}
		if h.Encoding == codestream.EncodingVarDCT {
			if err := d.decodeGlobalDCInfo(br); err != nil {
				return d.partialOK(err)
			}
		}
	}

	// The splines draw cache needs the colour-correlation map, so it is
	// initialised only now.
	if h.Flags&codestream.FlagSplines != 0 {
		if err := s.Splines.InitializeDrawCache(d.dim.XSizeUpsampled, d.dim.YSizeUpsampled, &s.CMap); err != nil {
			return false, err
		}
	}

	complete, err = d.modular.DecodeGlobalInfo(br, d.allowPartialDCGlobal)
	if err != nil {
		return false, err
	}
	if complete {
		d.decodedDCGlobal = true
	}
	return complete, nil
}

// decodeGlobalDCInfo reads the VarDCT global DC state: quantizer, block
// context map and the DC colour-correlation map.
func (d *Decoder) decodeGlobalDCInfo(br *bio.Reader) error {
	s := d.state
	if err := s.Quantizer.Decode(br); err != nil {
		return err
	}
	ctxMap, err := quant.DecodeBlockCtxMap(br)
	if err != nil {
		return err
	}
	s.BlockCtxMap = ctxMap
	if err := s.CMap.DecodeDC(br); err != nil {
		return err
	}
	if d.out.IsJPEG() {
		// JPEG reconstruction keeps DC in quantized form.
		s.Quantizer.ClearDCMul()
	}
	return nil
}

// processDCGroup decodes one DC group: the VarDCT DC coefficients, the
// modular DC stream and the AC metadata. Requires decodedDCGlobal.
func (d *Decoder) processDCGroup(g int, br *bio.Reader) error {
	h := d.header
	if h.Encoding == codestream.EncodingVarDCT && h.Flags&codestream.FlagUseDCFrame == 0 {
		mulDC := d.state.Quantizer.MulDC()
		var mul [3]float32
		for c := 0; c < 3; c++ {
			mul[c] = mulDC[c] * d.state.Matrices.DCQuant(c)
		}
		if err := d.modular.DecodeVarDCTDC(g, br, d.state.DC, mul); err != nil {
			return err
		}
	}
	gx := g % d.dim.XSizeDCGroups
	gy := g / d.dim.XSizeDCGroups
	mrect := plane.NewRect(gx*d.dim.DCGroupDim, gy*d.dim.DCGroupDim, d.dim.DCGroupDim, d.dim.DCGroupDim,
		d.dim.XSize, d.dim.YSize)
	if err := d.modular.DecodeGroup(mrect, br, 3, 1000, false, nil, d.allowPartialFrames); err != nil {
		return err
	}
	if h.Encoding == codestream.EncodingVarDCT {
		used, err := d.modular.DecodeAcMetadata(g, br)
		if err != nil {
			return err
		}
		atomicOr32(&d.state.UsedACs, used)
	} else if h.LoopFilter.EPFIters > 0 {
		// One sigma rect per DC group, so parallel groups write disjoint
		// slots.
		srect := plane.NewRect(gx*d.dim.GroupDim, gy*d.dim.GroupDim, d.dim.GroupDim, d.dim.GroupDim,
			d.dim.XSizeBlocks, d.dim.YSizeBlocks)
		plane.FillRect(d.state.Sigma, srect, invSigmaNum/h.LoopFilter.EPFSigmaForModular)
	}
	d.decodedDCGroups[g] = true
	return nil
}

// finalizeDC runs between the last DC group and any AC work: adaptive DC
// smoothing unless the header opts out or the DC comes from a DC frame.
func (d *Decoder) finalizeDC() {
	h := d.header
	if h.Encoding == codestream.EncodingVarDCT &&
		h.Flags&codestream.FlagSkipAdaptiveDCSmoothing == 0 &&
		h.Flags&codestream.FlagUseDCFrame == 0 {
		adaptiveDCSmoothing(d.state.Quantizer.MulDC(), d.state.DC, d.pool)
	}
	d.finalizedDC = true
}

// preparePipeline builds the render pipeline for this frame.
func (d *Decoder) preparePipeline() {
	var noiseStrength float32
	if d.header.Flags&codestream.FlagNoise != 0 {
		noiseStrength = d.state.Noise.LUT[0]
	}
	d.state.Pipeline = render.Prepare(d.dim, int(d.header.Upsampling),
		d.state.Metadata.NumExtraChannels, noiseStrength, d.pipelineOpts)
}

// allocateOutput lazily allocates the AC-side buffers at the DC-to-AC
// boundary. Idempotent.
func (d *Decoder) allocateOutput() error {
	if d.allocated {
		return nil
	}
	if d.state.Pipeline == nil {
		d.preparePipeline()
	}
	d.modular.MaybeDropFullImage()
	d.out.OriginX = d.header.X0
	d.out.OriginY = d.header.Y0
	d.prepareStorage(d.pool.NumWorkers())
	d.allocated = true
	return nil
}

// prepareStorage sizes the per-thread scratch: render-pipeline input
// buffers and group decoder caches. Runs in pool init hooks, before any
// worker touches its slot.
func (d *Decoder) prepareStorage(numThreads int) {
	if d.state.Pipeline != nil {
		d.state.Pipeline.PrepareStorage(numThreads)
	}
	for len(d.groupDecCaches) < numThreads {
		d.groupDecCaches = append(d.groupDecCaches, groupDecCache{})
	}
}

// processACGlobal decodes the AC-global section: dequantization tables,
// per-pass entropy codes, coefficient orders, and the coefficient storage
// decision. Requires finalizedDC.
func (d *Decoder) processACGlobal(br *bio.Reader) error {
	s := d.state
	h := d.header

	maxNumBits := 0
	if h.Encoding == codestream.EncodingVarDCT {
		if err := s.Matrices.Decode(br); err != nil {
			return err
		}
		if err := s.Matrices.EnsureComputed(s.UsedACs.Load()); err != nil {
			return err
		}

		numHistoBits := entropy.CeilLog2(d.dim.NumGroups)
		s.NumHistograms = 1 + int(br.ReadBits(numHistoBits))

		numPasses := int(h.Passes.NumPasses)
		s.Codes = make([]*entropy.Code, numPasses)
		s.CtxMaps = make([][]uint8, numPasses)
		s.CoeffOrders = make([][]int32, numPasses)
		for i := 0; i < numPasses; i++ {
			usedOrders := uint16(codestream.ReadU32(br, codestream.OrderDist))
			s.CoeffOrders[i] = make([]int32, entropy.NumOrders*entropy.OrderSize)
			if err := entropy.DecodeCoeffOrders(br, usedOrders, s.CoeffOrders[i]); err != nil {
				return err
			}
			numContexts := s.NumHistograms * s.BlockCtxMap.NumACContexts()
			code, ctxMap, err := entropy.DecodeHistograms(br, numContexts)
			if err != nil {
				return err
			}
			// Pad so the group hot loop can index past numContexts without
			// a bounds check.
			ctxMap = append(ctxMap, make([]uint8, zeroDensityContextLimit-zeroDensityContextCount)...)
			s.Codes[i] = code
			s.CtxMaps[i] = ctxMap
			if code.MaxNumBits > maxNumBits {
				maxNumBits = code.MaxNumBits
			}
		}
		maxNumBits += int(entropy.CeilLog2(numPasses))

		use16 := maxNumBits < 16 && !d.out.IsJPEG()
		store := h.Passes.NumPasses > 1
		numGroups, perGroup := 0, 0
		if store {
			numGroups = d.dim.NumGroups
			perGroup = 3 * d.dim.GroupDim * d.dim.GroupDim
		}
		s.Coeffs = NewACCoeffs(use16, numGroups, perGroup)
		if store {
			s.Coeffs.ZeroFill()
		}
	}

	if d.out.IsJPEG() {
		if err := d.setJPEGDecodingData(); err != nil {
			return err
		}
	}
	d.decodedACGlobal = true
	return nil
}

// jpegQuantDen is the expected RAW-table denominator of a JPEG-compatible
// quantization encoding.
const jpegQuantDen = 1.0 / (8 * 255)

// setJPEGDecodingData validates the quantization encoding against the JPEG
// contract and copies the tables into the reconstruction target.
func (d *Decoder) setJPEGDecodingData() error {
	jd := d.out.JPEG
	jd.ColorTransform = d.header.ColorTransform
	jd.ChromaSubsampling = int(d.header.ChromaSubsampling)

	qe := d.state.Matrices.Encodings()
	if len(qe) == 0 || qe[0].Mode != quant.QuantModeRAW || absf(qe[0].RAWDen-jpegQuantDen) > 1e-8 {
		return ErrNotJPEGQuantTable
	}
	numComponents := len(jd.Components)
	isGray := numComponents == 1
	order := jpegdata.JpegOrder(d.header.ColorTransform == codestream.ColorTransformYCbCr, isGray)
	qtSet := 0
	for c := 0; c < numComponents; c++ {
		quantC := c
		if isGray {
			quantC = 1
		}
		qpos := jd.Components[order[c]].QuantIdx
		if qpos >= len(jd.Quant) {
			return fmt.Errorf("quant table index %d out of range", qpos)
		}
		qtSet |= 1 << qpos
		for x := 0; x < 8; x++ {
			for y := 0; y < 8; y++ {
				jd.Quant[qpos].Values[x*8+y] = qe[0].RAWTable[quantC*64+y*8+x]
			}
		}
	}
	for i := range jd.Quant {
		if qtSet&(1<<i) != 0 {
			continue
		}
		if i == 0 {
			return ErrFirstQuantUnused
		}
		// An unused table slot duplicates its predecessor.
		jd.Quant[i].Values = jd.Quant[i-1].Values
	}
	return nil
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
