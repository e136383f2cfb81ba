package frame

// Test encoder: builds frames bit-compatible with the decoders in this
// package and its collaborators. Sections are assembled individually, then
// concatenated behind the header and TOC.

import (
	"testing"

	"github.com/kelville/go-jxl/internal/bio"
	"github.com/kelville/go-jxl/internal/bundle"
	"github.com/kelville/go-jxl/internal/codestream"
	"github.com/kelville/go-jxl/internal/entropy"
	"github.com/kelville/go-jxl/internal/pool"
)

type frameCfg struct {
	xsize, ysize int
	encoding     codestream.Encoding
	frameType    codestream.FrameType
	flags        uint32
	numPasses    uint32
	dcLevel      uint32
	saveAs       int
	canBeRef     bool
	epfIters     int
	epfSigmaRaw  uint64
	symbolBits   uint64 // AC symbol width; default 8

	// coeffs[group] lists (pos, val) AC coefficients, applied to pass 0.
	coeffs map[int][]acCoeff
}

type acCoeff struct {
	pos int
	val int32
}

// testFrame is an encoded frame plus its section boundaries.
type testFrame struct {
	cfg      frameCfg
	md       *codestream.Metadata
	data     []byte
	sections [][]byte
	dim      codestream.Dimensions
}

const (
	testGlobalScale = 65535 // +1 = 65536: inverse global scale 1.0
	testDCQuantRaw  = 32767 // +1 over 65536: DC quant 0.5
)

// testDCMul is the combined DC multiplier the test header produces.
const testDCMul = 0.5

// dcRaw encodes a DC value for the constant-channel scheme.
func dcRaw(v float32) uint64 {
	return uint64(int64(v/testDCMul) + 32768)
}

func writeTestHeader(w *bio.Writer, c frameCfg) {
	w.WriteBits(uint64(c.encoding), 1)
	w.WriteBits(uint64(codestream.ColorTransformNone), 2)
	w.WriteBits(uint64(c.frameType), 2)
	w.WriteBits(uint64(c.flags), 8)
	w.WriteBits(0, 2) // upsampling 1
	w.WriteBits(0, 2) // chroma 444
	w.WriteBits(0, 2) // group size shift: 128
	w.WriteBits(uint64(c.numPasses-1), 3)
	w.WriteBits(0, 2) // no downsample steps
	w.WriteBits(uint64(c.dcLevel), 3)
	w.WriteBits(uint64(c.saveAs), 2)
	w.WriteBits(b2u(c.canBeRef), 1)
	w.WriteBits(0, 1) // save before colour transform
	w.WriteBits(0, 1) // no custom size
	w.WriteBits(0, 2) // blend replace
	w.WriteBits(0, 2) // blend source
	w.WriteBits(0, 8) // duration
	w.WriteBits(1, 1) // is_last
	w.WriteBits(uint64(c.epfIters), 2)
	if c.epfIters > 0 {
		w.WriteBits(c.epfSigmaRaw, 8)
	}
	w.ZeroPadToByte()
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// writeDCGlobal mirrors processDCGlobal for a frame without feature flags.
func writeDCGlobal(w *bio.Writer, c frameCfg) {
	for i := 0; i < 3; i++ {
		w.WriteBits(testDCQuantRaw, 16) // dequant DC
	}
	if c.encoding == codestream.EncodingVarDCT {
		w.WriteBits(testGlobalScale, 16) // quantizer global scale
		w.WriteBits(0, 8)                // quant DC
		w.WriteBits(0, 4)                // block ctx map: 1 AC context
		w.WriteBits(0, 8)                // cmap colour factor
		w.WriteBits(128, 8)              // cmap base X
		w.WriteBits(128, 8)              // cmap base B
	}
	w.WriteBits(0, 1) // modular global: no transforms
}

// writeDCGroup mirrors processDCGroup: constant DC per channel plus the AC
// metadata byte.
func writeDCGroup(w *bio.Writer, c frameCfg, dc [3]float32) {
	if c.encoding == codestream.EncodingVarDCT {
		if c.flags&codestream.FlagUseDCFrame == 0 {
			for ch := 0; ch < 3; ch++ {
				w.WriteBits(1, 1) // constant
				w.WriteBits(dcRaw(dc[ch]), 16)
			}
		}
		w.WriteBits(1, 8) // AC metadata: strategy mask
	} else {
		for ch := 0; ch < 3; ch++ {
			w.WriteBits(0, 1) // channel not present
		}
	}
}

// writeACGlobal mirrors processACGlobal: empty dequant tables, one
// histogram, and per pass a trivial entropy code of symbolBits width.
func writeACGlobal(w *bio.Writer, c frameCfg, numGroups int) {
	if c.encoding != codestream.EncodingVarDCT {
		return
	}
	for i := 0; i < 4; i++ {
		w.WriteBits(0, 1) // dequant table slot absent
	}
	w.WriteBits(0, entropy.CeilLog2(numGroups)) // one histogram
	for p := uint32(0); p < c.numPasses; p++ {
		w.WriteBits(2, 2)            // used orders: literal 0
		w.WriteBits(0, 6)            // one cluster
		w.WriteBits(c.symbolBits, 5) // symbol width
	}
}

// writeACGroupPass mirrors one pass of decodeVarDCTGroup plus the empty
// modular stream.
func writeACGroupPass(w *bio.Writer, c frameCfg, coeffs []acCoeff) {
	if c.encoding == codestream.EncodingVarDCT {
		w.WriteBits(uint64(len(coeffs)), 16)
		for _, cf := range coeffs {
			w.WriteBits(uint64(cf.pos), 22)
			w.WriteBits(uint64(entropy.PackSigned(cf.val)), uint(c.symbolBits))
		}
	} else {
		for ch := 0; ch < 3; ch++ {
			w.WriteBits(0, 1)
		}
	}
}

// buildFrame encodes a complete frame: header, TOC and all sections.
func buildFrame(t *testing.T, cfg frameCfg) *testFrame {
	t.Helper()
	if cfg.numPasses == 0 {
		cfg.numPasses = 1
	}
	if cfg.symbolBits == 0 {
		cfg.symbolBits = 8
	}
	md := &codestream.Metadata{XSize: cfg.xsize, YSize: cfg.ysize}
	hdr := &codestream.FrameHeader{
		Upsampling: 1,
		Metadata:   md,
	}
	dim := hdr.ToFrameDimensions()

	single := dim.NumGroups == 1 && cfg.numPasses == 1
	var sections [][]byte
	if single {
		w := bio.NewWriter()
		writeDCGlobal(w, cfg)
		writeDCGroup(w, cfg, [3]float32{1, 2, 3})
		writeACGlobal(w, cfg, dim.NumGroups)
		writeACGroupPass(w, cfg, cfg.coeffs[0])
		w.ZeroPadToByte()
		sections = [][]byte{w.Bytes()}
	} else {
		section := func(write func(w *bio.Writer)) {
			w := bio.NewWriter()
			write(w)
			w.ZeroPadToByte()
			sections = append(sections, w.Bytes())
		}
		section(func(w *bio.Writer) { writeDCGlobal(w, cfg) })
		for g := 0; g < dim.NumDCGroups; g++ {
			section(func(w *bio.Writer) { writeDCGroup(w, cfg, [3]float32{1, 2, 3}) })
		}
		section(func(w *bio.Writer) { writeACGlobal(w, cfg, dim.NumGroups) })
		for p := uint32(0); p < cfg.numPasses; p++ {
			for g := 0; g < dim.NumGroups; g++ {
				var coeffs []acCoeff
				if p == 0 {
					coeffs = cfg.coeffs[g]
				}
				section(func(w *bio.Writer) { writeACGroupPass(w, cfg, coeffs) })
			}
		}
	}

	w := bio.NewWriter()
	writeTestHeader(w, cfg)
	w.WriteBits(0, 1) // no TOC permutation
	for _, s := range sections {
		writeTocU32(w, uint32(len(s)))
	}
	w.ZeroPadToByte()
	for _, s := range sections {
		for _, b := range s {
			w.WriteBits(uint64(b), 8)
		}
	}
	return &testFrame{cfg: cfg, md: md, data: w.Bytes(), sections: sections, dim: dim}
}

// writeTocU32 encodes a section size with the smallest fitting arm.
func writeTocU32(w *bio.Writer, v uint32) {
	switch {
	case v < 1024:
		w.WriteBits(0, 2)
		w.WriteBits(uint64(v), 10)
	case v < 1024+(1<<14):
		w.WriteBits(1, 2)
		w.WriteBits(uint64(v-1024), 14)
	case v < 17408+(1<<22):
		w.WriteBits(2, 2)
		w.WriteBits(uint64(v-17408), 22)
	default:
		w.WriteBits(3, 2)
		w.WriteBits(uint64(v-4211712), 30)
	}
}

// initDecoder runs InitFrame over the encoded frame and returns the
// decoder with the parent reader positioned at the section area.
func (tf *testFrame) initDecoder(t *testing.T, workers int, allowPartial bool) (*Decoder, *bio.Reader, *bundle.Bundle) {
	t.Helper()
	state := NewState(tf.md)
	d := NewDecoder(state, pool.New(workers))
	out := &bundle.Bundle{}
	r := bio.NewReader(tf.data)
	if err := d.InitFrame(r, out, false, allowPartial, false, true); err != nil {
		t.Fatalf("InitFrame: %v", err)
	}
	return d, r, out
}

// sectionBatch builds fresh sub-readers for the given section ids.
func (tf *testFrame) sectionBatch(d *Decoder, parent *bio.Reader, ids ...int) []SectionInfo {
	var batch []SectionInfo
	for _, id := range ids {
		batch = append(batch, SectionInfo{BR: d.SectionReader(parent, id), ID: id})
	}
	return batch
}

// sectionID helpers for readable tests.
func (tf *testFrame) dcGroupID(g int) int { return 1 + g }
func (tf *testFrame) acGlobalID() int     { return tf.dim.NumDCGroups + 1 }
func (tf *testFrame) acGroupID(g int, pass uint32) int {
	return tf.dim.NumDCGroups + 2 + int(pass)*tf.dim.NumGroups + g
}
