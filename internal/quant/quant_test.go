package quant

import (
	"math"
	"testing"

	"github.com/kelville/go-jxl/internal/bio"
)

func TestQuantizerDecode(t *testing.T) {
	w := bio.NewWriter()
	w.WriteBits(65535, 16) // global scale 65536
	w.WriteBits(3, 8)      // quant DC 4
	var q Quantizer
	if err := q.Decode(bio.NewReader(w.Bytes())); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if q.GlobalScale != 65536 || q.QuantDC != 4 {
		t.Errorf("fields = %d/%d", q.GlobalScale, q.QuantDC)
	}
	if q.InvGlobalScale != 1.0 {
		t.Errorf("InvGlobalScale = %v, want 1", q.InvGlobalScale)
	}
	mul := q.MulDC()
	if mul[0] != 0.25 || mul[1] != 0.25 || mul[2] != 0.25 {
		t.Errorf("MulDC = %v, want 0.25", mul)
	}
	q.ClearDCMul()
	mul = q.MulDC()
	if mul[0] != 1 || mul[2] != 1 {
		t.Errorf("after ClearDCMul MulDC = %v", mul)
	}
}

func TestQuantizerDecodeTruncated(t *testing.T) {
	var q Quantizer
	if err := q.Decode(bio.NewReader([]byte{0x01})); err == nil {
		t.Error("truncated quantizer decoded without error")
	}
}

func TestBlockCtxMap(t *testing.T) {
	w := bio.NewWriter()
	w.WriteBits(5, 4)
	m, err := DecodeBlockCtxMap(bio.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("DecodeBlockCtxMap: %v", err)
	}
	if m.NumACContexts() != 6 {
		t.Errorf("NumACContexts = %d, want 6", m.NumACContexts())
	}
}

func TestCMapDecodeDC(t *testing.T) {
	w := bio.NewWriter()
	w.WriteBits(9, 8)   // colour factor 10
	w.WriteBits(192, 8) // base X 0.5
	w.WriteBits(64, 8)  // base B -0.5
	var c CMap
	if err := c.DecodeDC(bio.NewReader(w.Bytes())); err != nil {
		t.Fatalf("DecodeDC: %v", err)
	}
	if c.ColorFactor != 10 {
		t.Errorf("ColorFactor = %d", c.ColorFactor)
	}
	if c.BaseX != 0.5 || c.BaseB != -0.5 {
		t.Errorf("bases = %v/%v", c.BaseX, c.BaseB)
	}
}

func TestDequantMatricesDefaults(t *testing.T) {
	m := NewDequantMatrices()
	if m.DCQuant(0) == 0 || m.DCQuant(1) == 0 || m.DCQuant(2) == 0 {
		t.Error("default DC quants must be nonzero")
	}
	if len(m.Encodings()) != NumQuantTables {
		t.Errorf("encoding slots = %d, want %d", len(m.Encodings()), NumQuantTables)
	}
}

func TestDequantMatricesDecodeDC(t *testing.T) {
	w := bio.NewWriter()
	for i := 0; i < 3; i++ {
		w.WriteBits(32767, 16)
	}
	m := NewDequantMatrices()
	if err := m.DecodeDC(bio.NewReader(w.Bytes())); err != nil {
		t.Fatalf("DecodeDC: %v", err)
	}
	for c := 0; c < 3; c++ {
		if m.DCQuant(c) != 0.5 {
			t.Errorf("DCQuant(%d) = %v, want 0.5", c, m.DCQuant(c))
		}
	}
}

func TestDequantMatricesDecodeRAW(t *testing.T) {
	w := bio.NewWriter()
	w.WriteBits(1, 1) // slot 0 present
	w.WriteBits(1, 1) // RAW
	w.WriteBits(uint64(math.Float32bits(0.25)), 32)
	for i := 0; i < 3*64; i++ {
		w.WriteBits(uint64(i+1), 16)
	}
	for i := 0; i < 3; i++ {
		w.WriteBits(0, 1) // remaining slots absent
	}
	m := NewDequantMatrices()
	if err := m.Decode(bio.NewReader(w.Bytes())); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	qe := m.Encodings()
	if qe[0].Mode != QuantModeRAW || qe[0].RAWDen != 0.25 {
		t.Errorf("slot 0 = %+v", qe[0])
	}
	if qe[0].RAWTable[0] != 1 || qe[0].RAWTable[191] != 192 {
		t.Errorf("RAW table ends = %d/%d", qe[0].RAWTable[0], qe[0].RAWTable[191])
	}
	if qe[1].Mode != QuantModeLibrary {
		t.Errorf("slot 1 mode = %d", qe[1].Mode)
	}
	if err := m.EnsureComputed(0xFF); err != nil {
		t.Errorf("EnsureComputed: %v", err)
	}
}

func TestDequantMatricesRejectZeroEntry(t *testing.T) {
	w := bio.NewWriter()
	w.WriteBits(1, 1)
	w.WriteBits(1, 1)
	w.WriteBits(uint64(math.Float32bits(0.25)), 32)
	w.WriteBits(0, 16) // zero table value
	m := NewDequantMatrices()
	if err := m.Decode(bio.NewReader(w.Bytes())); err == nil {
		t.Error("zero quant table entry accepted")
	}
}
