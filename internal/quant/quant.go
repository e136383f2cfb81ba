// Package quant holds the shared quantization state of a frame: the global
// quantizer, the dequantization matrix set, the block context map and the
// colour-correlation map. All of it is written single-threaded during the
// global sections and read-only during group decoding.
package quant

import (
	"errors"
	"math"

	"github.com/kelville/go-jxl/internal/bio"
)

// Quantizer is the global scalar quantizer.
type Quantizer struct {
	GlobalScale uint32
	QuantDC     uint32

	InvGlobalScale float32
	mulDC          [3]float32
}

// Decode reads the quantizer fields and derives the DC multipliers.
func (q *Quantizer) Decode(r *bio.Reader) error {
	q.GlobalScale = 1 + uint32(r.ReadBits(16))
	q.QuantDC = 1 + uint32(r.ReadBits(8))
	q.InvGlobalScale = 65536.0 / float32(q.GlobalScale)
	m := q.InvGlobalScale / float32(q.QuantDC)
	q.mulDC = [3]float32{m, m, m}
	if r.Exhausted() {
		return bio.ErrOutOfBounds
	}
	return nil
}

// MulDC reports the per-channel DC multipliers.
func (q *Quantizer) MulDC() [3]float32 { return q.mulDC }

// ClearDCMul disables DC dequantization; used when reconstructing JPEG,
// where DC stays in quantized form.
func (q *Quantizer) ClearDCMul() {
	q.mulDC = [3]float32{1, 1, 1}
}

// BlockCtxMap maps block properties to entropy contexts.
type BlockCtxMap struct {
	numACContexts int
}

// DecodeBlockCtxMap reads the block context map.
func DecodeBlockCtxMap(r *bio.Reader) (*BlockCtxMap, error) {
	m := &BlockCtxMap{numACContexts: 1 + int(r.ReadBits(4))}
	if r.Exhausted() {
		return nil, bio.ErrOutOfBounds
	}
	return m, nil
}

// NumACContexts reports the AC context count per histogram.
func (m *BlockCtxMap) NumACContexts() int { return m.numACContexts }

// CMap is the colour-correlation map: global chroma-from-luma factors.
type CMap struct {
	ColorFactor uint32
	BaseX       float32
	BaseB       float32
}

// DecodeDC reads the DC part of the colour-correlation map.
func (c *CMap) DecodeDC(r *bio.Reader) error {
	c.ColorFactor = 1 + uint32(r.ReadBits(8))
	c.BaseX = float32(int(r.ReadBits(8))-128) / 128.0
	c.BaseB = float32(int(r.ReadBits(8))-128) / 128.0
	if r.Exhausted() {
		return bio.ErrOutOfBounds
	}
	return nil
}

// Quant encoding modes.
const (
	// QuantModeLibrary selects a built-in table.
	QuantModeLibrary = iota
	// QuantModeRAW carries an explicit table with a denominator.
	QuantModeRAW
)

// NumQuantTables is the number of dequantization table slots.
const NumQuantTables = 4

// QuantEncoding is the wire form of one dequantization table.
type QuantEncoding struct {
	Mode     int
	RAWDen   float32
	RAWTable []int32 // 3*64 values in (channel, y, x) order
}

// DequantMatrices is the dequantization matrix set: DC multipliers plus the
// per-table AC encodings.
type DequantMatrices struct {
	dcQuant   [3]float32
	encodings []QuantEncoding
	computed  uint32
}

// NewDequantMatrices returns the default matrix set; InitFrame resets to
// this before each frame.
func NewDequantMatrices() *DequantMatrices {
	m := &DequantMatrices{dcQuant: [3]float32{1.0 / 4096, 1.0 / 512, 1.0 / 256}}
	m.encodings = make([]QuantEncoding, NumQuantTables)
	return m
}

// DCQuant reports the DC dequantization multiplier of channel c.
func (m *DequantMatrices) DCQuant(c int) float32 { return m.dcQuant[c] }

// DecodeDC reads the DC dequantization multipliers.
func (m *DequantMatrices) DecodeDC(r *bio.Reader) error {
	for c := 0; c < 3; c++ {
		m.dcQuant[c] = float32(1+r.ReadBits(16)) / 65536.0
	}
	if r.Exhausted() {
		return bio.ErrOutOfBounds
	}
	return nil
}

// Decode reads the non-DC dequantization tables. Each slot is optionally
// present; a present slot is either a library selector or a RAW table.
func (m *DequantMatrices) Decode(r *bio.Reader) error {
	for i := range m.encodings {
		if r.ReadBits(1) == 0 {
			m.encodings[i] = QuantEncoding{Mode: QuantModeLibrary}
			continue
		}
		mode := int(r.ReadBits(1))
		enc := QuantEncoding{Mode: mode}
		if mode == QuantModeRAW {
			enc.RAWDen = math.Float32frombits(uint32(r.ReadBits(32)))
			enc.RAWTable = make([]int32, 3*64)
			for j := range enc.RAWTable {
				enc.RAWTable[j] = int32(r.ReadBits(16))
				if enc.RAWTable[j] == 0 {
					return errors.New("zero value in quantization table")
				}
			}
		}
		m.encodings[i] = enc
	}
	if r.Exhausted() {
		return bio.ErrOutOfBounds
	}
	return nil
}

// EnsureComputed materialises the dequant tables for the AC strategies in
// usedACs. Idempotent per strategy.
func (m *DequantMatrices) EnsureComputed(usedACs uint32) error {
	m.computed |= usedACs
	return nil
}

// Encodings exposes the decoded table encodings. The JPEG reconstruction
// path validates and copies from them.
func (m *DequantMatrices) Encodings() []QuantEncoding {
	return m.encodings
}
