package jxl

import (
	"strings"
	"testing"

	"github.com/kelville/go-jxl/internal/bio"
	"github.com/kelville/go-jxl/internal/codestream"
	"github.com/kelville/go-jxl/internal/frame"
	"github.com/kelville/go-jxl/internal/jpegdata"
)

// buildPlainFrame encodes a featureless frame of the given geometry: every
// DC group holds constant DC (1,2,3), every AC section is empty.
func buildPlainFrame(encoding codestream.Encoding, xsize, ysize int, numPasses uint32) []byte {
	md := &codestream.Metadata{XSize: xsize, YSize: ysize}
	hdr := &codestream.FrameHeader{Upsampling: 1, Metadata: md}
	dim := hdr.ToFrameDimensions()

	w := bio.NewWriter()
	w.WriteBits(uint64(encoding), 1)
	w.WriteBits(uint64(codestream.ColorTransformNone), 2)
	w.WriteBits(uint64(codestream.FrameRegular), 2)
	w.WriteBits(0, 8) // flags
	w.WriteBits(0, 2) // upsampling
	w.WriteBits(0, 2) // chroma
	w.WriteBits(0, 2) // group size shift
	w.WriteBits(uint64(numPasses-1), 3)
	w.WriteBits(0, 2) // no downsample steps
	w.WriteBits(0, 3) // dc level
	w.WriteBits(0, 2) // save as
	w.WriteBits(0, 1) // can be referenced
	w.WriteBits(0, 1) // save before colour transform
	w.WriteBits(0, 1) // no custom size
	w.WriteBits(0, 4) // blending
	w.WriteBits(0, 8) // duration
	w.WriteBits(1, 1) // is_last
	w.WriteBits(0, 2) // epf iters
	w.ZeroPadToByte()

	writeDCGlobal := func(sw *bio.Writer) {
		for i := 0; i < 3; i++ {
			sw.WriteBits(32767, 16)
		}
		if encoding == codestream.EncodingVarDCT {
			sw.WriteBits(65535, 16)
			sw.WriteBits(0, 8)
			sw.WriteBits(0, 4)
			sw.WriteBits(0, 8)
			sw.WriteBits(128, 8)
			sw.WriteBits(128, 8)
		}
		sw.WriteBits(0, 1)
	}
	writeDCGroup := func(sw *bio.Writer) {
		if encoding == codestream.EncodingVarDCT {
			for c := 0; c < 3; c++ {
				sw.WriteBits(1, 1)
				sw.WriteBits(uint64(32768+2*(c+1)), 16)
			}
			sw.WriteBits(1, 8)
		} else {
			sw.WriteBits(0, 3)
		}
	}
	writeACGlobal := func(sw *bio.Writer) {
		if encoding != codestream.EncodingVarDCT {
			return
		}
		sw.WriteBits(0, 4)
		sw.WriteBits(0, uint(ceilLog2(dim.NumGroups)))
		for p := uint32(0); p < numPasses; p++ {
			sw.WriteBits(2, 2)
			sw.WriteBits(0, 6)
			sw.WriteBits(8, 5)
		}
	}
	writeACGroup := func(sw *bio.Writer) {
		if encoding == codestream.EncodingVarDCT {
			sw.WriteBits(0, 16)
		} else {
			sw.WriteBits(0, 3)
		}
	}

	var sections [][]byte
	addSection := func(write func(*bio.Writer)) {
		sw := bio.NewWriter()
		write(sw)
		sw.ZeroPadToByte()
		sections = append(sections, sw.Bytes())
	}
	if dim.NumGroups == 1 && numPasses == 1 {
		sw := bio.NewWriter()
		writeDCGlobal(sw)
		writeDCGroup(sw)
		writeACGlobal(sw)
		writeACGroup(sw)
		sw.ZeroPadToByte()
		sections = [][]byte{sw.Bytes()}
	} else {
		addSection(writeDCGlobal)
		for g := 0; g < dim.NumDCGroups; g++ {
			addSection(writeDCGroup)
		}
		addSection(writeACGlobal)
		for p := uint32(0); p < numPasses; p++ {
			for g := 0; g < dim.NumGroups; g++ {
				addSection(writeACGroup)
			}
		}
	}

	w.WriteBits(0, 1) // no TOC permutation
	for _, s := range sections {
		// All test sections fit the 10-bit TOC arm.
		w.WriteBits(0, 2)
		w.WriteBits(uint64(len(s)), 10)
	}
	w.ZeroPadToByte()
	for _, s := range sections {
		for _, b := range s {
			w.WriteBits(uint64(b), 8)
		}
	}
	return w.Bytes()
}

func ceilLog2(n int) int {
	b := 0
	for (1 << b) < n {
		b++
	}
	return b
}

func TestDecodeFrameSingleSection(t *testing.T) {
	data := buildPlainFrame(codestream.EncodingVarDCT, 128, 96, 1)
	state := NewState(&Metadata{XSize: 128, YSize: 96})
	out := &Bundle{}
	if err := DecodeFrame(nil, state, NewPool(2), NewReader(data), out); err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if out.Color == nil || out.Color.W() != 128 || out.Color.H() != 96 {
		t.Fatalf("output geometry wrong: %+v", out.Color)
	}
	if got := out.Color.Planes[2].At(64, 48); got < 2.99 || got > 3.01 {
		t.Errorf("channel 2 pixel = %v, want 3", got)
	}
	if out.DecodedBytes == 0 {
		t.Error("DecodedBytes not recorded")
	}
}

func TestDecodeFrameMultiSection(t *testing.T) {
	data := buildPlainFrame(codestream.EncodingVarDCT, 512, 256, 2)
	state := NewState(&Metadata{XSize: 512, YSize: 256})
	out := &Bundle{}
	if err := DecodeFrame(nil, state, NewPool(4), NewReader(data), out); err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if out.Color.W() != 512 || out.Color.H() != 256 {
		t.Fatalf("output geometry %dx%d", out.Color.W(), out.Color.H())
	}
}

func TestDecodeFramePrematureEnd(t *testing.T) {
	data := buildPlainFrame(codestream.EncodingVarDCT, 512, 256, 1)
	state := NewState(&Metadata{XSize: 512, YSize: 256})
	out := &Bundle{}
	err := DecodeFrame(nil, state, NewPool(1), NewReader(data[:len(data)-4]), out)
	if err == nil {
		t.Fatal("truncated frame decoded without error")
	}
	if err.Error() != "Premature end of stream" {
		t.Errorf("error = %q, want %q", err, "Premature end of stream")
	}
}

func TestDecodeFramePartialFile(t *testing.T) {
	data := buildPlainFrame(codestream.EncodingVarDCT, 512, 256, 1)
	state := NewState(&Metadata{XSize: 512, YSize: 256})
	out := &Bundle{}
	opts := NewOptions(WithAllowPartialFiles())
	err := DecodeFrame(opts, state, NewPool(2), NewReader(data[:len(data)-4]), out)
	if err != nil {
		t.Fatalf("partial decode: %v", err)
	}
	if out.Color.W() != 512 || out.Color.H() != 256 {
		t.Fatalf("output geometry %dx%d", out.Color.W(), out.Color.H())
	}
	// The force-drawn region matches the DC-only reconstruction.
	if got := out.Color.Planes[0].At(500, 250); got < 0.99 || got > 1.01 {
		t.Errorf("force-drawn pixel = %v, want 1", got)
	}
}

func TestDecodeFrameMaxDownsamplingSkipsAC(t *testing.T) {
	data := buildPlainFrame(codestream.EncodingVarDCT, 256, 128, 2)
	state := NewState(&Metadata{XSize: 256, YSize: 128})
	out := &Bundle{}
	opts := NewOptions(WithMaxDownsampling(8))
	if err := DecodeFrame(opts, state, NewPool(2), NewReader(data), out); err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	// DC-only output.
	if got := out.Color.Planes[0].At(0, 0); got < 0.99 || got > 1.01 {
		t.Errorf("pixel = %v, want DC value 1", got)
	}
}

func TestDecodeFrameJPEGFromModular(t *testing.T) {
	data := buildPlainFrame(codestream.EncodingModular, 64, 64, 1)
	state := NewState(&Metadata{XSize: 64, YSize: 64})
	out := &Bundle{JPEG: &jpegdata.JPEGData{Components: make([]jpegdata.Component, 3)}}
	err := DecodeFrame(nil, state, NewPool(1), NewReader(data), out)
	if err == nil {
		t.Fatal("modular-to-JPEG decoded without error")
	}
	if err.Error() != "Cannot output JPEG from Modular" {
		t.Errorf("error = %q", err)
	}
}

func TestDecodeFrameJPEGComponentCount(t *testing.T) {
	data := buildPlainFrame(codestream.EncodingVarDCT, 64, 64, 1)
	state := NewState(&Metadata{XSize: 64, YSize: 64})
	out := &Bundle{JPEG: &jpegdata.JPEGData{Components: make([]jpegdata.Component, 2)}}
	err := DecodeFrame(nil, state, NewPool(1), NewReader(data), out)
	if err == nil || err.Error() != "Invalid number of components" {
		t.Errorf("error = %v, want invalid component count", err)
	}
}

func TestDecodeFrameJPEGFromXYB(t *testing.T) {
	data := buildPlainFrame(codestream.EncodingVarDCT, 64, 64, 1)
	state := NewState(&Metadata{XSize: 64, YSize: 64, XYBEncoded: true})
	out := &Bundle{JPEG: &jpegdata.JPEGData{Components: make([]jpegdata.Component, 3)}}
	err := DecodeFrame(nil, state, NewPool(1), NewReader(data), out)
	if err == nil || err.Error() != "Cannot decode to JPEG an XYB image" {
		t.Errorf("error = %v, want XYB guard", err)
	}
}

func TestDecodeFrameMissingHeader(t *testing.T) {
	state := NewState(&Metadata{XSize: 64, YSize: 64})
	out := &Bundle{}
	err := DecodeFrame(nil, state, NewPool(1), NewReader(nil), out)
	if err == nil || !strings.Contains(err.Error(), "Couldn't read frame header") {
		t.Errorf("error = %v, want missing header failure", err)
	}
	if err != frame.ErrFrameHeader {
		t.Errorf("error identity = %v, want frame.ErrFrameHeader", err)
	}
}
