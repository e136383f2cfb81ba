// Package jpegdata holds the JPEG reconstruction target used when a frame
// decodes back to an original JPEG bitstream instead of pixels.
package jpegdata

// Component is one colour component of the reconstructed JPEG.
type Component struct {
	QuantIdx       int
	WidthInBlocks  int
	HeightInBlocks int
	HSampFactor    int
	VSampFactor    int
	Coeffs         []int32
}

// QuantTable is one 8x8 quantization table in row-major (y, x) order.
type QuantTable struct {
	Values [64]int32
}

// JPEGData is the reconstruction target. Components and quant-table slots
// are created by the host from the original JPEG's structure; the frame
// decoder fills them in.
type JPEGData struct {
	Width, Height     int
	Components        []Component
	Quant             []QuantTable
	ColorTransform    int
	ChromaSubsampling int
}

// JpegOrder maps decoder channel order to JPEG component order. YCbCr
// streams store luma in channel 1; greyscale uses the single component for
// every channel.
func JpegOrder(yCbCr bool, isGray bool) [3]int {
	if isGray {
		return [3]int{0, 0, 0}
	}
	if yCbCr {
		return [3]int{1, 0, 2}
	}
	return [3]int{0, 1, 2}
}
