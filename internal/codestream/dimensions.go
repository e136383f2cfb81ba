package codestream

// Dimensions are the pixel, block and group geometries derived from a frame
// header. DC groups cover 8x the side length of AC groups, one DC value per
// 8x8 block.
type Dimensions struct {
	XSize, YSize int

	XSizePadded, YSizePadded int // padded to whole 8x8 blocks
	XSizeBlocks, YSizeBlocks int

	XSizeUpsampled, YSizeUpsampled int

	GroupDim    int
	XSizeGroups int
	YSizeGroups int
	NumGroups   int

	DCGroupDim    int
	XSizeDCGroups int
	YSizeDCGroups int
	NumDCGroups   int
}

func divCeil(a, b int) int { return (a + b - 1) / b }

// ToFrameDimensions derives the geometry of the frame.
func (h *FrameHeader) ToFrameDimensions() Dimensions {
	xsize, ysize := h.XSize, h.YSize
	if xsize == 0 || ysize == 0 {
		xsize, ysize = h.Metadata.XSize, h.Metadata.YSize
	}
	groupDim := 128 << h.GroupSizeShift

	var d Dimensions
	d.XSize, d.YSize = xsize, ysize
	d.XSizePadded = divCeil(xsize, 8) * 8
	d.YSizePadded = divCeil(ysize, 8) * 8
	d.XSizeBlocks = d.XSizePadded / 8
	d.YSizeBlocks = d.YSizePadded / 8
	d.XSizeUpsampled = xsize * int(h.Upsampling)
	d.YSizeUpsampled = ysize * int(h.Upsampling)
	d.GroupDim = groupDim
	d.XSizeGroups = divCeil(xsize, groupDim)
	d.YSizeGroups = divCeil(ysize, groupDim)
	d.NumGroups = d.XSizeGroups * d.YSizeGroups
	d.DCGroupDim = groupDim * 8
	d.XSizeDCGroups = divCeil(d.XSizeBlocks, groupDim)
	d.YSizeDCGroups = divCeil(d.YSizeBlocks, groupDim)
	d.NumDCGroups = d.XSizeDCGroups * d.YSizeDCGroups
	return d
}
