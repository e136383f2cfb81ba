// Package plane provides the planar float image types shared by the frame
// decoder, the modular sub-decoder and the render pipeline.
package plane

// Rect is a rectangular window into a plane, in pixels.
type Rect struct {
	X0, Y0       int
	XSize, YSize int
}

// NewRect builds a rect clamped so that it does not extend past (xmax, ymax).
func NewRect(x0, y0, xsize, ysize, xmax, ymax int) Rect {
	if x0+xsize > xmax {
		xsize = xmax - x0
	}
	if y0+ysize > ymax {
		ysize = ymax - y0
	}
	if xsize < 0 {
		xsize = 0
	}
	if ysize < 0 {
		ysize = 0
	}
	return Rect{X0: x0, Y0: y0, XSize: xsize, YSize: ysize}
}

// Plane is a single-channel float32 image.
type Plane struct {
	W, H int
	Pix  []float32
}

// New allocates a zeroed plane.
func New(w, h int) *Plane {
	return &Plane{W: w, H: h, Pix: make([]float32, w*h)}
}

// Row returns the pixels of row y.
func (p *Plane) Row(y int) []float32 {
	return p.Pix[y*p.W : (y+1)*p.W]
}

// At returns the pixel at (x, y).
func (p *Plane) At(x, y int) float32 {
	return p.Pix[y*p.W+x]
}

// Set stores v at (x, y).
func (p *Plane) Set(x, y int, v float32) {
	p.Pix[y*p.W+x] = v
}

// Fill sets every pixel of p to v.
func Fill(p *Plane, v float32) {
	for i := range p.Pix {
		p.Pix[i] = v
	}
}

// FillRect sets every pixel of r within p to v.
func FillRect(p *Plane, r Rect, v float32) {
	for y := 0; y < r.YSize; y++ {
		row := p.Row(r.Y0 + y)
		for x := 0; x < r.XSize; x++ {
			row[r.X0+x] = v
		}
	}
}

// Image3 is a three-channel planar float image.
type Image3 struct {
	Planes [3]*Plane
}

// NewImage3 allocates three zeroed planes of the given size.
func NewImage3(w, h int) *Image3 {
	return &Image3{Planes: [3]*Plane{New(w, h), New(w, h), New(w, h)}}
}

// W reports the width, 0 for an unallocated image.
func (im *Image3) W() int {
	if im == nil || im.Planes[0] == nil {
		return 0
	}
	return im.Planes[0].W
}

// H reports the height, 0 for an unallocated image.
func (im *Image3) H() int {
	if im == nil || im.Planes[0] == nil {
		return 0
	}
	return im.Planes[0].H
}
