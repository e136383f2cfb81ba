package features

import (
	"errors"

	"github.com/kelville/go-jxl/internal/bio"
	"github.com/kelville/go-jxl/internal/quant"
)

// Spline is one centripetal Catmull-Rom spline with per-point coordinates.
type Spline struct {
	Points []SplinePoint
}

// SplinePoint is one control point, in pixels.
type SplinePoint struct {
	X, Y int
}

// Splines is the decoded spline set plus its draw cache. Decoding and draw
// cache initialisation are separate steps: the cache needs the
// colour-correlation map, which is only known later in the DC-global
// section.
type Splines struct {
	splines []Spline

	cacheReady         bool
	cacheW, cacheH     int
	cacheBaseX, cacheB float32
}

// Decode reads the spline set. numPixels bounds the total control-point
// count so adversarial streams cannot force huge allocations.
func (s *Splines) Decode(r *bio.Reader, numPixels int) error {
	count := int(r.ReadBits(10))
	totalPoints := 0
	s.splines = make([]Spline, 0, count)
	for i := 0; i < count; i++ {
		numPoints := 1 + int(r.ReadBits(8))
		totalPoints += numPoints
		if totalPoints > numPixels {
			return errors.New("too many spline control points")
		}
		sp := Spline{Points: make([]SplinePoint, numPoints)}
		for j := range sp.Points {
			sp.Points[j].X = int(r.ReadBits(16))
			sp.Points[j].Y = int(r.ReadBits(16))
		}
		s.splines = append(s.splines, sp)
	}
	if r.Exhausted() {
		return bio.ErrOutOfBounds
	}
	return nil
}

// InitializeDrawCache prepares the rasterisation cache for the upsampled
// frame size, applying the chroma factors from the colour-correlation map.
func (s *Splines) InitializeDrawCache(xsizeUpsampled, ysizeUpsampled int, cmap *quant.CMap) error {
	for _, sp := range s.splines {
		for _, pt := range sp.Points {
			if pt.X >= xsizeUpsampled || pt.Y >= ysizeUpsampled {
				return errors.New("spline control point out of bounds")
			}
		}
	}
	s.cacheReady = true
	s.cacheW, s.cacheH = xsizeUpsampled, ysizeUpsampled
	s.cacheBaseX, s.cacheB = cmap.BaseX, cmap.BaseB
	return nil
}

// HasAny reports whether the set holds any splines.
func (s *Splines) HasAny() bool { return len(s.splines) > 0 }

// Clear resets the set for frames without the splines flag.
func (s *Splines) Clear() {
	s.splines = nil
	s.cacheReady = false
}
