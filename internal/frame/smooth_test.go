package frame

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kelville/go-jxl/internal/plane"
	"github.com/kelville/go-jxl/internal/pool"
)

func TestAdaptiveDCSmoothingConstant(t *testing.T) {
	dc := plane.NewImage3(16, 16)
	for c := 0; c < 3; c++ {
		plane.Fill(dc.Planes[c], 2)
	}
	adaptiveDCSmoothing([3]float32{1, 1, 1}, dc, pool.New(2))
	for c := 0; c < 3; c++ {
		for _, v := range dc.Planes[c].Pix {
			require.InDelta(t, 2.0, v, 1e-5)
		}
	}
}

func TestAdaptiveDCSmoothingDampsRipple(t *testing.T) {
	dc := plane.NewImage3(16, 16)
	p := dc.Planes[0]
	plane.Fill(p, 1)
	p.Set(8, 8, 1.2) // small ripple, within half a quantization step
	before := p.At(8, 8)
	adaptiveDCSmoothing([3]float32{1, 1, 1}, dc, pool.New(1))
	after := dc.Planes[0].At(8, 8)
	require.Less(t, after, before)
	require.Greater(t, after, float32(1.0))
}

func TestAdaptiveDCSmoothingKeepsEdges(t *testing.T) {
	dc := plane.NewImage3(16, 16)
	p := dc.Planes[0]
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if x >= 8 {
				p.Set(x, y, 10)
			}
		}
	}
	adaptiveDCSmoothing([3]float32{0.1, 0.1, 0.1}, dc, pool.New(1))
	// The step edge exceeds the threshold and must survive exactly.
	for y := 1; y < 15; y++ {
		require.Equal(t, float32(0), dc.Planes[0].At(7, y), "y=%d", y)
		require.Equal(t, float32(10), dc.Planes[0].At(8, y), "y=%d", y)
	}
}

func TestAdaptiveDCSmoothingSmallImage(t *testing.T) {
	dc := plane.NewImage3(2, 2)
	plane.Fill(dc.Planes[0], 5)
	// Images without an interior are left untouched.
	adaptiveDCSmoothing([3]float32{1, 1, 1}, dc, pool.New(1))
	require.Equal(t, float32(5), dc.Planes[0].At(1, 1))
}
