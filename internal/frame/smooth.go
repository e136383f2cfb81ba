package frame

import (
	"github.com/kelville/go-jxl/internal/plane"
	"github.com/kelville/go-jxl/internal/pool"
)

// Adaptive DC smoothing taps of the 3x3 kernel; the centre weight keeps
// the kernel normalised.
const (
	dcSmoothW1 = 0.20345139757231578
	dcSmoothW2 = 0.0334829185968739
	dcSmoothW0 = 1.0 - 4.0*(dcSmoothW1+dcSmoothW2)
)

// adaptiveDCSmoothing runs the convolution-like smoothing pass over the DC
// image. A pixel only takes the smoothed value when the change stays below
// half its channel's DC quantization step, so real edges survive.
func adaptiveDCSmoothing(mulDC [3]float32, dc *plane.Image3, p *pool.Pool) {
	w := dc.W()
	h := dc.H()
	if w < 3 || h < 3 {
		return
	}
	smoothed := plane.NewImage3(w, h)
	// Border rows and columns are copied unchanged.
	_ = p.Run(0, h, nil, func(y, thread int) error {
		for c := 0; c < 3; c++ {
			src := dc.Planes[c]
			dst := smoothed.Planes[c]
			row := dst.Row(y)
			if y == 0 || y == h-1 {
				copy(row, src.Row(y))
				continue
			}
			top := src.Row(y - 1)
			cur := src.Row(y)
			bot := src.Row(y + 1)
			row[0] = cur[0]
			row[w-1] = cur[w-1]
			threshold := mulDC[c] * 0.5
			for x := 1; x < w-1; x++ {
				sm := cur[x]*dcSmoothW0 +
					(cur[x-1]+cur[x+1]+top[x]+bot[x])*dcSmoothW1 +
					(top[x-1]+top[x+1]+bot[x-1]+bot[x+1])*dcSmoothW2
				if diff := sm - cur[x]; diff < threshold && diff > -threshold {
					row[x] = sm
				} else {
					row[x] = cur[x]
				}
			}
		}
		return nil
	}, "SmoothDC")
	for c := 0; c < 3; c++ {
		dc.Planes[c], smoothed.Planes[c] = smoothed.Planes[c], dc.Planes[c]
	}
}
