package features

import (
	"github.com/kelville/go-jxl/internal/bio"
	"github.com/kelville/go-jxl/internal/plane"
)

// NoiseParams is the decoded noise intensity lookup table.
type NoiseParams struct {
	LUT [8]float32
}

// HasAny reports whether any LUT entry is nonzero.
func (n *NoiseParams) HasAny() bool {
	for _, v := range n.LUT {
		if v != 0 {
			return true
		}
	}
	return false
}

// DecodeNoise reads the noise parameters.
func DecodeNoise(r *bio.Reader, n *NoiseParams) error {
	for i := range n.LUT {
		n.LUT[i] = float32(r.ReadBits(10)) / (1 << 10)
	}
	if r.Exhausted() {
		return bio.ErrOutOfBounds
	}
	return nil
}

// xorshift128+ keyed by the tile position and frame indices. The generator
// is a pure function of its seed, so noise is bit-exact across runs and
// thread schedules.
type xorshift128 struct {
	s0, s1 uint64
}

func newXorshift128(seed0, seed1 uint64) *xorshift128 {
	// splitmix64 seeding avoids the all-zero state.
	x := &xorshift128{}
	x.s0 = splitmix64(seed0 ^ 0x9E3779B97F4A7C15)
	x.s1 = splitmix64(seed1 ^ 0xBF58476D1CE4E5B9)
	return x
}

func splitmix64(z uint64) uint64 {
	z += 0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func (x *xorshift128) next() uint64 {
	s1, s0 := x.s0, x.s1
	res := s0 + s1
	x.s0 = s0
	s1 ^= s1 << 23
	x.s1 = s1 ^ s0 ^ (s1 >> 18) ^ (s0 >> 5)
	return res
}

// uniform returns a float in [0, 1) from the high mantissa bits.
func (x *xorshift128) uniform() float32 {
	return float32(x.next()>>40) * (1.0 / (1 << 24))
}

// PlaneRect pairs a target plane with the rect to fill.
type PlaneRect struct {
	Plane *plane.Plane
	Rect  plane.Rect
}

// Random3Planes fills one tile of the three noise planes with pseudo-random
// values. It is a pure function of (visibleIdx, nonvisibleIdx, x0, y0), so a
// tile's noise does not depend on decode order.
func Random3Planes(visibleIdx, nonvisibleIdx uint64, x0, y0 int, r, g, b PlaneRect) {
	seed0 := visibleIdx<<32 | nonvisibleIdx&0xFFFFFFFF
	seed1 := uint64(uint32(x0))<<32 | uint64(uint32(y0))
	rng := newXorshift128(seed0, seed1)
	fill := func(pr PlaneRect) {
		for y := 0; y < pr.Rect.YSize; y++ {
			row := pr.Plane.Row(pr.Rect.Y0 + y)
			for x := 0; x < pr.Rect.XSize; x++ {
				row[pr.Rect.X0+x] = rng.uniform()
			}
		}
	}
	fill(r)
	fill(g)
	fill(b)
}
