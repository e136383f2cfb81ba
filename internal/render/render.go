// Package render provides the per-pixel render pipeline handle used by the
// frame decoder: per-thread group input buffers, per-group done markers and
// the composed output image. Group decoders write base-resolution pixels
// into their input buffers and commit them with Done; committing upsamples
// into the output. Groups own disjoint output rects, so commits from
// different workers never overlap.
package render

import (
	"sync/atomic"

	"github.com/kelville/go-jxl/internal/codestream"
	"github.com/kelville/go-jxl/internal/plane"
)

// Options mirror the host's pipeline tuning knobs.
type Options struct {
	UseSlowPipeline  bool
	Coalescing       bool
	RenderSpotcolors bool
}

// Pipeline owns the render state of one frame.
type Pipeline struct {
	dim           codestream.Dimensions
	upsampling    int
	numExtra      int
	noiseStrength float32
	opts          Options

	groupDone []atomic.Bool

	// Per-thread channel buffers, groupDim*upsampling on each side so the
	// noise pass can cover the whole upsampled tile grid.
	threadBufs [][]*plane.Plane

	output      *plane.Image3
	extraOutput []*plane.Plane
}

// Prepare builds the pipeline for a frame. A nonzero noiseStrength enables
// the noise stage: noise-plane values are scaled by it and added to the
// colour channels on commit.
func Prepare(dim codestream.Dimensions, upsampling, numExtra int, noiseStrength float32, opts Options) *Pipeline {
	p := &Pipeline{
		dim:           dim,
		upsampling:    upsampling,
		numExtra:      numExtra,
		noiseStrength: noiseStrength,
		opts:          opts,
	}
	p.groupDone = make([]atomic.Bool, dim.NumGroups)
	p.output = plane.NewImage3(dim.XSizeUpsampled, dim.YSizeUpsampled)
	p.extraOutput = make([]*plane.Plane, numExtra)
	for i := range p.extraOutput {
		p.extraOutput[i] = plane.New(dim.XSizeUpsampled, dim.YSizeUpsampled)
	}
	return p
}

// NumChannels reports the input-buffer channel count: colour, extra, then
// the noise planes.
func (p *Pipeline) NumChannels() int {
	return 3 + p.numExtra + 3
}

// PrepareStorage allocates per-thread input buffers. Idempotent; safe to
// call from a pool init hook on every batch.
func (p *Pipeline) PrepareStorage(numThreads int) {
	side := p.dim.GroupDim * p.upsampling
	for len(p.threadBufs) < numThreads {
		bufs := make([]*plane.Plane, p.NumChannels())
		for c := range bufs {
			bufs[c] = plane.New(side, side)
		}
		p.threadBufs = append(p.threadBufs, bufs)
	}
}

// ClearDone marks group g as needing a redraw.
func (p *Pipeline) ClearDone(g int) {
	p.groupDone[g].Store(false)
}

// IsDone reports whether group g has committed its pixels.
func (p *Pipeline) IsDone(g int) bool {
	return p.groupDone[g].Load()
}

// Output is the composed frame at upsampled resolution.
func (p *Pipeline) Output() *plane.Image3 {
	return p.output
}

// ExtraOutput is the composed extra-channel planes.
func (p *Pipeline) ExtraOutput() []*plane.Plane {
	return p.extraOutput
}

// Input is a per-(group, thread) view of the pipeline's input buffers.
type Input struct {
	p      *Pipeline
	group  int
	thread int
}

// GetInputBuffers hands out the input view for group g on the given thread.
// PrepareStorage must have covered the thread id.
func (p *Pipeline) GetInputBuffers(g, thread int) Input {
	return Input{p: p, group: g, thread: thread}
}

// GetBuffer returns channel c's buffer and the rect covering the group at
// base resolution (upsampled extent for the noise channels).
func (in Input) GetBuffer(c int) (*plane.Plane, plane.Rect) {
	p := in.p
	gx := in.group % p.dim.XSizeGroups
	gy := in.group / p.dim.XSizeGroups
	buf := p.threadBufs[in.thread][c]
	if c >= 3+p.numExtra {
		// Noise planes cover the upsampled tile grid.
		w := p.dim.XSizeUpsampled - gx*p.dim.GroupDim*p.upsampling
		h := p.dim.YSizeUpsampled - gy*p.dim.GroupDim*p.upsampling
		return buf, plane.NewRect(0, 0, w, h, buf.W, buf.H)
	}
	w := p.dim.XSize - gx*p.dim.GroupDim
	h := p.dim.YSize - gy*p.dim.GroupDim
	return buf, plane.NewRect(0, 0, w, h, p.dim.GroupDim, p.dim.GroupDim)
}

// Done commits the group's buffers: colour and extra channels are
// replicated by the upsampling factor into the output planes and the
// group's done marker is set.
func (in Input) Done() {
	p := in.p
	gx := in.group % p.dim.XSizeGroups
	gy := in.group / p.dim.XSizeGroups
	x0 := gx * p.dim.GroupDim
	y0 := gy * p.dim.GroupDim

	for c := 0; c < 3; c++ {
		buf, r := in.GetBuffer(c)
		var noiseBuf *plane.Plane
		if p.noiseStrength != 0 {
			noiseBuf, _ = in.GetBuffer(3 + p.numExtra + c)
		}
		p.commit(p.output.Planes[c], buf, noiseBuf, r, x0, y0)
	}
	for e := 0; e < p.numExtra; e++ {
		buf, r := in.GetBuffer(3 + e)
		p.commit(p.extraOutput[e], buf, nil, r, x0, y0)
	}
	p.groupDone[in.group].Store(true)
}

// commit replicates the base-resolution rect of buf into out at the
// upsampled position of the group, adding scaled noise when noiseBuf is
// set. The noise buffer is already at upsampled resolution.
func (p *Pipeline) commit(out, buf, noiseBuf *plane.Plane, r plane.Rect, x0, y0 int) {
	u := p.upsampling
	for y := 0; y < r.YSize; y++ {
		src := buf.Row(r.Y0 + y)
		for uy := 0; uy < u; uy++ {
			oy := (y0+y)*u + uy
			if oy >= out.H {
				break
			}
			dst := out.Row(oy)
			for x := 0; x < r.XSize; x++ {
				v := src[r.X0+x]
				for ux := 0; ux < u; ux++ {
					ox := (x0+x)*u + ux
					if ox >= out.W {
						break
					}
					if noiseBuf != nil {
						dst[ox] = v + p.noiseStrength*noiseBuf.At(x*u+ux, y*u+uy)
					} else {
						dst[ox] = v
					}
				}
			}
		}
	}
}
