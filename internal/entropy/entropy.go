// Package entropy implements the symbol coder used by the AC passes: a
// clustered set of direct-coded symbol streams. Each context maps to a
// cluster; each cluster fixes a symbol bit width. The per-pass maximum
// width feeds the coefficient storage depth decision.
package entropy

import (
	"errors"

	"github.com/kelville/go-jxl/internal/bio"
)

const (
	// MaxSymbolBits bounds a cluster's symbol width.
	MaxSymbolBits = 30
	// MaxClusters bounds the cluster count of one histogram set.
	MaxClusters = 64
)

// Code is a decoded histogram set: the per-cluster symbol widths.
type Code struct {
	Bits []uint8
	// MaxNumBits is the widest symbol of any cluster.
	MaxNumBits int
}

// DecodeHistograms reads a histogram set and its context map for
// numContexts contexts. The context map is returned separately so the
// caller can enlarge it past numContexts.
func DecodeHistograms(r *bio.Reader, numContexts int) (*Code, []uint8, error) {
	numClusters := 1 + int(r.ReadBits(6))
	if numClusters > MaxClusters {
		return nil, nil, errors.New("histogram cluster count out of range")
	}
	ctxMap := make([]uint8, numContexts)
	clusterBits := ceilLog2(numClusters)
	for i := range ctxMap {
		c := uint8(r.ReadBits(clusterBits))
		if int(c) >= numClusters {
			return nil, nil, errors.New("context map entry out of range")
		}
		ctxMap[i] = c
	}
	code := &Code{Bits: make([]uint8, numClusters)}
	for i := range code.Bits {
		b := uint8(r.ReadBits(5))
		if b > MaxSymbolBits {
			return nil, nil, errors.New("symbol width out of range")
		}
		code.Bits[i] = b
		if int(b) > code.MaxNumBits {
			code.MaxNumBits = int(b)
		}
	}
	if r.Exhausted() {
		return nil, nil, bio.ErrOutOfBounds
	}
	return code, ctxMap, nil
}

// ReadSymbol reads one symbol for the given cluster.
func (c *Code) ReadSymbol(r *bio.Reader, cluster uint8) int32 {
	return int32(r.ReadBits(uint(c.Bits[cluster])))
}

// UnpackSigned undoes the zigzag mapping of signed values.
func UnpackSigned(v int32) int32 {
	if v&1 == 0 {
		return v >> 1
	}
	return -((v + 1) >> 1)
}

// PackSigned is the inverse of UnpackSigned.
func PackSigned(v int32) int32 {
	if v >= 0 {
		return v << 1
	}
	return -v<<1 - 1
}

func ceilLog2(n int) uint {
	b := uint(0)
	for (1 << b) < n {
		b++
	}
	return b
}

// CeilLog2 reports the number of bits needed to represent values below n;
// 0 for n <= 1.
func CeilLog2(n int) uint {
	return ceilLog2(n)
}
