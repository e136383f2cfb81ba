package entropy

import (
	"errors"

	"github.com/kelville/go-jxl/internal/bio"
)

const (
	// NumOrders is the number of coefficient-order slots (one per AC
	// strategy class).
	NumOrders = 13
	// OrderSize is the length of one coefficient order.
	OrderSize = 64
)

// DecodeCoeffOrders reads the coefficient orders whose bit is set in used.
// Each order is a Lehmer-coded permutation of the natural order; unused
// slots keep the natural order. orders must hold NumOrders*OrderSize
// entries.
func DecodeCoeffOrders(r *bio.Reader, used uint16, orders []int32) error {
	if len(orders) < NumOrders*OrderSize {
		return errors.New("coefficient order buffer too small")
	}
	for ord := 0; ord < NumOrders; ord++ {
		slot := orders[ord*OrderSize : (ord+1)*OrderSize]
		if used&(1<<ord) == 0 {
			for i := range slot {
				slot[i] = int32(i)
			}
			continue
		}
		if err := decodeLehmer(r, slot); err != nil {
			return err
		}
	}
	if r.Exhausted() {
		return bio.ErrOutOfBounds
	}
	return nil
}

// decodeLehmer reads a Lehmer code: the i-th value selects among the
// remaining unused positions.
func decodeLehmer(r *bio.Reader, out []int32) error {
	n := len(out)
	remaining := make([]int32, n)
	for i := range remaining {
		remaining[i] = int32(i)
	}
	for i := 0; i < n; i++ {
		left := n - i
		k := int(r.ReadBits(ceilLog2(left)))
		if k >= left {
			return errors.New("Lehmer code out of range")
		}
		out[i] = remaining[k]
		remaining = append(remaining[:k], remaining[k+1:]...)
	}
	return nil
}
