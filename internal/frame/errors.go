package frame

import (
	"errors"

	"github.com/kelville/go-jxl/internal/bio"
)

// Frame-level failures. The strings are part of the decoder's contract and
// must not change.
var (
	ErrPrematureEOS         = bio.ErrOutOfBounds
	ErrInvalidGroupCodes    = errors.New("Invalid group codes")
	ErrNon444DCSmoothing    = errors.New("Non-444 chroma subsampling is not allowed when adaptive DC smoothing is enabled")
	ErrInvalidNumComponents = errors.New("Invalid number of components")
	ErrJPEGFromXYB          = errors.New("Cannot decode to JPEG an XYB image")
	ErrJPEGFromModular      = errors.New("Cannot output JPEG from Modular")
	ErrFrameHeader          = errors.New("Couldn't read frame header")
	ErrNotJPEGQuantTable    = errors.New("Quantization table is not a JPEG quantization table.")
	ErrFirstQuantUnused     = errors.New("First quant table unused.")
	ErrInvalidSectionID     = errors.New("Invalid section ID")
	ErrDCGroup              = errors.New("Error in DC group")
	ErrACGroup              = errors.New("Error in AC group")
	ErrFinalizedTwice       = errors.New("FinalizeFrame called multiple times")
	ErrNotFullyDecoded      = errors.New("FinalizeFrame called before the frame was fully decoded")
	ErrDrawingGroups        = errors.New("Drawing groups failed")
)

var errPatchExtraUpsampling = errors.New(
	"Cannot use extra channels in patches if color channels are subsampled differently from extra channels")
