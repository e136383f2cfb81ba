package frame

import "github.com/kelville/go-jxl/internal/bio"

// SectionStatus is the per-section outcome of a ProcessSections batch.
type SectionStatus int

const (
	// StatusSkipped marks a section the batch could not use yet; its
	// processed flag is cleared so a later batch may retry it.
	StatusSkipped SectionStatus = iota
	// StatusPartial marks a DC-global section that ended mid-stream under
	// the partial-input policy.
	StatusPartial
	// StatusDuplicate marks a section that was already processed.
	StatusDuplicate
	// StatusDone marks a fully consumed section.
	StatusDone
)

// String implements fmt.Stringer.
func (s SectionStatus) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusPartial:
		return "partial"
	case StatusDuplicate:
		return "duplicate"
	case StatusDone:
		return "done"
	default:
		return "invalid"
	}
}

// SectionInfo hands one section's bounded sub-reader to ProcessSections.
type SectionInfo struct {
	BR *bio.Reader
	ID int
}
