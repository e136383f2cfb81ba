package frame

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/kelville/go-jxl/internal/bio"
	"github.com/kelville/go-jxl/internal/codestream"
)

var errStatusSliceTooShort = errors.New("status slice shorter than batch")

// markSections runs after a batch: sections left Skipped or Partial get
// their processed flag cleared so a later batch, with more input, can
// submit them again.
func (d *Decoder) markSections(sections []SectionInfo, status []SectionStatus) {
	d.numSectionsDone = len(sections)
	for i := range sections {
		if status[i] == StatusSkipped || status[i] == StatusPartial {
			d.processedSection[sections[i].ID] = false
			d.numSectionsDone--
		}
	}
}

// ProcessSections processes one batch of sections. It classifies each
// entry, runs whichever stages the ordering permits (DC-global, parallel
// DC groups, finalize-DC, AC-global, parallel AC groups), and fills
// status. Batches for the same frame must not overlap in time.
func (d *Decoder) ProcessSections(sections []SectionInfo, status []SectionStatus) error {
	if len(sections) == 0 {
		return nil
	}
	if len(status) < len(sections) {
		return errStatusSliceTooShort
	}
	for i := range sections {
		status[i] = StatusSkipped
	}

	none := len(sections) // sentinel: no batch entry serves this role

	dcGlobalSec := none
	acGlobalSec := none
	dcGroupSec := make([]int, d.dim.NumDCGroups)
	for i := range dcGroupSec {
		dcGroupSec[i] = none
	}
	acGroupSec := make([][]int, d.dim.NumGroups)
	for g := range acGroupSec {
		acGroupSec[g] = make([]int, d.header.Passes.NumPasses)
		for p := range acGroupSec[g] {
			acGroupSec[g][p] = none
		}
	}
	numACPasses := make([]int, d.dim.NumGroups)

	singleSection := d.dim.NumGroups == 1 && d.header.Passes.NumPasses == 1
	if singleSection {
		// The one combined section serves every role at once.
		if len(sections) != 1 || sections[0].ID != 0 {
			return ErrInvalidSectionID
		}
		if d.processedSection[0] {
			status[0] = StatusDuplicate
			return nil
		}
		d.processedSection[0] = true
		dcGlobalSec, acGlobalSec = 0, 0
		dcGroupSec[0] = 0
		acGroupSec[0][0] = 0
		numACPasses[0] = 1
	} else {
		acGlobalIndex := d.dim.NumDCGroups + 1
		for i := range sections {
			id := sections[i].ID
			if id < 0 || id >= len(d.processedSection) {
				return ErrInvalidSectionID
			}
			if d.processedSection[id] {
				status[i] = StatusDuplicate
				continue
			}
			switch {
			case id == 0:
				dcGlobalSec = i
			case id < acGlobalIndex:
				dcGroupSec[id-1] = i
			case id == acGlobalIndex:
				acGlobalSec = i
			default:
				acIdx := id - acGlobalIndex - 1
				acg := acIdx % d.dim.NumGroups
				acp := acIdx / d.dim.NumGroups
				if acp >= int(d.header.Passes.NumPasses) {
					return ErrInvalidSectionID
				}
				if acp >= int(d.maxPasses) {
					// Beyond the progressive cap; stays Skipped.
					continue
				}
				acGroupSec[acg][acp] = i
			}
			d.processedSection[id] = true
		}
		// Count contiguous new passes per group.
		for g := range acGroupSec {
			j := 0
			for ; uint32(j)+d.decodedPassesPerACGroup[g] < d.maxPasses; j++ {
				if acGroupSec[g][j+int(d.decodedPassesPerACGroup[g])] == none {
					break
				}
			}
			numACPasses[g] = j
		}
	}

	if dcGlobalSec != none {
		complete, err := d.processDCGlobal(sections[dcGlobalSec].BR)
		if err != nil {
			return err
		}
		if complete {
			status[dcGlobalSec] = StatusDone
		} else {
			status[dcGlobalSec] = StatusPartial
		}
	}

	if d.decodedDCGlobal {
		err := d.pool.Run(0, len(dcGroupSec), nil, func(i, thread int) error {
			if dcGroupSec[i] == none {
				return nil
			}
			if err := d.processDCGroup(i, sections[dcGroupSec[i]].BR); err != nil {
				return err
			}
			status[dcGroupSec[i]] = StatusDone
			return nil
		}, "DecodeDCGroup")
		if err != nil {
			log.Debugf("DC group stage: %v", err)
			return ErrDCGroup
		}
	}

	if d.allDCGroupsDone() && !d.finalizedDC {
		d.preparePipeline()
		d.finalizeDC()
		if err := d.allocateOutput(); err != nil {
			return err
		}
		if d.pauseAtProgressive && !singleSection && d.canReturnDCPreview() {
			d.markSections(sections, status)
			return nil
		}
	}

	if d.finalizedDC && acGlobalSec != none && !d.decodedACGlobal {
		if err := d.processACGlobal(sections[acGlobalSec].BR); err != nil {
			return err
		}
		status[acGlobalSec] = StatusDone
	}

	if d.decodedACGlobal {
		// Groups receiving new passes must redraw.
		for g := range acGroupSec {
			if numACPasses[g] == 0 && !d.modular.UsesFullImage() {
				continue
			}
			d.state.Pipeline.ClearDone(g)
		}
		err := d.pool.Run(0, len(acGroupSec),
			func(numThreads int) error {
				d.prepareStorage(numThreads)
				return nil
			},
			func(g, thread int) error {
				if numACPasses[g] == 0 {
					return nil
				}
				firstPass := int(d.decodedPassesPerACGroup[g])
				readers := make([]*bio.Reader, numACPasses[g])
				for i := range readers {
					readers[i] = sections[acGroupSec[g][firstPass+i]].BR
				}
				if err := d.processACGroup(g, readers, numACPasses[g], thread, false, false); err != nil {
					return err
				}
				for i := 0; i < numACPasses[g]; i++ {
					status[acGroupSec[g][firstPass+i]] = StatusDone
				}
				return nil
			}, "DecodeGroup")
		if err != nil {
			log.Debugf("AC group stage: %v", err)
			return ErrACGroup
		}
	}

	d.markSections(sections, status)
	return nil
}

func (d *Decoder) allDCGroupsDone() bool {
	for _, ok := range d.decodedDCGroups {
		if !ok {
			return false
		}
	}
	return true
}

// canReturnDCPreview reports whether the finalized DC can stand alone as a
// progressive preview: VarDCT only, and no extra channels, whose modular
// encoding has no DC to flush.
func (d *Decoder) canReturnDCPreview() bool {
	if d.state.Metadata.NumExtraChannels > 0 {
		return false
	}
	return d.header.Encoding == codestream.EncodingVarDCT
}
