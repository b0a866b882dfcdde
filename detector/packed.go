package detector

import (
	"pacedetect/bitscan"
	"pacedetect/constants"
)

// PackedDetector owns a contiguous range of 32-signal words.
type PackedDetector struct {
	base
	cursor int
}

// Poll sweeps at most one lap of words. In a word that differs from its
// snapshot only the highest differing bit is resolved; its snapshot bit
// is flipped alone so lower bits surface on later sweeps.
func (d *PackedDetector) Poll() bool {
	for n := d.span.Len(); n > 0; n-- {
		w := d.cursor
		live, old := d.bus.Value(w), d.bus.Old(w)
		if live != old {
			bit := bitscan.Between(live, old)
			mask := uint32(1) << bit
			if live&mask == 0 {
				// deactivation: resync this bit, nothing to report
				d.bus.FlipOld(w, mask)
				return false
			}
			i := bit + w<<constants.WordShift
			d.detect(i)
			d.bus.FlipOld(w, mask)
			d.bus.Release(i)
			return true
		}
		if d.cursor++; d.cursor == d.span.End {
			d.cursor = d.span.Start
		}
	}
	return false
}
