package detector

// PartitionedDetector owns a contiguous range of unpacked signals and
// scans it round-robin from a cursor that persists across sweeps.
type PartitionedDetector struct {
	base
	cursor int
}

// Poll sweeps at most one full lap from the cursor. The cursor stays on a
// resolved index, so the next sweep re-reads it once before moving on.
func (d *PartitionedDetector) Poll() bool {
	for n := d.span.Len(); n > 0; n-- {
		i := d.cursor
		if v := d.bus.Value(i); v != d.bus.Old(i) {
			if v == 0 {
				d.bus.SetOld(i, 0)
				return false
			}
			d.detect(i)
			d.bus.SetOld(i, v)
			d.bus.Release(i)
			return true
		}
		if d.cursor++; d.cursor == d.span.End {
			d.cursor = d.span.Start
		}
	}
	return false
}
