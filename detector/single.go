package detector

// SingleDetector owns exactly one signal.
type SingleDetector struct {
	base
	target int
}

// Poll checks the target once. After a detection the snapshot takes the
// live value, so the same activation is never reported twice; a
// deactivation only resynchronises the snapshot.
func (d *SingleDetector) Poll() bool {
	v := d.bus.Value(d.target)
	if v == d.bus.Old(d.target) {
		return false
	}
	if v == 0 {
		d.bus.SetOld(d.target, 0)
		return false
	}
	d.detect(d.target)
	d.bus.SetOld(d.target, v)
	d.bus.Release(d.target)
	return true
}
