package alert

// Debouncer turns a stream of conditions into rising-edge events. It fires
// once when the stream goes from normal to any abnormal class, stays quiet
// while abnormal persists (even if the class changes), and re-arms as soon
// as a normal condition is observed.
//
// A Debouncer is owned by a single goroutine.
type Debouncer struct {
	raised bool
}

// Observe feeds one condition and reports whether a notification is due.
func (d *Debouncer) Observe(c Condition) bool {
	abnormal := c.Abnormal()
	switch {
	case abnormal && !d.raised:
		d.raised = true
		return true
	case !abnormal && d.raised:
		d.raised = false
	}
	return false
}

// Raised reports whether an abnormal episode is in progress.
func (d *Debouncer) Raised() bool {
	return d.raised
}
