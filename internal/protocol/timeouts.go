package protocol

import "time"

// Timeouts holds the completion budget for each command.
type Timeouts struct {
	Version time.Duration
	Add     time.Duration
	Remove  time.Duration
	Update  time.Duration
}

// DefaultTimeouts returns the budgets the driver is known to meet.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Version: 100 * time.Millisecond,
		Add:     5 * time.Second,
		Remove:  time.Second,
		Update:  time.Second,
	}
}

// For returns the budget for code, falling back to the default when unset.
func (t Timeouts) For(code Code) time.Duration {
	d := DefaultTimeouts()
	var v, def time.Duration
	switch code {
	case CodeVersion:
		v, def = t.Version, d.Version
	case CodeAddDisplay:
		v, def = t.Add, d.Add
	case CodeRemoveDisplay:
		v, def = t.Remove, d.Remove
	case CodeUpdate:
		v, def = t.Update, d.Update
	default:
		return 0
	}
	if v <= 0 {
		return def
	}
	return v
}
