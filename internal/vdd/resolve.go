package vdd

import (
	"context"
	"strings"
	"time"

	"github.com/breeze-rmm/vdd/internal/health"
	"github.com/breeze-rmm/vdd/internal/logging"
	"github.com/breeze-rmm/vdd/internal/monitor"
	"github.com/breeze-rmm/vdd/internal/protocol"
)

// Resolution splits an OS monitor snapshot. NoMonitors means the OS reported
// no monitors at all, which usually is a transient enumeration glitch. Empty
// Displays with NoMonitors false means none of the monitors are ours yet.
type Resolution struct {
	Displays   []monitor.Info
	NoMonitors bool
}

// Resolve picks the monitors that belong to the adapter.
func Resolve(all []monitor.Info) Resolution {
	r := Resolution{NoMonitors: len(all) == 0}
	for _, m := range all {
		if strings.EqualFold(m.HardwareID, protocol.DisplayID) {
			r.Displays = append(r.Displays, m)
		}
	}
	return r
}

// Displays resolves a fresh snapshot from the monitor source. It does not
// need an open session; the OS and the driver are read independently.
func (s *Session) Displays() (Resolution, error) {
	all, err := s.monitors.List()
	if err != nil {
		s.health.Update(CheckMonitors, health.Unhealthy, err.Error())
		return Resolution{}, err
	}
	r := Resolve(all)
	if r.NoMonitors {
		s.health.Update(CheckMonitors, health.Degraded, "no monitors reported")
	} else {
		s.health.Update(CheckMonitors, health.Healthy, "")
	}
	return r, nil
}

// WaitForDisplays polls the monitor source until it reports want adapter
// displays. The OS surfaces hot-plugged monitors some time after the driver
// acknowledged the add or remove. Progress is logged to the logger carried by
// ctx, if any.
func (s *Session) WaitForDisplays(ctx context.Context, want int, interval time.Duration) (Resolution, error) {
	l := logging.FromContext(ctx).With("want", want)
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last Resolution
	for polls := 1; ; polls++ {
		r, err := s.Displays()
		if err != nil {
			l.Debug("monitor snapshot failed", logging.Err(err))
		} else {
			last = r
			if len(r.Displays) == want {
				l.Debug("displays settled", "polls", polls)
				return r, nil
			}
		}

		select {
		case <-ctx.Done():
			l.Warn("gave up waiting for displays", "polls", polls, "have", len(last.Displays))
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}
