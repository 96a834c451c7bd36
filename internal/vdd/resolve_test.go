package vdd

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breeze-rmm/vdd/internal/logging"
	"github.com/breeze-rmm/vdd/internal/monitor"
)

func TestResolveNoMonitors(t *testing.T) {
	r := Resolve(nil)
	assert.True(t, r.NoMonitors)
	assert.Empty(t, r.Displays)
}

func TestResolveNoneOfOurs(t *testing.T) {
	r := Resolve([]monitor.Info{
		{DeviceName: `\\.\DISPLAY1\Monitor0`, HardwareID: "DELA0B1"},
		{DeviceName: `\\.\DISPLAY2\Monitor0`, HardwareID: "GSM5B7F"},
	})
	assert.False(t, r.NoMonitors)
	assert.Empty(t, r.Displays)
}

func TestResolveMixedCaseInsensitive(t *testing.T) {
	ours := monitor.Info{DeviceName: `\\.\DISPLAY3\Monitor0`, HardwareID: "psccdd0"}
	r := Resolve([]monitor.Info{
		{DeviceName: `\\.\DISPLAY1\Monitor0`, HardwareID: "DELA0B1"},
		ours,
		{DeviceName: `\\.\DISPLAY2\Monitor0`, HardwareID: "PSCCDD01"},
	})
	assert.False(t, r.NoMonitors)
	assert.Equal(t, []monitor.Info{ours}, r.Displays)
}

func TestDisplaysUsesSource(t *testing.T) {
	s := NewSession(WithMonitorSource(monitor.SourceFunc(func() ([]monitor.Info, error) {
		return nil, errors.New("enumeration failed")
	})))
	_, err := s.Displays()
	assert.Error(t, err)
}

func TestWaitForDisplaysObservesLag(t *testing.T) {
	var polls atomic.Int32
	src := monitor.SourceFunc(func() ([]monitor.Info, error) {
		n := polls.Add(1)
		switch {
		case n == 1:
			// Enumeration glitch right after the hot-plug.
			return nil, nil
		case n == 2:
			return []monitor.Info{{HardwareID: "DELA0B1"}}, nil
		default:
			return []monitor.Info{{HardwareID: "DELA0B1"}, {HardwareID: "PSCCDD0"}}, nil
		}
	})
	s := NewSession(WithMonitorSource(src))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	r, err := s.WaitForDisplays(ctx, 1, time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, r.Displays, 1)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestWaitForDisplaysTimesOut(t *testing.T) {
	s := NewSession(WithMonitorSource(monitor.SourceFunc(func() ([]monitor.Info, error) {
		return []monitor.Info{{HardwareID: "DELA0B1"}}, nil
	})))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	r, err := s.WaitForDisplays(ctx, 1, time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, r.NoMonitors)
	assert.Empty(t, r.Displays)
}

func TestWaitForDisplaysLogsToContextLogger(t *testing.T) {
	s := NewSession(WithMonitorSource(monitor.SourceFunc(func() ([]monitor.Info, error) {
		return nil, nil
	})))

	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx, cancel := context.WithTimeout(logging.NewContext(context.Background(), l), 10*time.Millisecond)
	defer cancel()

	_, err := s.WaitForDisplays(ctx, 2, time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, buf.String(), "gave up waiting for displays")
	assert.Contains(t, buf.String(), "want=2")
}
