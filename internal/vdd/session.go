// Package vdd drives the virtual display adapter: it plugs and unplugs
// virtual displays and matches them against the monitors the OS reports.
package vdd

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/breeze-rmm/vdd/internal/channel"
	"github.com/breeze-rmm/vdd/internal/config"
	"github.com/breeze-rmm/vdd/internal/devquery"
	"github.com/breeze-rmm/vdd/internal/health"
	"github.com/breeze-rmm/vdd/internal/logging"
	"github.com/breeze-rmm/vdd/internal/monitor"
	"github.com/breeze-rmm/vdd/internal/protocol"
)

var log = logging.L("vdd")

// MaxDisplays is the default cap on displays a session will plug.
const MaxDisplays = config.DefaultMaxDisplays

// Health check names.
const (
	CheckChannel  = "channel"
	CheckDriver   = "driver"
	CheckMonitors = "monitors"
)

// Consecutive timeouts after which the handle is considered lost.
const timeoutsBeforeUnhealthy = 3

var (
	ErrNotOpen  = channel.ErrNotOpen
	ErrCapacity = errors.New("vdd: display capacity reached")
	// ErrInvalidSlot is returned for a slot that cannot be addressed on the
	// wire. Nothing is sent to the driver.
	ErrInvalidSlot = protocol.ErrInvalidSlot
)

// Channel sends commands to an open adapter.
type Channel interface {
	Send(cmd protocol.Command) (channel.Result, error)
	Close() error
}

// Opener opens a Channel to the adapter with the given interface GUID.
type Opener func(adapterGUID string) (Channel, error)

func openDevice(adapterGUID string) (Channel, error) {
	d, err := channel.Open(adapterGUID)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Session is the client's view of one adapter. It is Closed until Open
// succeeds and Closed again after Uninit. Methods are safe for concurrent use.
type Session struct {
	mu          sync.Mutex
	ch          Channel
	open        Opener
	adapterGUID string
	timeouts    protocol.Timeouts
	maxDisplays int
	monitors    monitor.Source
	status      func() devquery.DeviceStatus
	service     func() (string, error)
	slots       map[int]struct{}
	health      *health.Board
	timedOut    int
}

// Option configures a Session.
type Option func(*Session)

func WithOpener(o Opener) Option { return func(s *Session) { s.open = o } }

func WithAdapterGUID(guid string) Option { return func(s *Session) { s.adapterGUID = guid } }

func WithTimeouts(t protocol.Timeouts) Option { return func(s *Session) { s.timeouts = t } }

func WithMonitorSource(src monitor.Source) Option { return func(s *Session) { s.monitors = src } }

// WithMaxDisplays sets the cap AddDisplay enforces. Values below 1 are ignored.
func WithMaxDisplays(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxDisplays = n
		}
	}
}

// WithStatusQuery replaces the device node status lookup.
func WithStatusQuery(fn func() devquery.DeviceStatus) Option {
	return func(s *Session) { s.status = fn }
}

// WithServiceQuery replaces the driver host service lookup.
func WithServiceQuery(fn func() (string, error)) Option {
	return func(s *Session) { s.service = fn }
}

// WithConfig applies the adapter GUID, display cap and timeouts from cfg.
func WithConfig(cfg *config.Config) Option {
	return func(s *Session) {
		if cfg.AdapterGUID != "" {
			s.adapterGUID = cfg.AdapterGUID
		}
		WithMaxDisplays(cfg.MaxDisplays)(s)
		s.timeouts = cfg.ProtocolTimeouts()
	}
}

// NewSession returns a closed session.
func NewSession(opts ...Option) *Session {
	s := &Session{
		open:        openDevice,
		adapterGUID: protocol.AdapterGUID,
		timeouts:    protocol.DefaultTimeouts(),
		maxDisplays: MaxDisplays,
		monitors:    monitor.System(),
		status: func() devquery.DeviceStatus {
			return devquery.Query(protocol.DisplayClassGUID, protocol.HardwareID)
		},
		service: func() (string, error) {
			return devquery.ServiceState(protocol.ServiceName)
		},
		slots:  make(map[int]struct{}),
		health: health.NewBoard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the adapter and pings it so the driver sets up its state.
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch != nil {
		return nil
	}
	ch, err := s.open(s.adapterGUID)
	if err != nil {
		s.health.Update(CheckChannel, health.Unhealthy, err.Error())
		return err
	}
	s.ch = ch
	s.timedOut = 0
	s.health.Update(CheckChannel, health.Healthy, "")
	if err := s.ping(); err != nil {
		// The handle is good; the driver may answer later pings.
		log.Warn("initial ping failed", logging.Err(err))
	}
	return nil
}

// Init opens the adapter and reports whether it is available. False means
// the feature is unavailable, not that something broke.
func (s *Session) Init() bool {
	if err := s.Open(); err != nil {
		if errors.Is(err, channel.ErrDeviceNotFound) {
			log.Info("adapter not available", "adapter", protocol.AdapterName, logging.Err(err))
		} else {
			log.Warn("open adapter", "adapter", protocol.AdapterName, logging.Err(err))
		}
		return false
	}
	return true
}

// Uninit closes the adapter. Slots plugged by this session stay plugged in
// the driver; the session forgets them.
func (s *Session) Uninit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch == nil {
		return s.notOpen("uninit")
	}
	err := s.ch.Close()
	s.ch = nil
	s.slots = make(map[int]struct{})
	s.health.Update(CheckChannel, health.Unknown, "closed")
	return err
}

// IsOpen reports whether the session holds an adapter handle.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch != nil
}

// QueryVersion asks the driver for its version. On error the returned
// version is unknown and renders as protocol.UnknownVersion.
func (s *Session) QueryVersion() (protocol.DriverVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch == nil {
		return protocol.DriverVersion{}, s.notOpen("version")
	}
	res, err := s.send(protocol.VersionCommand(s.timeouts))
	if err != nil {
		return protocol.DriverVersion{}, err
	}
	return protocol.DecodeVersion(res.Output), nil
}

// AddDisplay plugs a new virtual display and returns the slot the driver
// assigned. The caller needs the slot to remove the display later.
func (s *Session) AddDisplay() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch == nil {
		return -1, s.notOpen("add")
	}
	if len(s.slots) >= s.maxDisplays {
		return -1, fmt.Errorf("%w: %d of %d", ErrCapacity, len(s.slots), s.maxDisplays)
	}

	res, err := s.send(protocol.AddDisplayCommand(s.timeouts))
	if err != nil {
		return -1, err
	}
	slot := int(res.Output)
	s.slots[slot] = struct{}{}
	s.afterMutation()
	log.Info("display added", logging.KeySlot, slot)
	return slot, nil
}

// RemoveDisplay unplugs the display in slot. A slot the driver does not know
// fails with channel.ErrDriverRejected and leaves the session usable.
func (s *Session) RemoveDisplay(slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch == nil {
		return s.notOpen("remove")
	}
	if slot < 0 || slot > protocol.MaxSlot {
		return fmt.Errorf("vdd: remove: %w: %d", ErrInvalidSlot, slot)
	}
	if _, err := s.send(protocol.RemoveDisplayCommand(s.timeouts, slot)); err != nil {
		return err
	}
	delete(s.slots, slot)
	s.afterMutation()
	log.Info("display removed", logging.KeySlot, slot)
	return nil
}

// Ping tells the driver to recompute its displays.
func (s *Session) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch == nil {
		return s.notOpen("ping")
	}
	return s.ping()
}

// ActiveSlots lists the slots this session plugged and has not removed.
func (s *Session) ActiveSlots() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots := make([]int, 0, len(s.slots))
	for slot := range s.slots {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	return slots
}

// QueryStatus reports the adapter's device node health and the state of its
// host service. It does not need an open session.
func (s *Session) QueryStatus() devquery.DeviceStatus {
	st := s.status()
	if svcState, err := s.service(); err != nil {
		log.Debug("driver host service state", logging.Err(err))
	} else {
		st.Service = svcState
	}
	if st.Status == devquery.StatusOK && st.Service == devquery.ServiceStopped {
		s.health.Update(CheckDriver, health.Degraded, "host service stopped")
		return st
	}
	switch st.Status {
	case devquery.StatusOK:
		s.health.Update(CheckDriver, health.Healthy, "")
	case devquery.StatusRestartRequired:
		s.health.Update(CheckDriver, health.Degraded, string(st.Status))
	case devquery.StatusUnknown:
		s.health.Update(CheckDriver, health.Unknown, "")
	default:
		s.health.Update(CheckDriver, health.Unhealthy, string(st.Status))
	}
	return st
}

// Health returns the latest check per component and the worst of them.
func (s *Session) Health() (health.Status, []health.Check) {
	return s.health.Overall(), s.health.All()
}

func (s *Session) ping() error {
	_, err := s.send(protocol.UpdateCommand(s.timeouts))
	return err
}

// send issues cmd and records the outcome. A driver that keeps timing out
// leaves the handle in an unknown state; only closing and reopening recovers.
func (s *Session) send(cmd protocol.Command) (channel.Result, error) {
	res, err := s.ch.Send(cmd)
	switch {
	case err == nil, errors.Is(err, channel.ErrDriverRejected):
		s.timedOut = 0
		s.health.Update(CheckChannel, health.Healthy, "")
	case errors.Is(err, channel.ErrTimeout):
		s.timedOut++
		msg := fmt.Sprintf("%s timed out (%d in a row)", cmd.Code, s.timedOut)
		if s.timedOut >= timeoutsBeforeUnhealthy {
			s.health.Update(CheckChannel, health.Unhealthy, msg+"; reopen the adapter")
		} else {
			s.health.Update(CheckChannel, health.Degraded, msg)
		}
	default:
		s.health.Update(CheckChannel, health.Degraded, err.Error())
	}
	return res, err
}

// afterMutation pings the driver; it must follow every successful add or
// remove.
func (s *Session) afterMutation() {
	if err := s.ping(); err != nil {
		log.Warn("ping after display change failed", logging.Err(err))
	}
}

func (s *Session) notOpen(op string) error {
	log.Error("operation on closed session", "op", op)
	return fmt.Errorf("vdd: %s: %w", op, ErrNotOpen)
}
