// Package health keeps the latest known state of each part of the adapter
// client: the device handle, the driver's device node, OS enumeration.
package health

import (
	"sort"
	"sync"
	"time"

	"github.com/breeze-rmm/vdd/internal/logging"
)

var log = logging.L("health")

// Status represents the health status of a component.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
	Unknown   Status = "unknown"
)

// IsValid reports whether s is one of the defined statuses.
func (s Status) IsValid() bool {
	switch s {
	case Healthy, Degraded, Unhealthy, Unknown:
		return true
	}
	return false
}

// Check stores the latest health result for a named component.
type Check struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Board tracks checks for several components.
type Board struct {
	mu     sync.RWMutex
	checks map[string]Check
}

func NewBoard() *Board {
	return &Board{checks: make(map[string]Check)}
}

// Update records the status for a named component. Transitions away from
// healthy are logged once. An undefined status is stored as Unknown.
func (b *Board) Update(name string, status Status, message string) {
	if !status.IsValid() {
		log.Warn("undefined health status", "check", name, "status", string(status))
		status = Unknown
	}
	b.mu.Lock()
	prev, had := b.checks[name]
	b.checks[name] = Check{
		Name:      name,
		Status:    status,
		Message:   message,
		UpdatedAt: time.Now(),
	}
	b.mu.Unlock()

	if status != Healthy && (!had || prev.Status != status) {
		log.Warn("component health changed", "check", name, "status", string(status), "message", message)
	}
}

func (b *Board) Get(name string) (Check, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.checks[name]
	return c, ok
}

// Overall returns the worst status across all checks; Unknown when there
// are none.
func (b *Board) Overall() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.checks) == 0 {
		return Unknown
	}
	worst := Healthy
	for _, c := range b.checks {
		if statusRank(c.Status) > statusRank(worst) {
			worst = c.Status
		}
	}
	return worst
}

// All returns the checks sorted by name.
func (b *Board) All() []Check {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Check, 0, len(b.checks))
	for _, c := range b.checks {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

func statusRank(s Status) int {
	switch s {
	case Healthy:
		return 0
	case Degraded:
		return 1
	case Unhealthy:
		return 2
	default:
		return 3
	}
}
