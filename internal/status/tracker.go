package status

import (
	"sort"
	"sync"
	"time"

	"github.com/medianest/gateway/internal/proto"
)

// Service states reported to clients.
const (
	StatusUp      = "up"
	StatusDown    = "down"
	StatusUnknown = "unknown"
)

// Tracker keeps the last-known state of every monitored service. It
// backs the snapshot sent to new status subscribers and dedupes
// broadcasts: only genuine changes fan out.
type Tracker struct {
	mu       sync.RWMutex
	services map[string]proto.ServiceStatus
	now      func() time.Time
}

// NewTracker constructs an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		services: make(map[string]proto.ServiceStatus),
		now:      time.Now,
	}
}

// Set records a service's state, stamping the observation time. Returns
// true when the state actually changed.
func (t *Tracker) Set(service, status string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, seen := t.services[service]
	if seen && prev.Status == status {
		return false
	}
	t.services[service] = proto.ServiceStatus{
		Service:   service,
		Status:    status,
		Timestamp: t.now().UTC().Format(time.RFC3339),
	}
	return true
}

// Snapshot returns every service's last-known state, sorted by name for
// stable output.
func (t *Tracker) Snapshot() []proto.ServiceStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]proto.ServiceStatus, 0, len(t.services))
	for _, s := range t.services {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}
