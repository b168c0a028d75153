package status

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/medianest/gateway/internal/core"
	"github.com/medianest/gateway/internal/proto"
)

// Poller periodically probes each configured service's health URL, maps
// reachability to up/down, and broadcasts genuine state changes to the
// status room. It satisfies core.StatusSource for the inbound handlers.
type Poller struct {
	tracker     *Tracker
	broadcaster *core.Broadcaster
	client      *http.Client
	targets     map[string]string
	interval    time.Duration
	refreshCh   chan struct{}
	log         *zerolog.Logger
}

var _ core.StatusSource = (*Poller)(nil)

// NewPoller builds a poller over the target map (service name to health
// URL). An empty map disables probing; the poller then only serves
// snapshots fed through the ingress API.
func NewPoller(tracker *Tracker, broadcaster *core.Broadcaster, targets map[string]string, interval time.Duration, logger *zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		tracker:     tracker,
		broadcaster: broadcaster,
		client:      &http.Client{Timeout: 10 * time.Second},
		targets:     targets,
		interval:    interval,
		refreshCh:   make(chan struct{}, 1),
		log:         logger,
	}
}

// Snapshot returns the last-known state of every service.
func (p *Poller) Snapshot() []proto.ServiceStatus {
	return p.tracker.Snapshot()
}

// Refresh asks the run loop for an immediate poll cycle. Never blocks;
// a refresh already pending is enough.
func (p *Poller) Refresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if len(p.targets) == 0 {
		p.log.Info().Msg("no status targets configured, poller idle")
		<-ctx.Done()
		return
	}

	p.pollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.pollOnce(ctx)
		case <-p.refreshCh:
			p.pollOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	for service, url := range p.targets {
		status := p.probe(ctx, url)
		if p.tracker.Set(service, status) {
			p.log.Info().
				Str("service", service).
				Str("status", status).
				Msg("service status changed")
			p.broadcaster.BroadcastStatus(service, status)
		}
	}
}

func (p *Poller) probe(ctx context.Context, url string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusUnknown
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return StatusDown
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return StatusUp
	}
	return StatusDown
}
