package connectivity

import (
	"context"
	"net"
	"time"

	"nirmaan/internal/log"
)

// ProbeFunc reports whether the remote is reachable.
type ProbeFunc func(ctx context.Context) bool

// DialProbe succeeds when a TCP connection to addr opens within timeout.
func DialProbe(addr string, timeout time.Duration) ProbeFunc {
	return func(ctx context.Context) bool {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}

// Prober feeds a Tracker from periodic probes.
type Prober struct {
	tracker  *Tracker
	probe    ProbeFunc
	interval time.Duration
	log      *log.Logger
}

// NewProber probes with fn every interval. A nil fn means there is
// nothing to reach and the tracker is held online.
func NewProber(tracker *Tracker, fn ProbeFunc, interval time.Duration, logger *log.Logger) *Prober {
	if logger == nil {
		logger = log.Default(log.ComponentConnectivity)
	}
	return &Prober{
		tracker:  tracker,
		probe:    fn,
		interval: interval,
		log:      logger.WithComponent(log.ComponentConnectivity),
	}
}

// Check probes once and updates the tracker.
func (p *Prober) Check(ctx context.Context) bool {
	online := p.probe == nil || p.probe(ctx)
	if was := p.tracker.Online(); was != online {
		p.log.InfoContext(ctx, "Connectivity changed", log.FieldOnline, online)
	}
	p.tracker.Set(online)
	return online
}

// Run checks immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.Check(ctx)
	if p.probe == nil {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
