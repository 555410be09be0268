package chain

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ultravioletadao/x402-facilitator/internal/payment"
)

// Health is a point-in-time liveness snapshot for one provider.
type Health struct {
	Healthy     bool      `json:"healthy"`
	BlockNumber uint64    `json:"blockNumber,omitempty"`
	LatencyMS   int64     `json:"latencyMs,omitempty"`
	CheckedAt   time.Time `json:"checkedAt"`
	Error       string    `json:"error,omitempty"`
}

// Registry holds the configured providers and their last-known health.
// Providers are registered once at startup; only the health map mutates
// afterwards, guarded for concurrent readers on the request path.
type Registry struct {
	providers map[payment.Network]*Provider

	mu     sync.RWMutex
	health map[payment.Network]Health
}

func NewRegistry(providers []*Provider) *Registry {
	m := make(map[payment.Network]*Provider, len(providers))
	for _, p := range providers {
		m[p.Network()] = p
	}
	return &Registry{
		providers: m,
		health:    make(map[payment.Network]Health, len(providers)),
	}
}

// Provider returns the provider for a network, if configured.
func (r *Registry) Provider(n payment.Network) (*Provider, bool) {
	p, ok := r.providers[n]
	return p, ok
}

// Networks lists the configured networks.
func (r *Registry) Networks() []payment.Network {
	out := make([]payment.Network, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	return out
}

// Snapshot returns a copy of the last-known health per network.
func (r *Registry) Snapshot() map[payment.Network]Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[payment.Network]Health, len(r.health))
	for n, h := range r.health {
		out[n] = h
	}
	return out
}

// RefreshLoop probes every provider on the given interval until ctx is done.
// It runs off the request path so a dead provider never slows verify/settle
// callers on other networks.
func (r *Registry) RefreshLoop(ctx context.Context, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.refresh(ctx, log)
	for {
		select {
		case <-ticker.C:
			r.refresh(ctx, log)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Registry) refresh(ctx context.Context, log *zap.Logger) {
	for network, p := range r.providers {
		block, latency, err := p.Ping(ctx)
		h := Health{CheckedAt: time.Now()}
		if err != nil {
			h.Error = err.Error()
			log.Warn("provider unhealthy",
				zap.String("network", network.String()),
				zap.Error(err),
			)
		} else {
			h.Healthy = true
			h.BlockNumber = block
			h.LatencyMS = latency.Milliseconds()
		}
		r.mu.Lock()
		r.health[network] = h
		r.mu.Unlock()
	}
}

// Close releases all provider connections.
func (r *Registry) Close() {
	for _, p := range r.providers {
		p.Close()
	}
}
