package engine

import (
	"context"
	"fmt"

	"github.com/cuemby/lvs-agent/pkg/ipvs"
	"github.com/cuemby/lvs-agent/pkg/metrics"
	"github.com/cuemby/lvs-agent/pkg/netns"
)

var _ metrics.StatsSource = (*Engine)(nil)

// Snapshot returns the current table of a pool.
func (e *Engine) Snapshot(ctx context.Context, poolID string) ([]ipvs.Service, error) {
	return e.snapshot(ctx, e.NamespaceFor(poolID))
}

// Stats returns the traffic counters of a pool's table.
func (e *Engine) Stats(ctx context.Context, poolID string) ([]ipvs.ServiceStats, error) {
	out, err := e.executor.Execute(ctx, e.NamespaceFor(poolID), ipvs.StatsCommand())
	if err != nil {
		return nil, fmt.Errorf("listing table stats: %w", err)
	}
	stats, err := ipvs.ParseStats(out)
	if err != nil {
		return nil, fmt.Errorf("listing table stats: %w", err)
	}
	return stats, nil
}

// PoolIDs returns the pools this engine has deployed.
func (e *Engine) PoolIDs(ctx context.Context) ([]string, error) {
	return e.ports.Pools(), nil
}

// Deployed reports whether a pool is plugged by this engine and its
// namespace still exists.
func (e *Engine) Deployed(ctx context.Context, poolID string) (bool, error) {
	if _, ok := e.ports.Get(poolID); !ok {
		return false, nil
	}
	exists, err := netns.Exists(ctx, e.executor, e.NamespaceFor(poolID))
	if err != nil {
		return false, fmt.Errorf("checking namespace of pool %s: %w", poolID, err)
	}
	return exists, nil
}

// ServiceSamples flattens a pool's stats for the metrics collector.
func (e *Engine) ServiceSamples(ctx context.Context, poolID string) ([]metrics.ServiceSample, error) {
	stats, err := e.Stats(ctx, poolID)
	if err != nil {
		return nil, err
	}

	samples := make([]metrics.ServiceSample, 0, len(stats))
	for _, s := range stats {
		sample := metrics.ServiceSample{
			Service:     s.Endpoint(),
			Connections: s.Conns,
			InBytes:     s.InBytes,
			OutBytes:    s.OutBytes,
		}
		for _, rs := range s.RealServers {
			sample.Servers = append(sample.Servers, metrics.ServerSample{
				Server:      rs.Endpoint(),
				Connections: rs.Conns,
			})
		}
		samples = append(samples, sample)
	}
	return samples, nil
}
