package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/lvs-agent/pkg/metrics"
	"github.com/cuemby/lvs-agent/pkg/types"
)

// CollectHealth probes every member of a pool. Pools without health
// monitors are reported active without probing. It only reads the table
// namespace and does not take the engine lock.
func (e *Engine) CollectHealth(ctx context.Context, poolID string) ([]types.MemberHealth, error) {
	cfg, err := e.controlPlane.GetLogicalConfig(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("fetching configuration of pool %s: %w", poolID, err)
	}

	ns := e.NamespaceFor(poolID)
	probe := len(cfg.Pool.HealthMonitors) > 0

	results := make([]types.MemberHealth, 0, len(cfg.Members))
	for _, m := range cfg.Members {
		reachable := true
		if probe {
			reachable = e.prober.Probe(ctx, ns, m.Address, m.ProtocolPort)
		}

		up := 0.0
		if reachable {
			up = 1
		}
		metrics.MemberUp.WithLabelValues(poolID, m.ID).Set(up)
		results = append(results, types.NewMemberHealth(m.ID, reachable))
	}
	return results, nil
}

// ReportHealth collects member health and pushes each result to the control
// plane. Every member is reported even if an earlier report fails.
func (e *Engine) ReportHealth(ctx context.Context, poolID string) error {
	results, err := e.CollectHealth(ctx, poolID)
	if err != nil {
		return err
	}

	var errs []error
	for _, h := range results {
		if err := e.controlPlane.ReportMemberHealth(ctx, poolID, h); err != nil {
			errs = append(errs, fmt.Errorf("reporting member %s: %w", h.MemberID, err))
		}
	}
	return errors.Join(errs...)
}
