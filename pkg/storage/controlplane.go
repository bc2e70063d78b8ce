package storage

import (
	"context"

	"github.com/cuemby/lvs-agent/pkg/controlplane"
	"github.com/cuemby/lvs-agent/pkg/types"
)

// LocalControlPlane serves the agent from its own store, for hosts that are
// configured by manifests instead of a remote control plane.
type LocalControlPlane struct {
	store Store
}

var (
	_ controlplane.Client     = (*LocalControlPlane)(nil)
	_ controlplane.PoolLister = (*LocalControlPlane)(nil)
)

// NewLocalControlPlane wraps store
func NewLocalControlPlane(store Store) *LocalControlPlane {
	return &LocalControlPlane{store: store}
}

func (c *LocalControlPlane) GetLogicalConfig(ctx context.Context, poolID string) (*types.LogicalConfig, error) {
	return c.store.GetPool(poolID)
}

func (c *LocalControlPlane) PlugVipPort(ctx context.Context, portID string) error {
	return c.store.PlugPort(portID)
}

func (c *LocalControlPlane) UnplugVipPort(ctx context.Context, portID string) error {
	return c.store.UnplugPort(portID)
}

func (c *LocalControlPlane) ReportMemberHealth(ctx context.Context, poolID string, health types.MemberHealth) error {
	return c.store.PutMemberHealth(poolID, health)
}

func (c *LocalControlPlane) ListPools(ctx context.Context) ([]string, error) {
	pools, err := c.store.ListPools()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(pools))
	for _, p := range pools {
		ids = append(ids, p.Pool.ID)
	}
	return ids, nil
}
