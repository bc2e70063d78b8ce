package controlplane

import (
	"context"
	"errors"

	"github.com/cuemby/lvs-agent/pkg/types"
)

// ErrPoolNotFound is returned when the control plane has no configuration
// for a pool.
var ErrPoolNotFound = errors.New("pool not found")

// Client is the agent's view of the control plane: it supplies desired
// configuration on demand and receives port and health updates back.
type Client interface {
	// GetLogicalConfig returns the desired state of a pool.
	GetLogicalConfig(ctx context.Context, poolID string) (*types.LogicalConfig, error)

	// PlugVipPort marks the VIP port as bound to this agent.
	PlugVipPort(ctx context.Context, portID string) error

	// UnplugVipPort releases a VIP port previously plugged.
	UnplugVipPort(ctx context.Context, portID string) error

	// ReportMemberHealth records the probed health of one member.
	ReportMemberHealth(ctx context.Context, poolID string, health types.MemberHealth) error
}

// PoolLister enumerates the pools assigned to this agent.
type PoolLister interface {
	ListPools(ctx context.Context) ([]string, error)
}
