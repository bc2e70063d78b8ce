package storage

import (
	"github.com/cuemby/lvs-agent/pkg/types"
)

// Store defines the interface for the agent's local state: the logical
// configuration of each pool, VIP port bindings and the last reported
// member health.
type Store interface {
	// Pools
	PutPool(cfg *types.LogicalConfig) error
	GetPool(id string) (*types.LogicalConfig, error)
	ListPools() ([]*types.LogicalConfig, error)
	DeletePool(id string) error

	// Members
	PutMember(member types.Member) error
	DeleteMember(poolID, memberID string) (types.Member, error)

	// Ports
	PlugPort(portID string) error
	UnplugPort(portID string) error
	GetPortBinding(portID string) (*PortBinding, error)

	// Health
	PutMemberHealth(poolID string, health types.MemberHealth) error
	ListMemberHealth(poolID string) ([]types.MemberHealth, error)

	// Utility
	Close() error
}
