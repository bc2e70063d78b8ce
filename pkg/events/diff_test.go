package events

import (
	"testing"

	"github.com/cuemby/lvs-agent/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConfig() *types.LogicalConfig {
	return &types.LogicalConfig{
		Pool: types.Pool{ID: "p1", LBMethod: types.LBMethodRoundRobin, Status: types.StatusActive, AdminStateUp: true},
		Vip: &types.Vip{
			Address: "10.0.0.5", Status: types.StatusActive, AdminStateUp: true,
			Port: types.Port{ID: "port-1"},
		},
		Members: []types.Member{
			{ID: "m1", PoolID: "p1", Address: "10.0.0.10", ProtocolPort: 80},
			{ID: "m2", PoolID: "p1", Address: "10.0.0.11", ProtocolPort: 80},
		},
	}
}

func eventTypes(evs []*Event) []EventType {
	var out []EventType
	for _, e := range evs {
		out = append(out, e.Type)
	}
	return out
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name   string
		old    *types.LogicalConfig
		update func(*types.LogicalConfig) *types.LogicalConfig
		want   []EventType
	}{
		{
			name:   "unchanged",
			old:    sampleConfig(),
			update: func(c *types.LogicalConfig) *types.LogicalConfig { return c },
			want:   nil,
		},
		{
			name:   "new pool with vip",
			update: func(*types.LogicalConfig) *types.LogicalConfig { return sampleConfig() },
			want:   []EventType{EventPoolCreated, EventVipCreated},
		},
		{
			name: "new pool without vip",
			update: func(*types.LogicalConfig) *types.LogicalConfig {
				c := sampleConfig()
				c.Vip = nil
				return c
			},
			want: []EventType{EventPoolCreated},
		},
		{
			name:   "pool deleted",
			old:    sampleConfig(),
			update: func(*types.LogicalConfig) *types.LogicalConfig { return nil },
			want:   []EventType{EventPoolDeleted},
		},
		{
			name: "lb method changed",
			old:  sampleConfig(),
			update: func(c *types.LogicalConfig) *types.LogicalConfig {
				c.Pool.LBMethod = types.LBMethodSourceIP
				return c
			},
			want: []EventType{EventPoolUpdated},
		},
		{
			name: "vip persistence changed",
			old:  sampleConfig(),
			update: func(c *types.LogicalConfig) *types.LogicalConfig {
				c.Vip.SessionPersistence = &types.SessionPersistence{Type: "SOURCE_IP"}
				return c
			},
			want: []EventType{EventVipUpdated},
		},
		{
			name: "vip port replaced",
			old:  sampleConfig(),
			update: func(c *types.LogicalConfig) *types.LogicalConfig {
				c.Vip.Port.ID = "port-2"
				return c
			},
			want: []EventType{EventVipDeleted, EventVipCreated},
		},
		{
			name: "vip removed",
			old:  sampleConfig(),
			update: func(c *types.LogicalConfig) *types.LogicalConfig {
				c.Vip = nil
				return c
			},
			want: []EventType{EventVipDeleted},
		},
		{
			name: "member churn",
			old:  sampleConfig(),
			update: func(c *types.LogicalConfig) *types.LogicalConfig {
				c.Members = []types.Member{
					{ID: "m2", PoolID: "p1", Address: "10.0.0.11", ProtocolPort: 8080},
					{ID: "m3", Address: "10.0.0.12", ProtocolPort: 80},
				}
				return c
			},
			want: []EventType{EventMemberDeleted, EventMemberUpdated, EventMemberCreated},
		},
		{
			name: "health monitor added",
			old:  sampleConfig(),
			update: func(c *types.LogicalConfig) *types.LogicalConfig {
				c.Pool.HealthMonitors = []types.HealthMonitor{{ID: "hm1"}}
				return c
			},
			want: []EventType{EventHealthMonitorUpdated},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var base *types.LogicalConfig
			if tt.old != nil {
				base = sampleConfig()
			}
			got := Diff(tt.old, tt.update(base))
			assert.Equal(t, tt.want, eventTypes(got))
			for _, e := range got {
				assert.Equal(t, "p1", e.PoolID)
			}
		})
	}
}

func TestDiff_MemberEventsCarryMember(t *testing.T) {
	old := sampleConfig()
	updated := sampleConfig()
	updated.Members = updated.Members[1:]

	got := Diff(old, updated)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Member)
	assert.Equal(t, old.Members[0], *got[0].Member)
}

func TestDiff_MemberWithoutPoolID(t *testing.T) {
	old := sampleConfig()
	updated := sampleConfig()
	updated.Members[0].PoolID = ""

	assert.Empty(t, Diff(old, updated), "the pool id is implied by the pool")
}
