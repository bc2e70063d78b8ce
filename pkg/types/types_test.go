package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func deployableConfig() *LogicalConfig {
	return &LogicalConfig{
		Pool: Pool{ID: "p1", Status: StatusActive, AdminStateUp: true},
		Vip:  &Vip{Address: "10.0.0.5", Status: StatusPendingCreate, AdminStateUp: true},
	}
}

func TestDeployable(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *LogicalConfig)
		want   bool
	}{
		{name: "active and up", mutate: func(c *LogicalConfig) {}, want: true},
		{name: "no vip", mutate: func(c *LogicalConfig) { c.Vip = nil }, want: false},
		{name: "vip admin down", mutate: func(c *LogicalConfig) { c.Vip.AdminStateUp = false }, want: false},
		{name: "pool admin down", mutate: func(c *LogicalConfig) { c.Pool.AdminStateUp = false }, want: false},
		{name: "vip pending delete", mutate: func(c *LogicalConfig) { c.Vip.Status = StatusPendingDelete }, want: false},
		{name: "pool error", mutate: func(c *LogicalConfig) { c.Pool.Status = StatusError }, want: false},
		{name: "pool pending update", mutate: func(c *LogicalConfig) { c.Pool.Status = StatusPendingUpdate }, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := deployableConfig()
			tt.mutate(c)
			assert.Equal(t, tt.want, c.Deployable())
		})
	}

	var nilConfig *LogicalConfig
	assert.False(t, nilConfig.Deployable())
}

func TestNewMemberHealth(t *testing.T) {
	up := NewMemberHealth("m1", true)
	assert.Equal(t, StatusActive, up.Status)
	assert.Equal(t, 0, up.FailedChecks)

	down := NewMemberHealth("m2", false)
	assert.Equal(t, StatusInactive, down.Status)
	assert.Equal(t, FailedChecksUnhealthy, down.FailedChecks)
	assert.Equal(t, "m2", down.MemberID)
}

func TestLogicalConfigMember(t *testing.T) {
	c := &LogicalConfig{Members: []Member{{ID: "m1", Address: "10.0.0.10"}}}

	m, ok := c.Member("m1")
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.10", m.Address)

	_, ok = c.Member("missing")
	assert.False(t, ok)
}
