package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/cuemby/lvs-agent/pkg/ipvs"
	"github.com/cuemby/lvs-agent/pkg/metrics"
	"github.com/cuemby/lvs-agent/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectHealth_WithoutMonitors(t *testing.T) {
	f := newFixture(t)
	f.cp.configs["p1"] = exampleConfig()

	results, err := f.engine.CollectHealth(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, []types.MemberHealth{
		types.NewMemberHealth("m1", true),
		types.NewMemberHealth("m2", true),
	}, results)
	assert.Empty(t, f.host.Calls(), "pools without monitors are not probed")
}

func TestCollectHealth_ProbesMembers(t *testing.T) {
	f := newFixture(t)
	cfg := poolConfig("hp", member("m1", "10.0.0.10", 80), member("m2", "10.0.0.11", 80))
	cfg.Pool.HealthMonitors = []types.HealthMonitor{{ID: "hm1", Type: "TCP"}}
	f.cp.configs["hp"] = cfg
	f.host.AddNamespace("qlbaas-hp")
	f.host.SetReachable("qlbaas-hp", "10.0.0.10", 80, true)

	results, err := f.engine.CollectHealth(context.Background(), "hp")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, types.StatusActive, results[0].Status)
	assert.Zero(t, results[0].FailedChecks)
	assert.Equal(t, types.StatusInactive, results[1].Status)
	assert.Equal(t, types.FailedChecksUnhealthy, results[1].FailedChecks)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MemberUp.WithLabelValues("hp", "m1")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.MemberUp.WithLabelValues("hp", "m2")))

	for _, c := range f.host.Calls() {
		assert.Equal(t, "qlbaas-hp", c.Namespace)
		assert.Equal(t, "nc", c.Argv[0])
	}
}

func TestCollectHealth_MissingNamespaceIsUnreachable(t *testing.T) {
	f := newFixture(t)
	cfg := poolConfig("gone", member("m1", "10.0.0.10", 80))
	cfg.Pool.HealthMonitors = []types.HealthMonitor{{ID: "hm1"}}
	f.cp.configs["gone"] = cfg

	results, err := f.engine.CollectHealth(context.Background(), "gone")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.StatusInactive, results[0].Status)
}

func TestReportHealth(t *testing.T) {
	f := newFixture(t)
	f.cp.configs["p1"] = exampleConfig()

	require.NoError(t, f.engine.ReportHealth(context.Background(), "p1"))
	assert.Len(t, f.cp.reports, 2)
	assert.Equal(t, types.StatusActive, f.cp.reports["p1/m1"].Status)

	f.cp.reportErr = errors.New("control plane unavailable")
	err := f.engine.ReportHealth(context.Background(), "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "member m1")
	assert.Contains(t, err.Error(), "member m2")
}

func TestServiceSamples(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Apply(context.Background(), exampleConfig(), true))
	f.host.SetStats("qlbaas-p1", []ipvs.ServiceStats{{
		Protocol: ipvs.ProtocolTCP, Address: "10.0.0.5", Port: 80,
		Conns: 12, InBytes: 4096, OutBytes: 8192,
		RealServers: []ipvs.RealServerStats{
			{Address: "10.0.0.10", Port: 80, Conns: 7},
			{Address: "10.0.0.11", Port: 80, Conns: 5},
		},
	}})

	ids, err := f.engine.PoolIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)

	samples, err := f.engine.ServiceSamples(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, metrics.ServiceSample{
		Service:     "10.0.0.5:80",
		Connections: 12,
		InBytes:     4096,
		OutBytes:    8192,
		Servers: []metrics.ServerSample{
			{Server: "10.0.0.10:80", Connections: 7},
			{Server: "10.0.0.11:80", Connections: 5},
		},
	}, samples[0])
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Apply(context.Background(), exampleConfig(), true))

	services, err := f.engine.Snapshot(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, f.host.Services("qlbaas-p1"), services)

	_, err = f.engine.Snapshot(context.Background(), "missing")
	assert.Error(t, err)
}

func TestPortMap(t *testing.T) {
	p := NewPortMap()
	p.Set("b", "port-b")
	p.Set("a", "port-a")

	got, ok := p.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "port-a", got)
	assert.Equal(t, []string{"a", "b"}, p.Pools())

	p.Delete("a")
	assert.Equal(t, 1, p.Len())
	_, ok = p.Get("a")
	assert.False(t, ok)
}
