package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/lvs-agent/pkg/controlplane"
	"github.com/cuemby/lvs-agent/pkg/events"
	"github.com/cuemby/lvs-agent/pkg/health"
	"github.com/cuemby/lvs-agent/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu       sync.Mutex
	calls    []string
	deployed []string
	health   map[string][]types.MemberHealth
	failPool string
	removed  []types.Member
	cfgs     []*types.LogicalConfig

	// hold, when set, blocks the first RemoveMember until it is closed
	hold     chan struct{}
	holdOnce sync.Once
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) Refresh(ctx context.Context, poolID string, resetFirst bool) error {
	f.record(fmt.Sprintf("refresh %s reset=%t", poolID, resetFirst))
	if poolID == f.failPool {
		return errors.New("ipvsadm failed")
	}
	return nil
}

func (f *fakeEngine) RemoveMember(ctx context.Context, member types.Member, cfg *types.LogicalConfig) error {
	if f.hold != nil {
		f.holdOnce.Do(func() { <-f.hold })
	}
	f.record(fmt.Sprintf("remove %s/%s", member.PoolID, member.ID))
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, member)
	f.cfgs = append(f.cfgs, cfg)
	return nil
}

func (f *fakeEngine) Teardown(ctx context.Context, poolID string) error {
	f.record("teardown " + poolID)
	return nil
}

func (f *fakeEngine) CollectHealth(ctx context.Context, poolID string) ([]types.MemberHealth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	results, ok := f.health[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", controlplane.ErrPoolNotFound, poolID)
	}
	return results, nil
}

func (f *fakeEngine) PoolIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deployed...), nil
}

func (f *fakeEngine) Deployed(ctx context.Context, poolID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.deployed {
		if id == poolID {
			return true, nil
		}
	}
	return false, nil
}

type fakeControlPlane struct {
	mu      sync.Mutex
	pools   map[string]*types.LogicalConfig
	reports map[string]types.MemberHealth
}

func newFakeControlPlane(ids ...string) *fakeControlPlane {
	cp := &fakeControlPlane{
		pools:   make(map[string]*types.LogicalConfig),
		reports: make(map[string]types.MemberHealth),
	}
	for _, id := range ids {
		cp.pools[id] = &types.LogicalConfig{
			Pool: types.Pool{ID: id},
			Vip:  &types.Vip{Address: "10.0.0.5"},
		}
	}
	return cp
}

func (f *fakeControlPlane) GetLogicalConfig(ctx context.Context, poolID string) (*types.LogicalConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", controlplane.ErrPoolNotFound, poolID)
	}
	return cfg, nil
}

func (f *fakeControlPlane) PlugVipPort(ctx context.Context, portID string) error   { return nil }
func (f *fakeControlPlane) UnplugVipPort(ctx context.Context, portID string) error { return nil }

func (f *fakeControlPlane) ReportMemberHealth(ctx context.Context, poolID string, h types.MemberHealth) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports[poolID+"/"+h.MemberID] = h
	return nil
}

func (f *fakeControlPlane) ListPools(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.pools))
	for id := range f.pools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func TestDispatcher_Handle(t *testing.T) {
	tests := []struct {
		event *events.Event
		want  []string
	}{
		{events.NewEvent(events.EventVipCreated, "p1"), []string{"refresh p1 reset=true"}},
		{events.NewEvent(events.EventVipUpdated, "p1"), []string{"refresh p1 reset=false"}},
		{events.NewEvent(events.EventPoolUpdated, "p1"), []string{"refresh p1 reset=false"}},
		{events.NewMemberEvent(events.EventMemberCreated, types.Member{ID: "m1", PoolID: "p1"}), []string{"refresh p1 reset=false"}},
		{events.NewMemberEvent(events.EventMemberUpdated, types.Member{ID: "m1", PoolID: "p1"}), []string{"refresh p1 reset=false"}},
		{events.NewEvent(events.EventVipDeleted, "p1"), []string{"teardown p1"}},
		{events.NewEvent(events.EventPoolDeleted, "p1"), []string{"teardown p1"}},
		{events.NewMemberEvent(events.EventMemberDeleted, types.Member{ID: "m1", PoolID: "p1"}), []string{"remove p1/m1"}},
		{events.NewEvent(events.EventPoolCreated, "p1"), nil},
		{events.NewEvent(events.EventHealthMonitorCreated, "p1"), nil},
		{events.NewEvent(events.EventHealthMonitorDeleted, "p1"), nil},
		{events.NewEvent("listener.created", "p1"), nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.event.Type), func(t *testing.T) {
			engine := &fakeEngine{}
			d := NewDispatcher(engine, newFakeControlPlane("p1"), nil)

			require.NoError(t, d.Handle(context.Background(), tt.event))
			assert.Equal(t, tt.want, engine.Calls())
		})
	}
}

func TestDispatcher_MemberDeleted(t *testing.T) {
	engine := &fakeEngine{}
	cp := newFakeControlPlane("p1")
	d := NewDispatcher(engine, cp, nil)

	m := types.Member{ID: "m1", PoolID: "p1", Address: "10.0.0.10", ProtocolPort: 80}
	require.NoError(t, d.Handle(context.Background(), events.NewMemberEvent(events.EventMemberDeleted, m)))
	require.Len(t, engine.removed, 1)
	assert.Equal(t, m, engine.removed[0])
	assert.Same(t, cp.pools["p1"], engine.cfgs[0])

	// The pool itself is already gone: the purge still runs.
	gone := types.Member{ID: "m2", PoolID: "p9"}
	require.NoError(t, d.Handle(context.Background(), events.NewMemberEvent(events.EventMemberDeleted, gone)))
	assert.Nil(t, engine.cfgs[1])

	err := d.Handle(context.Background(), events.NewEvent(events.EventMemberDeleted, "p1"))
	assert.Error(t, err, "member events must carry the member")
}

func TestDispatcher_Subscribes(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	engine := &fakeEngine{}
	d := NewDispatcher(engine, newFakeControlPlane("p1"), broker)
	d.Start(context.Background())

	broker.Publish(events.NewEvent(events.EventVipCreated, "p1"))
	broker.Publish(events.NewEvent(events.EventPoolDeleted, "p1"))

	assert.Eventually(t, func() bool { return len(engine.Calls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"refresh p1 reset=true", "teardown p1"}, engine.Calls())

	d.Stop()
	assert.Zero(t, broker.SubscriberCount())
}

func TestDispatcher_SlowEngineLosesNoEvents(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	engine := &fakeEngine{hold: make(chan struct{})}
	d := NewDispatcher(engine, newFakeControlPlane("p1"), broker)
	d.Start(context.Background())
	defer d.Stop()

	const total = 60
	want := make([]string, 0, total)
	for i := 0; i < total; i++ {
		m := types.Member{ID: fmt.Sprintf("m%d", i), PoolID: "p1", Address: "10.0.0.10", ProtocolPort: 8000 + i}
		broker.Publish(events.NewMemberEvent(events.EventMemberDeleted, m))
		want = append(want, "remove p1/"+m.ID)
	}

	// the first removal is stuck until every event has been published
	close(engine.hold)

	assert.Eventually(t, func() bool { return len(engine.Calls()) == total }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, engine.Calls())
}

func TestReconciler_Resync(t *testing.T) {
	engine := &fakeEngine{deployed: []string{"p1", "old"}, failPool: "p2"}
	cp := newFakeControlPlane("p1", "p2", "p3")
	r := NewReconciler(engine, cp, cp, DefaultConfig())

	err := r.Resync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool p2")

	assert.Equal(t, []string{
		"refresh p1 reset=false",
		"refresh p2 reset=true",
		"refresh p3 reset=true",
		"teardown old",
	}, engine.Calls())
}

func TestReconciler_PollHealth(t *testing.T) {
	engine := &fakeEngine{health: map[string][]types.MemberHealth{
		"p1": {
			types.NewMemberHealth("m1", true),
			types.NewMemberHealth("m2", false),
		},
	}}
	cp := newFakeControlPlane("p1")
	r := NewReconciler(engine, cp, cp, Config{
		ResyncInterval: time.Minute,
		Health:         health.Config{Interval: time.Second, Retries: 2},
	})
	ctx := context.Background()

	require.NoError(t, r.PollHealth(ctx))
	assert.Equal(t, types.StatusActive, cp.reports["p1/m2"].Status, "one failure is below the threshold")

	require.NoError(t, r.PollHealth(ctx))
	assert.Equal(t, types.StatusActive, cp.reports["p1/m1"].Status)
	assert.Equal(t, types.StatusInactive, cp.reports["p1/m2"].Status)
	assert.Equal(t, types.FailedChecksUnhealthy, cp.reports["p1/m2"].FailedChecks)

	status, ok := r.MemberStatus("p1", "m2")
	require.True(t, ok)
	assert.Equal(t, 2, status.ConsecutiveFailures)
	assert.False(t, status.Healthy)

	engine.mu.Lock()
	engine.health["p1"] = []types.MemberHealth{types.NewMemberHealth("m2", true)}
	engine.mu.Unlock()
	require.NoError(t, r.PollHealth(ctx))
	assert.Equal(t, types.StatusActive, cp.reports["p1/m2"].Status, "one success restores the member")
}

func TestReconciler_PollHealthContinuesPastErrors(t *testing.T) {
	engine := &fakeEngine{health: map[string][]types.MemberHealth{
		"p2": {types.NewMemberHealth("m1", true)},
	}}
	cp := newFakeControlPlane("p1", "p2")
	r := NewReconciler(engine, cp, cp, DefaultConfig())

	err := r.PollHealth(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, controlplane.ErrPoolNotFound))
	assert.Contains(t, cp.reports, "p2/m1")
}

func TestReconciler_StartStop(t *testing.T) {
	engine := &fakeEngine{health: map[string][]types.MemberHealth{"p1": nil}}
	cp := newFakeControlPlane("p1")
	r := NewReconciler(engine, cp, cp, Config{
		ResyncInterval: 10 * time.Millisecond,
		Health:         health.Config{Interval: time.Hour},
	})

	r.Start(context.Background())
	assert.Eventually(t, func() bool { return len(engine.Calls()) > 0 }, time.Second, 5*time.Millisecond)
	r.Stop()

	assert.Equal(t, "refresh p1 reset=true", engine.Calls()[0], "a pool that is not deployed is rebuilt")
}

func TestReconciler_ForgetsTornDownPools(t *testing.T) {
	engine := &fakeEngine{
		deployed: []string{"p1"},
		health:   map[string][]types.MemberHealth{"p1": {types.NewMemberHealth("m1", false)}},
	}
	cp := newFakeControlPlane("p1")
	r := NewReconciler(engine, cp, cp, DefaultConfig())

	require.NoError(t, r.PollHealth(context.Background()))
	_, ok := r.MemberStatus("p1", "m1")
	require.True(t, ok)

	delete(cp.pools, "p1")
	require.NoError(t, r.Resync(context.Background()))
	_, ok = r.MemberStatus("p1", "m1")
	assert.False(t, ok)
}
