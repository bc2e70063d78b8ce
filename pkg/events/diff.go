package events

import (
	"reflect"

	"github.com/cuemby/lvs-agent/pkg/types"
)

// Diff returns the lifecycle events that turn old into updated. A nil old
// means the pool is new and a nil updated means it was deleted. Member
// deletions come first so that a stale real server is removed before the
// pool is refreshed.
func Diff(old, updated *types.LogicalConfig) []*Event {
	switch {
	case old == nil && updated == nil:
		return nil
	case updated == nil:
		return []*Event{NewEvent(EventPoolDeleted, old.Pool.ID)}
	case old == nil:
		out := []*Event{NewEvent(EventPoolCreated, updated.Pool.ID)}
		if updated.Vip != nil {
			out = append(out, NewEvent(EventVipCreated, updated.Pool.ID))
		}
		return out
	}

	poolID := updated.Pool.ID
	var out []*Event

	for _, m := range old.Members {
		if _, ok := updated.Member(m.ID); !ok {
			m.PoolID = poolID
			out = append(out, NewMemberEvent(EventMemberDeleted, m))
		}
	}

	if !reflect.DeepEqual(old.Pool.HealthMonitors, updated.Pool.HealthMonitors) {
		out = append(out, NewEvent(EventHealthMonitorUpdated, poolID))
	}

	switch {
	case old.Vip == nil && updated.Vip != nil:
		return append(out, NewEvent(EventVipCreated, poolID))
	case old.Vip != nil && updated.Vip == nil:
		return append(out, NewEvent(EventVipDeleted, poolID))
	case old.Vip != nil && old.Vip.Port.ID != updated.Vip.Port.ID:
		// A new port needs a fresh namespace device.
		return append(out, NewEvent(EventVipDeleted, poolID), NewEvent(EventVipCreated, poolID))
	case old.Vip != nil && !reflect.DeepEqual(old.Vip, updated.Vip):
		out = append(out, NewEvent(EventVipUpdated, poolID))
	}

	oldPool, newPool := old.Pool, updated.Pool
	oldPool.HealthMonitors, newPool.HealthMonitors = nil, nil
	if !reflect.DeepEqual(oldPool, newPool) {
		out = append(out, NewEvent(EventPoolUpdated, poolID))
	}

	for _, m := range updated.Members {
		m.PoolID = poolID
		prev, ok := old.Member(m.ID)
		if !ok {
			out = append(out, NewMemberEvent(EventMemberCreated, m))
			continue
		}
		prev.PoolID = poolID
		if !reflect.DeepEqual(prev, m) {
			out = append(out, NewMemberEvent(EventMemberUpdated, m))
		}
	}
	return out
}
