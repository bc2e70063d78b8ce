package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/lvs-agent/pkg/controlplane"
	"github.com/cuemby/lvs-agent/pkg/events"
	"github.com/cuemby/lvs-agent/pkg/log"
	"github.com/cuemby/lvs-agent/pkg/types"
	"github.com/rs/zerolog"
)

// Engine is the subset of the reconciliation engine driven by events and
// the periodic loop.
type Engine interface {
	Refresh(ctx context.Context, poolID string, resetFirst bool) error
	RemoveMember(ctx context.Context, member types.Member, cfg *types.LogicalConfig) error
	Teardown(ctx context.Context, poolID string) error
	CollectHealth(ctx context.Context, poolID string) ([]types.MemberHealth, error)
	PoolIDs(ctx context.Context) ([]string, error)
	Deployed(ctx context.Context, poolID string) (bool, error)
}

// Dispatcher turns pool lifecycle events into engine calls
type Dispatcher struct {
	engine       Engine
	controlPlane controlplane.Client
	broker       *events.Broker
	logger       zerolog.Logger

	sub    events.Subscriber
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewDispatcher creates a dispatcher. broker may be nil when events are
// fed through Handle directly.
func NewDispatcher(engine Engine, cp controlplane.Client, broker *events.Broker) *Dispatcher {
	return &Dispatcher{
		engine:       engine,
		controlPlane: cp,
		broker:       broker,
		logger:       log.WithComponent("dispatcher"),
	}
}

// Start subscribes to the broker and handles events until Stop
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.sub = d.broker.Subscribe()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for event := range d.sub {
			if err := d.Handle(ctx, event); err != nil {
				d.logger.Error().
					Err(err).
					Str("event_id", event.ID).
					Str("event", string(event.Type)).
					Str("pool_id", event.PoolID).
					Msg("Failed to handle event")
			}
		}
	}()
}

// Stop unsubscribes and waits for the event in flight to finish
func (d *Dispatcher) Stop() {
	if d.sub == nil {
		return
	}
	d.cancel()
	d.broker.Unsubscribe(d.sub)
	d.wg.Wait()
}

// Handle performs the engine call for one event
func (d *Dispatcher) Handle(ctx context.Context, event *events.Event) error {
	logger := d.logger.With().Str("event", string(event.Type)).Str("pool_id", event.PoolID).Logger()

	switch event.Type {
	case events.EventVipCreated:
		return d.engine.Refresh(ctx, event.PoolID, true)

	case events.EventVipUpdated, events.EventPoolUpdated,
		events.EventMemberCreated, events.EventMemberUpdated:
		return d.engine.Refresh(ctx, event.PoolID, false)

	case events.EventVipDeleted, events.EventPoolDeleted:
		return d.engine.Teardown(ctx, event.PoolID)

	case events.EventMemberDeleted:
		if event.Member == nil {
			return fmt.Errorf("event %s carries no member", event.ID)
		}
		poolID := event.PoolID
		if poolID == "" {
			poolID = event.Member.PoolID
		}
		cfg, err := d.controlPlane.GetLogicalConfig(ctx, poolID)
		if errors.Is(err, controlplane.ErrPoolNotFound) {
			// Only the purge can run without the VIP address.
			cfg = nil
		} else if err != nil {
			return fmt.Errorf("fetching configuration of pool %s: %w", poolID, err)
		}
		member := *event.Member
		member.PoolID = poolID
		return d.engine.RemoveMember(ctx, member, cfg)

	case events.EventPoolCreated:
		logger.Debug().Msg("Pool has no VIP yet, nothing to deploy")
		return nil

	case events.EventHealthMonitorCreated, events.EventHealthMonitorUpdated, events.EventHealthMonitorDeleted:
		logger.Info().Msg("Health monitor changed")
		return nil

	default:
		logger.Warn().Msg("Ignoring unknown event")
		return nil
	}
}
