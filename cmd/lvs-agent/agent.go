package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cuemby/lvs-agent/pkg/config"
	"github.com/cuemby/lvs-agent/pkg/controlplane"
	"github.com/cuemby/lvs-agent/pkg/engine"
	"github.com/cuemby/lvs-agent/pkg/health"
	"github.com/cuemby/lvs-agent/pkg/log"
	"github.com/cuemby/lvs-agent/pkg/netns"
	"github.com/cuemby/lvs-agent/pkg/plumber"
	"github.com/cuemby/lvs-agent/pkg/storage"
	"github.com/rs/zerolog"
)

// agent bundles the components every command builds from the
// configuration. The store is only opened when a command needs it, since
// a running agent holds the database lock.
type agent struct {
	cfg     config.Config
	gateway *netns.Gateway
	store   *storage.BoltStore
	cp      *storage.LocalControlPlane
	engine  *engine.Engine
	logger  zerolog.Logger
}

func newAgent(cfg config.Config, withStore bool) (*agent, error) {
	opts := []netns.Option{
		netns.WithRootHelper(cfg.RootHelper...),
		netns.WithLogger(log.WithComponent("gateway")),
	}
	for tool, path := range cfg.Tools.Paths() {
		opts = append(opts, netns.WithToolPath(tool, path))
	}
	gateway := netns.NewGateway(opts...)

	a := &agent{
		cfg:     cfg,
		gateway: gateway,
		logger:  log.WithComponent("agent"),
	}

	if withStore {
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("%w (is an agent already serving from %s?)", err, cfg.DataDir)
		}
		a.store = store
		a.cp = storage.NewLocalControlPlane(store)
	}

	driver := plumber.NewNetlinkDriver(cfg.Interface.DevicePrefix, cfg.Interface.Bridge, cfg.Interface.MTU)
	lifecycle := plumber.NewLifecycle(gateway, driver)
	prober := health.NewProber(gateway, cfg.ProbeTimeout)

	// Read-only commands leave the control plane unset; only Snapshot and
	// Stats are called on their engine.
	var cp controlplane.Client
	if a.cp != nil {
		cp = a.cp
	}
	a.engine = engine.New(engine.Config{
		NamespacePrefix:     cfg.NamespacePrefix,
		ReuseExistingDevice: cfg.ReuseExistingDevice,
	}, gateway, lifecycle, cp, prober)

	return a, nil
}

// Close releases the store
func (a *agent) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close store")
		}
	}
}

// seedPorts fills the engine's port map from the stored pools whose VIP
// port is recorded as plugged, so teardown can unplug ports applied by an
// earlier process.
func (a *agent) seedPorts() error {
	pools, err := a.store.ListPools()
	if err != nil {
		return err
	}
	for _, cfg := range pools {
		if cfg.Vip == nil || cfg.Vip.Port.ID == "" {
			continue
		}
		binding, err := a.store.GetPortBinding(cfg.Vip.Port.ID)
		if err != nil || !binding.Plugged {
			continue
		}
		a.engine.Ports().Set(cfg.Pool.ID, cfg.Vip.Port.ID)
	}
	return nil
}

// converge applies every stored pool with a reset. It runs once at startup
// since the table may have been lost while the agent was down.
func (a *agent) converge(ctx context.Context) error {
	pools, err := a.store.ListPools()
	if err != nil {
		return err
	}
	var failed int
	for _, cfg := range pools {
		if err := a.engine.Apply(ctx, cfg, true); err != nil {
			failed++
			a.logger.Error().Err(err).Str("pool_id", cfg.Pool.ID).Msg("Initial apply failed")
		}
	}
	a.logger.Info().Int("pools", len(pools)).Int("failed", failed).Msg("Initial convergence done")
	return nil
}
