package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cuemby/lvs-agent/pkg/controlplane"
	"github.com/cuemby/lvs-agent/pkg/ipvs"
	"github.com/cuemby/lvs-agent/pkg/log"
	"github.com/cuemby/lvs-agent/pkg/metrics"
	"github.com/cuemby/lvs-agent/pkg/netns"
	"github.com/cuemby/lvs-agent/pkg/plumber"
	"github.com/cuemby/lvs-agent/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultNamespacePrefix is prepended to a pool id to name its namespace.
const DefaultNamespacePrefix = "qlbaas-"

// Prober checks whether a member answers from inside a namespace.
type Prober interface {
	Probe(ctx context.Context, namespace, address string, port int) bool
}

// Config holds engine settings
type Config struct {
	// NamespacePrefix names pool namespaces (default "qlbaas-")
	NamespacePrefix string

	// ReuseExistingDevice lets a reset adopt a VIP device that is already
	// present instead of failing
	ReuseExistingDevice bool
}

// Engine converges the virtual server table of each pool namespace to the
// pool's logical configuration. All mutating entry points are serialized
// by one engine-wide lock.
type Engine struct {
	mu sync.Mutex

	executor     netns.Executor
	lifecycle    *plumber.Lifecycle
	controlPlane controlplane.Client
	prober       Prober
	ports        *PortMap

	prefix        string
	reuseExisting bool
	logger        zerolog.Logger
}

// New creates an engine
func New(cfg Config, ex netns.Executor, lifecycle *plumber.Lifecycle, cp controlplane.Client, prober Prober) *Engine {
	prefix := cfg.NamespacePrefix
	if prefix == "" {
		prefix = DefaultNamespacePrefix
	}
	return &Engine{
		executor:      ex,
		lifecycle:     lifecycle,
		controlPlane:  cp,
		prober:        prober,
		ports:         NewPortMap(),
		prefix:        prefix,
		reuseExisting: cfg.ReuseExistingDevice,
		logger:        log.WithComponent("engine"),
	}
}

// NamespaceFor returns the namespace of a pool
func (e *Engine) NamespaceFor(poolID string) string {
	return e.prefix + poolID
}

// Ports exposes the pool to port map
func (e *Engine) Ports() *PortMap {
	return e.ports
}

// Apply converges the table of cfg's pool. It does nothing unless the pool
// and VIP are both administratively up with an active or pending status.
// With resetFirst the VIP port is plugged, the namespace ensured and the
// table flushed before services are written.
//
// Every member yields a service keyed by the VIP address and the member's
// port, edited if present and created otherwise, and a masqueraded real
// server under it, likewise edited or created.
func (e *Engine) Apply(ctx context.Context, cfg *types.LogicalConfig, resetFirst bool) error {
	timer := metrics.NewTimer()
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.apply(ctx, cfg, resetFirst)
	record("apply", err, timer)
	return err
}

func (e *Engine) apply(ctx context.Context, cfg *types.LogicalConfig, resetFirst bool) error {
	if !cfg.Deployable() {
		metrics.ReconciliationsSkipped.Inc()
		if cfg != nil {
			e.logger.Debug().Str("pool_id", cfg.Pool.ID).Msg("Pool or VIP not deployable, skipping")
		}
		return nil
	}

	vip := cfg.Vip
	ns := e.NamespaceFor(cfg.Pool.ID)
	logger := e.logger.With().Str("pool_id", cfg.Pool.ID).Str("namespace", ns).Logger()

	var services []ipvs.Service
	if resetFirst {
		if err := e.controlPlane.PlugVipPort(ctx, vip.Port.ID); err != nil {
			return fmt.Errorf("plugging vip port %s: %w", vip.Port.ID, err)
		}
		if _, err := e.lifecycle.Ensure(ctx, ns, vip.Port, e.reuseExisting); err != nil {
			return err
		}
		if err := e.mutate(ctx, ns, ipvs.FlushCommand()); err != nil {
			return fmt.Errorf("flushing table: %w", err)
		}
	} else {
		var err error
		if services, err = e.snapshot(ctx, ns); err != nil {
			return err
		}
	}

	scheduler := ipvs.SchedulerFor(cfg.Pool.LBMethod)
	persistent := vip.SessionPersistence != nil

	// The snapshot is read once and kept current locally, so members
	// sharing a port touch their service only once.
	seen := make(map[string]bool)
	for _, m := range cfg.Members {
		service := ipvs.Endpoint(vip.Address, m.ProtocolPort)
		if seen[service] {
			continue
		}
		seen[service] = true

		if _, ok := ipvs.Find(services, vip.Address, m.ProtocolPort); ok {
			if err := e.mutate(ctx, ns, ipvs.EditServiceCommand(service, scheduler, persistent)); err != nil {
				return fmt.Errorf("updating service %s: %w", service, err)
			}
			continue
		}
		if err := e.mutate(ctx, ns, ipvs.AddServiceCommand(service, scheduler, persistent)); err != nil {
			return fmt.Errorf("creating service %s: %w", service, err)
		}
		services = append(services, ipvs.Service{
			Protocol:   ipvs.ProtocolTCP,
			Address:    vip.Address,
			Port:       m.ProtocolPort,
			Scheduler:  scheduler,
			Persistent: persistent,
		})
	}

	e.ports.Set(cfg.Pool.ID, vip.Port.ID)
	metrics.PoolsDeployed.Set(float64(e.ports.Len()))

	for _, m := range cfg.Members {
		service := ipvs.Endpoint(vip.Address, m.ProtocolPort)
		server := ipvs.Endpoint(m.Address, m.ProtocolPort)
		svc, _ := ipvs.Find(services, vip.Address, m.ProtocolPort)

		if _, ok := svc.Server(m.Address, m.ProtocolPort); ok {
			if err := e.mutate(ctx, ns, ipvs.EditServerCommand(service, server)); err != nil {
				return fmt.Errorf("updating real server %s: %w", server, err)
			}
			continue
		}
		if err := e.mutate(ctx, ns, ipvs.AddServerCommand(service, server)); err != nil {
			return fmt.Errorf("adding real server %s: %w", server, err)
		}
		svc.RealServers = append(svc.RealServers, ipvs.RealServer{
			Address: m.Address,
			Port:    m.ProtocolPort,
			Forward: ipvs.ForwardMasq,
			Weight:  1,
		})
	}

	logger.Info().
		Int("members", len(cfg.Members)).
		Int("services", len(seen)).
		Bool("reset", resetFirst).
		Msg("Pool reconciled")
	return nil
}

// RemoveMember deletes member's real server from the pool table and then
// purges every service left without real servers. A member or namespace
// that is already gone is not an error.
func (e *Engine) RemoveMember(ctx context.Context, member types.Member, cfg *types.LogicalConfig) error {
	timer := metrics.NewTimer()
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.removeMember(ctx, member, cfg)
	record("remove_member", err, timer)
	return err
}

func (e *Engine) removeMember(ctx context.Context, member types.Member, cfg *types.LogicalConfig) error {
	poolID := member.PoolID
	if cfg != nil && cfg.Pool.ID != "" {
		poolID = cfg.Pool.ID
	}
	if poolID == "" {
		return fmt.Errorf("member %s has no pool", member.ID)
	}
	ns := e.NamespaceFor(poolID)

	exists, err := netns.Exists(ctx, e.executor, ns)
	if err != nil {
		return err
	}
	if !exists {
		e.logger.Debug().Str("namespace", ns).Str("member_id", member.ID).Msg("Namespace absent, nothing to remove")
		return nil
	}

	if cfg != nil && cfg.Vip != nil {
		services, err := e.snapshot(ctx, ns)
		if err != nil {
			return err
		}
		service := ipvs.Endpoint(cfg.Vip.Address, member.ProtocolPort)
		server := ipvs.Endpoint(member.Address, member.ProtocolPort)
		if svc, ok := ipvs.Find(services, cfg.Vip.Address, member.ProtocolPort); ok {
			if _, ok := svc.Server(member.Address, member.ProtocolPort); ok {
				if err := e.mutate(ctx, ns, ipvs.DeleteServerCommand(service, server)); err != nil {
					return fmt.Errorf("deleting real server %s: %w", server, err)
				}
			}
		}
	}

	return e.purge(ctx, ns)
}

// purge deletes every TCP service that has no real servers left.
func (e *Engine) purge(ctx context.Context, ns string) error {
	services, err := e.snapshot(ctx, ns)
	if err != nil {
		return err
	}
	for _, svc := range services {
		if svc.Protocol != ipvs.ProtocolTCP || len(svc.RealServers) > 0 {
			continue
		}
		if err := e.mutate(ctx, ns, ipvs.DeleteServiceCommand(svc.Endpoint())); err != nil {
			return fmt.Errorf("purging service %s: %w", svc.Endpoint(), err)
		}
	}
	return nil
}

// Teardown flushes the pool's table, unplugs its VIP port and releases the
// namespace. The port map entry is dropped once teardown succeeds.
func (e *Engine) Teardown(ctx context.Context, poolID string) error {
	timer := metrics.NewTimer()
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.teardown(ctx, poolID)
	record("teardown", err, timer)
	return err
}

func (e *Engine) teardown(ctx context.Context, poolID string) error {
	ns := e.NamespaceFor(poolID)
	portID, _ := e.ports.Get(poolID)

	done, err := e.lifecycle.Teardown(ctx, ns, portID)
	if err != nil {
		return err
	}
	if done && portID != "" {
		if err := e.controlPlane.UnplugVipPort(ctx, portID); err != nil {
			return fmt.Errorf("unplugging vip port %s: %w", portID, err)
		}
	}

	e.ports.Delete(poolID)
	metrics.PoolsDeployed.Set(float64(e.ports.Len()))
	metrics.MemberUp.DeletePartialMatch(map[string]string{"pool_id": poolID})

	e.logger.Info().Str("pool_id", poolID).Str("namespace", ns).Bool("existed", done).Msg("Pool torn down")
	return nil
}

// Refresh fetches the pool's configuration from the control plane and
// applies it.
func (e *Engine) Refresh(ctx context.Context, poolID string, resetFirst bool) error {
	cfg, err := e.controlPlane.GetLogicalConfig(ctx, poolID)
	if err != nil {
		return fmt.Errorf("fetching configuration of pool %s: %w", poolID, err)
	}
	return e.Apply(ctx, cfg, resetFirst)
}

func (e *Engine) mutate(ctx context.Context, ns string, argv []string) error {
	if _, err := e.executor.Execute(ctx, ns, argv); err != nil {
		return err
	}
	metrics.TableMutationsTotal.WithLabelValues(ipvs.Verb(argv)).Inc()
	e.logger.Info().Str("namespace", ns).Str("command", strings.Join(argv[1:], " ")).Msg("Table updated")
	return nil
}

func (e *Engine) snapshot(ctx context.Context, ns string) ([]ipvs.Service, error) {
	out, err := e.executor.Execute(ctx, ns, ipvs.ListCommand())
	if err != nil {
		return nil, fmt.Errorf("listing table: %w", err)
	}
	services, err := ipvs.ParseListing(out)
	if err != nil {
		return nil, fmt.Errorf("listing table: %w", err)
	}
	return services, nil
}

func record(operation string, err error, timer *metrics.Timer) {
	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.ReconciliationsTotal.WithLabelValues(operation, result).Inc()
	timer.ObserveDurationVec(metrics.ReconciliationDuration, operation)
}
