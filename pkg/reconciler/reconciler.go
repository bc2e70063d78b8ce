package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/lvs-agent/pkg/controlplane"
	"github.com/cuemby/lvs-agent/pkg/health"
	"github.com/cuemby/lvs-agent/pkg/log"
	"github.com/cuemby/lvs-agent/pkg/metrics"
	"github.com/cuemby/lvs-agent/pkg/types"
	"github.com/rs/zerolog"
)

// Config controls the periodic loops
type Config struct {
	// ResyncInterval is the time between re-applying every pool
	ResyncInterval time.Duration

	// Health sets the polling interval and the failure threshold
	Health health.Config
}

// DefaultConfig returns the defaults: resync every minute, health every
// ten seconds.
func DefaultConfig() Config {
	return Config{
		ResyncInterval: 60 * time.Second,
		Health:         health.DefaultConfig(),
	}
}

// Reconciler periodically re-converges every pool the control plane lists
// and reports member health back to it.
type Reconciler struct {
	engine       Engine
	pools        controlplane.PoolLister
	controlPlane controlplane.Client
	config       Config
	logger       zerolog.Logger

	mu     sync.Mutex
	status map[string]*health.Status // "pool/member" -> status

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewReconciler creates a new reconciler
func NewReconciler(engine Engine, pools controlplane.PoolLister, cp controlplane.Client, cfg Config) *Reconciler {
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = DefaultConfig().ResyncInterval
	}
	if cfg.Health.Interval <= 0 {
		cfg.Health.Interval = health.DefaultConfig().Interval
	}
	if cfg.Health.Retries <= 0 {
		cfg.Health.Retries = 1
	}
	return &Reconciler{
		engine:       engine,
		pools:        pools,
		controlPlane: cp,
		config:       cfg,
		logger:       log.WithComponent("reconciler"),
		status:       make(map[string]*health.Status),
		stopCh:       make(chan struct{}),
	}
}

// Start runs the resync and health loops in the background
func (r *Reconciler) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
}

// Stop stops the loops and waits for a cycle in progress
func (r *Reconciler) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

func (r *Reconciler) run(ctx context.Context) {
	defer r.wg.Done()

	resync := time.NewTicker(r.config.ResyncInterval)
	defer resync.Stop()
	poll := time.NewTicker(r.config.Health.Interval)
	defer poll.Stop()

	for {
		select {
		case <-resync.C:
			if err := r.Resync(ctx); err != nil {
				r.logger.Error().Err(err).Msg("Resync failed")
			}
		case <-poll.C:
			if err := r.PollHealth(ctx); err != nil {
				r.logger.Error().Err(err).Msg("Health poll failed")
			}
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Resync re-applies every listed pool, then tears down
// pools this agent deployed that are no longer listed. A pool that is not
// deployed, or whose namespace is gone, is rebuilt from scratch. A failing
// pool does not stop the others.
func (r *Reconciler) Resync(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReconciliationDuration, "resync")

	ids, err := r.pools.ListPools(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pools: %w", err)
	}

	listed := make(map[string]bool, len(ids))
	var errs []error
	for _, id := range ids {
		listed[id] = true
		deployed, err := r.engine.Deployed(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("pool %s: %w", id, err))
			continue
		}
		if err := r.engine.Refresh(ctx, id, !deployed); err != nil {
			errs = append(errs, fmt.Errorf("pool %s: %w", id, err))
		}
	}

	deployed, err := r.engine.PoolIDs(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	for _, id := range deployed {
		if listed[id] {
			continue
		}
		r.logger.Info().Str("pool_id", id).Msg("Pool no longer listed, tearing down")
		if err := r.engine.Teardown(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("pool %s: %w", id, err))
		}
		r.forget(id)
	}

	result := "success"
	if len(errs) > 0 {
		result = "error"
	}
	metrics.ReconciliationsTotal.WithLabelValues("resync", result).Inc()
	return errors.Join(errs...)
}

// PollHealth probes the members of every listed pool and reports them. A
// member is reported unhealthy once it failed Retries polls in a row.
func (r *Reconciler) PollHealth(ctx context.Context) error {
	ids, err := r.pools.ListPools(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pools: %w", err)
	}

	var errs []error
	for _, id := range ids {
		results, err := r.engine.CollectHealth(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("pool %s: %w", id, err))
			continue
		}
		for _, h := range results {
			report := r.observe(id, h)
			if err := r.controlPlane.ReportMemberHealth(ctx, id, report); err != nil {
				errs = append(errs, fmt.Errorf("reporting member %s of pool %s: %w", h.MemberID, id, err))
			}
		}
	}
	return errors.Join(errs...)
}

// MemberStatus returns the tracked health of a member
func (r *Reconciler) MemberStatus(poolID, memberID string) (health.Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.status[poolID+"/"+memberID]
	if !ok {
		return health.Status{}, false
	}
	return *s, true
}

func (r *Reconciler) observe(poolID string, h types.MemberHealth) types.MemberHealth {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := poolID + "/" + h.MemberID
	s, ok := r.status[key]
	if !ok {
		s = health.NewStatus()
		r.status[key] = s
	}

	was := s.Healthy
	s.Update(health.Result{
		Healthy:   h.Status == types.StatusActive,
		CheckedAt: time.Now(),
	}, r.config.Health)

	if was != s.Healthy {
		r.logger.Warn().
			Str("pool_id", poolID).
			Str("member_id", h.MemberID).
			Bool("healthy", s.Healthy).
			Int("consecutive_failures", s.ConsecutiveFailures).
			Msg("Member health changed")
	}
	return types.NewMemberHealth(h.MemberID, s.Healthy)
}

func (r *Reconciler) forget(poolID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := poolID + "/"
	for key := range r.status {
		if strings.HasPrefix(key, prefix) {
			delete(r.status, key)
		}
	}
}
