package health

import (
	"context"
	"time"

	"github.com/cuemby/lvs-agent/pkg/log"
	"github.com/cuemby/lvs-agent/pkg/metrics"
	"github.com/cuemby/lvs-agent/pkg/netns"
	"github.com/rs/zerolog"
)

// Probe runs checker once and reports whether it succeeded. It is
// fail-closed: an unhealthy result, an expired context or a panic inside the
// checker all yield false.
func Probe(ctx context.Context, checker Checker) (reachable bool) {
	defer func() {
		if r := recover(); r != nil {
			reachable = false
		}
		result := "unreachable"
		if reachable {
			result = "reachable"
		}
		metrics.ProbesTotal.WithLabelValues(result).Inc()
	}()

	if ctx.Err() != nil {
		return false
	}
	return checker.Check(ctx).Healthy
}

// Prober probes pool members from inside their pool's namespace.
type Prober struct {
	executor netns.Executor
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewProber returns a Prober running nc through ex. A non-positive timeout
// falls back to one second.
func NewProber(ex netns.Executor, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Prober{
		executor: ex,
		timeout:  timeout,
		logger:   log.WithComponent("prober"),
	}
}

// Checker returns the check used for address:port from inside namespace.
func (p *Prober) Checker(namespace, address string, port int) Checker {
	return NewNetnsTCPChecker(p.executor, namespace, address, port, p.timeout)
}

// Probe performs one bounded reachability check. There is no retry.
func (p *Prober) Probe(ctx context.Context, namespace, address string, port int) bool {
	checker := p.Checker(namespace, address, port)
	ok := Probe(ctx, checker)
	if !ok {
		p.logger.Debug().
			Str("namespace", namespace).
			Str("address", address).
			Int("port", port).
			Msg("member unreachable")
	}
	return ok
}
