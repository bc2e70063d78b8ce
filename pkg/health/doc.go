/*
Package health probes pool members for reachability.

Members live behind the pool's virtual interface, which exists only inside
the pool namespace, so a plain dial from the agent cannot reach them. The
production check is NetnsTCPChecker, which runs

	ip netns exec qlbaas-<pool> nc -z -w <seconds> <address> <port>

through a netns.Executor and treats a zero exit as reachable.

# Checkers

All checkers implement Checker:

	type Checker interface {
		Check(ctx context.Context) Result
		Type() CheckType
	}

	Checker (interface)
	├── ExecChecker      run a command through an Executor
	└── NetnsTCPChecker  nc inside a pool namespace (wraps ExecChecker)

# Fail-closed probing

Probe turns a Checker into a bool. Anything other than a clean success is
unreachable: an unhealthy result, a cancelled context, or a panic in the
checker. A failed probe is never reported as an error. Prober binds an
executor and timeout and picks the checker for a namespace; it performs one
attempt per call and leaves the polling cadence to the caller.

# Status tracking

Status keeps consecutive success and failure counts across polls. A member
turns unhealthy once ConsecutiveFailures reaches Config.Retries and healthy
again on the first success.

	status := health.NewStatus()
	ok := prober.Probe(ctx, "qlbaas-p1", "10.0.0.10", 80)
	status.Update(health.Result{Healthy: ok, CheckedAt: time.Now()}, config)
*/
package health
