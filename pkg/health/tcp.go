package health

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/cuemby/lvs-agent/pkg/netns"
)

// NetnsTCPChecker connects to a member from inside a pool namespace with
// `nc -z -w <timeout> <address> <port>`. Only a zero exit counts as
// reachable.
type NetnsTCPChecker struct {
	exec *ExecChecker
}

// NewNetnsTCPChecker creates a checker that probes address:port from
// namespace through ex.
func NewNetnsTCPChecker(ex netns.Executor, namespace, address string, port int, timeout time.Duration) *NetnsTCPChecker {
	argv := []string{"nc", "-z", "-w", ncTimeout(timeout), address, strconv.Itoa(port)}
	return &NetnsTCPChecker{
		// nc enforces the timeout itself; the exec deadline only guards
		// against a hung process.
		exec: NewExecChecker(ex, argv).
			WithNamespace(namespace).
			WithTimeout(timeout + time.Second),
	}
}

// Check performs the probe
func (n *NetnsTCPChecker) Check(ctx context.Context) Result {
	return n.exec.Check(ctx)
}

// Type returns the health check type
func (n *NetnsTCPChecker) Type() CheckType {
	return CheckTypeNetnsTCP
}

// Command returns the probe command line
func (n *NetnsTCPChecker) Command() []string {
	return n.exec.Command
}

// ncTimeout renders a duration as whole seconds for nc -w, rounding up so
// a sub-second timeout never becomes "0".
func ncTimeout(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
