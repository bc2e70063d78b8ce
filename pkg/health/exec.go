package health

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/lvs-agent/pkg/netns"
)

// ExecChecker performs exec-based health checks by running a command
// through an executor
type ExecChecker struct {
	// Command is the command to execute (e.g., ["nc", "-z", "10.0.0.10", "80"])
	Command []string

	// Timeout is the command execution timeout (default: 10 seconds)
	Timeout time.Duration

	// Namespace is the network namespace to run in.
	// If empty, runs in the host namespace
	Namespace string

	executor netns.Executor
}

// NewExecChecker creates a new exec health checker
func NewExecChecker(ex netns.Executor, command []string) *ExecChecker {
	return &ExecChecker{
		Command:  command,
		Timeout:  10 * time.Second,
		executor: ex,
	}
}

// Check performs the exec health check
func (e *ExecChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if len(e.Command) == 0 {
		return Result{
			Healthy:   false,
			Message:   "no command specified",
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	output, err := e.executor.Execute(execCtx, e.Namespace, e.Command)

	message := fmt.Sprintf("Command: %v", e.Command)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("%s, Error: %v", message, err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	if output != "" {
		if len(output) > 100 {
			output = output[:100] + "..."
		}
		message = fmt.Sprintf("%s, Output: %s", message, output)
	}

	return Result{
		Healthy:   true,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (e *ExecChecker) Type() CheckType {
	return CheckTypeExec
}

// WithTimeout sets the execution timeout
func (e *ExecChecker) WithTimeout(timeout time.Duration) *ExecChecker {
	e.Timeout = timeout
	return e
}

// WithNamespace sets the namespace the command runs in
func (e *ExecChecker) WithNamespace(namespace string) *ExecChecker {
	e.Namespace = namespace
	return e
}
