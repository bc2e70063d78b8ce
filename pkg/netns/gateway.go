package netns

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cuemby/lvs-agent/pkg/log"
	"github.com/cuemby/lvs-agent/pkg/metrics"
	"github.com/rs/zerolog"
)

// Executor runs a command line inside a named network namespace and returns
// its standard output. An empty namespace runs the command in the host
// namespace.
type Executor interface {
	Execute(ctx context.Context, namespace string, argv []string) (string, error)
}

// ToolError is returned when an external command cannot be launched or exits
// non-zero.
type ToolError struct {
	Namespace string
	Argv      []string
	ExitCode  int
	Stderr    string
	Err       error
}

func (e *ToolError) Error() string {
	where := "host namespace"
	if e.Namespace != "" {
		where = "namespace " + e.Namespace
	}
	detail := strings.TrimSpace(e.Stderr)
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	return fmt.Sprintf("%s failed in %s (exit %d): %s", strings.Join(e.Argv, " "), where, e.ExitCode, detail)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Gateway executes commands through `ip netns exec`.
type Gateway struct {
	rootHelper []string
	tools      map[string]string
	logger     zerolog.Logger
}

// Option configures a Gateway
type Option func(*Gateway)

// WithRootHelper prefixes every command line with helper, e.g. "sudo".
func WithRootHelper(helper ...string) Option {
	return func(g *Gateway) {
		g.rootHelper = append([]string(nil), helper...)
	}
}

// WithToolPath resolves the command named tool to path.
func WithToolPath(tool, path string) Option {
	return func(g *Gateway) {
		if path != "" {
			g.tools[tool] = path
		}
	}
}

// WithLogger sets the gateway logger
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// NewGateway creates a new command gateway
func NewGateway(opts ...Option) *Gateway {
	g := &Gateway{
		tools:  make(map[string]string),
		logger: log.WithComponent("gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Command returns the full command line Execute would run.
func (g *Gateway) Command(namespace string, argv []string) []string {
	resolved := append([]string(nil), argv...)
	resolved[0] = g.resolve(resolved[0])

	var full []string
	full = append(full, g.rootHelper...)
	if namespace != "" {
		full = append(full, g.resolve("ip"), "netns", "exec", namespace)
	}
	return append(full, resolved...)
}

func (g *Gateway) resolve(tool string) string {
	if path, ok := g.tools[tool]; ok {
		return path
	}
	return tool
}

// Execute runs argv inside namespace. There is no retry; a failed command
// yields a *ToolError carrying the captured stderr and no output.
func (g *Gateway) Execute(ctx context.Context, namespace string, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", &ToolError{Namespace: namespace, ExitCode: -1, Err: errors.New("empty command line")}
	}

	tool := filepath.Base(argv[0])
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CommandDuration, tool)

	full := g.Command(namespace, argv)
	cmd := exec.CommandContext(ctx, full[0], full[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	g.logger.Debug().Str("namespace", namespace).Strs("argv", argv).Msg("executing")

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		metrics.CommandsTotal.WithLabelValues(tool, "error").Inc()
		return "", &ToolError{
			Namespace: namespace,
			Argv:      argv,
			ExitCode:  exitCode,
			Stderr:    stderr.String(),
			Err:       err,
		}
	}

	metrics.CommandsTotal.WithLabelValues(tool, "success").Inc()
	return stdout.String(), nil
}
