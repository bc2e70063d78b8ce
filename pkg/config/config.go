package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables that override the file,
// e.g. LVS_AGENT_NAMESPACE_PREFIX or LVS_AGENT_INTERFACE_BRIDGE.
const EnvPrefix = "LVS_AGENT"

// Config is the agent configuration
type Config struct {
	NamespacePrefix string   `yaml:"namespace_prefix" split_words:"true"`
	DataDir         string   `yaml:"data_dir" split_words:"true"`
	RootHelper      []string `yaml:"root_helper" split_words:"true"`
	Tools           Tools    `yaml:"tools" split_words:"true"`

	ProbeTimeout   time.Duration `yaml:"probe_timeout" split_words:"true"`
	HealthInterval time.Duration `yaml:"health_interval" split_words:"true"`
	HealthRetries  int           `yaml:"health_retries" split_words:"true"`
	ResyncInterval time.Duration `yaml:"resync_interval" split_words:"true"`

	ReuseExistingDevice bool      `yaml:"reuse_existing_device" split_words:"true"`
	Interface           Interface `yaml:"interface" split_words:"true"`

	HTTPAddr string `yaml:"http_addr" split_words:"true"`
	GRPCAddr string `yaml:"grpc_addr" split_words:"true"`

	Log Log `yaml:"log" split_words:"true"`
}

// Tools overrides the paths of the external commands
type Tools struct {
	IP      string `yaml:"ip" split_words:"true"`
	Ipvsadm string `yaml:"ipvsadm" split_words:"true"`
	Nc      string `yaml:"nc" split_words:"true"`
}

// Paths returns the configured overrides keyed by tool name
func (t Tools) Paths() map[string]string {
	paths := make(map[string]string)
	for tool, path := range map[string]string{"ip": t.IP, "ipvsadm": t.Ipvsadm, "nc": t.Nc} {
		if path != "" {
			paths[tool] = path
		}
	}
	return paths
}

// Interface configures the driver that plugs VIP ports
type Interface struct {
	Driver       string `yaml:"driver" split_words:"true"`
	Bridge       string `yaml:"bridge" split_words:"true"`
	DevicePrefix string `yaml:"device_prefix" split_words:"true"`
	MTU          int    `yaml:"mtu" split_words:"true"`
}

// Log configures the global logger
type Log struct {
	Level string `yaml:"level" split_words:"true"`
	JSON  bool   `yaml:"json" split_words:"true"`
}

// DriverNetlink is the only interface driver built in
const DriverNetlink = "netlink"

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		NamespacePrefix:     "qlbaas-",
		DataDir:             "/var/lib/lvs-agent",
		ProbeTimeout:        time.Second,
		HealthInterval:      10 * time.Second,
		HealthRetries:       1,
		ResyncInterval:      60 * time.Second,
		ReuseExistingDevice: true,
		Interface: Interface{
			Driver:       DriverNetlink,
			DevicePrefix: "tap",
		},
		HTTPAddr: ":9273",
		GRPCAddr: ":9274",
		Log:      Log{Level: "info"},
	}
}

// Parse reads YAML from r over the defaults and then applies environment
// overrides. A nil reader yields defaults plus environment.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	if r != nil {
		data, err := io.ReadAll(r)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to apply environment: %w", err)
	}
	return cfg, nil
}

// Load parses the file at path. An empty path skips the file.
func Load(path string) (Config, error) {
	if path == "" {
		return Parse(nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Validate reports every invalid setting at once
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.NamespacePrefix) == "" {
		errs = append(errs, errors.New("namespace_prefix must not be empty"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("probe_timeout must be positive, got %s", c.ProbeTimeout))
	}
	if c.HealthInterval <= 0 {
		errs = append(errs, fmt.Errorf("health_interval must be positive, got %s", c.HealthInterval))
	}
	if c.HealthRetries <= 0 {
		errs = append(errs, fmt.Errorf("health_retries must be positive, got %d", c.HealthRetries))
	}
	if c.ResyncInterval <= 0 {
		errs = append(errs, fmt.Errorf("resync_interval must be positive, got %s", c.ResyncInterval))
	}
	if c.Interface.Driver != DriverNetlink {
		errs = append(errs, fmt.Errorf("unknown interface driver %q", c.Interface.Driver))
	}
	if c.Interface.MTU < 0 {
		errs = append(errs, fmt.Errorf("interface mtu must not be negative, got %d", c.Interface.MTU))
	}
	return errors.Join(errs...)
}
