package main

import (
	"fmt"
	"os"

	"github.com/cuemby/lvs-agent/pkg/config"
	"github.com/cuemby/lvs-agent/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lvs-agent",
	Short: "lvs-agent - IPVS load balancer agent",
	Long: `lvs-agent keeps the kernel virtual server table of every load balancer
pool in step with the pool's logical configuration.

Each pool lives in its own network namespace (qlbaas-<pool id> by default)
holding the VIP interface and one masquerading service per member port.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"lvs-agent version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	addGlobalFlags(rootCmd)
	rootCmd.AddCommand(versionCmd)
}

func addGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to the agent configuration file")
	flags.String("data-dir", "", "Directory holding the local pool store")
	flags.String("namespace-prefix", "", "Prefix of pool namespaces")
	flags.StringSlice("root-helper", nil, "Command prefixed to every external command, e.g. sudo")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Log as JSON instead of console output")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "lvs-agent version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

// loadConfig reads the configuration file and environment, then applies
// any global flags that were set, validates the result and initializes
// logging.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if flags.Changed("data-dir") {
		cfg.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("namespace-prefix") {
		cfg.NamespacePrefix, _ = flags.GetString("namespace-prefix")
	}
	if flags.Changed("root-helper") {
		cfg.RootHelper, _ = flags.GetStringSlice("root-helper")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON, _ = flags.GetBool("log-json")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := log.Init(log.Config{
		Level:      cfg.Log.Level,
		JSONOutput: cfg.Log.JSON,
		Output:     os.Stderr,
	}); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
