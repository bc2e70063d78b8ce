package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/cuemby/lvs-agent/pkg/controlplane"
	"github.com/cuemby/lvs-agent/pkg/events"
	"github.com/cuemby/lvs-agent/pkg/ipvs"
	"github.com/cuemby/lvs-agent/pkg/reconciler"
	"github.com/cuemby/lvs-agent/pkg/storage"
	"github.com/cuemby/lvs-agent/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply -f FILE",
	Short: "Store pool manifests and converge their tables",
	Long: `Store one or more pool manifests and bring their tables in line.

A manifest is a pool's logical configuration in YAML; several may be
separated by "---". Each one is compared with the stored configuration and
the resulting lifecycle events are handled in order, so a new VIP is
plugged with a reset while member edits only touch the table.

Examples:
  # Apply a pool
  lvs-agent apply -f pool.yaml

  # Re-plug and rebuild from scratch
  lvs-agent apply -f pool.yaml --reset`,
	RunE: runApply,
}

var teardownCmd = &cobra.Command{
	Use:   "teardown POOL_ID",
	Short: "Flush a pool's table and release its namespace",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeardown,
}

var removeMemberCmd = &cobra.Command{
	Use:   "remove-member POOL_ID MEMBER_ID",
	Short: "Remove a member and purge services left empty",
	Args:  cobra.ExactArgs(2),
	RunE:  runRemoveMember,
}

var tableCmd = &cobra.Command{
	Use:   "table POOL_ID",
	Short: "Show a pool's virtual server table",
	Args:  cobra.ExactArgs(1),
	RunE:  runTable,
}

var statsCmd = &cobra.Command{
	Use:   "stats POOL_ID",
	Short: "Show a pool's traffic counters",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

var healthCmd = &cobra.Command{
	Use:   "health POOL_ID",
	Short: "Probe a pool's members",
	Args:  cobra.ExactArgs(1),
	RunE:  runHealth,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "Manifest file to apply, - for stdin (required)")
	applyCmd.Flags().Bool("reset", false, "Plug the VIP and flush the table before applying")
	_ = applyCmd.MarkFlagRequired("file")

	teardownCmd.Flags().Bool("forget", false, "Also delete the pool from the store")

	removeMemberCmd.Flags().String("address", "", "Member address, when the member is not stored")
	removeMemberCmd.Flags().Int("port", 0, "Member protocol port, when the member is not stored")

	for _, c := range []*cobra.Command{tableCmd, statsCmd, healthCmd} {
		c.Flags().StringP("output", "o", "text", "Output format (text, yaml, json)")
	}
	healthCmd.Flags().Bool("report", false, "Record the results in the store")

	rootCmd.AddCommand(applyCmd, teardownCmd, removeMemberCmd, tableCmd, statsCmd, healthCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	reset, _ := cmd.Flags().GetBool("reset")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if filename != "-" {
		f, err := os.Open(filename)
		if err != nil {
			return fmt.Errorf("failed to read file: %v", err)
		}
		defer f.Close()
		in = f
	}
	manifests, err := readManifests(in)
	if err != nil {
		return err
	}

	a, err := newAgent(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.seedPorts(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if reset {
		for _, m := range manifests {
			if err := a.store.PutPool(m); err != nil {
				return err
			}
			if err := a.engine.Refresh(ctx, m.Pool.ID, true); err != nil {
				return fmt.Errorf("pool %s: %w", m.Pool.ID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Pool %s reset and applied\n", m.Pool.ID)
		}
		return nil
	}

	dispatcher := reconciler.NewDispatcher(a.engine, a.cp, nil)
	return applyManifests(ctx, a.store, dispatcher.Handle, manifests, cmd.OutOrStdout())
}

// readManifests decodes every YAML document in r as a pool configuration.
func readManifests(r io.Reader) ([]*types.LogicalConfig, error) {
	dec := yaml.NewDecoder(r)
	var manifests []*types.LogicalConfig
	for {
		var cfg types.LogicalConfig
		err := dec.Decode(&cfg)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %v", err)
		}
		if cfg.Pool.ID == "" {
			return nil, fmt.Errorf("manifest %d: pool.id is required", len(manifests)+1)
		}
		manifests = append(manifests, &cfg)
	}
	if len(manifests) == 0 {
		return nil, errors.New("no manifests found")
	}
	return manifests, nil
}

// applyManifests stores each manifest and hands the events derived from the
// previous configuration to handle. A failing event does not stop the rest.
func applyManifests(ctx context.Context, store storage.Store, handle func(context.Context, *events.Event) error, manifests []*types.LogicalConfig, out io.Writer) error {
	var errs []error
	for _, m := range manifests {
		old, err := store.GetPool(m.Pool.ID)
		if err != nil && !errors.Is(err, controlplane.ErrPoolNotFound) {
			return err
		}
		if err := store.PutPool(m); err != nil {
			return err
		}

		evs := events.Diff(old, m)
		if len(evs) == 0 {
			fmt.Fprintf(out, "Pool %s unchanged\n", m.Pool.ID)
			continue
		}
		failed := false
		for _, ev := range evs {
			if err := handle(ctx, ev); err != nil {
				failed = true
				errs = append(errs, fmt.Errorf("pool %s: %s: %w", m.Pool.ID, ev.Type, err))
			}
		}
		if !failed {
			fmt.Fprintf(out, "✓ Pool %s applied (%d events)\n", m.Pool.ID, len(evs))
		}
	}
	return errors.Join(errs...)
}

func runTeardown(cmd *cobra.Command, args []string) error {
	poolID := args[0]
	forget, _ := cmd.Flags().GetBool("forget")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newAgent(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.seedPorts(); err != nil {
		return err
	}

	if err := a.engine.Teardown(cmd.Context(), poolID); err != nil {
		return err
	}
	if forget {
		if err := a.store.DeletePool(poolID); err != nil && !errors.Is(err, controlplane.ErrPoolNotFound) {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Pool %s torn down\n", poolID)
	return nil
}

func runRemoveMember(cmd *cobra.Command, args []string) error {
	poolID, memberID := args[0], args[1]
	address, _ := cmd.Flags().GetString("address")
	port, _ := cmd.Flags().GetInt("port")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newAgent(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	member, err := a.store.DeleteMember(poolID, memberID)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrMemberNotFound) || errors.Is(err, controlplane.ErrPoolNotFound):
		if address == "" || port == 0 {
			return fmt.Errorf("%w; pass --address and --port to remove it from the table anyway", err)
		}
		member = types.Member{ID: memberID, PoolID: poolID, Address: address, ProtocolPort: port}
	default:
		return err
	}

	pool, err := a.store.GetPool(poolID)
	if err != nil && !errors.Is(err, controlplane.ErrPoolNotFound) {
		return err
	}
	if err := a.engine.RemoveMember(cmd.Context(), member, pool); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Member %s removed from pool %s\n", memberID, poolID)
	return nil
}

func runTable(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newAgent(cfg, false)
	if err != nil {
		return err
	}

	services, err := a.engine.Snapshot(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), output, services, func(w io.Writer) error {
		_, err := io.WriteString(w, ipvs.FormatListing(services))
		return err
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newAgent(cfg, false)
	if err != nil {
		return err
	}

	stats, err := a.engine.Stats(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), output, stats, func(w io.Writer) error {
		_, err := io.WriteString(w, ipvs.FormatStats(stats))
		return err
	})
}

func runHealth(cmd *cobra.Command, args []string) error {
	poolID := args[0]
	output, _ := cmd.Flags().GetString("output")
	report, _ := cmd.Flags().GetBool("report")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newAgent(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	results, err := a.engine.CollectHealth(ctx, poolID)
	if err != nil {
		return err
	}
	if report {
		for _, h := range results {
			if err := a.cp.ReportMemberHealth(ctx, poolID, h); err != nil {
				return err
			}
		}
	}

	return render(cmd.OutOrStdout(), output, results, func(w io.Writer) error {
		return writeHealth(w, results)
	})
}

func writeHealth(w io.Writer, results []types.MemberHealth) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MEMBER\tSTATUS\tFAILED CHECKS")
	for _, h := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", h.MemberID, h.Status, h.FailedChecks)
	}
	return tw.Flush()
}

// render writes v as YAML or JSON, or calls text for the default format.
func render(w io.Writer, format string, v interface{}, text func(io.Writer) error) error {
	switch format {
	case "", "text":
		return text(w)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
