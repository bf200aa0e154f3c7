package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trust-router/internal/metrics"
	"github.com/sells-group/trust-router/internal/monitoring"
	"github.com/sells-group/trust-router/internal/report"
	"github.com/sells-group/trust-router/internal/store"
)

var (
	metricsExportOut   string
	metricsExportLimit int
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Validation metrics and drift",
}

var metricsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Compute current and baseline metrics and compare them",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "metrics")
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Collector().Collect(ctx, env.Policies.Current())
		if err != nil {
			return err
		}
		return writeSnapshot(cmd.OutOrStdout(), snap)
	},
}

var metricsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one drift check, emitting records and sending alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "metrics")
		if err != nil {
			return err
		}
		defer env.Close()

		checker := monitoring.NewChecker(env.Collector(), monitoring.NewAlerter(cfg.Monitoring),
			metrics.NewLogSink(), env.Policies.Current, cfg.Monitoring)
		snap, err := checker.Check(ctx)
		if err != nil {
			return err
		}
		return writeSnapshot(cmd.OutOrStdout(), snap)
	},
}

var metricsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export metrics, drift findings and audit records to XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "metrics")
		if err != nil {
			return err
		}
		defer env.Close()

		collector := env.Collector()
		snap, err := collector.Collect(ctx, env.Policies.Current())
		if err != nil {
			return err
		}
		current, _ := collector.Windows()
		audits, err := env.Store.ListAudits(ctx, store.AuditFilter{
			Since: current.Start,
			Until: current.End,
			Limit: metricsExportLimit,
		})
		if err != nil {
			return err
		}

		if err := report.Save(metricsExportOut, report.Report{
			Metrics:  []metrics.ValidationMetrics{snap.Current, snap.Baseline},
			Findings: snap.Findings,
			Audits:   audits,
		}); err != nil {
			return err
		}

		zap.L().Info("report exported",
			zap.String("path", metricsExportOut),
			zap.Int("audits", len(audits)),
			zap.Bool("drift", snap.Drift),
		)
		fmt.Fprintln(cmd.OutOrStdout(), metricsExportOut) //nolint:errcheck
		return nil
	},
}

func writeSnapshot(w io.Writer, snap *monitoring.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func init() {
	metricsExportCmd.Flags().StringVarP(&metricsExportOut, "out", "o", "trust-report.xlsx", "output XLSX path")
	metricsExportCmd.Flags().IntVar(&metricsExportLimit, "limit", 10000, "maximum audit rows")

	metricsCmd.AddCommand(metricsShowCmd, metricsCheckCmd, metricsExportCmd)
	rootCmd.AddCommand(metricsCmd)
}
