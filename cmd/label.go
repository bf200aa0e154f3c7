package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trust-router/internal/model"
	"github.com/sells-group/trust-router/internal/pipeline"
	"github.com/sells-group/trust-router/internal/report"
)

var labelFile string

var labelCmd = &cobra.Command{
	Use:   "label [audit-id outcome]",
	Short: "Record ground-truth outcomes for analyzed claims",
	Long:  "Labels one audit record (outcome is valid or invalid), or bulk-imports an XLSX sheet with audit_id and outcome columns via --file.",
	Args: func(cmd *cobra.Command, args []string) error {
		if labelFile != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var labels []report.Label
		if labelFile != "" {
			var err error
			if labels, err = report.ReadLabels(labelFile); err != nil {
				return err
			}
		} else {
			outcome, err := model.ParseOutcome(args[1])
			if err != nil {
				return err
			}
			labels = []report.Label{{AuditID: args[0], Outcome: outcome}}
		}

		env, err := initApp(ctx, "metrics")
		if err != nil {
			return err
		}
		defer env.Close()

		return applyLabels(ctx, newLabeler(env), labels, cmd.OutOrStdout())
	},
}

// newLabeler builds a pipeline that can label stored analyses without any
// model providers configured.
func newLabeler(env *appEnv) *pipeline.Pipeline {
	return pipeline.New(pipeline.Deps{
		Policies: env.Policies,
		Audits:   env.Store,
		Recorder: env.Tracker,
	})
}

type labeler interface {
	Label(ctx context.Context, auditID string, outcome model.Outcome) error
}

// applyLabels records every label, reporting failures per row. It fails if
// any label could not be applied.
func applyLabels(ctx context.Context, l labeler, labels []report.Label, out io.Writer) error {
	var failed int
	for _, lb := range labels {
		if lb.Outcome == model.OutcomeUnknown {
			failed++
			fmt.Fprintf(out, "%s: outcome must be valid or invalid\n", lb.AuditID) //nolint:errcheck
			continue
		}
		if err := l.Label(ctx, lb.AuditID, lb.Outcome); err != nil {
			failed++
			zap.L().Warn("label failed", zap.String("audit_id", lb.AuditID), zap.Error(err))
			fmt.Fprintf(out, "%s: %v\n", lb.AuditID, err) //nolint:errcheck
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", lb.AuditID, lb.Outcome) //nolint:errcheck
	}
	if failed > 0 {
		return eris.Errorf("label: %d of %d labels failed", failed, len(labels))
	}
	return nil
}

func init() {
	labelCmd.Flags().StringVar(&labelFile, "file", "", "XLSX file of audit_id,outcome rows")
	rootCmd.AddCommand(labelCmd)
}
