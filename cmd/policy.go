package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/trust-router/internal/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and validate tuning policies",
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Parse and validate a policy file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return validatePolicy(args[0], cmd.OutOrStdout())
	},
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective policy as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		holder, err := loadPolicy()
		if err != nil {
			return err
		}
		out, err := policy.Marshal(holder.Current())
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func validatePolicy(path string, out io.Writer) error {
	p, err := policy.Load(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: ok (version %s)\n", path, p.Version) //nolint:errcheck
	return nil
}

func init() {
	policyCmd.AddCommand(policyValidateCmd, policyShowCmd)
	rootCmd.AddCommand(policyCmd)
}
