package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"incentives-engine/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the incentives configuration",
}

var configLintCmd = &cobra.Command{
	Use:   "lint [path]",
	Short: "Validate the incentives config and report suspicious rules",
	Long: `Loads the document with the same validation the server applies, then
reports rules that are valid but probably wrong, such as a min code that is
also a payable code. Exits non-zero on any finding.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := vcfg.GetString(config.KeyConfigPath)
		if len(args) == 1 {
			path = args[0]
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		findings := cfg.Lint()
		for _, f := range findings {
			fmt.Fprintf(out, "%s: %s\n", path, f)
		}
		if len(findings) > 0 {
			return fmt.Errorf("%d finding(s) in %s", len(findings), path)
		}
		fmt.Fprintf(out, "%s: ok\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configLintCmd)
}
