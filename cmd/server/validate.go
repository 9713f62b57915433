package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/actionflow/internal/action/builtin"
	"github.com/gyaneshwarpardhi/actionflow/internal/config"
	"github.com/gyaneshwarpardhi/actionflow/internal/dag"
)

func newValidateCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file without starting the engine",
		Long: `Validate parses the config, checks the schema, dependency references and
cron expressions, rejects dependency cycles and builds every declared handler.
It exits non-zero on the first class of problems found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, root.configPath)
		},
	}
}

func runValidate(cmd *cobra.Command, path string) error {
	loader, err := config.NewLoader(path)
	if err != nil {
		return err
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		return err
	}
	g, err := dag.Build(cfg)
	if err != nil {
		return err
	}
	catalog := builtin.Default()
	for _, def := range cfg.Actions {
		if _, err := catalog.Build(def.Handler.Type, def.ID, def.Handler.Params); err != nil {
			return fmt.Errorf("action %s: %w", def.ID, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d actions, %d dependencies)\n", path, len(cfg.Actions), g.EdgeCount())
	return nil
}
