package main

import (
	"github.com/spf13/cobra"

	"github.com/tatrishvili/sae302/internal/rules"
)

func (a *app) rulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the effective rules as YAML",
		Long: `Print the effective rule set in the rules file format.

The output can be edited and passed back with --rules.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			rt, err := a.load()
			if err != nil {
				return err
			}
			return rules.Dump(a.stdout, rt.rules)
		},
	}
}
