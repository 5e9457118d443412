package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPlanCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect the stage plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the stage plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := a.plan()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "plan ok: %d stages\n", len(plan.Stages))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved stage plan as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := a.plan()
			if err != nil {
				return err
			}
			out, err := plan.Marshal()
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(out)
			return err
		},
	})
	return cmd
}
