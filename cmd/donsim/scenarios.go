package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/donsched/internal/sim"
)

func newScenariosCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios [name...]",
		Short: "List or run the built-in scenarios",
		Long:  "Without arguments lists every scenario. With names, runs each scenario and prints the state it produces.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, s := range sim.Scenarios() {
					fmt.Fprintf(out, "%-10s %s\n", s.Name, s.Description)
				}
				return nil
			}

			for _, name := range args {
				s, ok := sim.Lookup(name)
				if !ok {
					return fmt.Errorf("unknown scenario %q", name)
				}
				fmt.Fprintf(out, "== %s\n", s.Name)
				if err := s.Run(out, root.logger.WithName(s.Name)); err != nil {
					return fmt.Errorf("scenario %s: %w", s.Name, err)
				}
			}
			return nil
		},
	}
}
