package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/simplex/internal/objective"
)

func newFunctionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List the builtin objective functions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range objective.Names() {
				f, err := objective.Builtin(name)
				if err != nil {
					return err
				}
				dims := fmt.Sprintf("%d", f.Dim)
				if f.Dim == 0 {
					dims = fmt.Sprintf(">=%d", f.MinDim)
				}
				fmt.Fprintf(out, "%-12s %-5s %s\n", f.Name, dims, f.Description)
			}
			return nil
		},
	}
}
