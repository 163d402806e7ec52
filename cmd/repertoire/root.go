package main

import (
	"context"

	"github.com/spf13/cobra"
)

// Execute runs the repertoire CLI.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:          "repertoire",
		Short:        "Build chess opening repertoires from aggregate statistics",
		SilenceUsage: true,
	}
	root.AddCommand(buildCmd())
	return root.ExecuteContext(ctx)
}
