package main

import (
	"github.com/spf13/cobra"

	tui "github.com/kylesnowschwartz/claude-pipeline/cmd/tail-claude"
)

func tailCmd() *cobra.Command {
	var dump bool

	cmd := &cobra.Command{
		Use:   "tail [session-path]",
		Short: "Live-tail a session against the Session Coordinator's read model",
		Long:  "Opens a scrolling terminal viewer subscribed to the coordinator's Loaded/Updated events for a session, auto-discovering the latest one when no path is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return tui.Run(tui.Options{SessionPath: path, Dump: dump})
		},
	}

	cmd.Flags().BoolVar(&dump, "dump", false, "render once to stdout and exit, no live tailing")
	return cmd
}
