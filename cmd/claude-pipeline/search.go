package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kylesnowschwartz/claude-pipeline/search"
)

func searchCmd() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run the search engine once and print matches as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			engine := search.New(cfg.Root)
			results, err := engine.Search(args[0], projectID)
			if err != nil {
				return fmt.Errorf("searching: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "scope the search to one project id (encoded directory name); omitted searches project names")
	return cmd
}
