package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kylesnowschwartz/claude-pipeline/internal/sandbox"
	"github.com/kylesnowschwartz/claude-pipeline/parser"
)

// scanProject is one project entry in scan's JSON output.
type scanProject struct {
	ProjectID   string               `json:"projectId"`
	DisplayName string               `json:"displayName"`
	Sessions    []parser.SessionInfo `json:"sessions"`
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Print discovered projects and sessions as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			entries, err := os.ReadDir(cfg.Root)
			if err != nil {
				return fmt.Errorf("reading projects root %s: %w", cfg.Root, err)
			}

			var out []scanProject
			for _, de := range entries {
				if !de.IsDir() {
					continue
				}
				projectDir := filepath.Join(cfg.Root, de.Name())
				if !sandbox.IsPathAllowed(projectDir, cfg.ExtraRoots...) {
					log.Warn("skipping project outside sandbox", "dir", sandbox.SanitizeDisplayPath(projectDir))
					continue
				}

				sessions, err := parser.DiscoverProjectSessions(projectDir)
				if err != nil {
					log.Debug("skipping unreadable project", "dir", de.Name(), "err", err)
					continue
				}
				out = append(out, scanProject{
					ProjectID:   de.Name(),
					DisplayName: parser.ExtractProjectDisplayName(de.Name()),
					Sessions:    sessions,
				})
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
