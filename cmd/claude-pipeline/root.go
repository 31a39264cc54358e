// Package main wires the cobra command tree: a root command plus the tail,
// scan, search, and serve subcommands, matching the command-tree convention
// vanducng-goclaw and therealtimex-entire-cli both use for a multi-purpose
// Go CLI.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kylesnowschwartz/claude-pipeline/internal/config"
	"github.com/kylesnowschwartz/claude-pipeline/internal/logging"
)

var log = logging.For("cli")

var rootCmd = &cobra.Command{
	Use:   "claude-pipeline",
	Short: "Ingest, tail, and search Claude Code session logs",
	Long: "claude-pipeline reconstructs a structured view of Claude Code conversation\n" +
		"logs: turn-grouped messages, sub-agent traces, context-token attribution,\n" +
		"and cross-session search, with live tailing as sessions grow.",
}

var (
	flagRoot         string
	flagExtraRoots   []string
	flagFollowLatest bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagRoot, "root", "", "projects root directory (default: ~/.claude/projects)")
	pf.StringSliceVar(&flagExtraRoots, "extra-root", nil, "additional sandbox root (repeatable)")
	pf.BoolVar(&flagFollowLatest, "follow-latest", true, "automatically follow the newest session in a project")

	rootCmd.AddCommand(tailCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(serveCmd())
}

// loadConfig reads viper-sourced environment defaults, then applies the
// root command's persistent flags on top so CLI flags always win.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, err
	}
	if flagRoot != "" {
		cfg.Root = flagRoot
	}
	if len(flagExtraRoots) > 0 {
		cfg.ExtraRoots = flagExtraRoots
	}
	cfg.FollowLatest = flagFollowLatest
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error("command failed", "err", err)
		os.Exit(1)
	}
}
