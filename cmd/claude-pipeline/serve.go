package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kylesnowschwartz/claude-pipeline/cache"
	"github.com/kylesnowschwartz/claude-pipeline/coordinator"
)

// readyInfo is printed once to stdout on startup so a future GUI process can
// discover how this process is configured without parsing log lines.
type readyInfo struct {
	PID         int    `json:"pid"`
	Root        string `json:"root"`
	CacheDBPath string `json:"cacheDbPath"`
}

// serveEvent is the JSON envelope wrapping a coordinator.Event for stdout
// consumption. Kind names the underlying event type since Go interfaces
// don't marshal their dynamic type.
type serveEvent struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator and stream read-model events as JSON lines",
		Long: "Starts the Session Coordinator and Activity Tracker and streams every\n" +
			"Loaded/Updated/ActivityChanged event to stdout as a JSON line, for a future\n" +
			"GUI process to consume. The GUI transport itself is out of scope here —\n" +
			"this prints a plain JSON read model, not a wire protocol.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			metaCache, err := cache.Open(cfg.CacheDBPath)
			if err != nil {
				return fmt.Errorf("opening metadata cache: %w", err)
			}
			defer metaCache.Close()

			coord, err := coordinator.New(cfg.Root, metaCache, cfg.ExtraRoots, cfg.FollowLatest)
			if err != nil {
				return fmt.Errorf("starting coordinator: %w", err)
			}
			defer coord.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			if err := enc.Encode(readyInfo{PID: os.Getpid(), Root: cfg.Root, CacheDBPath: cfg.CacheDBPath}); err != nil {
				return err
			}

			sigc := make(chan os.Signal, 1)
			signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

			for {
				select {
				case ev, ok := <-coord.Events():
					if !ok {
						return nil
					}
					if err := enc.Encode(serveEvent{Kind: eventKind(ev), Data: ev}); err != nil {
						log.Warn("failed to encode event", "err", err)
					}
				case <-sigc:
					return nil
				}
			}
		},
	}
}

func eventKind(ev coordinator.Event) string {
	switch ev.(type) {
	case coordinator.Loaded:
		return "loaded"
	case coordinator.Updated:
		return "updated"
	case coordinator.ActivityChanged:
		return "activityChanged"
	default:
		return "unknown"
	}
}
