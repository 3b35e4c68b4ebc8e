package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"loadboard/internal/board"
	"loadboard/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the loadboard configuration",
	}
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration with [server] and [sync] defaults",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveInitTarget(targetPath)
			if err != nil {
				return err
			}
			if err := writeSample(target, overwrite); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "[server] api_bind is where clients reach the board (LOADBOARD_API_BIND overrides it).")
			fmt.Fprintln(out, "[sync] sets the grace, pending, debounce and resync windows used by every client.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

// resolveInitTarget expands path, falling back to the default location.
func resolveInitTarget(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		target, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return target, nil
	}
	target, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return target, nil
}

func writeSample(target string, overwrite bool) error {
	if !overwrite {
		_, err := os.Stat(target)
		switch {
		case err == nil:
			return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("check config path: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := config.CreateSample(target); err != nil {
		return fmt.Errorf("create sample config: %w", err)
	}
	return nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and print the effective settings",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if ctx.configFlag != nil {
				path = strings.TrimSpace(*ctx.configFlag)
			}
			cfg, resolved, exists, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", resolved)
			if !exists {
				fmt.Fprintln(out, "No file found; showing defaults")
			}
			printEffectiveConfig(out, cfg)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func printEffectiveConfig(out io.Writer, cfg *config.Config) {
	tracked := strings.Join(cfg.Sync.TrackedStates, ", ")
	if tracked == "" {
		tracked = "-"
	}
	rows := [][]string{
		{"server", "api_bind", cfg.Server.APIBind},
		{"server", "event_buffer", strconv.Itoa(cfg.Server.EventBuffer)},
		{"sync", "grace", cfg.Sync.Grace().String()},
		{"sync", "pending_ttl", cfg.Sync.PendingTTL().String()},
		{"sync", "debounce", cfg.Sync.Debounce().String()},
		{"sync", "resync_interval", cfg.Sync.ResyncInterval().String()},
		{"sync", "burst_threshold", strconv.Itoa(cfg.Sync.BurstThreshold)},
		{"sync", "tracked_states", tracked},
		{"paths", "database", cfg.DatabasePath()},
		{"paths", "lock", cfg.LockPath()},
		{"logging", "format", cfg.Logging.Format},
		{"logging", "level", cfg.Logging.Level},
	}
	fmt.Fprint(out, board.RenderTable([]string{"Section", "Key", "Value"}, rows, nil))
}
