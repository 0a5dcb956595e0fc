// Package commands implements the desktopctl command tree.
package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Christopher-Hayes/mutter-desktop/config"
	"github.com/Christopher-Hayes/mutter-desktop/events"
	"github.com/Christopher-Hayes/mutter-desktop/internal/logging"
	"github.com/Christopher-Hayes/mutter-desktop/postgres"
	"github.com/Christopher-Hayes/mutter-desktop/wsapi"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Configuration constants
const (
	defaultRectWait = 2 * time.Second

	// Events waiting for the sinks, and how long one delivery may take.
	recordQueueSize = 64
	recordTimeout   = 15 * time.Second

	defaultHistoryLimit = 20
)

// NewRoot builds the desktopctl command tree.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "desktopctl",
		Short:         "Query and control the desktop through the GNOME Shell desktop extension",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			debug, _ := cmd.Flags().GetBool("debug")
			verbose, _ := cmd.Flags().GetBool("verbose")
			logging.Configure(debug, verbose)
			logging.Debugf("Running %s", cmd.CommandPath())
		},
	}

	rect := &cobra.Command{
		Use:   "rect",
		Short: "Print the screen geometry",
		Args:  cobra.ExactArgs(0),
		RunE:  runRect,
	}

	wallpaper := &cobra.Command{
		Use:   "wallpaper",
		Short: "Get or set the wallpaper",
	}

	wallpaperGet := &cobra.Command{
		Use:   "get",
		Short: "Print the current wallpaper path",
		Args:  cobra.ExactArgs(0),
		RunE:  runWallpaperGet,
	}

	wallpaperSet := &cobra.Command{
		Use:   "set <path>",
		Short: "Use the image at path as the wallpaper",
		Args:  cobra.ExactArgs(1),
		RunE:  runWallpaperSet,
	}

	watch := &cobra.Command{
		Use:   "watch",
		Short: "Print screen geometry changes until interrupted",
		Args:  cobra.ExactArgs(0),
		RunE:  runWatch,
	}

	history := &cobra.Command{
		Use:   "history",
		Short: "Print the most recent recorded events from PostgreSQL",
		Args:  cobra.ExactArgs(0),
		RunE:  runHistory,
	}

	root.AddCommand(rect)
	root.AddCommand(wallpaper)
	wallpaper.AddCommand(wallpaperGet)
	wallpaper.AddCommand(wallpaperSet)
	root.AddCommand(watch)
	root.AddCommand(history)

	flags := root.PersistentFlags()
	flags.String("config", config.DefaultPath(), "path to the YAML config file")
	flags.String("env-file", ".env", "path to a .env file with environment overrides")
	flags.String("transport", config.TransportDBus, "how to reach the desktop server: dbus or socket")
	flags.String("socket", "", "unix socket path for the socket transport")
	flags.String("timeout", "", "per-request timeout, e.g. 5s (default: wait indefinitely)")
	flags.String("postgres", "", "PostgreSQL connection string for recording events")
	flags.String("webhook", "", "webhook URL for recording events")
	flags.Bool("debug", false, "enable debug logging")
	flags.Bool("verbose", false, "enable verbose logging")

	rect.Flags().Duration("wait", defaultRectWait, "how long to wait for the server to report the geometry")
	rect.Flags().Bool("json", false, "use JSON output format")

	history.Flags().Int("limit", defaultHistoryLimit, "maximum number of events to print")
	history.Flags().Bool("json", false, "use JSON output format")

	return root
}

// start opens a session and applies the merged logging settings.
func start(cmd *cobra.Command) (*session, error) {
	s, err := openSession(cmd)
	if err != nil {
		return nil, err
	}
	logging.Configure(s.cfg.Debug, s.cfg.Verbose)
	return s, nil
}

func closeSession(s *session) {
	if err := s.Close(); err != nil {
		logging.Debugf("Closing session: %v", err)
	}
}

func runRect(cmd *cobra.Command, args []string) error {
	wait, err := cmd.Flags().GetDuration("wait")
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	s, err := start(cmd)
	if err != nil {
		return err
	}
	defer closeSession(s)

	rect := s.desktop.ScreenRect()
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case rect = <-s.recorder.Changes():
		case <-timer.C:
			logging.Warningf("No screen geometry reported within %v", wait)
		case <-s.loop.Done():
			return s.loop.Err()
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", " ")
		return enc.Encode(rect)
	}
	fmt.Fprintln(out, rect)
	return nil
}

func runWallpaperGet(cmd *cobra.Command, args []string) error {
	s, err := start(cmd)
	if err != nil {
		return err
	}
	defer closeSession(s)

	ctx, cancel := s.requestContext(cmd.Context())
	defer cancel()

	path, err := s.desktop.Wallpaper(ctx)
	if err != nil {
		return err
	}
	record(ctx, s.sinks, events.NewWallpaperQueried(path))

	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runWallpaperSet(cmd *cobra.Command, args []string) error {
	// The server resolves paths against its own working directory.
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", args[0], err)
	}
	if len(path) >= wsapi.MaxTextLength {
		return fmt.Errorf("wallpaper path is %d bytes, the limit is %d: %w", len(path), wsapi.MaxTextLength-1, wsapi.ErrTextTooLong)
	}

	s, err := start(cmd)
	if err != nil {
		return err
	}
	defer closeSession(s)

	ctx, cancel := s.requestContext(cmd.Context())
	defer cancel()

	ok, err := s.desktop.SetWallpaper(ctx, path)
	if err != nil {
		return err
	}
	record(ctx, s.sinks, events.NewWallpaperSet(path, ok))

	if !ok {
		return fmt.Errorf("the desktop server refused wallpaper %s\n\nTroubleshooting:\n  1. Check the file exists and is a readable image\n  2. Run with --debug to see the exchanged messages", path)
	}
	logging.Successf("Wallpaper set to %s", path)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := start(cmd)
	if err != nil {
		return err
	}
	defer closeSession(s)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logging.Infof("Watching screen geometry (press Ctrl+C to stop)")
	out := cmd.OutOrStdout()
	for {
		select {
		case rect := <-s.recorder.Changes():
			fmt.Fprintf(out, "%s [%s]\n", rect, time.Now().Format("15:04:05"))
		case <-sigChan:
			color.Yellow("\nShutting down desktop watcher...")
			return nil
		case <-s.loop.Done():
			return s.loop.Err()
		case <-cmd.Context().Done():
			return nil
		}
	}
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	// History reads the database only, so no desktop connection is needed.
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logging.Configure(cfg.Debug, cfg.Verbose)
	if cfg.Postgres == "" {
		return fmt.Errorf("no PostgreSQL database configured\n\nSet via:\n  1. POSTGRES_CONNECTION_STRING environment variable\n  2. --postgres flag\n  3. postgres: in the config file")
	}

	client, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		return err
	}
	defer client.Close()
	client.DebugMode = cfg.Debug

	stored, err := client.GetRecentEvents(cmd.Context(), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", " ")
		return enc.Encode(stored)
	}
	if len(stored) == 0 {
		logging.Infof("No events recorded yet")
		return nil
	}
	for _, ev := range stored {
		fmt.Fprintln(out, formatEvent(ev.Event))
	}
	return nil
}

// formatEvent renders one history line: time, kind, details.
func formatEvent(ev events.Event) string {
	var detail string
	switch ev.Kind {
	case events.KindWallpaperSet:
		status := "refused"
		if ev.Success {
			status = "ok"
		}
		detail = fmt.Sprintf("%s (%s)", ev.Wallpaper, status)
	case events.KindWallpaperQueried:
		detail = ev.Wallpaper
	case events.KindScreenRectChanged:
		detail = ev.Rect.String()
	}
	return fmt.Sprintf("%s  %s  %s",
		ev.OccurredAt.Local().Format("2006-01-02 15:04:05"),
		logging.ColorKey("%-19s", ev.Kind),
		logging.ColorValue("%s", detail))
}
