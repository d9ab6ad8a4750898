package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tourcal/internal/agenda"
	"tourcal/internal/config"
	appLog "tourcal/internal/log"
)

const version = "0.3.0"

// app carries state shared by all subcommands once the config is loaded.
type app struct {
	configPath string
	verbose    bool

	cfg        *config.Config
	loc        *time.Location
	classifier *agenda.Classifier

	// now is the clock used by commands; tests pin it.
	now func() time.Time
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "tourcal",
		Short: "Tour itinerary parser and reminder scheduler",
		Long: `tourcal turns a free-text tour agenda into a structured itinerary,
tells you what is happening now and next, and schedules reminders
ahead of each activity.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.verbose {
				appLog.SetLevel(appLog.LevelDebug)
			}
			return a.loadConfig()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			appLog.Sync()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath(), "Path to config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newParseCmd(a),
		newNowCmd(a),
		newRemindCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", a.configPath, err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	classifier, err := cfg.Classifier()
	if err != nil {
		return err
	}

	a.cfg, a.loc, a.classifier = cfg, loc, classifier
	if a.now == nil {
		a.now = time.Now
	}

	appLog.Debug("effective config",
		"config_path", a.configPath,
		"timezone", cfg.Timezone,
		"reminder_lead_minutes", cfg.ReminderLeadMinutes,
		"lookahead", cfg.Lookahead,
		"poll", cfg.Poll,
	)
	return nil
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "tourcal.yaml"
	}
	return filepath.Join(dir, "tourcal", "config.yaml")
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// readInput reads a named file, or stdin for "-".
func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(name)
}

func main() {
	a := &app{}
	if err := newRootCmd(a).Execute(); err != nil {
		appLog.Error("command failed", err)
		appLog.Sync()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
