// Command migrate drives a one-shot migration of one Telegram account's
// conversation history into per-conversation destination supergroups.
// The wire-level Telegram session itself is out of scope (spec §1);
// this binary wires configuration, the orchestrator, and the CLI
// surface around whatever platform.Client implementation is supplied.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/tgmigrate/internal/config"
	"github.com/hrygo/tgmigrate/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "tgmigrate",
	Short: "Migrate one Telegram account's conversation history into per-conversation destination supergroups.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("session-path", "", "override TGMIGRATE_SESSION_PATH")
	rootCmd.PersistentFlags().String("progress-path", "", "override TGMIGRATE_PROGRESS_PATH")
	rootCmd.PersistentFlags().String("log-level", "", "override TGMIGRATE_LOG_LEVEL")

	for _, name := range []string{"session-path", "progress-path", "log-level"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("tgmigrate")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(migrateCmd, statusCmd, listCmd, resetCmd, exportCmd, importCmd)
	rootCmd.Version = version.String()
}

// loadConfig resolves config.Config from the environment (spec §6),
// then applies any persistent-flag overrides the operator passed on
// this invocation.
func loadConfig() config.Config {
	c := config.FromEnv()
	if v := viper.GetString("session-path"); v != "" {
		c.SessionPath = v
	}
	if v := viper.GetString("progress-path"); v != "" {
		c.ProgressPath = v
	}
	if v := viper.GetString("log-level"); v != "" {
		c.LogLevel = v
	}
	return c
}

// setupLogging installs the default slog logger, writing to stderr and,
// when logFilePath is set, tee-ing to that file as well (spec §6
// logFilePath). A file that can't be opened is logged and skipped
// rather than aborting the run.
func setupLogging(level, logFilePath string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	if logFilePath != "" {
		if f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			w = io.MultiWriter(os.Stderr, f)
		} else {
			fmt.Fprintln(os.Stderr, "warn: could not open log file, logging to stderr only:", err)
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
}

// shutdownContext returns a context canceled on the first termination
// signal, mirroring the teacher's cmd/divinesense signal wiring.
func shutdownContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, terminationSignals...)
	go func() {
		<-c
		cancel()
	}()
	return ctx, cancel
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fail(err)
	}
}
