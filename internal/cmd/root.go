package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/girmesh03/Task-Manager-V9-sub000/internal/app"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/config"
	clierrors "github.com/girmesh03/Task-Manager-V9-sub000/pkg/errors"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/logger"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/output"
)

var (
	verbose    bool
	configPath string
	outputFmt  string

	cfg     *config.Config
	printer *output.Printer
)

var rootCmd = &cobra.Command{
	Use:   "taskmgr",
	Short: "Task manager CLI - notifications and session from the terminal",
	Long: `taskmgr is a command-line client for the task manager backend.
Log in, check and read your notifications, or watch them arrive live.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(outputFmt)
		if err != nil {
			return err
		}
		printer = output.New(os.Stdout, format)

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.LogLevel, cfg.LogFile, verbose)
		logger.Debug("Config loaded", "file", cfg.File, "backend", cfg.BackendURL, "realtime", cfg.RealtimeURL)
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, clierrors.FormatError(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.config/taskmgr/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "text", "Output format: text, json, table")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(versionCmd)
}

// openApp builds the client from the loaded config and restores the session.
func openApp(opts ...app.Option) (*app.App, error) {
	opts = append([]app.Option{app.WithMessenger(func(msg string) { printer.Info("%s", msg) })}, opts...)
	a, err := app.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	a.Open()
	return a, nil
}

// requireLogin fails with a hint when nobody is logged in.
func requireLogin(a *app.App) error {
	if !a.Session.IsAuthenticated() {
		return clierrors.NotLoggedInError()
	}
	return nil
}
