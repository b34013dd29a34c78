package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the client configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		file := cfg.File
		if file == "" {
			file = "(defaults)"
		}
		fields := []output.Field{
			{Key: "Config file", Value: file},
			{Key: "Backend", Value: cfg.BackendURL},
			{Key: "API base", Value: cfg.APIBaseURL()},
			{Key: "Realtime", Value: cfg.RealtimeURL},
			{Key: "API timeout", Value: cfg.APITimeout.String()},
			{Key: "Reconnect attempts", Value: strconv.Itoa(cfg.ReconnectAttempts)},
			{Key: "Reconnect delay", Value: cfg.ReconnectDelay.String()},
			{Key: "Session file", Value: cfg.SessionPath()},
			{Key: "Log level", Value: cfg.LogLevel},
		}
		raw := make(map[string]string, len(fields))
		for _, f := range fields {
			raw[f.Key] = f.Value
		}
		return printer.Record("Configuration", fields, raw)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}
