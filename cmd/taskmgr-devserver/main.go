package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/girmesh03/Task-Manager-V9-sub000/internal/devserver"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	defaults := devserver.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "taskmgr-devserver",
		Short:         "Run the local task manager backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is fine; flags and the environment still apply.
			_ = godotenv.Load()

			cfg := devserver.Config{
				Addr:          v.GetString("addr"),
				DSN:           v.GetString("dsn"),
				JWTSecret:     v.GetString("jwt_secret"),
				AccessTTL:     v.GetDuration("access_ttl"),
				RefreshTTL:    v.GetDuration("refresh_ttl"),
				Seed:          v.GetBool("seed"),
				SecureCookies: v.GetBool("secure_cookies"),
			}
			if cfg.DSN == "" {
				cfg.DSN = devserver.MemoryDSN()
			}
			if cfg.JWTSecret == "" {
				cfg.JWTSecret = defaults.JWTSecret
			}

			log := devserver.NewLogger(v.GetString("log_level"), v.GetString("log_file"))
			defer log.Sync()

			srv, err := devserver.New(cfg, log)
			if err != nil {
				return err
			}
			defer srv.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.Run(ctx); err != nil {
				log.Error("Server stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.String("addr", defaults.Addr, "listen address")
	f.String("dsn", "", "sqlite DSN (default: private in-memory database)")
	f.String("jwt-secret", "", "token signing secret (default: random per run)")
	f.Duration("access-ttl", defaults.AccessTTL, "access token lifetime")
	f.Duration("refresh-ttl", defaults.RefreshTTL, "refresh token lifetime")
	f.Bool("seed", true, "create the demo account and fake notifications")
	f.Bool("secure-cookies", false, "mark session cookies Secure")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.String("log-file", "", "also write JSON logs to this file")

	for _, name := range []string{"addr", "dsn", "jwt-secret", "access-ttl", "refresh-ttl", "seed", "secure-cookies", "log-level", "log-file"} {
		_ = v.BindPFlag(strings.ReplaceAll(name, "-", "_"), f.Lookup(name))
	}
	v.SetEnvPrefix("TASKMGR_DEVSERVER")
	v.AutomaticEnv()

	return cmd
}
