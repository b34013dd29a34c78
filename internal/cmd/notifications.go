package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/girmesh03/Task-Manager-V9-sub000/internal/app"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/api"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/cache"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/formatter"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/logger"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/notifysync"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/output"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/session"
)

var (
	notifPage       int
	notifLimit      int
	notifUnreadOnly bool
	watchMetrics    string
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif"},
	Short:   "Notification commands",
	Long:    "View and manage notifications",
}

var notificationsCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Show unread notification count",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := requireLogin(a); err != nil {
			return err
		}

		n, err := a.Sync.UnreadCount(cmd.Context())
		if err != nil {
			return err
		}
		if printer.Format() == output.FormatJSON {
			return printer.JSON(map[string]int{"unreadCount": n})
		}
		fmt.Println(n)
		return nil
	},
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := requireLogin(a); err != nil {
			return err
		}

		list, err := a.Sync.Notifications(cmd.Context(), api.ListQuery{
			Page:       notifPage,
			Limit:      notifLimit,
			UnreadOnly: notifUnreadOnly,
		})
		if err != nil {
			return err
		}

		if len(list.Notifications) == 0 && printer.Format() != output.FormatJSON {
			printer.Info("No notifications")
			return nil
		}
		rows := formatter.NotificationRows(list.Notifications, time.Now())
		if err := printer.List(formatter.NotificationHeaders, rows, list); err != nil {
			return err
		}
		if printer.Format() != output.FormatJSON {
			fmt.Println(formatter.PageFooter(list.Pagination))
		}
		return nil
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read <notification-id>...",
	Short: "Mark notifications as read",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := requireLogin(a); err != nil {
			return err
		}

		res, err := a.Sync.MarkAsRead(cmd.Context(), args)
		if err != nil {
			return err
		}
		printer.Success("Marked %d notification(s) as read", res.ModifiedCount)
		return nil
	},
}

var notificationsReadAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every notification as read",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := requireLogin(a); err != nil {
			return err
		}

		res, err := a.Sync.MarkAllAsRead(cmd.Context())
		if err != nil {
			return err
		}
		printer.Success("Marked %d notification(s) as read", res.ModifiedCount)
		return nil
	},
}

var notificationsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch for real-time notifications",
	Long: `Stream notifications as they arrive and keep the unread count current.
The stream stays open for as long as the session is valid.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(app.WithToaster(func(t notifysync.Toast) {
			fmt.Println(formatter.Toast(t))
		}))
		if err != nil {
			return err
		}
		defer a.Close()
		if err := requireLogin(a); err != nil {
			return err
		}

		if watchMetrics != "" {
			shutdown := serveMetrics(watchMetrics, a)
			defer shutdown()
		}

		return watch(ctx, a)
	},
}

func watch(ctx context.Context, a *app.App) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Ending the session ends the watch; the store has already told the
	// user why.
	unsubscribe := a.Session.Subscribe(func(st session.State) {
		if !st.IsAuthenticated {
			cancel()
		}
	})
	defer unsubscribe()

	refresh := make(chan struct{}, 1)
	unwatch := a.Cache.Subscribe(func(keys []string) {
		for _, k := range keys {
			if k == cache.KeyUnreadCount {
				select {
				case refresh <- struct{}{}:
				default:
				}
				return
			}
		}
	})
	defer unwatch()

	user := a.Session.CurrentUser()
	fmt.Println()
	printer.Info("🔔 Watching for real-time notifications")
	if user != nil {
		fmt.Printf("Connected as: %s\n", user.Email)
	}
	fmt.Println("Press Ctrl+C to stop")
	fmt.Printf("%s\n\n", strings.Repeat("─", 60))

	stopRealtime := a.StartRealtime(ctx)
	defer stopRealtime()

	last := -1
	show := func() error {
		n, err := a.Sync.UnreadCount(ctx)
		if err != nil {
			return err
		}
		if n != last {
			printer.Info("Unread: %d", n)
			last = n
		}
		return nil
	}
	if err := show(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			if !a.Session.IsAuthenticated() {
				return fmt.Errorf("session ended")
			}
			fmt.Println()
			printer.Success("Notification watcher stopped")
			return nil
		case <-refresh:
			if err := show(); err != nil {
				if ctx.Err() != nil {
					continue
				}
				logger.Warn("Failed to refresh unread count", "error", err)
			}
		}
	}
}

func serveMetrics(addr string, a *app.App) (shutdown func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func init() {
	notificationsListCmd.Flags().IntVar(&notifPage, "page", notifysync.DefaultPage, "Page number")
	notificationsListCmd.Flags().IntVar(&notifLimit, "limit", notifysync.DefaultLimit, "Results per page")
	notificationsListCmd.Flags().BoolVar(&notifUnreadOnly, "unread", false, "Only unread notifications")

	notificationsWatchCmd.Flags().StringVar(&watchMetrics, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464")

	notificationsCmd.AddCommand(notificationsCountCmd)
	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsCmd.AddCommand(notificationsReadCmd)
	notificationsCmd.AddCommand(notificationsReadAllCmd)
	notificationsCmd.AddCommand(notificationsWatchCmd)
}
