// Package app wires the client components together. Every component is
// built here and handed its dependencies; nothing is reached through
// package-level state.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/api"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/cache"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/client"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/config"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/credentials"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/logger"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/metrics"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/notifysync"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/session"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/websocket"
)

// App is one running client.
type App struct {
	Config        *config.Config
	Metrics       *metrics.Metrics
	Gateway       *client.Gateway
	Auth          *api.AuthAPI
	Notifications *api.NotificationAPI
	Session       *session.Store
	Channel       *websocket.Channel
	Cache         *cache.Cache
	Sync          *notifysync.Controller

	closers []func()
}

type options struct {
	messenger session.Messenger
	toaster   notifysync.Toaster
	transport http.RoundTripper
	persist   bool
}

// Option configures New.
type Option func(*options)

// WithMessenger sets where session messages (login, logout, revocation)
// are shown.
func WithMessenger(m session.Messenger) Option {
	return func(o *options) { o.messenger = m }
}

// WithToaster sets where new-notification toasts are shown.
func WithToaster(t notifysync.Toaster) Option {
	return func(o *options) { o.toaster = t }
}

// WithTransport sets the HTTP transport of the gateway.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithoutPersistence keeps the session and cookies in memory only.
func WithoutPersistence() Option {
	return func(o *options) { o.persist = false }
}

// New builds the client. The session is not restored until Open.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{persist: true}
	for _, opt := range opts {
		opt(&o)
	}

	m := metrics.New()

	gwOpts := []client.Option{client.WithMetrics(m)}
	if o.persist {
		gwOpts = append(gwOpts, client.WithCookieStore(credentials.NewStore(cfg.CredentialsPath())))
	}
	if o.transport != nil {
		gwOpts = append(gwOpts, client.WithTransport(o.transport))
	}
	gw, err := client.New(client.Config{
		BaseURL:   cfg.APIBaseURL(),
		Timeout:   cfg.APITimeout,
		UserAgent: cfg.UserAgent,
	}, gwOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gateway: %w", err)
	}

	authAPI := api.NewAuthAPI(gw)
	notifAPI := api.NewNotificationAPI(gw)

	storeOpts := []session.Option{}
	if o.persist {
		storeOpts = append(storeOpts, session.WithPersister(session.NewFilePersister(cfg.SessionPath())))
	}
	if o.messenger != nil {
		storeOpts = append(storeOpts, session.WithMessenger(o.messenger))
	}
	store := session.NewStore(authAPI, storeOpts...)
	gw.SetSession(store)

	chCfg := websocket.DefaultConfig(cfg.RealtimeURL)
	chCfg.Jar = gw.CookieJar()
	chCfg.ReconnectAttempts = cfg.ReconnectAttempts
	chCfg.ReconnectDelay = cfg.ReconnectDelay
	if cfg.HandshakeTimeout > 0 {
		chCfg.HandshakeTimeout = cfg.HandshakeTimeout
	}
	channel := websocket.New(chCfg, websocket.WithMetrics(m))

	c := cache.New(cache.WithMetrics(m))

	var syncOpts []notifysync.Option
	if o.toaster != nil {
		syncOpts = append(syncOpts, notifysync.WithToaster(o.toaster))
	}
	ctrl := notifysync.New(notifAPI, c, channel, syncOpts...)

	a := &App{
		Config:        cfg,
		Metrics:       m,
		Gateway:       gw,
		Auth:          authAPI,
		Notifications: notifAPI,
		Session:       store,
		Channel:       channel,
		Cache:         c,
		Sync:          ctrl,
	}

	// Cookies belong to the session; an unauthenticated client keeps none.
	a.closers = append(a.closers, store.Subscribe(func(st session.State) {
		if !st.IsAuthenticated {
			gw.ClearCookies()
		}
	}))

	return a, nil
}

// Open restores the persisted session. An unreadable session file leaves
// the client logged out.
func (a *App) Open() {
	if err := a.Session.Restore(); err != nil {
		logger.Warn("Ignoring unreadable session file", "path", a.Config.SessionPath(), "error", err)
	}
}

// StartRealtime keeps the notification sync running for as long as the
// session is authenticated. The returned function stops it.
func (a *App) StartRealtime(ctx context.Context) (stop func()) {
	unbind := a.Sync.Bind(ctx, a.Session)
	a.closers = append(a.closers, unbind)
	return unbind
}

// MetricsHandler serves the client's Prometheus registry.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.Metrics.Registry, promhttp.HandlerOpts{})
}

// Close stops background work. It does not log out.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	a.Channel.Disconnect()
}
