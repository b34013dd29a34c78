// Package client is the HTTP gateway every REST call goes through. It
// attaches the session token version, keeps the cookie credentials and
// recovers from expired access tokens with a single silent refresh.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/json-iterator/go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"

	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/credentials"
	clierrors "github.com/girmesh03/Task-Manager-V9-sub000/pkg/errors"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/logger"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/metrics"
)

const (
	// HeaderTokenVersion carries the session token version on every request.
	HeaderTokenVersion = "X-Token-Version"

	// StatusTokenVersionMismatch is the non-standard status the backend
	// returns when a token belongs to a revoked session generation.
	StatusTokenVersionMismatch = 498

	DefaultRefreshPath = "/auth/refresh"
)

// Session is the part of the session store the gateway depends on.
type Session interface {
	TokenVersion() int
	ForceRevoke(reason string)
}

// Config configures a Gateway.
type Config struct {
	// BaseURL is the REST root, for example http://localhost:4000/api.
	BaseURL     string
	Timeout     time.Duration
	UserAgent   string
	RefreshPath string
}

// Request describes one REST call.
type Request struct {
	Method string
	Path   string
	Query  map[string]string
	Body   interface{}

	// NoReauth skips the refresh/revoke handling. Used by the auth
	// endpoints themselves.
	NoReauth bool
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithCookieStore persists the cookie jar between runs.
func WithCookieStore(store *credentials.Store) Option {
	return func(g *Gateway) { g.cookieStore = store }
}

// WithMetrics records request and refresh counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithTransport sets the base round tripper. It is still wrapped for tracing.
func WithTransport(rt http.RoundTripper) Option {
	return func(g *Gateway) { g.transport = rt }
}

// Gateway wraps a resty client with the reauthentication policy.
type Gateway struct {
	cfg         Config
	baseURL     *url.URL
	http        *resty.Client
	jar         *sharedJar
	cookieStore *credentials.Store
	metrics     *metrics.Metrics
	transport   http.RoundTripper

	mu      sync.RWMutex
	session Session

	refreshGroup singleflight.Group
}

// New builds a gateway. Call SetSession before issuing requests that need
// a token version; until then version 0 is sent.
func New(cfg Config, opts ...Option) (*Gateway, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("client: base URL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("client: invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = DefaultRefreshPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	jar, err := newSharedJar()
	if err != nil {
		return nil, err
	}

	g := &Gateway{cfg: cfg, baseURL: u, jar: jar}
	for _, opt := range opts {
		opt(g)
	}

	base := g.transport
	if base == nil {
		base = http.DefaultTransport
	}

	g.http = resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetCookieJar(jar).
		SetTransport(otelhttp.NewTransport(base))
	g.http.JSONMarshal = json.Marshal
	g.http.JSONUnmarshal = json.Unmarshal
	if cfg.UserAgent != "" {
		g.http.SetHeader("User-Agent", cfg.UserAgent)
	}

	g.http.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		req.Header.Set(HeaderTokenVersion, strconv.Itoa(g.tokenVersion()))
		logger.Debug("HTTP Request", "method", req.Method, "url", req.URL)
		return nil
	})

	g.http.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logger.Debug("HTTP Response", "status", resp.StatusCode(), "url", resp.Request.URL)
		if g.metrics != nil {
			method := resp.Request.Method
			g.metrics.HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode())).Inc()
			g.metrics.HTTPRequestDuration.WithLabelValues(method).Observe(resp.Time().Seconds())
		}
		g.saveCookies()
		return nil
	})

	if err := g.loadCookies(); err != nil {
		logger.Warn("Failed to restore cookies", "path", g.cookieStore.Path(), "error", err)
	}

	return g, nil
}

// SetSession binds the session store. The gateway and the store depend on
// each other, so the binding happens after both exist.
func (g *Gateway) SetSession(s Session) {
	g.mu.Lock()
	g.session = s
	g.mu.Unlock()
}

// CookieJar is shared with the realtime channel so its handshake carries the
// same credentials as REST calls.
func (g *Gateway) CookieJar() http.CookieJar {
	return g.jar
}

// BaseURL returns the REST root.
func (g *Gateway) BaseURL() string {
	return g.cfg.BaseURL
}

// ClearCookies forgets every cookie and removes the persisted copy.
func (g *Gateway) ClearCookies() {
	g.jar.reset()
	if g.cookieStore != nil {
		if err := g.cookieStore.Delete(); err != nil {
			logger.Warn("Failed to delete cookie store", "error", err)
		}
	}
}

// Do sends req. For requests without NoReauth a 401 on the first attempt
// triggers one refresh and one retry; a 498 on any attempt revokes the
// session. Other statuses are returned as they are.
func (g *Gateway) Do(ctx context.Context, req *Request) (*resty.Response, error) {
	if req.NoReauth {
		return g.send(ctx, req)
	}

	state := stateInitial
	for {
		resp, err := g.send(ctx, req)
		if err != nil {
			return resp, err
		}

		switch status := resp.StatusCode(); {
		case status == StatusTokenVersionMismatch:
			logger.Warn("Token version mismatch", "path", req.Path, "state", state)
			g.revoke(clierrors.MsgSecuritySessionRevoked, "version_mismatch")
			return resp, clierrors.SessionRevokedError(clierrors.MsgSecuritySessionRevoked, status)

		case status == http.StatusUnauthorized && state == stateInitial:
			state = stateRefreshing
			logger.Debug("Access token rejected, refreshing", "path", req.Path)
			if err := g.refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return resp, ctx.Err()
				}
				state = stateFailed
				logger.Warn("Session refresh failed", "path", req.Path, "state", state, "error", err)
				g.revoke(clierrors.MsgSessionExpired, "refresh_failed")
				return resp, clierrors.SessionExpiredError(status)
			}
			state = stateRetrying

		default:
			if state == stateRetrying {
				state = stateSucceeded
				logger.Debug("Retried request completed", "path", req.Path, "status", status, "state", state)
			}
			return resp, nil
		}
	}
}

// refresh performs at most one refresh per caller. Callers that arrive while
// a refresh is running share its outcome.
func (g *Gateway) refresh(ctx context.Context) error {
	ch := g.refreshGroup.DoChan("refresh", func() (interface{}, error) {
		resp, err := g.send(context.WithoutCancel(ctx), &Request{
			Method:   http.MethodPost,
			Path:     g.cfg.RefreshPath,
			NoReauth: true,
		})
		if err == nil && !resp.IsSuccess() {
			err = fmt.Errorf("refresh rejected: %s", resp.Status())
		}
		g.countRefresh(err)
		return nil, err
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) send(ctx context.Context, req *Request) (*resty.Response, error) {
	r := g.http.R().SetContext(ctx)
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}
	if req.Body != nil {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.Path)
	if err != nil {
		return resp, clierrors.CategorizeError(err)
	}
	return resp, nil
}

func (g *Gateway) revoke(reason, label string) {
	if g.metrics != nil {
		g.metrics.RevocationsTotal.WithLabelValues(label).Inc()
	}

	g.mu.RLock()
	s := g.session
	g.mu.RUnlock()
	if s == nil {
		logger.Warn("No session bound, cannot revoke", "reason", reason)
		return
	}
	s.ForceRevoke(reason)
}

func (g *Gateway) tokenVersion() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return 0
	}
	return g.session.TokenVersion()
}

func (g *Gateway) countRefresh(err error) {
	if g.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	g.metrics.RefreshesTotal.WithLabelValues(result).Inc()
}

func (g *Gateway) loadCookies() error {
	if g.cookieStore == nil {
		return nil
	}
	creds, err := g.cookieStore.Load()
	if err != nil {
		return err
	}
	if creds == nil || creds.BaseURL != g.cfg.BaseURL {
		return nil
	}
	g.jar.SetCookies(g.baseURL, creds.HTTPCookies())
	logger.Debug("Restored cookies", "count", len(creds.Cookies))
	return nil
}

func (g *Gateway) saveCookies() {
	if g.cookieStore == nil {
		return
	}
	creds := credentials.FromHTTPCookies(g.cfg.BaseURL, g.jar.Cookies(g.baseURL))
	if err := g.cookieStore.Save(creds); err != nil {
		logger.Warn("Failed to save cookies", "error", err)
	}
}
