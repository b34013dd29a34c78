// Package notifysync keeps the cached unread count and notification pages
// consistent with the server. Realtime events and successful mutations mark
// cache entries stale; readers refetch on their next read.
package notifysync

import (
	"context"
	"fmt"
	"sync"

	json "github.com/json-iterator/go"

	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/api"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/cache"
	clierrors "github.com/girmesh03/Task-Manager-V9-sub000/pkg/errors"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/logger"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/session"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/websocket"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
)

// NotificationSource is the REST side of notifications.
type NotificationSource interface {
	Stats(ctx context.Context) (*api.NotificationStats, error)
	List(ctx context.Context, q api.ListQuery) (*api.NotificationListResponse, error)
	MarkAsRead(ctx context.Context, ids []string) (*api.MarkReadResponse, error)
	MarkAllAsRead(ctx context.Context) (*api.MarkReadResponse, error)
}

// Realtime hands out leases on the push channel.
type Realtime interface {
	Acquire(ctx context.Context, b websocket.Bindings) (websocket.Lease, error)
}

// SessionSource reports authentication transitions.
type SessionSource interface {
	IsAuthenticated() bool
	Subscribe(fn func(session.State)) (unsubscribe func())
}

// Toast is a transient user-visible notice.
type Toast struct {
	Message      string
	Route        string
	Notification api.Notification
}

// Toaster shows a toast.
type Toaster func(Toast)

// Option configures a Controller.
type Option func(*Controller)

// WithToaster sets where new-notification toasts go.
func WithToaster(t Toaster) Option {
	return func(c *Controller) { c.toaster = t }
}

// Controller glues realtime events to cache invalidations.
type Controller struct {
	source  NotificationSource
	cache   *cache.Cache
	rt      Realtime
	toaster Toaster

	mu    sync.Mutex
	lease websocket.Lease
}

func New(source NotificationSource, c *cache.Cache, rt Realtime, opts ...Option) *Controller {
	ctrl := &Controller{source: source, cache: c, rt: rt}
	for _, opt := range opts {
		opt(ctrl)
	}
	return ctrl
}

// Bind starts the controller whenever s becomes authenticated and stops it
// whenever s becomes unauthenticated. The returned function unbinds and stops.
func (c *Controller) Bind(ctx context.Context, s SessionSource) (unbind func()) {
	apply := func(authenticated bool) {
		if authenticated {
			if err := c.Start(ctx); err != nil {
				logger.Warn("Failed to start notification sync", "error", err)
			}
			return
		}
		c.Stop()
	}

	unsubscribe := s.Subscribe(func(st session.State) { apply(st.IsAuthenticated) })
	apply(s.IsAuthenticated())

	return func() {
		unsubscribe()
		c.Stop()
	}
}

// Start takes a realtime lease. It is a no-op while already running.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lease != nil {
		return nil
	}

	lease, err := c.rt.Acquire(ctx, c.bindings())
	if err != nil {
		return fmt.Errorf("acquire realtime channel: %w", err)
	}
	c.lease = lease
	logger.Debug("Notification sync started")
	return nil
}

// Stop releases the realtime lease and drops every cached entry, so nothing
// from this session is served to the next one.
func (c *Controller) Stop() {
	c.mu.Lock()
	lease := c.lease
	c.lease = nil
	c.mu.Unlock()

	if lease == nil {
		return
	}
	lease.Release()
	c.cache.Reset()
	logger.Debug("Notification sync stopped")
}

// Running reports whether the controller holds a realtime lease.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lease != nil
}

func (c *Controller) bindings() websocket.Bindings {
	return websocket.Bindings{
		websocket.EventConnect:              c.onResync,
		websocket.EventNotificationsRead:    c.onResync,
		websocket.EventNotificationsAllRead: c.onResync,
		websocket.EventNewNotification:      c.onNewNotification,
		websocket.EventDisconnect:           c.onDisconnect,
		websocket.EventConnectError:         c.onConnectError,
	}
}

// onResync covers events after which the count and every page may be wrong:
// a (re)connect may have missed events, and read-state changes touch both.
func (c *Controller) onResync(msg websocket.Message) {
	logger.Debug("Resync", "event", msg.Type)
	c.cache.Invalidate(cache.TagUnreadCount, cache.TagList)
}

// onNewNotification only marks the count stale; pages refetch when opened.
func (c *Controller) onNewNotification(msg websocket.Message) {
	c.cache.Invalidate(cache.TagUnreadCount)

	var n api.Notification
	if err := msg.Decode(&n); err != nil {
		logger.Warn("Malformed new_notification payload", "error", err)
	}

	if c.toaster == nil {
		return
	}
	text := n.Message
	if text == "" {
		text = "New notification"
	}
	c.toaster(Toast{Message: text, Route: n.Route(), Notification: n})
}

func (c *Controller) onDisconnect(msg websocket.Message) {
	var info websocket.DisconnectInfo
	_ = msg.Decode(&info)
	logger.Info("Notification stream disconnected", "reason", info.Reason)
}

func (c *Controller) onConnectError(msg websocket.Message) {
	var info websocket.ErrorInfo
	_ = msg.Decode(&info)
	logger.Warn("Notification stream connection error", "error", info.Message, "status", info.StatusCode)
}

// UnreadCount returns the unread count, from cache when fresh.
func (c *Controller) UnreadCount(ctx context.Context) (int, error) {
	data, err := c.cache.Get(ctx, cache.KeyUnreadCount,
		[]string{cache.TagNotification, cache.TagUnreadCount},
		func(ctx context.Context) ([]byte, []string, error) {
			stats, err := c.source.Stats(ctx)
			if err != nil {
				return nil, nil, err
			}
			data, err := json.Marshal(stats)
			return data, nil, err
		})
	if err != nil {
		return 0, err
	}

	var stats api.NotificationStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return 0, fmt.Errorf("decode cached unread count: %w", err)
	}
	return stats.UnreadCount, nil
}

// Notifications returns one page, from cache when fresh.
func (c *Controller) Notifications(ctx context.Context, q api.ListQuery) (*api.NotificationListResponse, error) {
	q = normalize(q)
	key := cache.ListKey(q.Page, q.Limit, q.UnreadOnly)

	data, err := c.cache.Get(ctx, key,
		[]string{cache.TagNotification, cache.TagList},
		func(ctx context.Context) ([]byte, []string, error) {
			list, err := c.source.List(ctx, q)
			if err != nil {
				return nil, nil, err
			}
			tags := make([]string, 0, len(list.Notifications))
			for _, n := range list.Notifications {
				tags = append(tags, cache.NotificationTag(n.ID))
			}
			data, err := json.Marshal(list)
			return data, tags, err
		})
	if err != nil {
		return nil, err
	}

	var list api.NotificationListResponse
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode cached notifications: %w", err)
	}
	return &list, nil
}

// MarkAsRead marks ids read on the server. Only after the server confirms
// are the count, the pages holding ids and the list marked stale; a failed
// call leaves the cache untouched.
func (c *Controller) MarkAsRead(ctx context.Context, ids []string) (*api.MarkReadResponse, error) {
	if len(ids) == 0 {
		return nil, clierrors.ValidationError("ids", "at least one notification id is required")
	}

	res, err := c.source.MarkAsRead(ctx, ids)
	if err != nil {
		return nil, err
	}

	tags := []string{cache.TagUnreadCount, cache.TagList}
	for _, id := range ids {
		tags = append(tags, cache.NotificationTag(id))
	}
	c.cache.Invalidate(tags...)
	return res, nil
}

// MarkAllAsRead marks everything read and, on success, every notification
// entry stale.
func (c *Controller) MarkAllAsRead(ctx context.Context) (*api.MarkReadResponse, error) {
	res, err := c.source.MarkAllAsRead(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Invalidate(cache.TagNotification)
	return res, nil
}

func normalize(q api.ListQuery) api.ListQuery {
	if q.Page <= 0 {
		q.Page = DefaultPage
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	return q
}
