package notifysync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/api"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/cache"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/session"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/websocket"
)

type fakeSource struct {
	mu         sync.Mutex
	unread     int
	pages      map[int][]api.Notification
	statsCalls int
	listCalls  int
	marked     [][]string
	markErr    error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		unread: 3,
		pages: map[int][]api.Notification{
			1: {{ID: "n1", Message: "one"}, {ID: "n2", Message: "two"}},
			2: {{ID: "n3", Message: "three"}},
		},
	}
}

func (f *fakeSource) Stats(ctx context.Context) (*api.NotificationStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls++
	return &api.NotificationStats{Success: true, UnreadCount: f.unread}, nil
}

func (f *fakeSource) List(ctx context.Context, q api.ListQuery) (*api.NotificationListResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return &api.NotificationListResponse{
		Success:       true,
		Notifications: append([]api.Notification(nil), f.pages[q.Page]...),
		Pagination:    api.Pagination{Page: q.Page, Limit: q.Limit},
	}, nil
}

func (f *fakeSource) MarkAsRead(ctx context.Context, ids []string) (*api.MarkReadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return nil, f.markErr
	}
	f.marked = append(f.marked, ids)
	f.unread -= len(ids)
	return &api.MarkReadResponse{Success: true, ModifiedCount: len(ids)}, nil
}

func (f *fakeSource) MarkAllAsRead(ctx context.Context) (*api.MarkReadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return nil, f.markErr
	}
	n := f.unread
	f.unread = 0
	return &api.MarkReadResponse{Success: true, ModifiedCount: n}, nil
}

func (f *fakeSource) counts() (stats, list int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statsCalls, f.listCalls
}

type fakeLease struct{ rt *fakeRealtime }

func (l *fakeLease) Release() {
	l.rt.mu.Lock()
	defer l.rt.mu.Unlock()
	l.rt.released++
	l.rt.bindings = nil
}

type fakeRealtime struct {
	mu       sync.Mutex
	acquired int
	released int
	bindings websocket.Bindings
	err      error
}

func (r *fakeRealtime) Acquire(ctx context.Context, b websocket.Bindings) (websocket.Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.acquired++
	r.bindings = b
	return &fakeLease{rt: r}, nil
}

func (r *fakeRealtime) emit(t *testing.T, event websocket.Event, payload interface{}) {
	t.Helper()
	r.mu.Lock()
	fn := r.bindings[event]
	r.mu.Unlock()
	require.NotNil(t, fn, "no handler bound for %s", event)

	msg := websocket.Message{Type: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		msg.Payload = data
	}
	fn(msg)
}

func (r *fakeRealtime) stats() (acquired, released int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acquired, r.released
}

type fakeSession struct {
	mu   sync.Mutex
	auth bool
	subs []func(session.State)
}

func (s *fakeSession) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

func (s *fakeSession) Subscribe(fn func(session.State)) func() {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	idx := len(s.subs) - 1
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.subs[idx] = nil
		s.mu.Unlock()
	}
}

func (s *fakeSession) set(auth bool) {
	s.mu.Lock()
	s.auth = auth
	subs := append([]func(session.State){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(session.State{IsAuthenticated: auth})
		}
	}
}

func newController(t *testing.T, opts ...Option) (*Controller, *fakeSource, *fakeRealtime, *cache.Cache) {
	t.Helper()
	src := newFakeSource()
	rt := &fakeRealtime{}
	c := cache.New()
	ctrl := New(src, c, rt, opts...)
	require.NoError(t, ctrl.Start(context.Background()))
	return ctrl, src, rt, c
}

func TestUnreadCountIsCachedUntilInvalidated(t *testing.T) {
	ctrl, src, rt, _ := newController(t)
	ctx := context.Background()

	n, err := ctrl.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = ctrl.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	stats, _ := src.counts()
	assert.Equal(t, 1, stats)

	src.mu.Lock()
	src.unread = 4
	src.mu.Unlock()
	rt.emit(t, websocket.EventNewNotification, api.Notification{ID: "n9", Message: "hello"})

	n, err = ctrl.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	stats, _ = src.counts()
	assert.Equal(t, 2, stats)
}

func TestNewNotificationLeavesPagesFresh(t *testing.T) {
	ctrl, src, rt, c := newController(t)
	ctx := context.Background()

	_, err := ctrl.UnreadCount(ctx)
	require.NoError(t, err)
	_, err = ctrl.Notifications(ctx, api.ListQuery{})
	require.NoError(t, err)

	rt.emit(t, websocket.EventNewNotification, api.Notification{ID: "n9"})

	count, _ := c.Peek(cache.KeyUnreadCount)
	page, _ := c.Peek(cache.ListKey(DefaultPage, DefaultLimit, false))
	assert.True(t, count.Stale)
	assert.False(t, page.Stale)

	_, err = ctrl.Notifications(ctx, api.ListQuery{})
	require.NoError(t, err)
	_, lists := src.counts()
	assert.Equal(t, 1, lists)
}

func TestResyncEventsInvalidateCountAndPages(t *testing.T) {
	for _, event := range []websocket.Event{
		websocket.EventConnect,
		websocket.EventNotificationsRead,
		websocket.EventNotificationsAllRead,
	} {
		t.Run(string(event), func(t *testing.T) {
			ctrl, _, rt, c := newController(t)
			ctx := context.Background()

			_, err := ctrl.UnreadCount(ctx)
			require.NoError(t, err)
			_, err = ctrl.Notifications(ctx, api.ListQuery{Page: 1})
			require.NoError(t, err)
			_, err = ctrl.Notifications(ctx, api.ListQuery{Page: 2})
			require.NoError(t, err)

			rt.emit(t, event, nil)

			for _, key := range c.Keys() {
				e, _ := c.Peek(key)
				assert.True(t, e.Stale, key)
			}
			assert.Len(t, c.Keys(), 3)
		})
	}
}

func TestDisconnectAndErrorEventsDoNotInvalidate(t *testing.T) {
	ctrl, _, rt, c := newController(t)
	_, err := ctrl.UnreadCount(context.Background())
	require.NoError(t, err)

	rt.emit(t, websocket.EventDisconnect, websocket.DisconnectInfo{Reason: websocket.ReasonTransportClose})
	rt.emit(t, websocket.EventConnectError, websocket.ErrorInfo{Message: "refused"})

	e, _ := c.Peek(cache.KeyUnreadCount)
	assert.False(t, e.Stale)
}

func TestNotificationsDefaultsAndTags(t *testing.T) {
	ctrl, _, _, c := newController(t)

	list, err := ctrl.Notifications(context.Background(), api.ListQuery{})
	require.NoError(t, err)
	require.Len(t, list.Notifications, 2)
	assert.Equal(t, DefaultPage, list.Pagination.Page)
	assert.Equal(t, DefaultLimit, list.Pagination.Limit)

	e, ok := c.Peek(cache.ListKey(1, 20, false))
	require.True(t, ok)
	assert.ElementsMatch(t, []string{
		cache.TagNotification, cache.TagList,
		cache.NotificationTag("n1"), cache.NotificationTag("n2"),
	}, e.Tags)
}

func TestMarkAsReadInvalidatesAfterServerConfirms(t *testing.T) {
	ctrl, src, _, c := newController(t)
	ctx := context.Background()

	_, err := ctrl.UnreadCount(ctx)
	require.NoError(t, err)
	_, err = ctrl.Notifications(ctx, api.ListQuery{Page: 1})
	require.NoError(t, err)
	_, err = ctrl.Notifications(ctx, api.ListQuery{Page: 2})
	require.NoError(t, err)

	var seen []string
	c.Subscribe(func(keys []string) {
		// The server has already recorded the mutation when entries go stale.
		src.mu.Lock()
		assert.Len(t, src.marked, 1)
		src.mu.Unlock()
		seen = append(seen, keys...)
	})

	res, err := ctrl.MarkAsRead(ctx, []string{"n1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ModifiedCount)
	assert.ElementsMatch(t, []string{
		cache.KeyUnreadCount,
		cache.ListKey(1, 20, false),
		cache.ListKey(2, 20, false),
	}, seen)

	n, err := ctrl.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMarkAsReadFailureLeavesCacheUntouched(t *testing.T) {
	ctrl, src, _, c := newController(t)
	ctx := context.Background()

	_, err := ctrl.UnreadCount(ctx)
	require.NoError(t, err)

	src.markErr = errors.New("boom")
	_, err = ctrl.MarkAsRead(ctx, []string{"n1"})
	assert.Error(t, err)
	_, err = ctrl.MarkAllAsRead(ctx)
	assert.Error(t, err)

	e, _ := c.Peek(cache.KeyUnreadCount)
	assert.False(t, e.Stale)
}

func TestMarkAsReadRequiresIDs(t *testing.T) {
	ctrl, src, _, _ := newController(t)
	_, err := ctrl.MarkAsRead(context.Background(), nil)
	assert.Error(t, err)
	assert.Empty(t, src.marked)
}

func TestMarkAllAsReadInvalidatesEverything(t *testing.T) {
	ctrl, _, _, c := newController(t)
	ctx := context.Background()

	_, _ = ctrl.UnreadCount(ctx)
	_, _ = ctrl.Notifications(ctx, api.ListQuery{Page: 1})
	_, _ = ctrl.Notifications(ctx, api.ListQuery{Page: 1, UnreadOnly: true})

	_, err := ctrl.MarkAllAsRead(ctx)
	require.NoError(t, err)

	for _, key := range c.Keys() {
		e, _ := c.Peek(key)
		assert.True(t, e.Stale, key)
	}

	n, err := ctrl.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestToastOnNewNotification(t *testing.T) {
	var toasts []Toast
	_, _, rt, _ := newController(t, WithToaster(func(ts Toast) { toasts = append(toasts, ts) }))

	rt.emit(t, websocket.EventNewNotification, api.Notification{
		ID: "n1", Message: "Task assigned", LinkedDocument: "t1", LinkedDocumentType: "Task",
	})
	rt.emit(t, websocket.EventNewNotification, nil)

	require.Len(t, toasts, 2)
	assert.Equal(t, "Task assigned", toasts[0].Message)
	assert.Equal(t, "/tasks/t1", toasts[0].Route)
	assert.Equal(t, "New notification", toasts[1].Message)
	assert.Empty(t, toasts[1].Route)
}

func TestStartIsIdempotentAndStopResetsCache(t *testing.T) {
	ctrl, _, rt, c := newController(t)
	require.NoError(t, ctrl.Start(context.Background()))

	acquired, _ := rt.stats()
	assert.Equal(t, 1, acquired)
	assert.True(t, ctrl.Running())

	_, err := ctrl.UnreadCount(context.Background())
	require.NoError(t, err)

	ctrl.Stop()
	ctrl.Stop()
	_, released := rt.stats()
	assert.Equal(t, 1, released)
	assert.False(t, ctrl.Running())
	assert.Empty(t, c.Keys())
}

func TestStartReportsAcquireError(t *testing.T) {
	rt := &fakeRealtime{err: fmt.Errorf("closed")}
	ctrl := New(newFakeSource(), cache.New(), rt)
	assert.Error(t, ctrl.Start(context.Background()))
	assert.False(t, ctrl.Running())
}

func TestBindFollowsSession(t *testing.T) {
	rt := &fakeRealtime{}
	ctrl := New(newFakeSource(), cache.New(), rt)
	sess := &fakeSession{}

	unbind := ctrl.Bind(context.Background(), sess)
	assert.False(t, ctrl.Running())

	sess.set(true)
	assert.True(t, ctrl.Running())

	sess.set(false)
	assert.False(t, ctrl.Running())

	sess.set(true)
	acquired, released := rt.stats()
	assert.Equal(t, 2, acquired)
	assert.Equal(t, 1, released)

	unbind()
	assert.False(t, ctrl.Running())
	sess.set(true)
	assert.False(t, ctrl.Running())
}

func TestBindStartsWhenAlreadyAuthenticated(t *testing.T) {
	rt := &fakeRealtime{}
	ctrl := New(newFakeSource(), cache.New(), rt)

	unbind := ctrl.Bind(context.Background(), &fakeSession{auth: true})
	defer unbind()
	assert.True(t, ctrl.Running())
}
