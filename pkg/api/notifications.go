package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/client"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/logger"
)

// NotificationAPI talks to the /notifications endpoints.
type NotificationAPI struct {
	gw Doer
}

func NewNotificationAPI(gw Doer) *NotificationAPI {
	return &NotificationAPI{gw: gw}
}

// Stats retrieves the unread notification count
func (n *NotificationAPI) Stats(ctx context.Context) (*NotificationStats, error) {
	logger.Debug("Fetching notification stats")

	resp, err := n.gw.Do(ctx, &client.Request{Method: http.MethodGet, Path: "/notifications/stats"})

	var stats NotificationStats
	if err := decode(resp, err, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// List retrieves one page of notifications
func (n *NotificationAPI) List(ctx context.Context, q ListQuery) (*NotificationListResponse, error) {
	logger.Debug("Fetching notifications", "page", q.Page, "limit", q.Limit, "unread", q.UnreadOnly)

	query := map[string]string{}
	if q.Page > 0 {
		query["page"] = strconv.Itoa(q.Page)
	}
	if q.Limit > 0 {
		query["limit"] = strconv.Itoa(q.Limit)
	}
	if q.UnreadOnly {
		query["unread"] = "true"
	}

	resp, err := n.gw.Do(ctx, &client.Request{Method: http.MethodGet, Path: "/notifications", Query: query})

	var list NotificationListResponse
	if err := decode(resp, err, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// MarkAsRead marks the given notifications as read
func (n *NotificationAPI) MarkAsRead(ctx context.Context, ids []string) (*MarkReadResponse, error) {
	logger.Debug("Marking notifications as read", "count", len(ids))

	resp, err := n.gw.Do(ctx, &client.Request{
		Method: http.MethodPatch,
		Path:   "/notifications/read",
		Body:   MarkReadRequest{NotificationIDs: ids},
	})

	var out MarkReadResponse
	if err := decode(resp, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkAllAsRead marks all notifications as read
func (n *NotificationAPI) MarkAllAsRead(ctx context.Context) (*MarkReadResponse, error) {
	logger.Debug("Marking all notifications as read")

	resp, err := n.gw.Do(ctx, &client.Request{Method: http.MethodPost, Path: "/notifications/read-all"})

	var out MarkReadResponse
	if err := decode(resp, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
