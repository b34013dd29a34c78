package cache

import (
	"fmt"
	"strings"
)

// Notification tags.
const (
	TagNotification = "Notification"
	TagUnreadCount  = "Notification:UNREAD_COUNT"
	TagList         = "Notification:LIST"
)

// KeyUnreadCount is the singleton unread-count entry.
const KeyUnreadCount = "unread-count"

// NotificationTag tags entries that contain notification id.
func NotificationTag(id string) string {
	return TagNotification + ":" + id
}

// ListKey is the entry key of one notification list page.
func ListKey(page, limit int, unreadOnly bool) string {
	return fmt.Sprintf("list?page=%d&limit=%d&unread=%t", page, limit, unreadOnly)
}

// IsListKey reports whether key names a notification list page.
func IsListKey(key string) bool {
	return strings.HasPrefix(key, "list?")
}

// metricTag folds per-notification tags into one label value.
func metricTag(tag string) string {
	switch tag {
	case TagNotification, TagUnreadCount, TagList:
		return tag
	}
	if strings.HasPrefix(tag, TagNotification+":") {
		return TagNotification + ":<id>"
	}
	return "other"
}
