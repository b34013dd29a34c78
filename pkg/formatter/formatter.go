// Package formatter turns domain values into rows and fields for pkg/output.
package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/api"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/notifysync"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/output"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/session"
)

var (
	unreadColor = color.New(color.FgYellow, color.Bold)
	toastColor  = color.New(color.FgMagenta, color.Bold)
)

// NotificationHeaders are the columns of NotificationRows.
var NotificationHeaders = []string{"", "ID", "Message", "Link", "Received"}

// NotificationRows renders one row per notification.
func NotificationRows(list []api.Notification, now time.Time) [][]string {
	rows := make([][]string, 0, len(list))
	for _, n := range list {
		mark := ""
		if !n.IsRead {
			mark = unreadColor.Sprint("●")
		}
		rows = append(rows, []string{mark, n.ID, Truncate(n.Message, 60), n.Route(), Ago(n.CreatedAt, now)})
	}
	return rows
}

// PageFooter summarizes pagination, e.g. "page 1 of 3 (42 total)".
func PageFooter(p api.Pagination) string {
	pages := p.TotalPages
	if pages < 1 {
		pages = 1
	}
	s := fmt.Sprintf("page %d of %d (%d total)", p.Page, pages, p.Total)
	if p.HasNext {
		s += fmt.Sprintf(", next: --page %d", p.Page+1)
	}
	return s
}

// UserFields renders the logged-in user.
func UserFields(u *session.User) []output.Field {
	if u == nil {
		return nil
	}
	fields := []output.Field{
		{Key: "ID", Value: u.ID},
		{Key: "Name", Value: u.Name},
		{Key: "Email", Value: u.Email},
		{Key: "Role", Value: u.Role},
	}
	if u.Department != nil {
		dept := u.Department.Name
		if dept == "" {
			dept = u.Department.ID
		}
		fields = append(fields, output.Field{Key: "Department", Value: dept})
	}
	return fields
}

// Toast renders a toast as one line.
func Toast(t notifysync.Toast) string {
	line := toastColor.Sprint("🔔") + " " + t.Message
	if t.Route != "" {
		line += " (" + t.Route + ")"
	}
	return line
}

// Ago formats t relative to now.
func Ago(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
	return t.Format("2006-01-02")
}

// Truncate shortens s to max runes, ending in an ellipsis.
func Truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max || max < 1 {
		return s
	}
	return string(r[:max-1]) + "…"
}
