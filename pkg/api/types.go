package api

import (
	"strings"
	"time"
	"unicode"
)

// ErrorResponse is the error body the backend returns.
type ErrorResponse struct {
	Success bool                   `json:"success"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// MessageResponse is the body of endpoints that only report an outcome.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Auth Types
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Department struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type User struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	Role         string      `json:"role"`
	Department   *Department `json:"department,omitempty"`
	TokenVersion *int        `json:"tokenVersion,omitempty"`
}

// LoginResponse carries the token version either at the top level or on
// the user record, depending on the backend release.
type LoginResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	User         User   `json:"user"`
	TokenVersion *int   `json:"tokenVersion,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Notification Types
type Notification struct {
	ID                 string    `json:"id"`
	Type               string    `json:"type,omitempty"`
	Message            string    `json:"message"`
	IsRead             bool      `json:"isRead"`
	LinkedDocument     string    `json:"linkedDocument,omitempty"`
	LinkedDocumentType string    `json:"linkedDocumentType,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Route is the client route of the linked document, for example
// /tasks/<id> for a Task, or "" when nothing is linked.
func (n Notification) Route() string {
	if n.LinkedDocument == "" || n.LinkedDocumentType == "" {
		return ""
	}
	return "/" + kebab(n.LinkedDocumentType) + "s/" + n.LinkedDocument
}

type NotificationStats struct {
	Success     bool `json:"success"`
	UnreadCount int  `json:"unreadCount"`
	Total       int  `json:"total"`
}

type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
}

type NotificationListResponse struct {
	Success       bool           `json:"success"`
	Notifications []Notification `json:"notifications"`
	Pagination    Pagination     `json:"pagination"`
}

// ListQuery selects one page of notifications.
type ListQuery struct {
	Page       int
	Limit      int
	UnreadOnly bool
}

type MarkReadRequest struct {
	NotificationIDs []string `json:"notificationIds"`
}

type MarkReadResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	ModifiedCount int    `json:"modifiedCount"`
}

func kebab(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
