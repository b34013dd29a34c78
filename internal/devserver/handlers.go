package devserver

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusTokenVersionMismatch tells the client its session was revoked.
const StatusTokenVersionMismatch = 498

const (
	headerTokenVersion = "X-Token-Version"

	ctxUserID = "user_id"
	ctxUser   = "user"

	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
	minPassword  = 8
)

type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Success: false, Code: code, Message: message})
}

func (s *Server) setSessionCookies(c *gin.Context, access, refresh string) {
	maxAge := int(s.tokens.RefreshTTL().Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessCookie, access, maxAge, "/", "", s.cfg.SecureCookies, true)
	c.SetCookie(RefreshCookie, refresh, maxAge, "/", "", s.cfg.SecureCookies, true)
}

func (s *Server) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessCookie, "", -1, "/", "", s.cfg.SecureCookies, true)
	c.SetCookie(RefreshCookie, "", -1, "/", "", s.cfg.SecureCookies, true)
}

func (s *Server) reject(c *gin.Context, status int, reason, message string) {
	s.metrics.AuthRejections.WithLabelValues(reason).Inc()
	code := "UNAUTHORIZED"
	if status == StatusTokenVersionMismatch {
		code = "TOKEN_VERSION_MISMATCH"
	}
	abortWithError(c, status, code, message)
}

// authenticate resolves the access cookie to a user whose token version
// still matches. It returns the rejection status and reason on failure.
func (s *Server) authenticate(r *http.Request) (*User, int, string) {
	cookie, err := r.Cookie(AccessCookie)
	if err != nil || cookie.Value == "" {
		return nil, http.StatusUnauthorized, "missing_token"
	}
	claims, err := s.tokens.Parse(cookie.Value, tokenTypeAccess)
	if err != nil {
		return nil, http.StatusUnauthorized, "invalid_token"
	}
	user, err := s.store.UserByID(claims.Subject)
	if err != nil {
		return nil, http.StatusUnauthorized, "unknown_user"
	}
	if claims.TokenVersion != user.TokenVersion {
		return nil, StatusTokenVersionMismatch, "token_version"
	}
	return user, 0, ""
}

// requireSession admits requests carrying a valid access cookie whose token
// version, and the X-Token-Version header when non-zero, match the user.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, status, reason := s.authenticate(c.Request)
		if user == nil {
			msg := "Authentication required"
			if status == StatusTokenVersionMismatch {
				msg = "Session has been revoked"
			}
			s.reject(c, status, reason, msg)
			return
		}

		if h := c.GetHeader(headerTokenVersion); h != "" {
			v, err := strconv.Atoi(h)
			if err == nil && v != 0 && v != user.TokenVersion {
				s.reject(c, StatusTokenVersionMismatch, "header_version", "Session has been revoked")
				return
			}
		}

		c.Set(ctxUserID, user.ID)
		c.Set(ctxUser, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *User {
	u, _ := c.Get(ctxUser)
	user, _ := u.(*User)
	return user
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		abortWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Email and password are required")
		return
	}

	user, err := s.store.Authenticate(req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		s.metrics.AuthRejections.WithLabelValues("bad_credentials").Inc()
		abortWithError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
		return
	}
	if err != nil {
		s.log.Error("Login failed", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Login failed")
		return
	}

	access, refresh, err := s.tokens.Issue(user.ID, user.TokenVersion)
	if err != nil {
		s.log.Error("Failed to issue tokens", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Login failed")
		return
	}
	s.setSessionCookies(c, access, refresh)

	s.log.Info("User logged in", zap.String("user_id", user.ID))
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Login successful",
		"user":         user,
		"tokenVersion": user.TokenVersion,
	})
}

// handleLogout always succeeds; an absent or stale session is already over.
func (s *Server) handleLogout(c *gin.Context) {
	s.clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out successfully"})
}

func (s *Server) handleRefresh(c *gin.Context) {
	cookie, err := c.Cookie(RefreshCookie)
	if err != nil || cookie == "" {
		s.reject(c, http.StatusUnauthorized, "missing_refresh", "Refresh token required")
		return
	}
	claims, err := s.tokens.Parse(cookie, tokenTypeRefresh)
	if err != nil {
		s.reject(c, http.StatusUnauthorized, "invalid_refresh", "Invalid refresh token")
		return
	}
	user, err := s.store.UserByID(claims.Subject)
	if err != nil || claims.TokenVersion != user.TokenVersion {
		s.clearSessionCookies(c)
		s.reject(c, http.StatusUnauthorized, "stale_refresh", "Invalid refresh token")
		return
	}

	access, refresh, err := s.tokens.Issue(user.ID, user.TokenVersion)
	if err != nil {
		s.log.Error("Failed to issue tokens", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Refresh failed")
		return
	}
	s.setSessionCookies(c, access, refresh)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Token refreshed"})
}

func (s *Server) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "user": currentUser(c)})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CurrentPassword == "" {
		abortWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Current and new password are required")
		return
	}
	if len(req.NewPassword) < minPassword {
		abortWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", "New password must be at least 8 characters")
		return
	}

	user := currentUser(c)
	version, err := s.store.ChangePassword(user.ID, req.CurrentPassword, req.NewPassword)
	if errors.Is(err, ErrInvalidCredentials) {
		abortWithError(c, http.StatusBadRequest, "INVALID_PASSWORD", "Current password is incorrect")
		return
	}
	if err != nil {
		s.log.Error("Change password failed", zap.String("user_id", user.ID), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to change password")
		return
	}

	// Every session, including this one, is now stale.
	s.hub.Kick(user.ID)
	s.clearSessionCookies(c)

	s.log.Info("Password changed", zap.String("user_id", user.ID), zap.Int("token_version", version))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Password changed successfully. Please log in again.",
	})
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}

func (s *Server) handleListNotifications(c *gin.Context) {
	page := queryInt(c, "page", defaultPage)
	limit := queryInt(c, "limit", defaultLimit)
	if limit > maxLimit {
		limit = maxLimit
	}
	unreadOnly := strings.EqualFold(c.Query("unread"), "true")

	user := currentUser(c)
	list, total, err := s.store.ListNotifications(user.ID, page, limit, unreadOnly)
	if err != nil {
		s.log.Error("List notifications failed", zap.String("user_id", user.ID), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load notifications")
		return
	}
	if list == nil {
		list = []Notification{}
	}

	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"notifications": list,
		"pagination": gin.H{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": totalPages,
			"hasNext":    page < totalPages,
		},
	})
}

func (s *Server) handleStats(c *gin.Context) {
	user := currentUser(c)
	unread, total, err := s.store.Counts(user.ID)
	if err != nil {
		s.log.Error("Notification stats failed", zap.String("user_id", user.ID), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load notification stats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "unreadCount": unread, "total": total})
}

type markReadRequest struct {
	NotificationIDs []string `json:"notificationIds"`
}

func (s *Server) handleMarkRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.NotificationIDs) == 0 {
		abortWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", "notificationIds must be a non-empty array")
		return
	}

	user := currentUser(c)
	n, err := s.store.MarkRead(user.ID, req.NotificationIDs)
	if err != nil {
		s.log.Error("Mark read failed", zap.String("user_id", user.ID), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to mark notifications read")
		return
	}

	s.hub.Send(user.ID, EventNotificationsRead, gin.H{"notificationIds": req.NotificationIDs})
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Notifications marked as read",
		"modifiedCount": n,
	})
}

func (s *Server) handleMarkAllRead(c *gin.Context) {
	user := currentUser(c)
	n, err := s.store.MarkAllRead(user.ID)
	if err != nil {
		s.log.Error("Mark all read failed", zap.String("user_id", user.ID), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to mark notifications read")
		return
	}

	s.hub.Send(user.ID, EventNotificationsAllRead, gin.H{"modifiedCount": n})
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "All notifications marked as read",
		"modifiedCount": n,
	})
}

type createNotificationRequest struct {
	Type               string `json:"type"`
	Message            string `json:"message"`
	LinkedDocument     string `json:"linkedDocument"`
	LinkedDocumentType string `json:"linkedDocumentType"`
}

// handleCreateNotification adds a notification for the caller and pushes it.
// Missing fields are filled with fake data.
func (s *Server) handleCreateNotification(c *gin.Context) {
	var req createNotificationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
			return
		}
	}

	user := currentUser(c)
	n := FakeNotification(user.ID)
	if req.Message != "" {
		n.Message = req.Message
	}
	if req.Type != "" {
		n.Type = req.Type
	}
	if req.LinkedDocumentType != "" || req.LinkedDocument != "" {
		n.LinkedDocument = req.LinkedDocument
		n.LinkedDocumentType = req.LinkedDocumentType
	}

	if err := s.store.CreateNotification(n); err != nil {
		s.log.Error("Create notification failed", zap.String("user_id", user.ID), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create notification")
		return
	}

	s.hub.Send(user.ID, EventNewNotification, n)
	c.JSON(http.StatusCreated, gin.H{"success": true, "notification": n})
}

// handleRealtime authenticates the handshake from cookies before upgrading.
func (s *Server) handleRealtime(c *gin.Context) {
	user, _, reason := s.authenticate(c.Request)
	if user == nil {
		s.metrics.AuthRejections.WithLabelValues("realtime_" + reason).Inc()
		abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	c.Set(ctxUserID, user.ID)
	s.hub.Serve(c.Writer, c.Request, user.ID)
}
