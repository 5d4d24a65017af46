package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"leadpool-crm/internal/activity"
	"leadpool-crm/internal/auth"
	"leadpool-crm/internal/importer"
	"leadpool-crm/internal/leads"
	"leadpool-crm/internal/outreach"
	"leadpool-crm/internal/rbac"
	"leadpool-crm/internal/realtime"
	"leadpool-crm/internal/settings"
	"leadpool-crm/internal/stats"
	"leadpool-crm/internal/users"
	"leadpool-crm/pkg/logger"
	"leadpool-crm/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Users    *users.Service
	Leads    *leads.Service
	Activity *activity.Service
	Importer *importer.Engine
	Outreach *outreach.Service
	Settings *settings.Service
	Stats    *stats.Service
	Feed     *realtime.Feed
	Metrics  *metrics.Metrics

	// LoginLimiter throttles the public login routes; nil disables it.
	LoginLimiter *RateLimiter
	// StreamHeartbeat is the SSE keep-alive interval.
	StreamHeartbeat time.Duration
}

var validate = validator.New()

var timeNow = time.Now

// bindJSON decodes and validates the body, writing a 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "email":
			parts = append(parts, field+" must be a valid email")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of %s", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// actor reads the verified identity set by auth.RequireAccessToken.
func actor(c *gin.Context) leads.Actor {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	return leads.Actor{ID: uid, Admin: rbac.IsAdmin(role)}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// queryTime accepts RFC3339 or a bare date.
func queryTime(c *gin.Context, key string) (time.Time, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC3339 or YYYY-MM-DD", key)
	}
	return t, nil
}

// writeError maps domain errors onto status codes. Unknown errors are logged
// and reported as a bare 500.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.From(c.Request.Context()).Error("request failed", "path", c.FullPath(), "err", err)
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, leads.ErrNotFound),
		errors.Is(err, users.ErrNotFound),
		errors.Is(err, settings.ErrNotFound),
		errors.Is(err, importer.ErrRunNotFound):
		return http.StatusNotFound

	case errors.Is(err, leads.ErrAlreadyAssigned),
		errors.Is(err, importer.ErrSyncInProgress),
		errors.Is(err, users.ErrAdminExists):
		return http.StatusConflict

	case errors.Is(err, leads.ErrNotOwner),
		errors.Is(err, users.ErrInactive):
		return http.StatusForbidden

	case errors.Is(err, users.ErrInvalidCredentials):
		return http.StatusUnauthorized

	case errors.Is(err, leads.ErrValidation),
		errors.Is(err, users.ErrValidation),
		errors.Is(err, users.ErrSelfAction),
		errors.Is(err, users.ErrBootstrapDisabled),
		errors.Is(err, settings.ErrValidation),
		errors.Is(err, activity.ErrInvalidActivity),
		errors.Is(err, stats.ErrInvalidRequest),
		errors.Is(err, outreach.ErrNoPhone),
		errors.Is(err, importer.ErrSyncDisabled),
		errors.Is(err, importer.ErrEmptyFile),
		errors.Is(err, importer.ErrMissingColumns),
		errors.Is(err, importer.ErrNoValidRows),
		errors.Is(err, importer.ErrUnsupported):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}
