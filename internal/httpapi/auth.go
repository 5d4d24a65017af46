package httpapi

import (
	"errors"
	"net/http"

	"leadpool-crm/internal/auth"
	"leadpool-crm/internal/users"

	"github.com/gin-gonic/gin"
)

type phoneLoginRequest struct {
	Phone string `json:"phone" validate:"required"`
}

type passwordLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LoginPhone is the team login: the phone number identifies the account.
func (h Handlers) LoginPhone(c *gin.Context) {
	var req phoneLoginRequest
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.Users.LoginByPhone(c.Request.Context(), req.Phone)
	h.finishLogin(c, "phone", sess, err)
}

func (h Handlers) LoginPassword(c *gin.Context) {
	var req passwordLoginRequest
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.Users.LoginByPassword(c.Request.Context(), req.Email, req.Password)
	h.finishLogin(c, "password", sess, err)
}

func (h Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.Users.Refresh(c.Request.Context(), req.RefreshToken)
	h.finishLogin(c, "refresh", sess, err)
}

func (h Handlers) finishLogin(c *gin.Context, method string, sess users.Session, err error) {
	switch {
	case err == nil:
		h.Metrics.ObserveLogin(method, "ok")
	case errors.Is(err, users.ErrInvalidCredentials), errors.Is(err, users.ErrInactive):
		h.Metrics.ObserveLogin(method, "rejected")
	default:
		h.Metrics.ObserveLogin(method, "error")
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// SetupAdmin creates the first admin from configured credentials.
func (h Handlers) SetupAdmin(c *gin.Context) {
	u, err := h.Users.BootstrapAdmin(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": u})
}

func (h Handlers) Me(c *gin.Context) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	u, err := h.Users.Get(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// --- Admin user management ---

type userStatusRequest struct {
	Status users.Status `json:"status" validate:"required,oneof=Active Inactive"`
}

func (h Handlers) ListUsers(c *gin.Context) {
	out, err := h.Users.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

func (h Handlers) CreateUser(c *gin.Context) {
	var req users.CreateInput
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.Users.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h Handlers) DeleteUser(c *gin.Context) {
	if err := h.Users.Delete(c.Request.Context(), actor(c).ID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) SetUserStatus(c *gin.Context) {
	var req userStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.Users.SetStatus(c.Request.Context(), actor(c).ID, c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
