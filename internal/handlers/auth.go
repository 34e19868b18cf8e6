package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type createUserRequest struct {
	AdminPassword string `json:"admin_password" form:"admin_password"`
	Username      string `json:"username" form:"username"`
	Password      string `json:"password" form:"password"`
}

type credentialsRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type tokenResponse struct {
	Username string `json:"username,omitempty"`
	Token    string `json:"token"`
}

// CreateUser registers an account behind the operator secret.
func (h HandlerSet) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.auth.CreateAccount(c.Request.Context(), req.AdminPassword, req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	ok(c, tokenResponse{Username: res.Identity.Username(), Token: res.Token})
}

// GetToken issues a fresh token for valid credentials, replacing the old one.
func (h HandlerSet) GetToken(c *gin.Context) {
	h.issue(c, false)
}

// ResetToken rotates the account token.
func (h HandlerSet) ResetToken(c *gin.Context) {
	h.issue(c, true)
}

func (h HandlerSet) issue(c *gin.Context, rotate bool) {
	var req credentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		token string
		err   error
	)
	if rotate {
		token, err = h.auth.RotateToken(c.Request.Context(), req.Username, req.Password)
	} else {
		token, err = h.auth.IssueToken(c.Request.Context(), req.Username, req.Password)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	ok(c, tokenResponse{Token: token})
}
