package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gogotex/membership/internal/users"
	"github.com/gogotex/membership/pkg/middleware"
)

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// ValidateUserRequest is the body of POST /users/validate.
type ValidateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ChangePasswordRequest is the body of POST /users/:username/password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// UpdateUserRequest is the body of PUT /users/:username. Email is required;
// send "" to clear it.
type UpdateUserRequest struct {
	Email       *string    `json:"email"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// MembershipHandler exposes users.Service and users.Directory over HTTP.
type MembershipHandler struct {
	svc    users.Service
	dir    *users.Directory
	logger zerolog.Logger
}

func NewMembershipHandler(svc users.Service, dir *users.Directory, logger zerolog.Logger) *MembershipHandler {
	return &MembershipHandler{svc: svc, dir: dir, logger: logger.With().Str("handler", "membership").Logger()}
}

// Register mounts the routes on rg. limit guards the credential endpoints and
// admin guards management and directory routes; nil means no guard.
func (h *MembershipHandler) Register(rg *gin.RouterGroup, limit, admin gin.HandlerFunc) {
	limit = orPass(limit)
	admin = orPass(admin)

	rg.POST("/users", h.CreateUser)
	rg.POST("/users/validate", limit, h.ValidateUser)
	rg.POST("/users/:username/password", limit, h.ChangePassword)

	rg.PUT("/users/:username", admin, h.UpdateUser)
	rg.DELETE("/users/:username", admin, h.DeleteUser)
	rg.GET("/users/:username", admin, h.GetUser)
	rg.GET("/users/id/:id", admin, h.GetUserByID)
	rg.GET("/users", admin, h.ListUsers)
	rg.GET("/usernames", admin, h.GetUserNameByEmail)
}

func orPass(h gin.HandlerFunc) gin.HandlerFunc {
	if h == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return h
}

// CreateUser accepts { username, password, email } and returns the new user.
func (h *MembershipHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, status := h.svc.CreateUser(c.Request.Context(), middleware.Application(c), req.Username, req.Password, req.Email)
	switch status {
	case users.StatusSuccess:
		c.JSON(http.StatusCreated, u)
	case users.StatusInvalidUserName, users.StatusInvalidPassword, users.StatusInvalidEmail:
		c.JSON(http.StatusBadRequest, gin.H{"error": status.Err().Error(), "status": status.String()})
	case users.StatusDuplicateUserName, users.StatusDuplicateEmail:
		c.JSON(http.StatusConflict, gin.H{"error": status.Err().Error(), "status": status.String()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "status": status.String()})
	}
}

// ValidateUser checks credentials and records the login time on success.
func (h *MembershipHandler) ValidateUser(c *gin.Context) {
	var req ValidateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ok, err := h.svc.CheckPassword(c.Request.Context(), middleware.Application(c), req.Username, req.Password, true)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"valid": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (h *MembershipHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ok, err := h.svc.ChangePassword(c.Request.Context(), middleware.Application(c), c.Param("username"), req.OldPassword, req.NewPassword)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": users.ErrInvalidCredentials.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MembershipHandler) UpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Email == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	update := users.UserUpdate{
		Username:      c.Param("username"),
		Email:         *req.Email,
		LastLoginDate: req.LastLoginAt,
	}
	if req.CreatedAt != nil {
		update.CreationDate = *req.CreatedAt
	}
	app := middleware.Application(c)
	if err := h.svc.UpdateUser(c.Request.Context(), app, update); err != nil {
		h.fail(c, err)
		return
	}
	u, err := h.dir.GetUser(c.Request.Context(), app, update.Username)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *MembershipHandler) DeleteUser(c *gin.Context) {
	// related data has no separate home, so this flag is informational
	related := c.Query("deleteAllRelatedData") != "false"
	if _, err := h.svc.DeleteUser(c.Request.Context(), middleware.Application(c), c.Param("username"), related); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MembershipHandler) GetUser(c *gin.Context) {
	u, err := h.dir.GetUser(c.Request.Context(), middleware.Application(c), c.Param("username"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *MembershipHandler) GetUserByID(c *gin.Context) {
	u, err := h.dir.GetUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// ListUsers pages through users, optionally filtered by ?name= or ?email=.
func (h *MembershipHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("pageSize", strconv.Itoa(users.DefaultPageSize)))
	app := middleware.Application(c)
	ctx := c.Request.Context()

	var (
		res *users.Page
		err error
	)
	switch {
	case c.Query("name") != "":
		res, err = h.dir.FindUsersByName(ctx, app, c.Query("name"), page, size)
	case c.Query("email") != "":
		res, err = h.dir.FindUsersByEmail(ctx, app, c.Query("email"), page, size)
	default:
		res, err = h.dir.GetAllUsers(ctx, app, page, size)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *MembershipHandler) GetUserNameByEmail(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email query parameter is required"})
		return
	}
	name, err := h.dir.GetUserNameByEmail(c.Request.Context(), middleware.Application(c), email)
	if err != nil {
		h.fail(c, err)
		return
	}
	if name == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": users.ErrUserNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": name})
}

// fail maps service errors onto HTTP statuses. Provider errors are logged
// where they happen and reported without detail.
func (h *MembershipHandler) fail(c *gin.Context, err error) {
	switch {
	case users.IsProviderError(err):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	case errors.Is(err, users.ErrDuplicateEmail), errors.Is(err, users.ErrDuplicateUserName):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, users.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, users.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": users.ErrInvalidCredentials.Error()})
	case errors.Is(err, users.ErrInvalidUsername), errors.Is(err, users.ErrInvalidPassword),
		errors.Is(err, users.ErrInvalidEmail), errors.Is(err, users.ErrPolicyViolation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("unexpected membership error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
