package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"listkeeper/internal/archive"
	"listkeeper/internal/auth"
	"listkeeper/internal/service"
	"listkeeper/internal/workflow"
)

// Handler wires HTTP routes to the list workflow.
type Handler struct {
	users     service.UserService
	workflow  *workflow.Machine
	tokens    *auth.TokenIssuer
	snapshots archive.Manager
	logger    logrus.FieldLogger
}

// NewHandler builds the handler. snapshots may be nil when archiving is disabled.
func NewHandler(users service.UserService, machine *workflow.Machine, tokens *auth.TokenIssuer, snapshots archive.Manager, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		users:     users,
		workflow:  machine,
		tokens:    tokens,
		snapshots: snapshots,
		logger:    logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware(), requestLogger(h.logger))

	api := router.Group("/api")
	{
		api.POST("/auth/register", h.register)
		api.POST("/auth/login", h.login)
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})

		authed := api.Group("")
		authed.Use(h.requireAuth())
		authed.POST("/auth/logout", h.logout)

		authed.GET("/draft", h.currentDraft)
		authed.POST("/draft/actions", h.applyAction)

		authed.GET("/review", h.review)
		authed.POST("/review/confirm", h.confirmSave)
		authed.POST("/review/delete", h.confirmDelete)
		authed.POST("/review/edit", h.editAgain)

		authed.GET("/lists", h.overview)
		authed.GET("/lists/:id", h.showList)
		authed.POST("/lists/:id/edit", h.loadForEdit)
		authed.GET("/lists/:id/snapshots", h.listSnapshots)
	}
}

type credentialsRequest struct {
	Username         string `json:"username" form:"username" binding:"required"`
	Password         string `json:"password" form:"password" binding:"required"`
	RegisterPassword string `json:"register_password" form:"register_password"`
}

type actionRequest struct {
	Action      string `json:"action" form:"action" binding:"required"`
	Name        string `json:"name" form:"name"`
	Description string `json:"description" form:"description"`
	Priority    string `json:"priority" form:"priority"`
	Index       *int   `json:"index" form:"index"`
}

func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Username, req.Password, req.RegisterPassword)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserAlreadyExists):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrInvalidRegistrationPassword):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrInvalidUsername), errors.Is(err, service.ErrInvalidPassword):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			h.logger.Errorf("register %s: %v", req.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	h.issueToken(c, http.StatusCreated, user.ID, user.Username)
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		h.logger.Errorf("authenticate %s: %v", req.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	h.issueToken(c, http.StatusOK, user.ID, user.Username)
}

// issueToken starts a fresh session: the user's draft is reset on every login.
func (h *Handler) issueToken(c *gin.Context, status int, userID int64, username string) {
	token, expires, err := h.tokens.Issue(userID, username)
	if err != nil {
		h.logger.Errorf("issue token for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	h.workflow.Start(userID)

	c.JSON(status, TokenResponse{
		Token:     token,
		ExpiresAt: expires.Format(time.RFC3339),
		UserID:    userID,
		Username:  username,
	})
}

func (h *Handler) logout(c *gin.Context) {
	h.workflow.Start(currentUser(c))
	c.Status(http.StatusNoContent)
}

func (h *Handler) currentDraft(c *gin.Context) {
	h.writeView(c, http.StatusOK, h.workflow.Current(currentUser(c)), nil)
}

func (h *Handler) applyAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.workflow.Apply(c.Request.Context(), currentUser(c), workflow.Action{
		Kind:        workflow.ActionKind(req.Action),
		Name:        req.Name,
		Description: req.Description,
		Priority:    req.Priority,
		Index:       req.Index,
	})
	h.writeView(c, http.StatusOK, view, err)
}

func (h *Handler) review(c *gin.Context) {
	view, err := h.workflow.Review(currentUser(c))
	h.writeView(c, http.StatusOK, view, err)
}

func (h *Handler) confirmSave(c *gin.Context) {
	view, err := h.workflow.ConfirmSave(c.Request.Context(), currentUser(c))
	h.writeView(c, http.StatusOK, view, err)
}

func (h *Handler) confirmDelete(c *gin.Context) {
	view, err := h.workflow.ConfirmDelete(c.Request.Context(), currentUser(c))
	h.writeView(c, http.StatusOK, view, err)
}

func (h *Handler) editAgain(c *gin.Context) {
	h.writeView(c, http.StatusOK, h.workflow.ReturnToBuilding(currentUser(c)), nil)
}

func (h *Handler) overview(c *gin.Context) {
	view, err := h.workflow.Overview(c.Request.Context(), currentUser(c))
	h.writeView(c, http.StatusOK, view, err)
}

func (h *Handler) showList(c *gin.Context) {
	id, ok := listID(c)
	if !ok {
		return
	}

	list, err := h.workflow.Show(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listToResponse(*list))
}

func (h *Handler) loadForEdit(c *gin.Context) {
	id, ok := listID(c)
	if !ok {
		return
	}

	view, err := h.workflow.LoadForEdit(c.Request.Context(), currentUser(c), id)
	h.writeView(c, http.StatusOK, view, err)
}

func (h *Handler) listSnapshots(c *gin.Context) {
	id, ok := listID(c)
	if !ok {
		return
	}
	if h.snapshots == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "snapshot archive not configured"})
		return
	}

	if _, err := h.workflow.Show(c.Request.Context(), currentUser(c), id); err != nil {
		h.writeError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	snapshots, err := h.snapshots.Snapshots(ctx, id)
	if err != nil {
		h.logger.WithField("list_id", id).Errorf("list snapshots: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "snapshot archive unavailable"})
		return
	}

	resp := make([]SnapshotResponse, len(snapshots))
	for i := range snapshots {
		resp[i] = snapshotToResponse(snapshots[i])
	}
	c.JSON(http.StatusOK, resp)
}

// writeError answers a failure that has no view attached.
func (h *Handler) writeError(c *gin.Context, err error) {
	status, resp := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.WithField("request_id", c.GetString(ctxRequestID)).Errorf("request error: %v", err)
	}
	c.JSON(status, gin.H{"error": resp})
}

func listID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid list id"})
		return 0, false
	}
	return id, true
}
