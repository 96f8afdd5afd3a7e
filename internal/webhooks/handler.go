package webhooks

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdminSubjectKey is the gin context key under which the admin auth
// middleware stores the authenticated token subject.
const AdminSubjectKey = "admin_subject"

// Handler handles HTTP requests for webhook subscriptions. All routes are
// admin-gated: subscriptions are operator infrastructure, not end-user state.
type Handler struct {
	svc    *Service
	auth   gin.HandlerFunc
	logger *zap.Logger
}

// NewHandler creates a new webhook Handler. auth is the admin bearer-token
// middleware; nil disables the gate (tests only).
func NewHandler(svc *Service, auth gin.HandlerFunc, logger *zap.Logger) *Handler {
	if auth == nil {
		auth = func(c *gin.Context) { c.Next() }
	}
	return &Handler{svc: svc, auth: auth, logger: logger}
}

// Register registers all webhook routes on the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	wh := rg.Group("/webhooks")
	wh.Use(h.auth)
	{
		wh.POST("", h.CreateSubscription)
		wh.GET("", h.ListSubscriptions)
		wh.DELETE("/:id", h.DeleteSubscription)
	}
}

// CreateSubscription handles POST /webhooks — creates a new subscription.
func (h *Handler) CreateSubscription(c *gin.Context) {
	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.svc.Subscribe(c.Request.Context(), c.GetString(AdminSubjectKey), &req)
	if err != nil {
		h.logger.Error("create webhook subscription", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create subscription"})
		return
	}

	// Return the secret once so the operator can store it.
	c.JSON(http.StatusCreated, gin.H{
		"subscription": sub,
		"secret":       sub.Secret,
		"note":         "Store the secret securely. It will not be shown again.",
	})
}

// ListSubscriptions handles GET /webhooks — lists all subscriptions.
func (h *Handler) ListSubscriptions(c *gin.Context) {
	subs, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list webhook subscriptions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list subscriptions"})
		return
	}
	if subs == nil {
		subs = []*Subscription{}
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions": subs, "count": len(subs)})
}

// DeleteSubscription handles DELETE /webhooks/:id — deletes a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	subID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription ID"})
		return
	}

	if err := h.svc.Unsubscribe(c.Request.Context(), subID); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		h.logger.Error("delete webhook subscription", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete subscription"})
		return
	}

	c.Status(http.StatusNoContent)
}
