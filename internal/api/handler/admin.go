package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/merkledrop-io/merkledrop/internal/merkle"
	"github.com/merkledrop-io/merkledrop/internal/token"
	"github.com/merkledrop-io/merkledrop/internal/vesting"
	"github.com/merkledrop-io/merkledrop/internal/webhooks"
	"go.uber.org/zap"
)

// AdminHandler handles the operator surface of the claim service: pausing
// distributions, setting a deferred Merkle root, and wiring the token
// ledger. Every route requires an operator bearer token.
type AdminHandler struct {
	engine *vesting.Engine
	ledger token.Ledger // staged ledger, wired into the engine on demand
	auth   gin.HandlerFunc
	logger *zap.Logger
}

// NewAdminHandler creates a new AdminHandler. ledger is the configured but
// not yet wired token ledger that POST /token hands to the engine. auth is
// the admin bearer middleware; nil disables the gate (tests only).
func NewAdminHandler(engine *vesting.Engine, ledger token.Ledger, auth gin.HandlerFunc, logger *zap.Logger) *AdminHandler {
	if auth == nil {
		auth = func(c *gin.Context) { c.Next() }
	}
	return &AdminHandler{engine: engine, ledger: ledger, auth: auth, logger: logger}
}

// Register registers the admin routes on the given router group.
func (h *AdminHandler) Register(rg *gin.RouterGroup) {
	admin := rg.Group("/admin")
	admin.Use(h.auth)
	{
		admin.POST("/distributions/:idx/pause", h.PauseDistribution)
		admin.POST("/distributions/:idx/unpause", h.UnpauseDistribution)
		admin.PUT("/distributions/:idx/root", h.SetMerkleRoot)
		admin.POST("/token", h.WireToken)
	}
}

// distIndex parses the :idx path parameter.
func distIndex(c *gin.Context) (int, bool) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid distribution index"})
		return 0, false
	}
	return idx, true
}

// renderAdminError maps engine admin errors onto HTTP statuses.
func (h *AdminHandler) renderAdminError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, vesting.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": "owner_renounced"})
	case errors.Is(err, vesting.ErrOutOfRange):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "distribution_not_found"})
	case errors.Is(err, vesting.ErrRootAlreadySet):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "root_already_set"})
	case errors.Is(err, vesting.ErrTokenAlreadySet):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "token_already_set"})
	default:
		h.logger.Error("admin operation failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// PauseDistribution handles POST /admin/distributions/:idx/pause.
func (h *AdminHandler) PauseDistribution(c *gin.Context) {
	idx, ok := distIndex(c)
	if !ok {
		return
	}

	if err := h.engine.Pause(idx); err != nil {
		h.renderAdminError(c, err)
		return
	}

	SetPausedGauge(idx, true)
	h.logger.Info("admin paused distribution",
		zap.Int("distribution", idx),
		zap.String("admin", c.GetString(webhooks.AdminSubjectKey)),
	)
	c.JSON(http.StatusOK, gin.H{"distribution": idx, "paused": true})
}

// UnpauseDistribution handles POST /admin/distributions/:idx/unpause.
func (h *AdminHandler) UnpauseDistribution(c *gin.Context) {
	idx, ok := distIndex(c)
	if !ok {
		return
	}

	if err := h.engine.Unpause(idx); err != nil {
		h.renderAdminError(c, err)
		return
	}

	SetPausedGauge(idx, false)
	h.logger.Info("admin unpaused distribution",
		zap.Int("distribution", idx),
		zap.String("admin", c.GetString(webhooks.AdminSubjectKey)),
	)
	c.JSON(http.StatusOK, gin.H{"distribution": idx, "paused": false})
}

type setRootRequest struct {
	Root string `json:"root" binding:"required"`
}

// SetMerkleRoot handles PUT /admin/distributions/:idx/root. The root can be
// assigned exactly once per distribution.
func (h *AdminHandler) SetMerkleRoot(c *gin.Context) {
	idx, ok := distIndex(c)
	if !ok {
		return
	}

	var body setRootRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	root, err := merkle.ParseHash(body.Root)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.engine.SetMerkleRoot(idx, root); err != nil {
		h.renderAdminError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"distribution": idx, "root": root.String()})
}

// WireToken handles POST /admin/token — hands the staged token ledger to
// the engine. One-time; with owner renouncement configured this is also the
// last admin call that will ever succeed.
func (h *AdminHandler) WireToken(c *gin.Context) {
	if h.ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no token ledger configured", "code": "token_not_configured"})
		return
	}

	if err := h.engine.SetToken(h.ledger); err != nil {
		h.renderAdminError(c, err)
		return
	}

	h.logger.Info("admin wired token ledger",
		zap.String("admin", c.GetString(webhooks.AdminSubjectKey)),
		zap.Bool("owner_renounced", h.engine.OwnerRenounced()),
	)
	c.JSON(http.StatusOK, gin.H{
		"token_configured": true,
		"owner_renounced":  h.engine.OwnerRenounced(),
	})
}
