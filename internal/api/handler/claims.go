// Package handler wires the claim engine to the public HTTP API.
package handler

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/merkledrop-io/merkledrop/internal/merkle"
	"github.com/merkledrop-io/merkledrop/internal/vesting"
	"github.com/merkledrop-io/merkledrop/pkg/addr"
	"go.uber.org/zap"
)

// ClaimHandler handles HTTP requests for claims and distribution lookups.
type ClaimHandler struct {
	engine *vesting.Engine
	logger *zap.Logger
}

// NewClaimHandler creates a new ClaimHandler.
func NewClaimHandler(engine *vesting.Engine, logger *zap.Logger) *ClaimHandler {
	return &ClaimHandler{engine: engine, logger: logger}
}

// Register registers the claim and distribution routes on the given group.
func (h *ClaimHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/claims", h.SubmitClaim)
	rg.POST("/claims/batch", h.SubmitBatch)
	rg.GET("/distributions", h.ListDistributions)
	rg.GET("/distributions/:idx", h.GetDistribution)
	rg.GET("/distributions/:idx/claims/:address", h.GetClaimRecord)
}

type claimRequest struct {
	Claimant     string   `json:"claimant"     binding:"required"`
	Amount       string   `json:"amount"       binding:"required"`
	Proof        []string `json:"proof"`
	Distribution int      `json:"distribution"`
}

type batchClaimRequest struct {
	Claimants     []string   `json:"claimants"     binding:"required"`
	Amounts       []string   `json:"amounts"       binding:"required"`
	Proofs        [][]string `json:"proofs"        binding:"required"`
	Distributions []int      `json:"distributions" binding:"required"`
}

// parseClaim converts one wire-level claim into an engine request.
func parseClaim(claimant, amount string, proof []string, distribution int) (vesting.ClaimRequest, error) {
	var req vesting.ClaimRequest

	a, err := addr.Parse(claimant)
	if err != nil {
		return req, fmt.Errorf("claimant: %w", err)
	}

	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return req, fmt.Errorf("amount %q is not a decimal integer", amount)
	}

	hashes := make([]merkle.Hash, len(proof))
	for i, p := range proof {
		hashes[i], err = merkle.ParseHash(p)
		if err != nil {
			return req, fmt.Errorf("proof[%d]: %w", i, err)
		}
	}

	return vesting.ClaimRequest{
		Claimant:     a,
		Amount:       amt,
		Proof:        hashes,
		Distribution: distribution,
	}, nil
}

// SubmitClaim handles POST /claims.
//
// A claim whose tranche is already withdrawn is not an error from the
// caller's point of view; it returns 200 with a zero released amount.
func (h *ClaimHandler) SubmitClaim(c *gin.Context) {
	var body claimRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := parseClaim(body.Claimant, body.Amount, body.Proof, body.Distribution)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.Claim(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, vesting.ErrNothingToClaim) {
			rec, recErr := h.engine.Record(c.Request.Context(), req.Claimant, req.Distribution)
			if recErr != nil {
				h.logger.Error("load record after empty claim", zap.Error(recErr))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "claim lookup failed"})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"claimant":       req.Claimant,
				"distribution":   req.Distribution,
				"released":       "0",
				"claimed_so_far": rec.ClaimedSoFar.String(),
				"fully_claimed":  rec.FullyClaimed,
			})
			return
		}
		h.renderClaimError(c, err)
		return
	}

	RecordClaim("released")
	c.JSON(http.StatusOK, gin.H{"claim": result})
}

// SubmitBatch handles POST /claims/batch. Entries arrive as parallel arrays
// and the batch applies all-or-nothing: any invalid entry rejects the whole
// request with no state change.
func (h *ClaimHandler) SubmitBatch(c *gin.Context) {
	var body batchClaimRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n := len(body.Claimants)
	if len(body.Amounts) != n || len(body.Proofs) != n || len(body.Distributions) != n {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": vesting.ErrLengthMismatch.Error(),
			"code":  "length_mismatch",
		})
		return
	}

	reqs := make([]vesting.ClaimRequest, n)
	for i := 0; i < n; i++ {
		req, err := parseClaim(body.Claimants[i], body.Amounts[i], body.Proofs[i], body.Distributions[i])
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("entry %d: %s", i, err)})
			return
		}
		reqs[i] = req
	}

	results, err := h.engine.BatchClaim(c.Request.Context(), reqs)
	if err != nil {
		h.renderClaimError(c, err)
		return
	}

	RecordClaim("released")
	c.JSON(http.StatusOK, gin.H{"claims": results, "count": len(results)})
}

// renderClaimError maps engine errors onto HTTP statuses.
func (h *ClaimHandler) renderClaimError(c *gin.Context, err error) {
	var status int
	var code string

	switch {
	case errors.Is(err, vesting.ErrLengthMismatch):
		status, code = http.StatusBadRequest, "length_mismatch"
	case errors.Is(err, vesting.ErrInvalidProof):
		status, code = http.StatusForbidden, "invalid_proof"
	case errors.Is(err, vesting.ErrOutOfRange):
		status, code = http.StatusNotFound, "distribution_not_found"
	case errors.Is(err, vesting.ErrPaused):
		status, code = http.StatusConflict, "paused"
	case errors.Is(err, vesting.ErrCliffNotOver):
		status, code = http.StatusConflict, "cliff_not_over"
	case errors.Is(err, vesting.ErrNothingToClaim):
		status, code = http.StatusConflict, "nothing_to_claim"
	case errors.Is(err, vesting.ErrTransferFailed):
		status, code = http.StatusBadGateway, "transfer_failed"
	case errors.Is(err, vesting.ErrTokenNotSet):
		status, code = http.StatusServiceUnavailable, "token_not_configured"
	default:
		h.logger.Error("claim failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "claim failed"})
		return
	}

	RecordClaim(code)
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

// ListDistributions handles GET /distributions.
func (h *ClaimHandler) ListDistributions(c *gin.Context) {
	dists := h.engine.Distributions()
	c.JSON(http.StatusOK, gin.H{"distributions": dists, "count": len(dists)})
}

// GetDistribution handles GET /distributions/:idx.
func (h *ClaimHandler) GetDistribution(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid distribution index"})
		return
	}

	d, err := h.engine.Distribution(idx)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "distribution_not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"distribution": d})
}

// GetClaimRecord handles GET /distributions/:idx/claims/:address.
func (h *ClaimHandler) GetClaimRecord(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid distribution index"})
		return
	}

	claimant, err := addr.Parse(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.engine.Record(c.Request.Context(), claimant, idx)
	if err != nil {
		if errors.Is(err, vesting.ErrOutOfRange) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "distribution_not_found"})
			return
		}
		h.logger.Error("load claim record", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"claimant":       claimant,
		"distribution":   idx,
		"claimed_so_far": rec.ClaimedSoFar.String(),
		"fully_claimed":  rec.FullyClaimed,
	})
}
