// Package client is the Go SDK for the merkledrop claim service. It wraps
// the HTTP API: submitting claims, inspecting distributions, and the
// operator surface behind an admin bearer token.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-2xx response from the claim service, carrying the
// machine-readable code the server attached, when present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("merkledrop: HTTP %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("merkledrop: HTTP %d: %s", e.StatusCode, e.Message)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Claim is one claim entry as the SDK sends it: hex-encoded address and
// proof hashes, decimal amount.
type Claim struct {
	Claimant     string   `json:"claimant"`
	Amount       string   `json:"amount"`
	Proof        []string `json:"proof"`
	Distribution int      `json:"distribution"`
}

// ClaimResult is the outcome of an applied claim.
type ClaimResult struct {
	Claimant     string   `json:"claimant"`
	Distribution int      `json:"distribution"`
	Round        int      `json:"round"`
	Released     *big.Int `json:"released"`
	ClaimedSoFar *big.Int `json:"claimed_so_far"`
	FullyClaimed bool     `json:"fully_claimed"`
}

// Distribution mirrors the server's distribution snapshot.
type Distribution struct {
	Index         int       `json:"index"`
	MerkleRoot    string    `json:"merkle_root"`
	CliffDeadline time.Time `json:"cliff_deadline"`
	TGEPercent    int       `json:"tge_percent"`
	TotalRounds   int       `json:"total_rounds"`
	Paused        bool      `json:"paused"`
}

// ClaimRecord is the per-beneficiary bookkeeping state.
type ClaimRecord struct {
	Claimant     string `json:"claimant"`
	Distribution int    `json:"distribution"`
	ClaimedSoFar string `json:"claimed_so_far"`
	FullyClaimed bool   `json:"fully_claimed"`
}

// Client is the SDK entry point.
type Client struct {
	base       string
	httpClient *http.Client
	adminToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAdminToken attaches an operator bearer token to admin requests.
func WithAdminToken(token string) Option {
	return func(c *Client) { c.adminToken = token }
}

// New creates a Client for the service at base, e.g. "http://localhost:8085".
func New(base string, opts ...Option) *Client {
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// do executes one API call, decoding a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, reqBody, out any, admin bool) error {
	var bodyReader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if admin {
		if c.adminToken == "" {
			return fmt.Errorf("admin endpoint %s requires WithAdminToken", path)
		}
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBytes)}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(respBytes, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Code = payload.Code
		}
		return apiErr
	}

	if out != nil && len(respBytes) > 0 {
		if err := json.Unmarshal(respBytes, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// SubmitClaim submits one claim. A fully drained tranche is not an error:
// the result reports a zero Released amount.
func (c *Client) SubmitClaim(ctx context.Context, claim Claim) (*ClaimResult, error) {
	var resp struct {
		Claim *ClaimResult `json:"claim"`

		// zero-release shape
		Released     string `json:"released"`
		ClaimedSoFar string `json:"claimed_so_far"`
		FullyClaimed bool   `json:"fully_claimed"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/claims", claim, &resp, false); err != nil {
		return nil, err
	}
	if resp.Claim != nil {
		return resp.Claim, nil
	}

	claimed, ok := new(big.Int).SetString(resp.ClaimedSoFar, 10)
	if !ok {
		claimed = new(big.Int)
	}
	return &ClaimResult{
		Claimant:     claim.Claimant,
		Distribution: claim.Distribution,
		Released:     new(big.Int),
		ClaimedSoFar: claimed,
		FullyClaimed: resp.FullyClaimed,
	}, nil
}

// SubmitBatch submits claims all-or-nothing. The server rejects the whole
// batch when any entry is invalid.
func (c *Client) SubmitBatch(ctx context.Context, claims []Claim) ([]*ClaimResult, error) {
	payload := struct {
		Claimants     []string   `json:"claimants"`
		Amounts       []string   `json:"amounts"`
		Proofs        [][]string `json:"proofs"`
		Distributions []int      `json:"distributions"`
	}{
		Claimants:     make([]string, len(claims)),
		Amounts:       make([]string, len(claims)),
		Proofs:        make([][]string, len(claims)),
		Distributions: make([]int, len(claims)),
	}
	for i, cl := range claims {
		payload.Claimants[i] = cl.Claimant
		payload.Amounts[i] = cl.Amount
		payload.Proofs[i] = cl.Proof
		payload.Distributions[i] = cl.Distribution
	}

	var resp struct {
		Claims []*ClaimResult `json:"claims"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/claims/batch", payload, &resp, false); err != nil {
		return nil, err
	}
	return resp.Claims, nil
}

// Distributions lists the vesting schedule.
func (c *Client) Distributions(ctx context.Context) ([]Distribution, error) {
	var resp struct {
		Distributions []Distribution `json:"distributions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/distributions", nil, &resp, false); err != nil {
		return nil, err
	}
	return resp.Distributions, nil
}

// Distribution fetches one distribution snapshot.
func (c *Client) Distribution(ctx context.Context, idx int) (*Distribution, error) {
	var resp struct {
		Distribution *Distribution `json:"distribution"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/distributions/%d", idx), nil, &resp, false); err != nil {
		return nil, err
	}
	return resp.Distribution, nil
}

// ClaimRecord fetches the bookkeeping state of one beneficiary.
func (c *Client) ClaimRecord(ctx context.Context, idx int, address string) (*ClaimRecord, error) {
	var rec ClaimRecord
	path := fmt.Sprintf("/api/v1/distributions/%d/claims/%s", idx, address)
	if err := c.do(ctx, http.MethodGet, path, nil, &rec, false); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Pause pauses a distribution. Admin only.
func (c *Client) Pause(ctx context.Context, idx int) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/admin/distributions/%d/pause", idx), nil, nil, true)
}

// Unpause resumes a distribution. Admin only.
func (c *Client) Unpause(ctx context.Context, idx int) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/admin/distributions/%d/unpause", idx), nil, nil, true)
}

// SetMerkleRoot assigns the one-time root of a distribution. Admin only.
func (c *Client) SetMerkleRoot(ctx context.Context, idx int, root string) error {
	payload := struct {
		Root string `json:"root"`
	}{Root: root}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v1/admin/distributions/%d/root", idx), payload, nil, true)
}

// WireToken hands the staged token ledger to the engine. Admin only, and
// one-time: with owner renouncement configured this is the final admin call.
func (c *Client) WireToken(ctx context.Context) (ownerRenounced bool, err error) {
	var resp struct {
		OwnerRenounced bool `json:"owner_renounced"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/token", nil, &resp, true); err != nil {
		return false, err
	}
	return resp.OwnerRenounced, nil
}
