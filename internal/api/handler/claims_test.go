package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/merkledrop-io/merkledrop/internal/api/handler"
	"github.com/merkledrop-io/merkledrop/internal/merkle"
	"github.com/merkledrop-io/merkledrop/internal/token"
	"github.com/merkledrop-io/merkledrop/internal/vesting"
	"github.com/merkledrop-io/merkledrop/pkg/addr"
	"go.uber.org/zap"
)

var (
	alice = addr.MustParse("0x00000000000000000000000000000000000000a1")
	bob   = addr.MustParse("0x00000000000000000000000000000000000000b2")
)

// claimFixture is a running router over a two-beneficiary distribution:
// alice holds 1000 units, bob holds 500, TGE 20%, 4 rounds, 1-day rounds,
// cliff already passed, first round live.
type claimFixture struct {
	router *gin.Engine
	tree   *merkle.Tree
	ledger *token.MemoryLedger
	engine *vesting.Engine
}

func setupClaimRouter(t *testing.T) *claimFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	leaves := []merkle.Hash{
		merkle.LeafHash(alice, big.NewInt(1000)),
		merkle.LeafHash(bob, big.NewInt(500)),
	}
	tree, err := merkle.NewTree(leaves)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}

	creation := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	dists, err := vesting.NewSchedule(creation, day,
		[]merkle.Hash{tree.Root()}, []int{1}, []int{20}, []int{4})
	if err != nil {
		t.Fatalf("build schedule: %v", err)
	}

	ledger := token.NewMemoryLedger(nil)
	now := creation.Add(day + time.Hour) // cliff passed, round 1
	engine := vesting.NewEngine(dists, vesting.NewMemoryStore(), ledger, nil, zap.NewNop(), vesting.Config{
		RoundDuration: day,
		Now:           func() time.Time { return now },
	})

	r := gin.New()
	h := handler.NewClaimHandler(engine, zap.NewNop())
	h.Register(r.Group("/api/v1"))
	return &claimFixture{router: r, tree: tree, ledger: ledger, engine: engine}
}

func (f *claimFixture) proofStrings(t *testing.T, leafIdx int) []string {
	t.Helper()
	proof, err := f.tree.Proof(leafIdx)
	if err != nil {
		t.Fatalf("build proof: %v", err)
	}
	out := make([]string, len(proof))
	for i, h := range proof {
		out[i] = h.String()
	}
	return out
}

func (f *claimFixture) balance(t *testing.T, holder addr.Address) *big.Int {
	t.Helper()
	bal, err := f.ledger.BalanceOf(context.Background(), holder)
	if err != nil {
		t.Fatalf("balance of %s: %v", holder, err)
	}
	return bal
}

func postJSON(t *testing.T, router *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitClaim_200(t *testing.T) {
	f := setupClaimRouter(t)

	w := postJSON(t, f.router, "/api/v1/claims", gin.H{
		"claimant":     alice.String(),
		"amount":       "1000",
		"proof":        f.proofStrings(t, 0),
		"distribution": 0,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Claim struct {
			Released     json.Number `json:"released"`
			ClaimedSoFar json.Number `json:"claimed_so_far"`
			Round        int         `json:"round"`
		} `json:"claim"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Claim.Released.String() != "200" {
		t.Errorf("expected TGE release 200, got %s", resp.Claim.Released)
	}
	if resp.Claim.Round != 1 {
		t.Errorf("expected round 1, got %d", resp.Claim.Round)
	}

	if got := f.balance(t, alice); got.Cmp(big.NewInt(200)) != 0 {
		t.Errorf("ledger balance = %s, want 200", got)
	}
}

func TestSubmitClaim_repeat_200_zero(t *testing.T) {
	f := setupClaimRouter(t)

	payload := gin.H{
		"claimant":     alice.String(),
		"amount":       "1000",
		"proof":        f.proofStrings(t, 0),
		"distribution": 0,
	}
	if w := postJSON(t, f.router, "/api/v1/claims", payload); w.Code != http.StatusOK {
		t.Fatalf("first claim: expected 200, got %d", w.Code)
	}

	w := postJSON(t, f.router, "/api/v1/claims", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("repeat claim: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["released"] != "0" {
		t.Errorf("expected released \"0\", got %v", resp["released"])
	}
	if resp["claimed_so_far"] != "200" {
		t.Errorf("expected claimed_so_far \"200\", got %v", resp["claimed_so_far"])
	}
}

func TestSubmitClaim_403_invalidProof(t *testing.T) {
	f := setupClaimRouter(t)

	// Inflated entitlement with a proof for the committed amount.
	w := postJSON(t, f.router, "/api/v1/claims", gin.H{
		"claimant":     alice.String(),
		"amount":       "999999",
		"proof":        f.proofStrings(t, 0),
		"distribution": 0,
	})

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["code"] != "invalid_proof" {
		t.Errorf("expected code invalid_proof, got %v", resp["code"])
	}
	if got := f.balance(t, alice); got.Sign() != 0 {
		t.Errorf("rejected claim minted %s", got)
	}
}

func TestSubmitClaim_403_oversizedAmount(t *testing.T) {
	f := setupClaimRouter(t)

	// 2^256: too wide for the leaf encoding, so unprovable by definition.
	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	w := postJSON(t, f.router, "/api/v1/claims", gin.H{
		"claimant":     alice.String(),
		"amount":       huge.String(),
		"proof":        f.proofStrings(t, 0),
		"distribution": 0,
	})

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["code"] != "invalid_proof" {
		t.Errorf("expected code invalid_proof, got %v", resp["code"])
	}
	if got := f.balance(t, alice); got.Sign() != 0 {
		t.Errorf("rejected claim minted %s", got)
	}
}

func TestSubmitClaim_404_unknownDistribution(t *testing.T) {
	f := setupClaimRouter(t)

	w := postJSON(t, f.router, "/api/v1/claims", gin.H{
		"claimant":     alice.String(),
		"amount":       "1000",
		"proof":        f.proofStrings(t, 0),
		"distribution": 7,
	})

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSubmitClaim_400_badAddress(t *testing.T) {
	f := setupClaimRouter(t)

	w := postJSON(t, f.router, "/api/v1/claims", gin.H{
		"claimant":     "not-an-address",
		"amount":       "1000",
		"proof":        []string{},
		"distribution": 0,
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSubmitClaim_409_paused(t *testing.T) {
	f := setupClaimRouter(t)
	if err := f.engine.Pause(0); err != nil {
		t.Fatalf("pause: %v", err)
	}

	w := postJSON(t, f.router, "/api/v1/claims", gin.H{
		"claimant":     alice.String(),
		"amount":       "1000",
		"proof":        f.proofStrings(t, 0),
		"distribution": 0,
	})

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["code"] != "paused" {
		t.Errorf("expected code paused, got %v", resp["code"])
	}
}

func TestSubmitBatch_200(t *testing.T) {
	f := setupClaimRouter(t)

	w := postJSON(t, f.router, "/api/v1/claims/batch", gin.H{
		"claimants":     []string{alice.String(), bob.String()},
		"amounts":       []string{"1000", "500"},
		"proofs":        [][]string{f.proofStrings(t, 0), f.proofStrings(t, 1)},
		"distributions": []int{0, 0},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Count int `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 2 {
		t.Errorf("expected 2 applied claims, got %d", resp.Count)
	}
	if got := f.balance(t, bob); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("bob TGE = %s, want 100", got)
	}
}

func TestSubmitBatch_400_lengthMismatch(t *testing.T) {
	f := setupClaimRouter(t)

	w := postJSON(t, f.router, "/api/v1/claims/batch", gin.H{
		"claimants":     []string{alice.String(), bob.String()},
		"amounts":       []string{"1000"},
		"proofs":        [][]string{f.proofStrings(t, 0)},
		"distributions": []int{0},
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["code"] != "length_mismatch" {
		t.Errorf("expected code length_mismatch, got %v", resp["code"])
	}
}

func TestSubmitBatch_allOrNothing(t *testing.T) {
	f := setupClaimRouter(t)

	// Second entry targets an unknown distribution; the whole batch must
	// reject with no payout for the valid first entry.
	w := postJSON(t, f.router, "/api/v1/claims/batch", gin.H{
		"claimants":     []string{alice.String(), bob.String()},
		"amounts":       []string{"1000", "500"},
		"proofs":        [][]string{f.proofStrings(t, 0), f.proofStrings(t, 1)},
		"distributions": []int{0, 9},
	})

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
	if got := f.balance(t, alice); got.Sign() != 0 {
		t.Errorf("aborted batch minted %s to alice", got)
	}
}

func TestListDistributions_200(t *testing.T) {
	f := setupClaimRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/distributions", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Count int `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 1 {
		t.Errorf("expected 1 distribution, got %d", resp.Count)
	}
}

func TestGetDistribution_404(t *testing.T) {
	f := setupClaimRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/distributions/42", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetClaimRecord_200(t *testing.T) {
	f := setupClaimRouter(t)

	postJSON(t, f.router, "/api/v1/claims", gin.H{
		"claimant":     alice.String(),
		"amount":       "1000",
		"proof":        f.proofStrings(t, 0),
		"distribution": 0,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/distributions/0/claims/"+alice.String(), nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["claimed_so_far"] != "200" {
		t.Errorf("expected claimed_so_far \"200\", got %v", resp["claimed_so_far"])
	}
}
