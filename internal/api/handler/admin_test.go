package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/merkledrop-io/merkledrop/internal/api/handler"
	"github.com/merkledrop-io/merkledrop/internal/merkle"
	"github.com/merkledrop-io/merkledrop/internal/token"
	"github.com/merkledrop-io/merkledrop/internal/vesting"
	"go.uber.org/zap"
)

// adminFixture wires an engine without a token ledger so the staged-ledger
// path is exercised, plus a real HS256 admin gate.
type adminFixture struct {
	router *gin.Engine
	engine *vesting.Engine
	tokens *handler.AdminTokens
}

func setupAdminRouter(t *testing.T, renounce bool) *adminFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	creation := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dists, err := vesting.NewSchedule(creation, 24*time.Hour,
		[]merkle.Hash{{}}, []int{1}, []int{20}, []int{4})
	if err != nil {
		t.Fatalf("build schedule: %v", err)
	}

	engine := vesting.NewEngine(dists, vesting.NewMemoryStore(), nil, nil, zap.NewNop(), vesting.Config{
		RoundDuration:           24 * time.Hour,
		RenounceOwnerOnSetToken: renounce,
	})

	tokens := handler.NewAdminTokens("test-secret", "merkledrop-test", time.Hour)
	r := gin.New()
	h := handler.NewAdminHandler(engine, token.NewMemoryLedger(nil), handler.RequireAdmin(tokens), zap.NewNop())
	h.Register(r.Group("/api/v1"))
	return &adminFixture{router: r, engine: engine, tokens: tokens}
}

func (f *adminFixture) request(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		tok, err := f.tokens.Issue("ops@example.com")
		if err != nil {
			t.Fatalf("issue admin token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAdmin_401_withoutToken(t *testing.T) {
	f := setupAdminRouter(t, false)

	w := f.request(t, http.MethodPost, "/api/v1/admin/distributions/0/pause", "", false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAdmin_401_badToken(t *testing.T) {
	f := setupAdminRouter(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/distributions/0/pause", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAdminPauseUnpause(t *testing.T) {
	f := setupAdminRouter(t, false)

	w := f.request(t, http.MethodPost, "/api/v1/admin/distributions/0/pause", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("pause: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	d, _ := f.engine.Distribution(0)
	if !d.Paused {
		t.Fatal("distribution not paused")
	}

	w = f.request(t, http.MethodPost, "/api/v1/admin/distributions/0/unpause", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("unpause: expected 200, got %d", w.Code)
	}
	d, _ = f.engine.Distribution(0)
	if d.Paused {
		t.Fatal("distribution still paused")
	}
}

func TestAdminPause_404(t *testing.T) {
	f := setupAdminRouter(t, false)

	w := f.request(t, http.MethodPost, "/api/v1/admin/distributions/5/pause", "", true)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAdminSetRoot_onceOnly(t *testing.T) {
	f := setupAdminRouter(t, false)

	root := `{"root":"0x` + strings.Repeat("ab", 32) + `"}`
	w := f.request(t, http.MethodPut, "/api/v1/admin/distributions/0/root", root, true)
	if w.Code != http.StatusOK {
		t.Fatalf("set root: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = f.request(t, http.MethodPut, "/api/v1/admin/distributions/0/root", root, true)
	if w.Code != http.StatusConflict {
		t.Fatalf("second set: expected 409, got %d", w.Code)
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["code"] != "root_already_set" {
		t.Errorf("expected code root_already_set, got %v", resp["code"])
	}
}

func TestAdminSetRoot_rejectsZero(t *testing.T) {
	f := setupAdminRouter(t, false)

	root := `{"root":"0x` + strings.Repeat("00", 32) + `"}`
	w := f.request(t, http.MethodPut, "/api/v1/admin/distributions/0/root", root, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminWireToken_renouncesOwner(t *testing.T) {
	f := setupAdminRouter(t, true)

	w := f.request(t, http.MethodPost, "/api/v1/admin/token", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("wire token: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["owner_renounced"] != true {
		t.Errorf("expected owner_renounced=true, got %v", resp["owner_renounced"])
	}

	// Every later admin call is rejected by the engine.
	w = f.request(t, http.MethodPost, "/api/v1/admin/distributions/0/pause", "", true)
	if w.Code != http.StatusForbidden {
		t.Fatalf("post-renounce pause: expected 403, got %d", w.Code)
	}
}

func TestAdminWireToken_onceOnly(t *testing.T) {
	f := setupAdminRouter(t, false)

	if w := f.request(t, http.MethodPost, "/api/v1/admin/token", "", true); w.Code != http.StatusOK {
		t.Fatalf("wire token: expected 200, got %d", w.Code)
	}
	w := f.request(t, http.MethodPost, "/api/v1/admin/token", "", true)
	if w.Code != http.StatusConflict {
		t.Fatalf("second wire: expected 409, got %d", w.Code)
	}
}
