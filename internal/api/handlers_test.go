package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tradesuite/rolesync/internal/catalog"
	"github.com/tradesuite/rolesync/internal/config"
	"github.com/tradesuite/rolesync/internal/directory"
	"github.com/tradesuite/rolesync/internal/entitlement"
	"github.com/tradesuite/rolesync/internal/ledger"
)

func testRouter(t *testing.T, cfg *config.Config) (http.Handler, *ledger.MemoryGateway, *directory.MemoryDirectory, *entitlement.Coordinator) {
	t.Helper()

	if cfg == nil {
		cfg = &config.Config{}
	}
	gw := ledger.NewMemoryGateway(
		entitlement.PurchaseRecord{
			Email:         "a@x.com",
			ProductID:     "P_monthly",
			PaymentStatus: entitlement.StatusPaid,
			AccountID:     "42",
			Verified:      true,
		},
	)
	dir := directory.NewMemoryDirectory()
	products := catalog.New(map[string]catalog.Product{
		"P_monthly": {Roles: []string{"Bot Suite", "Member"}, GrantsAccess: true},
	})
	coordinator := entitlement.NewCoordinator(gw, dir, products, nil, 4)
	return NewRouter(cfg, coordinator, dir, nil, "test"), gw, dir, coordinator
}

func TestWebhookAcceptsEvent(t *testing.T) {
	router, _, dir, coordinator := testRouter(t, nil)

	body := `{"email":"a@x.com","action":"add_role","product_id":"P_monthly"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "a@x.com", resp["email"])
	assert.Equal(t, "add_role", resp["action"])
	assert.NotEmpty(t, resp["requestId"])

	// The ack returns before the run; the grant lands shortly after.
	coordinator.Wait()
	assert.Equal(t, []string{"Bot Suite", "Member"}, dir.RoleNamesFor("42"))
}

func TestWebhookRejectsBadPayload(t *testing.T) {
	router, _, _, _ := testRouter(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{not json`},
		{"missing email", `{"action":"add_role"}`},
		{"unknown action", `{"email":"a@x.com","action":"promote"}`},
		{"remove_role without product", `{"email":"a@x.com","action":"remove_role"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	router, _, _, _ := testRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebhookTokenAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	router, _, _, coordinator := testRouter(t, &config.Config{WebhookTokenHash: string(hash)})
	defer coordinator.Wait()

	body := `{"email":"a@x.com","action":"add_role"}`

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "missing token")

	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "wrong token")

	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code, "valid bearer token")

	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-Webhook-Token", "s3cret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code, "custom header token")
}

func TestHealthEndpoint(t *testing.T) {
	router, _, _, _ := testRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.True(t, resp.DirectoryConnected)
	assert.False(t, resp.HistoryEnabled)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
}

func TestReconciliationsWithoutHistory(t *testing.T) {
	router, _, _, _ := testRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/reconciliations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReconciliationsRejectsBadLimit(t *testing.T) {
	router, _, _, _ := testRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/reconciliations?limit=zero", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
