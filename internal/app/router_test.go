package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyager-crm/voyager/internal/auth"
	"github.com/voyager-crm/voyager/internal/billing"
	"github.com/voyager-crm/voyager/internal/collaborators"
	"github.com/voyager-crm/voyager/internal/expeditions"
	"github.com/voyager-crm/voyager/internal/finance"
	"github.com/voyager-crm/voyager/internal/observability"
	"github.com/voyager-crm/voyager/internal/pipeline"
	"github.com/voyager-crm/voyager/internal/proposals"
	"github.com/voyager-crm/voyager/internal/shared"
	_ "github.com/voyager-crm/voyager/testing"
)

func testConfig() *Config {
	return &Config{
		AppEnv:             "test",
		AppRequestTimeout:  5 * time.Second,
		RateLimitPerMinute: 1000,
		PublicRateLimit:    1000,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *auth.TokenIssuer) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := auth.NewTokenIssuer("router-test-secret", time.Hour)
	router := NewRouter(RouterParams{
		Logger:              logger,
		Config:              testConfig(),
		Metrics:             observability.NewMetrics(),
		Tokens:              tokens,
		AuthHandler:         auth.NewHandler(logger, nil, tokens),
		PipelineHandler:     pipeline.NewHandler(logger, nil),
		ProposalHandler:     proposals.NewHandler(logger, nil),
		FinanceHandler:      finance.NewHandler(logger, nil),
		CollaboratorHandler: collaborators.NewHandler(logger, nil),
		ExpeditionHandler:   expeditions.NewHandler(logger, nil),
		BillingHandler:      billing.NewHandler(logger, billing.NewService(nil, logger)),
	})
	return router, tokens
}

func bearer(t *testing.T, tokens *auth.TokenIssuer, role string) string {
	t.Helper()
	raw, _, err := tokens.Issue(shared.Principal{UserID: uuid.New(), AgencyID: uuid.New(), Role: role})
	require.NoError(t, err)
	return "Bearer " + raw
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"ok"`)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestAPIRequiresToken(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/proposal", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestFunctionsRequireSuperAdmin(t *testing.T) {
	router, tokens := newTestRouter(t)
	body := `{"action":"portal"}`

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/functions/manage-subscription", strings.NewReader(body))
	req.Header.Set("Authorization", bearer(t, tokens, shared.RoleAgencyAdmin))
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/functions/manage-subscription", strings.NewReader(body))
	req.Header.Set("Authorization", bearer(t, tokens, shared.RoleSuperAdmin))
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "agency_id")
}

func TestCollaboratorRoutesNeedAdmin(t *testing.T) {
	router, tokens := newTestRouter(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/collaborator", nil)
	req.Header.Set("Authorization", bearer(t, tokens, shared.RoleCollaborator))
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/proposal", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	router.ServeHTTP(rr, req)
	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestPublicRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.PublicRateLimit = 2
	h := PublicRateLimit(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/public/expedition/abc", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}
