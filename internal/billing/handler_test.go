package billing

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/voyager-crm/voyager/internal/shared"
)

func newTestRouter(f *fixture, principal shared.Principal) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), principal)))
		})
	})
	r.Route("/api/agencySubscription", h.MountRoutes)
	r.Route("/functions", h.MountFunctionRoutes)
	return r
}

func TestManageHandlerStatusCodes(t *testing.T) {
	f := newFixture()
	f.stripeSubscription()
	admin := newTestRouter(f, f.admin)
	member := newTestRouter(f, shared.Principal{UserID: uuid.New(), AgencyID: f.agency, Role: shared.RoleAgencyAdmin})

	tests := []struct {
		name   string
		router http.Handler
		body   string
		want   int
	}{
		{"forbidden", member, `{"action":"portal","agency_id":"` + f.agency.String() + `"}`, http.StatusForbidden},
		{"missing agency", admin, `{"action":"portal"}`, http.StatusBadRequest},
		{"unknown action", admin, `{"action":"refund","agency_id":"` + f.agency.String() + `"}`, http.StatusBadRequest},
		{"missing subscription", admin, `{"action":"portal","agency_id":"` + uuid.NewString() + `"}`, http.StatusNotFound},
		{"portal", admin, `{"action":"portal","agency_id":"` + f.agency.String() + `"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/functions/manage-subscription", strings.NewReader(tt.body))
			tt.router.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

func TestStatusHandler(t *testing.T) {
	f := newFixture()
	f.stripeSubscription()
	rr := httptest.NewRecorder()
	p := shared.Principal{UserID: uuid.New(), AgencyID: f.agency, Role: shared.RoleCollaborator}
	newTestRouter(f, p).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/agencySubscription/status", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"hasActiveSubscription":true`)
}
