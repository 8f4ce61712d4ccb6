package billing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
	"github.com/voyager-crm/voyager/internal/shared"
)

// Handler exposes subscription state and the management function.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers /api/agencySubscription.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.current)
	r.Get("/status", h.status)
}

// MountPlanRoutes registers /api/plan.
func (h *Handler) MountPlanRoutes(r chi.Router) {
	r.Get("/", h.plans)
}

// MountFunctionRoutes registers /functions.
func (h *Handler) MountFunctionRoutes(r chi.Router) {
	r.Post("/manage-subscription", h.manage)
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	p, err := shared.RequirePrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sub, err := h.service.Current(r.Context(), p.AgencyID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sub)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	p, err := shared.RequirePrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ent, err := h.service.Status(r.Context(), p.AgencyID)
	if err != nil {
		h.logger.Error("subscription status", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ent)
}

func (h *Handler) plans(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Plans(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if out == nil {
		out = []Plan{}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) manage(w http.ResponseWriter, r *http.Request) {
	p, err := shared.RequirePrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ManageRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Manage(r.Context(), p, req)
	if err != nil {
		h.logger.Warn("manage subscription", slog.String("action", req.Action), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
