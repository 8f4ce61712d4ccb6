package expeditions

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
	"github.com/voyager-crm/voyager/internal/shared"
)

// IdempotencyHeader carries the client-chosen key for public registrations.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes expedition groups, registrations and the public sign-up page.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountGroupRoutes registers /api/expeditionGroup.
func (h *Handler) MountGroupRoutes(r chi.Router) {
	r.Get("/", h.listGroups)
	r.Post("/", h.createGroup)
	r.Get("/{id}", h.showGroup)
	r.Put("/{id}", h.updateGroup)
	r.Delete("/{id}", h.deleteGroup)
	r.Get("/{id}/registrations", h.roster)
}

// MountRegistrationRoutes registers /api/expeditionRegistration.
func (h *Handler) MountRegistrationRoutes(r chi.Router) {
	r.Post("/", h.register)
	r.Put("/{id}", h.updateRegistration)
	r.Delete("/{id}", h.deleteRegistration)
	r.Post("/{id}/promote", h.promote)
}

// MountPublicRoutes registers /public/expedition.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Get("/{token}", h.showPublic)
	r.Post("/{token}/register", h.registerPublic)
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	p, err := shared.RequirePrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	groups, err := h.service.ListGroups(r.Context(), p.AgencyID)
	if err != nil {
		h.logger.Error("list expedition groups", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if groups == nil {
		groups = []Group{}
	}
	httpx.JSON(w, http.StatusOK, groups)
}

func (h *Handler) showGroup(w http.ResponseWriter, r *http.Request) {
	p, id, ok := scoped(w, r)
	if !ok {
		return
	}
	g, err := h.service.GetGroup(r.Context(), p.AgencyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	p, err := shared.RequirePrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CreateGroupRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	g, err := h.service.CreateGroup(r.Context(), p.AgencyID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, g)
}

func (h *Handler) updateGroup(w http.ResponseWriter, r *http.Request) {
	p, id, ok := scoped(w, r)
	if !ok {
		return
	}
	var req UpdateGroupRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	g, err := h.service.UpdateGroup(r.Context(), p.AgencyID, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) deleteGroup(w http.ResponseWriter, r *http.Request) {
	p, id, ok := scoped(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteGroup(r.Context(), p.AgencyID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) roster(w http.ResponseWriter, r *http.Request) {
	p, id, ok := scoped(w, r)
	if !ok {
		return
	}
	roster, err := h.service.Roster(r.Context(), p.AgencyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roster)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	p, err := shared.RequirePrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CreateRegistrationRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	reg, err := h.service.Register(r.Context(), p.AgencyID, uuid.MustParse(req.GroupID), req.RegisterRequest)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reg)
}

func (h *Handler) updateRegistration(w http.ResponseWriter, r *http.Request) {
	p, id, ok := scoped(w, r)
	if !ok {
		return
	}
	var req UpdateRegistrationRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	reg, err := h.service.UpdateRegistration(r.Context(), p.AgencyID, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reg)
}

func (h *Handler) deleteRegistration(w http.ResponseWriter, r *http.Request) {
	p, id, ok := scoped(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRegistration(r.Context(), p.AgencyID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) promote(w http.ResponseWriter, r *http.Request) {
	p, id, ok := scoped(w, r)
	if !ok {
		return
	}
	reg, err := h.service.Promote(r.Context(), p.AgencyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reg)
}

func (h *Handler) showPublic(w http.ResponseWriter, r *http.Request) {
	g, err := h.service.PublicGroup(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) registerPublic(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	reg, err := h.service.RegisterPublic(r.Context(), chi.URLParam(r, "token"), r.Header.Get(IdempotencyHeader), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":         reg.ID,
		"isWaitlist": reg.IsWaitlist,
		"status":     reg.Status,
	})
}

func scoped(w http.ResponseWriter, r *http.Request) (shared.Principal, uuid.UUID, bool) {
	p, err := shared.RequirePrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return p, uuid.Nil, false
	}
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return p, uuid.Nil, false
	}
	return p, id, true
}
