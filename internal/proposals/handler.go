package proposals

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
	"github.com/voyager-crm/voyager/internal/shared"
)

// Handler exposes /api/proposal, /api/proposalService and the public proposal view.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers /api/proposal. There is deliberately no delete route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/bulk-move", h.bulkMove)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Get("/{id}/history", h.history)
	r.Post("/{id}/move", h.move)
	r.Post("/{id}/public-link", h.publicLink)
}

// MountServiceRoutes registers /api/proposalService.
func (h *Handler) MountServiceRoutes(r chi.Router) {
	r.Get("/", h.listServices)
	r.Post("/", h.createService)
	r.Put("/{id}", h.updateService)
	r.Delete("/{id}", h.deleteService)
}

// MountPublicRoutes registers /public/proposal.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Get("/{token}", h.showPublic)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, err := shared.RequirePrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := shared.ParseListQuery(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.List(r.Context(), p.AgencyID, q)
	if err != nil {
		h.logger.Error("list proposals", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.scoped(w, r)
	if !ok {
		return
	}
	proposal, err := h.service.Get(r.Context(), p.AgencyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, proposal)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, err := shared.RequirePrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CreateRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	proposal, err := h.service.Create(r.Context(), p, req)
	if err != nil {
		h.logger.Error("create proposal", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, proposal)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.scoped(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	proposal, err := h.service.Update(r.Context(), p.AgencyID, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, proposal)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.scoped(w, r)
	if !ok {
		return
	}
	changes, err := h.service.History(r.Context(), p.AgencyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if changes == nil {
		changes = []StageChange{}
	}
	httpx.JSON(w, http.StatusOK, changes)
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.scoped(w, r)
	if !ok {
		return
	}
	var req MoveRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.MoveStage(r.Context(), p, id, req.StageID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) bulkMove(w http.ResponseWriter, r *http.Request) {
	p, err := shared.RequirePrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req BulkMoveRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.BulkMoveStage(r.Context(), p, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) publicLink(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.scoped(w, r)
	if !ok {
		return
	}
	var req PublicLinkRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeAndValidate(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	link, err := h.service.CreatePublicLink(r.Context(), p.AgencyID, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, link)
}

func (h *Handler) showPublic(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetPublic(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	p, err := shared.RequirePrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	proposalID, err := uuid.Parse(r.URL.Query().Get("proposalId"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: proposalId query parameter is required", httpx.ErrValidation))
		return
	}
	services, err := h.service.ListServices(r.Context(), p.AgencyID, proposalID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if services == nil {
		services = []ServiceLine{}
	}
	httpx.JSON(w, http.StatusOK, services)
}

func (h *Handler) createService(w http.ResponseWriter, r *http.Request) {
	p, err := shared.RequirePrincipal(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ServiceLineRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.ProposalID == uuid.Nil {
		httpx.RespondError(w, fmt.Errorf("%w: proposalId is required", httpx.ErrValidation))
		return
	}
	line, err := h.service.AddService(r.Context(), p.AgencyID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, line)
}

func (h *Handler) updateService(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.scoped(w, r)
	if !ok {
		return
	}
	var req ServiceLineUpdate
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	line, err := h.service.UpdateService(r.Context(), p.AgencyID, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) deleteService(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.scoped(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteService(r.Context(), p.AgencyID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) scoped(w http.ResponseWriter, r *http.Request) (shared.Principal, uuid.UUID, bool) {
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
