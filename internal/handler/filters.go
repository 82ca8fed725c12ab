package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/social-inbox/internal/middleware"
	"github.com/capitalize-ai/social-inbox/internal/model"
	"github.com/capitalize-ai/social-inbox/internal/service"
	"github.com/capitalize-ai/social-inbox/pkg/logger"
)

// FilterHandler handles saved filter endpoints.
type FilterHandler struct {
	service *service.FilterService
	logger  *logger.Logger
}

// NewFilterHandler creates a new filter handler.
func NewFilterHandler(svc *service.FilterService, log *logger.Logger) *FilterHandler {
	return &FilterHandler{
		service: svc,
		logger:  logger.OrNop(log).Named("filters"),
	}
}

// List handles GET /api/v1/filters
func (h *FilterHandler) List(w http.ResponseWriter, r *http.Request) {
	filters, err := h.service.List(r.Context(), actor(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"filters": filters})
}

// Create handles POST /api/v1/filters
func (h *FilterHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateFilterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f, err := h.service.Create(r.Context(), actor(r), &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// Get handles GET /api/v1/filters/{id}
func (h *FilterHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := filterID(w, r)
	if !ok {
		return
	}
	f, err := h.service.Get(r.Context(), actor(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// Update handles PUT /api/v1/filters/{id}
func (h *FilterHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := filterID(w, r)
	if !ok {
		return
	}

	var req model.CreateFilterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f, err := h.service.Update(r.Context(), actor(r), id, &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// Delete handles DELETE /api/v1/filters/{id}
func (h *FilterHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := filterID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor(r), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Count handles GET /api/v1/filters/{id}/count
func (h *FilterHandler) Count(w http.ResponseWriter, r *http.Request) {
	id, ok := filterID(w, r)
	if !ok {
		return
	}
	n, err := h.service.ConversationCount(r.Context(), actor(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.FilterCountResponse{FilterID: id, Count: n})
}

// HasConversation handles GET /api/v1/filters/{id}/conversations/{conversationID}
func (h *FilterHandler) HasConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := filterID(w, r)
	if !ok {
		return
	}
	convID, err := middleware.ParseID(chi.URLParam(r, "conversationID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	matched, err := h.service.HasConversation(r.Context(), actor(r), id, convID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"filter_id":       id,
		"conversation_id": convID,
		"matches":         matched,
	})
}

func filterID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter id "+strconv.Quote(chi.URLParam(r, "id")))
		return 0, false
	}
	return id, true
}
