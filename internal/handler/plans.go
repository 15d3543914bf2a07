package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tradebot/backoffice/internal/domain"
	"github.com/tradebot/backoffice/internal/service"
)

// PlansHandler handles plan-related endpoints.
type PlansHandler struct {
	plans *service.PlanService
}

// NewPlansHandler creates a new PlansHandler.
func NewPlansHandler(plans *service.PlanService) *PlansHandler {
	return &PlansHandler{plans: plans}
}

// List handles GET /api/plans.
func (h *PlansHandler) List(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.List(r.Context(), false)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, plans)
}

// ListAll handles GET /api/admin/plans?archived=true.
func (h *PlansHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	archived, _ := strconv.ParseBool(r.URL.Query().Get("archived"))
	plans, err := h.plans.List(r.Context(), archived)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, plans)
}

// Create handles POST /api/admin/plans.
func (h *PlansHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.PlanRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}
	plan, err := h.plans.Create(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, plan)
}

// Revise handles PUT /api/admin/plans/{id}.
func (h *PlansHandler) Revise(w http.ResponseWriter, r *http.Request) {
	var req domain.PlanRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}
	plan, err := h.plans.Revise(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, plan)
}

// Archive handles DELETE /api/admin/plans/{id}.
func (h *PlansHandler) Archive(w http.ResponseWriter, r *http.Request) {
	if err := h.plans.Archive(r.Context(), chi.URLParam(r, "id")); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}
