package handler

import (
	"net/http"

	"github.com/tradebot/backoffice/internal/contextkeys"
	"github.com/tradebot/backoffice/internal/domain"
	"github.com/tradebot/backoffice/internal/service"
)

// SubscriptionHandler serves a user's own subscription and dashboard.
type SubscriptionHandler struct {
	subs *service.SubscriptionService
}

func NewSubscriptionHandler(subs *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs}
}

// Subscribe handles POST /api/subscription.
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req domain.SubscribeRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}
	sub, err := h.subs.Subscribe(r.Context(), contextkeys.UserIDFrom(r.Context()), req.PlanID)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, sub)
}

// ChangePlan handles PUT /api/subscription.
func (h *SubscriptionHandler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	var req domain.SubscribeRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}
	sub, err := h.subs.ChangePlan(r.Context(), contextkeys.UserIDFrom(r.Context()), req.PlanID)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, sub)
}

// Dashboard handles GET /api/dashboard.
func (h *SubscriptionHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.subs.Dashboard(r.Context(), contextkeys.UserIDFrom(r.Context()))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, dash)
}
