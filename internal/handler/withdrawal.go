package handler

import (
	"net/http"

	"github.com/tradebot/backoffice/internal/contextkeys"
	"github.com/tradebot/backoffice/internal/domain"
	"github.com/tradebot/backoffice/internal/service"
)

// WithdrawalHandler serves a user's withdrawal endpoints.
type WithdrawalHandler struct {
	withdrawals *service.WithdrawalService
}

func NewWithdrawalHandler(withdrawals *service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals}
}

// Eligibility handles GET /api/withdrawals/eligibility.
func (h *WithdrawalHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	el, err := h.withdrawals.Eligibility(r.Context(), contextkeys.UserIDFrom(r.Context()))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, el)
}

// Quote handles POST /api/withdrawals/quote.
func (h *WithdrawalHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req domain.WithdrawalRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}
	q, err := h.withdrawals.Quote(r.Context(), contextkeys.UserIDFrom(r.Context()), req.Amount)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, q)
}

// Request handles POST /api/withdrawals.
func (h *WithdrawalHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req domain.WithdrawalRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}
	wd, err := h.withdrawals.Request(r.Context(), contextkeys.UserIDFrom(r.Context()), req.Amount)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, wd)
}

// List handles GET /api/withdrawals.
func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.withdrawals.List(r.Context(), contextkeys.UserIDFrom(r.Context()))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, list)
}
