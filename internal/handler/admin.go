package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tradebot/backoffice/internal/contextkeys"
	"github.com/tradebot/backoffice/internal/domain"
	"github.com/tradebot/backoffice/internal/service"
)

// AdminHandler serves the back-office overview, withdrawal review and the
// manual accrual trigger.
type AdminHandler struct {
	admin       *service.AdminService
	withdrawals *service.WithdrawalService
	accrual     *service.AccrualService
}

func NewAdminHandler(admin *service.AdminService, withdrawals *service.WithdrawalService, accrual *service.AccrualService) *AdminHandler {
	return &AdminHandler{admin: admin, withdrawals: withdrawals, accrual: accrual}
}

// GetStats handles GET /api/admin/stats.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, stats)
}

// ListWithdrawals handles GET /api/admin/withdrawals?status=pending.
func (h *AdminHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	list, err := h.withdrawals.ListAll(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, list)
}

// Approve handles POST /api/admin/withdrawals/{id}/approve.
func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.withdrawals.Approve)
}

// Reject handles POST /api/admin/withdrawals/{id}/reject.
func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.withdrawals.Reject)
}

type decideFunc func(ctx context.Context, id, adminID, note string) (*domain.Withdrawal, error)

func (h *AdminHandler) decide(w http.ResponseWriter, r *http.Request, fn decideFunc) {
	var req domain.WithdrawalDecision
	if r.ContentLength != 0 {
		if err := DecodeJSON(w, r, &req); err != nil {
			Error(w, err)
			return
		}
	}

	wd, err := fn(r.Context(), chi.URLParam(r, "id"), contextkeys.UserIDFrom(r.Context()), req.Note)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, wd)
}

// RunAccrual handles POST /api/admin/accrual/run.
func (h *AdminHandler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	report, err := h.accrual.RunOnce(r.Context(), service.TriggerManual)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, report)
}
