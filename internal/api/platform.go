package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xtrntr/marketplace/internal/marketplace"
	"github.com/xtrntr/marketplace/internal/models"
)

// WithdrawPlatform pays accumulated commission to the platform owner
func (h *Handler) WithdrawPlatform(w http.ResponseWriter, r *http.Request) {
	amount, err := h.Engine.WithdrawPlatformEarnings(r.Context(), callerFrom(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
}

// SetCommission changes the commission rate applied to future orders
func (h *Handler) SetCommission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rate uint8 `json:"rate"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.Engine.SetCommissionRate(r.Context(), callerFrom(r), req.Rate); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint8{"rate": req.Rate})
}

// SetSellerActive enables or disables a seller account
func (h *Handler) SetSellerActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active bool `json:"active"`
	}
	if !decode(w, r, &req) {
		return
	}
	seller := models.AccountID(chi.URLParam(r, "account"))
	if err := h.Engine.SetSellerActive(r.Context(), callerFrom(r), seller, req.Active); err != nil {
		h.writeError(w, err)
		return
	}
	s, _ := h.Engine.Seller(seller)
	writeJSON(w, http.StatusOK, s)
}

// GetAudit returns the escrow breakdown. Only the platform owner may read it.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	if callerFrom(r) != h.Engine.Platform().Owner {
		h.writeError(w, marketplace.ErrNotOwner)
		return
	}
	report := h.Engine.Audit()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"report":   report,
		"holdings": report.Holdings(),
		"balanced": report.Balanced(),
	})
}
