package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xtrntr/marketplace/internal/marketplace"
	"github.com/xtrntr/marketplace/internal/models"
)

// RegisterSeller registers the caller as a seller
func (h *Handler) RegisterSeller(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}

	seller, err := h.Engine.RegisterSeller(r.Context(), callerFrom(r), req.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, seller)
}

// GetSeller returns a seller's public record
func (h *Handler) GetSeller(w http.ResponseWriter, r *http.Request) {
	seller, ok := h.Engine.Seller(models.AccountID(chi.URLParam(r, "account")))
	if !ok {
		h.writeError(w, marketplace.ErrSellerNotFound)
		return
	}
	writeJSON(w, http.StatusOK, seller)
}

// WithdrawSeller pays out the caller's pending balance
func (h *Handler) WithdrawSeller(w http.ResponseWriter, r *http.Request) {
	amount, err := h.Engine.Withdraw(r.Context(), callerFrom(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
}

// GetMyProducts lists every product the caller has listed, active or not
func (h *Handler) GetMyProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.SellerProducts(callerFrom(r)))
}

// GetMyOrders lists orders placed against the caller's products
func (h *Handler) GetMyOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.SellerOrders(callerFrom(r)))
}
