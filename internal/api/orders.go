package api

import (
	"context"
	"net/http"

	"github.com/xtrntr/marketplace/internal/marketplace"
	"github.com/xtrntr/marketplace/internal/models"
)

// PlaceOrder buys a product. The payment must equal price times quantity.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID uint64 `json:"product_id"`
		Quantity  uint64 `json:"quantity"`
		Payment   uint64 `json:"payment"`
	}
	if !decode(w, r, &req) {
		return
	}

	order, err := h.Engine.Purchase(r.Context(), callerFrom(r), req.ProductID, req.Quantity, req.Payment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// GetUserOrders retrieves the caller's purchases
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.BuyerOrders(callerFrom(r)))
}

// GetOrder returns an order visible to its buyer or seller
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	order, found := h.Engine.Order(id)
	caller := callerFrom(r)
	if !found || (order.Buyer != caller && order.Seller != caller) {
		h.writeError(w, marketplace.ErrOrderNotFound)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ShipOrder marks a pending order as shipped
func (h *Handler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Engine.MarkShipped)
}

// ConfirmOrder confirms delivery and releases the seller's share
func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Engine.ConfirmDelivery)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, caller models.AccountID, id uint64) error) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := apply(r.Context(), callerFrom(r), id); err != nil {
		h.writeError(w, err)
		return
	}
	order, _ := h.Engine.Order(id)
	writeJSON(w, http.StatusOK, order)
}
