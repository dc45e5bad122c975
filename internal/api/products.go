package api

import (
	"net/http"

	"github.com/xtrntr/marketplace/internal/marketplace"
	"github.com/xtrntr/marketplace/internal/models"
)

type productRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Price       uint64          `json:"price"`
	Stock       uint64          `json:"stock"`
	Category    models.Category `json:"category"`
}

// ListProducts returns active products in listing order
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.ActiveProducts())
}

// GetProduct returns a single product
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	p, found := h.Engine.Product(id)
	if !found {
		h.writeError(w, marketplace.ErrProductNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// AddProduct lists a new product for the caller
func (h *Handler) AddProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.Engine.AddProduct(r.Context(), callerFrom(r), marketplace.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
		Price:       req.Price,
		Stock:       req.Stock,
		Category:    req.Category,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdateProduct replaces a product's descriptive fields, price and stock.
// The category cannot be changed.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req productRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.Engine.UpdateProduct(r.Context(), callerFrom(r), id, marketplace.ProductUpdate{
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
		Price:       req.Price,
		Stock:       req.Stock,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ToggleProduct flips a product's active flag
func (h *Handler) ToggleProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	active, err := h.Engine.ToggleActive(r.Context(), callerFrom(r), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

// ListReviews returns a product's reviews in submission order
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if _, found := h.Engine.Product(id); !found {
		h.writeError(w, marketplace.ErrProductNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.Engine.ProductReviews(id))
}

// SubmitReview records the caller's rating of a purchased product
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Rating  uint8  `json:"rating"`
		Comment string `json:"comment"`
	}
	if !decode(w, r, &req) {
		return
	}

	review, err := h.Engine.SubmitReview(r.Context(), callerFrom(r), id, req.Rating, req.Comment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

// HasPurchased reports whether the caller has ever bought the product
func (h *Handler) HasPurchased(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"purchased": h.Engine.HasPurchased(callerFrom(r), id)})
}
