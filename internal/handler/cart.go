package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
)

// GetCart handles GET /api/v1/cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	items, err := h.carts.List(r.Context(), principal(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, items) })
}

// AddCartItem handles POST /api/v1/cart/items.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAddItem(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "product_id is required")
		return
	}

	item, err := h.carts.Add(r.Context(), principal(r), req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCartItem(e, *item) })
}

// UpdateCartItem handles PUT /api/v1/cart/items/{itemID}.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	quantity, err := decodeQuantity(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	item, err := h.carts.UpdateQuantity(r.Context(), principal(r), chi.URLParam(r, "itemID"), quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCartItem(e, *item) })
}

// RemoveCartItem handles DELETE /api/v1/cart/items/{itemID}.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Remove(r.Context(), principal(r), chi.URLParam(r, "itemID")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCart handles DELETE /api/v1/cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), principal(r)); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
