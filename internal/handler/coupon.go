package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// ListVendorCoupons handles GET /api/v1/vendor/coupons.
func (h *Handler) ListVendorCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.couponAdmin.List(r.Context(), principal(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeVendorCoupons(e, coupons) })
}

// CreateVendorCoupon handles POST /api/v1/vendor/coupons.
func (h *Handler) CreateVendorCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decodeCreateCoupon(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	c, err := h.couponAdmin.Create(ctx, principal(r), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	zctx.From(ctx).Info("Coupon created",
		zap.String("coupon_id", c.ID),
		zap.String("code", c.Code),
		zap.String("vendor_id", c.VendorID),
	)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeVendorCoupon(e, c) })
}

// ToggleVendorCoupon handles PUT /api/v1/vendor/coupons/{couponID}/toggle.
func (h *Handler) ToggleVendorCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.couponAdmin.Toggle(r.Context(), principal(r), chi.URLParam(r, "couponID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeVendorCoupon(e, c) })
}

// DeleteVendorCoupon handles DELETE /api/v1/vendor/coupons/{couponID}.
func (h *Handler) DeleteVendorCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.couponAdmin.Delete(r.Context(), principal(r), chi.URLParam(r, "couponID")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
