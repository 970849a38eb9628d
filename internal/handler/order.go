package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CreateOrder handles POST /api/v1/orders. An Idempotency-Key header makes
// retries return the first order instead of placing a new one.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decodeCreateOrder(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	res, err := h.orders.PlaceOrder(ctx, principal(r), req)
	if err != nil {
		_, code := errorKind(err)
		h.metrics.rejected(ctx, code)
		writeDomainError(w, r, err)
		return
	}
	o := res.Order
	if res.Replayed {
		zctx.From(ctx).Debug("Order replayed", zap.String("order_id", o.ID))
		writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
		return
	}

	h.metrics.ordersPlaced.Add(ctx, 1)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.Int("order.items", len(o.Items)),
	)
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("customer_id", o.CustomerID),
		zap.String("total", o.Total.StringFixed(2)),
		zap.String("coupon", o.CouponCode),
	)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// ListOrders handles GET /api/v1/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrdersForCustomer(r.Context(), principal(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

// GetOrder handles GET /api/v1/orders/{orderID}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), principal(r), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// SetOrderStatus handles PUT /api/v1/orders/{orderID}/status.
func (h *Handler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := decodeStatus(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	o, err := h.orders.SetOrderStatus(ctx, principal(r), chi.URLParam(r, "orderID"), status)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.metrics.statusChanged(ctx, string(o.Status))
	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)),
	)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// CancelOrder handles POST /api/v1/orders/{orderID}/cancel.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.orders.CancelOrder(ctx, principal(r), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.metrics.ordersCancelled.Add(ctx, 1)
	zctx.From(ctx).Info("Order cancelled", zap.String("order_id", o.ID))
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// ListVendorOrders handles GET /api/v1/vendor/orders.
func (h *Handler) ListVendorOrders(w http.ResponseWriter, r *http.Request) {
	lines, err := h.orders.ListOrderLinesForVendor(r.Context(), principal(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeVendorLines(e, lines) })
}

// ValidateCoupon handles GET /api/v1/coupons/{code}. It does not consume a
// use.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.Validate(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, c) })
}
