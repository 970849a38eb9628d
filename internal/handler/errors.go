package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bazaar/internal/domain/auth"
	"github.com/xenking/bazaar/internal/domain/cart"
	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/order"
)

// errorKind returns the status and stable error code for a domain error.
// Unknown errors map to 500.
func errorKind(err error) (int, string) {
	var (
		validation  *order.ValidationError
		couponInput *coupon.ValidationError
		stock       *order.InsufficientStockError
		unavailable *order.ProductUnavailableError
		transition  *order.InvalidTransitionError
		invalid     *coupon.InvalidError
		cartProduct *cart.UnavailableError
	)
	switch {
	case isBodyError(err):
		return http.StatusBadRequest, "malformed_body"
	case errors.As(err, &validation), errors.As(err, &couponInput):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, order.ErrEmptyCart):
		return http.StatusBadRequest, "empty_cart"
	case errors.Is(err, cart.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "order_not_found"
	case errors.Is(err, cart.ErrItemNotFound):
		return http.StatusNotFound, "cart_item_not_found"
	case errors.As(err, &stock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, order.ErrAlreadyCancelled):
		return http.StatusConflict, "already_cancelled"
	case errors.As(err, &transition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, order.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate_request"
	case errors.Is(err, coupon.ErrDuplicateCode):
		return http.StatusConflict, "duplicate_coupon_code"
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity, "invalid_coupon"
	case errors.Is(err, coupon.ErrNotFound):
		// Only management calls surface a bare ErrNotFound. Redemption
		// wraps it in *coupon.InvalidError above.
		return http.StatusNotFound, "coupon_not_found"
	case errors.As(err, &cartProduct):
		if cartProduct.Stock >= 0 {
			return http.StatusConflict, "insufficient_stock"
		}
		return http.StatusUnprocessableEntity, "product_unavailable"
	case errors.As(err, &unavailable):
		return http.StatusUnprocessableEntity, "product_unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

// writeDomainError renders err. Internal errors are logged and replaced by
// a generic message.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorKind(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, status, code, "internal server error")
		return
	}

	var (
		validation  *order.ValidationError
		couponInput *coupon.ValidationError
		stock       *order.InsufficientStockError
	)
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Str(code) })
			e.Field("message", func(e *jx.Encoder) { e.Str(err.Error()) })
			if errors.As(err, &validation) {
				e.Field("field", func(e *jx.Encoder) { e.Str(validation.Field) })
			}
			if errors.As(err, &couponInput) {
				e.Field("field", func(e *jx.Encoder) { e.Str(couponInput.Field) })
			}
			if errors.As(err, &stock) {
				e.Field("lines", func(e *jx.Encoder) {
					e.Arr(func(e *jx.Encoder) {
						for _, l := range stock.Lines {
							e.Obj(func(e *jx.Encoder) {
								e.Field("product_id", func(e *jx.Encoder) { e.Str(l.ProductID) })
								e.Field("requested", func(e *jx.Encoder) { e.Int(l.Requested) })
								e.Field("available", func(e *jx.Encoder) { e.Int(l.Available) })
							})
						}
					})
				})
			}
		})
	})
}
