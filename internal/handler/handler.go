// Package handler exposes the marketplace over HTTP/JSON.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/bazaar/internal/domain/auth"
	"github.com/xenking/bazaar/internal/domain/cart"
	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/order"
)

const (
	maxBodySize    = 1 << 20
	requestTimeout = 5 * time.Second
)

// Handler serves the cart, order and coupon endpoints.
type Handler struct {
	carts       *cart.Service
	orders      *order.Service
	coupons     *coupon.Validator
	couponAdmin *coupon.Service
	authn       *Authenticator
	metrics     *metrics
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	carts *cart.Service,
	orders *order.Service,
	coupons *coupon.Validator,
	couponAdmin *coupon.Service,
	authn *Authenticator,
	mp metric.MeterProvider,
) (*Handler, error) {
	m, err := newMetrics(mp)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics")
	}
	return &Handler{
		carts:       carts,
		orders:      orders,
		coupons:     coupons,
		couponAdmin: couponAdmin,
		authn:       authn,
		metrics:     m,
	}, nil
}

// Routes returns the API router mounted under /api/v1.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CleanPath, middleware.Timeout(requestTimeout), limitBody)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/coupons/{code}", h.ValidateCoupon)

		r.Group(func(r chi.Router) {
			r.Use(h.authn.Middleware)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Delete("/", h.ClearCart)
				r.Post("/items", h.AddCartItem)
				r.Put("/items/{itemID}", h.UpdateCartItem)
				r.Delete("/items/{itemID}", h.RemoveCartItem)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", h.CreateOrder)
				r.Get("/", h.ListOrders)
				r.Get("/{orderID}", h.GetOrder)
				r.Put("/{orderID}/status", h.SetOrderStatus)
				r.Post("/{orderID}/cancel", h.CancelOrder)
			})

			r.Route("/vendor", func(r chi.Router) {
				r.Get("/orders", h.ListVendorOrders)
				r.Get("/coupons", h.ListVendorCoupons)
				r.Post("/coupons", h.CreateVendorCoupon)
				r.Put("/coupons/{couponID}/toggle", h.ToggleVendorCoupon)
				r.Delete("/coupons/{couponID}", h.DeleteVendorCoupon)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		next.ServeHTTP(w, r)
	})
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}
