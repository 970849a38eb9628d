package order

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/bazaar/internal/domain/auth"
	"github.com/xenking/bazaar/internal/domain/cart"
	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/product"
)

// CreateOrderRequest holds the input for placing an order from the cart.
type CreateOrderRequest struct {
	ShippingAddress *Address
	// PaymentMethod is recorded verbatim; DefaultPaymentMethod when empty.
	PaymentMethod string
	CouponCode    string
	// IdempotencyKey, when set, makes retries of the same request return
	// the order created by the first successful attempt.
	IdempotencyKey string
}

// Option configures a Service.
type Option func(*Service)

// WithIdempotency enables idempotency-key handling for CreateOrder.
func WithIdempotency(store IdempotencyStore) Option {
	return func(s *Service) { s.idem = store }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the order transaction engine and status layer.
type Service struct {
	tx       Transactor
	orders   Repository
	carts    cart.Repository
	products product.Repository
	coupons  coupon.Repository
	idem     IdempotencyStore
	now      func() time.Time
	newID    func() string
}

// NewService creates an order Service with the required store dependencies.
func NewService(
	tx Transactor,
	orders Repository,
	carts cart.Repository,
	products product.Repository,
	coupons coupon.Repository,
	opts ...Option,
) *Service {
	s := &Service{
		tx:       tx,
		orders:   orders,
		carts:    carts,
		products: products,
		coupons:  coupons,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Placement is the outcome of placing an order.
type Placement struct {
	Order *Order
	// Replayed is set when the idempotency key matched an order placed by an
	// earlier request. Nothing was written.
	Replayed bool
}

// CreateOrder turns the principal's cart into an order. Loading the cart,
// pricing, coupon redemption, persistence, stock decrement and cart
// clearing happen in one transaction; on any error none of them is visible.
func (s *Service) CreateOrder(ctx context.Context, p auth.Principal, req CreateOrderRequest) (*Order, error) {
	res, err := s.PlaceOrder(ctx, p, req)
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

// PlaceOrder is CreateOrder that also reports whether the result was
// replayed from an earlier request with the same idempotency key.
func (s *Service) PlaceOrder(ctx context.Context, p auth.Principal, req CreateOrderRequest) (Placement, error) {
	if err := auth.Authorize(p, auth.ActionPlaceOrder, auth.Resource{}); err != nil {
		return Placement{}, err
	}
	if err := req.ShippingAddress.Validate(); err != nil {
		return Placement{}, err
	}
	if req.CouponCode != "" && coupon.Normalize(req.CouponCode) == "" {
		return Placement{}, &ValidationError{Field: "coupon_code", Reason: "must not be blank"}
	}

	if req.IdempotencyKey == "" || s.idem == nil {
		o, err := s.placeOrder(ctx, p.ID, req)
		if err != nil {
			return Placement{}, err
		}
		return Placement{Order: o}, nil
	}
	return s.placeOrderOnce(ctx, p.ID, req)
}

func (s *Service) placeOrderOnce(ctx context.Context, customerID string, req CreateOrderRequest) (Placement, error) {
	key := req.IdempotencyKey

	id, ok, err := s.idem.Recall(ctx, customerID, key)
	if err != nil {
		return Placement{}, errors.Wrap(err, "recall idempotency key")
	}
	if ok {
		o, err := s.load(ctx, id)
		if err != nil {
			return Placement{}, err
		}
		return Placement{Order: o, Replayed: true}, nil
	}

	locked, err := s.idem.TryLock(ctx, customerID, key)
	if err != nil {
		return Placement{}, errors.Wrap(err, "lock idempotency key")
	}
	if !locked {
		return Placement{}, ErrDuplicateRequest
	}

	o, err := s.placeOrder(ctx, customerID, req)
	if err != nil {
		// The claim expires on its own if release fails.
		_ = s.idem.Release(ctx, customerID, key)
		return Placement{}, err
	}

	// The order exists; a failure to remember it must not be reported as a
	// failed placement.
	_ = s.idem.Remember(ctx, customerID, key, o.ID)
	return Placement{Order: o}, nil
}

// cartLine is a cart item expanded with its product at order time.
type cartLine struct {
	item    cart.Item
	product product.Product
}

func (s *Service) placeOrder(ctx context.Context, customerID string, req CreateOrderRequest) (*Order, error) {
	paymentMethod := strings.TrimSpace(req.PaymentMethod)
	if paymentMethod == "" {
		paymentMethod = DefaultPaymentMethod
	}
	code := coupon.Normalize(req.CouponCode)
	now := s.now()

	o := &Order{
		ID:              s.newID(),
		CustomerID:      customerID,
		ShippingAddress: *req.ShippingAddress,
		PaymentMethod:   paymentMethod,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		lines, err := s.loadCart(ctx, customerID)
		if err != nil {
			return err
		}

		subtotal := decimal.Zero
		o.Items = make([]Item, len(lines))
		for i, l := range lines {
			o.Items[i] = Item{
				ID:        s.newID(),
				OrderID:   o.ID,
				ProductID: l.product.ID,
				VendorID:  l.product.VendorID,
				Quantity:  l.item.Quantity,
				Price:     l.product.Price,
			}
			subtotal = subtotal.Add(l.product.Price.Mul(decimal.NewFromInt(int64(l.item.Quantity))))
		}
		subtotal = subtotal.Round(2)

		discount := decimal.Zero
		if code != "" {
			c, err := coupon.Lookup(ctx, s.coupons, code, now)
			if err != nil {
				return err
			}
			discount = c.Discount(subtotal)
			if err := coupon.Redeem(ctx, s.coupons, c, now); err != nil {
				return err
			}
			o.CouponCode = c.Code
		}

		total := subtotal.Sub(discount)
		if total.IsNegative() {
			total = decimal.Zero
		}
		o.Total = total.Round(2)
		o.DiscountAmount = discount.Round(2)

		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		for _, it := range byProduct(o.Items) {
			if err := s.products.AdjustStock(ctx, it.ProductID, -it.Quantity); err != nil {
				if errors.Is(err, product.ErrInsufficientStock) {
					return s.shortageOf(ctx, it)
				}
				return errors.Wrapf(err, "decrement stock of %s", it.ProductID)
			}
		}

		if err := s.carts.Clear(ctx, customerID); err != nil {
			return errors.Wrap(err, "clear cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// loadCart reads the cart and its products inside the transaction and
// rejects lines that cannot be fulfilled from the current snapshot.
func (s *Service) loadCart(ctx context.Context, customerID string) ([]cartLine, error) {
	items, err := s.carts.ListItems(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart items")
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]cartLine, len(items))
	var short []Shortage
	for i, it := range items {
		p, ok := byID[it.ProductID]
		if !ok || !p.Available() {
			return nil, &ProductUnavailableError{ProductID: it.ProductID}
		}
		if it.Quantity > p.Stock {
			short = append(short, Shortage{ProductID: p.ID, Requested: it.Quantity, Available: p.Stock})
		}
		lines[i] = cartLine{item: it, product: p}
	}
	if len(short) > 0 {
		return nil, &InsufficientStockError{Lines: short}
	}
	return lines, nil
}

// shortageOf builds the error for a line whose conditional decrement lost a
// race with a concurrent order.
func (s *Service) shortageOf(ctx context.Context, it Item) error {
	l := Shortage{ProductID: it.ProductID, Requested: it.Quantity}
	if p, err := s.products.GetByID(ctx, it.ProductID); err == nil {
		l.Available = p.Stock
	}
	return &InsufficientStockError{Lines: []Shortage{l}}
}

// GetOrder returns an order visible to the principal.
func (s *Service) GetOrder(ctx context.Context, p auth.Principal, id string) (*Order, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(p, auth.ActionReadOrder, resourceOf(o)); err != nil {
		return nil, err
	}
	return o, nil
}

// ListOrdersForCustomer returns the orders the principal placed.
func (s *Service) ListOrdersForCustomer(ctx context.Context, p auth.Principal) ([]Order, error) {
	if err := auth.Authorize(p, auth.ActionListCustomerOrders, auth.Resource{}); err != nil {
		return nil, err
	}
	orders, err := s.orders.ListByCustomer(ctx, p.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list customer orders")
	}
	return orders, nil
}

// ListOrderLinesForVendor returns the order lines the principal fulfills.
func (s *Service) ListOrderLinesForVendor(ctx context.Context, p auth.Principal) ([]VendorLine, error) {
	if err := auth.Authorize(p, auth.ActionListVendorLines, auth.Resource{}); err != nil {
		return nil, err
	}
	lines, err := s.orders.ListLinesByVendor(ctx, p.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list vendor order lines")
	}
	return lines, nil
}

// SetOrderStatus moves an order forward in fulfillment on behalf of a
// vendor with a line in it. Requesting StatusCancelled is a cancellation
// and is authorized as one.
func (s *Service) SetOrderStatus(ctx context.Context, p auth.Principal, id string, to Status) (*Order, error) {
	if !to.Valid() {
		return nil, &ValidationError{Field: "status", Reason: "is not a known order status"}
	}
	if to == StatusCancelled {
		return s.CancelOrder(ctx, p, id)
	}

	var out *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := auth.Authorize(p, auth.ActionAdvanceOrder, resourceOf(o)); err != nil {
			return err
		}
		if !o.Status.CanTransition(to) {
			return &InvalidTransitionError{From: o.Status, To: to}
		}
		if err := s.transition(ctx, o, to); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CancelOrder cancels the principal's order and restores the stock of
// every line. Coupon usage is deliberately not given back: a redeemed
// coupon stays spent.
func (s *Service) CancelOrder(ctx context.Context, p auth.Principal, id string) (*Order, error) {
	var out *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := auth.Authorize(p, auth.ActionCancelOrder, resourceOf(o)); err != nil {
			return err
		}
		if o.Status == StatusCancelled {
			return ErrAlreadyCancelled
		}
		if !o.Status.CanTransition(StatusCancelled) {
			return &InvalidTransitionError{From: o.Status, To: StatusCancelled}
		}
		if err := s.transition(ctx, o, StatusCancelled); err != nil {
			return err
		}

		for _, it := range byProduct(o.Items) {
			err := s.products.AdjustStock(ctx, it.ProductID, it.Quantity)
			if err != nil && !errors.Is(err, product.ErrNotFound) {
				return errors.Wrapf(err, "restore stock of %s", it.ProductID)
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// transition applies a compare-and-set status change. When another request
// won the race, the error reflects the status it left behind.
func (s *Service) transition(ctx context.Context, o *Order, to Status) error {
	now := s.now()
	err := s.orders.UpdateStatus(ctx, o.ID, o.Status, to, now)
	if errors.Is(err, ErrStatusConflict) {
		current, lerr := s.load(ctx, o.ID)
		if lerr != nil {
			return lerr
		}
		if to == StatusCancelled && current.Status == StatusCancelled {
			return ErrAlreadyCancelled
		}
		return &InvalidTransitionError{From: current.Status, To: to}
	}
	if err != nil {
		return errors.Wrap(err, "update order status")
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

func (s *Service) load(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	return o, nil
}

// byProduct returns items ordered by product id. Every transaction locks
// stock rows in this order, so two of them never wait on each other.
func byProduct(items []Item) []Item {
	return slices.SortedFunc(slices.Values(items), func(a, b Item) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
}

func resourceOf(o *Order) auth.Resource {
	return auth.Resource{OwnerID: o.CustomerID, VendorIDs: o.VendorIDs()}
}
