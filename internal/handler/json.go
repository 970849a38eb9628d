package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/bazaar/internal/domain/cart"
	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/order"
)

// bodyError marks a request body that could not be decoded.
type bodyError struct {
	err error
}

func (e *bodyError) Error() string { return "malformed request body: " + e.err.Error() }

func (e *bodyError) Unwrap() error { return e.err }

func readBody(r *http.Request) (*jx.Decoder, error) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, &bodyError{err: err}
	}
	if len(b) == 0 {
		b = []byte("{}")
	}
	return jx.DecodeBytes(b), nil
}

type addItemRequest struct {
	ProductID string
	Quantity  int
}

func decodeAddItem(r *http.Request) (addItemRequest, error) {
	var req addItemRequest
	d, err := readBody(r)
	if err != nil {
		return req, err
	}
	err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "product_id":
			v, err := d.Str()
			req.ProductID = v
			return err
		case "quantity":
			v, err := d.Int()
			req.Quantity = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, &bodyError{err: err}
	}
	return req, nil
}

func decodeQuantity(r *http.Request) (int, error) {
	var quantity int
	d, err := readBody(r)
	if err != nil {
		return 0, err
	}
	err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "quantity" {
			return d.Skip()
		}
		v, err := d.Int()
		quantity = v
		return err
	})
	if err != nil {
		return 0, &bodyError{err: err}
	}
	return quantity, nil
}

func decodeCreateCoupon(r *http.Request) (coupon.CreateRequest, error) {
	var req coupon.CreateRequest
	d, err := readBody(r)
	if err != nil {
		return req, err
	}
	err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "code":
			v, err := d.Str()
			req.Code = v
			return err
		case "discount_percent":
			v, err := d.Int()
			req.DiscountPercent = v
			return err
		case "max_uses":
			v, err := d.Int()
			req.MaxUses = v
			return err
		case "expires_at":
			v, err := d.Str()
			if err != nil {
				return err
			}
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return errors.Wrap(err, "expires_at")
			}
			req.ExpiresAt = t
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, &bodyError{err: err}
	}
	return req, nil
}

func decodeCreateOrder(r *http.Request) (order.CreateOrderRequest, error) {
	var req order.CreateOrderRequest
	d, err := readBody(r)
	if err != nil {
		return req, err
	}
	err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "shipping_address":
			if d.Next() == jx.Null {
				return d.Null()
			}
			addr, err := decodeAddress(d)
			req.ShippingAddress = addr
			return err
		case "payment_method":
			v, err := d.Str()
			req.PaymentMethod = v
			return err
		case "coupon_code":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Str()
			req.CouponCode = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, &bodyError{err: err}
	}
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	return req, nil
}

func decodeAddress(d *jx.Decoder) (*order.Address, error) {
	var a order.Address
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var dst *string
		switch string(key) {
		case "street":
			dst = &a.Street
		case "city":
			dst = &a.City
		case "state":
			dst = &a.State
		case "zip":
			dst = &a.Zip
		default:
			return d.Skip()
		}
		v, err := d.Str()
		*dst = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func decodeStatus(r *http.Request) (order.Status, error) {
	var status string
	d, err := readBody(r)
	if err != nil {
		return "", err
	}
	err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "status" {
			return d.Skip()
		}
		v, err := d.Str()
		status = v
		return err
	})
	if err != nil {
		return "", &bodyError{err: err}
	}
	if status == "" {
		return "", &order.ValidationError{Field: "status", Reason: "is required"}
	}
	return order.Status(status), nil
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Str(code) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeAddress(e *jx.Encoder, a order.Address) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("street", func(e *jx.Encoder) { e.Str(a.Street) })
		e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
		e.Field("state", func(e *jx.Encoder) { e.Str(a.State) })
		e.Field("zip", func(e *jx.Encoder) { e.Str(a.Zip) })
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("customer_id", func(e *jx.Encoder) { e.Str(o.CustomerID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("total", func(e *jx.Encoder) { encodeMoney(e, o.Total) })
		e.Field("discount_amount", func(e *jx.Encoder) { encodeMoney(e, o.DiscountAmount) })
		e.Field("coupon_code", func(e *jx.Encoder) {
			if o.CouponCode == "" {
				e.Null()
				return
			}
			e.Str(o.CouponCode)
		})
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(o.PaymentMethod) })
		e.Field("shipping_address", func(e *jx.Encoder) { encodeAddress(e, o.ShippingAddress) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(it.ID) })
						e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("vendor_id", func(e *jx.Encoder) { e.Str(it.VendorID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("price", func(e *jx.Encoder) { encodeMoney(e, it.Price) })
					})
				}
			})
		})
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		e.Field("updated_at", func(e *jx.Encoder) { encodeTime(e, o.UpdatedAt) })
	})
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.Arr(func(e *jx.Encoder) {
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
	})
}

func encodeVendorLines(e *jx.Encoder, lines []order.VendorLine) {
	e.Arr(func(e *jx.Encoder) {
		for _, l := range lines {
			e.Obj(func(e *jx.Encoder) {
				e.Field("order_id", func(e *jx.Encoder) { e.Str(l.OrderID) })
				e.Field("item_id", func(e *jx.Encoder) { e.Str(l.ID) })
				e.Field("product_id", func(e *jx.Encoder) { e.Str(l.ProductID) })
				e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
				e.Field("price", func(e *jx.Encoder) { encodeMoney(e, l.Price) })
				e.Field("customer_id", func(e *jx.Encoder) { e.Str(l.CustomerID) })
				e.Field("order_status", func(e *jx.Encoder) { e.Str(string(l.OrderStatus)) })
				e.Field("shipping_address", func(e *jx.Encoder) { encodeAddress(e, l.ShippingAddress) })
				e.Field("order_created_at", func(e *jx.Encoder) { encodeTime(e, l.OrderCreatedAt) })
			})
		}
	})
}

func encodeCartItem(e *jx.Encoder, it cart.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(it.ID) })
		e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, it.CreatedAt) })
	})
}

func encodeCart(e *jx.Encoder, items []cart.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range items {
					encodeCartItem(e, it)
				}
			})
		})
	})
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
		e.Field("discount_percent", func(e *jx.Encoder) { e.Int(c.DiscountPercent) })
		e.Field("expires_at", func(e *jx.Encoder) { encodeTime(e, c.ExpiresAt) })
		e.Field("remaining_uses", func(e *jx.Encoder) { e.Int(c.MaxUses - c.UsedCount) })
	})
}

func encodeVendorCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(c.ID) })
		e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
		e.Field("discount_percent", func(e *jx.Encoder) { e.Int(c.DiscountPercent) })
		e.Field("max_uses", func(e *jx.Encoder) { e.Int(c.MaxUses) })
		e.Field("used_count", func(e *jx.Encoder) { e.Int(c.UsedCount) })
		e.Field("expires_at", func(e *jx.Encoder) { encodeTime(e, c.ExpiresAt) })
		e.Field("active", func(e *jx.Encoder) { e.Bool(c.Active) })
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, c.CreatedAt) })
	})
}

func encodeVendorCoupons(e *jx.Encoder, coupons []coupon.Coupon) {
	e.Arr(func(e *jx.Encoder) {
		for i := range coupons {
			encodeVendorCoupon(e, &coupons[i])
		}
	})
}

func isBodyError(err error) bool {
	var b *bodyError
	return errors.As(err, &b)
}
