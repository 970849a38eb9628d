// Package fixtures holds the demo marketplace catalog used by seed-db and
// by the in-memory storage backend.
package fixtures

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/bazaar/internal/domain/auth"
	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/product"
)

// Demo principals.
var (
	Customer = auth.Principal{ID: "customer-1", Role: auth.RoleCustomer}
	Acme     = auth.Principal{ID: "vendor-acme", Role: auth.RoleVendor}
	Globex   = auth.Principal{ID: "vendor-globex", Role: auth.RoleVendor}
)

// Products returns the demo listings of two vendors.
func Products() []product.Product {
	return []product.Product{
		{ID: "prod-kettle", VendorID: Acme.ID, Name: "Stovetop Kettle", Price: decimal.RequireFromString("34.90"), Stock: 25, Active: true},
		{ID: "prod-mug", VendorID: Acme.ID, Name: "Enamel Mug", Price: decimal.RequireFromString("9.50"), Stock: 120, Active: true},
		{ID: "prod-grinder", VendorID: Acme.ID, Name: "Burr Grinder", Price: decimal.RequireFromString("89.00"), Stock: 8, Active: true},
		{ID: "prod-lamp", VendorID: Globex.ID, Name: "Desk Lamp", Price: decimal.RequireFromString("42.00"), Stock: 15, Active: true},
		{ID: "prod-cable", VendorID: Globex.ID, Name: "USB-C Cable", Price: decimal.RequireFromString("7.25"), Stock: 300, Active: true},
		{ID: "prod-radio", VendorID: Globex.ID, Name: "Shortwave Radio", Price: decimal.RequireFromString("129.99"), Stock: 0, Active: false},
	}
}

// Coupons returns demo coupons valid for a year from now.
func Coupons(now time.Time) []coupon.Coupon {
	expires := now.AddDate(1, 0, 0).UTC().Truncate(time.Second)
	return []coupon.Coupon{
		{ID: "coupon-save10", VendorID: Acme.ID, Code: "SAVE10", DiscountPercent: 10, MaxUses: 1000, ExpiresAt: expires, Active: true},
		{ID: "coupon-welcome20", VendorID: Globex.ID, Code: "WELCOME20", DiscountPercent: 20, MaxUses: 100, ExpiresAt: expires, Active: true},
		{ID: "coupon-flash50", VendorID: Globex.ID, Code: "FLASH50", DiscountPercent: 50, MaxUses: 5, ExpiresAt: expires, Active: true},
	}
}
