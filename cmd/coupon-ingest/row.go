package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/bazaar/internal/domain/coupon"
)

// parseRow turns a code,discount_percent,max_uses,expires_at record into a
// coupon owned by vendorID. The coupon id is derived from the code so that
// re-running an ingest is stable.
func parseRow(record []string, vendorID string) (coupon.Coupon, error) {
	if len(record) != 4 {
		return coupon.Coupon{}, errors.Errorf("want 4 fields, got %d", len(record))
	}

	code := coupon.Normalize(record[0])
	if len(code) < coupon.MinCodeLen || len(code) > coupon.MaxCodeLen {
		return coupon.Coupon{}, errors.Errorf("code %q: length must be %d..%d", code, coupon.MinCodeLen, coupon.MaxCodeLen)
	}
	percent, err := strconv.Atoi(strings.TrimSpace(record[1]))
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "discount_percent")
	}
	if percent < 1 || percent > 100 {
		return coupon.Coupon{}, errors.Errorf("discount_percent %d out of range 1..100", percent)
	}
	maxUses, err := strconv.Atoi(strings.TrimSpace(record[2]))
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "max_uses")
	}
	if maxUses < 1 {
		return coupon.Coupon{}, errors.Errorf("max_uses %d must be positive", maxUses)
	}
	expires, err := time.Parse(time.RFC3339, strings.TrimSpace(record[3]))
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "expires_at")
	}

	return coupon.Coupon{
		ID:              uuid.NewSHA1(uuid.NameSpaceOID, []byte(code)).String(),
		VendorID:        vendorID,
		Code:            code,
		DiscountPercent: percent,
		MaxUses:         maxUses,
		ExpiresAt:       expires.UTC(),
		Active:          true,
	}, nil
}

// isHeader reports whether record is the optional CSV header line.
func isHeader(record []string) bool {
	return len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "code")
}
