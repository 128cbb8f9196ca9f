// Package land computes parcel valuation and validates purchase offers.
package land

import (
	"time"

	apperrors "github.com/edutown/economy/internal/platform/errors"

	"github.com/edutown/economy/internal/economy/domain/money"
)

// AppreciationRate is the weekly compound appreciation in percent for owned
// parcels.
const AppreciationRate = 2.0

// CompleteWeeksOwned returns the number of full weeks between purchase and
// now, clamped to zero for clock skew.
func CompleteWeeksOwned(purchasedAt, now time.Time) int64 {
	if purchasedAt.IsZero() {
		return 0
	}
	elapsed := now.Sub(purchasedAt)
	if elapsed < 0 {
		return 0
	}
	return int64(elapsed / (7 * 24 * time.Hour))
}

// CurrentValue returns the parcel value at now. Owned parcels appreciate 2%
// per complete week of ownership; unowned parcels keep their base value.
func CurrentValue(baseValue money.Cents, owned bool, purchasedAt, now time.Time) money.Cents {
	if !owned {
		return baseValue
	}
	return money.Compound(baseValue, AppreciationRate, CompleteWeeksOwned(purchasedAt, now))
}

// MeetsOfferFloor reports whether an offer reaches 90% of the parcel value.
// The comparison is exact integer math: offer × 10 ≥ value × 9.
func MeetsOfferFloor(offer, value money.Cents) bool {
	return offer*10 >= value*9
}

// ValidateOffer checks a purchase offer against the parcel's current value.
func ValidateOffer(offer, value money.Cents) error {
	if offer <= 0 {
		return apperrors.New(apperrors.CodeAmountNotPositive, "offered price must be greater than zero")
	}
	if !MeetsOfferFloor(offer, value) {
		return apperrors.WithMetadata(apperrors.CodeLandOfferTooLow,
			"offered price is below 90% of the parcel value",
			map[string]string{"parcel_value": value.String()})
	}
	return nil
}
