package billing

import (
	"strings"
	"time"

	"github.com/ManuelReschke/CalcFox/app/models"
)

// normalizeInterval maps the checkout plan note to a billing interval.
// Anything that is not yearly is billed monthly.
func normalizeInterval(interval string) string {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case models.BillingIntervalYearly, "year", "annual":
		return models.BillingIntervalYearly
	default:
		return models.BillingIntervalMonthly
	}
}

// isKnownInterval reports whether a checkout request names a plan we sell.
func isKnownInterval(interval string) bool {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case models.BillingIntervalMonthly, models.BillingIntervalYearly:
		return true
	default:
		return false
	}
}

// ValidityWindow returns the pro window that starts at anchor.
func ValidityWindow(interval string, anchor time.Time) (time.Time, time.Time) {
	if normalizeInterval(interval) == models.BillingIntervalYearly {
		return anchor, anchor.AddDate(1, 0, 0)
	}
	return anchor, anchor.AddDate(0, 1, 0)
}
