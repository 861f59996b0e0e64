package accounting

import (
	"time"

	"github.com/discedric/netbox-license/internal/license/domain"
)

const secondsPerDay = 24 * 60 * 60

// ComputeExpiryStatus reports how far a license is through its lifetime.
// It returns nil when the license has no expiry date.
func (e Engine) ComputeExpiryStatus(license domain.License, today time.Time) *domain.ExpiryStatus {
	if license.ExpiryDate == nil || license.ExpiryDate.IsZero() {
		return nil
	}
	now := DateOnly(today)
	expiry := DateOnly(*license.ExpiryDate)
	daysLeft := daysBetween(now, expiry)
	expired := daysLeft < 0

	percent := e.policy.ProgressFloor
	if expired {
		percent = 100
	}
	if license.PurchaseDate != nil && !license.PurchaseDate.IsZero() {
		purchase := DateOnly(*license.PurchaseDate)
		total := daysBetween(purchase, expiry)
		if total > 0 {
			elapsed := daysBetween(purchase, now)
			percent = clamp(100*elapsed/total, 0, 100)
		} else if daysLeft <= 0 {
			percent = 100
		}
	}

	return &domain.ExpiryStatus{
		Percent:  percent,
		DaysLeft: daysLeft,
		Status:   e.expiryColor(daysLeft),
		Expired:  expired,
	}
}

func (e Engine) expiryColor(daysLeft int) domain.ExpiryColor {
	switch {
	case daysLeft < 0:
		return domain.ExpiryDanger
	case daysLeft < e.policy.WarningDays:
		return domain.ExpiryWarning
	case daysLeft < e.policy.InfoDays:
		return domain.ExpiryInfo
	default:
		return domain.ExpirySuccess
	}
}

// daysBetween counts whole days between two dates. It works on Unix seconds
// since time.Sub saturates at roughly 292 years.
func daysBetween(from, to time.Time) int {
	return int((to.Unix() - from.Unix()) / secondsPerDay)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
