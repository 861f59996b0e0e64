package accounting

import (
	"strconv"

	"github.com/discedric/netbox-license/internal/license/domain"
)

// ComputeUsage totals the volume held by assignments against a license.
func ComputeUsage(license domain.License, assignments []domain.LicenseAssignment) domain.Usage {
	var current int64
	for _, a := range assignments {
		current += a.Volume
	}
	return UsageFromTotal(license, current)
}

// UsageFromTotal builds the usage view from an already aggregated total.
func UsageFromTotal(license domain.License, current int64) domain.Usage {
	usage := domain.Usage{
		LicenseID: license.ID.String(),
		Current:   current,
		Display:   UsageDisplay(current, license.VolumeLimit),
	}
	if license.VolumeLimit != nil {
		limit := *license.VolumeLimit
		available := limit - current
		if available < 0 {
			available = 0
		}
		usage.Limit = &limit
		usage.Available = &available
	}
	return usage
}

// UsageDisplay renders "used/limit", or "used/∞" without a limit.
func UsageDisplay(current int64, limit *int64) string {
	if limit == nil {
		return strconv.FormatInt(current, 10) + "/∞"
	}
	return strconv.FormatInt(current, 10) + "/" + strconv.FormatInt(*limit, 10)
}
