package accounting

import (
	"github.com/discedric/netbox-license/internal/license/domain"
)

// ValidateAssignment runs admission control for an assignment candidate.
//
// others must hold the assignments already stored for the same license; the
// candidate's own row is skipped if present, so an update is checked against
// everybody else. device is the resolved target device, nil for virtual
// machine assignments.
//
// Rule order: target XOR, license identity, copy-down, volume type branch.
func (e Engine) ValidateAssignment(candidate domain.LicenseAssignment, license ResolvedLicense, device *DeviceInfo, others []domain.LicenseAssignment) (domain.LicenseAssignment, error) {
	out := candidate
	hasDevice := out.DeviceID != nil && *out.DeviceID != 0
	hasVM := out.VirtualMachineID != nil && *out.VirtualMachineID != 0
	switch {
	case hasDevice && hasVM:
		return candidate, domain.NewValidationError(domain.KindStructural, "", domain.CodeBothTargetsSet,
			"assign the license to either a device or a virtual machine, not both")
	case !hasDevice && !hasVM:
		return candidate, domain.NewValidationError(domain.KindStructural, "", domain.CodeNoTargetSet,
			"assign the license to either a device or a virtual machine")
	}

	if out.LicenseID == 0 {
		out.LicenseID = license.License.ID
	}
	if out.LicenseID != license.License.ID {
		return candidate, domain.NewValidationError(domain.KindReferential, "license", domain.CodeInvalidChoice,
			"license does not match the resolved license")
	}

	out.ManufacturerID = license.License.ManufacturerID
	out.DeviceManufacturerID = nil
	if hasDevice {
		if device != nil && device.ID != *out.DeviceID {
			return candidate, domain.NewValidationError(domain.KindStructural, "device", domain.CodeTargetMismatch,
				"resolved device does not match the assignment target")
		}
		if device != nil && device.ManufacturerID != 0 {
			manufacturer := device.ManufacturerID
			out.DeviceManufacturerID = &manufacturer
		}
	} else {
		out.DeviceID = nil
	}
	if !hasVM {
		out.VirtualMachineID = nil
	}

	switch license.Type.VolumeType {
	case domain.VolumeTypeSingle:
		out.Volume = 1
		if n := countOthers(out, others); n >= 1 {
			return candidate, domain.NewValidationError(domain.KindCapacity, "license", domain.CodeSingleAlreadyAssigned,
				"single license is already assigned")
		}
	case domain.VolumeTypeVolume:
		if out.Volume < 1 {
			return candidate, volumeBelowMinimum()
		}
		if license.License.VolumeLimit == nil {
			return candidate, domain.NewValidationError(domain.KindCapacity, "volume_limit", domain.CodeVolumeLimitRequired,
				"volume license has no volume limit")
		}
		current := sumOthers(out, others)
		limit := *license.License.VolumeLimit
		// current+volume can overflow int64; compare without adding.
		if out.Volume > limit || current > limit-out.Volume {
			return candidate, domain.CapacityExceeded(current, limit, out.Volume)
		}
	case domain.VolumeTypeUnlimited:
		if out.Volume < 1 {
			return candidate, volumeBelowMinimum()
		}
	default:
		return candidate, domain.NewValidationError(domain.KindInvalid, "volume_type", domain.CodeInvalidChoice,
			"license type has an unknown volume type")
	}

	return out, nil
}

func volumeBelowMinimum() error {
	return domain.NewValidationError(domain.KindCapacity, "volume", domain.CodeVolumeBelowMinimum,
		"volume must be at least 1")
}

func isOther(candidate, row domain.LicenseAssignment) bool {
	if candidate.ID != 0 && row.ID == candidate.ID {
		return false
	}
	return row.LicenseID == 0 || row.LicenseID == candidate.LicenseID
}

func countOthers(candidate domain.LicenseAssignment, rows []domain.LicenseAssignment) int {
	n := 0
	for _, row := range rows {
		if isOther(candidate, row) {
			n++
		}
	}
	return n
}

func sumOthers(candidate domain.LicenseAssignment, rows []domain.LicenseAssignment) int64 {
	var total int64
	for _, row := range rows {
		if isOther(candidate, row) {
			total += row.Volume
		}
	}
	return total
}
