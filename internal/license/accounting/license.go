package accounting

import (
	"fmt"
	"strings"

	"github.com/discedric/netbox-license/internal/license/domain"
)

// ValidateLicense checks a license candidate against its license type.
//
// parent is the resolved parent license when the candidate references one.
// previous is the stored row on update.
//
// Rule order: license key, license type identity and immutability, date
// order, volume limit, parent relationship.
func (e Engine) ValidateLicense(candidate domain.License, licenseType domain.LicenseType, parent *ResolvedLicense, previous *domain.License) (domain.License, error) {
	out := candidate
	out.LicenseKey = strings.TrimSpace(out.LicenseKey)
	if out.LicenseKey == "" {
		return candidate, domain.NewValidationError(domain.KindInvalid, "license_key", domain.CodeRequired, "license key is required")
	}

	if out.LicenseTypeID == 0 {
		out.LicenseTypeID = licenseType.ID
	}
	if out.LicenseTypeID != licenseType.ID {
		return candidate, domain.NewValidationError(domain.KindReferential, "license_type", domain.CodeInvalidChoice,
			"license type does not match the resolved license type")
	}
	if previous != nil && previous.LicenseTypeID != out.LicenseTypeID {
		return candidate, domain.NewValidationError(domain.KindImmutability, "license_type", domain.CodeImmutableLicenseType,
			"license type cannot be changed once the license exists")
	}

	out.ManufacturerID = licenseType.ManufacturerID

	out.PurchaseDate = dateOnlyPtr(out.PurchaseDate)
	out.ExpiryDate = dateOnlyPtr(out.ExpiryDate)
	if out.PurchaseDate != nil && out.ExpiryDate != nil && out.ExpiryDate.Before(*out.PurchaseDate) {
		return candidate, domain.NewValidationError(domain.KindDateOrder, "expiry_date", domain.CodeExpiryBeforePurchase,
			"expiry date cannot be earlier than purchase date")
	}

	limit, err := deriveVolumeLimit(licenseType.VolumeType, out.VolumeLimit)
	if err != nil {
		return candidate, err
	}
	out.VolumeLimit = limit

	if err := e.checkParent(out, licenseType, parent); err != nil {
		return candidate, err
	}
	if out.ParentLicenseID != nil && *out.ParentLicenseID == 0 {
		out.ParentLicenseID = nil
	}

	return out, nil
}

func deriveVolumeLimit(volumeType domain.VolumeType, limit *int64) (*int64, error) {
	switch volumeType {
	case domain.VolumeTypeSingle:
		if limit != nil && *limit != 1 {
			return nil, domain.NewValidationError(domain.KindCapacity, "volume_limit", domain.CodeVolumeLimitNotOne,
				fmt.Sprintf("single licenses have a volume limit of 1, got %d", *limit))
		}
		return int64Ptr(1), nil
	case domain.VolumeTypeUnlimited:
		return nil, nil
	case domain.VolumeTypeVolume:
		if limit == nil {
			return nil, domain.NewValidationError(domain.KindCapacity, "volume_limit", domain.CodeVolumeLimitRequired,
				"volume licenses require a volume limit")
		}
		if *limit < 2 {
			return nil, domain.NewValidationError(domain.KindCapacity, "volume_limit", domain.CodeVolumeLimitTooSmall,
				fmt.Sprintf("volume licenses need a volume limit of at least 2, got %d", *limit))
		}
		return int64Ptr(*limit), nil
	default:
		return nil, domain.NewValidationError(domain.KindInvalid, "volume_type", domain.CodeInvalidChoice,
			fmt.Sprintf("unknown volume type %q", volumeType))
	}
}

func (e Engine) checkParent(candidate domain.License, licenseType domain.LicenseType, parent *ResolvedLicense) error {
	hasParent := candidate.ParentLicenseID != nil && *candidate.ParentLicenseID != 0
	if hasParent {
		if candidate.ID != 0 && *candidate.ParentLicenseID == candidate.ID {
			return domain.NewValidationError(domain.KindReferential, "parent_license", domain.CodeSelfReference,
				"a license cannot be its own parent")
		}
		if parent == nil || parent.License.ID != *candidate.ParentLicenseID {
			return domain.NewValidationError(domain.KindReferential, "parent_license", domain.CodeParentLicenseNotFound,
				"parent license not found")
		}
	}

	if !e.policy.EnforceParentConsistency {
		return nil
	}

	switch licenseType.LicenseModel {
	case domain.LicenseModelExpansion:
		if !hasParent {
			return domain.NewValidationError(domain.KindReferential, "parent_license", domain.CodeParentLicenseRequired,
				"an expansion license must be linked to a parent base license")
		}
		if parent.Type.LicenseModel != domain.LicenseModelBase {
			return domain.NewValidationError(domain.KindReferential, "parent_license", domain.CodeParentLicenseNotBase,
				"the parent license must be of a base license type")
		}
		if licenseType.BaseLicenseID != nil && parent.Type.ID != *licenseType.BaseLicenseID {
			return domain.NewValidationError(domain.KindReferential, "parent_license", domain.CodeParentLicenseWrongType,
				fmt.Sprintf("the parent license must be of license type %s", licenseType.BaseLicenseID.String()))
		}
	case domain.LicenseModelBase:
		if hasParent {
			return domain.NewValidationError(domain.KindReferential, "parent_license", domain.CodeParentLicenseForbidden,
				"base licenses cannot have a parent license")
		}
	}
	return nil
}

// CheckLimitCoversUsage rejects a volume limit that would leave a license
// over-assigned. A nil limit is unlimited.
func CheckLimitCoversUsage(limit *int64, usage int64) error {
	if limit == nil || usage <= *limit {
		return nil
	}
	msg := fmt.Sprintf("volume limit %d is below the %d units already assigned", *limit, usage)
	err := domain.NewValidationError(domain.KindCapacity, "volume_limit", domain.CodeVolumeLimitBelowUsage, msg)
	err.Current = int64Ptr(usage)
	err.Limit = int64Ptr(*limit)
	return err
}
