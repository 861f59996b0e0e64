package accounting

import (
	"fmt"
	"strings"

	"github.com/discedric/netbox-license/internal/license/domain"
)

// ValidateLicenseType checks a license type candidate.
//
// base is the resolved base license type (nil when none is referenced or it
// could not be found), previous is the stored row on update and
// existingLicenses the number of licenses that reference the type.
//
// Rule order: name, manufacturer, choices, classification immutability,
// base/expansion relationship.
func (e Engine) ValidateLicenseType(candidate domain.LicenseType, base, previous *domain.LicenseType, existingLicenses int64) (domain.LicenseType, error) {
	out := candidate
	out.Name = strings.TrimSpace(out.Name)
	if out.Name == "" {
		return candidate, domain.NewValidationError(domain.KindInvalid, "name", domain.CodeRequired, "name is required")
	}
	if out.ManufacturerID == 0 {
		return candidate, domain.NewValidationError(domain.KindInvalid, "manufacturer", domain.CodeRequired, "manufacturer is required")
	}

	volumeType, err := ParseVolumeType(string(out.VolumeType))
	if err != nil {
		return candidate, err
	}
	licenseModel, err := ParseLicenseModel(string(out.LicenseModel))
	if err != nil {
		return candidate, err
	}
	purchaseModel, err := ParsePurchaseModel(string(out.PurchaseModel))
	if err != nil {
		return candidate, err
	}
	out.VolumeType, out.LicenseModel, out.PurchaseModel = volumeType, licenseModel, purchaseModel

	if out.VolumeRelation != nil {
		if strings.TrimSpace(string(*out.VolumeRelation)) == "" {
			out.VolumeRelation = nil
		} else {
			relation, err := ParseVolumeRelation(string(*out.VolumeRelation))
			if err != nil {
				return candidate, err
			}
			out.VolumeRelation = &relation
		}
	}

	if previous != nil && existingLicenses > 0 {
		if previous.LicenseModel != out.LicenseModel {
			return candidate, immutableClassification("license_model", existingLicenses)
		}
		if previous.VolumeType != out.VolumeType {
			return candidate, immutableClassification("volume_type", existingLicenses)
		}
	}

	switch out.LicenseModel {
	case domain.LicenseModelExpansion:
		if out.BaseLicenseID == nil || *out.BaseLicenseID == 0 {
			return candidate, domain.NewValidationError(domain.KindReferential, "base_license", domain.CodeBaseLicenseRequired,
				"an expansion license type must reference a base license type")
		}
		if out.ID != 0 && *out.BaseLicenseID == out.ID {
			return candidate, domain.NewValidationError(domain.KindReferential, "base_license", domain.CodeSelfReference,
				"a license type cannot be its own base license")
		}
		if base == nil || base.ID != *out.BaseLicenseID {
			return candidate, domain.NewValidationError(domain.KindReferential, "base_license", domain.CodeBaseLicenseNotFound,
				"base license type not found")
		}
		if base.LicenseModel != domain.LicenseModelBase {
			return candidate, domain.NewValidationError(domain.KindReferential, "base_license", domain.CodeBaseLicenseNotBase,
				fmt.Sprintf("base license type %q is not a base license", base.Name))
		}
	case domain.LicenseModelBase:
		if out.BaseLicenseID != nil && *out.BaseLicenseID != 0 {
			return candidate, domain.NewValidationError(domain.KindReferential, "base_license", domain.CodeBaseLicenseForbidden,
				"a base license type cannot reference another base license")
		}
		out.BaseLicenseID = nil
	}

	return out, nil
}

func immutableClassification(field string, existing int64) error {
	return domain.NewValidationError(domain.KindImmutability, field, domain.CodeImmutableClassifier,
		fmt.Sprintf("%s cannot change: %d existing licenses reference this type", field, existing))
}
