package accounting

import (
	"fmt"
	"strings"

	"github.com/discedric/netbox-license/internal/license/domain"
)

var (
	volumeTypes     = []domain.VolumeType{domain.VolumeTypeSingle, domain.VolumeTypeVolume, domain.VolumeTypeUnlimited}
	licenseModels   = []domain.LicenseModel{domain.LicenseModelBase, domain.LicenseModelExpansion}
	purchaseModels  = []domain.PurchaseModel{domain.PurchaseModelPeripheral, domain.PurchaseModelSubscription}
	volumeRelations = []domain.VolumeRelation{
		domain.VolumeRelationPerDevice,
		domain.VolumeRelationPerUser,
		domain.VolumeRelationPerCore,
		domain.VolumeRelationPerSocket,
	}
)

// ParseVolumeType accepts any casing and surrounding whitespace.
func ParseVolumeType(value string) (domain.VolumeType, error) {
	return parseChoice("volume_type", value, volumeTypes)
}

func ParseLicenseModel(value string) (domain.LicenseModel, error) {
	return parseChoice("license_model", value, licenseModels)
}

func ParsePurchaseModel(value string) (domain.PurchaseModel, error) {
	return parseChoice("purchase_model", value, purchaseModels)
}

func ParseVolumeRelation(value string) (domain.VolumeRelation, error) {
	return parseChoice("volume_relation", value, volumeRelations)
}

func parseChoice[T ~string](field, value string, allowed []T) (T, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, choice := range allowed {
		if string(choice) == normalized {
			return choice, nil
		}
	}
	names := make([]string, 0, len(allowed))
	for _, choice := range allowed {
		names = append(names, string(choice))
	}
	if normalized == "" {
		return "", domain.NewValidationError(domain.KindInvalid, field, domain.CodeRequired,
			fmt.Sprintf("%s is required", field))
	}
	return "", domain.NewValidationError(domain.KindInvalid, field, domain.CodeInvalidChoice,
		fmt.Sprintf("invalid %s %q, allowed values: %s", field, value, strings.Join(names, ", ")))
}
