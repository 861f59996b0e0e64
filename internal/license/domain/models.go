package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type VolumeType string

const (
	VolumeTypeSingle    VolumeType = "single"
	VolumeTypeVolume    VolumeType = "volume"
	VolumeTypeUnlimited VolumeType = "unlimited"
)

type LicenseModel string

const (
	LicenseModelBase      LicenseModel = "base"
	LicenseModelExpansion LicenseModel = "expansion"
)

type PurchaseModel string

const (
	PurchaseModelPeripheral   PurchaseModel = "peripheral"
	PurchaseModelSubscription PurchaseModel = "subscription"
)

// VolumeRelation describes what a unit of volume counts. It is informational
// only and never used for accounting.
type VolumeRelation string

const (
	VolumeRelationPerDevice VolumeRelation = "per_device"
	VolumeRelationPerUser   VolumeRelation = "per_user"
	VolumeRelationPerCore   VolumeRelation = "per_core"
	VolumeRelationPerSocket VolumeRelation = "per_socket"
)

type LicenseType struct {
	ID             snowflake.ID    `gorm:"primaryKey"`
	Name           string          `gorm:"type:text;not null"`
	Slug           string          `gorm:"type:text;not null;uniqueIndex:ux_license_types_slug"`
	ManufacturerID snowflake.ID    `gorm:"column:manufacturer_id;not null;index"`
	ProductCode    *string         `gorm:"type:text"`
	EANCode        *string         `gorm:"column:ean_code;type:text"`
	VolumeType     VolumeType      `gorm:"type:text;not null"`
	VolumeRelation *VolumeRelation `gorm:"type:text"`
	LicenseModel   LicenseModel    `gorm:"type:text;not null"`
	BaseLicenseID  *snowflake.ID   `gorm:"column:base_license_id;index"`
	PurchaseModel  PurchaseModel   `gorm:"type:text;not null"`
	Description    *string         `gorm:"type:text"`
	Comments       *string         `gorm:"type:text"`

	CustomFields datatypes.JSONMap `gorm:"column:custom_field_data"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (LicenseType) TableName() string { return "license_types" }

func (t LicenseType) IsExpansion() bool { return t.LicenseModel == LicenseModelExpansion }

type License struct {
	ID              snowflake.ID  `gorm:"primaryKey"`
	LicenseKey      string        `gorm:"type:text;not null;uniqueIndex:ux_licenses_license_key"`
	SerialNumber    *string       `gorm:"type:text"`
	ManufacturerID  snowflake.ID  `gorm:"column:manufacturer_id;not null;index"`
	LicenseTypeID   snowflake.ID  `gorm:"column:license_type_id;not null;index"`
	PurchaseDate    *time.Time    `gorm:"type:date"`
	ExpiryDate      *time.Time    `gorm:"type:date;index"`
	VolumeLimit     *int64        `gorm:"column:volume_limit"`
	ParentLicenseID *snowflake.ID `gorm:"column:parent_license_id;index"`
	Description     *string       `gorm:"type:text"`
	Comments        *string       `gorm:"type:text"`

	CustomFields datatypes.JSONMap `gorm:"column:custom_field_data"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (License) TableName() string { return "licenses" }

func (l License) IsChildLicense() bool { return l.ParentLicenseID != nil && *l.ParentLicenseID != 0 }

type LicenseAssignment struct {
	ID                   snowflake.ID  `gorm:"primaryKey"`
	LicenseID            snowflake.ID  `gorm:"column:license_id;not null;index"`
	DeviceID             *snowflake.ID `gorm:"column:device_id;index"`
	VirtualMachineID     *snowflake.ID `gorm:"column:virtual_machine_id;index"`
	ManufacturerID       snowflake.ID  `gorm:"column:manufacturer_id;not null;index"`
	DeviceManufacturerID *snowflake.ID `gorm:"column:device_manufacturer_id"`
	Volume               int64         `gorm:"not null;default:1"`
	AssignedAt           time.Time     `gorm:"not null"`
	Description          *string       `gorm:"type:text"`
	Comments             *string       `gorm:"type:text"`

	CustomFields datatypes.JSONMap `gorm:"column:custom_field_data"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (LicenseAssignment) TableName() string { return "license_assignments" }

// TargetKind reports which side of the device/virtual machine pair is set.
func (a LicenseAssignment) TargetKind() string {
	switch {
	case a.DeviceID != nil && a.VirtualMachineID == nil:
		return "device"
	case a.VirtualMachineID != nil && a.DeviceID == nil:
		return "virtual_machine"
	default:
		return ""
	}
}
