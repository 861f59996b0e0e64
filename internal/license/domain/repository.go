package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type LicenseTypeFilter struct {
	ManufacturerID *snowflake.ID
	VolumeType     *VolumeType
	LicenseModel   *LicenseModel
	PurchaseModel  *PurchaseModel
	BaseLicenseID  *snowflake.ID
	Query          string
	SortBy         string
	OrderBy        string
}

type LicenseFilter struct {
	ManufacturerID  *snowflake.ID
	LicenseTypeID   *snowflake.ID
	VolumeTypes     []VolumeType
	LicenseModels   []LicenseModel
	ParentLicenseID *snowflake.ID
	IsParent        *bool
	IsChild         *bool
	PurchaseAfter   *time.Time
	PurchaseBefore  *time.Time
	ExpiryAfter     *time.Time
	ExpiryBefore    *time.Time
	Query           string
	SortBy          string
	OrderBy         string
}

type AssignmentFilter struct {
	LicenseID        *snowflake.ID
	DeviceID         *snowflake.ID
	VirtualMachineID *snowflake.ID
	ManufacturerID   *snowflake.ID
}

type Repository interface {
	CreateLicenseType(ctx context.Context, db *gorm.DB, item *LicenseType) error
	UpdateLicenseType(ctx context.Context, db *gorm.DB, item *LicenseType) error
	FindLicenseTypeByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LicenseType, error)
	// FindLicenseTypeForUpdate and FindLicenseTypeForShare hold a row lock
	// until the surrounding transaction ends.
	FindLicenseTypeForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LicenseType, error)
	FindLicenseTypeForShare(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LicenseType, error)
	ListLicenseTypes(ctx context.Context, db *gorm.DB, filter LicenseTypeFilter) ([]LicenseType, error)
	DeleteLicenseType(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	CountLicensesByType(ctx context.Context, db *gorm.DB, typeIDs []snowflake.ID) (map[snowflake.ID]int64, error)
	CountExpansionTypes(ctx context.Context, db *gorm.DB, baseID snowflake.ID) (int64, error)

	CreateLicense(ctx context.Context, db *gorm.DB, item *License) error
	UpdateLicense(ctx context.Context, db *gorm.DB, item *License) error
	FindLicenseByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*License, error)
	FindLicenseForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*License, error)
	ListLicenses(ctx context.Context, db *gorm.DB, filter LicenseFilter) ([]License, error)
	ListExpiringLicenses(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]License, error)
	DeleteLicense(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	CountSubLicenses(ctx context.Context, db *gorm.DB, parentIDs []snowflake.ID) (map[snowflake.ID]int64, error)

	CreateAssignment(ctx context.Context, db *gorm.DB, item *LicenseAssignment) error
	UpdateAssignment(ctx context.Context, db *gorm.DB, item *LicenseAssignment) error
	FindAssignmentByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LicenseAssignment, error)
	ListAssignments(ctx context.Context, db *gorm.DB, filter AssignmentFilter) ([]LicenseAssignment, error)
	DeleteAssignment(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	DeleteAssignmentsByLicense(ctx context.Context, db *gorm.DB, licenseID snowflake.ID) (int64, error)
	SumVolumeByLicense(ctx context.Context, db *gorm.DB, licenseIDs []snowflake.ID) (map[snowflake.ID]int64, error)
}
