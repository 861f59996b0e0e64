package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/discedric/netbox-license/internal/license/domain"
	"github.com/discedric/netbox-license/pkg/db/option"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

var (
	licenseTypeSortable = map[string]bool{"created_at": true, "updated_at": true, "name": true}
	licenseSortable     = map[string]bool{"created_at": true, "updated_at": true, "license_key": true, "expiry_date": true, "purchase_date": true}
)

func (r *repo) CreateLicenseType(ctx context.Context, db *gorm.DB, item *domain.LicenseType) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) UpdateLicenseType(ctx context.Context, db *gorm.DB, item *domain.LicenseType) error {
	if item == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Select("*").Omit("created_at").Save(item).Error
}

func (r *repo) FindLicenseTypeByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.LicenseType, error) {
	return r.findLicenseType(db.WithContext(ctx), id)
}

// FindLicenseTypeForUpdate locks the type row against concurrent writers and
// sharers. Classification changes take it.
func (r *repo) FindLicenseTypeForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.LicenseType, error) {
	return r.findLicenseType(locking(db.WithContext(ctx), clause.LockingStrengthUpdate), id)
}

// FindLicenseTypeForShare keeps the type row from changing while a license
// of that type is written.
func (r *repo) FindLicenseTypeForShare(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.LicenseType, error) {
	return r.findLicenseType(locking(db.WithContext(ctx), clause.LockingStrengthShare), id)
}

func (r *repo) findLicenseType(stmt *gorm.DB, id snowflake.ID) (*domain.LicenseType, error) {
	var item domain.LicenseType
	err := stmt.Where("id = ?", id).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) ListLicenseTypes(ctx context.Context, db *gorm.DB, filter domain.LicenseTypeFilter) ([]domain.LicenseType, error) {
	var items []domain.LicenseType
	stmt := db.WithContext(ctx).Model(&domain.LicenseType{})

	if filter.ManufacturerID != nil {
		stmt = stmt.Where("manufacturer_id = ?", *filter.ManufacturerID)
	}
	if filter.VolumeType != nil {
		stmt = stmt.Where("volume_type = ?", *filter.VolumeType)
	}
	if filter.LicenseModel != nil {
		stmt = stmt.Where("license_model = ?", *filter.LicenseModel)
	}
	if filter.PurchaseModel != nil {
		stmt = stmt.Where("purchase_model = ?", *filter.PurchaseModel)
	}
	if filter.BaseLicenseID != nil {
		stmt = stmt.Where("base_license_id = ?", *filter.BaseLicenseID)
	}
	if q := likePattern(filter.Query); q != "" {
		stmt = stmt.Where("LOWER(name) LIKE ? OR LOWER(COALESCE(product_code, '')) LIKE ? OR LOWER(COALESCE(ean_code, '')) LIKE ?", q, q, q)
	}

	stmt = option.WithSortBy(option.WithQuerySortBy(filter.SortBy, filter.OrderBy, licenseTypeSortable)).Apply(stmt)

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DeleteLicenseType(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.LicenseType{}).Error
}

func (r *repo) CountLicensesByType(ctx context.Context, db *gorm.DB, typeIDs []snowflake.ID) (map[snowflake.ID]int64, error) {
	return countGrouped(ctx, db, &domain.License{}, "license_type_id", typeIDs)
}

func (r *repo) CountExpansionTypes(ctx context.Context, db *gorm.DB, baseID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.LicenseType{}).Where("base_license_id = ?", baseID).Count(&count).Error
	return count, err
}

func (r *repo) CreateLicense(ctx context.Context, db *gorm.DB, item *domain.License) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) UpdateLicense(ctx context.Context, db *gorm.DB, item *domain.License) error {
	if item == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Select("*").Omit("created_at").Save(item).Error
}

func (r *repo) FindLicenseByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.License, error) {
	return r.findLicense(ctx, db.WithContext(ctx), id)
}

// FindLicenseForUpdate reads a license and holds a row lock on it until the
// surrounding transaction ends.
func (r *repo) FindLicenseForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.License, error) {
	return r.findLicense(ctx, locking(db.WithContext(ctx), clause.LockingStrengthUpdate), id)
}

// locking adds a row lock clause. SQLite has no row locks; its writer lock
// serializes transactions instead.
func locking(stmt *gorm.DB, strength string) *gorm.DB {
	if stmt.Dialector.Name() == "sqlite" {
		return stmt
	}
	return stmt.Clauses(clause.Locking{Strength: strength})
}

func (r *repo) findLicense(_ context.Context, stmt *gorm.DB, id snowflake.ID) (*domain.License, error) {
	var item domain.License
	err := stmt.Where("id = ?", id).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) ListLicenses(ctx context.Context, db *gorm.DB, filter domain.LicenseFilter) ([]domain.License, error) {
	var items []domain.License
	stmt := db.WithContext(ctx).Model(&domain.License{})

	if filter.ManufacturerID != nil {
		stmt = stmt.Where("licenses.manufacturer_id = ?", *filter.ManufacturerID)
	}
	if filter.LicenseTypeID != nil {
		stmt = stmt.Where("licenses.license_type_id = ?", *filter.LicenseTypeID)
	}
	if len(filter.VolumeTypes) > 0 || len(filter.LicenseModels) > 0 {
		sub := db.Model(&domain.LicenseType{}).Select("id")
		if len(filter.VolumeTypes) > 0 {
			sub = sub.Where("volume_type IN ?", filter.VolumeTypes)
		}
		if len(filter.LicenseModels) > 0 {
			sub = sub.Where("license_model IN ?", filter.LicenseModels)
		}
		stmt = stmt.Where("licenses.license_type_id IN (?)", sub)
	}
	if filter.ParentLicenseID != nil {
		stmt = stmt.Where("licenses.parent_license_id = ?", *filter.ParentLicenseID)
	}
	if filter.IsChild != nil {
		if *filter.IsChild {
			stmt = stmt.Where("licenses.parent_license_id IS NOT NULL")
		} else {
			stmt = stmt.Where("licenses.parent_license_id IS NULL")
		}
	}
	if filter.IsParent != nil {
		children := db.Model(&domain.License{}).Select("parent_license_id").Where("parent_license_id IS NOT NULL")
		if *filter.IsParent {
			stmt = stmt.Where("licenses.id IN (?)", children)
		} else {
			stmt = stmt.Where("licenses.id NOT IN (?)", children)
		}
	}
	if filter.PurchaseAfter != nil {
		stmt = stmt.Where("licenses.purchase_date >= ?", *filter.PurchaseAfter)
	}
	if filter.PurchaseBefore != nil {
		stmt = stmt.Where("licenses.purchase_date <= ?", *filter.PurchaseBefore)
	}
	if filter.ExpiryAfter != nil {
		stmt = stmt.Where("licenses.expiry_date >= ?", *filter.ExpiryAfter)
	}
	if filter.ExpiryBefore != nil {
		stmt = stmt.Where("licenses.expiry_date <= ?", *filter.ExpiryBefore)
	}
	if q := likePattern(filter.Query); q != "" {
		stmt = stmt.Where("LOWER(licenses.license_key) LIKE ? OR LOWER(COALESCE(licenses.serial_number, '')) LIKE ? OR LOWER(COALESCE(licenses.description, '')) LIKE ?", q, q, q)
	}

	stmt = option.WithSortBy(option.WithQuerySortBy(filter.SortBy, filter.OrderBy, licenseSortable)).Apply(stmt)

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListExpiringLicenses(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.License, error) {
	var items []domain.License
	stmt := db.WithContext(ctx).
		Model(&domain.License{}).
		Where("expiry_date IS NOT NULL AND expiry_date <= ?", before).
		Order("expiry_date ASC").
		Order("id ASC")
	stmt = option.WithLimit(limit).Apply(stmt)
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DeleteLicense(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.License{}).Error
}

func (r *repo) CountSubLicenses(ctx context.Context, db *gorm.DB, parentIDs []snowflake.ID) (map[snowflake.ID]int64, error) {
	return countGrouped(ctx, db, &domain.License{}, "parent_license_id", parentIDs)
}

func (r *repo) CreateAssignment(ctx context.Context, db *gorm.DB, item *domain.LicenseAssignment) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) UpdateAssignment(ctx context.Context, db *gorm.DB, item *domain.LicenseAssignment) error {
	if item == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Select("*").Omit("created_at").Save(item).Error
}

func (r *repo) FindAssignmentByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.LicenseAssignment, error) {
	var item domain.LicenseAssignment
	err := db.WithContext(ctx).Where("id = ?", id).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) ListAssignments(ctx context.Context, db *gorm.DB, filter domain.AssignmentFilter) ([]domain.LicenseAssignment, error) {
	var items []domain.LicenseAssignment
	stmt := db.WithContext(ctx).Model(&domain.LicenseAssignment{})

	if filter.LicenseID != nil {
		stmt = stmt.Where("license_id = ?", *filter.LicenseID)
	}
	if filter.DeviceID != nil {
		stmt = stmt.Where("device_id = ?", *filter.DeviceID)
	}
	if filter.VirtualMachineID != nil {
		stmt = stmt.Where("virtual_machine_id = ?", *filter.VirtualMachineID)
	}
	if filter.ManufacturerID != nil {
		stmt = stmt.Where("manufacturer_id = ?", *filter.ManufacturerID)
	}

	if err := stmt.Order("assigned_at ASC").Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DeleteAssignment(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.LicenseAssignment{}).Error
}

func (r *repo) DeleteAssignmentsByLicense(ctx context.Context, db *gorm.DB, licenseID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Where("license_id = ?", licenseID).Delete(&domain.LicenseAssignment{})
	return res.RowsAffected, res.Error
}

func (r *repo) SumVolumeByLicense(ctx context.Context, db *gorm.DB, licenseIDs []snowflake.ID) (map[snowflake.ID]int64, error) {
	out := make(map[snowflake.ID]int64, len(licenseIDs))
	if len(licenseIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		GroupKey snowflake.ID
		Total    int64
	}
	err := db.WithContext(ctx).
		Model(&domain.LicenseAssignment{}).
		Select("license_id AS group_key, COALESCE(SUM(volume), 0) AS total").
		Where("license_id IN ?", licenseIDs).
		Group("license_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.GroupKey] = row.Total
	}
	return out, nil
}

func countGrouped(ctx context.Context, db *gorm.DB, model any, column string, ids []snowflake.ID) (map[snowflake.ID]int64, error) {
	out := make(map[snowflake.ID]int64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		GroupKey snowflake.ID
		Total    int64
	}
	err := db.WithContext(ctx).
		Model(model).
		Select(column+" AS group_key, COUNT(*) AS total").
		Where(column+" IN ?", ids).
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.GroupKey] = row.Total
	}
	return out, nil
}

func likePattern(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return ""
	}
	return "%" + q + "%"
}
