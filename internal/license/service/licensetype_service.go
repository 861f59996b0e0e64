package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/discedric/netbox-license/internal/license/accounting"
	"github.com/discedric/netbox-license/internal/license/domain"
	"github.com/discedric/netbox-license/pkg/db"
	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type LicenseTypeService struct {
	base
}

func NewLicenseTypeService(p Params) domain.LicenseTypeService {
	return &LicenseTypeService{base: newBase(p, "licensetype.service")}
}

func (s *LicenseTypeService) Create(ctx context.Context, req domain.CreateLicenseTypeRequest) (*domain.LicenseTypeResponse, error) {
	ctx, span := startSpan(ctx, "licensetype.create")
	defer span.End()

	var manufacturerID snowflake.ID
	if strings.TrimSpace(req.ManufacturerID) != "" {
		id, err := parseID(req.ManufacturerID)
		if err != nil {
			return nil, err
		}
		manufacturerID = id
	}
	baseID, err := parseOptionalID(req.BaseLicenseID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	candidate := domain.LicenseType{
		ID:             s.genID.Generate(),
		Name:           req.Name,
		ManufacturerID: manufacturerID,
		ProductCode:    trimPtr(req.ProductCode),
		EANCode:        trimPtr(req.EANCode),
		VolumeType:     domain.VolumeType(req.VolumeType),
		LicenseModel:   domain.LicenseModel(req.LicenseModel),
		BaseLicenseID:  baseID,
		PurchaseModel:  domain.PurchaseModel(req.PurchaseModel),
		Description:    trimPtr(req.Description),
		Comments:       trimPtr(req.Comments),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.VolumeRelation != nil {
		relation := domain.VolumeRelation(*req.VolumeRelation)
		candidate.VolumeRelation = &relation
	}
	if req.CustomFields != nil {
		candidate.CustomFields = datatypes.JSONMap(req.CustomFields)
	}

	item, err := s.validate(ctx, s.db, candidate, nil)
	if err != nil {
		return nil, s.reject(ctx, "license_type", err)
	}

	item.Slug = strings.TrimSpace(req.Slug)
	if item.Slug == "" {
		item.Slug = slug.Make(item.Name)
	}
	if item.Slug == "" {
		return nil, s.reject(ctx, "license_type", domain.NewValidationError(domain.KindInvalid, "slug", domain.CodeRequired, "slug is required"))
	}

	if err := s.repo.CreateLicenseType(ctx, s.db, &item); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateSlug
		}
		return nil, s.reject(ctx, "license_type", err)
	}

	s.logger(ctx).Info("license type created",
		zap.String("license_type_id", item.ID.String()),
		zap.String("slug", item.Slug),
		zap.String("volume_type", string(item.VolumeType)),
		zap.String("license_model", string(item.LicenseModel)),
	)

	resp := s.toResponse(&item, 0)
	return &resp, nil
}

// Update patches a license type. The type lock and row lock keep a license
// from being created against the old classification while it changes.
func (s *LicenseTypeService) Update(ctx context.Context, req domain.UpdateLicenseTypeRequest) (*domain.LicenseTypeResponse, error) {
	ctx, span := startSpan(ctx, "licensetype.update", attribute.String("license_type.id", req.ID))
	defer span.End()

	id, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockLicenseType(ctx, id)
	if err != nil {
		return nil, s.reject(ctx, "license_type", err, zap.String("license_type_id", req.ID))
	}
	defer unlock()

	var (
		item  domain.LicenseType
		count int64
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		previous, err := s.repo.FindLicenseTypeForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if previous == nil {
			return domain.ErrNotFound
		}

		candidate := *previous
		if req.Name != nil {
			candidate.Name = *req.Name
		}
		if req.ProductCode != nil {
			candidate.ProductCode = trimPtr(req.ProductCode)
		}
		if req.EANCode != nil {
			candidate.EANCode = trimPtr(req.EANCode)
		}
		if req.VolumeType != nil {
			candidate.VolumeType = domain.VolumeType(*req.VolumeType)
		}
		if req.VolumeRelation != nil {
			relation := domain.VolumeRelation(*req.VolumeRelation)
			candidate.VolumeRelation = &relation
		}
		if req.LicenseModel != nil {
			candidate.LicenseModel = domain.LicenseModel(*req.LicenseModel)
		}
		if req.BaseLicenseID != nil {
			baseID, err := parseOptionalID(req.BaseLicenseID)
			if err != nil {
				return err
			}
			candidate.BaseLicenseID = baseID
		}
		if req.PurchaseModel != nil {
			candidate.PurchaseModel = domain.PurchaseModel(*req.PurchaseModel)
		}
		if req.Description != nil {
			candidate.Description = trimPtr(req.Description)
		}
		if req.Comments != nil {
			candidate.Comments = trimPtr(req.Comments)
		}
		if req.CustomFields != nil {
			candidate.CustomFields = datatypes.JSONMap(req.CustomFields)
		}

		validated, err := s.validate(ctx, tx, candidate, previous)
		if err != nil {
			return err
		}

		if previous.LicenseModel == domain.LicenseModelBase && validated.LicenseModel != domain.LicenseModelBase {
			expansions, err := s.repo.CountExpansionTypes(ctx, tx, id)
			if err != nil {
				return err
			}
			if expansions > 0 {
				return domain.NewValidationError(domain.KindReferential, "license_model", domain.CodeBaseLicenseInUse,
					fmt.Sprintf("%d expansion license types use this type as their base", expansions))
			}
		}

		validated.UpdatedAt = s.now()
		if err := s.repo.UpdateLicenseType(ctx, tx, &validated); err != nil {
			return err
		}

		counts, err := s.repo.CountLicensesByType(ctx, tx, []snowflake.ID{id})
		if err != nil {
			return err
		}
		item, count = validated, counts[id]
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, "license_type", err, zap.String("license_type_id", req.ID))
	}

	resp := s.toResponse(&item, count)
	return &resp, nil
}

// validate resolves the references of candidate and runs the license type
// rules over it.
func (s *LicenseTypeService) validate(ctx context.Context, tx *gorm.DB, candidate domain.LicenseType, previous *domain.LicenseType) (domain.LicenseType, error) {
	var (
		baseType *domain.LicenseType
		err      error
	)
	if candidate.BaseLicenseID != nil {
		baseType, err = s.repo.FindLicenseTypeByID(ctx, tx, *candidate.BaseLicenseID)
		if err != nil {
			return candidate, err
		}
	}

	var existing int64
	if previous != nil {
		counts, err := s.repo.CountLicensesByType(ctx, tx, []snowflake.ID{previous.ID})
		if err != nil {
			return candidate, err
		}
		existing = counts[previous.ID]
	}

	out, err := s.engine().ValidateLicenseType(candidate, baseType, previous, existing)
	if err != nil {
		return candidate, err
	}

	manufacturer, err := s.inventory.FindManufacturer(ctx, tx, out.ManufacturerID)
	if err != nil {
		return candidate, err
	}
	if manufacturer == nil {
		return candidate, notFound(domain.KindReferential, "manufacturer", domain.CodeManufacturerNotFound, "manufacturer")
	}
	return out, nil
}

func (s *LicenseTypeService) Get(ctx context.Context, id string) (*domain.LicenseTypeResponse, error) {
	typeID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindLicenseTypeByID(ctx, s.db, typeID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	counts, err := s.repo.CountLicensesByType(ctx, s.db, []snowflake.ID{typeID})
	if err != nil {
		return nil, err
	}
	resp := s.toResponse(item, counts[typeID])
	return &resp, nil
}

func (s *LicenseTypeService) List(ctx context.Context, req domain.ListLicenseTypeRequest) ([]domain.LicenseTypeResponse, error) {
	filter := domain.LicenseTypeFilter{
		Query:   strings.TrimSpace(req.Query),
		SortBy:  strings.TrimSpace(req.SortBy),
		OrderBy: strings.TrimSpace(req.OrderBy),
	}

	var err error
	if filter.ManufacturerID, err = optionalIDFilter(req.ManufacturerID); err != nil {
		return nil, err
	}
	if filter.BaseLicenseID, err = optionalIDFilter(req.BaseLicenseID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.VolumeType) != "" {
		v, err := accounting.ParseVolumeType(req.VolumeType)
		if err != nil {
			return nil, err
		}
		filter.VolumeType = &v
	}
	if strings.TrimSpace(req.LicenseModel) != "" {
		v, err := accounting.ParseLicenseModel(req.LicenseModel)
		if err != nil {
			return nil, err
		}
		filter.LicenseModel = &v
	}
	if strings.TrimSpace(req.PurchaseModel) != "" {
		v, err := accounting.ParsePurchaseModel(req.PurchaseModel)
		if err != nil {
			return nil, err
		}
		filter.PurchaseModel = &v
	}

	items, err := s.repo.ListLicenseTypes(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	counts, err := s.repo.CountLicensesByType(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.LicenseTypeResponse, 0, len(items))
	for i := range items {
		resp = append(resp, s.toResponse(&items[i], counts[items[i].ID]))
	}
	return resp, nil
}

// Delete removes a license type nobody references. Licenses of the type and
// expansion types built on it protect it.
func (s *LicenseTypeService) Delete(ctx context.Context, id string) error {
	ctx, span := startSpan(ctx, "licensetype.delete", attribute.String("license_type.id", id))
	defer span.End()

	typeID, err := parseID(id)
	if err != nil {
		return err
	}

	unlock, err := s.lockLicenseType(ctx, typeID)
	if err != nil {
		return s.reject(ctx, "license_type", err, zap.String("license_type_id", id))
	}
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindLicenseTypeForUpdate(ctx, tx, typeID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}

		counts, err := s.repo.CountLicensesByType(ctx, tx, []snowflake.ID{typeID})
		if err != nil {
			return err
		}
		if n := counts[typeID]; n > 0 {
			return fmt.Errorf("%w: %d licenses reference license type %s", domain.ErrProtected, n, item.Name)
		}
		expansions, err := s.repo.CountExpansionTypes(ctx, tx, typeID)
		if err != nil {
			return err
		}
		if expansions > 0 {
			return fmt.Errorf("%w: %d expansion license types use %s as their base", domain.ErrProtected, expansions, item.Name)
		}

		return s.repo.DeleteLicenseType(ctx, tx, typeID)
	})
	if err != nil {
		return s.reject(ctx, "license_type", err, zap.String("license_type_id", id))
	}

	s.logger(ctx).Info("license type deleted", zap.String("license_type_id", id))
	return nil
}

func (s *LicenseTypeService) toResponse(t *domain.LicenseType, licenseCount int64) domain.LicenseTypeResponse {
	resp := domain.LicenseTypeResponse{
		ID:             t.ID.String(),
		Name:           t.Name,
		Slug:           t.Slug,
		ManufacturerID: t.ManufacturerID.String(),
		ProductCode:    t.ProductCode,
		EANCode:        t.EANCode,
		VolumeType:     t.VolumeType,
		LicenseModel:   t.LicenseModel,
		BaseLicenseID:  idString(t.BaseLicenseID),
		PurchaseModel:  t.PurchaseModel,
		Description:    t.Description,
		Comments:       t.Comments,
		LicenseCount:   licenseCount,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
	if t.VolumeRelation != nil {
		relation := string(*t.VolumeRelation)
		resp.VolumeRelation = &relation
	}
	if t.CustomFields != nil {
		resp.CustomFields = map[string]any(t.CustomFields)
	}
	return resp
}
