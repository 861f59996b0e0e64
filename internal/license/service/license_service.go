package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/discedric/netbox-license/internal/license/accounting"
	"github.com/discedric/netbox-license/internal/license/domain"
	"github.com/discedric/netbox-license/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type LicenseService struct {
	base
}

func NewLicenseService(p Params) domain.LicenseService {
	return &LicenseService{base: newBase(p, "license.service")}
}

// Create admits a license while its type is locked, so the type cannot be
// reclassified between validation and insert.
func (s *LicenseService) Create(ctx context.Context, req domain.CreateLicenseRequest) (*domain.LicenseResponse, error) {
	ctx, span := startSpan(ctx, "license.create")
	defer span.End()

	typeID, err := parseID(req.LicenseTypeID)
	if err != nil {
		return nil, err
	}
	parentID, err := parseOptionalID(req.ParentLicenseID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockLicenseType(ctx, typeID)
	if err != nil {
		return nil, s.reject(ctx, "license", err)
	}
	defer unlock()

	var (
		item        domain.License
		licenseType *domain.LicenseType
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		licenseType, err = s.repo.FindLicenseTypeForShare(ctx, tx, typeID)
		if err != nil {
			return err
		}
		if licenseType == nil {
			return notFound(domain.KindReferential, "license_type", domain.CodeLicenseTypeNotFound, "license type")
		}
		parent, err := s.resolveParent(ctx, tx, parentID)
		if err != nil {
			return err
		}

		now := s.now()
		candidate := domain.License{
			ID:              s.genID.Generate(),
			LicenseKey:      req.LicenseKey,
			SerialNumber:    trimPtr(req.SerialNumber),
			LicenseTypeID:   typeID,
			PurchaseDate:    req.PurchaseDate,
			ExpiryDate:      req.ExpiryDate,
			VolumeLimit:     req.VolumeLimit,
			ParentLicenseID: parentID,
			Description:     trimPtr(req.Description),
			Comments:        trimPtr(req.Comments),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if req.CustomFields != nil {
			candidate.CustomFields = datatypes.JSONMap(req.CustomFields)
		}

		validated, err := s.engine().ValidateLicense(candidate, *licenseType, parent, nil)
		if err != nil {
			return err
		}
		if err := s.repo.CreateLicense(ctx, tx, &validated); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateLicenseKey
			}
			return err
		}
		item = validated
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, "license", err)
	}

	s.logger(ctx).Info("license created",
		zap.String("license_id", item.ID.String()),
		zap.String("license_type_id", item.LicenseTypeID.String()),
		zap.String("volume_type", string(licenseType.VolumeType)),
	)

	resp := s.toResponse(&item, licenseType, 0, 0)
	return &resp, nil
}

// Update patches a license under its admission lock, so a shrinking volume
// limit cannot race an assignment being admitted against the old one.
func (s *LicenseService) Update(ctx context.Context, req domain.UpdateLicenseRequest) (*domain.LicenseResponse, error) {
	ctx, span := startSpan(ctx, "license.update", attribute.String("license.id", req.ID))
	defer span.End()

	id, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockLicense(ctx, id)
	if err != nil {
		return nil, s.reject(ctx, "license", err, zap.String("license_id", req.ID))
	}
	defer unlock()

	// Moving to another type writes a license under it, like Create.
	var newTypeID *snowflake.ID
	if req.LicenseTypeID != nil {
		typeID, err := parseID(*req.LicenseTypeID)
		if err != nil {
			return nil, err
		}
		unlockType, err := s.lockLicenseType(ctx, typeID)
		if err != nil {
			return nil, s.reject(ctx, "license", err, zap.String("license_id", req.ID))
		}
		defer unlockType()
		newTypeID = &typeID
	}

	var (
		item        domain.License
		licenseType *domain.LicenseType
		usage       int64
		children    int64
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		previous, err := s.repo.FindLicenseForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if previous == nil {
			return domain.ErrNotFound
		}

		candidate := *previous
		if req.LicenseKey != nil {
			candidate.LicenseKey = *req.LicenseKey
		}
		if req.SerialNumber != nil {
			candidate.SerialNumber = trimPtr(req.SerialNumber)
		}
		if newTypeID != nil {
			candidate.LicenseTypeID = *newTypeID
		}
		if req.PurchaseDate != nil {
			candidate.PurchaseDate = req.PurchaseDate
		}
		if req.ExpiryDate != nil {
			candidate.ExpiryDate = req.ExpiryDate
		}
		if req.VolumeLimit != nil {
			limit := *req.VolumeLimit
			candidate.VolumeLimit = &limit
		}
		if req.ParentLicenseID != nil {
			parentID, err := parseOptionalID(req.ParentLicenseID)
			if err != nil {
				return err
			}
			candidate.ParentLicenseID = parentID
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

		licenseType, err = s.repo.FindLicenseTypeForShare(ctx, tx, candidate.LicenseTypeID)
		if err != nil {
			return err
		}
		if licenseType == nil {
			return notFound(domain.KindReferential, "license_type", domain.CodeLicenseTypeNotFound, "license type")
		}
		parent, err := s.resolveParent(ctx, tx, candidate.ParentLicenseID)
		if err != nil {
			return err
		}

		validated, err := s.engine().ValidateLicense(candidate, *licenseType, parent, previous)
		if err != nil {
			return err
		}

		sums, err := s.repo.SumVolumeByLicense(ctx, tx, []snowflake.ID{id})
		if err != nil {
			return err
		}
		usage = sums[id]
		if err := accounting.CheckLimitCoversUsage(validated.VolumeLimit, usage); err != nil {
			return err
		}

		validated.UpdatedAt = s.now()
		if err := s.repo.UpdateLicense(ctx, tx, &validated); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateLicenseKey
			}
			return err
		}

		subs, err := s.repo.CountSubLicenses(ctx, tx, []snowflake.ID{id})
		if err != nil {
			return err
		}
		item, children = validated, subs[id]
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, "license", err, zap.String("license_id", req.ID))
	}

	resp := s.toResponse(&item, licenseType, usage, children)
	return &resp, nil
}

func (s *LicenseService) resolveParent(ctx context.Context, tx *gorm.DB, parentID *snowflake.ID) (*accounting.ResolvedLicense, error) {
	if parentID == nil {
		return nil, nil
	}
	parent, err := s.repo.FindLicenseByID(ctx, tx, *parentID)
	if err != nil || parent == nil {
		return nil, err
	}
	parentType, err := s.repo.FindLicenseTypeByID(ctx, tx, parent.LicenseTypeID)
	if err != nil || parentType == nil {
		return nil, err
	}
	return &accounting.ResolvedLicense{License: *parent, Type: *parentType}, nil
}

func (s *LicenseService) Get(ctx context.Context, id string) (*domain.LicenseResponse, error) {
	licenseID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindLicenseByID(ctx, s.db, licenseID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}

	resp, err := s.toResponses(ctx, []domain.License{*item})
	if err != nil {
		return nil, err
	}
	return &resp[0], nil
}

func (s *LicenseService) List(ctx context.Context, req domain.ListLicenseRequest) ([]domain.LicenseResponse, error) {
	filter := domain.LicenseFilter{
		IsParent:       req.IsParent,
		IsChild:        req.IsChild,
		PurchaseAfter:  req.PurchaseAfter,
		PurchaseBefore: req.PurchaseBefore,
		ExpiryAfter:    req.ExpiryAfter,
		ExpiryBefore:   req.ExpiryBefore,
		Query:          strings.TrimSpace(req.Query),
		SortBy:         strings.TrimSpace(req.SortBy),
		OrderBy:        strings.TrimSpace(req.OrderBy),
	}

	var err error
	if filter.ManufacturerID, err = optionalIDFilter(req.ManufacturerID); err != nil {
		return nil, err
	}
	if filter.LicenseTypeID, err = optionalIDFilter(req.LicenseTypeID); err != nil {
		return nil, err
	}
	if filter.ParentLicenseID, err = optionalIDFilter(req.ParentLicenseID); err != nil {
		return nil, err
	}
	for _, raw := range req.VolumeTypes {
		v, err := accounting.ParseVolumeType(raw)
		if err != nil {
			return nil, err
		}
		filter.VolumeTypes = append(filter.VolumeTypes, v)
	}
	for _, raw := range req.LicenseModels {
		v, err := accounting.ParseLicenseModel(raw)
		if err != nil {
			return nil, err
		}
		filter.LicenseModels = append(filter.LicenseModels, v)
	}

	items, err := s.repo.ListLicenses(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	return s.toResponses(ctx, items)
}

func (s *LicenseService) Usage(ctx context.Context, id string) (*domain.Usage, error) {
	licenseID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindLicenseByID(ctx, s.db, licenseID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	assignments, err := s.repo.ListAssignments(ctx, s.db, domain.AssignmentFilter{LicenseID: &licenseID})
	if err != nil {
		return nil, err
	}
	usage := accounting.ComputeUsage(*item, assignments)
	return &usage, nil
}

// Delete removes a license together with its assignments. A license that
// still has sub-licenses is protected.
func (s *LicenseService) Delete(ctx context.Context, id string) error {
	ctx, span := startSpan(ctx, "license.delete", attribute.String("license.id", id))
	defer span.End()

	licenseID, err := parseID(id)
	if err != nil {
		return err
	}

	unlock, err := s.lockLicense(ctx, licenseID)
	if err != nil {
		return s.reject(ctx, "license", err, zap.String("license_id", id))
	}
	defer unlock()

	var removed int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindLicenseForUpdate(ctx, tx, licenseID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}

		subs, err := s.repo.CountSubLicenses(ctx, tx, []snowflake.ID{licenseID})
		if err != nil {
			return err
		}
		if n := subs[licenseID]; n > 0 {
			return fmt.Errorf("%w: license %s has %d sub-licenses", domain.ErrProtected, licenseID, n)
		}

		if removed, err = s.repo.DeleteAssignmentsByLicense(ctx, tx, licenseID); err != nil {
			return err
		}
		return s.repo.DeleteLicense(ctx, tx, licenseID)
	})
	if err != nil {
		return s.reject(ctx, "license", err, zap.String("license_id", id))
	}

	s.logger(ctx).Info("license deleted", zap.String("license_id", id), zap.Int64("assignments_removed", removed))
	return nil
}

// toResponses decorates licenses with their type, usage, expiry status and
// sub-license count using one query per concern.
func (s *LicenseService) toResponses(ctx context.Context, items []domain.License) ([]domain.LicenseResponse, error) {
	ids := make([]snowflake.ID, 0, len(items))
	typeIDs := make(map[snowflake.ID]struct{}, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
		typeIDs[item.LicenseTypeID] = struct{}{}
	}

	usage, err := s.repo.SumVolumeByLicense(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	subs, err := s.repo.CountSubLicenses(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	types := make(map[snowflake.ID]*domain.LicenseType, len(typeIDs))
	for typeID := range typeIDs {
		t, err := s.repo.FindLicenseTypeByID(ctx, s.db, typeID)
		if err != nil {
			return nil, err
		}
		types[typeID] = t
	}

	resp := make([]domain.LicenseResponse, 0, len(items))
	for i := range items {
		resp = append(resp, s.toResponse(&items[i], types[items[i].LicenseTypeID], usage[items[i].ID], subs[items[i].ID]))
	}
	return resp, nil
}

func (s *LicenseService) toResponse(l *domain.License, t *domain.LicenseType, usage, subLicenses int64) domain.LicenseResponse {
	resp := domain.LicenseResponse{
		ID:              l.ID.String(),
		LicenseKey:      l.LicenseKey,
		SerialNumber:    l.SerialNumber,
		ManufacturerID:  l.ManufacturerID.String(),
		LicenseTypeID:   l.LicenseTypeID.String(),
		PurchaseDate:    l.PurchaseDate,
		ExpiryDate:      l.ExpiryDate,
		VolumeLimit:     l.VolumeLimit,
		ParentLicenseID: idString(l.ParentLicenseID),
		IsParentLicense: subLicenses > 0,
		IsChildLicense:  l.IsChildLicense(),
		CurrentUsage:    usage,
		UsageDisplay:    accounting.UsageDisplay(usage, l.VolumeLimit),
		Expiry:          s.engine().ComputeExpiryStatus(*l, s.today()),
		Description:     l.Description,
		Comments:        l.Comments,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
	if t != nil {
		resp.VolumeType = t.VolumeType
		resp.LicenseModel = t.LicenseModel
	}
	if l.CustomFields != nil {
		resp.CustomFields = map[string]any(l.CustomFields)
	}
	return resp
}

func (s *LicenseService) today() time.Time {
	return accounting.DateOnly(s.now())
}
