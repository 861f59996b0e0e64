package service

import (
	"context"

	"github.com/discedric/netbox-license/internal/license/accounting"
	"github.com/discedric/netbox-license/internal/license/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AssignmentService admits assignments one license at a time: the license
// lock is taken first, then the license row is re-read FOR UPDATE and its
// sibling assignments are summed inside the same transaction.
type AssignmentService struct {
	base
}

func NewAssignmentService(p Params) domain.AssignmentService {
	return &AssignmentService{base: newBase(p, "assignment.service")}
}

func (s *AssignmentService) Create(ctx context.Context, req domain.CreateAssignmentRequest) (*domain.AssignmentResponse, error) {
	ctx, span := startSpan(ctx, "assignment.create", attribute.String("license.id", req.LicenseID))
	defer span.End()

	licenseID, err := parseID(req.LicenseID)
	if err != nil {
		return nil, err
	}
	deviceID, err := parseOptionalID(req.DeviceID)
	if err != nil {
		return nil, err
	}
	vmID, err := parseOptionalID(req.VirtualMachineID)
	if err != nil {
		return nil, err
	}

	volume := int64(1)
	if req.Volume != nil {
		volume = *req.Volume
	}

	now := s.now()
	candidate := domain.LicenseAssignment{
		ID:               s.genID.Generate(),
		LicenseID:        licenseID,
		DeviceID:         deviceID,
		VirtualMachineID: vmID,
		Volume:           volume,
		AssignedAt:       now,
		Description:      trimPtr(req.Description),
		Comments:         trimPtr(req.Comments),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.CustomFields != nil {
		candidate.CustomFields = datatypes.JSONMap(req.CustomFields)
	}

	item, license, err := s.admit(ctx, candidate, func(tx *gorm.DB, a *domain.LicenseAssignment) error {
		return s.repo.CreateAssignment(ctx, tx, a)
	})
	if err != nil {
		return nil, s.reject(ctx, "assignment", err, zap.String("license_id", req.LicenseID))
	}

	s.metrics.RecordAdmission(ctx, string(license.Type.VolumeType), "create", item.Volume)
	s.logger(ctx).Info("license assigned",
		zap.String("assignment_id", item.ID.String()),
		zap.String("license_id", item.LicenseID.String()),
		zap.String("target", item.TargetKind()),
		zap.Int64("volume", item.Volume),
	)

	resp := s.toResponse(&item)
	return &resp, nil
}

func (s *AssignmentService) Update(ctx context.Context, req domain.UpdateAssignmentRequest) (*domain.AssignmentResponse, error) {
	ctx, span := startSpan(ctx, "assignment.update", attribute.String("assignment.id", req.ID))
	defer span.End()

	current, err := s.find(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	candidate := *current
	if req.Volume != nil {
		candidate.Volume = *req.Volume
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
	candidate.UpdatedAt = s.now()

	item, license, err := s.admit(ctx, candidate, func(tx *gorm.DB, a *domain.LicenseAssignment) error {
		return s.repo.UpdateAssignment(ctx, tx, a)
	})
	if err != nil {
		return nil, s.reject(ctx, "assignment", err, zap.String("assignment_id", req.ID))
	}

	s.metrics.RecordAdmission(ctx, string(license.Type.VolumeType), "update", item.Volume-current.Volume)
	resp := s.toResponse(&item)
	return &resp, nil
}

// Reassign moves an assignment to another license. Admission runs against
// the target license only; leaving the source can only free capacity.
func (s *AssignmentService) Reassign(ctx context.Context, req domain.ReassignRequest) (*domain.AssignmentResponse, error) {
	ctx, span := startSpan(ctx, "assignment.reassign",
		attribute.String("assignment.id", req.ID),
		attribute.String("license.id", req.LicenseID),
	)
	defer span.End()

	targetID, err := parseID(req.LicenseID)
	if err != nil {
		return nil, err
	}
	current, err := s.find(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	candidate := *current
	candidate.LicenseID = targetID
	candidate.UpdatedAt = s.now()

	item, license, err := s.admit(ctx, candidate, func(tx *gorm.DB, a *domain.LicenseAssignment) error {
		return s.repo.UpdateAssignment(ctx, tx, a)
	})
	if err != nil {
		return nil, s.reject(ctx, "assignment", err, zap.String("assignment_id", req.ID), zap.String("license_id", req.LicenseID))
	}

	s.metrics.RecordAdmission(ctx, string(license.Type.VolumeType), "reassign", item.Volume)
	s.logger(ctx).Info("assignment reassigned",
		zap.String("assignment_id", item.ID.String()),
		zap.String("from_license_id", current.LicenseID.String()),
		zap.String("to_license_id", item.LicenseID.String()),
	)

	resp := s.toResponse(&item)
	return &resp, nil
}

// admit serializes on the candidate's license, re-reads everything the
// admission rules need inside one transaction and persists the normalized
// candidate through write.
func (s *AssignmentService) admit(ctx context.Context, candidate domain.LicenseAssignment, write func(tx *gorm.DB, a *domain.LicenseAssignment) error) (domain.LicenseAssignment, accounting.ResolvedLicense, error) {
	var resolved accounting.ResolvedLicense

	unlock, err := s.lockLicense(ctx, candidate.LicenseID)
	if err != nil {
		return candidate, resolved, err
	}
	defer unlock()

	var out domain.LicenseAssignment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		license, err := s.repo.FindLicenseForUpdate(ctx, tx, candidate.LicenseID)
		if err != nil {
			return err
		}
		if license == nil {
			return notFound(domain.KindReferential, "license", domain.CodeLicenseNotFound, "license")
		}
		licenseType, err := s.repo.FindLicenseTypeByID(ctx, tx, license.LicenseTypeID)
		if err != nil {
			return err
		}
		if licenseType == nil {
			return notFound(domain.KindReferential, "license_type", domain.CodeLicenseTypeNotFound, "license type")
		}
		resolved = accounting.ResolvedLicense{License: *license, Type: *licenseType}

		device, err := s.resolveTarget(ctx, tx, candidate)
		if err != nil {
			return err
		}

		others, err := s.repo.ListAssignments(ctx, tx, domain.AssignmentFilter{LicenseID: &license.ID})
		if err != nil {
			return err
		}

		validated, err := s.engine().ValidateAssignment(candidate, resolved, device, others)
		if err != nil {
			return err
		}
		if err := write(tx, &validated); err != nil {
			return err
		}
		out = validated
		return nil
	})
	return out, resolved, err
}

// resolveTarget checks that the device or virtual machine exists. Candidates
// with no target or both targets are left for the admission rules to report.
func (s *AssignmentService) resolveTarget(ctx context.Context, tx *gorm.DB, candidate domain.LicenseAssignment) (*accounting.DeviceInfo, error) {
	switch candidate.TargetKind() {
	case "device":
		device, err := s.inventory.FindDevice(ctx, tx, *candidate.DeviceID)
		if err != nil {
			return nil, err
		}
		if device == nil {
			return nil, notFound(domain.KindReferential, "device", domain.CodeDeviceNotFound, "device")
		}
		return &accounting.DeviceInfo{ID: device.ID, ManufacturerID: device.ManufacturerID}, nil
	case "virtual_machine":
		vm, err := s.inventory.FindVirtualMachine(ctx, tx, *candidate.VirtualMachineID)
		if err != nil {
			return nil, err
		}
		if vm == nil {
			return nil, notFound(domain.KindReferential, "virtual_machine", domain.CodeVirtualMachineNotFound, "virtual machine")
		}
	}
	return nil, nil
}

func (s *AssignmentService) find(ctx context.Context, id string) (*domain.LicenseAssignment, error) {
	assignmentID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindAssignmentByID(ctx, s.db, assignmentID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *AssignmentService) Get(ctx context.Context, id string) (*domain.AssignmentResponse, error) {
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := s.toResponse(item)
	return &resp, nil
}

func (s *AssignmentService) List(ctx context.Context, req domain.ListAssignmentRequest) ([]domain.AssignmentResponse, error) {
	var (
		filter domain.AssignmentFilter
		err    error
	)
	if filter.LicenseID, err = optionalIDFilter(req.LicenseID); err != nil {
		return nil, err
	}
	if filter.DeviceID, err = optionalIDFilter(req.DeviceID); err != nil {
		return nil, err
	}
	if filter.VirtualMachineID, err = optionalIDFilter(req.VirtualMachineID); err != nil {
		return nil, err
	}
	if filter.ManufacturerID, err = optionalIDFilter(req.ManufacturerID); err != nil {
		return nil, err
	}

	items, err := s.repo.ListAssignments(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.AssignmentResponse, 0, len(items))
	for i := range items {
		resp = append(resp, s.toResponse(&items[i]))
	}
	return resp, nil
}

// Delete frees the capacity held by an assignment.
func (s *AssignmentService) Delete(ctx context.Context, id string) error {
	ctx, span := startSpan(ctx, "assignment.delete", attribute.String("assignment.id", id))
	defer span.End()

	item, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteAssignment(ctx, s.db, item.ID); err != nil {
		return s.reject(ctx, "assignment", err, zap.String("assignment_id", id))
	}

	s.logger(ctx).Info("assignment deleted",
		zap.String("assignment_id", id),
		zap.String("license_id", item.LicenseID.String()),
		zap.Int64("volume", item.Volume),
	)
	return nil
}

func (s *AssignmentService) toResponse(a *domain.LicenseAssignment) domain.AssignmentResponse {
	resp := domain.AssignmentResponse{
		ID:                   a.ID.String(),
		LicenseID:            a.LicenseID.String(),
		DeviceID:             idString(a.DeviceID),
		VirtualMachineID:     idString(a.VirtualMachineID),
		ManufacturerID:       a.ManufacturerID.String(),
		DeviceManufacturerID: idString(a.DeviceManufacturerID),
		Volume:               a.Volume,
		AssignedAt:           a.AssignedAt,
		Description:          a.Description,
		Comments:             a.Comments,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
	if a.CustomFields != nil {
		resp.CustomFields = map[string]any(a.CustomFields)
	}
	return resp
}
