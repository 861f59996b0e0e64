package domain

import (
	"context"
	"time"
)

type LicenseTypeService interface {
	Create(ctx context.Context, req CreateLicenseTypeRequest) (*LicenseTypeResponse, error)
	Update(ctx context.Context, req UpdateLicenseTypeRequest) (*LicenseTypeResponse, error)
	Get(ctx context.Context, id string) (*LicenseTypeResponse, error)
	List(ctx context.Context, req ListLicenseTypeRequest) ([]LicenseTypeResponse, error)
	Delete(ctx context.Context, id string) error
}

type LicenseService interface {
	Create(ctx context.Context, req CreateLicenseRequest) (*LicenseResponse, error)
	Update(ctx context.Context, req UpdateLicenseRequest) (*LicenseResponse, error)
	Get(ctx context.Context, id string) (*LicenseResponse, error)
	List(ctx context.Context, req ListLicenseRequest) ([]LicenseResponse, error)
	Usage(ctx context.Context, id string) (*Usage, error)
	Delete(ctx context.Context, id string) error
}

type AssignmentService interface {
	Create(ctx context.Context, req CreateAssignmentRequest) (*AssignmentResponse, error)
	Update(ctx context.Context, req UpdateAssignmentRequest) (*AssignmentResponse, error)
	Reassign(ctx context.Context, req ReassignRequest) (*AssignmentResponse, error)
	Get(ctx context.Context, id string) (*AssignmentResponse, error)
	List(ctx context.Context, req ListAssignmentRequest) ([]AssignmentResponse, error)
	Delete(ctx context.Context, id string) error
}

type CreateLicenseTypeRequest struct {
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	ManufacturerID string         `json:"manufacturer_id"`
	ProductCode    *string        `json:"product_code"`
	EANCode        *string        `json:"ean_code"`
	VolumeType     string         `json:"volume_type"`
	VolumeRelation *string        `json:"volume_relation"`
	LicenseModel   string         `json:"license_model"`
	BaseLicenseID  *string        `json:"base_license_id"`
	PurchaseModel  string         `json:"purchase_model"`
	Description    *string        `json:"description"`
	Comments       *string        `json:"comments"`
	CustomFields   map[string]any `json:"custom_fields"`
}

type UpdateLicenseTypeRequest struct {
	ID             string         `json:"id"`
	Name           *string        `json:"name,omitempty"`
	ProductCode    *string        `json:"product_code,omitempty"`
	EANCode        *string        `json:"ean_code,omitempty"`
	VolumeType     *string        `json:"volume_type,omitempty"`
	VolumeRelation *string        `json:"volume_relation,omitempty"`
	LicenseModel   *string        `json:"license_model,omitempty"`
	BaseLicenseID  *string        `json:"base_license_id,omitempty"`
	PurchaseModel  *string        `json:"purchase_model,omitempty"`
	Description    *string        `json:"description,omitempty"`
	Comments       *string        `json:"comments,omitempty"`
	CustomFields   map[string]any `json:"custom_fields,omitempty"`
}

type ListLicenseTypeRequest struct {
	ManufacturerID string
	VolumeType     string
	LicenseModel   string
	PurchaseModel  string
	BaseLicenseID  string
	Query          string
	SortBy         string
	OrderBy        string
}

type LicenseTypeResponse struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	ManufacturerID string         `json:"manufacturer_id"`
	ProductCode    *string        `json:"product_code,omitempty"`
	EANCode        *string        `json:"ean_code,omitempty"`
	VolumeType     VolumeType     `json:"volume_type"`
	VolumeRelation *string        `json:"volume_relation,omitempty"`
	LicenseModel   LicenseModel   `json:"license_model"`
	BaseLicenseID  *string        `json:"base_license_id,omitempty"`
	PurchaseModel  PurchaseModel  `json:"purchase_model"`
	Description    *string        `json:"description,omitempty"`
	Comments       *string        `json:"comments,omitempty"`
	CustomFields   map[string]any `json:"custom_fields,omitempty"`
	LicenseCount   int64          `json:"license_count"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type CreateLicenseRequest struct {
	LicenseKey      string         `json:"license_key"`
	SerialNumber    *string        `json:"serial_number"`
	LicenseTypeID   string         `json:"license_type_id"`
	PurchaseDate    *time.Time     `json:"purchase_date"`
	ExpiryDate      *time.Time     `json:"expiry_date"`
	VolumeLimit     *int64         `json:"volume_limit"`
	ParentLicenseID *string        `json:"parent_license_id"`
	Description     *string        `json:"description"`
	Comments        *string        `json:"comments"`
	CustomFields    map[string]any `json:"custom_fields"`
}

// UpdateLicenseRequest patches a license. A zero PurchaseDate/ExpiryDate clears
// the date and an empty ParentLicenseID detaches the parent.
type UpdateLicenseRequest struct {
	ID              string         `json:"id"`
	LicenseKey      *string        `json:"license_key,omitempty"`
	SerialNumber    *string        `json:"serial_number,omitempty"`
	LicenseTypeID   *string        `json:"license_type_id,omitempty"`
	PurchaseDate    *time.Time     `json:"purchase_date,omitempty"`
	ExpiryDate      *time.Time     `json:"expiry_date,omitempty"`
	VolumeLimit     *int64         `json:"volume_limit,omitempty"`
	ParentLicenseID *string        `json:"parent_license_id,omitempty"`
	Description     *string        `json:"description,omitempty"`
	Comments        *string        `json:"comments,omitempty"`
	CustomFields    map[string]any `json:"custom_fields,omitempty"`
}

type ListLicenseRequest struct {
	ManufacturerID  string
	LicenseTypeID   string
	VolumeTypes     []string
	LicenseModels   []string
	ParentLicenseID string
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

type LicenseResponse struct {
	ID              string         `json:"id"`
	LicenseKey      string         `json:"license_key"`
	SerialNumber    *string        `json:"serial_number,omitempty"`
	ManufacturerID  string         `json:"manufacturer_id"`
	LicenseTypeID   string         `json:"license_type_id"`
	VolumeType      VolumeType     `json:"volume_type"`
	LicenseModel    LicenseModel   `json:"license_model"`
	PurchaseDate    *time.Time     `json:"purchase_date,omitempty"`
	ExpiryDate      *time.Time     `json:"expiry_date,omitempty"`
	VolumeLimit     *int64         `json:"volume_limit"`
	ParentLicenseID *string        `json:"parent_license_id,omitempty"`
	IsParentLicense bool           `json:"is_parent_license"`
	IsChildLicense  bool           `json:"is_child_license"`
	CurrentUsage    int64          `json:"current_usage"`
	UsageDisplay    string         `json:"usage_display"`
	Expiry          *ExpiryStatus  `json:"expiry,omitempty"`
	Description     *string        `json:"description,omitempty"`
	Comments        *string        `json:"comments,omitempty"`
	CustomFields    map[string]any `json:"custom_fields,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type CreateAssignmentRequest struct {
	LicenseID        string         `json:"license_id"`
	DeviceID         *string        `json:"device_id"`
	VirtualMachineID *string        `json:"virtual_machine_id"`
	Volume           *int64         `json:"volume"`
	Description      *string        `json:"description"`
	Comments         *string        `json:"comments"`
	CustomFields     map[string]any `json:"custom_fields"`
}

// UpdateAssignmentRequest changes the quantity or notes of an assignment. The
// license and target are fixed; use Reassign to move an assignment.
type UpdateAssignmentRequest struct {
	ID           string         `json:"id"`
	Volume       *int64         `json:"volume,omitempty"`
	Description  *string        `json:"description,omitempty"`
	Comments     *string        `json:"comments,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

type ReassignRequest struct {
	ID        string `json:"id"`
	LicenseID string `json:"license_id"`
}

type ListAssignmentRequest struct {
	LicenseID        string
	DeviceID         string
	VirtualMachineID string
	ManufacturerID   string
}

type AssignmentResponse struct {
	ID                   string         `json:"id"`
	LicenseID            string         `json:"license_id"`
	DeviceID             *string        `json:"device_id,omitempty"`
	VirtualMachineID     *string        `json:"virtual_machine_id,omitempty"`
	ManufacturerID       string         `json:"manufacturer_id"`
	DeviceManufacturerID *string        `json:"device_manufacturer_id,omitempty"`
	Volume               int64          `json:"volume"`
	AssignedAt           time.Time      `json:"assigned_at"`
	Description          *string        `json:"description,omitempty"`
	Comments             *string        `json:"comments,omitempty"`
	CustomFields         map[string]any `json:"custom_fields,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// Usage is the capacity picture of one license.
type Usage struct {
	LicenseID string `json:"license_id"`
	Current   int64  `json:"current"`
	Limit     *int64 `json:"limit"`
	Available *int64 `json:"available"`
	Display   string `json:"display"`
}

type ExpiryColor string

const (
	ExpiryDanger  ExpiryColor = "danger"
	ExpiryWarning ExpiryColor = "warning"
	ExpiryInfo    ExpiryColor = "info"
	ExpirySuccess ExpiryColor = "success"
)

// ExpiryStatus is the lifetime progress of a license with an expiry date.
type ExpiryStatus struct {
	Percent  int         `json:"percent"`
	DaysLeft int         `json:"days_left"`
	Status   ExpiryColor `json:"status"`
	Expired  bool        `json:"expired"`
}
