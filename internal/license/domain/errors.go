package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("not_found")
	ErrDuplicateLicenseKey = errors.New("duplicate_license_key")
	ErrDuplicateSlug       = errors.New("duplicate_slug")
	ErrProtected           = errors.New("protected")
	ErrLockUnavailable     = errors.New("license_lock_unavailable")
)

// ErrorKind groups validation failures by the rule family that raised them.
type ErrorKind string

const (
	KindInvalid      ErrorKind = "invalid_value"
	KindStructural   ErrorKind = "structural"
	KindImmutability ErrorKind = "immutability"
	KindCapacity     ErrorKind = "capacity"
	KindReferential  ErrorKind = "referential_consistency"
	KindDateOrder    ErrorKind = "date_order"
)

// Kind sentinels; errors.Is(err, ErrCapacity) holds for every capacity failure.
var (
	ErrInvalidValue = kindError(KindInvalid)
	ErrStructural   = kindError(KindStructural)
	ErrImmutable    = kindError(KindImmutability)
	ErrCapacity     = kindError(KindCapacity)
	ErrReferential  = kindError(KindReferential)
	ErrDateOrder    = kindError(KindDateOrder)
)

type kindError ErrorKind

func (k kindError) Error() string { return string(k) }

// Validation codes.
const (
	CodeRequired               = "required"
	CodeInvalidChoice          = "invalid_choice"
	CodeBothTargetsSet         = "both_targets_set"
	CodeNoTargetSet            = "no_target_set"
	CodeTargetMismatch         = "target_mismatch"
	CodeSingleAlreadyAssigned  = "single_license_already_assigned"
	CodeVolumeBelowMinimum     = "volume_below_minimum"
	CodeVolumeLimitExceeded    = "volume_limit_exceeded"
	CodeVolumeLimitRequired    = "volume_limit_required"
	CodeVolumeLimitTooSmall    = "volume_limit_too_small"
	CodeVolumeLimitNotOne      = "single_volume_limit_not_one"
	CodeVolumeLimitBelowUsage  = "volume_limit_below_usage"
	CodeImmutableLicenseType   = "license_type_immutable"
	CodeImmutableClassifier    = "classification_immutable"
	CodeBaseLicenseRequired    = "base_license_required"
	CodeBaseLicenseNotBase     = "base_license_not_base"
	CodeBaseLicenseForbidden   = "base_license_forbidden"
	CodeBaseLicenseNotFound    = "base_license_not_found"
	CodeSelfReference          = "self_reference"
	CodeParentLicenseRequired  = "parent_license_required"
	CodeParentLicenseNotBase   = "parent_license_not_base"
	CodeParentLicenseWrongType = "parent_license_wrong_type"
	CodeParentLicenseForbidden = "parent_license_forbidden"
	CodeParentLicenseNotFound  = "parent_license_not_found"
	CodeExpiryBeforePurchase   = "expiry_before_purchase"
	CodeBaseLicenseInUse       = "base_license_in_use"

	CodeManufacturerNotFound   = "manufacturer_not_found"
	CodeLicenseTypeNotFound    = "license_type_not_found"
	CodeLicenseNotFound        = "license_not_found"
	CodeDeviceNotFound         = "device_not_found"
	CodeVirtualMachineNotFound = "virtual_machine_not_found"
)

// ValidationError reports the first rule a candidate entity violated.
type ValidationError struct {
	Kind    ErrorKind `json:"kind"`
	Field   string    `json:"field"`
	Code    string    `json:"code"`
	Message string    `json:"message"`

	// Populated for volume ceiling failures.
	Current   *int64 `json:"current,omitempty"`
	Limit     *int64 `json:"limit,omitempty"`
	Attempted *int64 `json:"attempted,omitempty"`
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// Is matches kind sentinels and other ValidationErrors carrying the same code.
func (e *ValidationError) Is(target error) bool {
	switch t := target.(type) {
	case kindError:
		return ErrorKind(t) == e.Kind
	case *ValidationError:
		return t.Code != "" && t.Code == e.Code
	}
	return false
}

func NewValidationError(kind ErrorKind, field, code, message string) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Code: code, Message: message}
}

// CodeError returns a comparable error for errors.Is checks against a code.
func CodeError(code string) error {
	return &ValidationError{Code: code}
}

// CapacityExceeded builds the volume ceiling failure with its accounting context.
func CapacityExceeded(current, limit, attempted int64) *ValidationError {
	msg := fmt.Sprintf("volume limit exceeded: %d of %d already assigned, %d requested", current, limit, attempted)
	return &ValidationError{
		Kind:      KindCapacity,
		Field:     "volume",
		Code:      CodeVolumeLimitExceeded,
		Message:   msg,
		Current:   &current,
		Limit:     &limit,
		Attempted: &attempted,
	}
}

// AsValidationError unwraps err into a *ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
