// Package accounting holds the license accounting rules: volume-limit
// derivation, license type classification, assignment admission and usage.
//
// Every function here is pure. Callers resolve foreign keys and load the
// sibling rows a rule needs, call the engine, and persist the normalized value
// it returns. Rules run in a fixed order and the first violation is returned
// as a *domain.ValidationError.
package accounting

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/discedric/netbox-license/internal/license/domain"
)

// Policy tunes the few rules that are a matter of site preference.
type Policy struct {
	// EnforceParentConsistency requires expansion licenses to hang off a
	// license of their base type and forbids parents on base licenses.
	EnforceParentConsistency bool `mapstructure:"enforce_parent_consistency"`

	// Expiry buckets, in days left.
	WarningDays int `mapstructure:"warning_days"`
	InfoDays    int `mapstructure:"info_days"`

	// ProgressFloor is the percent shown for a running license with no
	// purchase date.
	ProgressFloor int `mapstructure:"progress_floor"`
}

func DefaultPolicy() Policy {
	return Policy{
		EnforceParentConsistency: true,
		WarningDays:              90,
		InfoDays:                 365,
		ProgressFloor:            10,
	}
}

func (p Policy) withDefaults() Policy {
	defaults := DefaultPolicy()
	if p.WarningDays <= 0 {
		p.WarningDays = defaults.WarningDays
	}
	if p.InfoDays <= 0 {
		p.InfoDays = defaults.InfoDays
	}
	if p.InfoDays < p.WarningDays {
		p.InfoDays = p.WarningDays
	}
	if p.ProgressFloor < 0 || p.ProgressFloor > 100 {
		p.ProgressFloor = defaults.ProgressFloor
	}
	return p
}

// Engine applies the accounting rules under one Policy. The zero value is not
// useful; build one with New.
type Engine struct {
	policy Policy
}

func New(policy Policy) Engine {
	return Engine{policy: policy.withDefaults()}
}

func (e Engine) Policy() Policy { return e.policy }

// ResolvedLicense is a license together with its license type.
type ResolvedLicense struct {
	License domain.License
	Type    domain.LicenseType
}

// DeviceInfo carries the parts of a host device the engine reads.
type DeviceInfo struct {
	ID             snowflake.ID
	ManufacturerID snowflake.ID
}

// DateOnly drops the clock part of t, keeping the calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateOnlyPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := DateOnly(*t)
	return &v
}

func int64Ptr(v int64) *int64 { return &v }

// PolicySource hands out the policy in force right now. Engine itself is one;
// so is a hot-reloaded configuration holder.
type PolicySource interface {
	Policy() Policy
}
