package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/discedric/netbox-license/internal/license/accounting"
	"github.com/discedric/netbox-license/internal/license/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLicenseCreateDerivesVolumeLimit(t *testing.T) {
	f := newFixture(t)
	single := f.licenseType(t, "Desktop", "single", "base", nil)
	volume := f.licenseType(t, "Seats", "volume", "base", nil)
	unlimited := f.licenseType(t, "Site", "unlimited", "base", nil)

	s := f.license(t, "DESK-1", single.ID, nil, nil)
	require.NotNil(t, s.VolumeLimit)
	assert.Equal(t, int64(1), *s.VolumeLimit)
	assert.Equal(t, "0/1", s.UsageDisplay)
	assert.Equal(t, vendorID.String(), s.ManufacturerID)

	u := f.license(t, "SITE-1", unlimited.ID, int64Ptr(50), nil)
	assert.Nil(t, u.VolumeLimit)
	assert.Equal(t, "0/∞", u.UsageDisplay)

	_, err := f.licenses.Create(context.Background(), domain.CreateLicenseRequest{LicenseKey: "SEAT-1", LicenseTypeID: volume.ID})
	assert.ErrorIs(t, err, domain.CodeError(domain.CodeVolumeLimitRequired))

	_, err = f.licenses.Create(context.Background(), domain.CreateLicenseRequest{LicenseKey: "SEAT-1", LicenseTypeID: volume.ID, VolumeLimit: int64Ptr(1)})
	assert.ErrorIs(t, err, domain.CodeError(domain.CodeVolumeLimitTooSmall))

	_, err = f.licenses.Create(context.Background(), domain.CreateLicenseRequest{LicenseKey: "DESK-2", LicenseTypeID: single.ID, VolumeLimit: int64Ptr(3)})
	assert.ErrorIs(t, err, domain.ErrCapacity)
}

func TestLicenseCreateRejections(t *testing.T) {
	f := newFixture(t)
	lt := f.licenseType(t, "Seats", "volume", "base", nil)
	f.license(t, "SEAT-1", lt.ID, int64Ptr(5), nil)

	_, err := f.licenses.Create(context.Background(), domain.CreateLicenseRequest{LicenseKey: "SEAT-1", LicenseTypeID: lt.ID, VolumeLimit: int64Ptr(5)})
	assert.ErrorIs(t, err, domain.ErrDuplicateLicenseKey)

	_, err = f.licenses.Create(context.Background(), domain.CreateLicenseRequest{
		LicenseKey:    "SEAT-2",
		LicenseTypeID: lt.ID,
		VolumeLimit:   int64Ptr(5),
		PurchaseDate:  day(2025, 6, 1),
		ExpiryDate:    day(2025, 5, 31),
	})
	assert.ErrorIs(t, err, domain.ErrDateOrder)

	_, err = f.licenses.Create(context.Background(), domain.CreateLicenseRequest{LicenseKey: "SEAT-3", LicenseTypeID: "424242", VolumeLimit: int64Ptr(5)})
	assert.ErrorIs(t, err, domain.CodeError(domain.CodeLicenseTypeNotFound))

	_, err = f.licenses.Create(context.Background(), domain.CreateLicenseRequest{LicenseKey: "  ", LicenseTypeID: lt.ID, VolumeLimit: int64Ptr(5)})
	assert.ErrorIs(t, err, domain.CodeError(domain.CodeRequired))
}

func TestLicenseParentConsistency(t *testing.T) {
	f := newFixture(t)
	core := f.licenseType(t, "Core", "volume", "base", nil)
	other := f.licenseType(t, "Other", "volume", "base", nil)
	addon := f.licenseType(t, "Core Addon", "volume", "expansion", strPtr(core.ID))

	coreLic := f.license(t, "CORE-1", core.ID, int64Ptr(10), nil)
	otherLic := f.license(t, "OTHER-1", other.ID, int64Ptr(10), nil)

	_, err := f.licenses.Create(context.Background(), domain.CreateLicenseRequest{LicenseKey: "ADD-1", LicenseTypeID: addon.ID, VolumeLimit: int64Ptr(2)})
	assert.ErrorIs(t, err, domain.CodeError(domain.CodeParentLicenseRequired))

	_, err = f.licenses.Create(context.Background(), domain.CreateLicenseRequest{LicenseKey: "ADD-1", LicenseTypeID: addon.ID, VolumeLimit: int64Ptr(2), ParentLicenseID: strPtr(otherLic.ID)})
	assert.ErrorIs(t, err, domain.CodeError(domain.CodeParentLicenseWrongType))

	_, err = f.licenses.Create(context.Background(), domain.CreateLicenseRequest{LicenseKey: "BASE-2", LicenseTypeID: core.ID, VolumeLimit: int64Ptr(2), ParentLicenseID: strPtr(coreLic.ID)})
	assert.ErrorIs(t, err, domain.CodeError(domain.CodeParentLicenseForbidden))

	child := f.license(t, "ADD-1", addon.ID, int64Ptr(2), strPtr(coreLic.ID))
	assert.True(t, child.IsChildLicense)
	assert.Equal(t, domain.LicenseModelExpansion, child.LicenseModel)

	parent, err := f.licenses.Get(context.Background(), coreLic.ID)
	require.NoError(t, err)
	assert.True(t, parent.IsParentLicense)
	assert.False(t, parent.IsChildLicense)

	// A parent with sub-licenses cannot be deleted.
	assert.ErrorIs(t, f.licenses.Delete(context.Background(), coreLic.ID), domain.ErrProtected)
}

func TestLicenseParentPolicyOff(t *testing.T) {
	policy := accounting.DefaultPolicy()
	policy.EnforceParentConsistency = false
	f := newFixtureWithPolicy(t, policy)

	core := f.licenseType(t, "Core", "volume", "base", nil)
	addon := f.licenseType(t, "Core Addon", "volume", "expansion", strPtr(core.ID))

	lic := f.license(t, "ADD-1", addon.ID, int64Ptr(2), nil)
	assert.False(t, lic.IsChildLicense)

	_, err := f.licenses.Create(context.Background(), domain.CreateLicenseRequest{LicenseKey: "ADD-2", LicenseTypeID: addon.ID, VolumeLimit: int64Ptr(2), ParentLicenseID: strPtr("777777")})
	assert.ErrorIs(t, err, domain.CodeError(domain.CodeParentLicenseNotFound))
}

func TestLicenseUpdate(t *testing.T) {
	f := newFixture(t)
	seats := f.licenseType(t, "Seats", "volume", "base", nil)
	desk := f.licenseType(t, "Desktop", "single", "base", nil)
	lic := f.license(t, "SEAT-1", seats.ID, int64Ptr(5), nil)

	_, err := f.assignDevice(lic.ID, deviceID, 3)
	require.NoError(t, err)

	_, err = f.licenses.Update(context.Background(), domain.UpdateLicenseRequest{ID: lic.ID, VolumeLimit: int64Ptr(2)})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.CodeError(domain.CodeVolumeLimitBelowUsage))
	verr, ok := domain.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, int64(3), *verr.Current)

	resp, err := f.licenses.Update(context.Background(), domain.UpdateLicenseRequest{ID: lic.ID, VolumeLimit: int64Ptr(3), SerialNumber: strPtr(" SN-9 ")})
	require.NoError(t, err)
	assert.Equal(t, "3/3", resp.UsageDisplay)
	assert.Equal(t, "SN-9", *resp.SerialNumber)

	_, err = f.licenses.Update(context.Background(), domain.UpdateLicenseRequest{ID: lic.ID, LicenseTypeID: strPtr(desk.ID)})
	assert.ErrorIs(t, err, domain.CodeError(domain.CodeImmutableLicenseType))

	_, err = f.licenses.Update(context.Background(), domain.UpdateLicenseRequest{ID: "123", LicenseKey: strPtr("X")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLicenseExpiryAndUsage(t *testing.T) {
	f := newFixture(t)
	seats := f.licenseType(t, "Seats", "volume", "base", nil)

	// Today is 2025-01-01: 30 days left, bought 2024-12-02.
	lic, err := f.licenses.Create(context.Background(), domain.CreateLicenseRequest{
		LicenseKey:    "SEAT-1",
		LicenseTypeID: seats.ID,
		VolumeLimit:   int64Ptr(4),
		PurchaseDate:  day(2024, 12, 2),
		ExpiryDate:    day(2025, 1, 31),
	})
	require.NoError(t, err)
	require.NotNil(t, lic.Expiry)
	assert.Equal(t, 30, lic.Expiry.DaysLeft)
	assert.Equal(t, 50, lic.Expiry.Percent)
	assert.Equal(t, domain.ExpiryWarning, lic.Expiry.Status)

	_, err = f.assignVM(lic.ID, 3)
	require.NoError(t, err)

	usage, err := f.licenses.Usage(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), usage.Current)
	assert.Equal(t, int64(1), *usage.Available)
	assert.Equal(t, "3/4", usage.Display)

	f.clock.Advance(31 * 24 * time.Hour)
	got, err := f.licenses.Get(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.True(t, got.Expiry.Expired)
	assert.Equal(t, domain.ExpiryDanger, got.Expiry.Status)
	assert.Equal(t, 100, got.Expiry.Percent)
}

func TestLicenseDeleteCascadesAssignments(t *testing.T) {
	f := newFixture(t)
	seats := f.licenseType(t, "Seats", "volume", "base", nil)
	lic := f.license(t, "SEAT-1", seats.ID, int64Ptr(5), nil)

	a, err := f.assignDevice(lic.ID, deviceID, 2)
	require.NoError(t, err)

	require.NoError(t, f.licenses.Delete(context.Background(), lic.ID))

	_, err = f.assignments.Get(context.Background(), a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.licenses.Get(context.Background(), lic.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLicenseList(t *testing.T) {
	f := newFixture(t)
	core := f.licenseType(t, "Core", "volume", "base", nil)
	addon := f.licenseType(t, "Core Addon", "unlimited", "expansion", strPtr(core.ID))
	desk := f.licenseType(t, "Desktop", "single", "base", nil)

	parent := f.license(t, "CORE-1", core.ID, int64Ptr(10), nil)
	f.license(t, "ADD-1", addon.ID, nil, strPtr(parent.ID))
	f.license(t, "DESK-1", desk.ID, nil, nil)

	keys := func(items []domain.LicenseResponse) []string {
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, item.LicenseKey)
		}
		return out
	}
	yes, no := true, false

	got, err := f.licenses.List(context.Background(), domain.ListLicenseRequest{SortBy: "license_key", OrderBy: "asc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ADD-1", "CORE-1", "DESK-1"}, keys(got))

	got, err = f.licenses.List(context.Background(), domain.ListLicenseRequest{VolumeTypes: []string{"single", "UNLIMITED"}, SortBy: "license_key", OrderBy: "asc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ADD-1", "DESK-1"}, keys(got))

	got, err = f.licenses.List(context.Background(), domain.ListLicenseRequest{IsParent: &yes})
	require.NoError(t, err)
	assert.Equal(t, []string{"CORE-1"}, keys(got))

	got, err = f.licenses.List(context.Background(), domain.ListLicenseRequest{IsChild: &yes})
	require.NoError(t, err)
	assert.Equal(t, []string{"ADD-1"}, keys(got))

	got, err = f.licenses.List(context.Background(), domain.ListLicenseRequest{IsChild: &no, IsParent: &no})
	require.NoError(t, err)
	assert.Equal(t, []string{"DESK-1"}, keys(got))

	got, err = f.licenses.List(context.Background(), domain.ListLicenseRequest{Query: "core"})
	require.NoError(t, err)
	assert.Equal(t, []string{"CORE-1"}, keys(got))

	got, err = f.licenses.List(context.Background(), domain.ListLicenseRequest{LicenseModels: []string{"expansion"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ADD-1"}, keys(got))
}
