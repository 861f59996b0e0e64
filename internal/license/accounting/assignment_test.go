package accounting

import (
	"math"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/discedric/netbox-license/internal/license/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolved(vt domain.VolumeType, limit *int64) ResolvedLicense {
	lt := typeWithVolume(vt)
	return ResolvedLicense{
		License: domain.License{
			ID:             500,
			LicenseKey:     "KEY-500",
			LicenseTypeID:  lt.ID,
			ManufacturerID: lt.ManufacturerID,
			VolumeLimit:    limit,
		},
		Type: lt,
	}
}

func onDevice(id int64, volume int64) domain.LicenseAssignment {
	return domain.LicenseAssignment{LicenseID: 500, DeviceID: idPtr(id), Volume: volume}
}

func TestValidateAssignmentTargets(t *testing.T) {
	engine := New(DefaultPolicy())
	license := resolved(domain.VolumeTypeUnlimited, nil)

	both := domain.LicenseAssignment{LicenseID: 500, DeviceID: idPtr(1), VirtualMachineID: idPtr(2), Volume: 1}
	_, err := engine.ValidateAssignment(both, license, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStructural)
	assert.ErrorIs(t, err, domain.CodeError(domain.CodeBothTargetsSet))

	neither := domain.LicenseAssignment{LicenseID: 500, Volume: 1}
	_, err = engine.ValidateAssignment(neither, license, nil, nil)
	assert.ErrorIs(t, err, domain.CodeError(domain.CodeNoTargetSet))

	zeroIDs := domain.LicenseAssignment{LicenseID: 500, DeviceID: idPtr(0), VirtualMachineID: idPtr(0), Volume: 1}
	_, err = engine.ValidateAssignment(zeroIDs, license, nil, nil)
	assert.ErrorIs(t, err, domain.CodeError(domain.CodeNoTargetSet))

	vm := domain.LicenseAssignment{LicenseID: 500, VirtualMachineID: idPtr(2), Volume: 1}
	out, err := engine.ValidateAssignment(vm, license, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "virtual_machine", out.TargetKind())
	assert.Nil(t, out.DeviceManufacturerID)
}

func TestValidateAssignmentCopiesManufacturers(t *testing.T) {
	engine := New(DefaultPolicy())
	license := resolved(domain.VolumeTypeUnlimited, nil)
	license.License.ManufacturerID = 9

	candidate := onDevice(1, 1)
	candidate.ManufacturerID = 1234
	out, err := engine.ValidateAssignment(candidate, license, &DeviceInfo{ID: 1, ManufacturerID: 77}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 9, out.ManufacturerID)
	require.NotNil(t, out.DeviceManufacturerID)
	assert.EqualValues(t, 77, *out.DeviceManufacturerID)

	_, err = engine.ValidateAssignment(candidate, license, &DeviceInfo{ID: 2, ManufacturerID: 77}, nil)
	assert.ErrorIs(t, err, domain.CodeError(domain.CodeTargetMismatch))
}

func TestValidateAssignmentSingle(t *testing.T) {
	engine := New(DefaultPolicy())
	license := resolved(domain.VolumeTypeSingle, limitPtr(1))

	first, err := engine.ValidateAssignment(onDevice(1, 3), license, nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.Volume, "single assignments are forced to a volume of 1")
	first.ID = 900

	_, err = engine.ValidateAssignment(onDevice(2, 1), license, nil, []domain.LicenseAssignment{first})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCapacity)
	assert.ErrorIs(t, err, domain.CodeError(domain.CodeSingleAlreadyAssigned))

	// Re-validating the stored assignment ignores its own row.
	again, err := engine.ValidateAssignment(first, license, nil, []domain.LicenseAssignment{first})
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestValidateAssignmentVolumeCeiling(t *testing.T) {
	engine := New(DefaultPolicy())
	license := resolved(domain.VolumeTypeVolume, limitPtr(5))

	var stored []domain.LicenseAssignment
	for i, volume := range []int64{2, 2} {
		out, err := engine.ValidateAssignment(onDevice(int64(i+1), volume), license, nil, stored)
		require.NoError(t, err)
		out.ID = snowflake.ID(1000 + i)
		stored = append(stored, out)
	}

	_, err := engine.ValidateAssignment(onDevice(3, 2), license, nil, stored)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCapacity)
	verr, ok := domain.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeVolumeLimitExceeded, verr.Code)
	assert.EqualValues(t, 4, *verr.Current)
	assert.EqualValues(t, 5, *verr.Limit)
	assert.EqualValues(t, 2, *verr.Attempted)

	out, err := engine.ValidateAssignment(onDevice(3, 1), license, nil, stored)
	require.NoError(t, err)
	assert.EqualValues(t, 1, out.Volume)

	_, err = engine.ValidateAssignment(onDevice(3, math.MaxInt64), license, nil, stored)
	assert.ErrorIs(t, err, domain.ErrCapacity)
	_, err = engine.ValidateAssignment(onDevice(3, math.MaxInt64-3), license, nil, stored)
	assert.ErrorIs(t, err, domain.ErrCapacity)
}

func TestValidateAssignmentVolumeUpdateExcludesSelf(t *testing.T) {
	engine := New(DefaultPolicy())
	license := resolved(domain.VolumeTypeVolume, limitPtr(5))
	a := onDevice(1, 3)
	a.ID = 1
	b := onDevice(2, 2)
	b.ID = 2
	stored := []domain.LicenseAssignment{a, b}

	grow := a
	grow.Volume = 3
	_, err := engine.ValidateAssignment(grow, license, nil, stored)
	require.NoError(t, err)

	grow.Volume = 4
	_, err = engine.ValidateAssignment(grow, license, nil, stored)
	verr, ok := domain.AsValidationError(err)
	require.True(t, ok)
	assert.EqualValues(t, 2, *verr.Current)
}

func TestValidateAssignmentVolumeBelowOne(t *testing.T) {
	engine := New(DefaultPolicy())
	for _, vt := range []domain.VolumeType{domain.VolumeTypeVolume, domain.VolumeTypeUnlimited} {
		license := resolved(vt, limitPtr(5))
		if vt == domain.VolumeTypeUnlimited {
			license.License.VolumeLimit = nil
		}
		_, err := engine.ValidateAssignment(onDevice(1, 0), license, nil, nil)
		assert.ErrorIs(t, err, domain.CodeError(domain.CodeVolumeBelowMinimum), string(vt))
	}
}

func TestValidateAssignmentUnlimitedHasNoCeiling(t *testing.T) {
	engine := New(DefaultPolicy())
	license := resolved(domain.VolumeTypeUnlimited, nil)
	stored := make([]domain.LicenseAssignment, 0, 100)
	for i := 0; i < 100; i++ {
		a := onDevice(int64(i+1), 10)
		a.ID = snowflake.ID(i + 1)
		stored = append(stored, a)
	}

	_, err := engine.ValidateAssignment(onDevice(1000, 50), license, nil, stored)
	require.NoError(t, err)
}

func TestValidateAssignmentRejectsForeignLicense(t *testing.T) {
	engine := New(DefaultPolicy())
	license := resolved(domain.VolumeTypeUnlimited, nil)
	candidate := onDevice(1, 1)
	candidate.LicenseID = 501

	_, err := engine.ValidateAssignment(candidate, license, nil, nil)
	assert.ErrorIs(t, err, domain.ErrReferential)
}

func TestAdmittedAssignmentsNeverExceedLimit(t *testing.T) {
	engine := New(DefaultPolicy())
	license := resolved(domain.VolumeTypeVolume, limitPtr(17))
	volumes := []int64{3, 5, 1, 9, 2, 4, 1, 1, 6, 2, 1}

	var stored []domain.LicenseAssignment
	var admitted int64
	for i, v := range volumes {
		out, err := engine.ValidateAssignment(onDevice(int64(i+1), v), license, nil, stored)
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrCapacity)
			continue
		}
		out.ID = snowflake.ID(i + 1)
		stored = append(stored, out)
		admitted += v
		assert.LessOrEqual(t, ComputeUsage(license.License, stored).Current, int64(17))
	}
	assert.Equal(t, admitted, ComputeUsage(license.License, stored).Current)
}
