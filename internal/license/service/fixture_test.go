package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/discedric/netbox-license/internal/clock"
	"github.com/discedric/netbox-license/internal/config"
	inventorydomain "github.com/discedric/netbox-license/internal/inventory/domain"
	inventoryrepo "github.com/discedric/netbox-license/internal/inventory/repository"
	"github.com/discedric/netbox-license/internal/license/accounting"
	"github.com/discedric/netbox-license/internal/license/domain"
	"github.com/discedric/netbox-license/internal/license/repository"
	"github.com/discedric/netbox-license/internal/license/service"
	"github.com/discedric/netbox-license/internal/lock"
	"github.com/discedric/netbox-license/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

var (
	vendorID      = snowflake.ID(1001)
	otherVendorID = snowflake.ID(1002)
	deviceTypeID  = snowflake.ID(2001)
	deviceID      = snowflake.ID(3001)
	otherDeviceID = snowflake.ID(3002)
	vmID          = snowflake.ID(4001)
)

type fixture struct {
	db          *gorm.DB
	logs        *observer.ObservedLogs
	clock       *clock.FakeClock
	locker      lock.Locker
	types       domain.LicenseTypeService
	licenses    domain.LicenseService
	assignments domain.AssignmentService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithPolicy(t, accounting.DefaultPolicy())
}

func newFixtureWithPolicy(t *testing.T, policy accounting.Policy) *fixture {
	t.Helper()

	conn := dbtest.Open(t,
		&inventorydomain.Manufacturer{},
		&inventorydomain.DeviceType{},
		&inventorydomain.Device{},
		&inventorydomain.VirtualMachine{},
		&domain.LicenseType{},
		&domain.License{},
		&domain.LicenseAssignment{},
	)

	require.NoError(t, conn.Create(&[]inventorydomain.Manufacturer{
		{ID: vendorID, Name: "Acme", Slug: "acme"},
		{ID: otherVendorID, Name: "Globex", Slug: "globex"},
	}).Error)
	require.NoError(t, conn.Create(&inventorydomain.DeviceType{ID: deviceTypeID, ManufacturerID: otherVendorID, Model: "GX-1"}).Error)
	require.NoError(t, conn.Create(&[]inventorydomain.Device{
		{ID: deviceID, Name: "edge-01", DeviceTypeID: deviceTypeID},
		{ID: otherDeviceID, Name: "edge-02", DeviceTypeID: deviceTypeID},
	}).Error)
	require.NoError(t, conn.Create(&inventorydomain.VirtualMachine{ID: vmID, Name: "vm-01"}).Error)

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	fake := clock.NewFakeClock(time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC))
	locker := lock.NewLocalLocker()
	params := service.Params{
		DB:        conn,
		Log:       zap.New(core),
		GenID:     node,
		Repo:      repository.Provide(),
		Inventory: inventoryrepo.Provide(),
		Policy:    config.NewStaticPolicy(policy),
		Clock:     fake,
		Locker:    locker,
	}

	return &fixture{
		db:          conn,
		logs:        logs,
		clock:       fake,
		locker:      locker,
		types:       service.NewLicenseTypeService(params),
		licenses:    service.NewLicenseService(params),
		assignments: service.NewAssignmentService(params),
	}
}

func strPtr(v string) *string { return &v }

func int64Ptr(v int64) *int64 { return &v }

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func (f *fixture) licenseType(t *testing.T, name, volumeType, model string, base *string) *domain.LicenseTypeResponse {
	t.Helper()
	resp, err := f.types.Create(context.Background(), domain.CreateLicenseTypeRequest{
		Name:           name,
		ManufacturerID: vendorID.String(),
		VolumeType:     volumeType,
		LicenseModel:   model,
		BaseLicenseID:  base,
		PurchaseModel:  "subscription",
	})
	require.NoError(t, err)
	return resp
}

func (f *fixture) license(t *testing.T, key, typeID string, limit *int64, parent *string) *domain.LicenseResponse {
	t.Helper()
	resp, err := f.licenses.Create(context.Background(), domain.CreateLicenseRequest{
		LicenseKey:      key,
		LicenseTypeID:   typeID,
		VolumeLimit:     limit,
		ParentLicenseID: parent,
	})
	require.NoError(t, err)
	return resp
}

func (f *fixture) assignDevice(licenseID string, device snowflake.ID, volume int64) (*domain.AssignmentResponse, error) {
	return f.assignments.Create(context.Background(), domain.CreateAssignmentRequest{
		LicenseID: licenseID,
		DeviceID:  strPtr(device.String()),
		Volume:    int64Ptr(volume),
	})
}

func (f *fixture) assignVM(licenseID string, volume int64) (*domain.AssignmentResponse, error) {
	return f.assignments.Create(context.Background(), domain.CreateAssignmentRequest{
		LicenseID:        licenseID,
		VirtualMachineID: strPtr(vmID.String()),
		Volume:           int64Ptr(volume),
	})
}
