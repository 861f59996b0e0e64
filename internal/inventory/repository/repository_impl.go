package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/discedric/netbox-license/internal/inventory/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindManufacturer(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Manufacturer, error) {
	var m domain.Manufacturer
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, created_at FROM dcim_manufacturer WHERE id = ?`,
		id,
	).Scan(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == 0 {
		return nil, nil
	}
	return &m, nil
}

func (r *repo) FindDevice(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.DeviceWithManufacturer, error) {
	var d domain.DeviceWithManufacturer
	err := db.WithContext(ctx).Raw(
		`SELECT d.id, d.name, dt.manufacturer_id
		 FROM dcim_device d
		 JOIN dcim_devicetype dt ON dt.id = d.device_type_id
		 WHERE d.id = ?`,
		id,
	).Scan(&d).Error
	if err != nil {
		return nil, err
	}
	if d.ID == 0 {
		return nil, nil
	}
	return &d, nil
}

func (r *repo) FindVirtualMachine(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.VirtualMachine, error) {
	var vm domain.VirtualMachine
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, created_at FROM virtualization_virtualmachine WHERE id = ?`,
		id,
	).Scan(&vm).Error
	if err != nil {
		return nil, err
	}
	if vm.ID == 0 {
		return nil, nil
	}
	return &vm, nil
}
