package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindManufacturer(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Manufacturer, error)
	FindDevice(ctx context.Context, db *gorm.DB, id snowflake.ID) (*DeviceWithManufacturer, error)
	FindVirtualMachine(ctx context.Context, db *gorm.DB, id snowflake.ID) (*VirtualMachine, error)
}
