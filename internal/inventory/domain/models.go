package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Manufacturer, DeviceType, Device and VirtualMachine belong to the host
// inventory. Licensing only reads them.

type Manufacturer struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	Slug      string       `json:"slug" gorm:"type:text;not null;uniqueIndex"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Manufacturer) TableName() string { return "dcim_manufacturer" }

type DeviceType struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	ManufacturerID snowflake.ID `json:"manufacturer_id" gorm:"column:manufacturer_id;not null;index"`
	Model          string       `json:"model" gorm:"type:text;not null"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (DeviceType) TableName() string { return "dcim_devicetype" }

type Device struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	Name         string       `json:"name" gorm:"type:text"`
	DeviceTypeID snowflake.ID `json:"device_type_id" gorm:"column:device_type_id;not null;index"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Device) TableName() string { return "dcim_device" }

type VirtualMachine struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (VirtualMachine) TableName() string { return "virtualization_virtualmachine" }

// DeviceWithManufacturer is a device joined to its device type's manufacturer.
type DeviceWithManufacturer struct {
	ID             snowflake.ID
	Name           string
	ManufacturerID snowflake.ID
}
