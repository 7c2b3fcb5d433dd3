// server/internal/models/material.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaterialStatus is the coarse availability state of a listing.
type MaterialStatus string

const (
	MaterialAvailable          MaterialStatus = "available"
	MaterialPartiallyAllocated MaterialStatus = "partially_allocated"
	// MaterialReserved belongs to the single-buyer model and is never produced
	// by the ledger; it is still rejected when found on a row.
	MaterialReserved    MaterialStatus = "reserved"
	MaterialExhausted   MaterialStatus = "exhausted"
	MaterialTransferred MaterialStatus = "transferred"
)

// Allocatable reports whether new reservations may be taken against the material.
func (s MaterialStatus) Allocatable() bool {
	return s == MaterialAvailable || s == MaterialPartiallyAllocated
}

func (s MaterialStatus) Valid() bool {
	switch s {
	case MaterialAvailable, MaterialPartiallyAllocated, MaterialReserved, MaterialExhausted, MaterialTransferred:
		return true
	}
	return false
}

// Material is a listed quantity of waste offered by one organization.
type Material struct {
	ID       string `bson:"_id" json:"id" gorm:"primaryKey;size:36"`
	OrgID    string `bson:"orgID" json:"orgID" gorm:"size:36;index;not null"`
	Title    string `bson:"title" json:"title"`
	Category string `bson:"category" json:"category"`
	Unit     string `bson:"unit" json:"unit"`

	TotalQuantity decimal.Decimal `bson:"totalQuantity" json:"totalQuantity" gorm:"type:decimal(12,2);not null"`
	// RemainingQuantity stays null until the first acceptance.
	RemainingQuantity decimal.NullDecimal `bson:"remainingQuantity" json:"remainingQuantity" gorm:"type:decimal(12,2)"`
	Status            MaterialStatus      `bson:"status" json:"status" gorm:"size:32;not null;default:'available'"`
	Version           int64               `bson:"version" json:"version" gorm:"not null;default:0"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (Material) TableName() string { return "materials" }

// Remaining returns the allocatable quantity, treating an unset value as the full listing.
func (m *Material) Remaining() decimal.Decimal {
	if m.RemainingQuantity.Valid {
		return m.RemainingQuantity.Decimal
	}
	return m.TotalQuantity
}
