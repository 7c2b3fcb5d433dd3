// server/internal/models/request.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestRejected  RequestStatus = "rejected"
	RequestCompleted RequestStatus = "completed"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestAccepted, RequestRejected, RequestCompleted:
		return true
	}
	return false
}

// Terminal statuses never change again.
func (s RequestStatus) Terminal() bool {
	return s == RequestRejected || s == RequestCompleted
}

// Holds reports whether the request still occupies its buyer's single slot on
// the material. A rejected request frees it.
func (s RequestStatus) Holds() bool {
	return s.Valid() && s != RequestRejected
}

// Request is a buyer's claim against a material for some sub-quantity.
type Request struct {
	ID         string          `bson:"_id" json:"id" gorm:"primaryKey;size:36"`
	MaterialID string          `bson:"materialID" json:"materialID" gorm:"size:36;not null;uniqueIndex:idx_request_material_buyer,where:status <> 'rejected'"`
	BuyerID    string          `bson:"buyerID" json:"buyerID" gorm:"size:36;not null;uniqueIndex:idx_request_material_buyer,where:status <> 'rejected'"`
	Quantity   decimal.Decimal `bson:"quantity" json:"quantity" gorm:"type:decimal(12,2);not null"`
	Message    string          `bson:"message" json:"message"`
	Status     RequestStatus   `bson:"status" json:"status" gorm:"size:32;not null;default:'pending'"`
	CreatedAt  time.Time       `bson:"createdAt" json:"createdAt" gorm:"index"`
	UpdatedAt  time.Time       `bson:"updatedAt" json:"updatedAt"`
}

func (Request) TableName() string { return "requests" }
