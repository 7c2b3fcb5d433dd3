package models

import "time"

type ReportStatus string

const ReportPending ReportStatus = "pending"

// Report is an organization's complaint about a buyer, tied to one request.
type Report struct {
	ID          string       `bson:"_id" json:"id" gorm:"primaryKey;size:36"`
	RequestID   string       `bson:"requestID" json:"requestID" gorm:"size:36;index"`
	BuyerID     string       `bson:"buyerID" json:"buyerID" gorm:"size:36;not null"`
	OrgID       string       `bson:"orgID" json:"orgID" gorm:"size:36;not null;index"`
	Reason      string       `bson:"reason" json:"reason" gorm:"not null"`
	Description string       `bson:"description" json:"description"`
	Status      ReportStatus `bson:"status" json:"status" gorm:"size:32;not null;default:'pending'"`
	EvidenceURL string       `bson:"evidenceURL,omitempty" json:"evidenceURL,omitempty"`
	CreatedAt   time.Time    `bson:"createdAt" json:"createdAt"`
}

func (Report) TableName() string { return "seller_reports" }
