package models

import "time"

// Feedback is the buyer's rating of a completed request. One per request.
type Feedback struct {
	ID        string    `bson:"_id" json:"id" gorm:"primaryKey;size:36"`
	RequestID string    `bson:"requestID" json:"requestID" gorm:"size:36;not null;uniqueIndex"`
	BuyerID   string    `bson:"buyerID" json:"buyerID" gorm:"size:36;not null"`
	OrgID     string    `bson:"orgID" json:"orgID" gorm:"size:36;not null;index"`
	Rating    int       `bson:"rating" json:"rating" gorm:"not null"`
	Comment   string    `bson:"comment" json:"comment"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

func (Feedback) TableName() string { return "request_feedback" }
