package models

import "time"

// Organization is the listing owner. Its blocked flag is maintained by the
// admin surface; the marketplace only reads it.
type Organization struct {
	ID        string    `bson:"_id" json:"id" gorm:"primaryKey;size:36"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email" json:"email"`
	Blocked   bool      `bson:"blocked" json:"blocked" gorm:"not null;default:false"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

func (Organization) TableName() string { return "organizations" }
