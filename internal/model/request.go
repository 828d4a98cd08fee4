package model

import "time"

// Request is a customer order tracked through kitchen preparation.
type Request struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CustomerID uint          `gorm:"not null;index" json:"customer_id"`
	Status     RequestStatus `gorm:"size:32;not null;index" json:"status"`

	// Line items are owned by the request and removed with it.
	LineItems []RequestLineItem `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"line_items,omitempty"`
}

func (Request) TableName() string { return "requests" }
