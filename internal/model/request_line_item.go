package model

import "time"

// RequestLineItem is one menu item entry within a request.
// Quantity is fixed at creation; PreparedQuantity is the only mutable field.
type RequestLineItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RequestID        uint `gorm:"not null;index:idx_line_items_request_menu" json:"request_id"`
	MenuItemID       uint `gorm:"not null;index:idx_line_items_request_menu" json:"menu_item_id"`
	Quantity         int  `gorm:"not null;check:chk_line_items_quantity,quantity > 0" json:"quantity"`
	PreparedQuantity int  `gorm:"not null;default:0;check:chk_line_items_prepared,prepared_quantity >= 0 AND prepared_quantity <= quantity" json:"prepared_quantity"`
}

func (RequestLineItem) TableName() string { return "request_line_items" }

// IsFinished reports whether the full requested quantity has been prepared.
func (li RequestLineItem) IsFinished() bool { return li.PreparedQuantity == li.Quantity }
