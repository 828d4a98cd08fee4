package model

import "time"

// OutboxMessage holds a notification written in the same transaction as the
// status transition it describes. DeliveredAt stays nil until a broker accepted it.
type OutboxMessage struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Key         string     `gorm:"size:64;not null" json:"key"`
	Payload     []byte     `gorm:"not null" json:"payload"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	LastError   string     `gorm:"size:255" json:"last_error"`
	DeliveredAt *time.Time `gorm:"index" json:"delivered_at"`
}

func (OutboxMessage) TableName() string { return "outbox_messages" }
