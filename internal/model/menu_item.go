package model

import "time"

// MenuItem is a catalog entry. The catalog is read-only for this service.
type MenuItem struct {
	ID        uint      `gorm:"primarykey" json:"id" yaml:"id"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`

	Name string `gorm:"size:128;not null" json:"name" yaml:"name"`
}

func (MenuItem) TableName() string { return "menu_items" }
