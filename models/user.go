package models

import (
	"gorm.io/gorm"
)

// User represents an account that owns connections
type User struct {
	gorm.Model

	Email    string  `gorm:"uniqueIndex;not null" json:"email"`
	Name     *string `json:"name,omitempty"`
	Timezone string  `gorm:"default:'UTC'" json:"timezone"`

	// Account status
	IsActive     bool `gorm:"default:true" json:"is_active"`
	TokenVersion int  `gorm:"default:0" json:"-"`

	// Relations
	Connections []Connection `gorm:"foreignKey:UserID" json:"connections,omitempty"`
}
