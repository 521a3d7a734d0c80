package models

import "gorm.io/gorm"

// Draft holds unsent composer content for a connection. Content uses the
// "Subject: <s>\n\n<body>" encoding.
type Draft struct {
	gorm.Model
	ConnectionID uint   `gorm:"not null;uniqueIndex" json:"connection_id"`
	Content      string `gorm:"type:text" json:"content"`
}
