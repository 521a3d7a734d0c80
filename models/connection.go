package models

import (
	"time"

	"gorm.io/gorm"
)

// EmailStatus is the outreach stage a connection is currently in
type EmailStatus string

const (
	StatusNotContacted     EmailStatus = "Not Contacted"
	StatusFirstImpression  EmailStatus = "First Impression"
	StatusFollowUp         EmailStatus = "Follow-up"
	StatusResponse         EmailStatus = "Response"
	StatusMeetingScheduled EmailStatus = "Meeting Scheduled"
)

// EmailStatuses lists every status in lifecycle order
var EmailStatuses = []EmailStatus{
	StatusNotContacted,
	StatusFirstImpression,
	StatusFollowUp,
	StatusResponse,
	StatusMeetingScheduled,
}

// Valid reports whether s is one of the five known statuses
func (s EmailStatus) Valid() bool {
	for _, known := range EmailStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Connection represents a professional contact being worked through outreach
type Connection struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	// Display attributes
	Name        string `gorm:"not null" json:"name"`
	Email       string `gorm:"not null;index" json:"email"`
	Company     string `json:"company"`
	Position    string `json:"position"`
	LinkedInURL string `json:"linkedin_url"`
	Notes       string `gorm:"type:text" json:"notes"`

	// Outreach state
	EmailStatus        EmailStatus `gorm:"default:'Not Contacted'" json:"email_status"`
	StatusStartedDate  *time.Time  `json:"status_started_date"`
	ComposerOpenedDate *time.Time  `json:"composer_opened_date"`
	LastEmailDraft     *string     `gorm:"type:text" json:"last_email_draft"`
	LastEmailSentDate  *time.Time  `json:"last_email_sent_date"`

	// Weak reference into the timeline; lookup only
	CurrentStageID *uint `gorm:"index" json:"current_stage_id"`

	// Relations
	Timeline *Timeline `gorm:"foreignKey:ConnectionID" json:"timeline,omitempty"`
}
