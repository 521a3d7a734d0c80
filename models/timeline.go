package models

import (
	"sort"
	"time"

	"gorm.io/gorm"
)

// StageType identifies which outreach step a stage represents
type StageType string

const (
	StageFirstImpression  StageType = "first_impression"
	StageFollowUp         StageType = "follow_up"
	StageResponse         StageType = "response"
	StageMeetingScheduled StageType = "meeting_scheduled"
)

// StageStatus is the single state a stage is in
type StageStatus string

const (
	StageWaiting  StageStatus = "waiting"
	StageDraft    StageStatus = "draft"
	StageSent     StageStatus = "sent"
	StageReceived StageStatus = "received"
)

// TriggerSendEmail is the only trigger accepted when advancing a timeline
const TriggerSendEmail = "send_email"

// Timeline is the ordered set of stages owned by one connection
type Timeline struct {
	gorm.Model
	ConnectionID uint `gorm:"not null;uniqueIndex" json:"connection_id"`

	Stages []Stage `gorm:"foreignKey:TimelineID" json:"stages"`
}

// Stage is one discrete step in a connection's outreach timeline
type Stage struct {
	gorm.Model
	TimelineID uint `gorm:"not null;uniqueIndex:idx_timeline_stage_order" json:"timeline_id"`

	StageType   StageType   `gorm:"not null" json:"stage_type"`
	StageStatus StageStatus `gorm:"not null;default:'waiting'" json:"stage_status"`
	StageOrder  int         `gorm:"not null;uniqueIndex:idx_timeline_stage_order" json:"stage_order"`

	DraftContent *string    `gorm:"type:text" json:"draft_content,omitempty"`
	EmailContent *string    `gorm:"type:text" json:"email_content,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ReceivedAt   *time.Time `json:"received_at,omitempty"`
}

// StageUpdate is the partial update applied to a single stage
type StageUpdate struct {
	StageStatus  StageStatus `json:"stage_status" validate:"required,oneof=waiting draft sent received"`
	DraftContent *string     `json:"draft_content,omitempty"`
	EmailContent *string     `json:"email_content,omitempty"`
	SentAt       *time.Time  `json:"sent_at,omitempty"`
}

func (s StageStatus) rank() int {
	switch s {
	case StageWaiting:
		return 0
	case StageDraft:
		return 1
	case StageSent:
		return 2
	case StageReceived:
		return 3
	}
	return -1
}

// CanTransitionTo reports whether moving the stage to next keeps the
// lifecycle monotonic. A draft may be re-saved; received is reserved for
// response stages.
func (s Stage) CanTransitionTo(next StageStatus) bool {
	if next.rank() < 0 || s.StageStatus.rank() < 0 {
		return false
	}
	if next == StageReceived {
		return s.StageType == StageResponse && s.StageStatus != StageReceived
	}
	if next == StageDraft && s.StageStatus == StageDraft {
		return true
	}
	return next.rank() > s.StageStatus.rank()
}

// SortStages orders stages by stage_order ascending in place
func (t *Timeline) SortStages() {
	sort.SliceStable(t.Stages, func(i, j int) bool {
		return t.Stages[i].StageOrder < t.Stages[j].StageOrder
	})
}

// StageByID returns the stage with the given id, or nil
func (t *Timeline) StageByID(id uint) *Stage {
	for i := range t.Stages {
		if t.Stages[i].ID == id {
			return &t.Stages[i]
		}
	}
	return nil
}

// NextStage returns the stage that follows id by stage_order, or nil when
// id is the last stage or unknown.
func (t *Timeline) NextStage(id uint) *Stage {
	current := t.StageByID(id)
	if current == nil {
		return nil
	}
	var next *Stage
	for i := range t.Stages {
		s := &t.Stages[i]
		if s.StageOrder <= current.StageOrder {
			continue
		}
		if next == nil || s.StageOrder < next.StageOrder {
			next = s
		}
	}
	return next
}

// FirstStageOfType returns the lowest-ordered stage of the given type, or nil
func (t *Timeline) FirstStageOfType(st StageType) *Stage {
	var found *Stage
	for i := range t.Stages {
		s := &t.Stages[i]
		if s.StageType != st {
			continue
		}
		if found == nil || s.StageOrder < found.StageOrder {
			found = s
		}
	}
	return found
}

// Clone returns a deep copy so callers never share stage slices or pointers
func (t *Timeline) Clone() *Timeline {
	if t == nil {
		return nil
	}
	out := *t
	out.Stages = make([]Stage, len(t.Stages))
	for i, s := range t.Stages {
		out.Stages[i] = s
		out.Stages[i].DraftContent = clonePtr(s.DraftContent)
		out.Stages[i].EmailContent = clonePtr(s.EmailContent)
		out.Stages[i].SentAt = clonePtr(s.SentAt)
		out.Stages[i].ReceivedAt = clonePtr(s.ReceivedAt)
	}
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
