package progress

import (
	"strings"

	"outreach/models"
)

const defaultStatusColor = "#9CA3AF"

var statusColors = map[models.EmailStatus]string{
	models.StatusNotContacted:     "#9CA3AF",
	models.StatusFirstImpression:  "#3B82F6",
	models.StatusFollowUp:         "#F59E0B",
	models.StatusResponse:         "#10B981",
	models.StatusMeetingScheduled: "#8B5CF6",
}

// StatusColor returns the display color for a connection's email status
func StatusColor(status models.EmailStatus) string {
	if c, ok := statusColors[status]; ok {
		return c
	}
	return defaultStatusColor
}

// Badge is the label and color a stage status renders with
type Badge struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

var stageBadges = map[models.StageStatus]Badge{
	models.StageWaiting:  {Label: "Waiting", Color: "#D1D5DB"},
	models.StageDraft:    {Label: "Draft", Color: "#F59E0B"},
	models.StageSent:     {Label: "Sent", Color: "#3B82F6"},
	models.StageReceived: {Label: "Received", Color: "#10B981"},
}

var unknownBadge = Badge{Label: "Unknown", Color: "#D1D5DB"}

// StageBadge returns the label and color for a stage status
func StageBadge(status models.StageStatus) Badge {
	if b, ok := stageBadges[status]; ok {
		return b
	}
	return unknownBadge
}

var stageTypeLabels = map[models.StageType]string{
	models.StageFirstImpression:  "First Impression",
	models.StageFollowUp:         "Follow-up",
	models.StageResponse:         "Response",
	models.StageMeetingScheduled: "Meeting Scheduled",
}

// StageTypeLabel returns the human label for a stage type. Unknown types
// are title-cased from their snake_case name.
func StageTypeLabel(t models.StageType) string {
	if l, ok := stageTypeLabels[t]; ok {
		return l
	}
	words := strings.FieldsFunc(string(t), func(r rune) bool { return r == '_' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
