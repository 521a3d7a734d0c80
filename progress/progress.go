package progress

import (
	"strings"
	"time"

	"outreach/models"
)

// Progress steps reported by Calculate
const (
	PercentNone     = 0
	PercentOpened   = 33
	PercentDrafted  = 66
	PercentComplete = 100
)

// Result is the derived progress for a connection's current status
type Result struct {
	Percent  int    `json:"percent"`
	Color    string `json:"color"`
	Complete bool   `json:"complete"`
}

// Calculate derives how far outreach has progressed within the
// connection's current email status. Dates are compared against
// status_started_date so activity from a previous status does not count.
func Calculate(conn models.Connection) Result {
	res := Result{Percent: PercentNone, Color: StatusColor(conn.EmailStatus)}

	if conn.EmailStatus == "" || conn.EmailStatus == models.StatusNotContacted {
		return res
	}

	switch {
	case notBefore(conn.LastEmailSentDate, conn.StatusStartedDate):
		res.Percent = PercentComplete
		res.Complete = true
	case conn.LastEmailDraft != nil && strings.TrimSpace(*conn.LastEmailDraft) != "":
		res.Percent = PercentDrafted
	case notBefore(conn.ComposerOpenedDate, conn.StatusStartedDate):
		res.Percent = PercentOpened
	}

	return res
}

// notBefore reports whether t is present and at or after start. An absent
// start admits any present t.
func notBefore(t, start *time.Time) bool {
	if t == nil {
		return false
	}
	if start == nil {
		return true
	}
	return !t.Before(*start)
}

// View is the display model for a single connection
type View struct {
	Progress Result         `json:"progress"`
	Stages   []VisibleStage `json:"stages"`
}

// BuildView derives the full display model from a connection and its
// timeline. A nil timeline yields an empty stage window.
func BuildView(conn models.Connection, tl *models.Timeline) View {
	var stages []models.Stage
	if tl != nil {
		stages = tl.Stages
	}
	return View{
		Progress: Calculate(conn),
		Stages:   DecorateVisible(stages),
	}
}
