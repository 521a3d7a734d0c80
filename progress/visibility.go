package progress

import (
	"sort"

	"outreach/models"
)

// MaxVisibleStages is the size of the stage window
const MaxVisibleStages = 3

// SelectVisible windows stages down to at most MaxVisibleStages entries
// sorted by stage_order. The window is centered on the last stage that has
// left the waiting state, clamped to the ends of the sequence. The input
// slice is not modified.
func SelectVisible(stages []models.Stage) []models.Stage {
	if len(stages) == 0 {
		return []models.Stage{}
	}

	sorted := make([]models.Stage, len(stages))
	copy(sorted, stages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StageOrder < sorted[j].StageOrder
	})

	if len(sorted) <= MaxVisibleStages {
		return sorted
	}

	last := len(sorted) - 1
	active := 0
	for i := last; i >= 0; i-- {
		if sorted[i].StageStatus != models.StageWaiting {
			active = i
			break
		}
	}

	switch active {
	case 0:
		return sorted[:MaxVisibleStages]
	case last:
		return sorted[len(sorted)-MaxVisibleStages:]
	default:
		return sorted[active-1 : active+2]
	}
}

// VisibleStage is a stage decorated with its display attributes
type VisibleStage struct {
	models.Stage
	TypeLabel string `json:"type_label"`
	Badge     Badge  `json:"badge"`
}

// DecorateVisible selects the visible window and attaches labels and colors
func DecorateVisible(stages []models.Stage) []VisibleStage {
	window := SelectVisible(stages)
	out := make([]VisibleStage, 0, len(window))
	for _, s := range window {
		out = append(out, VisibleStage{
			Stage:     s,
			TypeLabel: StageTypeLabel(s.StageType),
			Badge:     StageBadge(s.StageStatus),
		})
	}
	return out
}
