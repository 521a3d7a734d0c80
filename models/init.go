package models

import "gorm.io/gorm"

// DefaultStageTemplate is the sequence every new timeline starts with
var DefaultStageTemplate = []StageType{
	StageFirstImpression,
	StageFollowUp,
	StageResponse,
	StageMeetingScheduled,
}

// InitializeTimeline creates the timeline and its default stages for a
// connection and points current_stage_id at the first stage.
func InitializeTimeline(db *gorm.DB, conn *Connection) (*Timeline, error) {
	timeline := Timeline{ConnectionID: conn.ID}
	for i, st := range DefaultStageTemplate {
		timeline.Stages = append(timeline.Stages, Stage{
			StageType:   st,
			StageStatus: StageWaiting,
			StageOrder:  i + 1,
		})
	}

	if err := db.Create(&timeline).Error; err != nil {
		return nil, err
	}

	first := timeline.Stages[0].ID
	if err := db.Model(conn).Update("current_stage_id", first).Error; err != nil {
		return nil, err
	}
	conn.CurrentStageID = &first

	return &timeline, nil
}
