package models

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		name  string
		stage Stage
		next  StageStatus
		want  bool
	}{
		{"waiting to draft", Stage{StageType: StageFirstImpression, StageStatus: StageWaiting}, StageDraft, true},
		{"waiting to sent", Stage{StageType: StageFirstImpression, StageStatus: StageWaiting}, StageSent, true},
		{"draft resaved", Stage{StageType: StageFollowUp, StageStatus: StageDraft}, StageDraft, true},
		{"draft to sent", Stage{StageType: StageFollowUp, StageStatus: StageDraft}, StageSent, true},
		{"sent back to draft", Stage{StageType: StageFollowUp, StageStatus: StageSent}, StageDraft, false},
		{"sent to waiting", Stage{StageType: StageFollowUp, StageStatus: StageSent}, StageWaiting, false},
		{"sent twice", Stage{StageType: StageFollowUp, StageStatus: StageSent}, StageSent, false},
		{"response received", Stage{StageType: StageResponse, StageStatus: StageWaiting}, StageReceived, true},
		{"response received twice", Stage{StageType: StageResponse, StageStatus: StageReceived}, StageReceived, false},
		{"non-response received", Stage{StageType: StageFirstImpression, StageStatus: StageSent}, StageReceived, false},
		{"unknown target", Stage{StageType: StageFollowUp, StageStatus: StageWaiting}, StageStatus("archived"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stage.CanTransitionTo(tt.next))
		})
	}
}

func testTimeline() *Timeline {
	tl := &Timeline{Stages: []Stage{
		{StageType: StageResponse, StageOrder: 3},
		{StageType: StageFirstImpression, StageOrder: 1},
		{StageType: StageFollowUp, StageOrder: 2},
	}}
	for i := range tl.Stages {
		tl.Stages[i].ID = uint(10 + tl.Stages[i].StageOrder)
	}
	return tl
}

func TestTimelineNavigation(t *testing.T) {
	tl := testTimeline()

	next := tl.NextStage(11)
	require.NotNil(t, next)
	assert.Equal(t, uint(12), next.ID)

	assert.Nil(t, tl.NextStage(13), "last stage has no successor")
	assert.Nil(t, tl.NextStage(99))

	require.NotNil(t, tl.FirstStageOfType(StageResponse))
	assert.Equal(t, 3, tl.FirstStageOfType(StageResponse).StageOrder)
	assert.Nil(t, tl.FirstStageOfType(StageMeetingScheduled))

	tl.SortStages()
	assert.Equal(t, []int{1, 2, 3}, []int{tl.Stages[0].StageOrder, tl.Stages[1].StageOrder, tl.Stages[2].StageOrder})
}

func TestTimelineClone(t *testing.T) {
	content := "hello"
	sent := time.Now()
	tl := &Timeline{ConnectionID: 4, Stages: []Stage{{DraftContent: &content, SentAt: &sent}}}

	cp := tl.Clone()
	*cp.Stages[0].DraftContent = "changed"
	cp.Stages[0].StageOrder = 9

	assert.Equal(t, "hello", *tl.Stages[0].DraftContent)
	assert.Zero(t, tl.Stages[0].StageOrder)
	assert.Equal(t, uint(4), cp.ConnectionID)

	var nilTL *Timeline
	assert.Nil(t, nilTL.Clone())
}

func TestInitializeTimeline(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}, &Connection{}, &Timeline{}, &Stage{}, &Draft{}))

	conn := Connection{UserID: 1, Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, db.Create(&conn).Error)

	tl, err := InitializeTimeline(db, &conn)
	require.NoError(t, err)
	require.Len(t, tl.Stages, len(DefaultStageTemplate))
	require.NotNil(t, conn.CurrentStageID)
	assert.Equal(t, tl.Stages[0].ID, *conn.CurrentStageID)

	var stored Connection
	require.NoError(t, db.First(&stored, conn.ID).Error)
	assert.Equal(t, StatusNotContacted, stored.EmailStatus)
	require.NotNil(t, stored.CurrentStageID)
	assert.Equal(t, tl.Stages[0].ID, *stored.CurrentStageID)

	// A connection owns at most one timeline
	_, err = InitializeTimeline(db, &conn)
	assert.Error(t, err)
}

func TestEmailStatusValid(t *testing.T) {
	for _, s := range EmailStatuses {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, EmailStatus("Ghosted").Valid())
	assert.False(t, EmailStatus("").Valid())
}
