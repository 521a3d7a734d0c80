package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"outreach/models"
	"outreach/utils"
)

type TimelineController struct {
	DB     *gorm.DB
	Hub    *TimelineHub
	Logger *logrus.Entry
}

func NewTimelineController(db *gorm.DB, hub *TimelineHub, logger *logrus.Entry) *TimelineController {
	return &TimelineController{
		DB:     db,
		Hub:    hub,
		Logger: logger,
	}
}

type AdvanceTimelineRequest struct {
	Trigger string `json:"trigger" validate:"required"`
	StageID uint   `json:"stage_id" validate:"required,gt=0"`
}

// GetTimeline returns the connection's timeline with stages in order
func (tc *TimelineController) GetTimeline(c *fiber.Ctx) error {
	user := currentUser(c)

	conn, err := findConnection(tc.DB, user.ID, c.Params("id"))
	if err != nil {
		return connectionError(c, err)
	}

	tl, err := loadTimeline(tc.DB, conn.ID)
	if err != nil {
		return connectionError(c, err)
	}

	return c.JSON(fiber.Map{
		"timeline": tl,
	})
}

// UpdateStage applies a status change to a single stage. Transitions that
// would move a stage backwards are rejected with 409.
func (tc *TimelineController) UpdateStage(c *fiber.Ctx) error {
	user := currentUser(c)

	var input models.StageUpdate
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	conn, err := findConnection(tc.DB, user.ID, c.Params("id"))
	if err != nil {
		return connectionError(c, err)
	}

	tl, err := loadTimeline(tc.DB, conn.ID)
	if err != nil {
		return connectionError(c, err)
	}

	stage := tl.StageByID(utils.ParseUint(c.Params("stageId")))
	if stage == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Stage not found"})
	}

	if !stage.CanTransitionTo(input.StageStatus) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Invalid stage transition",
			"from":  stage.StageStatus,
			"to":    input.StageStatus,
		})
	}

	applyStageUpdate(stage, input, time.Now())
	if err := tc.DB.Save(stage).Error; err != nil {
		utils.LogError("stage_update_failed", err, map[string]interface{}{
			"connection_id": conn.ID,
			"stage_id":      stage.ID,
		})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update stage", err)
	}

	tc.Logger.WithFields(logrus.Fields{
		"connection_id": conn.ID,
		"stage_id":      stage.ID,
		"stage_status":  stage.StageStatus,
	}).Info("Stage updated")

	return tc.respondWithTimeline(c, conn.ID)
}

func applyStageUpdate(stage *models.Stage, input models.StageUpdate, now time.Time) {
	stage.StageStatus = input.StageStatus
	if input.DraftContent != nil {
		stage.DraftContent = input.DraftContent
	}
	if input.EmailContent != nil {
		stage.EmailContent = input.EmailContent
	}

	switch input.StageStatus {
	case models.StageSent:
		if input.SentAt != nil {
			stage.SentAt = input.SentAt
		} else if stage.SentAt == nil {
			stage.SentAt = &now
		}
	case models.StageReceived:
		stage.ReceivedAt = &now
	}
}

// AdvanceTimeline moves the connection's current stage past stageID. The
// last stage stays current.
func (tc *TimelineController) AdvanceTimeline(c *fiber.Ctx) error {
	user := currentUser(c)

	var input AdvanceTimelineRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if input.Trigger != models.TriggerSendEmail {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unsupported trigger", nil)
	}

	conn, err := findConnection(tc.DB, user.ID, c.Params("id"))
	if err != nil {
		return connectionError(c, err)
	}

	tl, err := loadTimeline(tc.DB, conn.ID)
	if err != nil {
		return connectionError(c, err)
	}

	if tl.StageByID(input.StageID) == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Stage not found"})
	}

	if next := tl.NextStage(input.StageID); next != nil {
		if err := tc.DB.Model(conn).Update("current_stage_id", next.ID).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to advance timeline", err)
		}
		tc.Logger.WithFields(logrus.Fields{
			"connection_id": conn.ID,
			"from_stage_id": input.StageID,
			"to_stage_id":   next.ID,
		}).Info("Timeline advanced")
	}

	return tc.respondWithTimeline(c, conn.ID)
}

func (tc *TimelineController) respondWithTimeline(c *fiber.Ctx, connectionID uint) error {
	tl, err := loadTimeline(tc.DB, connectionID)
	if err != nil {
		return connectionError(c, err)
	}
	if tc.Hub != nil {
		tc.Hub.Publish(connectionID, tl)
	}
	return c.JSON(fiber.Map{
		"timeline": tl,
	})
}
