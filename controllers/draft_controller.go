package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"outreach/models"
	"outreach/utils"
)

type DraftController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewDraftController(db *gorm.DB, logger *logrus.Entry) *DraftController {
	return &DraftController{
		DB:     db,
		Logger: logger,
	}
}

type SaveDraftRequest struct {
	Content string `json:"content"`
}

// GetDraft returns the stored draft. Missing drafts come back with empty
// content.
func (dc *DraftController) GetDraft(c *fiber.Ctx) error {
	user := currentUser(c)

	conn, err := findConnection(dc.DB, user.ID, c.Params("id"))
	if err != nil {
		return connectionError(c, err)
	}

	content := ""
	var draft models.Draft
	err = dc.DB.Where("connection_id = ?", conn.ID).First(&draft).Error
	switch {
	case err == nil:
		content = draft.Content
	case errors.Is(err, gorm.ErrRecordNotFound):
		if conn.LastEmailDraft != nil {
			content = *conn.LastEmailDraft
		}
	default:
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load draft", err)
	}

	return c.JSON(fiber.Map{
		"draft": fiber.Map{"content": content},
	})
}

// SaveDraft upserts the draft and mirrors it onto the connection
func (dc *DraftController) SaveDraft(c *fiber.Ctx) error {
	user := currentUser(c)

	var input SaveDraftRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	conn, err := findConnection(dc.DB, user.ID, c.Params("id"))
	if err != nil {
		return connectionError(c, err)
	}

	err = dc.DB.Transaction(func(tx *gorm.DB) error {
		draft := models.Draft{ConnectionID: conn.ID, Content: input.Content}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "connection_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
		}).Create(&draft).Error; err != nil {
			return err
		}
		return tx.Model(conn).Update("last_email_draft", input.Content).Error
	})
	if err != nil {
		utils.LogError("draft_save_failed", err, map[string]interface{}{"connection_id": conn.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save draft", err)
	}

	dc.Logger.WithField("connection_id", conn.ID).Debug("Draft saved")

	return c.JSON(fiber.Map{
		"message": "Draft saved",
	})
}
