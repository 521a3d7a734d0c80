package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"outreach/models"
	"outreach/utils"
)

var (
	errConnectionNotFound = errors.New("connection not found")
	errTimelineNotFound   = errors.New("timeline not found")
)

func currentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals("user").(*models.User)
	return user
}

// findConnection loads a connection owned by the user
func findConnection(db *gorm.DB, userID uint, idParam string) (*models.Connection, error) {
	id := utils.ParseUint(idParam)
	if id == 0 {
		return nil, errConnectionNotFound
	}

	var conn models.Connection
	err := db.Where("id = ? AND user_id = ?", id, userID).First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errConnectionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// loadTimeline loads a connection's timeline with stages in stage_order
func loadTimeline(db *gorm.DB, connectionID uint) (*models.Timeline, error) {
	var tl models.Timeline
	err := db.Preload("Stages", func(db *gorm.DB) *gorm.DB {
		return db.Order("stage_order ASC")
	}).Where("connection_id = ?", connectionID).First(&tl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errTimelineNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tl, nil
}

// connectionError maps lookup failures onto HTTP responses
func connectionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, errConnectionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Connection not found"})
	case errors.Is(err, errTimelineNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Timeline not found"})
	}
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load connection", err)
}
