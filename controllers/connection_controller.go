package controller

import (
	"errors"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"outreach/models"
	"outreach/progress"
	"outreach/utils"
)

type ConnectionController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewConnectionController(db *gorm.DB, logger *logrus.Entry) *ConnectionController {
	return &ConnectionController{
		DB:     db,
		Logger: logger,
	}
}

type CreateConnectionRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Email       string `json:"email" validate:"required,email"`
	Company     string `json:"company" validate:"omitempty,max=200"`
	Position    string `json:"position" validate:"omitempty,max=200"`
	LinkedInURL string `json:"linkedin_url" validate:"omitempty,url"`
	Notes       string `json:"notes"`
}

type UpdateStatusRequest struct {
	EmailStatus models.EmailStatus `json:"email_status" validate:"required"`
}

// CreateConnection adds a connection and initializes its timeline
func (cc *ConnectionController) CreateConnection(c *fiber.Ctx) error {
	user := currentUser(c)

	var input CreateConnectionRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := checkmail.ValidateFormat(email); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid email address", err)
	}

	conn := models.Connection{
		UserID:      user.ID,
		Name:        input.Name,
		Email:       email,
		Company:     input.Company,
		Position:    input.Position,
		LinkedInURL: input.LinkedInURL,
		Notes:       input.Notes,
		EmailStatus: models.StatusNotContacted,
	}

	err := cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conn).Error; err != nil {
			return err
		}
		tl, err := models.InitializeTimeline(tx, &conn)
		if err != nil {
			return err
		}
		conn.Timeline = tl
		return nil
	})
	if err != nil {
		utils.LogError("connection_create_failed", err, map[string]interface{}{"user_id": user.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create connection", err)
	}

	cc.Logger.WithFields(logrus.Fields{
		"user_id":       user.ID,
		"connection_id": conn.ID,
	}).Info("Connection created")

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"connection": conn,
	})
}

// GetConnections lists the user's connections with their progress
func (cc *ConnectionController) GetConnections(c *fiber.Ctx) error {
	user := currentUser(c)

	query := cc.DB.Where("user_id = ?", user.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("email_status = ?", status)
	}

	var conns []models.Connection
	if err := query.Order("updated_at DESC").Find(&conns).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch connections", err)
	}

	type item struct {
		models.Connection
		Progress progress.Result `json:"progress"`
	}
	items := make([]item, 0, len(conns))
	for _, conn := range conns {
		items = append(items, item{Connection: conn, Progress: progress.Calculate(conn)})
	}

	return c.JSON(fiber.Map{
		"connections": items,
		"total":       len(items),
	})
}

// GetConnection returns one connection, its timeline and the derived view
func (cc *ConnectionController) GetConnection(c *fiber.Ctx) error {
	user := currentUser(c)

	conn, err := findConnection(cc.DB, user.ID, c.Params("id"))
	if err != nil {
		return connectionError(c, err)
	}

	tl, err := loadTimeline(cc.DB, conn.ID)
	if err != nil && !errors.Is(err, errTimelineNotFound) {
		return connectionError(c, err)
	}
	conn.Timeline = tl

	return c.JSON(fiber.Map{
		"connection": conn,
		"view":       progress.BuildView(*conn, tl),
	})
}

// UpdateStatus overrides the connection's email status and restarts the
// status clock that progress is measured against.
func (cc *ConnectionController) UpdateStatus(c *fiber.Ctx) error {
	user := currentUser(c)

	var input UpdateStatusRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if !input.EmailStatus.Valid() {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown email status", nil)
	}

	conn, err := findConnection(cc.DB, user.ID, c.Params("id"))
	if err != nil {
		return connectionError(c, err)
	}

	now := time.Now()
	if err := cc.DB.Model(conn).Updates(map[string]interface{}{
		"email_status":        input.EmailStatus,
		"status_started_date": now,
	}).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update status", err)
	}
	conn.EmailStatus = input.EmailStatus
	conn.StatusStartedDate = &now

	utils.LogEvent("connection_status_changed", map[string]interface{}{
		"connection_id": conn.ID,
		"email_status":  string(input.EmailStatus),
	})

	return c.JSON(fiber.Map{
		"connection": conn,
		"progress":   progress.Calculate(*conn),
	})
}

// MarkComposerOpened records that the user started writing to the connection
func (cc *ConnectionController) MarkComposerOpened(c *fiber.Ctx) error {
	user := currentUser(c)

	conn, err := findConnection(cc.DB, user.ID, c.Params("id"))
	if err != nil {
		return connectionError(c, err)
	}

	now := time.Now()
	if err := cc.DB.Model(conn).Update("composer_opened_date", now).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update connection", err)
	}
	conn.ComposerOpenedDate = &now

	return c.JSON(fiber.Map{
		"connection": conn,
	})
}

// DeleteConnection soft-deletes a connection
func (cc *ConnectionController) DeleteConnection(c *fiber.Ctx) error {
	user := currentUser(c)

	conn, err := findConnection(cc.DB, user.ID, c.Params("id"))
	if err != nil {
		return connectionError(c, err)
	}

	if err := cc.DB.Delete(conn).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete connection", err)
	}

	return c.JSON(fiber.Map{
		"message": "Connection deleted",
	})
}
