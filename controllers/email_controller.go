package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"outreach/models"
	"outreach/utils"
)

type EmailController struct {
	DB     *gorm.DB
	Mailer utils.MailServiceInterface
	Logger *logrus.Entry
}

func NewEmailController(db *gorm.DB, mailer utils.MailServiceInterface, logger *logrus.Entry) *EmailController {
	return &EmailController{
		DB:     db,
		Mailer: mailer,
		Logger: logger,
	}
}

type SendEmailRequest struct {
	Stage   string `json:"stage" validate:"required"`
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body" validate:"required"`
}

// SendEmail delivers an email to the connection, records the send and
// clears the stored draft.
func (ec *EmailController) SendEmail(c *fiber.Ctx) error {
	user := currentUser(c)

	var input SendEmailRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	conn, err := findConnection(ec.DB, user.ID, c.Params("id"))
	if err != nil {
		return connectionError(c, err)
	}

	log := ec.Logger.WithFields(logrus.Fields{
		"connection_id": conn.ID,
		"stage":         input.Stage,
	})

	messageID, err := ec.Mailer.Send(utils.Email{
		To:      conn.Email,
		Subject: input.Subject,
		Body:    input.Body,
	})
	if err != nil {
		utils.LogError("email_send_failed", err, map[string]interface{}{
			"connection_id": conn.ID,
			"stage":         input.Stage,
		})
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Failed to send email", err)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"last_email_sent_date": now,
		"last_email_draft":     nil,
	}
	// A first send moves an untouched connection into First Impression
	if conn.EmailStatus == "" || conn.EmailStatus == models.StatusNotContacted {
		updates["email_status"] = models.StatusFirstImpression
		updates["status_started_date"] = now
	}

	err = ec.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(conn).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("connection_id = ?", conn.ID).Delete(&models.Draft{}).Error
	})
	if err != nil {
		// The email is already out; report success and log the bookkeeping failure
		utils.LogError("email_record_failed", err, map[string]interface{}{"connection_id": conn.ID})
	}

	log.WithField("message_id", messageID).Info("Email sent")
	utils.LogEvent("email_sent", map[string]interface{}{
		"connection_id": conn.ID,
		"stage":         input.Stage,
		"message_id":    messageID,
	})

	return c.JSON(fiber.Map{
		"message":    "Email sent",
		"message_id": messageID,
	})
}
