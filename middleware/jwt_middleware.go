package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	"outreach/models"
	"outreach/utils"
)

var (
	errMissingToken = errors.New("authorization required")
	errTokenFormat  = errors.New("invalid authorization format")
)

// bearerToken reads the access token from the Authorization header, the
// access_token cookie or, for websocket upgrades only, the token query
// parameter.
func bearerToken(c *fiber.Ctx) (string, error) {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || scheme != "Bearer" || token == "" {
			return "", errTokenFormat
		}
		return token, nil
	}
	if token := c.Cookies("access_token"); token != "" {
		return token, nil
	}
	if websocket.IsWebSocketUpgrade(c) {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
	}
	return "", errMissingToken
}

// Protected authenticates the request and stores the owning user in
// Locals("user") and Locals("userID").
func Protected(db *gorm.DB) fiber.Handler {
	log := utils.NewLogger("auth")

	return func(c *fiber.Ctx) error {
		token, err := bearerToken(c)
		if err != nil {
			msg := "Authorization required"
			if errors.Is(err, errTokenFormat) {
				msg = "Invalid authorization format"
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": msg})
		}

		claims, err := utils.ParseJWTToken(token)
		if err != nil {
			log.WithError(err).WithField("path", c.Path()).Debug("Rejected token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		var user models.User
		if err := db.First(&user, claims.UserID).Error; err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "User not found",
			})
		}

		switch {
		case !user.IsActive:
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Account is not active",
			})
		case claims.TokenVersion != user.TokenVersion:
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token version",
			})
		}

		c.Locals("user", &user)
		c.Locals("userID", user.ID)
		return c.Next()
	}
}
