package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/anjiri1684/medichat/models"
	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var ErrInvalidPrincipal = errors.New("invalid principal")

func Protected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   []byte(secret),
		ErrorHandler: jwtError,
	})
}

func jwtError(c *fiber.Ctx, err error) error {
	if strings.EqualFold(err.Error(), "Missing or malformed JWT") {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"status": "error", "message": "Missing or malformed JWT", "data": nil})
	}
	return c.Status(fiber.StatusUnauthorized).
		JSON(fiber.Map{"status": "error", "message": "Invalid or expired JWT", "data": nil})
}

// Principal returns the authenticated caller that Protected stored on c.
func Principal(c *fiber.Ctx) (models.Participant, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return models.Participant{}, ErrInvalidPrincipal
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Participant{}, ErrInvalidPrincipal
	}
	return fromClaims(claims)
}

// DoctorRequired rejects callers whose token is not a doctor's.
func DoctorRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := Principal(c)
		if err != nil || p.Kind != models.DoctorKind {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Forbidden: Doctor access required",
			})
		}
		return c.Next()
	}
}

// ParseToken validates a raw HS256 token, as sent in a websocket join frame.
func ParseToken(secret, tokenString string) (models.Participant, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return models.Participant{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return models.Participant{}, errors.New("invalid token")
	}
	return fromClaims(claims)
}

func fromClaims(claims jwt.MapClaims) (models.Participant, error) {
	raw, _ := claims["user_id"].(string)
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return models.Participant{}, fmt.Errorf("%w: user_id %q", ErrInvalidPrincipal, raw)
	}
	role, _ := claims["role"].(string)
	kind := models.ParticipantKind(role)
	if !kind.Valid() {
		return models.Participant{}, fmt.Errorf("%w: role %q", ErrInvalidPrincipal, role)
	}
	return models.Participant{Kind: kind, ID: id}, nil
}
