package http

import (
	"github.com/NeuralTrust/TrustShield/pkg/app/admission"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type resetIdentityHandler struct {
	logger  *logrus.Logger
	service admission.Service
}

// NewResetIdentityHandler clears the rate limit quota and all detection
// state for one identity, typically after a manual review.
func NewResetIdentityHandler(logger *logrus.Logger, service admission.Service) Handler {
	return &resetIdentityHandler{
		logger:  logger,
		service: service,
	}
}

func (h *resetIdentityHandler) Handle(c *fiber.Ctx) error {
	identity := c.Params("identity")
	if identity == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "identity is required"})
	}

	if err := h.service.ResetIdentity(c.Context(), identity); err != nil {
		h.logger.WithError(err).Error("failed to reset identity")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "counter store unavailable"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
