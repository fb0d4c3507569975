package http

import (
	"github.com/NeuralTrust/TrustShield/pkg/app/admission"
	"github.com/NeuralTrust/TrustShield/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type admitConnectionHandler struct {
	logger  *logrus.Logger
	service admission.Service
}

// NewAdmitConnectionHandler decides whether a new connection from an identity
// may be accepted. A deny carries the reason and, for rate limited
// identities, the seconds until the window resets.
func NewAdmitConnectionHandler(logger *logrus.Logger, service admission.Service) Handler {
	return &admitConnectionHandler{
		logger:  logger,
		service: service,
	}
}

func (h *admitConnectionHandler) Handle(c *fiber.Ctx) error {
	var req types.AdmitConnectionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInvalidJsonPayload})
	}
	if req.Identity == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "identity is required"})
	}

	decision, err := h.service.AdmitConnection(c.Context(), req.Identity)
	if err != nil {
		h.logger.WithError(err).Error("connection admission check failed")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "admission check unavailable"})
	}

	status := fiber.StatusOK
	if !decision.Allow {
		status = fiber.StatusTooManyRequests
	}
	return c.Status(status).JSON(types.AdmitConnectionResponse{
		Allow:             decision.Allow,
		Reason:            string(decision.Reason),
		RetryAfterSeconds: int64(decision.RetryAfter.Seconds()),
	})
}
