package http

import (
	"github.com/NeuralTrust/TrustShield/pkg/app/admission"
	"github.com/NeuralTrust/TrustShield/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type admitRequestHandler struct {
	logger  *logrus.Logger
	service admission.Service
}

// NewAdmitRequestHandler runs the full admission pipeline for one request:
// attack detection, rate limiting and rule evaluation.
func NewAdmitRequestHandler(logger *logrus.Logger, service admission.Service) Handler {
	return &admitRequestHandler{
		logger:  logger,
		service: service,
	}
}

func (h *admitRequestHandler) Handle(c *fiber.Ctx) error {
	var req types.AdmitRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInvalidJsonPayload})
	}
	if req.Identity == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "identity is required"})
	}
	if req.SizeBytes < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "size_bytes must not be negative"})
	}

	decision, err := h.service.AdmitRequest(c.Context(), req.Identity, req.SizeBytes, req.UserAgent)
	if err != nil {
		h.logger.WithError(err).Error("request admission check failed")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "admission check unavailable"})
	}

	status := fiber.StatusOK
	if !decision.Allow {
		status = fiber.StatusTooManyRequests
	}
	return c.Status(status).JSON(types.AdmitRequestResponse{
		Allow:             decision.Allow,
		Reason:            string(decision.Reason),
		Remaining:         decision.Remaining,
		RetryAfterSeconds: int64(decision.RetryAfter.Seconds()),
		Actions:           decision.Actions,
	})
}
