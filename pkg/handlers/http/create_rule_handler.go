package http

import (
	"errors"

	"github.com/NeuralTrust/TrustShield/pkg/app/ruleengine"
	"github.com/NeuralTrust/TrustShield/pkg/domain/rule"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type createRuleHandler struct {
	logger *logrus.Logger
	engine ruleengine.Engine
}

func NewCreateRuleHandler(logger *logrus.Logger, engine ruleengine.Engine) Handler {
	return &createRuleHandler{
		logger: logger,
		engine: engine,
	}
}

func (h *createRuleHandler) Handle(c *fiber.Ctx) error {
	var req rule.Rule
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInvalidJsonPayload})
	}

	created, err := h.engine.AddRule(c.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, rule.ErrParsing):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ruleengine.ErrDuplicateRule):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		default:
			h.logger.WithError(err).Error("failed to create rule")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "rule store unavailable"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}
