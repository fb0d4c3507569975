package http

import (
	"errors"

	"github.com/NeuralTrust/TrustShield/pkg/app/ruleengine"
	"github.com/NeuralTrust/TrustShield/pkg/domain/rule"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type updateRuleHandler struct {
	logger *logrus.Logger
	engine ruleengine.Engine
}

func NewUpdateRuleHandler(logger *logrus.Logger, engine ruleengine.Engine) Handler {
	return &updateRuleHandler{
		logger: logger,
		engine: engine,
	}
}

func (h *updateRuleHandler) Handle(c *fiber.Ctx) error {
	id := c.Params("rule_id")

	var req rule.Rule
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInvalidJsonPayload})
	}

	updated, err := h.engine.UpdateRule(c.Context(), id, req)
	if err != nil {
		if errors.Is(err, rule.ErrParsing) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		h.logger.WithError(err).Error("failed to update rule")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "rule store unavailable"})
	}
	if !updated {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "rule not found"})
	}

	current, _ := h.engine.GetRule(id)
	return c.Status(fiber.StatusOK).JSON(current)
}
