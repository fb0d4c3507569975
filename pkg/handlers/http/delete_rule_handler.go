package http

import (
	"github.com/NeuralTrust/TrustShield/pkg/app/ruleengine"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type deleteRuleHandler struct {
	logger *logrus.Logger
	engine ruleengine.Engine
}

func NewDeleteRuleHandler(logger *logrus.Logger, engine ruleengine.Engine) Handler {
	return &deleteRuleHandler{
		logger: logger,
		engine: engine,
	}
}

func (h *deleteRuleHandler) Handle(c *fiber.Ctx) error {
	id := c.Params("rule_id")

	removed, err := h.engine.RemoveRule(c.Context(), id)
	if err != nil {
		h.logger.WithError(err).Error("failed to delete rule")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "rule store unavailable"})
	}
	if !removed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "rule not found"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
