package http

import (
	"github.com/NeuralTrust/TrustShield/pkg/app/ruleengine"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type getRuleHandler struct {
	logger *logrus.Logger
	engine ruleengine.Engine
}

func NewGetRuleHandler(logger *logrus.Logger, engine ruleengine.Engine) Handler {
	return &getRuleHandler{
		logger: logger,
		engine: engine,
	}
}

func (h *getRuleHandler) Handle(c *fiber.Ctx) error {
	id := c.Params("rule_id")
	found, ok := h.engine.GetRule(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "rule not found"})
	}
	return c.Status(fiber.StatusOK).JSON(found)
}
