package http

import (
	"github.com/NeuralTrust/TrustShield/pkg/app/ruleengine"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type listRulesHandler struct {
	logger *logrus.Logger
	engine ruleengine.Engine
}

func NewListRulesHandler(logger *logrus.Logger, engine ruleengine.Engine) Handler {
	return &listRulesHandler{
		logger: logger,
		engine: engine,
	}
}

func (h *listRulesHandler) Handle(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.engine.ListRules())
}
