package http

import "github.com/gofiber/fiber/v2"

const ErrInvalidJsonPayload = "invalid json payload"

type Handler interface {
	Handle(ctx *fiber.Ctx) error
}

type HandlerTransport struct {
	// Admission
	AdmitConnectionHandler Handler
	AdmitRequestHandler    Handler
	ResetIdentityHandler   Handler

	// Rule
	CreateRuleHandler Handler
	ListRulesHandler  Handler
	GetRuleHandler    Handler
	UpdateRuleHandler Handler
	DeleteRuleHandler Handler
}
