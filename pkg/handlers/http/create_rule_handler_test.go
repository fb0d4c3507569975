package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/NeuralTrust/TrustShield/pkg/app/ruleengine"
	"github.com/NeuralTrust/TrustShield/pkg/domain/rule"
	"github.com/NeuralTrust/TrustShield/pkg/infra/counter"
	"github.com/NeuralTrust/TrustShield/pkg/infra/reputation"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRulesApp() (*fiber.App, ruleengine.Engine) {
	logger := logrus.New()
	engine := ruleengine.NewEngine(
		counter.NewMemoryStore(nil),
		reputation.NewStaticChecker(reputation.NeutralScore),
		ruleengine.Config{Enabled: true, DefaultPriority: 100},
		logger,
		nil,
	)

	app := fiber.New()
	app.Post("/api/v1/rules", NewCreateRuleHandler(logger, engine).Handle)
	app.Get("/api/v1/rules/:rule_id", NewGetRuleHandler(logger, engine).Handle)
	app.Delete("/api/v1/rules/:rule_id", NewDeleteRuleHandler(logger, engine).Handle)
	return app, engine
}

func TestCreateRuleHandler_Success(t *testing.T) {
	app, _ := newRulesApp()

	body := `{
		"name": "block bad bots",
		"conditions": [{"type": "user_agent", "params": {"pattern": "badbot"}}],
		"actions": [{"type": "block", "params": {"duration_seconds": 300}}],
		"priority": 10,
		"enabled": true
	}`

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/rules", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var created rule.Rule
	require.NoError(t, json.Unmarshal(raw, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "block bad bots", created.Name)
	require.Len(t, created.Conditions, 1)
	assert.Equal(t, rule.UserAgentCondition{Pattern: "badbot"}, created.Conditions[0])
}

func TestCreateRuleHandler_RejectsUnknownConditionType(t *testing.T) {
	app, _ := newRulesApp()

	body := `{
		"name": "broken",
		"conditions": [{"type": "geo_fence", "params": {}}],
		"actions": [],
		"priority": 1,
		"enabled": true
	}`

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/rules", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCreateRuleHandler_RejectsMissingName(t *testing.T) {
	app, _ := newRulesApp()

	body := `{"name": "", "conditions": [], "actions": [], "priority": 1, "enabled": true}`

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/rules", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetRuleHandler_NotFound(t *testing.T) {
	app, _ := newRulesApp()

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/rules/missing", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestDeleteRuleHandler_RemovesRule(t *testing.T) {
	app, engine := newRulesApp()

	created, err := engine.AddRule(context.Background(), rule.Rule{
		Name:    "to delete",
		Actions: []rule.Action{rule.LogAction{Level: "info", Message: "hit"}},
		Enabled: true,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodDelete, "/api/v1/rules/"+created.ID, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	_, found := engine.GetRule(created.ID)
	assert.False(t, found)
}
