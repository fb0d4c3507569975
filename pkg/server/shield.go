package server

import (
	"fmt"

	"github.com/NeuralTrust/TrustShield/pkg/config"
	handlers "github.com/NeuralTrust/TrustShield/pkg/handlers/http"
	"github.com/sirupsen/logrus"
)

type (
	ShieldServerDI struct {
		HandlerTransport handlers.HandlerTransport
		Config           *config.Config
		Logger           *logrus.Logger
	}
	ShieldServer struct {
		*BaseServer
		handlerTransport handlers.HandlerTransport
	}
)

func NewShieldServer(di ShieldServerDI) *ShieldServer {
	return &ShieldServer{
		BaseServer:       NewBaseServer(di.Config, di.Logger),
		handlerTransport: di.HandlerTransport,
	}
}

func (s *ShieldServer) Run() error {
	s.setupRoutes()
	s.setupHealthCheck()
	s.setupMetricsEndpoint()

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	s.Logger.WithField("addr", addr).Info("starting admission server")
	return s.Router.Listen(addr)
}

func (s *ShieldServer) setupRoutes() {
	v1 := s.Router.Group("/api/v1")
	{
		admissionGroup := v1.Group("/admission")
		{
			admissionGroup.Post("/connection", s.handlerTransport.AdmitConnectionHandler.Handle)
			admissionGroup.Post("/request", s.handlerTransport.AdmitRequestHandler.Handle)
		}

		rules := v1.Group("/rules")
		{
			rules.Post("", s.handlerTransport.CreateRuleHandler.Handle)
			rules.Get("", s.handlerTransport.ListRulesHandler.Handle)
			rules.Get("/:rule_id", s.handlerTransport.GetRuleHandler.Handle)
			rules.Put("/:rule_id", s.handlerTransport.UpdateRuleHandler.Handle)
			rules.Delete("/:rule_id", s.handlerTransport.DeleteRuleHandler.Handle)
		}

		identities := v1.Group("/identities")
		{
			identities.Delete("/:identity", s.handlerTransport.ResetIdentityHandler.Handle)
		}
	}
}

func (s *ShieldServer) Shutdown() error {
	return s.Router.Shutdown()
}
