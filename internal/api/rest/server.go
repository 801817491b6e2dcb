package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenInverterCore/internal/api/websocket"
	"github.com/KevinKickass/OpenInverterCore/internal/auth"
	"github.com/KevinKickass/OpenInverterCore/internal/config"
	"github.com/KevinKickass/OpenInverterCore/internal/interfaces"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
	}

	s.setupRoutes(cfg.Server.CORSOrigins)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(origins []string) {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware(origins))

	// Public routes
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", s.metrics)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/auth/token", s.issueToken)

		sensors := v1.Group("/sensors")
		{
			sensors.GET("", s.listSensors)
			sensors.GET("/:id", s.getSensor)
			sensors.POST("/:id/read", s.readSensor)
			sensors.GET("/:id/history", s.sensorHistory)

			// Writes change the inverter configuration
			sensors.POST("/:id/write",
				auth.Middleware(s.authService.JWT()),
				auth.RequireScope(auth.ScopeWrite),
				s.writeSensor)
		}

		audit := v1.Group("/audit")
		audit.Use(auth.Middleware(s.authService.JWT()), auth.RequireScope(auth.ScopeRead))
		{
			audit.GET("/writes", s.listWriteAudits)
		}

		system := v1.Group("/system")
		{
			system.GET("/status", s.getSystemStatus)
		}

		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.wsStatus)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	status := http.StatusOK
	state := "ok"
	if !s.lm.Inverter().Connected() {
		status = http.StatusServiceUnavailable
		state = "inverter disconnected"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) metrics(c *gin.Context) {
	s.lm.Metrics().Handler().ServeHTTP(c.Writer, c.Request)
}
