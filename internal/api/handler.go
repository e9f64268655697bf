package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"woox-trader/internal/events"
	"woox-trader/internal/monitor"
	"woox-trader/internal/reconciliation"
	"woox-trader/pkg/cache"
	"woox-trader/pkg/db"
)

// Server exposes read-only diagnostics over the controller's state: order
// groups, orders, audit findings, gateway errors and runtime metrics. It
// never submits or mutates orders.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	Store     *db.Store
	Metrics   *monitor.Metrics
	Auditor   *reconciliation.Auditor
	Prices    *cache.PriceCache
	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime status exposed to operators.
type SystemMeta struct {
	PaperTrading bool
	Symbol       string
	Timeframes   []int
	Version      string
}

func NewServer(bus *events.Bus, store *db.Store, metrics *monitor.Metrics, auditor *reconciliation.Auditor, meta SystemMeta, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(metrics))
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       bus,
		Store:     store,
		Metrics:   metrics,
		Auditor:   auditor,
		JWTSecret: jwtSecret,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)

		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/metrics", s.getMetrics)
			protected.GET("/groups", s.listGroups)
			protected.GET("/groups/:id", s.getGroup)
			protected.GET("/orders/:id", s.getOrder)
			protected.GET("/timeframe-groups", s.listTimeframeGroups)
			protected.GET("/klines", s.listKlines)
			protected.GET("/gateway-errors", s.listGatewayErrors)
			protected.GET("/audit", s.getAuditReport)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
