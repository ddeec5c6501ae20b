package api

import (
	"net/http"
	"time"

	"signal-bridge/internal/events"
	"signal-bridge/internal/monitor"
	"signal-bridge/internal/pipeline"
	"signal-bridge/internal/queue"
	"signal-bridge/pkg/db"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the signal pipeline.
type Server struct {
	Router           *gin.Engine
	Bus              *events.Bus
	DB               *db.Database
	Store            *queue.Store
	Worker           *pipeline.Worker
	Pipeline         *pipeline.Pipeline
	Metrics          *monitor.SystemMetrics
	JWTSecret        string
	AllowedChannelID string
	Meta             SystemMeta
	// WaitTimeout bounds how long ?wait=true intake requests block.
	WaitTimeout time.Duration
}

// SystemMeta describes runtime status exposed on /api/status.
type SystemMeta struct {
	Mode      string
	Degraded  bool
	Version   string
	StartedAt time.Time
}

// Options carries the collaborators of NewServer.
type Options struct {
	Bus              *events.Bus
	DB               *db.Database
	Store            *queue.Store
	Worker           *pipeline.Worker
	Pipeline         *pipeline.Pipeline
	Metrics          *monitor.SystemMetrics
	JWTSecret        string
	AllowedChannelID string
	RateLimitRPS     float64
	RateLimitBurst   int
	Meta             SystemMeta
}

func NewServer(opts Options) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())                                              // Panic recovery (first)
	r.Use(RequestIDMiddleware())                                       // Request ID tracking
	r.Use(RequestLogger(opts.Metrics))                                 // Request logging (after ID is set)
	r.Use(RateLimitMiddleware(opts.RateLimitRPS, opts.RateLimitBurst)) // Rate limiting
	r.Use(CORSMiddleware())                                            // CORS (last before routes)

	if opts.Meta.StartedAt.IsZero() {
		opts.Meta.StartedAt = time.Now()
	}
	s := &Server{
		Router:           r,
		Bus:              opts.Bus,
		DB:               opts.DB,
		Store:            opts.Store,
		Worker:           opts.Worker,
		Pipeline:         opts.Pipeline,
		Metrics:          opts.Metrics,
		JWTSecret:        opts.JWTSecret,
		AllowedChannelID: opts.AllowedChannelID,
		Meta:             opts.Meta,
		WaitTimeout:      25 * time.Second,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	api.Use(TimeoutMiddleware(30 * time.Second))
	if s.JWTSecret != "" {
		api.Use(AuthMiddleware(s.JWTSecret))
	}
	{
		api.GET("/status", s.getStatus)
		api.GET("/metrics", s.getMetrics)
		api.GET("/audit", s.getRecentAudit)

		signals := api.Group("/signals")
		{
			signals.POST("/text", s.submitText)
			signals.POST("/image", s.submitImage)
			signals.GET("/pending", s.listPending)
			signals.GET("/:id", s.getSignal)
			signals.GET("/:id/audit", s.getSignalAudit)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
