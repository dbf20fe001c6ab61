package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"proofsy/internal/config"
	"proofsy/internal/domain"
	"proofsy/internal/usecase"
)

const serviceName = "proofsy"

type Server struct {
	cfg  config.Config
	r    *gin.Engine
	jobs *usecase.JobService
	log  *logrus.Entry

	storageMode string
	anchorMode  string

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

type ServerDeps struct {
	Jobs        *usecase.JobService
	RateLimiter domain.RateLimiter
	StorageMode string
	AnchorMode  string
	Log         *logrus.Entry
}

func NewServer(cfg config.Config, deps ServerDeps) *Server {
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	s := &Server{
		cfg:         cfg,
		r:           r,
		jobs:        deps.Jobs,
		log:         log,
		storageMode: deps.StorageMode,
		anchorMode:  deps.AnchorMode,
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initRateLimit(limiter domain.RateLimiter) {
	s.rateLimiter = limiter
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealth)

	v1 := s.r.Group("/v1", s.rateLimit)
	{
		v1.GET("/tasks", s.handleListTasks)
		v1.POST("/jobs", s.handleSubmitJob)
		v1.GET("/jobs", s.handleListJobs)
		v1.POST("/jobs/:job_id/complete", s.handleCompleteJob)
		v1.GET("/jobs/:job_id/timeline", s.handleTimeline)
		v1.GET("/artifacts/:job_id", s.handleDownloadArtifact)
		v1.POST("/artifacts/verify", s.handleVerifyArtifact)
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) Handler() http.Handler {
	return s.r
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}

func requestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		}).Debug("request")
	}
}
