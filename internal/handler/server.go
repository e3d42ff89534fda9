package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/flybeeper/taskengine/internal/auth"
	"github.com/flybeeper/taskengine/internal/config"
	"github.com/flybeeper/taskengine/internal/metrics"
	"github.com/flybeeper/taskengine/pkg/utils"
)

const healthTimeout = 2 * time.Second

// HealthCheck проверка зависимости для /health
type HealthCheck func(ctx context.Context) error

// Server HTTP сервер API вычислителя
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	logger      *utils.Logger
	config      *config.Config
	engine      TaskEngine
	restHandler *RESTHandler
	wsHandler   *WebSocketHandler
	version     string
	auth        *auth.Middleware

	checksMu sync.RWMutex
	checks   map[string]HealthCheck
}

// ServerOption дополнительная настройка сервера
type ServerOption func(*Server)

// WithAuth закрывает изменяющие маршруты проверкой токена оператора
func WithAuth(mw *auth.Middleware) ServerOption {
	return func(s *Server) { s.auth = mw }
}

// NewServer создает HTTP сервер
func NewServer(cfg *config.Config, engine TaskEngine, logger *utils.Logger, version string, opts ...ServerOption) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(logger))
	router.Use(gin.Recovery())
	router.Use(metrics.HTTPMetricsMiddleware())
	router.Use(CORSMiddleware())
	router.Use(RateLimitMiddleware(cfg.Server.RateLimit, cfg.Server.RateBurst))
	router.Use(SecurityHeadersMiddleware())

	server := &Server{
		router:      router,
		logger:      logger,
		config:      cfg,
		engine:      engine,
		restHandler: NewRESTHandler(engine, logger),
		wsHandler: NewWebSocketHandler(engine, logger,
			cfg.Server.WebSocketPingInterval, cfg.Server.WebSocketPongTimeout),
		version: version,
		checks:  make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(server)
	}

	server.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	if s.config.Monitoring.MetricsEnabled {
		s.router.GET(s.config.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	h := s.restHandler
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/task", h.GetActiveTask)
		v1.POST("/task/validate", h.ValidateTask)
		v1.GET("/task/stats", h.GetStats)
		v1.GET("/task/common", h.GetCommonStats)
		v1.GET("/task/summary", h.GetSummary)
		v1.GET("/task/snapshot", h.GetSnapshot)
		v1.GET("/task/target/:index", h.GetTarget)
		v1.GET("/tasks", h.ListTasks)
		v1.GET("/tasks/:id", h.GetTask)
		v1.GET("/waypoints", h.GetWaypoints)
		v1.GET("/results", h.GetResults)
		v1.GET("/ws", s.wsHandler.HandleWebSocket)
	}

	cmd := v1.Group("")
	if s.auth != nil {
		cmd.Use(s.auth.RequireCommand())
	}
	{
		cmd.PUT("/task", h.DeclareTask)
		cmd.PUT("/task/mode", h.SetMode)
		cmd.PUT("/task/active", h.SetActive)
		cmd.POST("/task/arm", h.Arm)
		cmd.POST("/task/reset", h.Reset)
		cmd.PUT("/task/target/:index", h.SetTarget)
		cmd.PUT("/task/target/:index/lock", h.LockTarget)

		cmd.POST("/tasks", h.CreateTask)
		cmd.PUT("/tasks/:id", h.UpdateTask)
		cmd.DELETE("/tasks/:id", h.DeleteTask)
		cmd.POST("/tasks/:id/activate", h.ActivateTask)

		cmd.POST("/goto", h.Goto)
		cmd.PUT("/glide", h.SetGlide)
		cmd.POST("/fix", h.PostFix)
		cmd.PUT("/waypoints", h.PutWaypoints)
	}
}

// AddHealthCheck регистрирует проверку зависимости
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checksMu.Lock()
	defer s.checksMu.Unlock()
	s.checks[name] = check
}

// Handler корневой обработчик, используется в тестах
func (s *Server) Handler() http.Handler {
	return s.router
}

// WebSocket обработчик потока снимков
func (s *Server) WebSocket() *WebSocketHandler {
	return s.wsHandler
}

// Start запускает HTTP сервер
func (s *Server) Start() error {
	s.logger.WithFields(map[string]interface{}{
		"address": s.config.Server.Address,
		"mode":    gin.Mode(),
	}).Info("Starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown корректное завершение сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	s.wsHandler.CloseAll()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	s.checksMu.RLock()
	deps := make(map[string]string, len(s.checks))
	healthy := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			healthy = false
			continue
		}
		deps[name] = "ok"
	}
	s.checksMu.RUnlock()

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":         status,
		"timestamp":      time.Now().Unix(),
		"version":        s.version,
		"mode":           s.engine.Mode(),
		"tracked_device": s.engine.TrackedDevice(),
		"ws_clients":     s.wsHandler.Clients(),
		"auth":           s.auth != nil,
		"writer":         s.engine.WriterStats(),
		"dependencies":   deps,
	})
}

// ==================== Middleware ====================

// RequestIDMiddleware присваивает запросу идентификатор
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		ctx := context.WithValue(c.Request.Context(), utils.RequestIDKey, id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// LoggerMiddleware логирование запросов
func LoggerMiddleware(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("HTTP request failed")
			return
		}
		entry.Debug("HTTP request completed")
	}
}

// CORSMiddleware настройка CORS
func CORSMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	})
}

// RateLimitMiddleware ограничение частоты запросов
func RateLimitMiddleware(limit float64, burst int) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := rate.NewLimiter(rate.Limit(limit), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    "rate_limit_exceeded",
				"message": "Too many requests",
			})
			return
		}
		c.Next()
	}
}

// SecurityHeadersMiddleware заголовки безопасности
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
