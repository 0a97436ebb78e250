// Package api provides the REST API and WebSocket server for Tickarr.
// It manages display elements, the timer widgets attached to them, reset
// schedules and credentials, and pushes rendered text to display clients.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mescon/Tickarr/internal/auth"
	"github.com/mescon/Tickarr/internal/config"
	"github.com/mescon/Tickarr/internal/db"
	"github.com/mescon/Tickarr/internal/display"
	"github.com/mescon/Tickarr/internal/eventbus"
	"github.com/mescon/Tickarr/internal/logger"
	"github.com/mescon/Tickarr/internal/metrics"
	"github.com/mescon/Tickarr/internal/services"
	"github.com/mescon/Tickarr/internal/web"
)

type RESTServer struct {
	router      *gin.Engine
	httpServer  *http.Server
	cfg         *config.Config
	repo        *db.Repository
	eventBus    *eventbus.EventBus
	board       *display.Board
	scheduler   *services.SchedulerService
	credentials *auth.Credentials
	metrics     *metrics.MetricsService
	hub         *WebSocketHub
	limiters    authLimiters
	startTime   time.Time
}

// ServerDeps contains all dependencies required for the REST server
type ServerDeps struct {
	Config      *config.Config
	Repo        *db.Repository
	EventBus    *eventbus.EventBus
	Board       *display.Board
	Scheduler   *services.SchedulerService
	Credentials *auth.Credentials
	Metrics     *metrics.MetricsService // optional
}

func NewRESTServer(deps ServerDeps) *RESTServer {
	// Set Gin to release mode for production (suppresses debug warnings)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	cfg := deps.Config
	if cfg == nil {
		cfg = config.Get()
	}

	r.Use(requestID())
	r.Use(recovery())
	r.Use(cors(cfg.CORSOrigin))

	s := &RESTServer{
		router:      r,
		cfg:         cfg,
		repo:        deps.Repo,
		eventBus:    deps.EventBus,
		board:       deps.Board,
		scheduler:   deps.Scheduler,
		credentials: deps.Credentials,
		metrics:     deps.Metrics,
		hub:         NewWebSocketHub(deps.EventBus, newOriginChecker(cfg.CORSOrigin)),
		limiters:    newAuthLimiters(),
		startTime:   time.Now(),
	}
	deps.Board.OnRender(s.hub.BroadcastRender)
	s.hub.SetSnapshot(func() interface{} { return s.elementInfos() })

	s.setupRoutes()
	return s
}

// Router exposes the gin engine, mainly for tests.
func (s *RESTServer) Router() *gin.Engine { return s.router }

// Hub returns the WebSocket hub serving display clients.
func (s *RESTServer) Hub() *WebSocketHub { return s.hub }

// requestID tags every request with an id for log correlation.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set("request_id", reqID)
		c.Header("X-Request-ID", reqID)
		c.Next()
	}
}

func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		reqID := c.GetString("request_id")
		logger.Errorf("[PANIC RECOVERY] request_id=%s path=%s method=%s error=%v",
			reqID, c.Request.URL.Path, c.Request.Method, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":      ErrMsgInternalError,
			"request_id": reqID,
		})
	})
}

// cors allows the configured origins. Without configuration no CORS header is
// sent and the browser enforces same-origin.
func cors(origins string) gin.HandlerFunc {
	allowed := make(map[string]bool)
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = true
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowed["*"] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" && allowed[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Authorization, X-API-Key, X-Request-ID, accept, origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *RESTServer) setupRoutes() {
	basePath := s.cfg.BasePath

	// Prometheus scrapes at the root, not behind the base path
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	var base *gin.RouterGroup
	if basePath == "/" {
		base = s.router.Group("")
	} else {
		base = s.router.Group(basePath)
	}

	// Browser display client. Public: it only reads what /api/ws broadcasts.
	base.StaticFS("/display", web.GetHTTPFS())
	base.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, strings.TrimSuffix(basePath, "/")+"/display/")
	})

	api := base.Group("/api")
	{
		api.GET("/health", s.handleHealth)

		// Public auth endpoints with rate limiting
		api.GET("/auth/status", s.handleAuthStatus)
		api.POST("/auth/setup", s.limiters.setup.Middleware(), s.handleAuthSetup)
		api.POST("/auth/login", s.limiters.login.Middleware(), s.handleLogin)

		// Display clients. Logs are only streamed to authenticated connections.
		api.GET("/ws", s.handleWebSocket)

		protected := api.Group("")
		protected.Use(s.authMiddleware())
		{
			protected.GET("/auth/key", s.getAPIKey)
			protected.POST("/auth/regenerate", s.regenerateAPIKey)
			protected.POST("/auth/password", s.changePassword)

			protected.GET("/elements", s.listElements)
			protected.POST("/elements", s.createElement)
			protected.GET("/elements/:id", s.getElement)
			protected.DELETE("/elements/:id", s.deleteElement)

			protected.GET("/widgets", s.listWidgets)
			protected.POST("/widgets", s.createWidget)
			protected.GET("/widgets/:id", s.getWidget)
			protected.DELETE("/widgets/:id", s.deleteWidget)
			protected.POST("/widgets/:id/start", s.startWidget)
			protected.POST("/widgets/:id/stop", s.stopWidget)
			protected.POST("/widgets/:id/update", s.updateWidget)
			protected.POST("/widgets/:id/reset", s.resetWidget)
			protected.GET("/widgets/:id/events", s.getWidgetEvents)

			protected.GET("/presets", s.getPresets)

			protected.GET("/schedules", s.getSchedules)
			protected.POST("/schedules", s.addSchedule)
			protected.PUT("/schedules/:id", s.updateSchedule)
			protected.DELETE("/schedules/:id", s.deleteSchedule)

			protected.GET("/logs/recent", s.handleRecentLogs)
			protected.GET("/logs/download", s.handleDownloadLogs)
		}
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API endpoint not found"})
	})
}

// WarnIfOpen logs a warning when no credentials have been set up yet.
func (s *RESTServer) WarnIfOpen() {
	done, err := s.credentials.IsSetup()
	if err != nil {
		logger.Errorf("Failed to read auth settings: %v", err)
		return
	}
	if !done {
		logger.Warnf("Authentication is not set up: the management API is open until POST /api/auth/setup is called")
	}
}

func (s *RESTServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the HTTP server and disconnects display clients
func (s *RESTServer) Shutdown(ctx context.Context) error {
	s.limiters.stop()
	s.hub.Shutdown()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requestToken extracts the API key from the request headers or query.
func requestToken(c *gin.Context) string {
	token := c.GetHeader("X-API-Key")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	// Browsers can't set headers on WebSocket upgrades
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		token = c.Query("apikey")
	}
	return token
}

// authMiddleware requires a valid API key once setup has been completed.
// Before that every request passes.
func (s *RESTServer) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		done, err := s.credentials.IsSetup()
		if err != nil {
			respondAuthError(c, err)
			c.Abort()
			return
		}
		if !done {
			c.Next()
			return
		}

		token := requestToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No authentication token provided"})
			c.Abort()
			return
		}

		ok, err := s.credentials.Verify(token)
		if err != nil {
			respondAuthError(c, err)
			c.Abort()
			return
		}
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// authenticated reports whether the request carries a valid API key, or
// whether authentication has not been set up at all.
func (s *RESTServer) authenticated(c *gin.Context) bool {
	done, err := s.credentials.IsSetup()
	if err != nil {
		return false
	}
	if !done {
		return true
	}
	ok, err := s.credentials.Verify(requestToken(c))
	return err == nil && ok
}
