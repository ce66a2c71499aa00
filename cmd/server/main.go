package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/formpair/backend/internal/api"
	"github.com/formpair/backend/internal/config"
	"github.com/formpair/backend/internal/extract"
	"github.com/formpair/backend/internal/ingest"
	"github.com/formpair/backend/internal/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, "FormPairViewer.exe.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	// Load the organization keyword rules shipped alongside the binary.
	// Missing or broken rules fall back to the built-in keyword set.
	keywords := extract.DefaultKeywords
	rulesPath := filepath.Join(cfg.GetDefaultsDir(), "keywords.yaml")
	if rules, err := extract.LoadKeywordRules(rulesPath); err != nil {
		fmt.Printf("Warning: failed to load keyword rules from %s: %v (using defaults)\n", rulesPath, err)
	} else {
		keywords = rules.Organization
		fmt.Printf("Keyword rules loaded from %s\n", rulesPath)
	}

	// Initialize session manager
	allowedTypes := strings.Split(cfg.Security.AllowedFileTypes, ",")
	sessionMgr := session.NewManager(keywords, allowedTypes)

	// Start background session cleanup
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Processing.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			sessionMgr.CleanupIdleSessions(time.Duration(cfg.Processing.SessionTimeoutMinutes) * time.Minute)
		}
	}()

	// Initialize event hub and ingest job manager
	hub := api.NewEventHub(cfg.Advanced.WebSocketMaxMessageSize)
	ingestMgr := ingest.NewManager(hub)

	// Start background ingest-job cleanup
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Processing.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			ingestMgr.CleanupOldJobs(time.Duration(cfg.Processing.JobRetentionMinutes) * time.Minute)
		}
	}()

	// Initialize API handler. No render collaborator ships with this binary;
	// the render endpoint reports 503 until one is wired in.
	h := api.NewHandler(sessionMgr, ingestMgr, nil, hub)

	e := echo.New()
	e.HideBanner = true

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/status") ||
				path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogLevel:          0,
	}))

	// Compression middleware
	if cfg.Processing.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Processing.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				// Never compress the WebSocket upgrade
				return strings.HasPrefix(c.Request().URL.Path, "/api/ws")
			},
		}))
	}

	// Body limit middleware (drop batches arrive base64-encoded in JSON)
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	// Custom error handler for consistent API error responses
	e.HTTPErrorHandler = api.ErrorHandler

	// API Routes
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", h.HandleHealth)

	// WebSocket event stream
	apiGroup.GET("/ws/events", hub.HandleEvents)

	// Session lifecycle
	apiGroup.POST("/sessions", h.HandleCreateSession)
	if cfg.Security.AllowSessionDeletion {
		apiGroup.DELETE("/sessions/:sessionId", h.HandleDeleteSession)
	}

	// Ingestion
	apiGroup.POST("/sessions/:sessionId/ingest", h.HandleIngest)
	apiGroup.GET("/ingest/:jobId/status", h.HandleIngestJobStatus)

	// Pairs
	apiGroup.GET("/sessions/:sessionId/pairs", h.HandleListPairs)
	apiGroup.GET("/sessions/:sessionId/pairs/msgpack", h.HandleListPairsMsgpack)
	apiGroup.GET("/sessions/:sessionId/pairs/:key", h.HandleGetPair)
	apiGroup.POST("/sessions/:sessionId/pairs/:key/render", h.HandleRenderPair)

	// Conditional delete based on config
	if cfg.Security.AllowPairDeletion {
		apiGroup.DELETE("/sessions/:sessionId/pairs/:key", h.HandleDeletePair)
	}

	// Selection
	apiGroup.GET("/sessions/:sessionId/selection", h.HandleGetSelection)
	apiGroup.PUT("/sessions/:sessionId/selection", h.HandleSetSelection)

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Print startup banner
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Form Pair Viewer Server                         ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	e.Logger.Fatal(e.StartServer(s))
}
