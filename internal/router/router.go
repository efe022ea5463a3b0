package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-examgen/internal/config"
	"github.com/stemsi/exstem-examgen/internal/handler"
	"github.com/stemsi/exstem-examgen/internal/middleware"
	"github.com/stemsi/exstem-examgen/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exercise *handler.ExerciseHandler
	Doc      *handler.DocHandler
	Chat     *handler.ChatHandler
	WS       *handler.WSHandler
	System   *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	router.MaxMultipartMemory = 8 << 20

	// Health check.
	router.GET("/health", handlers.System.Health)

	// Generation calls a paid model; limit them per IP.
	generateLimiter := middleware.NewRateLimiter(cfg.GenerateRateLimit, time.Minute)

	api := router.Group("/api/v1")

	// ─── 1. Exercises ──────────────────────────────────────────────────
	exercises := api.Group("/exercises")
	{
		exercises.POST("/analyze", generateLimiter.Middleware(), handlers.Exercise.Analyze)
		exercises.POST("/analyze-file", generateLimiter.Middleware(), handlers.Exercise.AnalyzeFile)
		exercises.POST("/generate", generateLimiter.Middleware(), handlers.Exercise.Generate)
		exercises.GET("", handlers.Exercise.ListExercises)
		exercises.GET("/:id", handlers.Exercise.GetExercise)
		exercises.DELETE("/:id", handlers.Exercise.DeleteExercise)
		exercises.POST("/:id/submit", handlers.Exercise.SubmitAnswers)
		exercises.GET("/:id/results", handlers.Exercise.ListResults)
	}

	// ─── 2. Docs ───────────────────────────────────────────────────────
	docs := api.Group("/docs")
	{
		docs.POST("", handlers.Doc.UploadDoc)
		docs.GET("", handlers.Doc.ListDocs)
		docs.GET("/:id", handlers.Doc.GetDoc)
		docs.GET("/:id/file", handlers.Doc.DownloadDoc)
		docs.DELETE("/:id", handlers.Doc.DeleteDoc)
		docs.POST("/:id/parse", generateLimiter.Middleware(), handlers.Doc.ParseDoc)
	}

	// ─── 3. Chat ───────────────────────────────────────────────────────
	api.POST("/chat/stream", generateLimiter.Middleware(), handlers.Chat.Stream)

	// ─── 4. System ─────────────────────────────────────────────────────
	api.GET("/system/metrics", handlers.System.SystemMetricsSSE)

	// ─── 5. WebSocket ──────────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(generateLimiter.Middleware())
	{
		ws.GET("/exercises/generate", handlers.WS.GenerateStream)
	}

	return router
}
