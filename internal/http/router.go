package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/voicedesk/backend/internal/config"
	"github.com/voicedesk/backend/internal/db"
	"github.com/voicedesk/backend/internal/http/handlers"
	"github.com/voicedesk/backend/internal/http/middleware"
	"github.com/voicedesk/backend/internal/queue"
	"github.com/voicedesk/backend/internal/storage"

	_ "github.com/voicedesk/backend/docs"
)

func Router(cfg config.Config, store *db.Store, jobs *queue.Queue, files *storage.FileStore, rdb *redis.Client, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.MaxMultipartMemory = cfg.MaxUploadSizeMB << 20

	// Cap the request body itself; MaxMultipartMemory only bounds buffering.
	maxBody := (cfg.MaxUploadSizeMB << 20) + (1 << 20)
	r.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		c.Next()
	})

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:          store,
		Queue:          jobs,
		Files:          files,
		Redis:          rdb,
		Validator:      validator.New(),
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadSizeMB << 20,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.POST("/calls/upload", h.Upload)
		api.GET("/calls", h.ListCalls)
		api.GET("/calls/:id", h.GetCall)
		api.DELETE("/calls/:id", h.DeleteCall)
		api.POST("/calls/:id/reprocess", h.Reprocess)
		api.GET("/calls/:id/analytics", h.CallAnalytics)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
