package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/coursemate/coursemate-backend/internal/handlers"
)

type RouterConfig struct {
	MaterialHandler *handlers.MaterialHandler
	QueryHandler    *handlers.QueryHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Materials
		api.POST("/materials", cfg.MaterialHandler.Upload)
		api.GET("/materials/:id", cfg.MaterialHandler.Get)
		api.GET("/materials/:id/status", cfg.MaterialHandler.GetStatus)
		api.POST("/materials/:id/reembed", cfg.MaterialHandler.Reembed)
		api.DELETE("/materials/:id", cfg.MaterialHandler.Delete)
		// Retrieval
		api.POST("/query", cfg.QueryHandler.Query)
		api.POST("/query/route", cfg.QueryHandler.Route)
	}

	return router
}
