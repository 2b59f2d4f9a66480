package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pathweaver/pathweaver/internal/middleware"
	"github.com/pathweaver/pathweaver/internal/pkg/response"
)

type RouterDeps struct {
	Paths            *PathHandler
	JWTSecret        []byte
	CreateRateWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))

	authGroup.POST("/paths", middleware.RateLimit(deps.CreateRateWindow), deps.Paths.Create)
	authGroup.GET("/paths", deps.Paths.List)
	authGroup.GET("/paths/:id", deps.Paths.Get)
	authGroup.DELETE("/paths/:id", deps.Paths.Delete)

	authGroup.GET("/concepts/:id", deps.Paths.GetConcept)

	authGroup.POST("/search", deps.Paths.Search)
}
