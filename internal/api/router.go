package api

import (
	"github.com/gin-gonic/gin"

	"ros-node-supervisor/internal/common/logger"
	"ros-node-supervisor/internal/nodeproc"
)

// SetupRoutes registers the node supervisor's HTTP surface on router.
func SetupRoutes(router *gin.Engine, registry *nodeproc.Registry, log *logger.Logger) {
	handler := NewHandler(registry, log)
	stream := NewStreamHandler(registry, log)

	router.GET("/health", handler.HealthCheck)

	nodes := router.Group("/nodes")
	{
		nodes.POST("/launch", handler.LaunchNode)
		nodes.POST("/terminate", handler.TerminateNode)
		nodes.GET("", handler.ListNodes)
		nodes.GET("/:name/status", handler.NodeStatus)
		nodes.GET("/:name/stream", stream.Serve)
	}
}
