package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "ros-node-supervisor/internal/common/errors"
	"ros-node-supervisor/internal/common/logger"
	"ros-node-supervisor/internal/nodeproc"
)

// Handler holds the HTTP handlers for the node supervisor API.
type Handler struct {
	registry *nodeproc.Registry
	logger   *logger.Logger
}

// NewHandler creates a Handler backed by registry.
func NewHandler(registry *nodeproc.Registry, log *logger.Logger) *Handler {
	return &Handler{registry: registry, logger: log.WithFields(zap.String("component", "api"))}
}

// LaunchNode handles POST /nodes/launch.
func (h *Handler) LaunchNode(c *gin.Context) {
	var req nodeproc.NodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := apperrors.BadRequest("invalid request body: " + err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if _, err := h.registry.Launch(req); err != nil {
		h.respondError(c, err, "failed to launch node")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "node launched"})
}

// TerminateNode handles POST /nodes/terminate?name=N.
func (h *Handler) TerminateNode(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		appErr := apperrors.BadRequest("name is required")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if err := h.registry.Terminate(name); err != nil {
		h.respondError(c, err, "failed to terminate node")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "node terminated"})
}

// NodeStatus handles GET /nodes/:name/status. Draining is destructive: a
// given event is returned from at most one call.
func (h *Handler) NodeStatus(c *gin.Context) {
	name := c.Param("name")

	events, err := h.registry.GetEvents(name)
	if err != nil {
		h.respondError(c, err, "failed to get node status")
		return
	}

	c.JSON(http.StatusOK, gin.H{"name": name, "status": events})
}

// ListNodes handles GET /nodes.
func (h *Handler) ListNodes(c *gin.Context) {
	statuses := h.registry.List()
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = s.Name
	}
	c.JSON(http.StatusOK, gin.H{"nodes": names})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError renders an AppError verbatim, or wraps an unrecognized error
// as an internal error.
func (h *Handler) respondError(c *gin.Context, err error, fallbackMessage string) {
	var appErr *apperrors.AppError
	if ae, ok := err.(*apperrors.AppError); ok {
		appErr = ae
	} else {
		h.logger.Error(fallbackMessage, zap.Error(err))
		appErr = apperrors.InternalError(fallbackMessage, err)
	}
	c.JSON(appErr.HTTPStatus, appErr)
}
