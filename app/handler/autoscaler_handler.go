package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tierscale/pkg/autoscaler"
	"tierscale/pkg/logger"
	"tierscale/pkg/policy"
)

const defaultEventLimit = 10

// StatusReader is the read and control surface of the autoscaler manager
type StatusReader interface {
	Status(ctx context.Context, eventLimit int) autoscaler.Status
	QueueStatus(ctx context.Context, queueType policy.QueueType) (autoscaler.QueueStatus, error)
	RecentEvents(limit int) []autoscaler.ScalingEvent
	Reconcile(ctx context.Context) error
}

// AutoScalerHandler handles autoscaling operations
type AutoScalerHandler struct {
	manager StatusReader
}

// NewAutoScalerHandler creates autoscaler handler
func NewAutoScalerHandler(manager StatusReader) *AutoScalerHandler {
	return &AutoScalerHandler{manager: manager}
}

// GetStatus gets autoscaler status
// @Summary Get autoscaler status
// @Description Observed state and phase of every declared queue type, plus recent events
// @Tags AutoScaler
// @Param limit query int false "Event limit (default 10)"
// @Produce json
// @Success 200 {object} autoscaler.Status
// @Router /api/v1/autoscaler/status [get]
func (h *AutoScalerHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Status(c.Request.Context(), queryLimit(c)))
}

// GetQueueStatus gets the observed state of one queue type
// @Summary Get queue status
// @Tags AutoScaler
// @Param queue path string true "Queue type"
// @Produce json
// @Success 200 {object} autoscaler.QueueStatus
// @Failure 404 {object} map[string]string
// @Router /api/v1/autoscaler/queues/{queue} [get]
func (h *AutoScalerHandler) GetQueueStatus(c *gin.Context) {
	queueType := policy.QueueType(c.Param("queue"))

	status, err := h.manager.QueueStatus(c.Request.Context(), queueType)
	if err != nil {
		if errors.Is(err, policy.ErrUnknownQueueType) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		logger.ErrorCtx(c.Request.Context(), "failed to get status of %s: %v", queueType, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetRecentEvents gets recent scaling events (lightweight interface)
// @Summary Get recent scaling events
// @Tags AutoScaler
// @Param limit query int false "Event limit (default 10)"
// @Produce json
// @Success 200 {array} autoscaler.ScalingEvent
// @Router /api/v1/autoscaler/recent-events [get]
func (h *AutoScalerHandler) GetRecentEvents(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.RecentEvents(queryLimit(c)))
}

// TriggerReconcile re-evaluates every queue type now
// @Summary Trigger reconcile
// @Tags AutoScaler
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/autoscaler/trigger [post]
func (h *AutoScalerHandler) TriggerReconcile(c *gin.Context) {
	if err := h.manager.Reconcile(c.Request.Context()); err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to trigger reconcile: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logger.InfoCtx(c.Request.Context(), "reconcile triggered manually")
	c.JSON(http.StatusOK, gin.H{"status": "triggered"})
}

func queryLimit(c *gin.Context) int {
	limit := defaultEventLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	return limit
}
