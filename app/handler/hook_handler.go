package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"tierscale/pkg/policy"
)

// JobTrigger receives job lifecycle notifications
type JobTrigger interface {
	OnJobEnqueued(ctx context.Context, queueType policy.QueueType)
	OnJobFinishedOrRemoved(ctx context.Context, queueType policy.QueueType)
}

// HookHandler exposes the job lifecycle triggers to the queue backend
type HookHandler struct {
	trigger JobTrigger
}

// NewHookHandler creates hook handler
func NewHookHandler(trigger JobTrigger) *HookHandler {
	return &HookHandler{trigger: trigger}
}

// Enqueued notifies that a job was added to a queue
// @Summary Job enqueued hook
// @Description Evaluates whether more workers should be hired for the queue. Always accepted.
// @Tags Hooks
// @Param queue path string true "Queue type"
// @Produce json
// @Success 202 {object} map[string]interface{}
// @Router /v1/hooks/{queue}/enqueued [post]
func (h *HookHandler) Enqueued(c *gin.Context) {
	queueType := policy.QueueType(c.Param("queue"))
	h.trigger.OnJobEnqueued(c.Request.Context(), queueType)
	c.JSON(http.StatusAccepted, gin.H{"queue": queueType, "event": "enqueued"})
}

// Finished notifies that a job completed or was removed from a queue
// @Summary Job finished hook
// @Description Evaluates whether workers should be fired and lower tiers activated. Always accepted.
// @Tags Hooks
// @Param queue path string true "Queue type"
// @Produce json
// @Success 202 {object} map[string]interface{}
// @Router /v1/hooks/{queue}/finished [post]
func (h *HookHandler) Finished(c *gin.Context) {
	queueType := policy.QueueType(c.Param("queue"))
	h.trigger.OnJobFinishedOrRemoved(c.Request.Context(), queueType)
	c.JSON(http.StatusAccepted, gin.H{"queue": queueType, "event": "finished"})
}
