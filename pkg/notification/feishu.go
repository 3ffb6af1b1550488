package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tierscale/pkg/autoscaler"
	"tierscale/pkg/logger"
)

const sendTimeout = 10 * time.Second

// FeishuNotifier posts scaling events to a Feishu (Lark) bot webhook
type FeishuNotifier struct {
	webhookURL string
	client     *http.Client
}

var _ autoscaler.EventSink = (*FeishuNotifier)(nil)

// NewFeishuNotifier creates a notifier; an empty URL disables it
func NewFeishuNotifier(webhookURL string) *FeishuNotifier {
	if webhookURL == "" {
		logger.Warn("Feishu webhook URL not configured, Feishu notifications will be disabled")
	}
	return &FeishuNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: sendTimeout,
		},
	}
}

// Enabled reports whether a webhook URL is set
func (f *FeishuNotifier) Enabled() bool {
	return f.webhookURL != ""
}

// Emit sends the event in the background so evaluations are never held up
// by the webhook.
func (f *FeishuNotifier) Emit(ctx context.Context, event autoscaler.ScalingEvent) {
	if !f.Enabled() {
		return
	}
	traceID := logger.TraceID(ctx)
	go func() {
		sendCtx, cancel := context.WithTimeout(logger.WithTraceID(context.Background(), traceID), sendTimeout)
		defer cancel()
		if err := f.Send(sendCtx, event); err != nil {
			logger.WarnCtx(sendCtx, "failed to send Feishu notification for event %s: %v", event.ID, err)
		}
	}()
}

// Send posts a single event and waits for the response
func (f *FeishuNotifier) Send(ctx context.Context, event autoscaler.ScalingEvent) error {
	if !f.Enabled() {
		return nil
	}

	payload, err := json.Marshal(buildEventMessage(event))
	if err != nil {
		return fmt.Errorf("failed to marshal Feishu message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Feishu notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Feishu API returned status code: %d", resp.StatusCode)
	}

	logger.DebugCtx(ctx, "Feishu notification sent for %s event on %s", event.Type, event.QueueType)
	return nil
}

func headerTemplate(t autoscaler.EventType) (string, string) {
	switch t {
	case autoscaler.EventHire:
		return "green", "Workers hired"
	case autoscaler.EventFire:
		return "blue", "Workers fired"
	case autoscaler.EventCascade:
		return "turquoise", "Priority cascade"
	default:
		return "red", "Provider failure"
	}
}

// buildEventMessage builds a Feishu message card for a scaling event
func buildEventMessage(event autoscaler.ScalingEvent) map[string]interface{} {
	template, title := headerTemplate(event.Type)

	fields := []interface{}{
		shortField("Queue Type", string(event.QueueType)),
		shortField("Workers", fmt.Sprintf("%d → %d", event.Before, event.After)),
	}
	if event.Source != "" {
		fields = append(fields, shortField("Drained", string(event.Source)))
	}

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"template": template,
				"title": map[string]interface{}{
					"content": title,
					"tag":     "plain_text",
				},
			},
			"elements": []interface{}{
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"content": event.Message,
						"tag":     "lark_md",
					},
				},
				map[string]interface{}{
					"tag": "hr",
				},
				map[string]interface{}{
					"tag":    "div",
					"fields": fields,
				},
				map[string]interface{}{
					"tag": "note",
					"elements": []interface{}{
						map[string]interface{}{
							"content": fmt.Sprintf("%s · %s", event.Timestamp.Format("2006-01-02 15:04:05"), event.ID),
							"tag":     "plain_text",
						},
					},
				},
			},
		},
	}
}

func shortField(name, value string) map[string]interface{} {
	return map[string]interface{}{
		"is_short": true,
		"text": map[string]interface{}{
			"content": fmt.Sprintf("**%s**\n%s", name, value),
			"tag":     "lark_md",
		},
	}
}
