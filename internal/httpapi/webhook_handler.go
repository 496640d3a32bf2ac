package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/callregistry"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/turnprocessor"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/workerpool"
)

// providerStatusMap translates the provider's CallStatus vocabulary into
// the Call Registry's own Status enum (spec.md §4.2); "queued" is the
// provider's pre-dial state and maps onto our own "initiated".
var providerStatusMap = map[string]callregistry.Status{
	"queued":      callregistry.StatusInitiated,
	"initiated":   callregistry.StatusInitiated,
	"ringing":     callregistry.StatusRinging,
	"answered":    callregistry.StatusAnswered,
	"in-progress": callregistry.StatusInProgress,
	"completed":   callregistry.StatusCompleted,
	"busy":        callregistry.StatusBusy,
	"no-answer":   callregistry.StatusNoAnswer,
	"failed":      callregistry.StatusFailed,
	"canceled":    callregistry.StatusCanceled,
}

// WebhookHandler serves the provider-facing endpoints of spec.md §5:
// POST /call-status and POST /handle-recording. These must always ack
// with 2xx regardless of internal failure, since the provider only
// retries on a non-2xx response and has no use for our error taxonomy
// (spec.md §7 "provider-facing endpoints never surface 5xx for internal
// failures").
type WebhookHandler struct {
	registry  callregistry.Store
	processor turnprocessor.Processor
	pool      *workerpool.Pool
	logger    commons.Logger
}

// NewWebhookHandler builds the Webhook Handler.
func NewWebhookHandler(registry callregistry.Store, processor turnprocessor.Processor, pool *workerpool.Pool, logger commons.Logger) *WebhookHandler {
	return &WebhookHandler{registry: registry, processor: processor, pool: pool, logger: logger}
}

// HandleCallStatus handles POST /call-status.
func (h *WebhookHandler) HandleCallStatus(c *gin.Context) {
	providerSid := c.PostForm("CallSid")
	rawStatus := c.PostForm("CallStatus")
	if providerSid == "" || rawStatus == "" {
		c.Status(http.StatusOK)
		return
	}

	status, ok := providerStatusMap[rawStatus]
	if !ok {
		h.logger.Warnf("call-status webhook: unrecognised provider status %q for providerSid=%s", rawStatus, providerSid)
		c.Status(http.StatusOK)
		return
	}

	metadata := map[string]string{}
	if duration := c.PostForm("CallDuration"); duration != "" {
		metadata["providerCallDuration"] = duration
	}

	if err := h.registry.UpdateStatus(c.Request.Context(), providerSid, status, metadata); err != nil {
		h.logger.Errorf("call-status webhook: update status failed for providerSid=%s: %v", providerSid, err)
	}
	c.Status(http.StatusOK)
}

// HandleRecording handles POST /handle-recording. Per spec.md §5 the
// heavy work (fetch, recognition, reasoning) runs off the request path:
// the Turn Processor pipeline is submitted to the shared worker pool and
// this handler acks 2xx as soon as it's enqueued, detached from the
// request's own context since the job outlives the webhook response.
func (h *WebhookHandler) HandleRecording(c *gin.Context) {
	providerSid := c.PostForm("CallSid")
	recordingURL := c.PostForm("RecordingUrl")
	if providerSid == "" || recordingURL == "" {
		c.Status(http.StatusOK)
		return
	}
	durationSeconds, _ := strconv.Atoi(c.PostForm("RecordingDuration"))

	err := h.pool.Submit(func() {
		if err := h.processor.HandleRecording(context.Background(), providerSid, recordingURL, durationSeconds); err != nil {
			h.logger.Errorf("handle-recording webhook: turn processor failed for providerSid=%s: %v", providerSid, err)
		}
	})
	if err != nil {
		h.logger.Errorf("handle-recording webhook: worker pool saturated for providerSid=%s: %v", providerSid, err)
	}
	c.Status(http.StatusOK)
}
