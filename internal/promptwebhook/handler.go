// Package promptwebhook implements the Prompt Webhook Handler (C4): the
// provider's synchronous request for the next turn's script. Grounded on
// the teacher's gin-handler shape in api/routers, adapted from JSON
// responses to TwiML markup.
package promptwebhook

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/aiclients"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/callregistry"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/clock"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/dialog"
)

const defaultMaxRecordingSeconds = 60

// Handler serves POST /voice and /voice-interactive (spec.md §4.4), plus
// GET /prompt-audio/:id for the pre-rendered audio it caches there.
type Handler struct {
	registry            callregistry.Store
	engine              dialog.Engine
	synthesis           aiclients.Synthesis
	publicBaseURL       string
	tempDir             string
	maxRecordingSeconds int
	clock               clock.Clock
	logger              commons.Logger

	audioMu    sync.Mutex
	audioCache map[string]string
}

// NewHandler builds the Prompt Webhook Handler.
func NewHandler(registry callregistry.Store, engine dialog.Engine, synthesis aiclients.Synthesis, publicBaseURL, tempDir string, maxRecordingSeconds int, clk clock.Clock, logger commons.Logger) *Handler {
	if maxRecordingSeconds <= 0 {
		maxRecordingSeconds = defaultMaxRecordingSeconds
	}
	return &Handler{
		registry:            registry,
		engine:              engine,
		synthesis:           synthesis,
		publicBaseURL:       publicBaseURL,
		tempDir:             tempDir,
		maxRecordingSeconds: maxRecordingSeconds,
		clock:               clk,
		logger:              logger,
		audioCache:          make(map[string]string),
	}
}

// ServeTurn handles both the interactive and basic voice webhooks: look
// up the CallRecord, consult the Dialog Engine for the current question,
// and return markup that plays/speaks the prompt then records the
// callee, falling back to a basic greeting+record script whenever any
// required state is missing or not yet ready (spec.md §4.4).
func (h *Handler) ServeTurn(c *gin.Context) {
	providerSid := c.PostForm("CallSid")
	recordingCallback := h.publicBaseURL + "/handle-recording"

	if providerSid == "" {
		h.respondFallback(c, recordingCallback)
		return
	}

	rec, err := h.registry.GetByProviderSid(c.Request.Context(), providerSid)
	if err != nil {
		h.logger.Warnf("prompt webhook: call record not found for providerSid=%s, serving fallback", providerSid)
		h.respondFallback(c, recordingCallback)
		return
	}

	meta := rec.Metadata()
	if meta["closing"] == "true" {
		markup, err := buildClosingMarkup(meta["closingText"])
		if err != nil {
			c.Status(http.StatusOK)
			return
		}
		c.Data(http.StatusOK, "application/xml", []byte(markup))
		return
	}

	question, state, err := h.engine.Current(rec.InternalID)
	if err != nil {
		h.logger.Warnf("prompt webhook: no dialog state for call=%s, serving fallback", rec.InternalID)
		h.respondFallback(c, recordingCallback)
		return
	}

	var slots map[string]string
	if state != nil {
		slots = state.ContextSlots
	}
	promptText := dialog.RenderPrompt(question.PromptTemplate, slots)

	audioURL := h.synthesizePromptAudio(c.Request.Context(), providerSid, promptText)

	markup, err := buildTurnMarkup(promptText, audioURL, recordingCallback, h.maxRecordingSeconds)
	if err != nil {
		h.logger.Errorf("prompt webhook: failed to render markup: %v", err)
		h.respondFallback(c, recordingCallback)
		return
	}
	c.Data(http.StatusOK, "application/xml", []byte(markup))
}

// synthesizePromptAudio pre-renders promptText through the Synthesis
// capability and caches it under tempDir as
// question_<providerSid>_<unix_ms>.mp3 (spec.md §6), returning the
// short-lived URL ServePromptAudio will hand it out at. Any failure along
// this path is logged and degrades to "" so ServeTurn falls back to
// VoiceSay instead of ever pointing at a URL with nothing behind it.
func (h *Handler) synthesizePromptAudio(ctx context.Context, providerSid, promptText string) string {
	if h.synthesis == nil || !h.synthesis.Available() || strings.TrimSpace(promptText) == "" {
		return ""
	}

	audio, err := h.synthesis.Synthesize(ctx, promptText)
	if err != nil {
		h.logger.Warnf("prompt webhook: synthesis failed for providerSid=%s, falling back to spoken text: %v", providerSid, err)
		return ""
	}

	if err := os.MkdirAll(h.tempDir, 0o755); err != nil {
		h.logger.Warnf("prompt webhook: prepare temp dir failed: %v", err)
		return ""
	}
	filename := fmt.Sprintf("question_%s_%d.mp3", providerSid, h.clock.Now().UnixMilli())
	path := filepath.Join(h.tempDir, filename)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		h.logger.Warnf("prompt webhook: write synthesized audio failed: %v", err)
		return ""
	}

	h.audioMu.Lock()
	h.audioCache[filename] = path
	h.audioMu.Unlock()

	return fmt.Sprintf("%s/prompt-audio/%s", h.publicBaseURL, filename)
}

// ServePromptAudio handles GET /prompt-audio/:id: a one-shot, short-lived
// serving of the file synthesizePromptAudio cached, deleted from both the
// cache and disk once served (spec.md §6: "served via a short-lived URL,
// then deleted").
func (h *Handler) ServePromptAudio(c *gin.Context) {
	id := filepath.Base(c.Param("id"))

	h.audioMu.Lock()
	path, ok := h.audioCache[id]
	if ok {
		delete(h.audioCache, id)
	}
	h.audioMu.Unlock()

	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	defer os.Remove(path)
	c.File(path)
}

func (h *Handler) respondFallback(c *gin.Context, recordingCallback string) {
	markup, err := buildFallbackMarkup(recordingCallback, h.maxRecordingSeconds)
	if err != nil {
		c.Status(http.StatusOK)
		return
	}
	c.Data(http.StatusOK, "application/xml", []byte(markup))
}
