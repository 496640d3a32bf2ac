package httpapi

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/apperrors"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/callregistry"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/config"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/connectors"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/credential"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/dialog"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/telephony"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/workerpool"
)

var e164Re = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// CallHandler serves the call-placement and read-model endpoints of
// spec.md §5: POST /call, GET /calls, GET /calls/:id, GET /recordings,
// GET /recordings/:filename, GET /stats, GET /health.
type CallHandler struct {
	cfg       *config.AppConfig
	registry  callregistry.Store
	credentials credential.Store
	telephony telephony.Adapter
	engine    dialog.Engine
	pool      *workerpool.Pool
	postgres  connectors.PostgresConnector
	redis     connectors.RedisConnector
	logger    commons.Logger
}

// NewCallHandler builds the Call Handler.
func NewCallHandler(cfg *config.AppConfig, registry callregistry.Store, credentials credential.Store, adapter telephony.Adapter, engine dialog.Engine, pool *workerpool.Pool, postgres connectors.PostgresConnector, redis connectors.RedisConnector, logger commons.Logger) *CallHandler {
	return &CallHandler{cfg: cfg, registry: registry, credentials: credentials, telephony: adapter, engine: engine, pool: pool, postgres: postgres, redis: redis, logger: logger}
}

type placeCallRequest struct {
	PhoneNumber     string `json:"phoneNumber"`
	CustomMessage   string `json:"customMessage"`
	Question        string `json:"question"`
	CallType        string `json:"callType"`
	Interactive     bool   `json:"interactive"`
	StorytellerID   string `json:"storytellerId"`
	FamilyMemberID  string `json:"familyMemberId"`
	ScheduledCallID string `json:"scheduledCallId"`
}

// PlaceCall handles POST /call: creates the call record, asks the
// Telephony Adapter to place the outbound call, attaches the resulting
// provider sid, and seeds Dialog Engine state for interactive calls
// (spec.md §4.2/§4.3/§5).
func (h *CallHandler) PlaceCall(c *gin.Context) {
	if h.pool.Saturated() {
		writeError(c, apperrors.New(apperrors.ResourceExhausted, "call placement capacity exhausted, try again shortly"))
		return
	}

	var req placeCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.New(apperrors.InvalidInput, "malformed request body"))
		return
	}
	if !e164Re.MatchString(req.PhoneNumber) {
		writeError(c, apperrors.New(apperrors.InvalidInput, "phoneNumber must be E.164 formatted"))
		return
	}

	keyID := keyIDFrom(c)
	accountID := accountIDFrom(c)
	ctx := c.Request.Context()

	kind := callregistry.KindBasic
	if req.Interactive || req.CallType == "interactive" {
		kind = callregistry.KindInteractive
	}

	rec, err := h.registry.Create(ctx, callregistry.CreateRequest{
		CredentialKeyID: keyID,
		AccountID:       accountID,
		CalleeNumber:    req.PhoneNumber,
		CallerIdentity:  callerIdentityKind(h.cfg),
		Question:        req.Question,
		Kind:            kind,
		Metadata: map[string]string{
			"customMessage":   req.CustomMessage,
			"storytellerId":   req.StorytellerID,
			"familyMemberId":  req.FamilyMemberID,
			"scheduledCallId": req.ScheduledCallID,
		},
	})
	if err != nil {
		writeError(c, err)
		return
	}

	promptPath := "/voice"
	if kind == callregistry.KindInteractive {
		promptPath = "/voice-interactive"
	}

	placement, err := h.telephony.PlaceCall(ctx, telephony.PlaceCallRequest{
		Callee: req.PhoneNumber,
		CallerIdentity: telephony.CallerIdentityRequest{
			UseAlphaLabel: h.cfg.Telephony.UseAlphaLabel,
			AlphaLabel:    h.cfg.Telephony.AlphaLabel,
			FallbackPhone: h.cfg.Telephony.FallbackPhone,
		},
		PromptWebhookURL:    h.cfg.PublicBaseURL + promptPath,
		StatusWebhookURL:    h.cfg.PublicBaseURL + "/call-status",
		RecordingWebhookURL: h.cfg.PublicBaseURL + "/handle-recording",
	})
	if err != nil {
		h.logger.Errorf("place call failed for internalId=%s: %v", rec.InternalID, err)
		var rejected *telephony.ProviderRejected
		if errors.As(err, &rejected) {
			writeError(c, apperrors.New(apperrors.UpstreamRejected, rejected.Message).WithDetails(map[string]interface{}{"providerCode": rejected.Code}))
			return
		}
		writeError(c, apperrors.New(apperrors.UpstreamUnavailable, "telephony provider unreachable"))
		return
	}

	if err := h.registry.AttachProviderSid(ctx, rec.InternalID, placement.ProviderSid); err != nil {
		h.logger.Errorf("attach provider sid failed for internalId=%s: %v", rec.InternalID, err)
	}
	if err := h.credentials.IncrementUsage(ctx, keyID, credential.CallUsage); err != nil {
		h.logger.Warnf("increment usage failed for keyId=%s: %v", keyID, err)
	}
	if kind == callregistry.KindInteractive {
		if _, err := h.engine.Begin(rec.InternalID); err != nil {
			h.logger.Errorf("dialog engine begin failed for internalId=%s: %v", rec.InternalID, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"callId":    rec.InternalID,
		"twilioSid": placement.ProviderSid,
		"status":    rec.Status,
		"to":        req.PhoneNumber,
		"metadata": gin.H{
			"kind":            kind,
			"storytellerId":   req.StorytellerID,
			"familyMemberId":  req.FamilyMemberID,
			"scheduledCallId": req.ScheduledCallID,
			"fallbackUsed":    placement.FallbackUsed,
		},
	})
}

func callerIdentityKind(cfg *config.AppConfig) callregistry.CallerIdentityKind {
	if cfg.Telephony.UseAlphaLabel {
		return callregistry.CallerIdentityAlphaLabel
	}
	return callregistry.CallerIdentityPhoneNumber
}

// ListCalls handles GET /calls, scoped to the authenticated credential.
func (h *CallHandler) ListCalls(c *gin.Context) {
	filters := callregistry.ListFilters{Status: callregistry.Status(c.Query("status"))}
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			filters.Limit = n
		}
	}
	records, err := h.registry.ListByCredential(c.Request.Context(), keyIDFrom(c), filters)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": records})
}

// GetCall handles GET /calls/:id.
func (h *CallHandler) GetCall(c *gin.Context) {
	rec, err := h.registry.GetByInternalID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if rec.CredentialKeyID != keyIDFrom(c) {
		writeError(c, apperrors.New(apperrors.NotFound, "call record not found"))
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListRecordings handles GET /recordings: the filenames landed by the
// Recording Fetcher (C7) under RecordingsDir.
func (h *CallHandler) ListRecordings(c *gin.Context) {
	entries, err := os.ReadDir(h.cfg.RecordingsDir)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"recordings": []string{}})
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	c.JSON(http.StatusOK, gin.H{"recordings": names})
}

// GetRecording handles GET /recordings/:filename. filepath.Base strips any
// directory components from the client-supplied filename so a path like
// "../../etc/passwd" can't escape RecordingsDir.
func (h *CallHandler) GetRecording(c *gin.Context) {
	filename := filepath.Base(c.Param("filename"))
	path := filepath.Join(h.cfg.RecordingsDir, filename)
	if _, err := os.Stat(path); err != nil {
		writeError(c, apperrors.New(apperrors.NotFound, "recording not found"))
		return
	}
	c.File(path)
}

// Stats handles GET /stats: a per-credential breakdown of call counts by
// status plus the rolling usage-counter snapshot backing rate limiting.
func (h *CallHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	keyID := keyIDFrom(c)

	records, err := h.registry.ListByCredential(ctx, keyID, callregistry.ListFilters{})
	if err != nil {
		writeError(c, err)
		return
	}
	counts := map[callregistry.Status]int{}
	for _, rec := range records {
		counts[rec.Status]++
	}

	usage, err := h.credentials.GetUsage(ctx, keyID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"totalCalls": len(records), "byStatus": counts, "usage": usage})
}

// Health handles GET /health: probes the postgres and redis connectors
// the way the teacher's healthcheck router splits readiness from plain
// liveness, reporting 503 if either dependency is unreachable.
func (h *CallHandler) Health(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	if err := h.postgres.Ping(); err != nil {
		checks["postgres"] = "unreachable"
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	if err := h.redis.Ping(c.Request.Context()); err != nil {
		checks["redis"] = "unreachable"
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "checks": checks})
}
