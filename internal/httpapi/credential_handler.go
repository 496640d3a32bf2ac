package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/apperrors"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/credential"
)

// CredentialHandler serves POST /generate-api-key (spec.md §5).
type CredentialHandler struct {
	store  credential.Store
	logger commons.Logger
}

// NewCredentialHandler builds the Credential Handler.
func NewCredentialHandler(store credential.Store, logger commons.Logger) *CredentialHandler {
	return &CredentialHandler{store: store, logger: logger}
}

type generateAPIKeyRequest struct {
	ClientName     string `json:"clientName"`
	Email          string `json:"email"`
	CompanyWebsite string `json:"companyWebsite"`
	PhoneNumber    string `json:"phoneNumber"`
	Description    string `json:"description"`
}

type generateAPIKeyResponse struct {
	APIKey      string   `json:"apiKey"`
	KeyID       string   `json:"keyId"`
	CreatedAt   string   `json:"createdAt"`
	Permissions []string `json:"permissions"`
	Limits      struct {
		PerHour  int `json:"perHour"`
		PerDay   int `json:"perDay"`
		PerMonth int `json:"perMonth"`
	} `json:"limits"`
	Warning string `json:"warning"`
}

// GenerateAPIKey issues a new credential (spec.md §4.1/§5). The plaintext
// key is returned exactly once in this response body and never logged or
// persisted.
func (h *CredentialHandler) GenerateAPIKey(c *gin.Context) {
	var req generateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	var missing []string
	if req.ClientName == "" {
		missing = append(missing, "clientName")
	}
	if req.Email == "" {
		missing = append(missing, "email")
	}
	if req.CompanyWebsite == "" {
		missing = append(missing, "companyWebsite")
	}
	if req.PhoneNumber == "" {
		missing = append(missing, "phoneNumber")
	}
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields", "required": missing})
		return
	}

	issued, err := h.store.Issue(c.Request.Context(), req.ClientName, req.Email, req.CompanyWebsite, req.PhoneNumber, req.Description)
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) && isUnauthorizedDomain(appErr) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized domain"})
			return
		}
		writeError(c, err)
		return
	}

	resp := generateAPIKeyResponse{
		APIKey:      issued.Key,
		KeyID:       issued.KeyID,
		CreatedAt:   issued.CreatedAt.Format(time.RFC3339),
		Permissions: issued.Permissions,
		Warning:     "store this key securely; it will not be shown again",
	}
	resp.Limits.PerHour = issued.Limits.PerHour
	resp.Limits.PerDay = issued.Limits.PerDay
	resp.Limits.PerMonth = issued.Limits.PerMonth

	c.JSON(http.StatusCreated, resp)
}

func isUnauthorizedDomain(appErr *apperrors.Error) bool {
	if appErr == nil || appErr.Details == nil {
		return false
	}
	code, _ := appErr.Details["code"].(string)
	return code == "domain_rejected"
}
