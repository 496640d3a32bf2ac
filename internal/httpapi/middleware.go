package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/apperrors"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/credential"
)

const (
	ctxKeyID     = "keyId"
	ctxAccountID = "accountId"
)

// AuthMiddleware enforces the `x-api-key` requirement of spec.md §5 on
// every client-facing route except key issuance and health: validate the
// key against the Credential Store (which also enforces the per-window
// rate limits of spec.md §4.1), then stash the resolved identity on the
// gin context for downstream handlers.
func AuthMiddleware(credentials credential.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("x-api-key")
		if key == "" {
			writeError(c, apperrors.New(apperrors.AuthRequired, "missing x-api-key header"))
			c.Abort()
			return
		}

		validated, err := credentials.Validate(c.Request.Context(), key)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}

		c.Set(ctxKeyID, validated.KeyID)
		c.Set(ctxAccountID, validated.AccountID)
		c.Next()
	}
}

func keyIDFrom(c *gin.Context) string {
	v, _ := c.Get(ctxKeyID)
	s, _ := v.(string)
	return s
}

func accountIDFrom(c *gin.Context) string {
	v, _ := c.Get(ctxAccountID)
	s, _ := v.(string)
	return s
}
