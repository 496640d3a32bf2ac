package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/apperrors"
)

// writeError renders err as the structured {error, message, details?}
// envelope of spec.md §7, using the Code->HTTP status mapping carried on
// apperrors.Error. An error that isn't already one of ours is folded into
// apperrors.Internal rather than leaking its raw message to the client.
func writeError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		c.JSON(appErr.ErrCode.HTTPStatus(), appErr)
		return
	}
	c.JSON(http.StatusInternalServerError, apperrors.New(apperrors.Internal, "internal error"))
}
