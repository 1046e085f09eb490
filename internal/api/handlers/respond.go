package handlers

import (
	"github.com/gin-gonic/gin"
	apierrors "github.com/kiro-gateway/gateway/internal/errors"
)

// respondError writes err (coerced to an *apierrors.AppError) as the
// gateway's standard `{"error":{"message":…,"type":…}}` body, records it
// against the metrics collector's error counter, and aborts the context.
func (s *State) respondError(c *gin.Context, err error) {
	appErr := apierrors.AsAppError(err)
	if s.Metrics != nil {
		s.Metrics.RecordError(errorTypeFromAppError(string(appErr.ErrType)))
	}
	c.Data(appErr.HTTPStatusCode, "application/json", appErr.ToJSON())
	c.Abort()
}
