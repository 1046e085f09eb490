package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/kiro-gateway/gateway/internal/debuglog"
)

const requestLogKey = "__debuglog_request_log__"

// DebugCapture attaches a per-request debuglog.RequestLog to the Gin
// context whenever recorder is non-nil, whatever the DEBUG_MODE; with
// DEBUG_MODE off the attached log's methods do nothing. With a nil recorder
// it's a pure passthrough. Handlers fetch the log via RequestLogFrom; its
// methods are nil-safe. None of the route handlers calls RequestLogFrom, so
// no request artifacts are recorded through this middleware.
func DebugCapture(recorder *debuglog.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if recorder != nil {
			requestID := c.Writer.Header().Get("X-Request-Id")
			if requestID == "" {
				requestID = c.GetHeader("X-Request-Id")
			}
			c.Set(requestLogKey, recorder.ForRequest(requestID))
		}
		c.Next()
	}
}

// RequestLogFrom returns the request's debuglog.RequestLog, or nil if
// DebugCapture had a nil recorder or wasn't wired for this route.
func RequestLogFrom(c *gin.Context) *debuglog.RequestLog {
	v, ok := c.Get(requestLogKey)
	if !ok {
		return nil
	}
	rl, _ := v.(*debuglog.RequestLog)
	return rl
}
