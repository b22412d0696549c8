package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"accounts-service/internal/apperr"
	"accounts-service/internal/trace"
)

const (
	redacted      = "******"
	maxLoggedBody = 64 << 10
)

var sensitiveFields = map[string]struct{}{
	"password":         {},
	"confirm_password": {},
	"new_password":     {},
	"current_password": {},
	"access_token":     {},
	"refresh_token":    {},
}

// traceMiddleware toma X-Trace-ID o genera uno y lo deja en el contexto del request.
func traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := trace.FromHeader(c.GetHeader(trace.Header))
		c.Request = c.Request.WithContext(trace.WithID(c.Request.Context(), id))
		c.Writer.Header().Set(trace.Header, id)
		c.Next()
	}
}

// zapLoggerMiddleware registra cada request con el payload sin secretos.
// El nivel depende del status: 5xx error, 4xx warn, resto info.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		payload := readPayload(c)
		c.Next()

		status := c.Writer.Status()
		level := zapcore.InfoLevel
		switch {
		case status >= http.StatusInternalServerError:
			level = zapcore.ErrorLevel
		case status >= http.StatusBadRequest:
			level = zapcore.WarnLevel
		}
		trace.Logger(c.Request.Context(), logger).Log(level, "request",
			zap.String("method", c.Request.Method),
			zap.String("url", c.Request.URL.Path),
			zap.Int("status_code", status),
			zap.Duration("process_time", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Any("request_payload", payload),
		)
	}
}

// recoveryMiddleware convierte un panic en un 500 con el envelope de error.
func recoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		trace.Logger(c.Request.Context(), logger).Error("panic recovered", zap.Any("panic", recovered))
		appErr := apperr.Internal(fmt.Errorf("%v", recovered))
		c.AbortWithStatusJSON(appErr.Status(), errorEnvelope{Message: appErr.Message})
	})
}

// readPayload lee el body para el log y lo repone para los handlers.
func readPayload(c *gin.Context) any {
	if c.Request.Body == nil {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxLoggedBody))
	if err != nil {
		return nil
	}
	rest := c.Request.Body
	c.Request.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(body), rest), Closer: rest}
	if len(body) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return string(body)
	}
	return sanitize(decoded)
}

type readCloser struct {
	io.Reader
	io.Closer
}

func sanitize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if _, secret := sensitiveFields[k]; secret {
				out[k] = redacted
				continue
			}
			out[k] = sanitize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitize(item)
		}
		return out
	default:
		return v
	}
}
