package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"accounts-service/internal/apperr"
	"accounts-service/internal/trace"
)

// successEnvelope es el cuerpo comun de toda respuesta exitosa.
type successEnvelope struct {
	Message string  `json:"message"`
	Data    any     `json:"data"`
	Warning *string `json:"warning"`
}

// errorEnvelope es el cuerpo comun de toda respuesta de error.
type errorEnvelope struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func respondOK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, successEnvelope{Message: message, Data: data})
}

func respondWarning(c *gin.Context, status int, message string, data any, warning string) {
	c.JSON(status, successEnvelope{Message: message, Data: data, Warning: &warning})
}

// respondError traduce err al taxonomy y escribe el envelope de error.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	appErr := apperr.Classify(err)
	if appErr.Kind == apperr.KindInternal || appErr.Kind == apperr.KindUnavailable {
		trace.Logger(c.Request.Context(), logger).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("kind", appErr.Kind.String()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(appErr.Status(), errorEnvelope{Message: appErr.Message, Errors: appErr.Fields})
}
