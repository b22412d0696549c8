package trace

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Header es el header HTTP con el que se propaga el trace id.
const Header = "X-Trace-ID"

type traceKey struct{}

// WithID devuelve un contexto que transporta el trace id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// ID obtiene el trace id del contexto, o "" si no hay.
func ID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// NewID genera un trace id nuevo.
func NewID() string {
	return uuid.NewString()
}

// FromHeader usa el valor recibido si no esta vacio; si no, genera uno.
func FromHeader(value string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return NewID()
}

// Field devuelve el campo zap con el trace id del contexto.
func Field(ctx context.Context) zap.Field {
	return zap.String("trace_id", ID(ctx))
}

// Logger devuelve logger con el trace id ya adjunto.
func Logger(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.With(Field(ctx))
}
