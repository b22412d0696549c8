package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// Kind clasifica un error de dominio y determina su status HTTP.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnprocessable
	KindUnauthorized
	KindNotFound
	KindConflict
	KindUnavailable
)

const (
	msgStoreUnavailable = "Sorry, but the database is either offline or not accepting connections."
	msgInternalPrefix   = "Sorry, something went wrong in our end: "
)

// Status devuelve el codigo HTTP asociado al Kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnprocessable:
		return http.StatusUnprocessableEntity
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnprocessable:
		return "unprocessable"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error es el error tipado que cruza los limites entre componentes.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status devuelve el codigo HTTP del error.
func (e *Error) Status() int {
	return e.Kind.Status()
}

// WithField agrega un mensaje por campo y devuelve el mismo error.
func (e *Error) WithField(field, msg string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
	return e
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Validation(msg string) *Error    { return New(KindValidation, msg) }
func Unprocessable(msg string) *Error { return New(KindUnprocessable, msg) }
func Unauthorized(msg string) *Error  { return New(KindUnauthorized, msg) }
func NotFound(msg string) *Error      { return New(KindNotFound, msg) }
func Conflict(msg string) *Error      { return New(KindConflict, msg) }

// Unavailable marca un fallo de conectividad con un recurso externo.
func Unavailable(err error) *Error {
	return &Error{Kind: KindUnavailable, Message: msgStoreUnavailable, Err: err}
}

// Internal envuelve un fallo inesperado; el mensaje repite la causa.
func Internal(err error) *Error {
	msg := msgInternalPrefix
	if err != nil {
		msg += err.Error()
	}
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// IsKind reporta si err (o algun error envuelto) es un *Error del kind dado.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// Classify traduce cualquier error al taxonomy. Los *Error pasan tal cual;
// fallos de conexion se vuelven Unavailable y el resto Internal.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if isConnectivity(err) {
		return Unavailable(err)
	}
	return Internal(err)
}

func isConnectivity(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.ErrPoolTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
