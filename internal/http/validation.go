package http

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"accounts-service/internal/apperr"
)

const msgInvalidData = "Invalid data."

var registerTagNames sync.Once

// useJSONFieldNames hace que los errores de validacion usen el nombre JSON.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}

// bindJSON decodifica y valida el body. Ante un fallo responde 422 y devuelve false.
func (h *UserHandler) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, h.logger, invalidDataError(err))
		return false
	}
	return true
}

func invalidDataError(err error) *apperr.Error {
	out := apperr.Unprocessable(msgInvalidData)
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return out.WithField("body", "Request body is not valid JSON.")
	}
	for _, fe := range ve {
		out.WithField(fe.Field(), fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	label := capitalize(fe.Field())
	switch fe.Tag() {
	case "required":
		return label + " is required."
	case "email":
		return label + " is not a valid email address."
	default:
		return label + " is invalid."
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
