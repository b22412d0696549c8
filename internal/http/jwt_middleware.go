package http

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"accounts-service/internal/apperr"
	"accounts-service/internal/domain"
)

const (
	currentUserKey      = "current_user"
	msgNotAuthenticated = "Not authenticated"
)

type currentUserResolver interface {
	CurrentUser(ctx context.Context, accessToken string) (domain.User, error)
}

// JWTAuthMiddleware resuelve el bearer token a la cuenta dueña y la guarda
// en el contexto de gin.
func JWTAuthMiddleware(logger *zap.Logger, resolver currentUserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		scheme, token, ok := strings.Cut(header, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			respondError(c, logger, apperr.Unauthorized(msgNotAuthenticated))
			return
		}

		user, err := resolver.CurrentUser(c.Request.Context(), token)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// CurrentUser obtiene la cuenta autenticada desde el contexto.
func CurrentUser(c *gin.Context) (domain.User, bool) {
	val, ok := c.Get(currentUserKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := val.(domain.User)
	return user, ok
}
