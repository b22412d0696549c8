package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig agrupa opciones del router que vienen de la configuracion.
type RouterConfig struct {
	AllowOrigins []string
}

// NewRouter configura el router de Gin con middlewares y rutas de cuentas.
func NewRouter(
	logger *zap.Logger,
	cfg RouterConfig,
	accounts AccountService,
	health *HealthHandler,
) *gin.Engine {
	useJSONFieldNames()
	r := gin.New()

	r.Use(
		traceMiddleware(),
		zapLoggerMiddleware(logger),
		recoveryMiddleware(logger),
		cors.New(corsConfig(cfg.AllowOrigins)),
	)

	if health != nil {
		r.GET("/healthz", health.Healthz)
	}

	userH := NewUserHandler(logger, accounts)
	authed := JWTAuthMiddleware(logger, accounts)

	acc := r.Group("/accounts")
	acc.POST("/signup", userH.Signup)
	acc.POST("/verify/otp/", userH.VerifyOTP)
	acc.POST("/login", userH.Login)
	acc.POST("/access/token/new", userH.RefreshToken)
	acc.POST("/forget/password", userH.ForgetPassword)
	acc.POST("/validate/forget/password", userH.ValidateForgetPassword)
	acc.GET("/me", authed, userH.Me)
	acc.POST("/change/password", authed, userH.ChangePassword)
	acc.PUT("/update", authed, userH.UpdateProfile)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Trace-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Trace-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
