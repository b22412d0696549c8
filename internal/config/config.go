package config

import (
	"errors"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	Env          string   `env:"ENV" envDefault:"development"`
	HTTPPort     string   `env:"HTTP_PORT" envDefault:"8080"`
	AllowOrigins []string `env:"ALLOW_ORIGINS" envSeparator:"," envDefault:"*"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"1"`

	RedisAddr     string `env:"REDIS_ADDR,required"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	OTPTTLSeconds int `env:"OTP_TTL_SECONDS" envDefault:"600"`

	JWTSecret                 string `env:"JWT_SECRET_KEY,required"`
	JWTRefreshSecret          string `env:"JWT_REFRESH_SECRET_KEY,required"`
	JWTAlgorithm              string `env:"ALGORITHM" envDefault:"HS256"`
	AccessTokenExpireMinutes  int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES,required"`
	RefreshTokenExpireMinutes int    `env:"REFRESH_TOKEN_EXPIRE_MINUTES,required"`

	EmailQueue       string `env:"EMAIL_QUEUE" envDefault:"email_queue"`
	EmailQueueMaxLen int64  `env:"EMAIL_QUEUE_MAXLEN" envDefault:"10000"`
	MailerGroup      string `env:"MAILER_GROUP" envDefault:"mailer"`
	MailerConsumer   string `env:"MAILER_CONSUMER" envDefault:"mailer-1"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`
}

var (
	ErrSameJWTSecrets = errors.New("JWT_SECRET_KEY and JWT_REFRESH_SECRET_KEY must differ")
	ErrTokenTTL       = errors.New("token expiry minutes must be positive")
	ErrOTPTTL         = errors.New("OTP_TTL_SECONDS must be positive")
	ErrDBConns        = errors.New("DB_MIN_CONNS must not exceed DB_MAX_CONNS")
)

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate revisa reglas que los tags de env no pueden expresar.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == strings.TrimSpace(c.JWTRefreshSecret) {
		return ErrSameJWTSecrets
	}
	if c.AccessTokenExpireMinutes <= 0 || c.RefreshTokenExpireMinutes <= 0 {
		return ErrTokenTTL
	}
	if c.OTPTTLSeconds <= 0 {
		return ErrOTPTTL
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return ErrDBConns
	}
	return nil
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpireMinutes) * time.Minute
}

func (c *Config) OTPTTL() time.Duration {
	return time.Duration(c.OTPTTLSeconds) * time.Second
}
