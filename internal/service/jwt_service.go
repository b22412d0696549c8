package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"accounts-service/internal/apperr"
)

// TokenService emite y valida access y refresh tokens con secretos distintos.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	method        jwt.SigningMethod
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// TokenConfig agrupa lo que NewTokenService necesita.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	Algorithm     string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenPair es el resultado de emitir ambos tokens para un subject.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

var (
	ErrTokenExpired = apperr.Unauthorized("Token is expired")
	ErrTokenInvalid = apperr.Unauthorized("Could not validate credentials")

	errTokenConfig = errors.New("token service: invalid configuration")
)

var signingMethods = map[string]jwt.SigningMethod{
	jwt.SigningMethodHS256.Alg(): jwt.SigningMethodHS256,
	jwt.SigningMethodHS384.Alg(): jwt.SigningMethodHS384,
	jwt.SigningMethodHS512.Alg(): jwt.SigningMethodHS512,
}

func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if strings.TrimSpace(cfg.AccessSecret) == "" || strings.TrimSpace(cfg.RefreshSecret) == "" {
		return nil, fmt.Errorf("%w: secrets are required", errTokenConfig)
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("%w: access and refresh secrets must differ", errTokenConfig)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: token lifetimes must be positive", errTokenConfig)
	}
	alg := strings.ToUpper(strings.TrimSpace(cfg.Algorithm))
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := signingMethods[alg]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", errTokenConfig, cfg.Algorithm)
	}
	return &TokenService{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		method:        method,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock reemplaza el reloj usado para emitir y validar.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *TokenService) IssueAccess(subject string) (string, error) {
	return s.sign(subject, s.accessSecret, s.accessTTL)
}

func (s *TokenService) IssueRefresh(subject string) (string, error) {
	return s.sign(subject, s.refreshSecret, s.refreshTTL)
}

func (s *TokenService) IssuePair(subject string) (TokenPair, error) {
	access, err := s.IssueAccess(subject)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.IssueRefresh(subject)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyRefresh valida firma y expiracion y devuelve el subject.
func (s *TokenService) VerifyRefresh(token string) (string, error) {
	claims, err := s.parse(token, s.refreshSecret)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}

// VerifyAccess valida la firma y luego compara exp contra el reloj propio,
// de modo que un token vencido reporta ErrTokenExpired y no ErrTokenInvalid.
func (s *TokenService) VerifyAccess(token string) (jwt.RegisteredClaims, error) {
	claims, err := s.parse(token, s.accessSecret)
	if err != nil {
		return jwt.RegisteredClaims{}, err
	}
	if claims.ExpiresAt == nil || !s.now().Before(claims.ExpiresAt.Time) {
		return jwt.RegisteredClaims{}, ErrTokenExpired
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return jwt.RegisteredClaims{}, ErrTokenInvalid
	}
	return claims, nil
}

func (s *TokenService) sign(subject string, secret []byte, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", ErrTokenInvalid
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(s.method, claims).SignedString(secret)
}

func (s *TokenService) parse(tokenString string, secret []byte) (jwt.RegisteredClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return jwt.RegisteredClaims{}, ErrTokenInvalid
	}
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return jwt.RegisteredClaims{}, ErrTokenExpired
		}
		return jwt.RegisteredClaims{}, ErrTokenInvalid
	}
	return claims, nil
}
