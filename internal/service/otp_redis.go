package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"accounts-service/internal/apperr"
)

const msgOTPFailed = "OTP verification failed. Please try again."

// Borra la clave solo si el codigo coincide. Devuelve 1 al consumir, 0 si no.
const redisOTPConsumeScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	otpMin       = 1000
	otpSpan      = 9000
	otpOpTimeout = 500 * time.Millisecond
)

type redisOTPClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisOTPManager guarda un codigo vivo por email en Redis con TTL.
type RedisOTPManager struct {
	client redisOTPClient
	ttl    time.Duration
	prefix string
}

func NewRedisOTPManager(client redisOTPClient, ttl time.Duration) *RedisOTPManager {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisOTPManager{
		client: client,
		ttl:    ttl,
		prefix: "otp:",
	}
}

// Issue genera un codigo de 4 digitos y pisa cualquier codigo previo del email.
func (m *RedisOTPManager) Issue(ctx context.Context, email string) (string, error) {
	code, err := generateOTPCode()
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, otpOpTimeout)
	defer cancel()
	if err := m.client.Set(ctx, m.key(email), code, m.ttl).Err(); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	return code, nil
}

// Verify consume el codigo si coincide. Mismatch, ausencia y expiracion
// devuelven el mismo error.
func (m *RedisOTPManager) Verify(ctx context.Context, email, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return apperr.Validation(msgOTPFailed)
	}
	ctx, cancel := context.WithTimeout(ctx, otpOpTimeout)
	defer cancel()
	n, err := m.client.Eval(ctx, redisOTPConsumeScript, []string{m.key(email)}, code).Int()
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	if n != 1 {
		return apperr.Validation(msgOTPFailed)
	}
	return nil
}

func (m *RedisOTPManager) key(email string) string {
	return m.prefix + normalizeEmail(email)
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+otpMin), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
