package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"accounts-service/internal/apperr"
	"accounts-service/internal/domain"
	"accounts-service/internal/repository"
	"accounts-service/internal/trace"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 72
	minPhoneLen    = 10
	maxPhoneLen    = 15
	maxTextLen     = 225
	otpLen         = 4

	notifyTimeout = 5 * time.Second

	msgPasswordTooShort = "Password must be at least 8 characters long"
	msgPasswordTooLong  = "Password must be at most 72 bytes long"
	msgPasswordMismatch = "Password and confirm_password must be same must match"
	msgPhoneTooShort    = "Phone must be at least 10 characters long"
	msgPhoneTooLong     = "Phone must be at most 15 characters long"
	msgOTPLength        = "OTP must be 4 characters long"
	msgInvalidEmail     = "Invalid email address"
	msgPhoneTaken       = "Phone number already registered."
	msgUserNotActive    = "User not active"
	msgUserAlreadyOn    = "User is already active."
)

// PasswordHasher abstrae el hasheo de contraseñas.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) error
	RejectIfSame(newPassword, oldHash string) error
}

// OTPManager emite y consume codigos de un solo uso por email.
type OTPManager interface {
	Issue(ctx context.Context, email string) (string, error)
	Verify(ctx context.Context, email, code string) error
}

// TokenIssuer emite y valida tokens de acceso y refresh.
type TokenIssuer interface {
	IssueAccess(subject string) (string, error)
	IssuePair(subject string) (TokenPair, error)
	VerifyRefresh(token string) (string, error)
	VerifyAccess(token string) (jwt.RegisteredClaims, error)
}

// Notifier encola eventos de correo para el worker.
type Notifier interface {
	Publish(ctx context.Context, event domain.EmailEvent) error
}

// AuthService orquesta registro, verificacion, login y manejo de contraseñas.
type AuthService struct {
	logger   *zap.Logger
	users    repository.UserRepository
	hasher   PasswordHasher
	otp      OTPManager
	tokens   TokenIssuer
	notifier Notifier
	validate *validator.Validate

	inflight sync.WaitGroup
}

func NewAuthService(
	logger *zap.Logger,
	users repository.UserRepository,
	hasher PasswordHasher,
	otp OTPManager,
	tokens TokenIssuer,
	notifier Notifier,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		logger:   logger,
		users:    users,
		hasher:   hasher,
		otp:      otp,
		tokens:   tokens,
		notifier: notifier,
		validate: validator.New(),
	}
}

type RegisterInput struct {
	Email           string
	FullName        string
	Phone           string
	Address         string
	Password        string
	ConfirmPassword string
}

type ResetPasswordInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	OTP             string
}

type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

// LoginResult es la respuesta de un login exitoso.
type LoginResult struct {
	AccessToken  string               `json:"access_token"`
	RefreshToken string               `json:"refresh_token"`
	User         domain.PublicProfile `json:"user"`
}

// Register crea la cuenta inactiva y dispara el correo con el OTP.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate.Var(in.Email, "required,email"); err != nil {
		return domain.User{}, apperr.Validation(msgInvalidEmail).WithField("email", msgInvalidEmail)
	}
	if err := checkNewPassword(in.Password, in.ConfirmPassword); err != nil {
		return domain.User{}, err
	}
	if err := checkPhone(in.Phone); err != nil {
		return domain.User{}, err
	}
	if err := checkText(
		textField{"email", in.Email},
		textField{"full_name", in.FullName},
		textField{"address", in.Address},
	); err != nil {
		return domain.User{}, err
	}

	taken, err := s.users.ExistsActiveEmail(ctx, in.Email)
	if err != nil {
		return domain.User{}, err
	}
	if taken {
		return domain.User{}, apperr.Conflict(fmt.Sprintf("User with email %s already exists", in.Email))
	}
	taken, err = s.users.ExistsActivePhone(ctx, in.Phone)
	if err != nil {
		return domain.User{}, err
	}
	if taken {
		return domain.User{}, apperr.Conflict(msgPhoneTaken).WithField("phone", in.Phone+" already registered.")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.Create(ctx, domain.NewUser{
		Email:        in.Email,
		Phone:        in.Phone,
		FullName:     in.FullName,
		Address:      in.Address,
		PasswordHash: hash,
	})
	if err != nil {
		return domain.User{}, err
	}

	code, err := s.otp.Issue(ctx, user.Email)
	if err != nil {
		// Sin OTP la cuenta no puede activarse; se libera el email para reintentar.
		if delErr := s.users.SoftDelete(ctx, user.ID); delErr != nil {
			trace.Logger(ctx, s.logger).Error("release unverifiable account failed",
				zap.Int64("user_id", user.ID), zap.Error(delErr))
		}
		return domain.User{}, err
	}
	s.dispatch(ctx, domain.EventRegisterEmail, user, code)
	return user, nil
}

// VerifyRegistration activa la cuenta si el OTP coincide. Una cuenta ya activa
// falla con Conflict sin consumir el codigo.
func (s *AuthService) VerifyRegistration(ctx context.Context, email, code string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.IsActive {
		return apperr.Conflict(msgUserAlreadyOn)
	}
	if err := s.otp.Verify(ctx, user.Email, code); err != nil {
		return err
	}
	return s.users.Activate(ctx, user.ID)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := s.activeUser(ctx, email)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.hasher.Verify(password, user.Password); err != nil {
		return LoginResult{}, err
	}
	pair, err := s.tokens.IssuePair(user.Email)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue tokens: %w", err)
	}
	return LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         user.Profile(),
	}, nil
}

// Refresh emite un access token nuevo. El subject debe seguir siendo una
// cuenta activa y no borrada.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	subject, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", err
	}
	user, err := s.users.FindByEmail(ctx, subject)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return "", ErrTokenInvalid
		}
		return "", err
	}
	if !user.IsActive {
		return "", ErrTokenInvalid
	}
	access, err := s.tokens.IssueAccess(user.Email)
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	return access, nil
}

func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.activeUser(ctx, email)
	if err != nil {
		return err
	}
	code, err := s.otp.Issue(ctx, user.Email)
	if err != nil {
		return err
	}
	s.dispatch(ctx, domain.EventForgetPasswordEmail, user, code)
	return nil
}

// ResetPassword cambia la contraseña de una cuenta activa con el OTP enviado
// por ForgotPassword. Devuelve el email afectado.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) (string, error) {
	if err := checkNewPassword(in.Password, in.ConfirmPassword); err != nil {
		return "", err
	}
	if len(in.OTP) != otpLen {
		return "", apperr.Validation(msgOTPLength)
	}
	user, err := s.activeUser(ctx, in.Email)
	if err != nil {
		return "", err
	}
	if err := s.otp.Verify(ctx, user.Email, in.OTP); err != nil {
		return "", err
	}
	if err := s.replacePassword(ctx, user, in.Password); err != nil {
		return "", err
	}
	return user.Email, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, user domain.User, in ChangePasswordInput) error {
	if err := checkNewPassword(in.NewPassword, in.ConfirmPassword); err != nil {
		return err
	}
	if err := s.hasher.Verify(in.CurrentPassword, user.Password); err != nil {
		return err
	}
	return s.replacePassword(ctx, user, in.NewPassword)
}

// UpdateProfile aplica solo los campos presentes en el patch.
func (s *AuthService) UpdateProfile(ctx context.Context, user domain.User, patch domain.UserPatch) (domain.User, error) {
	if patch.Phone != nil {
		if err := checkPhone(*patch.Phone); err != nil {
			return domain.User{}, err
		}
	}
	var fields []textField
	if patch.FullName != nil {
		fields = append(fields, textField{"full_name", *patch.FullName})
	}
	if patch.Address != nil {
		fields = append(fields, textField{"address", *patch.Address})
	}
	if err := checkText(fields...); err != nil {
		return domain.User{}, err
	}
	if patch.Empty() {
		return user, nil
	}
	return s.users.UpdateProfile(ctx, user.ID, patch)
}

// CurrentUser resuelve la cuenta dueña de un access token.
func (s *AuthService) CurrentUser(ctx context.Context, accessToken string) (domain.User, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.users.FindByEmail(ctx, claims.Subject)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) && appErr.Kind == apperr.KindNotFound {
			return domain.User{}, apperr.NotFound(appErr.Message)
		}
		return domain.User{}, err
	}
	return user, nil
}

// Wait bloquea hasta que terminen los envios de notificaciones en curso.
func (s *AuthService) Wait() {
	s.inflight.Wait()
}

func (s *AuthService) activeUser(ctx context.Context, email string) (domain.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return domain.User{}, err
	}
	if !user.IsActive {
		return domain.User{}, apperr.NotFound(msgUserNotActive)
	}
	return user, nil
}

func (s *AuthService) replacePassword(ctx context.Context, user domain.User, password string) error {
	if err := s.hasher.RejectIfSame(password, user.Password); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.UpdatePassword(ctx, user.ID, hash)
}

// dispatch publica el evento fuera del camino del request. Un fallo se
// registra y no afecta al flujo que lo origino.
func (s *AuthService) dispatch(ctx context.Context, eventName string, user domain.User, code string) {
	if s.notifier == nil {
		return
	}
	event := domain.EmailEvent{
		TraceID:   trace.ID(ctx),
		To:        user.Email,
		EventName: eventName,
		OTP:       code,
		FullName:  user.FullName,
	}
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		if err := s.notifier.Publish(bg, event); err != nil {
			trace.Logger(bg, s.logger).Warn("enqueue email event failed",
				zap.String("event_name", eventName),
				zap.String("to", event.To),
				zap.Error(err),
			)
		}
	}()
}

func checkNewPassword(password, confirm string) error {
	if len(password) < minPasswordLen {
		return apperr.Validation(msgPasswordTooShort)
	}
	// bcrypt solo acepta hasta 72 bytes.
	if len(password) > maxPasswordLen {
		return apperr.Validation(msgPasswordTooLong)
	}
	if password != confirm {
		return apperr.Validation(msgPasswordMismatch)
	}
	return nil
}

func checkPhone(phone string) error {
	n := utf8.RuneCountInString(phone)
	if n < minPhoneLen {
		return apperr.Validation(msgPhoneTooShort)
	}
	if n > maxPhoneLen {
		return apperr.Validation(msgPhoneTooLong)
	}
	return nil
}

type textField struct {
	name  string
	value string
}

// checkText aplica el limite de las columnas VARCHAR(225).
func checkText(fields ...textField) error {
	var out *apperr.Error
	for _, f := range fields {
		if utf8.RuneCountInString(f.value) <= maxTextLen {
			continue
		}
		if out == nil {
			out = apperr.Validation(fmt.Sprintf("%s must be at most %d characters long", capitalizeField(f.name), maxTextLen))
		}
		out.WithField(f.name, fmt.Sprintf("at most %d characters", maxTextLen))
	}
	if out == nil {
		return nil
	}
	return out
}

func capitalizeField(name string) string {
	name = strings.ReplaceAll(name, "_", " ")
	return strings.ToUpper(name[:1]) + name[1:]
}
