package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"accounts-service/internal/apperr"
	"accounts-service/internal/domain"
	"accounts-service/internal/service"
)

// AccountService es lo que los handlers necesitan del orquestador.
type AccountService interface {
	Register(ctx context.Context, in service.RegisterInput) (domain.User, error)
	VerifyRegistration(ctx context.Context, email, code string) error
	Login(ctx context.Context, email, password string) (service.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, in service.ResetPasswordInput) (string, error)
	ChangePassword(ctx context.Context, user domain.User, in service.ChangePasswordInput) error
	UpdateProfile(ctx context.Context, user domain.User, patch domain.UserPatch) (domain.User, error)
	CurrentUser(ctx context.Context, accessToken string) (domain.User, error)
}

// UserHandler mantiene dependencias para endpoints de cuentas.
type UserHandler struct {
	logger   *zap.Logger
	accounts AccountService
}

func NewUserHandler(logger *zap.Logger, accounts AccountService) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{logger: logger, accounts: accounts}
}

// Signup maneja POST /accounts/signup.
func (h *UserHandler) Signup(c *gin.Context) {
	var req struct {
		Email           string `json:"email" binding:"required,email"`
		FullName        string `json:"full_name" binding:"required"`
		Phone           string `json:"phone" binding:"required"`
		Address         string `json:"address" binding:"required"`
		Password        string `json:"password" binding:"required"`
		ConfirmPassword string `json:"confirm_password" binding:"required"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	user, err := h.accounts.Register(c.Request.Context(), service.RegisterInput{
		Email:           req.Email,
		FullName:        req.FullName,
		Phone:           req.Phone,
		Address:         req.Address,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusCreated, "User created successfully, please check your email for verification.", user.Profile())
}

// VerifyOTP maneja POST /accounts/verify/otp/.
func (h *UserHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		OTP   string `json:"otp" binding:"required"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.accounts.VerifyRegistration(c.Request.Context(), req.Email, req.OTP); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "Email verified successfully.", nil)
}

// Login maneja POST /accounts/login.
func (h *UserHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	res, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "Login successful", res)
}

// RefreshToken maneja POST /accounts/access/token/new.
func (h *UserHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	access, err := h.accounts.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "Token created successfully", gin.H{"access_token": access})
}

// Me maneja GET /accounts/me.
func (h *UserHandler) Me(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	respondOK(c, http.StatusOK, "User details retrieved successfully.", user.Details())
}

// ForgetPassword maneja POST /accounts/forget/password.
func (h *UserHandler) ForgetPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.accounts.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "Forget password email with OTP has been sent.", nil)
}

// ValidateForgetPassword maneja POST /accounts/validate/forget/password.
func (h *UserHandler) ValidateForgetPassword(c *gin.Context) {
	var req struct {
		Email           string `json:"email" binding:"required,email"`
		Password        string `json:"password" binding:"required"`
		ConfirmPassword string `json:"confirm_password" binding:"required"`
		OTP             string `json:"otp" binding:"required"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	email, err := h.accounts.ResetPassword(c.Request.Context(), service.ResetPasswordInput{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		OTP:             req.OTP,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondWarning(c, http.StatusOK, "Password changed successfully", nil, "Password changed successfully for user "+email)
}

// ChangePassword maneja POST /accounts/change/password.
func (h *UserHandler) ChangePassword(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req struct {
		CurrentPassword string `json:"current_password" binding:"required"`
		NewPassword     string `json:"new_password" binding:"required"`
		ConfirmPassword string `json:"confirm_password" binding:"required"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	err := h.accounts.ChangePassword(c.Request.Context(), user, service.ChangePasswordInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "Password changed successfully", nil)
}

// UpdateProfile maneja PUT /accounts/update.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var patch domain.UserPatch
	if !h.bindJSON(c, &patch) {
		return
	}

	if _, err := h.accounts.UpdateProfile(c.Request.Context(), user, patch); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "User details updated successfully", nil)
}

func (h *UserHandler) currentUser(c *gin.Context) (domain.User, bool) {
	user, ok := CurrentUser(c)
	if !ok {
		respondError(c, h.logger, apperr.Unauthorized(msgNotAuthenticated))
		return domain.User{}, false
	}
	return user, true
}
