package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ballouchi/internal/logger"
	"ballouchi/internal/models"
	"ballouchi/internal/services"
)

type AuthHandler struct {
	verification *services.VerificationService
	sessions     *services.SessionService
	log          *zap.Logger
}

func NewAuthHandler(verification *services.VerificationService, sessions *services.SessionService, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{verification: verification, sessions: sessions, log: log}
}

type SignupResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

type SignInResponse struct {
	Token string         `json:"token"`
	User  models.Summary `json:"user"`
}

// @Summary      Регистрация
// @Description  Creates an unverified account and emails a 4-digit verification code
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.SignupRequest  true  "Signup data"
// @Success      201   {object}  SignupResponse
// @Failure      400   {object}  MessageResponse
// @Failure      503   {object}  MessageResponse
// @Router       /signup [post]
func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "signup", err, "Username, a valid email and password are required")
		return
	}

	u, err := h.verification.Signup(c.Request.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		respondError(c, h.log, "signup", err,
			errorCase{services.ErrConflict, http.StatusBadRequest, "Email already in use"},
			argumentCase,
		)
		return
	}

	logger.WithContext(c.Request.Context(), h.log).Info("[auth][signup] registered", zap.String("email", logger.MaskEmail(u.Email)))
	c.JSON(http.StatusCreated, SignupResponse{
		Message: "User registered successfully! Please check your email for verification.",
		Email:   u.Email,
	})
}

// @Summary      Вход в систему
// @Description  Authenticates a verified account and returns a 1h session token
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.LoginRequest  true  "Credentials"
// @Success      200   {object}  SignInResponse
// @Failure      400   {object}  MessageResponse
// @Failure      401   {object}  MessageResponse
// @Failure      404   {object}  MessageResponse
// @Router       /signin [post]
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "signin", err, "Email and password are required")
		return
	}

	res, err := h.sessions.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.log, "signin", err,
			errorCase{services.ErrNotFound, http.StatusNotFound, "User not found"},
			errorCase{services.ErrUnverified, http.StatusUnauthorized, "Please verify your email first"},
			errorCase{services.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials"},
			argumentCase,
		)
		return
	}

	c.JSON(http.StatusOK, SignInResponse{Token: res.Token, User: res.User})
}
