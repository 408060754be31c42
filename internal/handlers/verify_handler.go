package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ballouchi/internal/models"
	"ballouchi/internal/services"
)

type VerifyHandler struct {
	verification *services.VerificationService
	log          *zap.Logger
}

func NewVerifyHandler(verification *services.VerificationService, log *zap.Logger) *VerifyHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &VerifyHandler{verification: verification, log: log}
}

// @Summary      Подтверждение email
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.VerifyRequest  true  "Email and code"
// @Success      200   {object}  MessageResponse
// @Failure      400   {object}  MessageResponse
// @Failure      404   {object}  MessageResponse
// @Router       /verify [post]
func (h *VerifyHandler) Verify(c *gin.Context) {
	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "verify", err, "Email and code are required")
		return
	}

	err := h.verification.Verify(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		respondError(c, h.log, "verify", err,
			errorCase{services.ErrNoPendingVerification, http.StatusNotFound, "No pending verification for this email"},
			errorCase{services.ErrNotFound, http.StatusNotFound, "User not found"},
			errorCase{services.ErrInvalidCode, http.StatusBadRequest, "Invalid verification code"},
			errorCase{services.ErrCodeExpired, http.StatusBadRequest, "Verification code has expired, please request a new one"},
			argumentCase,
		)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Email successfully verified"})
}

// @Summary      Повторная отправка кода
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.EmailRequest  true  "Email"
// @Success      200   {object}  MessageResponse
// @Failure      400   {object}  MessageResponse
// @Failure      404   {object}  MessageResponse
// @Failure      503   {object}  MessageResponse
// @Router       /resend-code [post]
func (h *VerifyHandler) ResendCode(c *gin.Context) {
	var req models.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "resend", err, "Email is required")
		return
	}

	if err := h.verification.Resend(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.log, "resend", err,
			errorCase{services.ErrNoPendingVerification, http.StatusNotFound, "No pending verification for this email"},
			errorCase{services.ErrNotFound, http.StatusNotFound, "User not found"},
			argumentCase,
		)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Verification code sent"})
}
