package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ballouchi/internal/middleware"
	"ballouchi/internal/models"
	"ballouchi/internal/services"
)

type MerchantHandler struct {
	merchants      *services.MerchantService
	maxUploadBytes int64
	log            *zap.Logger
}

func NewMerchantHandler(merchants *services.MerchantService, maxUploadBytes int64, log *zap.Logger) *MerchantHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &MerchantHandler{merchants: merchants, maxUploadBytes: maxUploadBytes, log: log}
}

type MerchantResponse struct {
	Message  string           `json:"message"`
	Merchant *models.Merchant `json:"merchant"`
}

// @Summary      Регистрация продавца
// @Description  Uploads the business document of a verified professional account
// @Tags         Merchants
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        businessName  formData  string  true  "Business name"
// @Param        file          formData  file    true  "Business document"
// @Success      201           {object}  MerchantResponse
// @Failure      400           {object}  MessageResponse
// @Failure      401           {object}  MessageResponse
// @Failure      403           {object}  MessageResponse
// @Failure      404           {object}  MessageResponse
// @Failure      413           {object}  MessageResponse
// @Router       /merchant [post]
func (h *MerchantHandler) Register(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, MessageResponse{Message: "Unauthorized"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, MessageResponse{Message: "File is too large"})
			return
		}
		badRequest(c, h.log, "merchant", err, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, h.log, "merchant", err, "file could not be read")
		return
	}
	defer f.Close()

	m, err := h.merchants.RegisterMerchant(c.Request.Context(), claims.Email, services.MerchantUpload{
		BusinessName: c.PostForm("businessName"),
		FileName:     fh.Filename,
		ContentType:  fh.Header.Get("Content-Type"),
		Size:         fh.Size,
		Body:         f,
	})
	if err != nil {
		respondError(c, h.log, "merchant", err,
			argumentCase,
			errorCase{services.ErrNotFound, http.StatusNotFound, "User not found"},
			errorCase{services.ErrForbidden, http.StatusForbidden, "Only verified professional accounts can register as merchants"},
		)
		return
	}
	c.JSON(http.StatusCreated, MerchantResponse{Message: "Merchant registered successfully", Merchant: m})
}
