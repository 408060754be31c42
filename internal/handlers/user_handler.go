package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ballouchi/internal/authz"
	"ballouchi/internal/logger"
	"ballouchi/internal/middleware"
	"ballouchi/internal/models"
	"ballouchi/internal/services"
)

type UserHandler struct {
	accounts *services.AccountService
	log      *zap.Logger
}

func NewUserHandler(accounts *services.AccountService, log *zap.Logger) *UserHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserHandler{accounts: accounts, log: log}
}

type ProfileResponse struct {
	models.Summary
	IsVerified bool             `json:"isVerified"`
	Location   *models.Location `json:"location,omitempty"`
}

// @Summary      Текущий пользователь
// @Tags         Users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  ProfileResponse
// @Failure      401  {object}  MessageResponse
// @Failure      404  {object}  MessageResponse
// @Router       /me [get]
func (h *UserHandler) Me(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, MessageResponse{Message: "Unauthorized"})
		return
	}
	u, err := h.accounts.GetUser(c.Request.Context(), claims.Email)
	if err != nil {
		respondError(c, h.log, "me", err,
			argumentCase,
			errorCase{services.ErrNotFound, http.StatusNotFound, "User not found"},
		)
		return
	}
	c.JSON(http.StatusOK, ProfileResponse{Summary: u.Summary(), IsVerified: u.IsVerified, Location: u.Location})
}

// @Summary      Смена типа аккаунта
// @Description  Sets accountType to client or professional. The session must belong to the same email.
// @Tags         Users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      models.AccountTypeRequest  true  "Email and account type"
// @Success      200   {object}  MessageResponse
// @Failure      400   {object}  MessageResponse
// @Failure      401   {object}  MessageResponse
// @Failure      403   {object}  MessageResponse
// @Failure      404   {object}  MessageResponse
// @Router       /account-type [post]
func (h *UserHandler) SetAccountType(c *gin.Context) {
	var req models.AccountTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "account type", err, "Email and accountType are required")
		return
	}
	claims, _ := middleware.ClaimsFrom(c)
	if !authz.SameAccount(claims, strings.ToLower(strings.TrimSpace(req.Email))) {
		c.JSON(http.StatusForbidden, MessageResponse{Message: "You can only change your own account type"})
		return
	}

	if err := h.accounts.SetAccountType(c.Request.Context(), req.Email, req.AccountType); err != nil {
		respondError(c, h.log, "account type", err,
			errorCase{services.ErrInvalidArgument, http.StatusBadRequest, "Invalid account type"},
			errorCase{services.ErrNotFound, http.StatusNotFound, "User not found"},
		)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Account type updated successfully"})
}

// @Summary      Обновление геолокации
// @Tags         Users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      models.LocationRequest  true  "Coordinates"
// @Success      200   {object}  MessageResponse
// @Failure      400   {object}  MessageResponse
// @Failure      401   {object}  MessageResponse
// @Failure      404   {object}  MessageResponse
// @Router       /location [put]
func (h *UserHandler) UpdateLocation(c *gin.Context) {
	var req models.LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "location", err, "latitude and longitude are required")
		return
	}
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, MessageResponse{Message: "Unauthorized"})
		return
	}

	err := h.accounts.UpdateLocation(c.Request.Context(), claims.Email, *req.Latitude, *req.Longitude)
	if err != nil {
		respondError(c, h.log, "location", err,
			argumentCase,
			errorCase{services.ErrNotFound, http.StatusNotFound, "User not found"},
		)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Location updated successfully"})
}

// @Summary      Удаление пользователя
// @Description  Removes the identity, merchant files and the user record
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        X-Admin-Key  header    string               false  "Admin key"
// @Param        body         body      models.EmailRequest  true   "Email"
// @Success      200          {object}  MessageResponse
// @Failure      400          {object}  MessageResponse
// @Failure      401          {object}  MessageResponse
// @Failure      404          {object}  MessageResponse
// @Failure      500          {object}  MessageResponse
// @Router       /delete-user [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	var req models.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.log, "delete user", err, "Email is required")
		return
	}

	if err := h.accounts.DeleteUser(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.log, "delete user", err,
			argumentCase,
			errorCase{services.ErrNotFound, http.StatusNotFound, "User not found"},
			errorCase{services.ErrUpstream, http.StatusInternalServerError, "Failed to delete user"},
		)
		return
	}
	logger.WithContext(c.Request.Context(), h.log).Info("[admin][delete-user] done", zap.String("email", logger.MaskEmail(req.Email)))
	c.JSON(http.StatusOK, MessageResponse{Message: "User with email " + strings.ToLower(strings.TrimSpace(req.Email)) + " deleted successfully."})
}
