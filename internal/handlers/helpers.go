package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ballouchi/internal/logger"
	"ballouchi/internal/services"
)

type MessageResponse struct {
	Message string `json:"message"`
}

// errorCase maps a service sentinel onto a status and the message shown to
// the client. Order matters: the first errors.Is match wins.
type errorCase struct {
	err     error
	status  int
	message string
}

// Shared tail of every table. Internal detail never reaches the client.
var commonCases = []errorCase{
	{services.ErrConcurrentUpdate, http.StatusConflict, "Account was modified concurrently, please retry"},
	{services.ErrUpstream, http.StatusServiceUnavailable, "Service temporarily unavailable, please retry"},
}

func respondError(c *gin.Context, log *zap.Logger, op string, err error, cases ...errorCase) {
	for _, cs := range append(cases, commonCases...) {
		if errors.Is(err, cs.err) {
			if cs.status >= http.StatusInternalServerError {
				logger.WithContext(c.Request.Context(), log).Error(op+" failed", zap.Error(err))
			}
			msg := cs.message
			if msg == "" {
				msg = err.Error()
			}
			c.JSON(cs.status, MessageResponse{Message: msg})
			return
		}
	}
	logger.WithContext(c.Request.Context(), log).Error(op+" failed", zap.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, MessageResponse{Message: "Internal server error"})
}

// badRequest answers a body that did not bind. The binding error itself is
// only logged.
func badRequest(c *gin.Context, log *zap.Logger, op string, err error, message string) {
	logger.WithContext(c.Request.Context(), log).Debug(op+": bad request", zap.Error(err))
	c.JSON(http.StatusBadRequest, MessageResponse{Message: message})
}

// argumentCase echoes the validation message, which never carries internal
// detail.
var argumentCase = errorCase{services.ErrInvalidArgument, http.StatusBadRequest, ""}
