package api

import (
	"errors"
	"net/http"

	"kwetu-store/internal/apperr"
	"kwetu-store/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorBody struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

func errorResponse(err error) (int, errorBody) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Status(), errorBody{Error: appErr.Code, Message: appErr.Message, Redirect: appErr.Redirect}
	}
	return http.StatusInternalServerError, errorBody{Error: "INTERNAL", Message: "Internal server error"}
}

func respondError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	logError(c, status, err)
	c.JSON(status, body)
}

func abortWithError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	logError(c, status, err)
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorBody{
		Error:   apperr.CodeInvalidInput,
		Message: "Invalid request body: " + err.Error(),
	})
}

func logError(c *gin.Context, status int, err error) {
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", status),
		zap.Error(err),
	}
	logger := util.Component("http")
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", fields...)
		return
	}
	logger.Debug("Request rejected", fields...)
}
