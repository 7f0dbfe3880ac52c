package middleware

import (
	"net/http"
	"runtime/debug"

	"meetsignal/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusByCode is the HTTP status for every signaling error code. AppError.HTTPStatus is
// only consulted for codes missing here.
var statusByCode = map[errors.ErrorCode]int{
	errors.ErrCodeValidation:         http.StatusBadRequest,
	errors.ErrCodeMalformedPayload:   http.StatusBadRequest,
	errors.ErrCodeAlreadyInMeeting:   http.StatusConflict,
	errors.ErrCodeNotInMeeting:       http.StatusConflict,
	errors.ErrCodeTargetUnreachable:  http.StatusNotFound,
	errors.ErrCodeNotFound:           http.StatusNotFound,
	errors.ErrCodeUnauthorized:       http.StatusUnauthorized,
	errors.ErrCodeRateLimit:          http.StatusTooManyRequests,
	errors.ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	errors.ErrCodeInternal:           http.StatusInternalServerError,
}

func statusFor(appErr *errors.AppError) int {
	if status, ok := statusByCode[appErr.Code]; ok {
		return status
	}
	if appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// ErrorHandlerMiddleware renders the last error a handler pushed with c.Error as
// {"error": code, "message", "details"}. Causes stay in the log.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		appErr := errors.GetAppError(err)
		if appErr == nil {
			logger.Errorw("unhandled error",
				"error", err.Error(),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   string(errors.ErrCodeInternal),
				"message": "Internal server error",
			})
			return
		}

		status := statusFor(appErr)
		fields := []interface{}{
			"code", appErr.Code,
			"status", status,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"context", appErr.Context,
		}
		if appErr.Cause != nil {
			fields = append(fields, "cause", appErr.Cause)
		}
		if status >= http.StatusInternalServerError {
			logger.Errorw(appErr.Message, fields...)
		} else {
			logger.Debugw(appErr.Message, fields...)
		}

		switch appErr.Code {
		case errors.ErrCodeRateLimit:
			c.Header("Retry-After", "1")
		case errors.ErrCodeServiceUnavailable:
			c.Header("Retry-After", "5")
		case errors.ErrCodeUnauthorized:
			c.Header("WWW-Authenticate", "Bearer")
		}

		body := gin.H{
			"error":   string(appErr.Code),
			"message": appErr.Message,
		}
		if len(appErr.Context) > 0 {
			body["details"] = appErr.Context
		}
		c.JSON(status, body)
	}
}

// RecoveryMiddleware turns a handler panic into a 500 INTERNAL_ERROR response.
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					"stack", string(debug.Stack()),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   string(errors.ErrCodeInternal),
					"message": "Internal server error",
				})
			}
		}()

		c.Next()
	}
}
