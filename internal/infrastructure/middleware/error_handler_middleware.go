package middleware

import (
	"net/http"

	apperrors "eventsphere/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware turns the last error attached with c.Error into a
// JSON signal. Errors without a signal become a generic 500.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		if apperrors.IsSignal(err) {
			sig := apperrors.From(err)
			logger.Warnw("request failed",
				"code", sig.Code,
				"message", sig.Message,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"error", err,
			)
			c.JSON(sig.HTTPStatus(), sig)
			return
		}

		logger.Errorw("unhandled error",
			"error", err.Error(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		c.JSON(http.StatusInternalServerError, apperrors.New(apperrors.CodeSocketError, "Internal server error"))
	}
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError,
					apperrors.New(apperrors.CodeSocketError, "Internal server error"))
			}
		}()

		c.Next()
	}
}
