package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/gokselkaptan/takas-app-sub005/internal/logger"
	"github.com/gokselkaptan/takas-app-sub005/internal/pkg/apperror"
)

// ErrorHandler turns errors attached to the gin context into the API
// error envelope. Internal causes are logged and masked.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		var appErr *apperror.AppError
		if !errors.As(err, &appErr) {
			appErr = apperror.Wrap(err, apperror.ErrCodeInternal, "internal server error")
		}

		fields := logrus.Fields{
			"code":   appErr.Code,
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Log.WithFields(fields).WithError(err).Error("request failed")
		} else {
			logger.Log.WithFields(fields).WithError(err).Debug("request rejected")
		}

		c.JSON(appErr.HTTPStatus, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
	}
}
