package middleware

import (
	"context"
	stderrors "errors"
	"net/http"

	"edgeview/internal/core/domain"
	"edgeview/pkg/circuitbreaker"
	"edgeview/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ToAppError maps domain failures onto API error codes. Errors that
// already carry an AppError are returned unchanged.
func ToAppError(err error) *errors.AppError {
	if appErr := errors.GetAppError(err); appErr != nil {
		return appErr
	}

	var (
		sigErr    *domain.SignalingError
		noSink    *domain.NoSinkError
		lost      *domain.ConnectionLostError
		malformed *domain.MalformedAnswerError
	)
	switch {
	case stderrors.Is(err, domain.ErrSourceNotFound):
		return errors.NewNotFoundError("stream source").WithCause(err)
	case stderrors.Is(err, domain.ErrSlotNotFound), stderrors.Is(err, domain.ErrSessionClosed):
		return errors.NewNotFoundError("slot").WithCause(err)
	case stderrors.Is(err, domain.ErrSourceExists), stderrors.Is(err, domain.ErrSourceActive),
		stderrors.Is(err, domain.ErrStaleNegotiation):
		return errors.NewConflictError(err.Error()).WithCause(err)
	case stderrors.Is(err, domain.ErrPoolFull):
		return errors.NewCapacityError(err.Error()).WithCause(err)
	case stderrors.Is(err, domain.ErrInvalidSource):
		return errors.NewInvalidInputError(err.Error()).WithCause(err)
	case stderrors.Is(err, domain.ErrPoolClosed), stderrors.Is(err, circuitbreaker.ErrOpen):
		return errors.NewServiceUnavailableError(err.Error()).WithCause(err)
	case stderrors.As(err, &sigErr):
		if sigErr.Timeout {
			return errors.NewGatewayTimeoutError(err.Error()).WithCause(err).
				WithContext("url", sigErr.URL)
		}
		appErr := errors.NewBadGatewayError(err.Error()).WithCause(err).
			WithContext("url", sigErr.URL)
		if sigErr.Status != 0 {
			appErr = appErr.WithContext("upstream_status", sigErr.Status)
		}
		return appErr
	case stderrors.As(err, &noSink):
		return errors.NewServiceUnavailableError(err.Error()).WithCause(err)
	case stderrors.As(err, &lost), stderrors.As(err, &malformed):
		return errors.NewBadGatewayError(err.Error()).WithCause(err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewGatewayTimeoutError("operation timed out").WithCause(err)
	}
	return nil
}

// ErrorHandlerMiddleware renders the last error attached to the context.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		if appErr := ToAppError(err); appErr != nil {
			log := logger.Warnw
			if appErr.HTTPStatus >= http.StatusInternalServerError {
				log = logger.Errorw
			}
			log("request failed",
				"code", appErr.Code,
				"message", appErr.Message,
				"status", appErr.HTTPStatus,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"context", appErr.Context,
			)

			c.JSON(appErr.HTTPStatus, errorBody(appErr))
			return
		}

		logger.Errorw("unhandled error",
			"error", err.Error(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		c.JSON(http.StatusInternalServerError, errorBody(errors.NewInternalError("Internal server error")))
	}
}

func errorBody(appErr *errors.AppError) gin.H {
	body := gin.H{
		"error":   string(appErr.Code),
		"message": appErr.Message,
	}
	if len(appErr.Context) > 0 {
		body["details"] = appErr.Context
	}
	return body
}

func abortWithAppError(c *gin.Context, appErr *errors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, errorBody(appErr))
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

				abortWithAppError(c, errors.NewInternalError("Internal server error"))
			}
		}()

		c.Next()
	}
}
