package middleware

import (
	"net/http"

	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last error attached with c.Error as an AppError body.
// Ledger rejections (UNHEALTHY, insufficient amounts) log at info, other client
// errors at warn and 5xx at error.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		appErr := apperrors.Wrap(c.Errors.Last().Err)

		fields := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"code", appErr.Type,
			"status", appErr.HTTPStatus,
		}
		if reqID := c.GetString(ContextRequestID); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if caller, ok := Caller(c); ok {
			fields = append(fields, "caller", caller.Hex())
		}

		switch {
		case appErr.HTTPStatus >= http.StatusInternalServerError:
			logger.LogError(c.Request.Context(), appErr, "ledger request failed", fields...)
		case isLedgerRejection(appErr.Type):
			logger.Info(appErr.Message, fields...)
		default:
			logger.Warn(appErr.Message, fields...)
		}

		// handler 已经写出响应时不再覆盖
		if c.Writer.Written() {
			return
		}
		c.JSON(appErr.HTTPStatus, appErr)
	}
}

func isLedgerRejection(t apperrors.ErrorType) bool {
	switch t {
	case apperrors.ErrUnhealthy, apperrors.ErrInsufficientDeposit, apperrors.ErrInsufficientBorrow,
		apperrors.ErrDepositNotFound, apperrors.ErrBorrowNotFound, apperrors.ErrCapacityExceeded,
		apperrors.ErrMathOverflow:
		return true
	default:
		return false
	}
}
