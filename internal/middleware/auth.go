package middleware

import (
	"strings"

	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

const (
	HeaderCallerAddress = "X-Caller-Address"
	ContextCallerKey    = "caller"
)

// CallerMiddleware 从 header 中解析调用方地址
// Signatures are verified upstream; this only trusts and normalizes the forwarded address.
func CallerMiddleware(header string) gin.HandlerFunc {
	if header == "" {
		header = HeaderCallerAddress
	}
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(header))
		if raw == "" {
			c.Error(apperrors.Newf(apperrors.ErrAuthFailed, "missing %s header", header))
			c.Abort()
			return
		}
		if !common.IsHexAddress(raw) {
			c.Error(apperrors.Newf(apperrors.ErrAuthFailed, "invalid caller address %q", raw))
			c.Abort()
			return
		}
		c.Set(ContextCallerKey, common.HexToAddress(raw))
		c.Next()
	}
}

// Caller returns the address set by CallerMiddleware.
func Caller(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(ContextCallerKey)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}
