package middleware

import (
	"sync/atomic"

	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ReadOnlySwitch freezes the ledger: reads keep working, every mutation is refused.
type ReadOnlySwitch struct {
	enabled atomic.Bool
}

func NewReadOnlySwitch(enabled bool) *ReadOnlySwitch {
	s := &ReadOnlySwitch{}
	s.enabled.Store(enabled)
	return s
}

func (s *ReadOnlySwitch) Enabled() bool {
	return s != nil && s.enabled.Load()
}

// Set flips the switch and reports the previous state.
func (s *ReadOnlySwitch) Set(enabled bool) bool {
	prev := s.enabled.Swap(enabled)
	if prev != enabled {
		logger.Warn("ledger read-only mode changed", "read_only", enabled)
	}
	return prev
}

func ReadOnlyMiddleware(sw *ReadOnlySwitch) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !sw.Enabled() || !isMutation(c.Request.Method) {
			c.Next()
			return
		}
		c.Error(apperrors.Newf(apperrors.ErrReadOnly, "ledger is read-only, %s %s refused", c.Request.Method, c.FullPath()))
		c.Abort()
	}
}
