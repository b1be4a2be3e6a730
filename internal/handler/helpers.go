package handler

import (
	"strconv"
	"strings"

	"github.com/GoPolymarket/polylend/internal/middleware"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

func callerFrom(c *gin.Context) (common.Address, bool) {
	caller, ok := middleware.Caller(c)
	if !ok {
		c.Error(apperrors.New(apperrors.ErrAuthFailed, "unauthorized: missing caller context", nil))
	}
	return caller, ok
}

func assetIDParam(c *gin.Context) (uint8, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 8)
	if err != nil {
		c.Error(apperrors.Newf(apperrors.ErrInvalidRequest, "invalid asset id %q", c.Param("id")))
		return 0, false
	}
	return uint8(id), true
}

// ownerQuery reads ?owner=, defaulting to the caller.
func ownerQuery(c *gin.Context, caller common.Address) (common.Address, bool) {
	raw := strings.TrimSpace(c.Query("owner"))
	if raw == "" {
		return caller, true
	}
	if !common.IsHexAddress(raw) {
		c.Error(apperrors.Newf(apperrors.ErrInvalidRequest, "invalid owner address %q", raw))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return false
	}
	return true
}
