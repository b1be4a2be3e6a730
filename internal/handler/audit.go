package handler

import (
	"net/http"
	"strconv"

	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	svc *service.AuditService
}

func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// List returns recent ledger mutations. ?owner=all lists every owner.
func (h *AuditHandler) List(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	owner := caller
	if c.Query("owner") == "all" {
		owner = common.Address{}
	} else if owner, ok = ownerQuery(c, caller); !ok {
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.Error(apperrors.Newf(apperrors.ErrInvalidRequest, "invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	records, err := h.svc.List(c.Request.Context(), owner, limit)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	c.JSON(http.StatusOK, records)
}
