package handler

import (
	"context"
	"net/http"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

type ObligationHandler struct {
	svc *service.ObligationService
}

func NewObligationHandler(svc *service.ObligationService) *ObligationHandler {
	return &ObligationHandler{svc: svc}
}

type mutationFunc func(ctx context.Context, owner common.Address, assetID uint8, amount uint64) (*service.MutationResult, error)

func (h *ObligationHandler) Init(c *gin.Context) {
	owner, ok := callerFrom(c)
	if !ok {
		return
	}
	o, err := h.svc.Init(c.Request.Context(), owner)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (h *ObligationHandler) AddDeposit(c *gin.Context)    { h.mutate(c, h.svc.AddDeposit) }
func (h *ObligationHandler) RemoveDeposit(c *gin.Context) { h.mutate(c, h.svc.RemoveDeposit) }
func (h *ObligationHandler) AddBorrow(c *gin.Context)     { h.mutate(c, h.svc.AddBorrow) }
func (h *ObligationHandler) RemoveBorrow(c *gin.Context)  { h.mutate(c, h.svc.RemoveBorrow) }

// mutate always acts on the caller's own obligation.
func (h *ObligationHandler) mutate(c *gin.Context, fn mutationFunc) {
	owner, ok := callerFrom(c)
	if !ok {
		return
	}
	var req model.PositionRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := fn(c.Request.Context(), owner, *req.AssetID, *req.Amount)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"obligation":   res.Obligation,
		"health":       res.Health,
		"health_score": service.FormatScore(res.Obligation.HealthScore),
	})
}

func (h *ObligationHandler) Snapshot(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	owner, ok := ownerQuery(c, caller)
	if !ok {
		return
	}
	snap, err := h.svc.ReadAll(c.Request.Context(), owner)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *ObligationHandler) Health(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	owner, ok := ownerQuery(c, caller)
	if !ok {
		return
	}
	report, err := h.svc.Evaluate(c.Request.Context(), owner)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"report":       report,
		"health_score": report.Score(),
	})
}

func (h *ObligationHandler) Delete(c *gin.Context) {
	owner, ok := callerFrom(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), owner); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
