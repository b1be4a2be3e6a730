package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

type RegistryHandler struct {
	svc *service.RegistryService
}

func NewRegistryHandler(svc *service.RegistryService) *RegistryHandler {
	return &RegistryHandler{svc: svc}
}

func (h *RegistryHandler) Initialize(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	// body 可为空
	var req model.InitRegistryRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	var authority common.Address
	if raw := strings.TrimSpace(req.Authority); raw != "" {
		if !common.IsHexAddress(raw) {
			c.Error(apperrors.Newf(apperrors.ErrInvalidRequest, "invalid authority address %q", raw))
			return
		}
		authority = common.HexToAddress(raw)
	}

	reg, err := h.svc.Initialize(c.Request.Context(), caller, authority)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, reg)
}

func (h *RegistryHandler) Get(c *gin.Context) {
	reg, err := h.svc.Snapshot()
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

func (h *RegistryHandler) AddAsset(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req model.AddAssetRequest
	if !bindJSON(c, &req) {
		return
	}
	reg, err := h.svc.AddAsset(c.Request.Context(), caller, model.AssetInfo{
		ID:           *req.ID,
		Price:        *req.Price,
		Decimals:     req.Decimals,
		OracleFeedID: strings.TrimSpace(req.OracleFeedID),
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, reg)
}

func (h *RegistryHandler) UpdatePrice(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := assetIDParam(c)
	if !ok {
		return
	}
	var req model.UpdatePriceRequest
	if !bindJSON(c, &req) {
		return
	}
	reg, err := h.svc.UpdatePrice(c.Request.Context(), caller, id, *req.Price)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

func (h *RegistryHandler) RefreshPrice(c *gin.Context) {
	id, ok := assetIDParam(c)
	if !ok {
		return
	}
	price, err := h.svc.RefreshPrice(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model.RefreshPriceResponse{AssetID: id, Price: price})
}

func (h *RegistryHandler) AddRiskParam(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req model.AddRiskParamRequest
	if !bindJSON(c, &req) {
		return
	}
	reg, err := h.svc.AddRiskParam(c.Request.Context(), caller, *req.AssetA, *req.AssetB, *req.RiskLevel)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, reg)
}

func (h *RegistryHandler) Delete(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), caller); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
