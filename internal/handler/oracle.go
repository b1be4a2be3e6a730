package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/GoPolymarket/polylend/internal/oracle"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

type OracleHandler struct {
	reader oracle.FeedReader
}

func NewOracleHandler(reader oracle.FeedReader) *OracleHandler {
	return &OracleHandler{reader: reader}
}

// GetFeed returns the latest round of a feed. Feed ids may contain slashes ("SOL/USD").
func (h *OracleHandler) GetFeed(c *gin.Context) {
	feed := strings.Trim(c.Param("feed"), "/")
	if feed == "" {
		c.Error(apperrors.NewInvalidRequest("feed id is required"))
		return
	}
	if h.reader == nil {
		c.Error(apperrors.New(apperrors.ErrOracleUnavailable, "no price feed source configured", nil))
		return
	}
	r, err := h.reader.Latest(c.Request.Context(), feed)
	if err != nil {
		if errors.Is(err, oracle.ErrFeedNotFound) {
			c.Error(apperrors.New(apperrors.ErrOracleUnavailable, "feed "+feed+" has no published round", err))
			return
		}
		c.Error(apperrors.New(apperrors.ErrOracleUnavailable, "feed "+feed+" unavailable", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"feed_id":     r.FeedID,
		"answer":      r.Answer,
		"decimals":    r.Decimals,
		"price":       r.String(),
		"description": r.Description,
		"updated_at":  r.UpdatedAt,
	})
}
