package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AuditLog records one ledger mutation attempt and its outcome
type AuditLog struct {
	ID          string         `json:"id"`
	Owner       common.Address `json:"owner"`
	Operation   LedgerOp       `json:"operation"`
	AssetID     uint8          `json:"asset_id"`
	Amount      uint64         `json:"amount"`
	Outcome     string         `json:"outcome"`              // applied / rejected / noop
	ErrorCode   string         `json:"error_code,omitempty"` // apperrors type on rejection
	HealthScore string         `json:"health_score,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
	OutcomeNoop     = "noop"
)
