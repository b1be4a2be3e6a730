package model

type InitRegistryRequest struct {
	Authority string `json:"authority,omitempty"` // defaults to the caller
}

type AddAssetRequest struct {
	ID           *uint8  `json:"id" binding:"required"`
	Price        *uint64 `json:"price" binding:"required"`
	Decimals     uint8   `json:"decimals"`
	OracleFeedID string  `json:"oracle_feed_id"`
}

type UpdatePriceRequest struct {
	Price *uint64 `json:"price" binding:"required"`
}

type AddRiskParamRequest struct {
	AssetA    *uint8 `json:"asset_a" binding:"required"`
	AssetB    *uint8 `json:"asset_b" binding:"required"`
	RiskLevel *uint8 `json:"risk_level" binding:"required"`
}

// PositionRequest is the body of every deposit/borrow add or remove call.
type PositionRequest struct {
	AssetID *uint8  `json:"asset_id" binding:"required"`
	Amount  *uint64 `json:"amount" binding:"required"`
}

type RefreshPriceResponse struct {
	AssetID uint8  `json:"asset_id"`
	Price   uint64 `json:"price"`
}

// Snapshot is the read_all view: the registry plus one owner's obligation.
type Snapshot struct {
	Registry    *AssetRegistry `json:"registry"`
	Obligation  *Obligation    `json:"obligation,omitempty"`
	HealthScore string         `json:"health_score,omitempty"`
}

