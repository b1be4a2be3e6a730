package model

import (
	"errors"

	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
)

const (
	MaxAssets     = 20
	MaxRiskParams = 50
	MaxRiskLevel  = 100

	// RegistryKey is the fixed identifier the single registry record is stored under.
	RegistryKey = "asset_registry"
)

// ErrRecordNotFound is returned by stores when a keyed record does not exist.
var ErrRecordNotFound = errors.New("record not found")

// AssetInfo 可抵押/可借资产
type AssetInfo struct {
	ID           uint8  `json:"id"`
	Price        uint64 `json:"price"`    // fallback price in minor units per whole asset unit
	Decimals     uint8  `json:"decimals"` // native units per whole unit = 10^decimals
	OracleFeedID string `json:"oracle_feed_id,omitempty"`
}

// PairRiskParam is an unordered (asset_a, asset_b) pair with its risk coefficient.
type PairRiskParam struct {
	AssetA    uint8 `json:"asset_a"`
	AssetB    uint8 `json:"asset_b"`
	RiskLevel uint8 `json:"risk_level"`
}

func (p PairRiskParam) Matches(a, b uint8) bool {
	return (p.AssetA == a && p.AssetB == b) || (p.AssetA == b && p.AssetB == a)
}

// AssetRegistry is the process-wide catalog of assets and pairwise risk levels.
type AssetRegistry struct {
	Authority  common.Address  `json:"authority"`
	Assets     []AssetInfo     `json:"assets"`
	RiskParams []PairRiskParam `json:"risk_params"`
}

func NewAssetRegistry(authority common.Address) *AssetRegistry {
	return &AssetRegistry{
		Authority:  authority,
		Assets:     make([]AssetInfo, 0),
		RiskParams: make([]PairRiskParam, 0),
	}
}

// Clone returns a deep copy; registry writes are applied to clones and swapped in.
func (r *AssetRegistry) Clone() *AssetRegistry {
	if r == nil {
		return nil
	}
	out := &AssetRegistry{
		Authority:  r.Authority,
		Assets:     make([]AssetInfo, len(r.Assets)),
		RiskParams: make([]PairRiskParam, len(r.RiskParams)),
	}
	copy(out.Assets, r.Assets)
	copy(out.RiskParams, r.RiskParams)
	return out
}

func (r *AssetRegistry) Asset(id uint8) (AssetInfo, bool) {
	for _, a := range r.Assets {
		if a.ID == id {
			return a, true
		}
	}
	return AssetInfo{}, false
}

func (r *AssetRegistry) HasAsset(id uint8) bool {
	_, ok := r.Asset(id)
	return ok
}

// RiskLevel looks the pair up in either order.
func (r *AssetRegistry) RiskLevel(a, b uint8) (uint8, bool) {
	for _, p := range r.RiskParams {
		if p.Matches(a, b) {
			return p.RiskLevel, true
		}
	}
	return 0, false
}

func (r *AssetRegistry) AddAsset(asset AssetInfo) error {
	if r.HasAsset(asset.ID) {
		return apperrors.Newf(apperrors.ErrAssetAlreadyExists, "asset %d already exists", asset.ID)
	}
	assets, err := appendBounded(r.Assets, asset, MaxAssets, "assets")
	if err != nil {
		return err
	}
	r.Assets = assets
	return nil
}

func (r *AssetRegistry) UpdatePrice(id uint8, price uint64) error {
	for i := range r.Assets {
		if r.Assets[i].ID == id {
			r.Assets[i].Price = price
			return nil
		}
	}
	return apperrors.Newf(apperrors.ErrAssetNotFound, "asset %d not found in registry", id)
}

func (r *AssetRegistry) AddRiskParam(a, b, level uint8) error {
	if level > MaxRiskLevel {
		return apperrors.Newf(apperrors.ErrInvalidRequest, "risk level %d exceeds %d", level, MaxRiskLevel)
	}
	for _, id := range []uint8{a, b} {
		if !r.HasAsset(id) {
			return apperrors.Newf(apperrors.ErrAssetNotFound, "asset %d not found in registry", id)
		}
	}
	if _, exists := r.RiskLevel(a, b); exists {
		return apperrors.Newf(apperrors.ErrRiskParamAlreadyExists, "risk parameter already exists for pair %d-%d", a, b)
	}
	params, err := appendBounded(r.RiskParams, PairRiskParam{AssetA: a, AssetB: b, RiskLevel: level}, MaxRiskParams, "risk params")
	if err != nil {
		return err
	}
	r.RiskParams = params
	return nil
}

// appendBounded appends item unless the list is already at limit.
func appendBounded[T any](list []T, item T, limit int, what string) ([]T, error) {
	if len(list) >= limit {
		return list, apperrors.Newf(apperrors.ErrCapacityExceeded, "%s capacity of %d reached", what, limit)
	}
	return append(list, item), nil
}
