package model

import (
	"testing"

	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuthority = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func TestAddAssetRoundTrip(t *testing.T) {
	reg := NewAssetRegistry(testAuthority)
	asset := AssetInfo{ID: 7, Price: 12345, Decimals: 9, OracleFeedID: "SOL/USD"}

	require.NoError(t, reg.AddAsset(asset))
	got, ok := reg.Asset(7)
	require.True(t, ok)
	assert.Equal(t, asset, got)

	err := reg.AddAsset(AssetInfo{ID: 7, Price: 1})
	assert.True(t, apperrors.IsType(err, apperrors.ErrAssetAlreadyExists))
	assert.Len(t, reg.Assets, 1)
}

func TestAddAssetCapacity(t *testing.T) {
	reg := NewAssetRegistry(testAuthority)
	for i := 0; i < MaxAssets; i++ {
		require.NoError(t, reg.AddAsset(AssetInfo{ID: uint8(i), Price: 1}))
	}
	err := reg.AddAsset(AssetInfo{ID: 200, Price: 1})
	assert.True(t, apperrors.IsType(err, apperrors.ErrCapacityExceeded))
	assert.Len(t, reg.Assets, MaxAssets)
}

func TestUpdatePrice(t *testing.T) {
	reg := NewAssetRegistry(testAuthority)
	require.NoError(t, reg.AddAsset(AssetInfo{ID: 1, Price: 100}))

	require.NoError(t, reg.UpdatePrice(1, 250))
	got, _ := reg.Asset(1)
	assert.Equal(t, uint64(250), got.Price)

	err := reg.UpdatePrice(2, 1)
	assert.True(t, apperrors.IsType(err, apperrors.ErrAssetNotFound))
}

func TestRiskParamSymmetry(t *testing.T) {
	reg := NewAssetRegistry(testAuthority)
	require.NoError(t, reg.AddAsset(AssetInfo{ID: 1, Price: 100}))
	require.NoError(t, reg.AddAsset(AssetInfo{ID: 2, Price: 50}))

	require.NoError(t, reg.AddRiskParam(1, 2, 20))
	err := reg.AddRiskParam(2, 1, 30)
	assert.True(t, apperrors.IsType(err, apperrors.ErrRiskParamAlreadyExists))

	level, ok := reg.RiskLevel(2, 1)
	assert.True(t, ok)
	assert.Equal(t, uint8(20), level)
}

func TestRiskParamValidation(t *testing.T) {
	reg := NewAssetRegistry(testAuthority)
	require.NoError(t, reg.AddAsset(AssetInfo{ID: 1, Price: 100}))

	err := reg.AddRiskParam(1, 9, 10)
	assert.True(t, apperrors.IsType(err, apperrors.ErrAssetNotFound))

	err = reg.AddRiskParam(1, 1, 101)
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidRequest))
	assert.Empty(t, reg.RiskParams)
}

func TestRiskParamCapacity(t *testing.T) {
	reg := NewAssetRegistry(testAuthority)
	for i := 0; i < MaxAssets; i++ {
		require.NoError(t, reg.AddAsset(AssetInfo{ID: uint8(i), Price: 1}))
	}
	added := 0
	for a := 0; a < MaxAssets && added < MaxRiskParams; a++ {
		for b := a; b < MaxAssets && added < MaxRiskParams; b++ {
			require.NoError(t, reg.AddRiskParam(uint8(a), uint8(b), 10))
			added++
		}
	}
	err := reg.AddRiskParam(18, 19, 10)
	assert.True(t, apperrors.IsType(err, apperrors.ErrCapacityExceeded))
	assert.Len(t, reg.RiskParams, MaxRiskParams)
}

func TestRegistryCloneIsDeep(t *testing.T) {
	reg := NewAssetRegistry(testAuthority)
	require.NoError(t, reg.AddAsset(AssetInfo{ID: 1, Price: 100}))

	clone := reg.Clone()
	require.NoError(t, clone.UpdatePrice(1, 1))
	require.NoError(t, clone.AddAsset(AssetInfo{ID: 2, Price: 5}))

	got, _ := reg.Asset(1)
	assert.Equal(t, uint64(100), got.Price)
	assert.Len(t, reg.Assets, 1)
}
