package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/oracle"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryInitializeOnce(t *testing.T) {
	ctx := context.Background()
	svc := NewRegistryService(repository.NewMemoryStore(), nil, time.Minute, time.Second)

	_, err := svc.Snapshot()
	assert.True(t, apperrors.IsType(err, apperrors.ErrNotInitialized))

	reg, err := svc.Initialize(ctx, testStranger, testAuthority)
	require.NoError(t, err)
	assert.Equal(t, testAuthority, reg.Authority)

	_, err = svc.Initialize(ctx, testAuthority, common.Address{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrAlreadyInitialized))
}

func TestRegistryWritesRequireAuthority(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.registry.AddAsset(ctx, testStranger, model.AssetInfo{ID: 3, Price: 1})
	assert.True(t, apperrors.IsType(err, apperrors.ErrUnauthorized))
	_, err = env.registry.UpdatePrice(ctx, testStranger, 1, 1)
	assert.True(t, apperrors.IsType(err, apperrors.ErrUnauthorized))
	_, err = env.registry.AddRiskParam(ctx, testStranger, 1, 2, 10)
	assert.True(t, apperrors.IsType(err, apperrors.ErrUnauthorized))
	assert.True(t, apperrors.IsType(env.registry.Delete(ctx, testStranger), apperrors.ErrUnauthorized))

	reg, err := env.registry.Snapshot()
	require.NoError(t, err)
	assert.Len(t, reg.Assets, 2)
}

func TestRegistryWritesPersistAndReload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.registry.AddRiskParam(ctx, testAuthority, 2, 1, 30)
	assert.True(t, apperrors.IsType(err, apperrors.ErrRiskParamAlreadyExists))
	_, err = env.registry.UpdatePrice(ctx, testAuthority, 7, 1)
	assert.True(t, apperrors.IsType(err, apperrors.ErrAssetNotFound))

	_, err = env.registry.UpdatePrice(ctx, testAuthority, 2, 75)
	require.NoError(t, err)

	reloaded := NewRegistryService(env.store, nil, time.Minute, time.Second)
	require.NoError(t, reloaded.Load(ctx))
	reg, err := reloaded.Snapshot()
	require.NoError(t, err)
	asset, ok := reg.Asset(2)
	require.True(t, ok)
	assert.Equal(t, uint64(75), asset.Price)
	level, ok := reg.RiskLevel(2, 1)
	require.True(t, ok)
	assert.Equal(t, uint8(20), level)
}

func TestRegistrySnapshotIsDetached(t *testing.T) {
	env := newTestEnv(t)
	snap, err := env.registry.Snapshot()
	require.NoError(t, err)
	snap.Assets[0].Price = 1

	again, err := env.registry.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(100), again.Assets[0].Price)
}

type failingRegistryRepo struct {
	*repository.MemoryStore
	fail bool
}

func (r *failingRegistryRepo) SaveRegistry(ctx context.Context, reg *model.AssetRegistry) error {
	if r.fail {
		return errors.New("disk full")
	}
	return r.MemoryStore.SaveRegistry(ctx, reg)
}

func TestRegistryFailedPersistKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	repo := &failingRegistryRepo{MemoryStore: repository.NewMemoryStore()}
	svc := NewRegistryService(repo, nil, time.Minute, time.Second)
	_, err := svc.Initialize(ctx, testAuthority, common.Address{})
	require.NoError(t, err)

	repo.fail = true
	_, err = svc.AddAsset(ctx, testAuthority, model.AssetInfo{ID: 1, Price: 1})
	assert.True(t, apperrors.IsType(err, apperrors.ErrInternal))

	reg, err := svc.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, reg.Assets)
}

func TestRefreshPriceFromOracle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, err := env.registry.AddAsset(ctx, testAuthority, model.AssetInfo{ID: 3, Price: 10, OracleFeedID: "SOL/USD"})
	require.NoError(t, err)

	env.resolver.prices["SOL/USD"] = 2345
	price, err := env.registry.RefreshPrice(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(2345), price)
	assert.Equal(t, 300*time.Second, env.resolver.lastMaxAge())

	reg, err := env.registry.Snapshot()
	require.NoError(t, err)
	asset, _ := reg.Asset(3)
	assert.Equal(t, uint64(2345), asset.Price)
}

func TestRefreshPriceFailures(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, err := env.registry.AddAsset(ctx, testAuthority, model.AssetInfo{ID: 3, Price: 10, OracleFeedID: "SOL/USD"})
	require.NoError(t, err)

	_, err = env.registry.RefreshPrice(ctx, 9)
	assert.True(t, apperrors.IsType(err, apperrors.ErrAssetNotFound))

	_, err = env.registry.RefreshPrice(ctx, 1)
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidPriceUpdate), "asset without a feed")

	cases := []struct {
		oracleErr error
		want      apperrors.ErrorType
	}{
		{oracle.ErrPriceTooOld, apperrors.ErrPriceTooOld},
		{oracle.ErrFeedNotFound, apperrors.ErrOracleUnavailable},
		{oracle.ErrOracleUnavailable, apperrors.ErrOracleUnavailable},
		{oracle.ErrInvalidPrice, apperrors.ErrInvalidPriceUpdate},
	}
	for _, tc := range cases {
		env.resolver.errs["SOL/USD"] = tc.oracleErr
		_, err = env.registry.RefreshPrice(ctx, 3)
		assert.True(t, apperrors.IsType(err, tc.want), "%v", tc.oracleErr)
		assert.True(t, errors.Is(err, tc.oracleErr))
	}

	reg, err := env.registry.Snapshot()
	require.NoError(t, err)
	asset, _ := reg.Asset(3)
	assert.Equal(t, uint64(10), asset.Price)
}

func TestRegistryDelete(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.registry.Delete(ctx, testAuthority))

	_, err := env.registry.Snapshot()
	assert.True(t, apperrors.IsType(err, apperrors.ErrNotInitialized))
	_, err = env.store.LoadRegistry(ctx)
	assert.ErrorIs(t, err, model.ErrRecordNotFound)

	// the registry can be created again afterwards
	_, err = env.registry.Initialize(ctx, testStranger, common.Address{})
	require.NoError(t, err)
}
