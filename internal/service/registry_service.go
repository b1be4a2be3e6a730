package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/oracle"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/GoPolymarket/polylend/internal/pkg/metrics"
	"github.com/ethereum/go-ethereum/common"
)

type RegistryRepo interface {
	LoadRegistry(ctx context.Context) (*model.AssetRegistry, error)
	SaveRegistry(ctx context.Context, reg *model.AssetRegistry) error
	DeleteRegistry(ctx context.Context) error
}

// RegistryService owns the single asset registry. Readers get deep copies; writers
// mutate a clone, persist it, then swap it in, so a health check never sees a half-applied write.
type RegistryService struct {
	mu      sync.RWMutex
	current *model.AssetRegistry
	repo    RegistryRepo

	resolver      oracle.PriceResolver
	refreshMaxAge time.Duration
	oracleTimeout time.Duration
}

func NewRegistryService(repo RegistryRepo, resolver oracle.PriceResolver, refreshMaxAge, oracleTimeout time.Duration) *RegistryService {
	return &RegistryService{
		repo:          repo,
		resolver:      resolver,
		refreshMaxAge: refreshMaxAge,
		oracleTimeout: oracleTimeout,
	}
}

// Load pulls the persisted registry into memory. A missing record is not an error.
func (s *RegistryService) Load(ctx context.Context) error {
	reg, err := s.repo.LoadRegistry(ctx)
	if errors.Is(err, model.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.New(apperrors.ErrInternal, "failed to load asset registry", err)
	}
	s.mu.Lock()
	s.current = reg
	s.mu.Unlock()
	logger.Info("asset registry loaded", "assets", len(reg.Assets), "risk_params", len(reg.RiskParams))
	return nil
}

// Snapshot returns a consistent deep copy of the registry.
func (s *RegistryService) Snapshot() (*model.AssetRegistry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, apperrors.New(apperrors.ErrNotInitialized, "asset registry not initialized", nil)
	}
	return s.current.Clone(), nil
}

// Initialize creates the empty registry. A zero authority defaults to the caller.
func (s *RegistryService) Initialize(ctx context.Context, caller, authority common.Address) (*model.AssetRegistry, error) {
	if authority == (common.Address{}) {
		authority = caller
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return nil, s.fail("initialize", apperrors.New(apperrors.ErrAlreadyInitialized, "asset registry already initialized", nil))
	}
	reg := model.NewAssetRegistry(authority)
	if err := s.repo.SaveRegistry(ctx, reg); err != nil {
		return nil, s.fail("initialize", apperrors.New(apperrors.ErrInternal, "failed to persist asset registry", err))
	}
	s.current = reg
	metrics.RegistryOpsTotal.WithLabelValues("initialize", "ok").Inc()
	logger.Info("asset registry initialized", "authority", authority.Hex())
	return reg.Clone(), nil
}

func (s *RegistryService) AddAsset(ctx context.Context, caller common.Address, asset model.AssetInfo) (*model.AssetRegistry, error) {
	return s.write(ctx, "add_asset", caller, func(reg *model.AssetRegistry) error {
		return reg.AddAsset(asset)
	})
}

func (s *RegistryService) UpdatePrice(ctx context.Context, caller common.Address, id uint8, price uint64) (*model.AssetRegistry, error) {
	return s.write(ctx, "update_price", caller, func(reg *model.AssetRegistry) error {
		return reg.UpdatePrice(id, price)
	})
}

func (s *RegistryService) AddRiskParam(ctx context.Context, caller common.Address, a, b, level uint8) (*model.AssetRegistry, error) {
	return s.write(ctx, "add_risk_param", caller, func(reg *model.AssetRegistry) error {
		return reg.AddRiskParam(a, b, level)
	})
}

// RefreshPrice overwrites an asset's fallback price with the live feed value.
// Anyone may trigger it; the feed is the source of truth.
func (s *RegistryService) RefreshPrice(ctx context.Context, id uint8) (uint64, error) {
	reg, err := s.Snapshot()
	if err != nil {
		return 0, s.fail("refresh_price", err)
	}
	asset, ok := reg.Asset(id)
	if !ok {
		return 0, s.fail("refresh_price", apperrors.Newf(apperrors.ErrAssetNotFound, "asset %d not found in registry", id))
	}
	if asset.OracleFeedID == "" || s.resolver == nil {
		return 0, s.fail("refresh_price", apperrors.Newf(apperrors.ErrInvalidPriceUpdate, "asset %d has no oracle feed", id))
	}

	fetchCtx := ctx
	if s.oracleTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.oracleTimeout)
		defer cancel()
	}
	price, err := s.resolver.GetPrice(fetchCtx, asset.OracleFeedID, s.refreshMaxAge)
	if err != nil {
		return 0, s.fail("refresh_price", mapOracleError(err, asset.OracleFeedID))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0, s.fail("refresh_price", apperrors.New(apperrors.ErrNotInitialized, "asset registry not initialized", nil))
	}
	next := s.current.Clone()
	if err := next.UpdatePrice(id, price); err != nil {
		return 0, s.fail("refresh_price", err)
	}
	if err := s.repo.SaveRegistry(ctx, next); err != nil {
		return 0, s.fail("refresh_price", apperrors.New(apperrors.ErrInternal, "failed to persist asset registry", err))
	}
	s.current = next
	metrics.RegistryOpsTotal.WithLabelValues("refresh_price", "ok").Inc()
	logger.Info("asset price refreshed", "asset_id", id, "feed", asset.OracleFeedID, "old_price", asset.Price, "price", price)
	return price, nil
}

func (s *RegistryService) Delete(ctx context.Context, caller common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorize(caller); err != nil {
		return s.fail("delete", err)
	}
	if err := s.repo.DeleteRegistry(ctx); err != nil && !errors.Is(err, model.ErrRecordNotFound) {
		return s.fail("delete", apperrors.New(apperrors.ErrInternal, "failed to delete asset registry", err))
	}
	s.current = nil
	metrics.RegistryOpsTotal.WithLabelValues("delete", "ok").Inc()
	logger.Info("asset registry deleted", "caller", caller.Hex())
	return nil
}

func (s *RegistryService) write(ctx context.Context, op string, caller common.Address, mutate func(*model.AssetRegistry) error) (*model.AssetRegistry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorize(caller); err != nil {
		return nil, s.fail(op, err)
	}
	next := s.current.Clone()
	if err := mutate(next); err != nil {
		return nil, s.fail(op, err)
	}
	if err := s.repo.SaveRegistry(ctx, next); err != nil {
		return nil, s.fail(op, apperrors.New(apperrors.ErrInternal, "failed to persist asset registry", err))
	}
	s.current = next
	metrics.RegistryOpsTotal.WithLabelValues(op, "ok").Inc()
	logger.Info("asset registry updated", "op", op, "assets", len(next.Assets), "risk_params", len(next.RiskParams))
	return next.Clone(), nil
}

// authorize expects s.mu to be held.
func (s *RegistryService) authorize(caller common.Address) error {
	if s.current == nil {
		return apperrors.New(apperrors.ErrNotInitialized, "asset registry not initialized", nil)
	}
	if caller != s.current.Authority {
		return apperrors.Newf(apperrors.ErrUnauthorized, "caller %s is not the registry authority", caller.Hex())
	}
	return nil
}

func (s *RegistryService) fail(op string, err error) error {
	metrics.RegistryOpsTotal.WithLabelValues(op, string(apperrors.TypeOf(err))).Inc()
	return err
}

func mapOracleError(err error, feed string) error {
	switch {
	case errors.Is(err, oracle.ErrPriceTooOld):
		return apperrors.New(apperrors.ErrPriceTooOld, "price feed "+feed+" is stale", err)
	case errors.Is(err, oracle.ErrInvalidPrice):
		return apperrors.New(apperrors.ErrInvalidPriceUpdate, "price feed "+feed+" returned an unusable price", err)
	default:
		return apperrors.New(apperrors.ErrOracleUnavailable, "price feed "+feed+" unavailable", err)
	}
}
