package service

import (
	"context"
	"math/big"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/oracle"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/GoPolymarket/polylend/internal/pkg/metrics"
	"github.com/GoPolymarket/polylend/internal/pkg/money"
	"github.com/shopspring/decimal"
)

const (
	// DefaultRiskLevel applies to deposit/borrow pairs without an explicit risk parameter.
	DefaultRiskLevel = 50
	// HealthyThreshold is the minimum x1000 score of a healthy obligation.
	HealthyThreshold = 1000

	PriceSourceRegistry = "registry"
	PriceSourceOracle   = "oracle"
	PriceSourceFallback = "fallback"
)

// PositionValue is one valued position of a health check.
type PositionValue struct {
	AssetID uint8  `json:"asset_id"`
	Amount  uint64 `json:"amount"`
	Price   uint64 `json:"price"`
	Value   uint64 `json:"value"`
	Source  string `json:"source"`
}

type HealthReport struct {
	ScoreX1000        uint64          `json:"score_x1000"`
	Healthy           bool            `json:"healthy"`
	DebtFree          bool            `json:"debt_free"`
	TotalDepositValue uint64          `json:"total_deposit_value"`
	TotalBorrowValue  uint64          `json:"total_borrow_value"`
	Deposits          []PositionValue `json:"deposits"`
	Borrows           []PositionValue `json:"borrows"`
}

// Score renders the cached score for humans, e.g. "2.666" or "unbounded".
func (r *HealthReport) Score() string {
	return FormatScore(r.ScoreX1000)
}

type RiskEngine struct {
	resolver      oracle.PriceResolver
	healthMaxAge  time.Duration
	oracleTimeout time.Duration
}

func NewRiskEngine(resolver oracle.PriceResolver, healthMaxAge, oracleTimeout time.Duration) *RiskEngine {
	return &RiskEngine{
		resolver:      resolver,
		healthMaxAge:  healthMaxAge,
		oracleTimeout: oracleTimeout,
	}
}

// Evaluate 计算一组头寸的健康分
// reg must be a snapshot nobody mutates while the check runs.
func (e *RiskEngine) Evaluate(ctx context.Context, reg *model.AssetRegistry, deposits, borrows []model.Position) (*HealthReport, error) {
	if reg == nil {
		return nil, apperrors.New(apperrors.ErrNotInitialized, "asset registry not initialized", nil)
	}

	report := &HealthReport{
		Deposits: make([]PositionValue, 0, len(deposits)),
		Borrows:  make([]PositionValue, 0, len(borrows)),
	}
	for _, p := range deposits {
		pv, err := e.value(ctx, reg, p, false)
		if err != nil {
			return nil, err
		}
		report.Deposits = append(report.Deposits, pv)
		report.TotalDepositValue = money.SaturatingAdd(report.TotalDepositValue, pv.Value)
	}
	// 借款向上取整，避免尾数头寸估值为 0
	for _, p := range borrows {
		pv, err := e.value(ctx, reg, p, true)
		if err != nil {
			return nil, err
		}
		report.Borrows = append(report.Borrows, pv)
		report.TotalBorrowValue = money.SaturatingAdd(report.TotalBorrowValue, pv.Value)
	}

	// 没有借款或借款价值为 0 时视为健康
	if len(report.Borrows) == 0 || report.TotalBorrowValue == 0 {
		report.DebtFree = true
		report.Healthy = true
		report.ScoreX1000 = money.Unbounded
		return report, nil
	}

	total := report.TotalBorrowValue
	var weighted uint64
	for _, dep := range report.Deposits {
		var sum uint64
		for _, bor := range report.Borrows {
			share := money.DivOrZero(money.SaturatingMul(bor.Value, 100), total)
			level, ok := reg.RiskLevel(dep.AssetID, bor.AssetID)
			if !ok {
				level = DefaultRiskLevel
			}
			contribution := money.SaturatingMul(share, uint64(level))
			sum = money.SaturatingAdd(sum, contribution)
			logger.Debug("health contribution",
				"deposit_asset", dep.AssetID,
				"borrow_asset", bor.AssetID,
				"borrow_share", share,
				"risk_level", level,
				"explicit_pair", ok,
				"contribution", contribution,
			)
		}
		weighted = money.SaturatingAdd(weighted, money.DivOrZero(money.SaturatingMul(dep.Value, sum), 100))
	}

	report.ScoreX1000 = money.DivOrZero(money.SaturatingMul(weighted, 1000), total) / 100
	report.Healthy = report.ScoreX1000 >= HealthyThreshold
	metrics.HealthScore.Observe(float64(report.ScoreX1000))

	logger.Debug("health check",
		"deposit_value", report.TotalDepositValue,
		"borrow_value", total,
		"weighted", weighted,
		"score_x1000", report.ScoreX1000,
		"healthy", report.Healthy,
	)
	return report, nil
}

func (e *RiskEngine) value(ctx context.Context, reg *model.AssetRegistry, p model.Position, roundUp bool) (PositionValue, error) {
	asset, ok := reg.Asset(p.AssetID)
	if !ok {
		return PositionValue{}, apperrors.Newf(apperrors.ErrAssetNotFound, "asset %d not found in registry", p.AssetID)
	}
	price, source := e.price(ctx, asset)
	value := money.Value(p.Amount, price, asset.Decimals)
	if roundUp {
		value = money.ValueCeil(p.Amount, price, asset.Decimals)
	}
	return PositionValue{
		AssetID: p.AssetID,
		Amount:  p.Amount,
		Price:   price,
		Value:   value,
		Source:  source,
	}, nil
}

// price prefers the live feed and degrades to the registry price on any oracle failure.
func (e *RiskEngine) price(ctx context.Context, asset model.AssetInfo) (uint64, string) {
	if e.resolver == nil || asset.OracleFeedID == "" {
		return asset.Price, PriceSourceRegistry
	}
	if e.oracleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.oracleTimeout)
		defer cancel()
	}
	price, err := e.resolver.GetPrice(ctx, asset.OracleFeedID, e.healthMaxAge)
	if err != nil {
		reason := oracle.Reason(err)
		metrics.OracleFallbacks.WithLabelValues(reason).Inc()
		logger.Warn("oracle price unavailable, using registry price",
			"asset_id", asset.ID,
			"feed", asset.OracleFeedID,
			"reason", reason,
			"fallback_price", asset.Price,
			"error", err.Error(),
		)
		return asset.Price, PriceSourceFallback
	}
	return price, PriceSourceOracle
}

// FormatScore renders an x1000 score with three decimals.
func FormatScore(scoreX1000 uint64) string {
	if scoreX1000 == money.Unbounded {
		return "unbounded"
	}
	return decimal.NewFromBigInt(new(big.Int).SetUint64(scoreX1000), -3).StringFixed(3)
}
