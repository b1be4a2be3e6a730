package service

import (
	"context"
	"errors"
	"time"

	"github.com/GoPolymarket/polylend/internal/manager"
	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/GoPolymarket/polylend/internal/pkg/metrics"
	"github.com/ethereum/go-ethereum/common"
)

type ObligationRepo interface {
	GetObligation(ctx context.Context, owner common.Address) (*model.Obligation, error)
	SaveObligation(ctx context.Context, o *model.Obligation) error
	DeleteObligation(ctx context.Context, owner common.Address) error
}

// AuditSink receives one entry per ledger mutation attempt.
type AuditSink interface {
	Log(entry *model.AuditLog)
}

type MutationResult struct {
	Obligation *model.Obligation `json:"obligation"`
	Health     *HealthReport     `json:"health,omitempty"`
}

// ObligationService is the guarded position ledger: every change is applied to a copy,
// health-checked against a registry snapshot and only then persisted.
type ObligationService struct {
	repo     ObligationRepo
	registry *RegistryService
	engine   *RiskEngine
	locks    *manager.KeyedLocker
	audit    AuditSink
	now      func() time.Time
}

func NewObligationService(repo ObligationRepo, registry *RegistryService, engine *RiskEngine, audit AuditSink) *ObligationService {
	return &ObligationService{
		repo:     repo,
		registry: registry,
		engine:   engine,
		locks:    manager.NewKeyedLocker(),
		audit:    audit,
		now:      time.Now,
	}
}

func (s *ObligationService) Init(ctx context.Context, owner common.Address) (*model.Obligation, error) {
	unlock := s.locks.Lock(owner.Hex())
	defer unlock()

	_, err := s.repo.GetObligation(ctx, owner)
	switch {
	case err == nil:
		return nil, apperrors.Newf(apperrors.ErrAlreadyInitialized, "obligation for %s already initialized", owner.Hex())
	case !errors.Is(err, model.ErrRecordNotFound):
		return nil, apperrors.New(apperrors.ErrInternal, "failed to load obligation", err)
	}

	o := model.NewObligation(owner)
	o.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveObligation(ctx, o); err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "failed to persist obligation", err)
	}
	logger.Info("obligation initialized", "owner", owner.Hex())
	return o.Clone(), nil
}

func (s *ObligationService) AddDeposit(ctx context.Context, owner common.Address, assetID uint8, amount uint64) (*MutationResult, error) {
	return s.mutate(ctx, owner, model.OpAddDeposit, assetID, amount)
}

func (s *ObligationService) RemoveDeposit(ctx context.Context, owner common.Address, assetID uint8, amount uint64) (*MutationResult, error) {
	return s.mutate(ctx, owner, model.OpRemoveDeposit, assetID, amount)
}

func (s *ObligationService) AddBorrow(ctx context.Context, owner common.Address, assetID uint8, amount uint64) (*MutationResult, error) {
	return s.mutate(ctx, owner, model.OpAddBorrow, assetID, amount)
}

func (s *ObligationService) RemoveBorrow(ctx context.Context, owner common.Address, assetID uint8, amount uint64) (*MutationResult, error) {
	return s.mutate(ctx, owner, model.OpRemoveBorrow, assetID, amount)
}

func (s *ObligationService) mutate(ctx context.Context, owner common.Address, op model.LedgerOp, assetID uint8, amount uint64) (*MutationResult, error) {
	unlock := s.locks.Lock(owner.Hex())
	defer unlock()

	entry := &model.AuditLog{
		Owner:     owner,
		Operation: op,
		AssetID:   assetID,
		Amount:    amount,
	}

	current, err := s.load(ctx, owner)
	if err != nil {
		return nil, s.reject(entry, err)
	}
	reg, err := s.registry.Snapshot()
	if err != nil {
		return nil, s.reject(entry, err)
	}

	tentative := current.Clone()
	if err := tentative.Apply(op, reg, assetID, amount); err != nil {
		return nil, s.reject(entry, err)
	}

	// 数量为 0 时头寸不变，无需健康检查
	if amount == 0 {
		entry.Outcome = model.OutcomeNoop
		entry.HealthScore = FormatScore(current.HealthScore)
		s.record(entry)
		return &MutationResult{Obligation: current}, nil
	}

	report, err := s.engine.Evaluate(ctx, reg, tentative.Deposits, tentative.Borrows)
	if err != nil {
		return nil, s.reject(entry, err)
	}
	entry.HealthScore = report.Score()
	if !report.Healthy {
		metrics.HealthRejects.WithLabelValues(string(op)).Inc()
		logger.Info("ledger mutation rejected by health check",
			"owner", owner.Hex(),
			"op", op,
			"asset_id", assetID,
			"amount", amount,
			"score", report.Score(),
		)
		return nil, s.reject(entry, apperrors.Newf(apperrors.ErrUnhealthy,
			"obligation would be unhealthy: score %s below %s", report.Score(), FormatScore(HealthyThreshold)))
	}

	tentative.HealthScore = report.ScoreX1000
	tentative.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveObligation(ctx, tentative); err != nil {
		return nil, s.reject(entry, apperrors.New(apperrors.ErrInternal, "failed to persist obligation", err))
	}

	entry.Outcome = model.OutcomeApplied
	s.record(entry)
	return &MutationResult{Obligation: tentative.Clone(), Health: report}, nil
}

// ReadAll returns the registry together with the owner's obligation. Either part is
// omitted when it has not been initialized.
func (s *ObligationService) ReadAll(ctx context.Context, owner common.Address) (*model.Snapshot, error) {
	snap := &model.Snapshot{}
	if reg, err := s.registry.Snapshot(); err == nil {
		snap.Registry = reg
	}
	o, err := s.repo.GetObligation(ctx, owner)
	switch {
	case err == nil:
		snap.Obligation = o
		snap.HealthScore = FormatScore(o.HealthScore)
	case !errors.Is(err, model.ErrRecordNotFound):
		return nil, apperrors.New(apperrors.ErrInternal, "failed to load obligation", err)
	}
	return snap, nil
}

// Evaluate re-runs the health check on the stored obligation without changing it.
func (s *ObligationService) Evaluate(ctx context.Context, owner common.Address) (*HealthReport, error) {
	o, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	reg, err := s.registry.Snapshot()
	if err != nil {
		return nil, err
	}
	return s.engine.Evaluate(ctx, reg, o.Deposits, o.Borrows)
}

func (s *ObligationService) Delete(ctx context.Context, owner common.Address) error {
	unlock := s.locks.Lock(owner.Hex())
	defer unlock()

	if _, err := s.load(ctx, owner); err != nil {
		return err
	}
	if err := s.repo.DeleteObligation(ctx, owner); err != nil && !errors.Is(err, model.ErrRecordNotFound) {
		return apperrors.New(apperrors.ErrInternal, "failed to delete obligation", err)
	}
	logger.Info("obligation deleted", "owner", owner.Hex())
	return nil
}

func (s *ObligationService) load(ctx context.Context, owner common.Address) (*model.Obligation, error) {
	o, err := s.repo.GetObligation(ctx, owner)
	if errors.Is(err, model.ErrRecordNotFound) {
		return nil, apperrors.Newf(apperrors.ErrNotInitialized, "obligation for %s not initialized", owner.Hex())
	}
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "failed to load obligation", err)
	}
	return o, nil
}

func (s *ObligationService) reject(entry *model.AuditLog, err error) error {
	entry.Outcome = model.OutcomeRejected
	entry.ErrorCode = string(apperrors.TypeOf(err))
	s.record(entry)
	return err
}

func (s *ObligationService) record(entry *model.AuditLog) {
	metrics.MutationsTotal.WithLabelValues(string(entry.Operation), entry.Outcome).Inc()
	if s.audit == nil {
		return
	}
	entry.CreatedAt = s.now().UTC()
	s.audit.Log(entry)
}
