package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

type registryRecord struct {
	ID         string                `gorm:"primaryKey;size:64"`
	Authority  string                `gorm:"size:42;not null"`
	Assets     []model.AssetInfo     `gorm:"serializer:json;type:text"`
	RiskParams []model.PairRiskParam `gorm:"serializer:json;type:text"`
	UpdatedAt  time.Time
}

func (registryRecord) TableName() string { return "asset_registries" }

// uint64 amounts and scores are stored as decimal strings: postgres has no unsigned bigint.
type obligationRecord struct {
	Owner       string           `gorm:"primaryKey;size:42"`
	Deposits    []model.Position `gorm:"serializer:json;type:text"`
	Borrows     []model.Position `gorm:"serializer:json;type:text"`
	HealthScore string           `gorm:"size:20;not null"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime:false"`
}

func (obligationRecord) TableName() string { return "obligations" }

type auditRecord struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Owner       string    `gorm:"size:42;index:idx_audit_owner_created,priority:1"`
	Operation   string    `gorm:"size:32"`
	AssetID     uint8     `gorm:"not null"`
	Amount      string    `gorm:"size:20"`
	Outcome     string    `gorm:"size:16"`
	ErrorCode   string    `gorm:"size:64"`
	HealthScore string    `gorm:"size:32"`
	CreatedAt   time.Time `gorm:"index:idx_audit_owner_created,priority:2"`
}

func (auditRecord) TableName() string { return "audit_logs" }

// GormStore persists the registry, obligations and the audit trail through gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&registryRecord{}, &obligationRecord{}, &auditRecord{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) LoadRegistry(ctx context.Context) (*model.AssetRegistry, error) {
	var rec registryRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", model.RegistryKey).Error; err != nil {
		return nil, translate(err)
	}
	reg := model.NewAssetRegistry(common.HexToAddress(rec.Authority))
	if rec.Assets != nil {
		reg.Assets = rec.Assets
	}
	if rec.RiskParams != nil {
		reg.RiskParams = rec.RiskParams
	}
	return reg, nil
}

func (s *GormStore) SaveRegistry(ctx context.Context, reg *model.AssetRegistry) error {
	rec := registryRecord{
		ID:         model.RegistryKey,
		Authority:  reg.Authority.Hex(),
		Assets:     reg.Assets,
		RiskParams: reg.RiskParams,
	}
	return s.db.WithContext(ctx).Save(&rec).Error
}

func (s *GormStore) DeleteRegistry(ctx context.Context) error {
	res := s.db.WithContext(ctx).Delete(&registryRecord{}, "id = ?", model.RegistryKey)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrRecordNotFound
	}
	return nil
}

func (s *GormStore) GetObligation(ctx context.Context, owner common.Address) (*model.Obligation, error) {
	var rec obligationRecord
	if err := s.db.WithContext(ctx).First(&rec, "owner = ?", owner.Hex()).Error; err != nil {
		return nil, translate(err)
	}
	score, err := strconv.ParseUint(rec.HealthScore, 10, 64)
	if err != nil {
		return nil, err
	}
	o := model.NewObligation(owner)
	if rec.Deposits != nil {
		o.Deposits = rec.Deposits
	}
	if rec.Borrows != nil {
		o.Borrows = rec.Borrows
	}
	o.HealthScore = score
	o.UpdatedAt = rec.UpdatedAt.UTC()
	return o, nil
}

func (s *GormStore) SaveObligation(ctx context.Context, o *model.Obligation) error {
	rec := obligationRecord{
		Owner:       o.Owner.Hex(),
		Deposits:    o.Deposits,
		Borrows:     o.Borrows,
		HealthScore: strconv.FormatUint(o.HealthScore, 10),
		UpdatedAt:   o.UpdatedAt,
	}
	return s.db.WithContext(ctx).Save(&rec).Error
}

func (s *GormStore) DeleteObligation(ctx context.Context, owner common.Address) error {
	res := s.db.WithContext(ctx).Delete(&obligationRecord{}, "owner = ?", owner.Hex())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrRecordNotFound
	}
	return nil
}

func (s *GormStore) InsertAudit(ctx context.Context, entry *model.AuditLog) error {
	if entry == nil {
		return nil
	}
	rec := auditRecord{
		ID:          entry.ID,
		Owner:       entry.Owner.Hex(),
		Operation:   string(entry.Operation),
		AssetID:     entry.AssetID,
		Amount:      strconv.FormatUint(entry.Amount, 10),
		Outcome:     entry.Outcome,
		ErrorCode:   entry.ErrorCode,
		HealthScore: entry.HealthScore,
		CreatedAt:   entry.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *GormStore) ListAudit(ctx context.Context, owner common.Address, limit int) ([]*model.AuditLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if owner != (common.Address{}) {
		q = q.Where("owner = ?", owner.Hex())
	}
	var recs []auditRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*model.AuditLog, 0, len(recs))
	for _, rec := range recs {
		amount, _ := strconv.ParseUint(rec.Amount, 10, 64)
		out = append(out, &model.AuditLog{
			ID:          rec.ID,
			Owner:       common.HexToAddress(rec.Owner),
			Operation:   model.LedgerOp(rec.Operation),
			AssetID:     rec.AssetID,
			Amount:      amount,
			Outcome:     rec.Outcome,
			ErrorCode:   rec.ErrorCode,
			HealthScore: rec.HealthScore,
			CreatedAt:   rec.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// Cleanup drops audit entries older than the retention window.
func (s *GormStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	return s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&auditRecord{}).Error
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ErrRecordNotFound
	}
	return err
}
