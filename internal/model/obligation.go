package model

import (
	"time"

	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/pkg/money"
	"github.com/ethereum/go-ethereum/common"
)

const (
	MaxDeposits = 11
	MaxBorrows  = 10
)

type Position struct {
	AssetID uint8  `json:"asset_id"`
	Amount  uint64 `json:"amount"`
}

// Obligation 某个 owner 的全部存款与借款头寸
type Obligation struct {
	Owner    common.Address `json:"owner"`
	Deposits []Position     `json:"deposits"`
	Borrows  []Position     `json:"borrows"`
	// HealthScore is the x1000 score from the last successful mutation.
	// money.Unbounded means the obligation carried no measurable debt.
	HealthScore uint64    `json:"health_score"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewObligation(owner common.Address) *Obligation {
	return &Obligation{
		Owner:       owner,
		Deposits:    make([]Position, 0),
		Borrows:     make([]Position, 0),
		HealthScore: money.Unbounded,
	}
}

func (o *Obligation) Clone() *Obligation {
	if o == nil {
		return nil
	}
	out := *o
	out.Deposits = make([]Position, len(o.Deposits))
	copy(out.Deposits, o.Deposits)
	out.Borrows = make([]Position, len(o.Borrows))
	copy(out.Borrows, o.Borrows)
	return &out
}

// LedgerOp names a position change.
type LedgerOp string

const (
	OpAddDeposit    LedgerOp = "add_deposit"
	OpRemoveDeposit LedgerOp = "remove_deposit"
	OpAddBorrow     LedgerOp = "add_borrow"
	OpRemoveBorrow  LedgerOp = "remove_borrow"
)

func (op LedgerOp) Valid() bool {
	switch op {
	case OpAddDeposit, OpRemoveDeposit, OpAddBorrow, OpRemoveBorrow:
		return true
	}
	return false
}

// Apply performs op in place. Callers that need atomicity apply it to a Clone.
func (o *Obligation) Apply(op LedgerOp, reg *AssetRegistry, assetID uint8, amount uint64) error {
	switch op {
	case OpAddDeposit:
		return o.AddDeposit(reg, assetID, amount)
	case OpRemoveDeposit:
		return o.RemoveDeposit(assetID, amount)
	case OpAddBorrow:
		return o.AddBorrow(reg, assetID, amount)
	case OpRemoveBorrow:
		return o.RemoveBorrow(assetID, amount)
	default:
		return apperrors.Newf(apperrors.ErrInvalidRequest, "unknown ledger operation %q", op)
	}
}

func (o *Obligation) AddDeposit(reg *AssetRegistry, assetID uint8, amount uint64) error {
	if reg == nil || !reg.HasAsset(assetID) {
		return apperrors.Newf(apperrors.ErrAssetNotFound, "asset %d not found in registry", assetID)
	}
	list, err := addPosition(o.Deposits, assetID, amount, MaxDeposits, "deposit")
	if err != nil {
		return err
	}
	o.Deposits = list
	return nil
}

func (o *Obligation) AddBorrow(reg *AssetRegistry, assetID uint8, amount uint64) error {
	if reg == nil || !reg.HasAsset(assetID) {
		return apperrors.Newf(apperrors.ErrAssetNotFound, "asset %d not found in registry", assetID)
	}
	list, err := addPosition(o.Borrows, assetID, amount, MaxBorrows, "borrow")
	if err != nil {
		return err
	}
	o.Borrows = list
	return nil
}

func (o *Obligation) RemoveDeposit(assetID uint8, amount uint64) error {
	if amount == 0 {
		return nil
	}
	list, err := removePosition(o.Deposits, assetID, amount,
		apperrors.ErrDepositNotFound, apperrors.ErrInsufficientDeposit, "deposit")
	if err != nil {
		return err
	}
	o.Deposits = list
	return nil
}

func (o *Obligation) RemoveBorrow(assetID uint8, amount uint64) error {
	if amount == 0 {
		return nil
	}
	list, err := removePosition(o.Borrows, assetID, amount,
		apperrors.ErrBorrowNotFound, apperrors.ErrInsufficientBorrow, "borrow")
	if err != nil {
		return err
	}
	o.Borrows = list
	return nil
}

func addPosition(list []Position, assetID uint8, amount uint64, limit int, kind string) ([]Position, error) {
	for i := range list {
		if list[i].AssetID != assetID {
			continue
		}
		sum, ok := money.CheckedAdd(list[i].Amount, amount)
		if !ok {
			return list, apperrors.Newf(apperrors.ErrMathOverflow, "%s of asset %d would overflow", kind, assetID)
		}
		out := append([]Position(nil), list...)
		out[i].Amount = sum
		return out, nil
	}
	// 不保存数量为 0 的头寸
	if amount == 0 {
		return list, nil
	}
	return appendBounded(list, Position{AssetID: assetID, Amount: amount}, limit, kind+" slots")
}

func removePosition(list []Position, assetID uint8, amount uint64, notFound, insufficient apperrors.ErrorType, kind string) ([]Position, error) {
	idx := -1
	for i := range list {
		if list[i].AssetID == assetID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return list, apperrors.Newf(notFound, "%s not found for asset %d", kind, assetID)
	}
	if list[idx].Amount < amount {
		return list, apperrors.Newf(insufficient, "insufficient %s: have %d, requested %d", kind, list[idx].Amount, amount)
	}

	out := make([]Position, 0, len(list))
	for i, p := range list {
		if i == idx {
			p.Amount -= amount
			if p.Amount == 0 {
				continue
			}
		}
		out = append(out, p)
	}
	return out, nil
}
