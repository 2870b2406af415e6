// Package farming implements the staking reward distributor. Accounts stake
// the extranet token and accrue the reward token proportionally to their
// share of the pool at the time each reward deposit lands.
package farming

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardnnetwork/extranet-ledger/internal/db"
	"github.com/ardnnetwork/extranet-ledger/internal/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrZeroAmount          = errors.New("amount must be positive")
	ErrZeroShares          = errors.New("zero shares")
	ErrNoShares            = errors.New("no shares in pool")
	ErrTransfersNotAllowed = errors.New("transfers not allowed")
)

// Scale is the fixed-point precision of the per-share reward accumulator.
var Scale = uint256.NewInt(1_000_000_000_000) // 1e12

type position struct {
	shares *uint256.Int
	debt   *uint256.Int // accRewardPerShare snapshot at last interaction
	row    *db.FarmPosition
}

// Farm is the owned aggregate. Shares are minted 1:1 with the staked amount
// and are not transferable, a share position is a claim, not a token.
type Farm struct {
	mu sync.Mutex

	addr   common.Address
	staked *token.Ledger
	reward *token.Ledger
	gdb    *gorm.DB

	totalShares       *uint256.Int
	accRewardPerShare *uint256.Int
	positions         map[common.Address]*position

	meta *db.FarmMeta
}

func NewFarm(gdb *gorm.DB, addr common.Address, staked, reward *token.Ledger) (*Farm, error) {
	f := &Farm{
		addr:              addr,
		staked:            staked,
		reward:            reward,
		gdb:               gdb,
		totalShares:       uint256.NewInt(0),
		accRewardPerShare: uint256.NewInt(0),
		positions:         make(map[common.Address]*position),
	}

	meta := &db.FarmMeta{}
	err := gdb.First(meta).Error
	if err == gorm.ErrRecordNotFound {
		meta = &db.FarmMeta{TotalShares: "0", AccRewardPerShare: "0", UpdatedAt: time.Now()}
		if err := gdb.Create(meta).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	f.meta = meta
	if f.totalShares, err = uint256.FromDecimal(meta.TotalShares); err != nil {
		return nil, fmt.Errorf("corrupt total shares: %w", err)
	}
	if f.accRewardPerShare, err = uint256.FromDecimal(meta.AccRewardPerShare); err != nil {
		return nil, fmt.Errorf("corrupt reward accumulator: %w", err)
	}

	var rows []*db.FarmPosition
	if err := gdb.Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		shares, err := uint256.FromDecimal(row.Shares)
		if err != nil {
			return nil, fmt.Errorf("corrupt shares for %s: %w", row.Account, err)
		}
		debt, err := uint256.FromDecimal(row.RewardDebt)
		if err != nil {
			return nil, fmt.Errorf("corrupt reward debt for %s: %w", row.Account, err)
		}
		f.positions[common.HexToAddress(row.Account)] = &position{shares: shares, debt: debt, row: row}
	}

	return f, nil
}

func (f *Farm) Address() common.Address {
	return f.addr
}

func (f *Farm) TotalShares() *uint256.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalShares.Clone()
}

// SharesOf reports the staked share balance, it doubles as balanceOf for the
// non-transferable share token.
func (f *Farm) SharesOf(account common.Address) *uint256.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pos, ok := f.positions[account]; ok {
		return pos.shares.Clone()
	}
	return uint256.NewInt(0)
}

// RewardAmount is a pure read of the account's pending reward,
// shares * (accRewardPerShare - rewardDebt) / Scale.
func (f *Farm) RewardAmount(account common.Address) *uint256.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos, ok := f.positions[account]
	if !ok {
		return uint256.NewInt(0)
	}
	return f.pending(pos)
}

// Transfer always fails, reward entitlement must not move between accounts.
func (f *Farm) Transfer(from, to common.Address, amount *uint256.Int) error {
	return ErrTransfersNotAllowed
}

// Enter stakes amount of the staked token, pulled via allowance. The stake is
// pulled before any state changes, a rejected pull leaves position and reward
// untouched. Pending reward settles before the position grows so the new
// shares inherit nothing retroactively.
func (f *Farm) Enter(account common.Address, amount *uint256.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}

	if err := f.staked.TransferFrom(f.addr, account, f.addr, amount); err != nil {
		return err
	}

	pos, ok := f.positions[account]
	if ok {
		if err := f.settle(account, pos); err != nil {
			return err
		}
	} else {
		pos = &position{shares: uint256.NewInt(0), debt: uint256.NewInt(0)}
		f.positions[account] = pos
	}

	pos.shares = new(uint256.Int).Add(pos.shares, amount)
	pos.debt = f.accRewardPerShare.Clone()
	f.totalShares = new(uint256.Int).Add(f.totalShares, amount)

	return f.gdb.Transaction(func(tx *gorm.DB) error {
		if err := f.savePosition(tx, account, pos); err != nil {
			return err
		}
		return f.saveMeta(tx)
	})
}

// Leave settles the pending reward and returns the full stake, destroying the
// position.
func (f *Farm) Leave(account common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	pos, ok := f.positions[account]
	if !ok || pos.shares.IsZero() {
		return ErrZeroShares
	}

	if err := f.settle(account, pos); err != nil {
		return err
	}
	if err := f.staked.Transfer(f.addr, account, pos.shares); err != nil {
		return err
	}

	f.totalShares = new(uint256.Int).Sub(f.totalShares, pos.shares)
	delete(f.positions, account)

	return f.gdb.Transaction(func(tx *gorm.DB) error {
		if pos.row != nil {
			if err := tx.Delete(pos.row).Error; err != nil {
				return err
			}
		}
		return f.saveMeta(tx)
	})
}

// OnIncent distributes a reward deposit across current stakers. The reward
// tokens must already sit on the farm account. A deposit with no stakers is
// rejected, accepting it would either divide by zero or strand value.
func (f *Farm) OnIncent(amount *uint256.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	if f.totalShares.IsZero() {
		return ErrNoShares
	}

	scaled := new(uint256.Int).Mul(amount, Scale)
	perShare := new(uint256.Int).Div(scaled, f.totalShares)
	f.accRewardPerShare = new(uint256.Int).Add(f.accRewardPerShare, perShare)

	log.Debugf("Farm reward deposit %s across %s shares", amount.Dec(), f.totalShares.Dec())
	return f.saveMeta(f.gdb)
}

func (f *Farm) pending(pos *position) *uint256.Int {
	delta := new(uint256.Int).Sub(f.accRewardPerShare, pos.debt)
	earned := new(uint256.Int).Mul(pos.shares, delta)
	return earned.Div(earned, Scale)
}

func (f *Farm) settle(account common.Address, pos *position) error {
	pending := f.pending(pos)
	if pending.IsZero() {
		return nil
	}
	if err := f.reward.Transfer(f.addr, account, pending); err != nil {
		return err
	}
	pos.debt = f.accRewardPerShare.Clone()
	if pos.row != nil {
		return f.savePosition(f.gdb, account, pos)
	}
	return nil
}

func (f *Farm) savePosition(tx *gorm.DB, account common.Address, pos *position) error {
	if pos.row == nil {
		pos.row = &db.FarmPosition{Account: account.Hex()}
	}
	pos.row.Shares = pos.shares.Dec()
	pos.row.RewardDebt = pos.debt.Dec()
	pos.row.UpdatedAt = time.Now()
	return tx.Save(pos.row).Error
}

func (f *Farm) saveMeta(tx *gorm.DB) error {
	f.meta.TotalShares = f.totalShares.Dec()
	f.meta.AccRewardPerShare = f.accRewardPerShare.Dec()
	f.meta.UpdatedAt = time.Now()
	return tx.Save(f.meta).Error
}
