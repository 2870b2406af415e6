// Package token implements the fungible balance ledger backing every asset in
// the system: quote token, vault token, reward token and the extranet token.
// The ledger is a capability object, holding a *Ledger grants mint and burn
// authority; role checks belong to the components composing it.
package token

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardnnetwork/extranet-ledger/internal/db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gorm.io/gorm"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrOverflow              = errors.New("amount overflows supply")
)

// Unlimited is the infinite-allowance sentinel. It is compared by value and
// never decremented.
var Unlimited = new(uint256.Int).SetAllOne()

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

type Ledger struct {
	mu sync.Mutex

	gdb      *gorm.DB
	name     string
	symbol   string
	decimals uint8

	totalSupply *uint256.Int
	balances    map[common.Address]*uint256.Int
	allowances  map[allowanceKey]*uint256.Int

	meta          *db.TokenMeta
	balanceRows   map[common.Address]*db.TokenBalance
	allowanceRows map[allowanceKey]*db.TokenAllowance
}

// NewLedger opens (or creates) the ledger persisted under symbol and loads
// all balances and allowances into memory.
func NewLedger(gdb *gorm.DB, name, symbol string, decimals uint8) (*Ledger, error) {
	l := &Ledger{
		gdb:           gdb,
		name:          name,
		symbol:        symbol,
		decimals:      decimals,
		totalSupply:   uint256.NewInt(0),
		balances:      make(map[common.Address]*uint256.Int),
		allowances:    make(map[allowanceKey]*uint256.Int),
		balanceRows:   make(map[common.Address]*db.TokenBalance),
		allowanceRows: make(map[allowanceKey]*db.TokenAllowance),
	}

	meta := &db.TokenMeta{}
	err := gdb.Where("symbol = ?", symbol).First(meta).Error
	if err == gorm.ErrRecordNotFound {
		meta = &db.TokenMeta{Symbol: symbol, Name: name, Decimals: decimals, TotalSupply: "0", UpdatedAt: time.Now()}
		if err := gdb.Create(meta).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	l.meta = meta
	if l.totalSupply, err = uint256.FromDecimal(meta.TotalSupply); err != nil {
		return nil, fmt.Errorf("corrupt total supply for %s: %w", symbol, err)
	}

	var balanceRows []*db.TokenBalance
	if err := gdb.Where("symbol = ?", symbol).Find(&balanceRows).Error; err != nil {
		return nil, err
	}
	for _, row := range balanceRows {
		amount, err := uint256.FromDecimal(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt balance for %s/%s: %w", symbol, row.Account, err)
		}
		account := common.HexToAddress(row.Account)
		l.balances[account] = amount
		l.balanceRows[account] = row
	}

	var allowanceRows []*db.TokenAllowance
	if err := gdb.Where("symbol = ?", symbol).Find(&allowanceRows).Error; err != nil {
		return nil, err
	}
	for _, row := range allowanceRows {
		amount, err := uint256.FromDecimal(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt allowance for %s/%s: %w", symbol, row.Owner, err)
		}
		key := allowanceKey{common.HexToAddress(row.Owner), common.HexToAddress(row.Spender)}
		l.allowances[key] = amount
		l.allowanceRows[key] = row
	}

	return l, nil
}

func (l *Ledger) Name() string {
	return l.name
}

func (l *Ledger) Symbol() string {
	return l.symbol
}

func (l *Ledger) Decimals() uint8 {
	return l.decimals
}

func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalSupply.Clone()
}

func (l *Ledger) BalanceOf(account common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(account).Clone()
}

func (l *Ledger) Allowance(owner, spender common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowance(owner, spender).Clone()
}

func (l *Ledger) Mint(to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	newSupply, overflow := new(uint256.Int).AddOverflow(l.totalSupply, amount)
	if overflow {
		return ErrOverflow
	}

	newBalance := new(uint256.Int).Add(l.balance(to), amount)
	l.totalSupply = newSupply
	l.balances[to] = newBalance
	return l.persist(func(tx *gorm.DB) error {
		if err := l.saveBalance(tx, to); err != nil {
			return err
		}
		return l.saveMeta(tx)
	})
}

func (l *Ledger) Burn(from common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balance(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: burn %s exceeds balance %s of %s", ErrInsufficientBalance, amount.Dec(), balance.Dec(), from.Hex())
	}

	l.balances[from] = new(uint256.Int).Sub(balance, amount)
	l.totalSupply = new(uint256.Int).Sub(l.totalSupply, amount)
	return l.persist(func(tx *gorm.DB) error {
		if err := l.saveBalance(tx, from); err != nil {
			return err
		}
		return l.saveMeta(tx)
	})
}

func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(from, to, amount)
}

// Approve replaces the allowance owner grants to spender. Approving Unlimited
// installs the never-decremented sentinel.
func (l *Ledger) Approve(owner, spender common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := allowanceKey{owner, spender}
	l.allowances[key] = amount.Clone()
	return l.persist(func(tx *gorm.DB) error {
		return l.saveAllowance(tx, key)
	})
}

// TransferFrom moves owner funds on behalf of spender, decrementing the
// allowance by exactly the transferred amount.
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := allowanceKey{from, spender}
	allowance := l.allowance(from, spender)
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: spender %s has %s of %s, needs %s", ErrInsufficientAllowance, spender.Hex(), allowance.Dec(), from.Hex(), amount.Dec())
	}

	if err := l.transfer(from, to, amount); err != nil {
		return err
	}

	if allowance.Eq(Unlimited) {
		return nil
	}
	l.allowances[key] = new(uint256.Int).Sub(allowance, amount)
	return l.persist(func(tx *gorm.DB) error {
		return l.saveAllowance(tx, key)
	})
}

func (l *Ledger) balance(account common.Address) *uint256.Int {
	if balance, ok := l.balances[account]; ok {
		return balance
	}
	return uint256.NewInt(0)
}

func (l *Ledger) allowance(owner, spender common.Address) *uint256.Int {
	if allowance, ok := l.allowances[allowanceKey{owner, spender}]; ok {
		return allowance
	}
	return uint256.NewInt(0)
}

func (l *Ledger) transfer(from, to common.Address, amount *uint256.Int) error {
	balance := l.balance(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: transfer %s exceeds balance %s of %s", ErrInsufficientBalance, amount.Dec(), balance.Dec(), from.Hex())
	}

	l.balances[from] = new(uint256.Int).Sub(balance, amount)
	l.balances[to] = new(uint256.Int).Add(l.balance(to), amount)
	return l.persist(func(tx *gorm.DB) error {
		if err := l.saveBalance(tx, from); err != nil {
			return err
		}
		return l.saveBalance(tx, to)
	})
}

func (l *Ledger) persist(fn func(tx *gorm.DB) error) error {
	return l.gdb.Transaction(fn)
}

func (l *Ledger) saveBalance(tx *gorm.DB, account common.Address) error {
	row, ok := l.balanceRows[account]
	if !ok {
		row = &db.TokenBalance{Symbol: l.symbol, Account: account.Hex()}
		l.balanceRows[account] = row
	}
	row.Amount = l.balance(account).Dec()
	row.UpdatedAt = time.Now()
	return tx.Save(row).Error
}

func (l *Ledger) saveAllowance(tx *gorm.DB, key allowanceKey) error {
	row, ok := l.allowanceRows[key]
	if !ok {
		row = &db.TokenAllowance{Symbol: l.symbol, Owner: key.owner.Hex(), Spender: key.spender.Hex()}
		l.allowanceRows[key] = row
	}
	row.Amount = l.allowance(key.owner, key.spender).Dec()
	row.UpdatedAt = time.Now()
	return tx.Save(row).Error
}

func (l *Ledger) saveMeta(tx *gorm.DB) error {
	l.meta.TotalSupply = l.totalSupply.Dec()
	l.meta.UpdatedAt = time.Now()
	return tx.Save(l.meta).Error
}
