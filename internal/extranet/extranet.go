// Package extranet implements the queued settlement engine. Investments and
// withdrawals are escrowed into ordered queues and batch-settled by the
// trader at an externally attested price, bounded by a cap and a deadline.
package extranet

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardnnetwork/extranet-ledger/internal/db"
	"github.com/ardnnetwork/extranet-ledger/internal/guard"
	"github.com/ardnnetwork/extranet-ledger/internal/rbac"
	"github.com/ardnnetwork/extranet-ledger/internal/state"
	"github.com/ardnnetwork/extranet-ledger/internal/token"
	"github.com/ardnnetwork/extranet-ledger/internal/txlog"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gorm.io/gorm"
)

var (
	ErrZeroAmount      = errors.New("amount must be positive")
	ErrBelowMinimum    = errors.New("amount below minimum")
	ErrExpired         = errors.New("deadline expired")
	ErrZeroPrice       = errors.New("price amounts must be positive")
	ErrBalanceExceeded = errors.New("settlement exceeds custody balance")
	ErrWrongIndex      = errors.New("no entry for account at index")
	ErrFeeTooHigh      = errors.New("fee percent above 100")
	ErrOverflow        = errors.New("settlement math overflows")
)

const (
	SideInvestment = "investment"
	SideWithdrawal = "withdrawal"

	// WithdrawalFeePercentDecimals fixes the fee precision: a stored value of
	// 2000 means 20%.
	WithdrawalFeePercentDecimals = 2
)

// feeScale is 100 * 10^WithdrawalFeePercentDecimals.
var feeScale = uint256.NewInt(10_000)

var maxFeePercent = uint256.NewInt(10_000) // 100%

type queueEntry struct {
	account common.Address
	amount  *uint256.Int
	row     *db.QueueEntry
}

type Params struct {
	MinInvestment        *uint256.Int
	MinWithdrawal        *uint256.Int
	WithdrawalFeePercent *uint256.Int
	FeeRecipient         common.Address
}

// Engine owns the extranet token ledger outright, every supply change goes
// through Mint/Burn or queue settlement. The quote ledger is only touched
// through transfer and allowance calls.
type Engine struct {
	mu sync.Mutex

	addr  common.Address
	token *token.Ledger
	quote *token.Ledger
	roles *rbac.Registry
	bus   *state.EventBus
	txs   *txlog.Registry
	gdb   *gorm.DB
	sw    guard.Switch

	investQueue   []*queueEntry
	withdrawQueue []*queueEntry
	investTotal   *uint256.Int
	withdrawTotal *uint256.Int

	minInvestment        *uint256.Int
	minWithdrawal        *uint256.Int
	withdrawalFeePercent *uint256.Int
	feeRecipient         common.Address
	bridgeAddress        common.Address
	bridgeNetworkId      uint64

	meta *db.ExtranetMeta
	now  func() time.Time
}

func NewEngine(gdb *gorm.DB, addr common.Address, extranetToken, quote *token.Ledger, roles *rbac.Registry, bus *state.EventBus, params Params) (*Engine, error) {
	e := &Engine{
		addr:          addr,
		token:         extranetToken,
		quote:         quote,
		roles:         roles,
		bus:           bus,
		gdb:           gdb,
		investTotal:   uint256.NewInt(0),
		withdrawTotal: uint256.NewInt(0),
		now:           time.Now,
	}

	txs, err := txlog.NewRegistry(gdb, "extranet-mint")
	if err != nil {
		return nil, err
	}
	e.txs = txs

	meta := &db.ExtranetMeta{}
	err = gdb.First(meta).Error
	if err == gorm.ErrRecordNotFound {
		meta = &db.ExtranetMeta{
			InvestmentTotal:      "0",
			WithdrawalTotal:      "0",
			MinInvestment:        params.MinInvestment.Dec(),
			MinWithdrawal:        params.MinWithdrawal.Dec(),
			WithdrawalFeePercent: params.WithdrawalFeePercent.Dec(),
			FeeRecipient:         params.FeeRecipient.Hex(),
			UpdatedAt:            time.Now(),
		}
		if err := gdb.Create(meta).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	e.meta = meta

	if e.investTotal, err = uint256.FromDecimal(meta.InvestmentTotal); err != nil {
		return nil, fmt.Errorf("corrupt investment total: %w", err)
	}
	if e.withdrawTotal, err = uint256.FromDecimal(meta.WithdrawalTotal); err != nil {
		return nil, fmt.Errorf("corrupt withdrawal total: %w", err)
	}
	if e.minInvestment, err = uint256.FromDecimal(meta.MinInvestment); err != nil {
		return nil, fmt.Errorf("corrupt min investment: %w", err)
	}
	if e.minWithdrawal, err = uint256.FromDecimal(meta.MinWithdrawal); err != nil {
		return nil, fmt.Errorf("corrupt min withdrawal: %w", err)
	}
	if e.withdrawalFeePercent, err = uint256.FromDecimal(meta.WithdrawalFeePercent); err != nil {
		return nil, fmt.Errorf("corrupt withdrawal fee percent: %w", err)
	}
	e.feeRecipient = common.HexToAddress(meta.FeeRecipient)
	e.bridgeAddress = common.HexToAddress(meta.BridgeAddress)
	e.bridgeNetworkId = meta.BridgeNetworkId
	e.sw.Restore(meta.Paused, meta.Shutdown)

	var rows []*db.QueueEntry
	if err := gdb.Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		amount, err := uint256.FromDecimal(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt queue entry %d: %w", row.ID, err)
		}
		entry := &queueEntry{account: common.HexToAddress(row.Account), amount: amount, row: row}
		switch row.Side {
		case SideInvestment:
			e.investQueue = append(e.investQueue, entry)
		case SideWithdrawal:
			e.withdrawQueue = append(e.withdrawQueue, entry)
		default:
			return nil, fmt.Errorf("corrupt queue entry %d: unknown side %q", row.ID, row.Side)
		}
	}

	return e, nil
}

func (e *Engine) Address() common.Address {
	return e.addr
}

// Token is the extranet token ledger owned by the engine.
func (e *Engine) Token() *token.Ledger {
	return e.token
}

func (e *Engine) Quote() *token.Ledger {
	return e.quote
}

func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sw.Paused()
}

type QueueInfo struct {
	InvestmentAddressListLength int          `json:"investment_address_list_length"`
	WithdrawalAddressListLength int          `json:"withdrawal_address_list_length"`
	InvestmentTotalAmount       *uint256.Int `json:"investment_total_amount"`
	WithdrawalTotalAmount       *uint256.Int `json:"withdrawal_total_amount"`
}

// QueueInfo reads both queue lengths and totals in one consistent snapshot.
func (e *Engine) QueueInfo() QueueInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return QueueInfo{
		InvestmentAddressListLength: len(e.investQueue),
		WithdrawalAddressListLength: len(e.withdrawQueue),
		InvestmentTotalAmount:       e.investTotal.Clone(),
		WithdrawalTotalAmount:       e.withdrawTotal.Clone(),
	}
}

// PendingInvestmentAddressList mirrors queue order. Indices shift left after
// any removal, re-read the list before canceling by index.
func (e *Engine) PendingInvestmentAddressList() []common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return addressList(e.investQueue)
}

func (e *Engine) PendingWithdrawalAddressList() []common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return addressList(e.withdrawQueue)
}

func addressList(queue []*queueEntry) []common.Address {
	list := make([]common.Address, len(queue))
	for i, entry := range queue {
		list[i] = entry.account
	}
	return list
}

func (e *Engine) SetLimits(caller common.Address, minInvestment, minWithdrawal *uint256.Int) error {
	if err := e.roles.Require(rbac.RoleManager, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.minInvestment = minInvestment.Clone()
	e.minWithdrawal = minWithdrawal.Clone()
	return e.saveMeta(e.gdb)
}

func (e *Engine) SetFeeTo(caller, feeRecipient common.Address) error {
	if err := e.roles.Require(rbac.RoleManager, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.feeRecipient = feeRecipient
	return e.saveMeta(e.gdb)
}

func (e *Engine) SetWithdrawalFeePercent(caller common.Address, feePercent *uint256.Int) error {
	if err := e.roles.Require(rbac.RoleManager, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if feePercent.Gt(maxFeePercent) {
		return ErrFeeTooHigh
	}
	e.withdrawalFeePercent = feePercent.Clone()
	return e.saveMeta(e.gdb)
}

// SetBridge pairs the engine with the home-net bridge it mirrors.
func (e *Engine) SetBridge(caller, bridgeAddress common.Address, networkId uint64) error {
	if err := e.roles.Require(rbac.RoleManager, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.bridgeAddress = bridgeAddress
	e.bridgeNetworkId = networkId
	return e.saveMeta(e.gdb)
}

func (e *Engine) Pause(caller common.Address) error {
	if err := e.roles.Require(rbac.RoleManager, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.sw.Pause(); err != nil {
		return err
	}
	return e.saveMeta(e.gdb)
}

func (e *Engine) Unpause(caller common.Address) error {
	if err := e.roles.Require(rbac.RoleManager, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.sw.Unpause(); err != nil {
		return err
	}
	return e.saveMeta(e.gdb)
}

// Shutdown is terminal. Custody balances are swept to the recipient and no
// further invest or withdraw calls are accepted. Pending queue entries stay
// readable so escrow can be reconciled off-line.
func (e *Engine) Shutdown(caller, recipient common.Address) error {
	if err := e.roles.Require(rbac.RoleManager, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.sw.Shutdown(); err != nil {
		return err
	}

	quoteBalance := e.quote.BalanceOf(e.addr)
	if !quoteBalance.IsZero() {
		if err := e.quote.Transfer(e.addr, recipient, quoteBalance); err != nil {
			return err
		}
	}
	tokenBalance := e.token.BalanceOf(e.addr)
	if !tokenBalance.IsZero() {
		if err := e.token.Transfer(e.addr, recipient, tokenBalance); err != nil {
			return err
		}
	}

	return e.saveMeta(e.gdb)
}

func (e *Engine) saveMeta(tx *gorm.DB) error {
	e.meta.InvestmentTotal = e.investTotal.Dec()
	e.meta.WithdrawalTotal = e.withdrawTotal.Dec()
	e.meta.MinInvestment = e.minInvestment.Dec()
	e.meta.MinWithdrawal = e.minWithdrawal.Dec()
	e.meta.WithdrawalFeePercent = e.withdrawalFeePercent.Dec()
	e.meta.FeeRecipient = e.feeRecipient.Hex()
	e.meta.BridgeAddress = e.bridgeAddress.Hex()
	e.meta.BridgeNetworkId = e.bridgeNetworkId
	e.meta.Paused = e.sw.Paused()
	e.meta.Shutdown = e.sw.IsShutdown()
	e.meta.UpdatedAt = time.Now()
	return tx.Save(e.meta).Error
}

func mulDiv(amount, numerator, denominator *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(amount, numerator)
	if overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, denominator), nil
}
