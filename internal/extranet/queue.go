package extranet

import (
	"time"

	"github.com/ardnnetwork/extranet-ledger/internal/db"
	"github.com/ardnnetwork/extranet-ledger/internal/rbac"
	"github.com/ardnnetwork/extranet-ledger/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Invest escrows quote tokens (pulled via allowance) and queues them for the
// next investment settlement. Re-investing merges into the account's pending
// entry, an account never holds two entries in one queue.
func (e *Engine) Invest(account common.Address, amount *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.sw.RequireRunning(); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	if amount.Lt(e.minInvestment) {
		return ErrBelowMinimum
	}

	if err := e.quote.TransferFrom(e.addr, account, e.addr, amount); err != nil {
		return err
	}

	if err := e.enqueue(SideInvestment, account, amount); err != nil {
		return err
	}

	e.bus.Publish(state.InvestmentQueued, state.QueueEvent{Account: account, Amount: amount.Clone()})
	return nil
}

// Withdraw escrows extranet tokens into engine custody and queues them for
// the next withdrawal settlement. The tokens are held, not burned, until the
// entry settles.
func (e *Engine) Withdraw(account common.Address, shareAmount *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.sw.RequireRunning(); err != nil {
		return err
	}
	if shareAmount == nil || shareAmount.IsZero() {
		return ErrZeroAmount
	}
	if shareAmount.Lt(e.minWithdrawal) {
		return ErrBelowMinimum
	}

	if err := e.token.Transfer(account, e.addr, shareAmount); err != nil {
		return err
	}

	if err := e.enqueue(SideWithdrawal, account, shareAmount); err != nil {
		return err
	}

	e.bus.Publish(state.WithdrawalQueued, state.QueueEvent{Account: account, Amount: shareAmount.Clone()})
	return nil
}

// WithdrawForAccount queues the account's entire extranet balance for
// withdrawal on its behalf, bypassing the minimum. Used to evict stranded
// holders before migrations.
func (e *Engine) WithdrawForAccount(caller, account common.Address) error {
	if err := e.roles.Require(rbac.RoleManager, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	balance := e.token.BalanceOf(account)
	if balance.IsZero() {
		return ErrZeroAmount
	}

	if err := e.token.Transfer(account, e.addr, balance); err != nil {
		return err
	}
	if err := e.enqueue(SideWithdrawal, account, balance); err != nil {
		return err
	}

	log.Infof("Queued forced withdrawal of %s for %s", balance.Dec(), account.Hex())
	e.bus.Publish(state.WithdrawalQueued, state.QueueEvent{Account: account, Amount: balance})
	return nil
}

// CancelInvestment removes the caller's pending entry at index and refunds
// the escrowed quote tokens. The index must hold the caller's own entry.
func (e *Engine) CancelInvestment(account common.Address, index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelAt(SideInvestment, account, index)
}

func (e *Engine) CancelWithdrawal(account common.Address, index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelAt(SideWithdrawal, account, index)
}

func (e *Engine) CancelInvestmentForAccountAtIndex(caller, account common.Address, index int) error {
	if err := e.roles.Require(rbac.RoleManager, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelAt(SideInvestment, account, index)
}

func (e *Engine) CancelWithdrawalForAccountAtIndex(caller, account common.Address, index int) error {
	if err := e.roles.Require(rbac.RoleManager, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelAt(SideWithdrawal, account, index)
}

// CancelTopInvestments refunds up to n entries from the queue front. Only
// permitted while paused so live entries cannot slip in mid-cancel.
func (e *Engine) CancelTopInvestments(caller common.Address, n int) error {
	if err := e.roles.Require(rbac.RoleManager, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.sw.RequirePaused(); err != nil {
		return err
	}
	return e.cancelTop(SideInvestment, n)
}

func (e *Engine) CancelTopWithdrawals(caller common.Address, n int) error {
	if err := e.roles.Require(rbac.RoleManager, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.sw.RequirePaused(); err != nil {
		return err
	}
	return e.cancelTop(SideWithdrawal, n)
}

func (e *Engine) queueFor(side string) *[]*queueEntry {
	if side == SideInvestment {
		return &e.investQueue
	}
	return &e.withdrawQueue
}

func (e *Engine) totalFor(side string) **uint256.Int {
	if side == SideInvestment {
		return &e.investTotal
	}
	return &e.withdrawTotal
}

func (e *Engine) enqueue(side string, account common.Address, amount *uint256.Int) error {
	queue := e.queueFor(side)
	total := e.totalFor(side)

	var entry *queueEntry
	for _, existing := range *queue {
		if existing.account == account {
			entry = existing
			break
		}
	}

	*total = new(uint256.Int).Add(*total, amount)

	return e.gdb.Transaction(func(tx *gorm.DB) error {
		if entry != nil {
			entry.amount = new(uint256.Int).Add(entry.amount, amount)
			entry.row.Amount = entry.amount.Dec()
			entry.row.UpdatedAt = time.Now()
			if err := tx.Save(entry.row).Error; err != nil {
				return err
			}
			return e.saveMeta(tx)
		}

		row := &db.QueueEntry{Side: side, Account: account.Hex(), Amount: amount.Dec(), UpdatedAt: time.Now()}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		*queue = append(*queue, &queueEntry{account: account, amount: amount.Clone(), row: row})
		return e.saveMeta(tx)
	})
}

// cancelAt uses shift-remove: entries after index move one position left,
// queue order is preserved.
func (e *Engine) cancelAt(side string, account common.Address, index int) error {
	queue := e.queueFor(side)
	if index < 0 || index >= len(*queue) {
		return ErrWrongIndex
	}
	entry := (*queue)[index]
	if entry.account != account {
		return ErrWrongIndex
	}

	if err := e.refund(side, entry); err != nil {
		return err
	}

	*queue = append((*queue)[:index], (*queue)[index+1:]...)
	return e.dropEntry(side, entry)
}

func (e *Engine) cancelTop(side string, n int) error {
	queue := e.queueFor(side)
	if n > len(*queue) {
		n = len(*queue)
	}

	// all n refunds must be coverable before any entry is touched
	ledger := e.quote
	if side == SideWithdrawal {
		ledger = e.token
	}
	needed := uint256.NewInt(0)
	for i := 0; i < n; i++ {
		needed = new(uint256.Int).Add(needed, (*queue)[i].amount)
	}
	if ledger.BalanceOf(e.addr).Lt(needed) {
		return ErrBalanceExceeded
	}

	for i := 0; i < n; i++ {
		entry := (*queue)[0]
		if err := e.refund(side, entry); err != nil {
			return err
		}
		*queue = (*queue)[1:]
		if err := e.dropEntry(side, entry); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) refund(side string, entry *queueEntry) error {
	if side == SideInvestment {
		return e.quote.Transfer(e.addr, entry.account, entry.amount)
	}
	return e.token.Transfer(e.addr, entry.account, entry.amount)
}

func (e *Engine) dropEntry(side string, entry *queueEntry) error {
	total := e.totalFor(side)
	*total = new(uint256.Int).Sub(*total, entry.amount)

	return e.gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(entry.row).Error; err != nil {
			return err
		}
		return e.saveMeta(tx)
	})
}
