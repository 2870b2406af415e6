package extranet

import (
	"time"

	"github.com/ardnnetwork/extranet-ledger/internal/db"
	"github.com/ardnnetwork/extranet-ledger/internal/rbac"
	"github.com/ardnnetwork/extranet-ledger/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RunInvestmentQueue settles pending investments front-to-back at the
// attested price quoteTokenAmount/extranetTokenAmount. Each entry's escrowed
// quote amount converts to entry.amount * extranetTokenAmount /
// quoteTokenAmount extranet tokens, paid out of custody's minted balance.
// Entries are settled whole: the walk stops before the first entry the
// remaining cap does not fully cover. The call fails without processing
// anything when a covered entry's payout exceeds the custody balance, the
// trader must not promise more mint capacity than the bridge supplied.
func (e *Engine) RunInvestmentQueue(caller common.Address, quoteTokenAmount, extranetTokenAmount, upToExtranetTokenAmount *uint256.Int, deadline time.Time) error {
	if err := e.roles.Require(rbac.RoleTrader, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.now().After(deadline) {
		return ErrExpired
	}
	if quoteTokenAmount == nil || quoteTokenAmount.IsZero() || extranetTokenAmount == nil || extranetTokenAmount.IsZero() {
		return ErrZeroPrice
	}

	available := e.token.BalanceOf(e.addr)
	paid := uint256.NewInt(0)
	var payouts []*uint256.Int

	for _, entry := range e.investQueue {
		payout, err := mulDiv(entry.amount, extranetTokenAmount, quoteTokenAmount)
		if err != nil {
			return err
		}
		next := new(uint256.Int).Add(paid, payout)
		if next.Gt(upToExtranetTokenAmount) {
			break
		}
		if next.Gt(available) {
			return ErrBalanceExceeded
		}
		payouts = append(payouts, payout)
		paid = next
	}

	for i, payout := range payouts {
		entry := e.investQueue[i]
		if err := e.token.Transfer(e.addr, entry.account, payout); err != nil {
			return err
		}
	}

	return e.finishRun(SideInvestment, len(payouts), quoteTokenAmount, extranetTokenAmount, upToExtranetTokenAmount, paid)
}

// RunWithdrawalQueue is the mirror image: escrowed extranet tokens are burned
// and quote tokens paid out at the attested price, minus the withdrawal fee
// routed to the fee recipient, until upToQuoteTokenAmount is reached.
func (e *Engine) RunWithdrawalQueue(caller common.Address, quoteTokenAmount, extranetTokenAmount, upToQuoteTokenAmount *uint256.Int, deadline time.Time) error {
	if err := e.roles.Require(rbac.RoleTrader, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.now().After(deadline) {
		return ErrExpired
	}
	if quoteTokenAmount == nil || quoteTokenAmount.IsZero() || extranetTokenAmount == nil || extranetTokenAmount.IsZero() {
		return ErrZeroPrice
	}

	availableQuote := e.quote.BalanceOf(e.addr)
	availableShares := e.token.BalanceOf(e.addr)
	paid := uint256.NewInt(0)
	burned := uint256.NewInt(0)
	var payouts []*uint256.Int

	for _, entry := range e.withdrawQueue {
		payout, err := mulDiv(entry.amount, quoteTokenAmount, extranetTokenAmount)
		if err != nil {
			return err
		}
		next := new(uint256.Int).Add(paid, payout)
		if next.Gt(upToQuoteTokenAmount) {
			break
		}
		if next.Gt(availableQuote) {
			return ErrBalanceExceeded
		}
		// custody must also cover the escrow burn for every covered entry
		nextBurn := new(uint256.Int).Add(burned, entry.amount)
		if nextBurn.Gt(availableShares) {
			return ErrBalanceExceeded
		}
		payouts = append(payouts, payout)
		paid = next
		burned = nextBurn
	}

	for i, payout := range payouts {
		entry := e.withdrawQueue[i]

		fee := uint256.NewInt(0)
		if !e.withdrawalFeePercent.IsZero() && e.feeRecipient != (common.Address{}) {
			fee.Mul(payout, e.withdrawalFeePercent)
			fee.Div(fee, feeScale)
		}

		if err := e.token.Burn(e.addr, entry.amount); err != nil {
			return err
		}
		if err := e.quote.Transfer(e.addr, entry.account, new(uint256.Int).Sub(payout, fee)); err != nil {
			return err
		}
		if !fee.IsZero() {
			if err := e.quote.Transfer(e.addr, e.feeRecipient, fee); err != nil {
				return err
			}
		}
	}

	return e.finishRun(SideWithdrawal, len(payouts), quoteTokenAmount, extranetTokenAmount, upToQuoteTokenAmount, paid)
}

// finishRun removes the settled entries, adjusts totals and journals the run.
func (e *Engine) finishRun(side string, processed int, quoteTokenAmount, extranetTokenAmount, capAmount, paid *uint256.Int) error {
	queue := e.queueFor(side)
	total := e.totalFor(side)

	settled := (*queue)[:processed]
	*queue = (*queue)[processed:]
	for _, entry := range settled {
		*total = new(uint256.Int).Sub(*total, entry.amount)
	}

	runId := uuid.New().String()
	err := e.gdb.Transaction(func(tx *gorm.DB) error {
		for _, entry := range settled {
			if err := tx.Delete(entry.row).Error; err != nil {
				return err
			}
		}
		run := &db.SettlementRun{
			RunId:          runId,
			Side:           side,
			QuoteAmount:    quoteTokenAmount.Dec(),
			ExtranetAmount: extranetTokenAmount.Dec(),
			CapAmount:      capAmount.Dec(),
			ProcessedCount: processed,
			PaidAmount:     paid.Dec(),
			CreatedAt:      time.Now(),
		}
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		return e.saveMeta(tx)
	})
	if err != nil {
		return err
	}

	log.Infof("Settled %d %s entries, run %s, paid %s", processed, side, runId, paid.Dec())
	e.bus.Publish(state.QueueSettled, state.SettlementEvent{
		RunId:          runId,
		Side:           side,
		ProcessedCount: processed,
		PaidAmount:     paid.Clone(),
	})
	return nil
}

// Mint credits bridge-sourced supply to engine custody. The external
// transaction id is consumed exactly once.
func (e *Engine) Mint(caller common.Address, amount *uint256.Int, externalTxId common.Hash) error {
	if err := e.roles.Require(rbac.RoleTrader, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	if err := e.txs.Record(externalTxId); err != nil {
		return err
	}
	if err := e.token.Mint(e.addr, amount); err != nil {
		return err
	}

	e.bus.Publish(state.BridgeMint, state.SupplyEvent{Amount: amount.Clone(), TxId: externalTxId})
	return nil
}

// Burn retires custody supply, mirroring an unlock on the home net.
func (e *Engine) Burn(caller common.Address, amount *uint256.Int) error {
	if err := e.roles.Require(rbac.RoleTrader, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	if err := e.token.Burn(e.addr, amount); err != nil {
		return err
	}

	e.bus.Publish(state.BridgeBurn, state.SupplyEvent{Amount: amount.Clone()})
	return nil
}

// CollectTokens sweeps custody's full balance of each given ledger to the
// recipient. Trader-only escape hatch for stray transfers.
func (e *Engine) CollectTokens(caller common.Address, ledgers []TokenLedger, recipient common.Address) error {
	if err := e.roles.Require(rbac.RoleTrader, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ledger := range ledgers {
		balance := ledger.BalanceOf(e.addr)
		if balance.IsZero() {
			continue
		}
		if err := ledger.Transfer(e.addr, recipient, balance); err != nil {
			return err
		}
		log.Infof("Collected %s %s to %s", balance.Dec(), ledger.Symbol(), recipient.Hex())
	}
	return nil
}

// TokenLedger is the slice of the fungible ledger CollectTokens needs.
type TokenLedger interface {
	Symbol() string
	BalanceOf(account common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
}
