package extranet_test

import (
	"testing"
	"time"

	"github.com/ardnnetwork/extranet-ledger/internal/db"
	"github.com/ardnnetwork/extranet-ledger/internal/extranet"
	"github.com/ardnnetwork/extranet-ledger/internal/guard"
	"github.com/ardnnetwork/extranet-ledger/internal/rbac"
	"github.com/ardnnetwork/extranet-ledger/internal/state"
	"github.com/ardnnetwork/extranet-ledger/internal/token"
	"github.com/ardnnetwork/extranet-ledger/internal/txlog"
	"github.com/ardnnetwork/extranet-ledger/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin   = common.HexToAddress("0x3000000000000000000000000000000000000001")
	manager = common.HexToAddress("0x3000000000000000000000000000000000000002")
	trader  = common.HexToAddress("0x3000000000000000000000000000000000000003")
	alice   = common.HexToAddress("0x3000000000000000000000000000000000000004")
	bob     = common.HexToAddress("0x3000000000000000000000000000000000000005")
	feeTo   = common.HexToAddress("0x3000000000000000000000000000000000000006")
	sink    = common.HexToAddress("0x3000000000000000000000000000000000000007")
)

func u(n uint64) *uint256.Int {
	return uint256.NewInt(n)
}

func future() time.Time {
	return time.Now().Add(time.Hour)
}

func past() time.Time {
	return time.Now().Add(-time.Hour)
}

func txId(n byte) common.Hash {
	return common.Hash{31: n}
}

type fixture struct {
	engine   *extranet.Engine
	extToken *token.Ledger
	quote    *token.Ledger
	dbm      *db.DatabaseManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dbm := db.NewDatabaseManagerAt(t.TempDir())

	roles, err := rbac.NewRegistry(dbm.GetAuthDB(), admin)
	require.NoError(t, err)
	require.NoError(t, roles.Grant(admin, rbac.RoleManager, manager))
	require.NoError(t, roles.Grant(admin, rbac.RoleTrader, trader))

	quote, err := token.NewLedger(dbm.GetTokenDB(), "Quote", "USDQ", 18)
	require.NoError(t, err)
	extToken, err := token.NewLedger(dbm.GetTokenDB(), "Extranet Vault", "arBFRM", 18)
	require.NoError(t, err)

	engine, err := extranet.NewEngine(
		dbm.GetExtranetDB(),
		types.ModuleAddress("extranet-test"),
		extToken,
		quote,
		roles,
		state.NewEventBus(),
		extranet.Params{
			MinInvestment:        u(0),
			MinWithdrawal:        u(0),
			WithdrawalFeePercent: u(0),
		},
	)
	require.NoError(t, err)

	// users hold quote and pre-approve the engine for escrow pulls
	require.NoError(t, quote.Mint(alice, u(100_000)))
	require.NoError(t, quote.Mint(bob, u(100_000)))
	require.NoError(t, quote.Approve(alice, engine.Address(), token.Unlimited))
	require.NoError(t, quote.Approve(bob, engine.Address(), token.Unlimited))

	return &fixture{engine: engine, extToken: extToken, quote: quote, dbm: dbm}
}

func TestMintAndBurnCustody(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Mint(trader, u(100), txId(1)))
	assert.Equal(t, u(100), f.extToken.BalanceOf(f.engine.Address()))
	assert.Equal(t, u(100), f.extToken.TotalSupply())

	require.NoError(t, f.engine.Burn(trader, u(40)))
	assert.Equal(t, u(60), f.extToken.BalanceOf(f.engine.Address()))
	assert.Equal(t, u(60), f.extToken.TotalSupply())
}

func TestMintRejectsDuplicateTx(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Mint(trader, u(100), txId(1)))

	// same id again, even with a different amount
	err := f.engine.Mint(trader, u(7), txId(1))
	assert.ErrorIs(t, err, txlog.ErrDuplicateTransaction)
	assert.Equal(t, u(100), f.extToken.TotalSupply())
}

func TestSupplyOpsRequireTrader(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.engine.Mint(manager, u(1), txId(1)), rbac.ErrMissingRole)
	assert.ErrorIs(t, f.engine.Burn(alice, u(1)), rbac.ErrMissingRole)
	assert.ErrorIs(t, f.engine.RunInvestmentQueue(manager, u(1), u(1), u(1), future()), rbac.ErrMissingRole)
	assert.ErrorIs(t, f.engine.RunWithdrawalQueue(alice, u(1), u(1), u(1), future()), rbac.ErrMissingRole)
}

func TestSettersRequireManager(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.engine.SetLimits(alice, u(1), u(1)), rbac.ErrMissingRole)
	assert.ErrorIs(t, f.engine.SetFeeTo(trader, feeTo), rbac.ErrMissingRole)
	assert.ErrorIs(t, f.engine.SetWithdrawalFeePercent(alice, u(100)), rbac.ErrMissingRole)
	assert.ErrorIs(t, f.engine.SetBridge(alice, sink, 7), rbac.ErrMissingRole)
	assert.ErrorIs(t, f.engine.Pause(alice), rbac.ErrMissingRole)
	assert.ErrorIs(t, f.engine.Shutdown(trader, sink), rbac.ErrMissingRole)
}

func TestLimits(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.SetLimits(manager, u(10), u(20)))

	assert.ErrorIs(t, f.engine.Invest(alice, u(9)), extranet.ErrBelowMinimum)
	require.NoError(t, f.engine.Invest(alice, u(10)))

	require.NoError(t, f.extToken.Mint(alice, u(19)))
	assert.ErrorIs(t, f.engine.Withdraw(alice, u(19)), extranet.ErrBelowMinimum)
}

func TestFeePercentCap(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.engine.SetWithdrawalFeePercent(manager, u(10_001)), extranet.ErrFeeTooHigh)
	require.NoError(t, f.engine.SetWithdrawalFeePercent(manager, u(10_000)))
}

func TestInvestQueuesAndEscrows(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Invest(alice, u(30)))
	require.NoError(t, f.engine.Invest(bob, u(10)))

	assert.Equal(t, u(99_970), f.quote.BalanceOf(alice))
	assert.Equal(t, u(40), f.quote.BalanceOf(f.engine.Address()))

	info := f.engine.QueueInfo()
	assert.Equal(t, 2, info.InvestmentAddressListLength)
	assert.Equal(t, u(40), info.InvestmentTotalAmount)
	assert.Equal(t, []common.Address{alice, bob}, f.engine.PendingInvestmentAddressList())
}

func TestReinvestMergesEntry(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Invest(alice, u(30)))
	require.NoError(t, f.engine.Invest(bob, u(5)))
	require.NoError(t, f.engine.Invest(alice, u(20)))

	info := f.engine.QueueInfo()
	assert.Equal(t, 2, info.InvestmentAddressListLength)
	assert.Equal(t, u(55), info.InvestmentTotalAmount)

	// merged entry keeps its original queue position
	assert.Equal(t, []common.Address{alice, bob}, f.engine.PendingInvestmentAddressList())

	// canceling refunds the merged amount in one piece
	require.NoError(t, f.engine.CancelInvestment(alice, 0))
	assert.Equal(t, u(100_000), f.quote.BalanceOf(alice))
}

func TestRunInvestmentQueue(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Invest(alice, u(100)))
	require.NoError(t, f.engine.Mint(trader, u(50), txId(1)))

	// price 10 quote per 2 extranet tokens
	require.NoError(t, f.engine.RunInvestmentQueue(trader, u(10), u(2), u(1000), future()))

	assert.Equal(t, u(20), f.extToken.BalanceOf(alice))
	assert.Equal(t, u(30), f.extToken.BalanceOf(f.engine.Address()))

	info := f.engine.QueueInfo()
	assert.Equal(t, 0, info.InvestmentAddressListLength)
	assert.Equal(t, u(0), info.InvestmentTotalAmount)
}

func TestRunInvestmentQueueStopsAtCap(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Invest(alice, u(60)))
	require.NoError(t, f.engine.Invest(bob, u(40)))
	require.NoError(t, f.engine.Mint(trader, u(100), txId(1)))

	// alice converts to 12, bob would push the total to 20, over the cap of 15
	require.NoError(t, f.engine.RunInvestmentQueue(trader, u(10), u(2), u(15), future()))

	assert.Equal(t, u(12), f.extToken.BalanceOf(alice))
	assert.Equal(t, u(0), f.extToken.BalanceOf(bob))

	info := f.engine.QueueInfo()
	assert.Equal(t, 1, info.InvestmentAddressListLength)
	assert.Equal(t, u(40), info.InvestmentTotalAmount)
	assert.Equal(t, []common.Address{bob}, f.engine.PendingInvestmentAddressList())
}

func TestRunInvestmentQueueBalanceExceeded(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Invest(alice, u(60)))
	require.NoError(t, f.engine.Mint(trader, u(10), txId(1)))

	// payout would be 12 against a custody balance of 10
	err := f.engine.RunInvestmentQueue(trader, u(10), u(2), u(1000), future())
	assert.ErrorIs(t, err, extranet.ErrBalanceExceeded)

	// nothing settled
	assert.Equal(t, u(0), f.extToken.BalanceOf(alice))
	assert.Equal(t, 1, f.engine.QueueInfo().InvestmentAddressListLength)
}

func TestRunInvestmentQueueDeadline(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Invest(alice, u(10)))
	require.NoError(t, f.engine.Mint(trader, u(100), txId(1)))

	err := f.engine.RunInvestmentQueue(trader, u(10), u(2), u(1000), past())
	assert.ErrorIs(t, err, extranet.ErrExpired)
	assert.Equal(t, 1, f.engine.QueueInfo().InvestmentAddressListLength)
}

func TestRunInvestmentQueueZeroPrice(t *testing.T) {
	f := newFixture(t)

	err := f.engine.RunInvestmentQueue(trader, u(0), u(2), u(1000), future())
	assert.ErrorIs(t, err, extranet.ErrZeroPrice)
	err = f.engine.RunInvestmentQueue(trader, u(10), u(0), u(1000), future())
	assert.ErrorIs(t, err, extranet.ErrZeroPrice)
}

func TestRunWithdrawalQueue(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.extToken.Mint(alice, u(100)))
	require.NoError(t, f.engine.Withdraw(alice, u(100)))
	assert.Equal(t, u(100), f.extToken.BalanceOf(f.engine.Address()))

	require.NoError(t, f.quote.Mint(f.engine.Address(), u(5000)))

	// 50 quote per extranet token, no fee configured
	require.NoError(t, f.engine.RunWithdrawalQueue(trader, u(50), u(1), u(10_000), future()))

	assert.Equal(t, u(105_000), f.quote.BalanceOf(alice))
	assert.Equal(t, u(0), f.extToken.BalanceOf(f.engine.Address()))

	// escrowed shares are burned, not recycled
	assert.Equal(t, u(0), f.extToken.TotalSupply())
	assert.Equal(t, 0, f.engine.QueueInfo().WithdrawalAddressListLength)
}

func TestRunWithdrawalQueueFeeSplit(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.SetFeeTo(manager, feeTo))
	require.NoError(t, f.engine.SetWithdrawalFeePercent(manager, u(2000))) // 20%

	require.NoError(t, f.extToken.Mint(alice, u(100)))
	require.NoError(t, f.engine.Withdraw(alice, u(100)))
	require.NoError(t, f.quote.Mint(f.engine.Address(), u(5000)))

	require.NoError(t, f.engine.RunWithdrawalQueue(trader, u(50), u(1), u(10_000), future()))

	// 5000 payout splits 4000 to the holder, 1000 to the fee recipient
	assert.Equal(t, u(104_000), f.quote.BalanceOf(alice))
	assert.Equal(t, u(1000), f.quote.BalanceOf(feeTo))
}

func TestRunWithdrawalQueueFeeSkippedWithoutRecipient(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.SetWithdrawalFeePercent(manager, u(2000)))

	require.NoError(t, f.extToken.Mint(alice, u(100)))
	require.NoError(t, f.engine.Withdraw(alice, u(100)))
	require.NoError(t, f.quote.Mint(f.engine.Address(), u(5000)))

	require.NoError(t, f.engine.RunWithdrawalQueue(trader, u(50), u(1), u(10_000), future()))

	// no recipient configured, the full payout goes to the holder
	assert.Equal(t, u(105_000), f.quote.BalanceOf(alice))
}

func TestRunWithdrawalQueueStopsAtCap(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.extToken.Mint(alice, u(60)))
	require.NoError(t, f.extToken.Mint(bob, u(40)))
	require.NoError(t, f.engine.Withdraw(alice, u(60)))
	require.NoError(t, f.engine.Withdraw(bob, u(40)))
	require.NoError(t, f.quote.Mint(f.engine.Address(), u(10_000)))

	// alice's payout is 120, bob's would push the total past the cap of 150
	require.NoError(t, f.engine.RunWithdrawalQueue(trader, u(2), u(1), u(150), future()))

	assert.Equal(t, u(100_120), f.quote.BalanceOf(alice))
	assert.Equal(t, u(100_000), f.quote.BalanceOf(bob))
	assert.Equal(t, []common.Address{bob}, f.engine.PendingWithdrawalAddressList())

	// only alice's escrow burned
	assert.Equal(t, u(40), f.extToken.BalanceOf(f.engine.Address()))
}

func TestRunWithdrawalQueueBalanceExceeded(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.extToken.Mint(alice, u(100)))
	require.NoError(t, f.engine.Withdraw(alice, u(100)))
	require.NoError(t, f.quote.Mint(f.engine.Address(), u(99)))

	err := f.engine.RunWithdrawalQueue(trader, u(1), u(1), u(10_000), future())
	assert.ErrorIs(t, err, extranet.ErrBalanceExceeded)
	assert.Equal(t, u(100), f.extToken.BalanceOf(f.engine.Address()))
	assert.Equal(t, 1, f.engine.QueueInfo().WithdrawalAddressListLength)
}

func TestRunWithdrawalQueueBurnCapacityChecked(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.extToken.Mint(alice, u(40)))
	require.NoError(t, f.extToken.Mint(bob, u(40)))
	require.NoError(t, f.engine.Withdraw(alice, u(40)))
	require.NoError(t, f.engine.Withdraw(bob, u(40)))
	require.NoError(t, f.quote.Mint(f.engine.Address(), u(10_000)))

	// a custody burn dipping into withdrawal escrow fails the whole run,
	// no entry may be paid twice across a retry
	require.NoError(t, f.engine.Burn(trader, u(10)))

	err := f.engine.RunWithdrawalQueue(trader, u(1), u(1), u(10_000), future())
	assert.ErrorIs(t, err, extranet.ErrBalanceExceeded)
	assert.Equal(t, u(100_000), f.quote.BalanceOf(alice))
	assert.Equal(t, u(70), f.extToken.BalanceOf(f.engine.Address()))
	assert.Equal(t, 2, f.engine.QueueInfo().WithdrawalAddressListLength)

	// restoring custody settles each entry exactly once
	require.NoError(t, f.engine.Mint(trader, u(10), txId(1)))
	require.NoError(t, f.engine.RunWithdrawalQueue(trader, u(1), u(1), u(10_000), future()))
	assert.Equal(t, u(100_040), f.quote.BalanceOf(alice))
	assert.Equal(t, u(100_040), f.quote.BalanceOf(bob))
	assert.Equal(t, 0, f.engine.QueueInfo().WithdrawalAddressListLength)
}

func TestRunInvestmentQueueOverflow(t *testing.T) {
	f := newFixture(t)

	huge := new(uint256.Int).Lsh(u(1), 200)
	require.NoError(t, f.quote.Mint(alice, huge))
	require.NoError(t, f.engine.Invest(alice, huge))

	err := f.engine.RunInvestmentQueue(trader, u(1), huge, token.Unlimited, future())
	assert.ErrorIs(t, err, extranet.ErrOverflow)
	assert.Equal(t, 1, f.engine.QueueInfo().InvestmentAddressListLength)
}

func TestCancelInvestment(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Invest(alice, u(30)))
	require.NoError(t, f.engine.Invest(bob, u(10)))

	require.NoError(t, f.engine.CancelInvestment(alice, 0))
	assert.Equal(t, u(100_000), f.quote.BalanceOf(alice))
	assert.Equal(t, []common.Address{bob}, f.engine.PendingInvestmentAddressList())

	info := f.engine.QueueInfo()
	assert.Equal(t, u(10), info.InvestmentTotalAmount)
}

func TestCancelInvestmentWrongIndex(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Invest(alice, u(30)))

	assert.ErrorIs(t, f.engine.CancelInvestment(alice, 1), extranet.ErrWrongIndex)
	assert.ErrorIs(t, f.engine.CancelInvestment(alice, -1), extranet.ErrWrongIndex)

	// index 0 holds alice's entry, bob cannot cancel it
	assert.ErrorIs(t, f.engine.CancelInvestment(bob, 0), extranet.ErrWrongIndex)
	assert.Equal(t, 1, f.engine.QueueInfo().InvestmentAddressListLength)
}

func TestCancelInvestmentForAccount(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Invest(alice, u(30)))

	err := f.engine.CancelInvestmentForAccountAtIndex(bob, alice, 0)
	assert.ErrorIs(t, err, rbac.ErrMissingRole)

	require.NoError(t, f.engine.CancelInvestmentForAccountAtIndex(manager, alice, 0))
	assert.Equal(t, u(100_000), f.quote.BalanceOf(alice))
	assert.Equal(t, 0, f.engine.QueueInfo().InvestmentAddressListLength)
}

func TestCancelWithdrawal(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.extToken.Mint(alice, u(100)))
	require.NoError(t, f.engine.Withdraw(alice, u(100)))
	assert.Equal(t, u(0), f.extToken.BalanceOf(alice))

	require.NoError(t, f.engine.CancelWithdrawal(alice, 0))
	assert.Equal(t, u(100), f.extToken.BalanceOf(alice))
	assert.Equal(t, 0, f.engine.QueueInfo().WithdrawalAddressListLength)
}

func TestCancelTopInvestmentsRequiresPause(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Invest(alice, u(30)))

	err := f.engine.CancelTopInvestments(manager, 1)
	assert.ErrorIs(t, err, guard.ErrNotPaused)

	assert.ErrorIs(t, f.engine.CancelTopInvestments(alice, 1), rbac.ErrMissingRole)
}

func TestCancelTopInvestments(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Invest(alice, u(30)))
	require.NoError(t, f.engine.Invest(bob, u(10)))
	require.NoError(t, f.engine.Pause(manager))

	require.NoError(t, f.engine.CancelTopInvestments(manager, 1))
	assert.Equal(t, u(100_000), f.quote.BalanceOf(alice))
	assert.Equal(t, []common.Address{bob}, f.engine.PendingInvestmentAddressList())

	// n larger than the queue cancels everything that is left
	require.NoError(t, f.engine.CancelTopInvestments(manager, 10))
	assert.Equal(t, u(100_000), f.quote.BalanceOf(bob))
	assert.Equal(t, 0, f.engine.QueueInfo().InvestmentAddressListLength)
}

func TestCancelTopRequiresCustodyCoverage(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Invest(alice, u(30)))
	require.NoError(t, f.engine.Invest(bob, u(10)))
	require.NoError(t, f.engine.CollectTokens(trader, []extranet.TokenLedger{f.quote}, sink))
	require.NoError(t, f.engine.Pause(manager))

	// escrow was swept, neither refund is coverable, nothing moves
	err := f.engine.CancelTopInvestments(manager, 2)
	assert.ErrorIs(t, err, extranet.ErrBalanceExceeded)
	assert.Equal(t, 2, f.engine.QueueInfo().InvestmentAddressListLength)
	assert.Equal(t, u(99_970), f.quote.BalanceOf(alice))

	require.NoError(t, f.quote.Mint(f.engine.Address(), u(40)))
	require.NoError(t, f.engine.CancelTopInvestments(manager, 2))
	assert.Equal(t, u(100_000), f.quote.BalanceOf(alice))
	assert.Equal(t, u(100_000), f.quote.BalanceOf(bob))
}

func TestCancelTopWithdrawals(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.extToken.Mint(alice, u(50)))
	require.NoError(t, f.engine.Withdraw(alice, u(50)))
	require.NoError(t, f.engine.Pause(manager))

	require.NoError(t, f.engine.CancelTopWithdrawals(manager, 1))
	assert.Equal(t, u(50), f.extToken.BalanceOf(alice))
	assert.Equal(t, 0, f.engine.QueueInfo().WithdrawalAddressListLength)
}

func TestPauseBlocksQueueing(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Pause(manager))
	assert.ErrorIs(t, f.engine.Invest(alice, u(10)), guard.ErrPaused)

	require.NoError(t, f.extToken.Mint(alice, u(10)))
	assert.ErrorIs(t, f.engine.Withdraw(alice, u(10)), guard.ErrPaused)

	require.NoError(t, f.engine.Unpause(manager))
	require.NoError(t, f.engine.Invest(alice, u(10)))
}

func TestWithdrawForAccount(t *testing.T) {
	f := newFixture(t)

	// the forced path ignores the minimum
	require.NoError(t, f.engine.SetLimits(manager, u(0), u(5000)))
	require.NoError(t, f.extToken.Mint(alice, u(100)))

	assert.ErrorIs(t, f.engine.WithdrawForAccount(alice, alice), rbac.ErrMissingRole)

	require.NoError(t, f.engine.WithdrawForAccount(manager, alice))
	assert.Equal(t, u(0), f.extToken.BalanceOf(alice))
	assert.Equal(t, u(100), f.extToken.BalanceOf(f.engine.Address()))

	info := f.engine.QueueInfo()
	assert.Equal(t, 1, info.WithdrawalAddressListLength)
	assert.Equal(t, u(100), info.WithdrawalTotalAmount)

	// nothing left to force out
	assert.ErrorIs(t, f.engine.WithdrawForAccount(manager, alice), extranet.ErrZeroAmount)
}

func TestCollectTokens(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.quote.Mint(f.engine.Address(), u(77)))
	require.NoError(t, f.extToken.Mint(f.engine.Address(), u(33)))

	ledgers := []extranet.TokenLedger{f.quote, f.extToken}
	assert.ErrorIs(t, f.engine.CollectTokens(manager, ledgers, sink), rbac.ErrMissingRole)

	require.NoError(t, f.engine.CollectTokens(trader, ledgers, sink))
	assert.Equal(t, u(77), f.quote.BalanceOf(sink))
	assert.Equal(t, u(33), f.extToken.BalanceOf(sink))
	assert.Equal(t, u(0), f.quote.BalanceOf(f.engine.Address()))
}

func TestShutdownSweepsCustody(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Invest(alice, u(500)))
	require.NoError(t, f.engine.Mint(trader, u(200), txId(1)))

	require.NoError(t, f.engine.Shutdown(manager, sink))
	assert.Equal(t, u(500), f.quote.BalanceOf(sink))
	assert.Equal(t, u(200), f.extToken.BalanceOf(sink))

	assert.ErrorIs(t, f.engine.Invest(bob, u(10)), guard.ErrShutdown)
	assert.ErrorIs(t, f.engine.Shutdown(manager, sink), guard.ErrShutdown)
}

func TestEnginePersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	dbm := db.NewDatabaseManagerAt(dir)

	roles, err := rbac.NewRegistry(dbm.GetAuthDB(), admin)
	require.NoError(t, err)
	require.NoError(t, roles.Grant(admin, rbac.RoleManager, manager))
	require.NoError(t, roles.Grant(admin, rbac.RoleTrader, trader))

	quote, err := token.NewLedger(dbm.GetTokenDB(), "Quote", "USDQ", 18)
	require.NoError(t, err)
	extToken, err := token.NewLedger(dbm.GetTokenDB(), "Extranet Vault", "arBFRM", 18)
	require.NoError(t, err)

	addr := types.ModuleAddress("extranet-test")
	params := extranet.Params{MinInvestment: u(0), MinWithdrawal: u(0), WithdrawalFeePercent: u(0)}

	engine, err := extranet.NewEngine(dbm.GetExtranetDB(), addr, extToken, quote, roles, state.NewEventBus(), params)
	require.NoError(t, err)

	require.NoError(t, quote.Mint(alice, u(1000)))
	require.NoError(t, quote.Approve(alice, addr, token.Unlimited))
	require.NoError(t, engine.Invest(alice, u(300)))
	require.NoError(t, engine.SetLimits(manager, u(11), u(22)))
	require.NoError(t, engine.Mint(trader, u(50), txId(9)))

	reopened, err := extranet.NewEngine(dbm.GetExtranetDB(), addr, extToken, quote, roles, state.NewEventBus(), params)
	require.NoError(t, err)

	info := reopened.QueueInfo()
	assert.Equal(t, 1, info.InvestmentAddressListLength)
	assert.Equal(t, u(300), info.InvestmentTotalAmount)
	assert.Equal(t, []common.Address{alice}, reopened.PendingInvestmentAddressList())

	// limits survive the restart
	assert.ErrorIs(t, reopened.Invest(alice, u(10)), extranet.ErrBelowMinimum)

	// processed tx ids survive the restart
	assert.ErrorIs(t, reopened.Mint(trader, u(1), txId(9)), txlog.ErrDuplicateTransaction)
}
