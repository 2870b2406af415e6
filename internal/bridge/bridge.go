// Package bridge implements the lock/unlock custody ledger for moving the
// vault token between nets. Locks are open to anyone, unlocks release custody
// against an off-chain attested transaction id and are trader-only.
package bridge

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
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrZeroAmount    = errors.New("amount must be positive")
	ErrExceedsLocked = errors.New("unlock exceeds locked amount")
)

// Bridge holds a capability reference to the asset ledger it custodies, it
// never reaches into another ledger's state directly.
type Bridge struct {
	mu sync.Mutex

	addr      common.Address
	networkId uint64
	asset     *token.Ledger
	roles     *rbac.Registry
	bus       *state.EventBus
	txs       *txlog.Registry
	gdb       *gorm.DB
	sw        guard.Switch

	lockedAmount *uint256.Int

	meta *db.BridgeMeta
}

func NewBridge(gdb *gorm.DB, addr common.Address, networkId uint64, asset *token.Ledger, roles *rbac.Registry, bus *state.EventBus) (*Bridge, error) {
	b := &Bridge{
		addr:         addr,
		networkId:    networkId,
		asset:        asset,
		roles:        roles,
		bus:          bus,
		gdb:          gdb,
		lockedAmount: uint256.NewInt(0),
	}

	txs, err := txlog.NewRegistry(gdb, "bridge-unlock")
	if err != nil {
		return nil, err
	}
	b.txs = txs

	meta := &db.BridgeMeta{}
	err = gdb.First(meta).Error
	if err == gorm.ErrRecordNotFound {
		meta = &db.BridgeMeta{NetworkId: networkId, LockedAmount: "0", UpdatedAt: time.Now()}
		if err := gdb.Create(meta).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	b.meta = meta
	if b.lockedAmount, err = uint256.FromDecimal(meta.LockedAmount); err != nil {
		return nil, fmt.Errorf("corrupt locked amount: %w", err)
	}
	b.sw.Restore(meta.Paused, meta.Shutdown)

	return b, nil
}

func (b *Bridge) Address() common.Address {
	return b.addr
}

func (b *Bridge) NetworkId() uint64 {
	return b.networkId
}

func (b *Bridge) LockedAmount() *uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lockedAmount.Clone()
}

func (b *Bridge) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sw.Paused()
}

// Lock escrows the caller's asset into bridge custody. The emitted lock event
// is what the relay turns into a mint on the counterpart net.
func (b *Bridge) Lock(from common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.sw.RequireRunning(); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}

	if err := b.asset.TransferFrom(b.addr, from, b.addr, amount); err != nil {
		return err
	}

	b.lockedAmount = new(uint256.Int).Add(b.lockedAmount, amount)
	if err := b.saveMeta(); err != nil {
		return err
	}

	log.Infof("Locked %s from %s, total locked %s", amount.Dec(), from.Hex(), b.lockedAmount.Dec())
	b.bus.Publish(state.BridgeLock, state.LockEvent{NetworkId: b.networkId, From: from, Amount: amount.Clone()})
	return nil
}

// Unlock releases custody to the caller against an attested burn on the
// counterpart net. Trader-only: managers administer, only traders move funds.
// A consumed transaction id is rejected regardless of amount.
func (b *Bridge) Unlock(caller common.Address, amount *uint256.Int, externalTxId common.Hash) error {
	if err := b.roles.Require(rbac.RoleTrader, caller); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	if b.lockedAmount.Lt(amount) {
		return fmt.Errorf("%w: %s > %s", ErrExceedsLocked, amount.Dec(), b.lockedAmount.Dec())
	}
	if err := b.txs.Record(externalTxId); err != nil {
		return err
	}

	if err := b.asset.Transfer(b.addr, caller, amount); err != nil {
		return err
	}

	b.lockedAmount = new(uint256.Int).Sub(b.lockedAmount, amount)
	if err := b.saveMeta(); err != nil {
		return err
	}

	log.Infof("Unlocked %s to %s for tx %s", amount.Dec(), caller.Hex(), externalTxId.Hex())
	b.bus.Publish(state.BridgeUnlock, state.UnlockEvent{NetworkId: b.networkId, To: caller, Amount: amount.Clone(), TxId: externalTxId})
	return nil
}

func (b *Bridge) Pause(caller common.Address) error {
	if err := b.roles.Require(rbac.RoleManager, caller); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.sw.Pause(); err != nil {
		return err
	}
	return b.saveMeta()
}

func (b *Bridge) Unpause(caller common.Address) error {
	if err := b.roles.Require(rbac.RoleManager, caller); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.sw.Unpause(); err != nil {
		return err
	}
	return b.saveMeta()
}

// Shutdown is terminal: custody is swept to the recipient and the bridge
// accepts no further locks.
func (b *Bridge) Shutdown(caller, recipient common.Address) error {
	if err := b.roles.Require(rbac.RoleManager, caller); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.sw.Shutdown(); err != nil {
		return err
	}

	balance := b.asset.BalanceOf(b.addr)
	if !balance.IsZero() {
		if err := b.asset.Transfer(b.addr, recipient, balance); err != nil {
			return err
		}
	}
	b.lockedAmount = uint256.NewInt(0)

	log.Warnf("Bridge shut down, custody swept to %s", recipient.Hex())
	return b.saveMeta()
}

func (b *Bridge) saveMeta() error {
	b.meta.LockedAmount = b.lockedAmount.Dec()
	b.meta.Paused = b.sw.Paused()
	b.meta.Shutdown = b.sw.IsShutdown()
	b.meta.UpdatedAt = time.Now()
	return b.gdb.Save(b.meta).Error
}
