package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// LockEvent is published on BridgeLock. The off-chain relay (or the
// in-process stand-in) observes it and mints on the counterpart net.
type LockEvent struct {
	NetworkId uint64
	From      common.Address
	Amount    *uint256.Int
}

// UnlockEvent is published on BridgeUnlock.
type UnlockEvent struct {
	NetworkId uint64
	To        common.Address
	Amount    *uint256.Int
	TxId      common.Hash
}

// SupplyEvent is published on BridgeMint and BridgeBurn.
type SupplyEvent struct {
	Amount *uint256.Int
	TxId   common.Hash // zero hash for burns
}

// QueueEvent is published on InvestmentQueued and WithdrawalQueued.
type QueueEvent struct {
	Account common.Address
	Amount  *uint256.Int
}

// SettlementEvent is published on QueueSettled after a queue run.
type SettlementEvent struct {
	RunId          string
	Side           string
	ProcessedCount int
	PaidAmount     *uint256.Int
}
