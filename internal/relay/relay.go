// Package relay is the in-process stand-in for the off-chain relay: it
// observes bridge lock events and mints the equivalent supply into extranet
// custody, carrying a synthesized external transaction id. On a real
// deployment this component watches the counterpart chain instead.
package relay

import (
	"context"
	"encoding/binary"

	"github.com/ardnnetwork/extranet-ledger/internal/extranet"
	"github.com/ardnnetwork/extranet-ledger/internal/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-errors/errors"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type Relay struct {
	bus    *state.EventBus
	engine *extranet.Engine
	trader common.Address

	lockCh chan interface{}
	nonce  uint64
}

func NewRelay(bus *state.EventBus, engine *extranet.Engine, trader common.Address) *Relay {
	return &Relay{
		bus:    bus,
		engine: engine,
		trader: trader,
		lockCh: make(chan interface{}, 64),
	}
}

func (r *Relay) Start(ctx context.Context) {
	r.bus.Subscribe(state.BridgeLock, r.lockCh)
	defer r.bus.Unsubscribe(state.BridgeLock, r.lockCh)

	log.Info("Relay started")
	for {
		select {
		case <-ctx.Done():
			log.Info("Relay stopping")
			return
		case event := <-r.lockCh:
			lock, ok := event.(state.LockEvent)
			if !ok {
				log.Debug("Relay ignoring unsupported event type")
				continue
			}
			if err := r.handleLock(lock); err != nil {
				if stackErr, ok := err.(*errors.Error); ok {
					log.Errorf("Relay failed to process lock: %v\n%s", stackErr, stackErr.ErrorStack())
				} else {
					log.Errorf("Relay failed to process lock: %v", err)
				}
			}
		}
	}
}

func (r *Relay) handleLock(lock state.LockEvent) error {
	txId := r.nextTxId(lock)
	if err := r.engine.Mint(r.trader, lock.Amount, txId); err != nil {
		return errors.Wrap(err, 0)
	}
	log.Infof("Relayed lock of %s as mint tx %s", lock.Amount.Dec(), txId.Hex())
	return nil
}

// nextTxId stands in for the counterpart chain's transaction hash. It only
// needs to be 32 bytes and unique, the ledgers never interpret its structure.
func (r *Relay) nextTxId(lock state.LockEvent) common.Hash {
	r.nonce++
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], lock.NetworkId)
	binary.BigEndian.PutUint64(buf[8:], r.nonce)
	id := uuid.New()
	return crypto.Keccak256Hash(buf[:], id[:])
}
