// Package txlog keeps the set of consumed external transaction ids. The ids
// are opaque 32-byte values sourced from the counterpart chain, the registry
// only stores and compares them.
package txlog

import (
	"errors"
	"time"

	"github.com/ardnnetwork/extranet-ledger/internal/db"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

var ErrDuplicateTransaction = errors.New("transaction already processed")

// Registry is serialized by the owning aggregate's mutex.
type Registry struct {
	gdb   *gorm.DB
	scope string
	seen  map[common.Hash]bool
}

func NewRegistry(gdb *gorm.DB, scope string) (*Registry, error) {
	r := &Registry{
		gdb:   gdb,
		scope: scope,
		seen:  make(map[common.Hash]bool),
	}

	var rows []*db.ProcessedTx
	if err := gdb.Where("scope = ?", scope).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		r.seen[common.HexToHash(row.TxHash)] = true
	}

	return r, nil
}

func (r *Registry) Seen(txId common.Hash) bool {
	return r.seen[txId]
}

// Record consumes txId. A previously consumed id is rejected unconditionally,
// regardless of amount or caller.
func (r *Registry) Record(txId common.Hash) error {
	if r.seen[txId] {
		return ErrDuplicateTransaction
	}

	row := &db.ProcessedTx{
		Scope:     r.scope,
		TxHash:    txId.Hex(),
		UpdatedAt: time.Now(),
	}
	if err := r.gdb.Create(row).Error; err != nil {
		return err
	}

	r.seen[txId] = true
	return nil
}
