package rbac

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardnnetwork/extranet-ledger/internal/db"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrMissingRole is returned by every privileged entry point when the caller
// does not hold the required role. Unset roles deny by default.
var ErrMissingRole = errors.New("account is missing role")

type Role int

const (
	RoleAdmin Role = iota
	RoleManager
	RoleTrader
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleManager:
		return "manager"
	case RoleTrader:
		return "trader"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Registry maps (role, account) -> granted. Only admins can grant or revoke.
type Registry struct {
	mu     sync.RWMutex
	gdb    *gorm.DB
	grants map[Role]map[common.Address]bool
}

// NewRegistry loads persisted grants and unconditionally grants RoleAdmin to
// the boot admin so the registry is never bricked.
func NewRegistry(gdb *gorm.DB, admin common.Address) (*Registry, error) {
	r := &Registry{
		gdb: gdb,
		grants: map[Role]map[common.Address]bool{
			RoleAdmin:   {},
			RoleManager: {},
			RoleTrader:  {},
		},
	}

	var rows []*db.RoleGrant
	if err := gdb.Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		role, ok := parseRole(row.Role)
		if !ok {
			log.Warnf("Ignoring unknown persisted role %q for %s", row.Role, row.Account)
			continue
		}
		r.grants[role][common.HexToAddress(row.Account)] = true
	}

	if !r.grants[RoleAdmin][admin] {
		r.grants[RoleAdmin][admin] = true
		if err := r.saveGrant(RoleAdmin, admin); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func parseRole(s string) (Role, bool) {
	switch s {
	case "admin":
		return RoleAdmin, true
	case "manager":
		return RoleManager, true
	case "trader":
		return RoleTrader, true
	}
	return 0, false
}

func (r *Registry) HasRole(role Role, account common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.grants[role][account]
}

// Require fails closed: any account without the role is rejected, including
// accounts holding adjacent roles.
func (r *Registry) Require(role Role, account common.Address) error {
	if !r.HasRole(role, account) {
		return fmt.Errorf("%w: %s needs %s", ErrMissingRole, account.Hex(), role)
	}
	return nil
}

func (r *Registry) Grant(granter common.Address, role Role, account common.Address) error {
	if err := r.Require(RoleAdmin, granter); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.grants[role][account] {
		return nil
	}
	r.grants[role][account] = true
	log.Infof("Granted role %s to %s", role, account.Hex())
	return r.saveGrant(role, account)
}

func (r *Registry) Revoke(granter common.Address, role Role, account common.Address) error {
	if err := r.Require(RoleAdmin, granter); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.grants[role][account] {
		return nil
	}
	delete(r.grants[role], account)
	log.Infof("Revoked role %s from %s", role, account.Hex())
	return r.gdb.Where("role = ? AND account = ?", role.String(), account.Hex()).Delete(&db.RoleGrant{}).Error
}

func (r *Registry) saveGrant(role Role, account common.Address) error {
	grant := &db.RoleGrant{
		Role:      role.String(),
		Account:   account.Hex(),
		UpdatedAt: time.Now(),
	}
	return r.gdb.Save(grant).Error
}
