package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ModuleAddress derives a stable custody address for a named component.
// There is no key behind it, nobody can sign for module custody.
func ModuleAddress(name string) common.Address {
	hash := crypto.Keccak256([]byte("extranet-ledger/module/" + name))
	return common.BytesToAddress(hash[12:])
}
