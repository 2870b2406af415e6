package db

import (
	"time"
)

// All amounts are stored as decimal strings, they are 256-bit unsigned
// integers in memory and do not fit native integer columns.

// TokenMeta model (one record per token symbol)
type TokenMeta struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Symbol      string    `gorm:"not null;uniqueIndex" json:"symbol"`
	Name        string    `gorm:"not null" json:"name"`
	Decimals    uint8     `gorm:"not null" json:"decimals"`
	TotalSupply string    `gorm:"not null" json:"total_supply"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

// TokenBalance model
type TokenBalance struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"not null;index:unique_symbol_account,unique" json:"symbol"`
	Account   string    `gorm:"not null;index:unique_symbol_account,unique" json:"account"`
	Amount    string    `gorm:"not null" json:"amount"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TokenAllowance model (delegated spend approval owner -> spender)
type TokenAllowance struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"not null;index:unique_symbol_owner_spender,unique" json:"symbol"`
	Owner     string    `gorm:"not null;index:unique_symbol_owner_spender,unique" json:"owner"`
	Spender   string    `gorm:"not null;index:unique_symbol_owner_spender,unique" json:"spender"`
	Amount    string    `gorm:"not null" json:"amount"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// FarmMeta model (only 1 record)
type FarmMeta struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	TotalShares       string    `gorm:"not null" json:"total_shares"`
	AccRewardPerShare string    `gorm:"not null" json:"acc_reward_per_share"`
	UpdatedAt         time.Time `gorm:"not null" json:"updated_at"`
}

// FarmPosition model, one row per staked account
type FarmPosition struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Account    string    `gorm:"not null;uniqueIndex" json:"account"`
	Shares     string    `gorm:"not null" json:"shares"`
	RewardDebt string    `gorm:"not null" json:"reward_debt"` // accRewardPerShare snapshot at last interaction
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

// QueueEntry model (pending investment/withdrawal escrow), insertion order
// is the row id order; rows are deleted on settlement or cancellation
type QueueEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Side      string    `gorm:"not null;index" json:"side"` // "investment" or "withdrawal"
	Account   string    `gorm:"not null" json:"account"`
	Amount    string    `gorm:"not null" json:"amount"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// ExtranetMeta model (only 1 record)
type ExtranetMeta struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	InvestmentTotal      string    `gorm:"not null" json:"investment_total"`
	WithdrawalTotal      string    `gorm:"not null" json:"withdrawal_total"`
	MinInvestment        string    `gorm:"not null" json:"min_investment"`
	MinWithdrawal        string    `gorm:"not null" json:"min_withdrawal"`
	WithdrawalFeePercent string    `gorm:"not null" json:"withdrawal_fee_percent"`
	FeeRecipient         string    `gorm:"not null" json:"fee_recipient"`
	BridgeAddress        string    `json:"bridge_address"`
	BridgeNetworkId      uint64    `json:"bridge_network_id"`
	Paused               bool      `gorm:"not null" json:"paused"`
	Shutdown             bool      `gorm:"not null" json:"shutdown"`
	UpdatedAt            time.Time `gorm:"not null" json:"updated_at"`
}

// SettlementRun model, journal of queue runs
type SettlementRun struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	RunId          string    `gorm:"not null;uniqueIndex" json:"run_id"`
	Side           string    `gorm:"not null" json:"side"`
	QuoteAmount    string    `gorm:"not null" json:"quote_amount"`    // attested price numerator
	ExtranetAmount string    `gorm:"not null" json:"extranet_amount"` // attested price denominator
	CapAmount      string    `gorm:"not null" json:"cap_amount"`
	ProcessedCount int       `gorm:"not null" json:"processed_count"`
	PaidAmount     string    `gorm:"not null" json:"paid_amount"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

// ProcessedTx model, consumed external transaction ids (replay protection)
type ProcessedTx struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Scope     string    `gorm:"not null;index:unique_scope_tx,unique" json:"scope"`
	TxHash    string    `gorm:"not null;index:unique_scope_tx,unique" json:"tx_hash"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// BridgeMeta model (only 1 record)
type BridgeMeta struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	NetworkId    uint64    `gorm:"not null" json:"network_id"`
	LockedAmount string    `gorm:"not null" json:"locked_amount"`
	Paused       bool      `gorm:"not null" json:"paused"`
	Shutdown     bool      `gorm:"not null" json:"shutdown"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

// RoleGrant model
type RoleGrant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Role      string    `gorm:"not null;index:unique_role_account,unique" json:"role"`
	Account   string    `gorm:"not null;index:unique_role_account,unique" json:"account"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
