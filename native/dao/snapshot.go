package dao

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is the persistable form of the vault's member ledger.
type Snapshot struct {
	StakingAmount string            `json:"stakingAmount"`
	Balances      map[string]string `json:"balances"`
	DepositedAt   map[string]int64  `json:"depositedAt"`
}

// Snapshot captures the vault state for persistence.
func (v *Vault) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	snap := Snapshot{
		StakingAmount: v.stakingAmount.String(),
		Balances:      make(map[string]string, len(v.balances)),
		DepositedAt:   make(map[string]int64, len(v.depositedAt)),
	}
	for member, bal := range v.balances {
		snap.Balances[common.Address(member).Hex()] = bal.String()
	}
	for member, ts := range v.depositedAt {
		snap.DepositedAt[common.Address(member).Hex()] = ts
	}
	return snap
}

// Restore replaces the vault's member ledger with the snapshot contents.
func (v *Vault) Restore(snap Snapshot) error {
	balances := make(map[[20]byte]*big.Int, len(snap.Balances))
	for member, raw := range snap.Balances {
		parsed, ok := new(big.Int).SetString(raw, 10)
		if !ok || parsed.Sign() < 0 {
			return fmt.Errorf("dao: restore balance for %s: invalid amount %q", member, raw)
		}
		balances[common.HexToAddress(member)] = parsed
	}
	deposited := make(map[[20]byte]int64, len(snap.DepositedAt))
	for member, ts := range snap.DepositedAt {
		deposited[common.HexToAddress(member)] = ts
	}
	amount, ok := new(big.Int).SetString(snap.StakingAmount, 10)
	if !ok || amount.Sign() <= 0 {
		return fmt.Errorf("dao: restore staking amount: invalid amount %q", snap.StakingAmount)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.stakingAmount = amount
	v.balances = balances
	v.depositedAt = deposited
	return nil
}
