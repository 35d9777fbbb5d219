package token

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is the persistable form of a ledger.
type Snapshot struct {
	Name        string                       `json:"name"`
	Symbol      string                       `json:"symbol"`
	Controller  string                       `json:"controller"`
	Restricted  bool                         `json:"restricted"`
	TotalSupply string                       `json:"totalSupply"`
	Balances    map[string]string            `json:"balances"`
	Allowances  map[string]map[string]string `json:"allowances,omitempty"`
}

// Snapshot captures the full ledger state for persistence.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap := Snapshot{
		Name:        l.name,
		Symbol:      l.symbol,
		Controller:  common.Address(l.controller).Hex(),
		Restricted:  l.restricted,
		TotalSupply: l.totalSupply.String(),
		Balances:    make(map[string]string, len(l.balances)),
	}
	for addr, bal := range l.balances {
		snap.Balances[common.Address(addr).Hex()] = bal.String()
	}
	if len(l.allowances) > 0 {
		snap.Allowances = make(map[string]map[string]string, len(l.allowances))
		for owner, granted := range l.allowances {
			entry := make(map[string]string, len(granted))
			for spender, amt := range granted {
				entry[common.Address(spender).Hex()] = amt.String()
			}
			snap.Allowances[common.Address(owner).Hex()] = entry
		}
	}
	return snap
}

// Restore replaces the ledger state with the snapshot contents.
func (l *Ledger) Restore(snap Snapshot) error {
	balances := make(map[[20]byte]*big.Int, len(snap.Balances))
	for addr, raw := range snap.Balances {
		parsed, err := parseAmount(raw)
		if err != nil {
			return fmt.Errorf("token: restore balance for %s: %w", addr, err)
		}
		balances[common.HexToAddress(addr)] = parsed
	}
	allowances := make(map[[20]byte]map[[20]byte]*big.Int, len(snap.Allowances))
	for owner, granted := range snap.Allowances {
		entry := make(map[[20]byte]*big.Int, len(granted))
		for spender, raw := range granted {
			parsed, err := parseAmount(raw)
			if err != nil {
				return fmt.Errorf("token: restore allowance for %s: %w", owner, err)
			}
			entry[common.HexToAddress(spender)] = parsed
		}
		allowances[common.HexToAddress(owner)] = entry
	}
	supply, err := parseAmount(snap.TotalSupply)
	if err != nil {
		return fmt.Errorf("token: restore total supply: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.name = snap.Name
	l.symbol = snap.Symbol
	l.controller = common.HexToAddress(snap.Controller)
	l.restricted = snap.Restricted
	l.totalSupply = supply
	l.balances = balances
	l.allowances = allowances
	return nil
}

func parseAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(raw, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return parsed, nil
}
