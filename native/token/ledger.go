package token

import (
	"errors"
	"math/big"
	"sync"
)

var (
	ErrInvalidAmount         = errors.New("token: amount must be positive")
	ErrZeroAddress           = errors.New("token: zero address")
	ErrNotController         = errors.New("token: caller is not the controller")
	ErrTransferRestricted    = errors.New("token: transfers restricted to controller")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

// Ledger is an in-process fungible asset ledger with all-or-nothing
// semantics. Every call either fully commits or leaves balances untouched.
// Mint and burn are reserved for the configured controller; a restricted
// ledger additionally refuses transfers not initiated by the controller,
// which is how the receipt token keeps positions non-transferable.
type Ledger struct {
	mu sync.RWMutex

	name       string
	symbol     string
	controller [20]byte
	restricted bool

	totalSupply *big.Int
	balances    map[[20]byte]*big.Int
	allowances  map[[20]byte]map[[20]byte]*big.Int
}

// NewLedger creates an open-transfer ledger whose mint/burn authority is the
// supplied controller address.
func NewLedger(name, symbol string, controller [20]byte) *Ledger {
	return &Ledger{
		name:        name,
		symbol:      symbol,
		controller:  controller,
		totalSupply: big.NewInt(0),
		balances:    make(map[[20]byte]*big.Int),
		allowances:  make(map[[20]byte]map[[20]byte]*big.Int),
	}
}

// NewRestrictedLedger creates a ledger whose balances can only be moved by the
// controller. Used for stake receipts.
func NewRestrictedLedger(name, symbol string, controller [20]byte) *Ledger {
	l := NewLedger(name, symbol, controller)
	l.restricted = true
	return l
}

// Name returns the ledger's display name.
func (l *Ledger) Name() string { return l.name }

// Symbol returns the ledger's ticker symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// TotalSupply returns the total minted supply.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.totalSupply)
}

// BalanceOf returns the balance held by addr.
func (l *Ledger) BalanceOf(addr [20]byte) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if bal, ok := l.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Allowance returns the amount spender may still pull from owner.
func (l *Ledger) Allowance(owner, spender [20]byte) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if granted, ok := l.allowances[owner]; ok {
		if amt, ok := granted[spender]; ok {
			return new(big.Int).Set(amt)
		}
	}
	return big.NewInt(0)
}

// Mint credits amount to the recipient. Controller only.
func (l *Ledger) Mint(caller, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.controller {
		return ErrNotController
	}
	l.credit(to, amount)
	l.totalSupply = new(big.Int).Add(l.totalSupply, amount)
	return nil
}

// Burn removes amount from the holder's balance. Controller only.
func (l *Ledger) Burn(caller, from [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.controller {
		return ErrNotController
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.totalSupply = new(big.Int).Sub(l.totalSupply, amount)
	return nil
}

// Approve grants spender the right to pull up to amount from owner. The
// grant replaces any prior allowance.
func (l *Ledger) Approve(owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if spender == ([20]byte{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	granted, ok := l.allowances[owner]
	if !ok {
		granted = make(map[[20]byte]*big.Int)
		l.allowances[owner] = granted
	}
	granted[spender] = new(big.Int).Set(amount)
	return nil
}

// Transfer moves amount from the caller's own balance to the recipient.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.restricted && from != l.controller {
		return ErrTransferRestricted
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.credit(to, amount)
	return nil
}

// TransferFrom moves amount from the owner's balance using the spender's
// allowance. The allowance is reduced by the transferred amount.
func (l *Ledger) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.restricted && spender != l.controller {
		return ErrTransferRestricted
	}
	granted, ok := l.allowances[from]
	if !ok {
		return ErrInsufficientAllowance
	}
	remaining, ok := granted[spender]
	if !ok || remaining.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.credit(to, amount)
	granted[spender] = new(big.Int).Sub(remaining, amount)
	return nil
}

func (l *Ledger) credit(addr [20]byte, amount *big.Int) {
	if bal, ok := l.balances[addr]; ok {
		l.balances[addr] = new(big.Int).Add(bal, amount)
		return
	}
	l.balances[addr] = new(big.Int).Set(amount)
}

func (l *Ledger) debit(addr [20]byte, amount *big.Int) error {
	bal, ok := l.balances[addr]
	if !ok || bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.balances[addr] = new(big.Int).Sub(bal, amount)
	return nil
}
