package dao

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"pillarstake/core/events"
)

var (
	ErrUnauthorized       = errors.New("dao: unauthorized")
	ErrInvalidStakeAmount = errors.New("dao: invalid staked amount")
	ErrAlreadyMember      = errors.New("dao: user is already a member")
	ErrNoDeposit          = errors.New("dao: insufficient balance to withdraw")
	ErrTooEarly           = errors.New("dao: too early to withdraw")
	ErrInvalidMember      = errors.New("dao: invalid member")
	ErrInvalidTimestamp   = errors.New("dao: invalid timestamp")
	ErrInsufficientFunds  = errors.New("dao: insufficient balance or allowance")
	ErrProtectedAsset     = errors.New("dao: cannot sweep the staking asset")

	errNilAsset       = errors.New("dao vault: staking asset not configured")
	errNilCredentials = errors.New("dao vault: credential registry not configured")
	errNoOperator     = errors.New("dao vault: operator not configured")
	errNoCustody      = errors.New("dao vault: custody address not configured")
	errNoStakeAmount  = errors.New("dao vault: membership stake not configured")
)

// DefaultLockupDuration is the minimum membership term (52 weeks).
const DefaultLockupDuration int64 = 52 * 7 * 24 * 60 * 60

type assetLedger interface {
	BalanceOf(addr [20]byte) *big.Int
	Allowance(owner, spender [20]byte) *big.Int
	Transfer(from, to [20]byte, amount *big.Int) error
	TransferFrom(spender, from, to [20]byte, amount *big.Int) error
}

type credentialRegistry interface {
	Mint(caller, to [20]byte) (uint64, error)
	Burn(caller [20]byte, id uint64) error
	TokenOf(account [20]byte) uint64
}

// Config carries the construction parameters for the vault.
type Config struct {
	Operator       [20]byte
	Custody        [20]byte
	Asset          assetLedger
	Credentials    credentialRegistry
	StakingAmount  *big.Int
	LockupDuration int64
	// PreExistingMembers seeds accounts migrated from an earlier deployment.
	// Each gets a recorded deposit at construction time; the matching asset
	// balance is funded out of band.
	PreExistingMembers [][20]byte
}

// Vault is the long-horizon lock: members deposit exactly the configured
// stake, receive a membership credential, and may withdraw principal only
// after the full lockup term. One membership per account.
type Vault struct {
	mu sync.Mutex

	operator [20]byte
	custody  [20]byte

	asset       assetLedger
	credentials credentialRegistry
	emitter     events.Emitter
	nowFn       func() int64

	stakingAmount  *big.Int
	lockupDuration int64
	balances       map[[20]byte]*big.Int
	depositedAt    map[[20]byte]int64
}

// NewVault constructs the vault and registers any pre-existing members. The
// credential registry must already name the vault's custody address as its
// controller.
func NewVault(cfg Config) (*Vault, error) {
	if cfg.Asset == nil {
		return nil, errNilAsset
	}
	if cfg.Credentials == nil {
		return nil, errNilCredentials
	}
	if cfg.Operator == ([20]byte{}) {
		return nil, errNoOperator
	}
	if cfg.Custody == ([20]byte{}) {
		return nil, errNoCustody
	}
	if cfg.StakingAmount == nil || cfg.StakingAmount.Sign() <= 0 {
		return nil, errNoStakeAmount
	}
	lockup := cfg.LockupDuration
	if lockup <= 0 {
		lockup = DefaultLockupDuration
	}
	v := &Vault{
		operator:       cfg.Operator,
		custody:        cfg.Custody,
		asset:          cfg.Asset,
		credentials:    cfg.Credentials,
		emitter:        events.NoopEmitter{},
		nowFn:          func() int64 { return time.Now().Unix() },
		stakingAmount:  new(big.Int).Set(cfg.StakingAmount),
		lockupDuration: lockup,
		balances:       make(map[[20]byte]*big.Int),
		depositedAt:    make(map[[20]byte]int64),
	}
	now := v.nowFn()
	for _, member := range cfg.PreExistingMembers {
		if member == ([20]byte{}) {
			return nil, ErrInvalidMember
		}
		if v.credentials.TokenOf(member) == 0 {
			if _, err := v.credentials.Mint(v.custody, member); err != nil {
				return nil, err
			}
		}
		v.balances[member] = new(big.Int).Set(v.stakingAmount)
		v.depositedAt[member] = now
	}
	return v, nil
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (v *Vault) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		v.emitter = events.NoopEmitter{}
		return
	}
	v.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (v *Vault) SetNowFunc(now func() int64) {
	if now == nil {
		v.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	v.nowFn = now
}

// Custody returns the address holding member deposits.
func (v *Vault) Custody() [20]byte { return v.custody }

// StakingAmount returns the fixed membership deposit.
func (v *Vault) StakingAmount() *big.Int {
	return new(big.Int).Set(v.stakingAmount)
}

// Deposit pulls exactly the configured membership stake from the member and
// issues a credential. A member can deposit once.
func (v *Vault) Deposit(member [20]byte, amount *big.Int) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if member == ([20]byte{}) {
		return 0, ErrInvalidMember
	}
	if amount == nil || amount.Cmp(v.stakingAmount) != 0 {
		return 0, ErrInvalidStakeAmount
	}
	if v.credentials.TokenOf(member) != 0 {
		return 0, ErrAlreadyMember
	}
	if bal, ok := v.balances[member]; ok && bal.Sign() > 0 {
		return 0, ErrAlreadyMember
	}
	if v.asset.BalanceOf(member).Cmp(amount) < 0 {
		return 0, ErrInsufficientFunds
	}
	if v.asset.Allowance(member, v.custody).Cmp(amount) < 0 {
		return 0, ErrInsufficientFunds
	}
	// Pull funds before issuing the credential: the asset ledger is shared
	// with other components, so the pre-checks above can go stale and the
	// pull is the real commit point.
	if err := v.asset.TransferFrom(v.custody, member, v.custody, amount); err != nil {
		return 0, err
	}
	id, err := v.credentials.Mint(v.custody, member)
	if err != nil {
		if rerr := v.asset.Transfer(v.custody, member, amount); rerr != nil {
			return 0, rerr
		}
		return 0, err
	}
	v.balances[member] = new(big.Int).Set(amount)
	v.depositedAt[member] = v.nowFn()
	v.emitter.Emit(events.VaultDeposited{Member: member, Amount: new(big.Int).Set(amount), MembershipID: id})
	return id, nil
}

// Withdraw returns the member's deposit and burns their credential. Only
// legal after the full lockup term has elapsed since the recorded deposit.
func (v *Vault) Withdraw(member [20]byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	balance, ok := v.balances[member]
	if !ok || balance.Sign() == 0 {
		return ErrNoDeposit
	}
	if v.nowFn() < v.depositedAt[member]+v.lockupDuration {
		return ErrTooEarly
	}
	if err := v.asset.Transfer(v.custody, member, balance); err != nil {
		return err
	}
	if id := v.credentials.TokenOf(member); id != 0 {
		if err := v.credentials.Burn(v.custody, id); err != nil {
			return err
		}
	}
	amount := new(big.Int).Set(balance)
	delete(v.balances, member)
	delete(v.depositedAt, member)
	v.emitter.Emit(events.VaultWithdrawn{Member: member, Amount: amount})
	return nil
}

// CanUnstake reports whether the member's lockup term has elapsed. True for
// accounts with no recorded deposit.
func (v *Vault) CanUnstake(member [20]byte) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	ts, ok := v.depositedAt[member]
	if !ok || ts == 0 {
		return true
	}
	return v.nowFn() >= ts+v.lockupDuration
}

// MembershipID returns the member's credential id, zero when none.
func (v *Vault) MembershipID(member [20]byte) uint64 {
	return v.credentials.TokenOf(member)
}

// BalanceOf returns the member's recorded deposit.
func (v *Vault) BalanceOf(member [20]byte) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if bal, ok := v.balances[member]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// DepositTimestamp returns the recorded deposit time, zero when none.
func (v *Vault) DepositTimestamp(member [20]byte) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.depositedAt[member]
}

// SetDepositTimestamp overrides a member's recorded deposit time. Operator
// only; used to honour lockups carried over from earlier deployments.
func (v *Vault) SetDepositTimestamp(caller, member [20]byte, ts int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.operator {
		return ErrUnauthorized
	}
	if member == ([20]byte{}) {
		return ErrInvalidMember
	}
	if ts <= 0 {
		return ErrInvalidTimestamp
	}
	v.depositedAt[member] = ts
	return nil
}

// WithdrawTokenToOwner sweeps the custody balance of a stray asset to the
// operator. The vault's own staking asset cannot be swept.
func (v *Vault) WithdrawTokenToOwner(caller [20]byte, ledger assetLedger) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.operator {
		return ErrUnauthorized
	}
	if ledger == nil || ledger == v.asset {
		return ErrProtectedAsset
	}
	balance := ledger.BalanceOf(v.custody)
	if balance.Sign() == 0 {
		return nil
	}
	return ledger.Transfer(v.custody, v.operator, balance)
}
