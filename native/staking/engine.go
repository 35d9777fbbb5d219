package staking

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"pillarstake/core/events"
)

var (
	errNilStakingAsset = errors.New("staking engine: staking asset not configured")
	errNilRewardAsset  = errors.New("staking engine: reward asset not configured")
	errNilReceipt      = errors.New("staking engine: receipt ledger not configured")
	errNoOperator      = errors.New("staking engine: operator not configured")
	errNoCustody       = errors.New("staking engine: custody address not configured")
)

type assetLedger interface {
	BalanceOf(addr [20]byte) *big.Int
	Transfer(from, to [20]byte, amount *big.Int) error
	TransferFrom(spender, from, to [20]byte, amount *big.Int) error
}

type receiptLedger interface {
	Mint(caller, to [20]byte, amount *big.Int) error
	Burn(caller, from [20]byte, amount *big.Int) error
	BalanceOf(addr [20]byte) *big.Int
	TotalSupply() *big.Int
}

// Config carries the construction parameters for the staking engine. Zero
// limit values fall back to the package defaults.
type Config struct {
	Operator        [20]byte
	Custody         [20]byte
	StakingAsset    assetLedger
	RewardAsset     assetLedger
	Receipt         receiptLedger
	MinStake        *big.Int
	MaxStake        *big.Int
	MaxTotalStake   *big.Int
	StakeablePeriod int64
	LockupDuration  int64
}

// Engine owns the staking state machine: the lifecycle phase, the stake
// registry, the reward ledger and the limits policy. Every mutating call is
// serialized behind a single lock and either fully commits or leaves all
// ledgers unchanged.
type Engine struct {
	mu sync.Mutex

	operator [20]byte
	custody  [20]byte

	stakingAsset assetLedger
	rewardAsset  assetLedger
	receipt      receiptLedger
	emitter      events.Emitter
	nowFn        func() int64

	phase           Phase
	window          Window
	stakeablePeriod int64
	lockupDuration  int64
	limits          Limits

	records     map[[20]byte]StakeRecord
	stakers     [][20]byte
	stakerIndex map[[20]byte]int
	totalStaked *big.Int
	pool        RewardPool
}

// NewEngine constructs an engine in the Initialized phase.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.StakingAsset == nil {
		return nil, errNilStakingAsset
	}
	if cfg.RewardAsset == nil {
		return nil, errNilRewardAsset
	}
	if cfg.Receipt == nil {
		return nil, errNilReceipt
	}
	if cfg.Operator == ([20]byte{}) {
		return nil, errNoOperator
	}
	if cfg.Custody == ([20]byte{}) {
		return nil, errNoCustody
	}
	limits := Limits{
		MinStakePerCall:    copyBigInt(cfg.MinStake),
		MaxStakePerAccount: copyBigInt(cfg.MaxStake),
		MaxAggregateStake:  copyBigInt(cfg.MaxTotalStake),
	}
	if limits.MaxAggregateStake.Sign() == 0 {
		limits.MaxAggregateStake = big.NewInt(DefaultMaxTotalStake)
	}
	period := cfg.StakeablePeriod
	if period <= 0 {
		period = DefaultStakeablePeriod
	}
	lockup := cfg.LockupDuration
	if lockup <= 0 {
		lockup = DefaultLockupDuration
	}
	return &Engine{
		operator:        cfg.Operator,
		custody:         cfg.Custody,
		stakingAsset:    cfg.StakingAsset,
		rewardAsset:     cfg.RewardAsset,
		receipt:         cfg.Receipt,
		emitter:         events.NoopEmitter{},
		nowFn:           func() int64 { return time.Now().Unix() },
		phase:           PhaseInitialized,
		stakeablePeriod: period,
		lockupDuration:  lockup,
		limits:          limits,
		records:         make(map[[20]byte]StakeRecord),
		stakerIndex:     make(map[[20]byte]int),
		totalStaked:     big.NewInt(0),
		pool:            RewardPool{TotalDeposited: big.NewInt(0), TotalAllocated: big.NewInt(0)},
	}, nil
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Custody returns the address holding staked and reward assets.
func (e *Engine) Custody() [20]byte { return e.custody }

// Operator returns the authorized administrative account.
func (e *Engine) Operator() [20]byte { return e.operator }

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

// SetPhase transitions the lifecycle state. Operator only. Entering
// ReadyForUnstake requires the full lockup duration to have elapsed since the
// window opened. The first transition into Stakeable arms the staking window;
// later re-entries leave it untouched.
func (e *Engine) SetPhase(caller [20]byte, target Phase) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.operator {
		return ErrUnauthorized
	}
	if !target.Valid() {
		return ErrInvalidPhase
	}
	now := e.nowFn()
	switch target {
	case PhaseStakeable:
		if !e.window.Armed() {
			e.window = Window{OpensAt: now, ClosesAt: now + e.stakeablePeriod}
		}
	case PhaseReadyForUnstake:
		if now < e.window.OpensAt+e.lockupDuration {
			return ErrStakedDurationTooShort
		}
	}
	e.phase = target
	e.emit(events.PhaseChanged{Phase: uint8(target)})
	return nil
}

// Stake pulls amount from the caller into custody, credits the caller's
// principal and mints matching receipt units. Preconditions are checked in a
// fixed order so each failure mode is distinct.
func (e *Engine) Stake(caller [20]byte, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller == ([20]byte{}) {
		return ErrZeroAddress
	}
	amt := copyBigInt(amount)
	if e.phase != PhaseStakeable {
		return ErrOnlyWhenStakeable
	}
	if e.nowFn() > e.window.ClosesAt {
		return ErrStakingPeriodPassed
	}
	if amt.Cmp(e.limits.MinStakePerCall) < 0 {
		return &InvalidMinimumStakeError{Minimum: copyBigInt(e.limits.MinStakePerCall)}
	}
	if amt.Cmp(e.limits.MaxStakePerAccount) > 0 {
		return &InvalidMaximumStakeError{Maximum: copyBigInt(e.limits.MaxStakePerAccount)}
	}
	if e.stakingAsset.BalanceOf(caller).Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	record := e.records[caller]
	cumulative := new(big.Int).Add(copyBigInt(record.Principal), amt)
	if cumulative.Cmp(e.limits.MaxStakePerAccount) > 0 {
		return ErrStakeWouldBeGreaterThanMax
	}
	aggregate := new(big.Int).Add(e.totalStaked, amt)
	if aggregate.Cmp(e.limits.MaxAggregateStake) > 0 {
		return &MaximumTotalStakeReachedError{
			Maximum:   copyBigInt(e.limits.MaxAggregateStake),
			Total:     copyBigInt(e.totalStaked),
			Shortfall: new(big.Int).Sub(e.limits.MaxAggregateStake, e.totalStaked),
			Requested: amt,
		}
	}

	if err := e.stakingAsset.TransferFrom(e.custody, caller, e.custody, amt); err != nil {
		return err
	}
	if err := e.receipt.Mint(e.custody, caller, amt); err != nil {
		return err
	}

	record.Principal = cumulative
	if record.Reward == nil {
		record.Reward = big.NewInt(0)
	}
	e.records[caller] = record
	if _, known := e.stakerIndex[caller]; !known {
		e.stakerIndex[caller] = len(e.stakers)
		e.stakers = append(e.stakers, caller)
	}
	e.totalStaked = aggregate
	e.emit(events.StakeRecorded{Account: caller, Amount: copyBigInt(amt)})
	return nil
}

// DepositRewards pulls amount of the reward asset into custody. Operator
// only; legal in any phase so pools can be seeded before the window closes.
func (e *Engine) DepositRewards(caller [20]byte, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.operator {
		return ErrUnauthorized
	}
	amt := copyBigInt(amount)
	if amt.Sign() == 0 {
		return ErrRewardsCannotBeZero
	}
	if err := e.rewardAsset.TransferFrom(e.custody, caller, e.custody, amt); err != nil {
		return err
	}
	e.pool.TotalDeposited = new(big.Int).Add(e.pool.TotalDeposited, amt)
	e.emit(events.RewardsDeposited{Amount: amt, TotalDeposited: copyBigInt(e.pool.TotalDeposited)})
	return nil
}

// EligibleRewardAmount finalizes the account's reward share and returns it.
// Callable by anyone, but only once per account: the computed amount is
// written to the reward ledger and the calculated flag is set.
//
// The denominator is the aggregate principal still recorded at call time, not
// a window-close snapshot: accounts that have already withdrawn no longer
// contribute, so call order changes individual payouts.
func (e *Engine) EligibleRewardAmount(account [20]byte) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseReadyForUnstake {
		return nil, ErrOnlyWhenReadyForUnstake
	}
	if account == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	record := e.records[account]
	if record.RewardCalculated {
		return nil, ErrRewardsAlreadyCalculated
	}
	reward := e.proRataReward(record.Principal)
	record.Reward = copyBigInt(reward)
	record.RewardCalculated = true
	e.records[account] = record
	e.pool.TotalAllocated = new(big.Int).Add(e.pool.TotalAllocated, reward)
	return copyBigInt(reward), nil
}

// proRataReward is the caller's share of the full deposited pool against the
// live aggregate principal, rounding down, capped at the unallocated balance.
// While principals only finalize, the shares sum to at most the pool and the
// cap is inert; once a principal has left the registry the flat share can
// overshoot, and the cap hands the later caller exactly what remains.
func (e *Engine) proRataReward(principal *big.Int) *big.Int {
	if principal == nil || principal.Sign() == 0 || e.totalStaked.Sign() == 0 {
		return big.NewInt(0)
	}
	available := new(big.Int).Sub(e.pool.TotalDeposited, e.pool.TotalAllocated)
	if available.Sign() <= 0 {
		return big.NewInt(0)
	}
	reward := new(big.Int).Mul(e.pool.TotalDeposited, principal)
	reward.Div(reward, e.totalStaked)
	if reward.Cmp(available) > 0 {
		reward.Set(available)
	}
	return reward
}

// Unstake burns the caller's receipt balance, returns their principal and
// pays out the finalized reward. If the reward was never finalized via
// EligibleRewardAmount it is computed inline from the live denominator.
func (e *Engine) Unstake(caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseReadyForUnstake {
		return ErrOnlyWhenReadyForUnstake
	}
	if caller == ([20]byte{}) {
		return ErrZeroAddress
	}
	record := e.records[caller]
	if record.Claimed {
		return &UserAlreadyClaimedRewardsError{Account: caller}
	}
	principal := copyBigInt(record.Principal)
	reward := copyBigInt(record.Reward)
	allocated := false
	if !record.RewardCalculated {
		reward = e.proRataReward(principal)
		allocated = true
	}
	if principal.Sign() > 0 && e.stakingAsset.BalanceOf(e.custody).Cmp(principal) < 0 {
		return ErrInsufficientBalance
	}
	if reward.Sign() > 0 && e.rewardAsset.BalanceOf(e.custody).Cmp(reward) < 0 {
		return ErrInsufficientBalance
	}
	if principal.Sign() > 0 {
		if err := e.receipt.Burn(e.custody, caller, principal); err != nil {
			return err
		}
		if err := e.stakingAsset.Transfer(e.custody, caller, principal); err != nil {
			return err
		}
	}
	if reward.Sign() > 0 {
		if err := e.rewardAsset.Transfer(e.custody, caller, reward); err != nil {
			return err
		}
	}

	record.Principal = big.NewInt(0)
	record.Reward = copyBigInt(reward)
	record.RewardCalculated = true
	record.Claimed = true
	e.records[caller] = record
	e.totalStaked = new(big.Int).Sub(e.totalStaked, principal)
	if allocated {
		e.pool.TotalAllocated = new(big.Int).Add(e.pool.TotalAllocated, reward)
	}
	e.emit(events.Unstaked{Account: caller, Principal: principal})
	e.emit(events.RewardPaid{Account: caller, Reward: reward})
	return nil
}

// UpdateMinStakeLimit replaces the per-call minimum. Operator only, and only
// while staking is open.
func (e *Engine) UpdateMinStakeLimit(caller [20]byte, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.operator {
		return ErrUnauthorized
	}
	if e.phase != PhaseStakeable {
		return ErrOnlyWhenStakeable
	}
	e.limits.MinStakePerCall = copyBigInt(amount)
	e.emit(events.MinStakeUpdated{Amount: copyBigInt(e.limits.MinStakePerCall)})
	return nil
}

// UpdateMaxStakeLimit replaces the per-account maximum. Operator only, and
// only while staking is open.
func (e *Engine) UpdateMaxStakeLimit(caller [20]byte, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.operator {
		return ErrUnauthorized
	}
	if e.phase != PhaseStakeable {
		return ErrOnlyWhenStakeable
	}
	e.limits.MaxStakePerAccount = copyBigInt(amount)
	e.emit(events.MaxStakeUpdated{Amount: copyBigInt(e.limits.MaxStakePerAccount)})
	return nil
}

// Phase returns the current lifecycle phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Window returns the staking window, zero until first armed.
func (e *Engine) Window() Window {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window
}

// Limits returns a copy of the current stake bounds.
func (e *Engine) Limits() Limits {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.limits.Clone()
}

// TotalStaked returns the aggregate recorded principal.
func (e *Engine) TotalStaked() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(e.totalStaked)
}

// RewardPool returns a copy of the cumulative deposit/allocation totals.
func (e *Engine) RewardPool() RewardPool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return RewardPool{
		TotalDeposited: copyBigInt(e.pool.TotalDeposited),
		TotalAllocated: copyBigInt(e.pool.TotalAllocated),
	}
}

// StakedAccounts returns every account that has ever staked, in first-stake
// order. Accounts that have fully withdrawn stay in the list.
func (e *Engine) StakedAccounts() [][20]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][20]byte, len(e.stakers))
	copy(out, e.stakers)
	return out
}

// StakedAmountFor returns the recorded principal for the account, zero when
// the account never staked.
func (e *Engine) StakedAmountFor(account [20]byte) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyBigInt(e.records[account].Principal)
}

// RewardAmountFor returns the finalized reward for the account, zero until
// EligibleRewardAmount (or an inline unstake computation) has run.
func (e *Engine) RewardAmountFor(account [20]byte) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyBigInt(e.records[account].Reward)
}

// HasStaked reports whether the account appears in the enumeration list.
func (e *Engine) HasStaked(account [20]byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.stakerIndex[account]
	return ok
}

// Record returns a copy of the account's full stake record.
func (e *Engine) Record(account [20]byte) StakeRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.records[account].clone()
}
