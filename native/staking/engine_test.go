package staking

import (
	"errors"
	"math/big"
	"testing"

	"pillarstake/native/token"
)

var (
	opAddr      = addr(0x01)
	custodyAddr = addr(0x02)
	alice       = addr(0xA1)
	bob         = addr(0xB1)
	carol       = addr(0xC1)
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

type fixture struct {
	engine  *Engine
	staking *token.Ledger
	reward  *token.Ledger
	receipt *token.Ledger
	now     int64
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		staking: token.NewLedger("Pillar", "PLR", opAddr),
		reward:  token.NewLedger("Pillar Reward", "rPLR", opAddr),
		receipt: token.NewRestrictedLedger("Staked Pillar", "stPLR", custodyAddr),
		now:     1_000_000,
	}
	cfg.Operator = opAddr
	cfg.Custody = custodyAddr
	cfg.StakingAsset = f.staking
	cfg.RewardAsset = f.reward
	cfg.Receipt = f.receipt
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	engine.SetNowFunc(func() int64 { return f.now })
	f.engine = engine
	return f
}

func (f *fixture) fund(t *testing.T, account [20]byte, amount int64) {
	t.Helper()
	if err := f.staking.Mint(opAddr, account, big.NewInt(amount)); err != nil {
		t.Fatalf("mint staking asset: %v", err)
	}
	if err := f.staking.Approve(account, custodyAddr, big.NewInt(amount)); err != nil {
		t.Fatalf("approve custody: %v", err)
	}
}

func (f *fixture) fundRewards(t *testing.T, amount int64) {
	t.Helper()
	if err := f.reward.Mint(opAddr, opAddr, big.NewInt(amount)); err != nil {
		t.Fatalf("mint reward asset: %v", err)
	}
	if err := f.reward.Approve(opAddr, custodyAddr, big.NewInt(amount)); err != nil {
		t.Fatalf("approve reward custody: %v", err)
	}
}

func (f *fixture) open(t *testing.T) {
	t.Helper()
	if err := f.engine.SetPhase(opAddr, PhaseStakeable); err != nil {
		t.Fatalf("enter stakeable: %v", err)
	}
}

func (f *fixture) close(t *testing.T) {
	t.Helper()
	if err := f.engine.SetPhase(opAddr, PhaseStaked); err != nil {
		t.Fatalf("enter staked: %v", err)
	}
}

func (f *fixture) ready(t *testing.T) {
	t.Helper()
	f.now = f.engine.Window().OpensAt + f.engine.lockupDuration
	if err := f.engine.SetPhase(opAddr, PhaseReadyForUnstake); err != nil {
		t.Fatalf("enter readyForUnstake: %v", err)
	}
}

func (f *fixture) stake(t *testing.T, account [20]byte, amount int64) {
	t.Helper()
	if err := f.engine.Stake(account, big.NewInt(amount)); err != nil {
		t.Fatalf("stake %d for %x: %v", amount, account, err)
	}
}

func TestNewEngineDefaults(t *testing.T) {
	f := newFixture(t, Config{})
	limits := f.engine.Limits()
	if got := limits.MaxAggregateStake.Int64(); got != DefaultMaxTotalStake {
		t.Fatalf("max aggregate = %d, want %d", got, DefaultMaxTotalStake)
	}
	if f.engine.Phase() != PhaseInitialized {
		t.Fatalf("phase = %v, want Initialized", f.engine.Phase())
	}
	if f.engine.Window().Armed() {
		t.Fatal("window armed before first stakeable entry")
	}
}

func TestSetPhaseAuthorization(t *testing.T) {
	f := newFixture(t, Config{})
	if err := f.engine.SetPhase(alice, PhaseStakeable); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if f.engine.Phase() != PhaseInitialized {
		t.Fatalf("phase changed on rejected call: %v", f.engine.Phase())
	}
}

func TestSetPhaseArmsWindowOnce(t *testing.T) {
	f := newFixture(t, Config{StakeablePeriod: 100, LockupDuration: 500})
	f.open(t)
	window := f.engine.Window()
	if window.OpensAt != f.now || window.ClosesAt != f.now+100 {
		t.Fatalf("window = %+v, want open at %d for 100s", window, f.now)
	}

	// Leaving and re-entering Stakeable must not rearm the window.
	f.close(t)
	f.now += 50
	f.open(t)
	if got := f.engine.Window(); got != window {
		t.Fatalf("window rearmed on re-entry: %+v", got)
	}
}

func TestSetPhaseReadyForUnstakeRequiresLockup(t *testing.T) {
	f := newFixture(t, Config{StakeablePeriod: 100, LockupDuration: 500})
	f.open(t)
	f.close(t)

	f.now = f.engine.Window().OpensAt + 499
	if err := f.engine.SetPhase(opAddr, PhaseReadyForUnstake); !errors.Is(err, ErrStakedDurationTooShort) {
		t.Fatalf("err = %v, want ErrStakedDurationTooShort", err)
	}
	f.now++
	if err := f.engine.SetPhase(opAddr, PhaseReadyForUnstake); err != nil {
		t.Fatalf("SetPhase at lockup boundary: %v", err)
	}
}

func TestStakeLifecycle(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000)})
	f.fund(t, alice, 13_131)
	f.open(t)
	f.stake(t, alice, 13_131)

	if got := f.engine.StakedAmountFor(alice).Int64(); got != 13_131 {
		t.Fatalf("principal = %d, want 13131", got)
	}
	if got := f.engine.TotalStaked().Int64(); got != 13_131 {
		t.Fatalf("total staked = %d, want 13131", got)
	}
	if got := f.staking.BalanceOf(custodyAddr).Int64(); got != 13_131 {
		t.Fatalf("custody balance = %d, want 13131", got)
	}
	if got := f.receipt.BalanceOf(alice).Int64(); got != 13_131 {
		t.Fatalf("receipt balance = %d, want 13131", got)
	}
	if got := f.staking.BalanceOf(alice).Int64(); got != 0 {
		t.Fatalf("staker retains %d after full stake", got)
	}
	if !f.engine.HasStaked(alice) {
		t.Fatal("HasStaked = false after stake")
	}
}

func TestStakePhaseGate(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000)})
	f.fund(t, alice, 10_000)
	if err := f.engine.Stake(alice, big.NewInt(10_000)); !errors.Is(err, ErrOnlyWhenStakeable) {
		t.Fatalf("err = %v, want ErrOnlyWhenStakeable", err)
	}
}

func TestStakeWindowExpiry(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000), StakeablePeriod: 100})
	f.fund(t, alice, 10_000)
	f.open(t)
	f.now = f.engine.Window().ClosesAt + 1
	if err := f.engine.Stake(alice, big.NewInt(10_000)); !errors.Is(err, ErrStakingPeriodPassed) {
		t.Fatalf("err = %v, want ErrStakingPeriodPassed", err)
	}

	// The boundary itself is still inside the window.
	f.now--
	f.stake(t, alice, 10_000)
}

func TestStakeBelowMinimum(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000)})
	f.fund(t, alice, 20_000)
	f.open(t)

	err := f.engine.Stake(alice, big.NewInt(9_999))
	var minErr *InvalidMinimumStakeError
	if !errors.As(err, &minErr) {
		t.Fatalf("err = %v, want InvalidMinimumStakeError", err)
	}
	if minErr.Minimum.Int64() != 10_000 {
		t.Fatalf("reported minimum = %s, want 10000", minErr.Minimum)
	}
}

func TestStakeAboveMaximumPerCall(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000)})
	f.fund(t, alice, 300_000)
	f.open(t)

	err := f.engine.Stake(alice, big.NewInt(250_001))
	var maxErr *InvalidMaximumStakeError
	if !errors.As(err, &maxErr) {
		t.Fatalf("err = %v, want InvalidMaximumStakeError", err)
	}
	if maxErr.Maximum.Int64() != 250_000 {
		t.Fatalf("reported maximum = %s, want 250000", maxErr.Maximum)
	}
}

func TestStakeCumulativeCap(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000)})
	f.fund(t, alice, 260_000)
	f.open(t)
	f.stake(t, alice, 240_000)

	if err := f.engine.Stake(alice, big.NewInt(10_001)); !errors.Is(err, ErrStakeWouldBeGreaterThanMax) {
		t.Fatalf("err = %v, want ErrStakeWouldBeGreaterThanMax", err)
	}
	if got := f.engine.StakedAmountFor(alice).Int64(); got != 240_000 {
		t.Fatalf("principal mutated on rejected stake: %d", got)
	}

	// Topping up to exactly the cap is allowed.
	f.stake(t, alice, 10_000)
	if got := f.engine.StakedAmountFor(alice).Int64(); got != 250_000 {
		t.Fatalf("principal = %d, want 250000", got)
	}
}

func TestStakeAggregateCap(t *testing.T) {
	f := newFixture(t, Config{
		MinStake:      big.NewInt(10_000),
		MaxStake:      big.NewInt(7_500_000),
		MaxTotalStake: big.NewInt(7_200_000),
	})
	f.fund(t, alice, 7_199_999)
	f.fund(t, bob, 10_000)
	f.open(t)
	f.stake(t, alice, 7_199_999)

	err := f.engine.Stake(bob, big.NewInt(10_000))
	var capErr *MaximumTotalStakeReachedError
	if !errors.As(err, &capErr) {
		t.Fatalf("err = %v, want MaximumTotalStakeReachedError", err)
	}
	if capErr.Maximum.Int64() != 7_200_000 {
		t.Fatalf("maximum = %s, want 7200000", capErr.Maximum)
	}
	if capErr.Total.Int64() != 7_199_999 {
		t.Fatalf("total = %s, want 7199999", capErr.Total)
	}
	if capErr.Shortfall.Int64() != 1 {
		t.Fatalf("shortfall = %s, want 1", capErr.Shortfall)
	}
	if capErr.Requested.Int64() != 10_000 {
		t.Fatalf("requested = %s, want 10000", capErr.Requested)
	}
	if got := f.engine.TotalStaked().Int64(); got != 7_199_999 {
		t.Fatalf("total staked mutated on rejected stake: %d", got)
	}
}

func TestStakeInsufficientBalance(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000)})
	f.fund(t, alice, 9_999)
	f.open(t)
	if err := f.engine.Stake(alice, big.NewInt(10_000)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
}

func TestStakeWithoutAllowanceLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000)})
	if err := f.staking.Mint(opAddr, alice, big.NewInt(10_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.open(t)

	if err := f.engine.Stake(alice, big.NewInt(10_000)); !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Fatalf("err = %v, want token.ErrInsufficientAllowance", err)
	}
	if got := f.engine.TotalStaked().Sign(); got != 0 {
		t.Fatal("total staked mutated on failed pull")
	}
	if got := f.receipt.TotalSupply().Sign(); got != 0 {
		t.Fatal("receipts minted on failed pull")
	}
	if f.engine.HasStaked(alice) {
		t.Fatal("staker recorded on failed pull")
	}
}

func TestStakeZeroAddress(t *testing.T) {
	f := newFixture(t, Config{})
	f.open(t)
	if err := f.engine.Stake([20]byte{}, big.NewInt(10_000)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("err = %v, want ErrZeroAddress", err)
	}
}

func TestUpdateLimits(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000)})

	if err := f.engine.UpdateMinStakeLimit(opAddr, big.NewInt(5_000)); !errors.Is(err, ErrOnlyWhenStakeable) {
		t.Fatalf("err = %v, want ErrOnlyWhenStakeable", err)
	}

	f.open(t)
	if err := f.engine.UpdateMinStakeLimit(alice, big.NewInt(5_000)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if err := f.engine.UpdateMinStakeLimit(opAddr, big.NewInt(5_000)); err != nil {
		t.Fatalf("UpdateMinStakeLimit: %v", err)
	}
	if err := f.engine.UpdateMaxStakeLimit(opAddr, big.NewInt(300_000)); err != nil {
		t.Fatalf("UpdateMaxStakeLimit: %v", err)
	}
	limits := f.engine.Limits()
	if limits.MinStakePerCall.Int64() != 5_000 || limits.MaxStakePerAccount.Int64() != 300_000 {
		t.Fatalf("limits = %+v after update", limits)
	}

	f.fund(t, alice, 5_000)
	f.stake(t, alice, 5_000)
}

func TestStakedAccountsEnumeration(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000), LockupDuration: 100})
	f.fund(t, alice, 20_000)
	f.fund(t, bob, 10_000)
	f.open(t)
	f.stake(t, alice, 10_000)
	f.stake(t, bob, 10_000)
	f.stake(t, alice, 10_000)

	accounts := f.engine.StakedAccounts()
	if len(accounts) != 2 || accounts[0] != alice || accounts[1] != bob {
		t.Fatalf("accounts = %x, want [alice bob]", accounts)
	}

	// A fully withdrawn account stays in the enumeration with zero principal.
	f.close(t)
	f.ready(t)
	if err := f.engine.Unstake(alice); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	accounts = f.engine.StakedAccounts()
	if len(accounts) != 2 || !f.engine.HasStaked(alice) {
		t.Fatalf("withdrawn account dropped from enumeration: %x", accounts)
	}
	if got := f.engine.StakedAmountFor(alice).Sign(); got != 0 {
		t.Fatalf("withdrawn principal = %d, want 0", got)
	}
}
