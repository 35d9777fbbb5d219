package staking

import (
	"errors"
	"math/big"
	"testing"
)

func TestDepositRewards(t *testing.T) {
	f := newFixture(t, Config{})
	f.fundRewards(t, 1_000)

	if err := f.engine.DepositRewards(alice, big.NewInt(100)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if err := f.engine.DepositRewards(opAddr, big.NewInt(0)); !errors.Is(err, ErrRewardsCannotBeZero) {
		t.Fatalf("err = %v, want ErrRewardsCannotBeZero", err)
	}

	// Deposits are legal in every phase, including before staking opens.
	if err := f.engine.DepositRewards(opAddr, big.NewInt(600)); err != nil {
		t.Fatalf("deposit in Initialized: %v", err)
	}
	f.open(t)
	if err := f.engine.DepositRewards(opAddr, big.NewInt(400)); err != nil {
		t.Fatalf("deposit in Stakeable: %v", err)
	}

	pool := f.engine.RewardPool()
	if pool.TotalDeposited.Int64() != 1_000 {
		t.Fatalf("total deposited = %s, want 1000", pool.TotalDeposited)
	}
	if got := f.reward.BalanceOf(custodyAddr).Int64(); got != 1_000 {
		t.Fatalf("custody reward balance = %d, want 1000", got)
	}
}

func TestEligibleRewardAmountGates(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000), LockupDuration: 100})
	f.fund(t, alice, 10_000)
	f.open(t)
	f.stake(t, alice, 10_000)

	if _, err := f.engine.EligibleRewardAmount(alice); !errors.Is(err, ErrOnlyWhenReadyForUnstake) {
		t.Fatalf("err = %v, want ErrOnlyWhenReadyForUnstake", err)
	}

	f.close(t)
	f.ready(t)
	if _, err := f.engine.EligibleRewardAmount([20]byte{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("err = %v, want ErrZeroAddress", err)
	}

	if _, err := f.engine.EligibleRewardAmount(alice); err != nil {
		t.Fatalf("first calculation: %v", err)
	}
	if _, err := f.engine.EligibleRewardAmount(alice); !errors.Is(err, ErrRewardsAlreadyCalculated) {
		t.Fatalf("err = %v, want ErrRewardsAlreadyCalculated", err)
	}
}

func TestEligibleRewardAmountForNonStaker(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000), LockupDuration: 100})
	f.fund(t, alice, 10_000)
	f.fundRewards(t, 100)
	f.open(t)
	f.stake(t, alice, 10_000)
	if err := f.engine.DepositRewards(opAddr, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.close(t)
	f.ready(t)

	reward, err := f.engine.EligibleRewardAmount(bob)
	if err != nil {
		t.Fatalf("EligibleRewardAmount: %v", err)
	}
	if reward.Sign() != 0 {
		t.Fatalf("non-staker reward = %s, want 0", reward)
	}
}

func TestProRataRewardsShrinkingDenominator(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000), LockupDuration: 100})
	f.fund(t, alice, 10_000)
	f.fund(t, bob, 20_000)
	f.fundRewards(t, 63)
	f.open(t)
	f.stake(t, alice, 10_000)
	f.stake(t, bob, 20_000)
	if err := f.engine.DepositRewards(opAddr, big.NewInt(63)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.close(t)
	f.ready(t)

	// Alice finalizes against the full pool: 63 * 10000 / 30000 = 21.
	aliceReward, err := f.engine.EligibleRewardAmount(alice)
	if err != nil {
		t.Fatalf("alice EligibleRewardAmount: %v", err)
	}
	if aliceReward.Int64() != 21 {
		t.Fatalf("alice reward = %s, want 21", aliceReward)
	}
	if err := f.engine.Unstake(alice); err != nil {
		t.Fatalf("alice unstake: %v", err)
	}

	// Bob finalizes after Alice withdrew: (63-21) * 20000 / 20000 = 42.
	bobReward, err := f.engine.EligibleRewardAmount(bob)
	if err != nil {
		t.Fatalf("bob EligibleRewardAmount: %v", err)
	}
	if bobReward.Int64() != 42 {
		t.Fatalf("bob reward = %s, want 42", bobReward)
	}
	if err := f.engine.Unstake(bob); err != nil {
		t.Fatalf("bob unstake: %v", err)
	}

	if got := f.reward.BalanceOf(alice).Int64(); got != 21 {
		t.Fatalf("alice payout = %d, want 21", got)
	}
	if got := f.reward.BalanceOf(bob).Int64(); got != 42 {
		t.Fatalf("bob payout = %d, want 42", got)
	}
	pool := f.engine.RewardPool()
	if pool.TotalAllocated.Cmp(pool.TotalDeposited) > 0 {
		t.Fatalf("allocated %s exceeds deposited %s", pool.TotalAllocated, pool.TotalDeposited)
	}
}

func TestProRataRewardsFinalizedBeforeAnyUnstake(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000), LockupDuration: 100})
	f.fund(t, alice, 10_000)
	f.fund(t, bob, 20_000)
	f.fundRewards(t, 63)
	f.open(t)
	f.stake(t, alice, 10_000)
	f.stake(t, bob, 20_000)
	if err := f.engine.DepositRewards(opAddr, big.NewInt(63)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.close(t)
	f.ready(t)

	// Both finalize against the full denominator: 63 * 10000 / 30000 = 21
	// and 63 * 20000 / 30000 = 42. Finalizing first must never pay less
	// than unstaking first would.
	aliceReward, err := f.engine.EligibleRewardAmount(alice)
	if err != nil {
		t.Fatalf("alice EligibleRewardAmount: %v", err)
	}
	bobReward, err := f.engine.EligibleRewardAmount(bob)
	if err != nil {
		t.Fatalf("bob EligibleRewardAmount: %v", err)
	}
	if aliceReward.Int64() != 21 {
		t.Fatalf("alice reward = %s, want 21", aliceReward)
	}
	if bobReward.Int64() != 42 {
		t.Fatalf("bob reward = %s, want 42", bobReward)
	}

	if err := f.engine.Unstake(alice); err != nil {
		t.Fatalf("alice unstake: %v", err)
	}
	if err := f.engine.Unstake(bob); err != nil {
		t.Fatalf("bob unstake: %v", err)
	}
	if got := f.reward.BalanceOf(alice).Int64(); got != 21 {
		t.Fatalf("alice payout = %d, want 21", got)
	}
	if got := f.reward.BalanceOf(bob).Int64(); got != 42 {
		t.Fatalf("bob payout = %d, want 42", got)
	}
	pool := f.engine.RewardPool()
	if pool.TotalAllocated.Cmp(pool.TotalDeposited) > 0 {
		t.Fatalf("allocated %s exceeds deposited %s", pool.TotalAllocated, pool.TotalDeposited)
	}
}

func TestSingleStakerFullRoundtrip(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000), LockupDuration: 100})
	f.fund(t, alice, 10_000)
	f.fundRewards(t, 71)
	f.open(t)
	f.stake(t, alice, 10_000)
	if err := f.engine.DepositRewards(opAddr, big.NewInt(71)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.close(t)
	f.ready(t)

	// Inline reward computation during unstake: never finalized beforehand.
	if err := f.engine.Unstake(alice); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if got := f.staking.BalanceOf(alice).Int64(); got != 10_000 {
		t.Fatalf("principal returned = %d, want 10000", got)
	}
	if got := f.reward.BalanceOf(alice).Int64(); got != 71 {
		t.Fatalf("reward paid = %d, want 71", got)
	}
	if got := f.staking.BalanceOf(custodyAddr).Sign(); got != 0 {
		t.Fatal("staking custody not drained after sole staker exit")
	}
	if got := f.reward.BalanceOf(custodyAddr).Sign(); got != 0 {
		t.Fatal("reward custody not drained after sole staker exit")
	}
	if got := f.receipt.TotalSupply().Sign(); got != 0 {
		t.Fatal("receipt supply not zero after sole staker exit")
	}
	if got := f.engine.TotalStaked().Sign(); got != 0 {
		t.Fatal("total staked not zero after sole staker exit")
	}
	if got := f.engine.RewardAmountFor(alice).Int64(); got != 71 {
		t.Fatalf("recorded reward = %d, want 71", got)
	}
}

func TestUnstakePhaseGate(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000)})
	f.fund(t, alice, 10_000)
	f.open(t)
	f.stake(t, alice, 10_000)
	if err := f.engine.Unstake(alice); !errors.Is(err, ErrOnlyWhenReadyForUnstake) {
		t.Fatalf("err = %v, want ErrOnlyWhenReadyForUnstake", err)
	}
}

func TestUnstakeTwice(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000), LockupDuration: 100})
	f.fund(t, alice, 10_000)
	f.open(t)
	f.stake(t, alice, 10_000)
	f.close(t)
	f.ready(t)

	if err := f.engine.Unstake(alice); err != nil {
		t.Fatalf("first unstake: %v", err)
	}
	err := f.engine.Unstake(alice)
	var claimedErr *UserAlreadyClaimedRewardsError
	if !errors.As(err, &claimedErr) {
		t.Fatalf("err = %v, want UserAlreadyClaimedRewardsError", err)
	}
	if claimedErr.Account != alice {
		t.Fatalf("reported account = %x, want alice", claimedErr.Account)
	}
}

func TestUnstakeNeverStaked(t *testing.T) {
	f := newFixture(t, Config{LockupDuration: 100})
	f.open(t)
	f.close(t)
	f.ready(t)

	// A zero-principal, zero-reward unstake commits and marks the record
	// claimed, so a second attempt is rejected.
	if err := f.engine.Unstake(carol); err != nil {
		t.Fatalf("zero unstake: %v", err)
	}
	var claimedErr *UserAlreadyClaimedRewardsError
	if err := f.engine.Unstake(carol); !errors.As(err, &claimedErr) {
		t.Fatalf("err = %v, want UserAlreadyClaimedRewardsError", err)
	}
}

func TestUnstakeAfterEligibleRewardKeepsFinalizedAmount(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000), LockupDuration: 100})
	f.fund(t, alice, 10_000)
	f.fund(t, bob, 10_000)
	f.fundRewards(t, 100)
	f.open(t)
	f.stake(t, alice, 10_000)
	f.stake(t, bob, 10_000)
	if err := f.engine.DepositRewards(opAddr, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.close(t)
	f.ready(t)

	reward, err := f.engine.EligibleRewardAmount(alice)
	if err != nil {
		t.Fatalf("EligibleRewardAmount: %v", err)
	}
	if reward.Int64() != 50 {
		t.Fatalf("finalized reward = %s, want 50", reward)
	}

	// A later deposit must not change the already finalized amount.
	f.fundRewards(t, 100)
	if err := f.engine.DepositRewards(opAddr, big.NewInt(100)); err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	if err := f.engine.Unstake(alice); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if got := f.reward.BalanceOf(alice).Int64(); got != 50 {
		t.Fatalf("payout = %d, want finalized 50", got)
	}
}

func TestRewardRoundingDustStaysInPool(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000), LockupDuration: 100})
	f.fund(t, alice, 10_000)
	f.fund(t, bob, 20_000)
	f.fundRewards(t, 100)
	f.open(t)
	f.stake(t, alice, 10_000)
	f.stake(t, bob, 20_000)
	if err := f.engine.DepositRewards(opAddr, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.close(t)
	f.ready(t)

	// 100 * 10000 / 30000 = 33, then (100-33) * 20000 / 20000 = 67.
	aliceReward, err := f.engine.EligibleRewardAmount(alice)
	if err != nil {
		t.Fatalf("alice: %v", err)
	}
	if err := f.engine.Unstake(alice); err != nil {
		t.Fatalf("alice unstake: %v", err)
	}
	bobReward, err := f.engine.EligibleRewardAmount(bob)
	if err != nil {
		t.Fatalf("bob: %v", err)
	}
	if aliceReward.Int64() != 33 || bobReward.Int64() != 67 {
		t.Fatalf("rewards = %s/%s, want 33/67", aliceReward, bobReward)
	}
}

func TestSnapshotRoundtrip(t *testing.T) {
	f := newFixture(t, Config{MinStake: big.NewInt(10_000), MaxStake: big.NewInt(250_000), StakeablePeriod: 100, LockupDuration: 500})
	f.fund(t, alice, 10_000)
	f.fundRewards(t, 63)
	f.open(t)
	f.stake(t, alice, 10_000)
	if err := f.engine.DepositRewards(opAddr, big.NewInt(63)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	snap := f.engine.Snapshot()
	restoredFixture := newFixture(t, Config{})
	if err := restoredFixture.engine.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	restored := restoredFixture.engine

	if restored.Phase() != PhaseStakeable {
		t.Fatalf("restored phase = %v, want Stakeable", restored.Phase())
	}
	if restored.Window() != f.engine.Window() {
		t.Fatalf("restored window = %+v, want %+v", restored.Window(), f.engine.Window())
	}
	if restored.TotalStaked().Int64() != 10_000 {
		t.Fatalf("restored total = %s, want 10000", restored.TotalStaked())
	}
	if restored.StakedAmountFor(alice).Int64() != 10_000 {
		t.Fatalf("restored principal = %s, want 10000", restored.StakedAmountFor(alice))
	}
	pool := restored.RewardPool()
	if pool.TotalDeposited.Int64() != 63 {
		t.Fatalf("restored deposited = %s, want 63", pool.TotalDeposited)
	}
	limits := restored.Limits()
	if limits.MinStakePerCall.Int64() != 10_000 || limits.MaxStakePerAccount.Int64() != 250_000 {
		t.Fatalf("restored limits = %+v", limits)
	}
}
