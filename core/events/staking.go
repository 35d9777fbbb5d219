package events

import (
	"math/big"
	"strconv"

	"pillarstake/core/types"
)

const (
	// TypeStakeRecorded captures a successful principal deposit into custody.
	TypeStakeRecorded = "staking.stakeRecorded"
	// TypeUnstaked captures the return of principal to an account.
	TypeUnstaked = "staking.unstaked"
	// TypeRewardPaid is emitted when a finalized reward amount leaves custody.
	TypeRewardPaid = "staking.rewardPaid"
	// TypeRewardsDeposited captures operator top-ups of the reward pool.
	TypeRewardsDeposited = "staking.rewardsDeposited"
	// TypeMinStakeUpdated is emitted when the per-call minimum changes.
	TypeMinStakeUpdated = "staking.minStakeUpdated"
	// TypeMaxStakeUpdated is emitted when the per-account maximum changes.
	TypeMaxStakeUpdated = "staking.maxStakeUpdated"
	// TypePhaseChanged captures every lifecycle phase transition.
	TypePhaseChanged = "staking.phaseChanged"
)

// StakeRecorded captures the account and amount of a committed stake call.
type StakeRecorded struct {
	Account [20]byte
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (StakeRecorded) EventType() string { return TypeStakeRecorded }

// Event converts the structured payload into a broadcastable event.
func (e StakeRecorded) Event() *types.Event {
	return &types.Event{Type: TypeStakeRecorded, Attributes: map[string]string{
		"account": addressHex(e.Account),
		"amount":  formatAmount(e.Amount),
	}}
}

// Unstaked captures the principal returned to an account on withdrawal.
type Unstaked struct {
	Account   [20]byte
	Principal *big.Int
}

// EventType satisfies the Event interface.
func (Unstaked) EventType() string { return TypeUnstaked }

// Event converts the structured payload into a broadcastable event.
func (e Unstaked) Event() *types.Event {
	return &types.Event{Type: TypeUnstaked, Attributes: map[string]string{
		"account":   addressHex(e.Account),
		"principal": formatAmount(e.Principal),
	}}
}

// RewardPaid captures the reward-asset payout finalized for an account.
type RewardPaid struct {
	Account [20]byte
	Reward  *big.Int
}

// EventType satisfies the Event interface.
func (RewardPaid) EventType() string { return TypeRewardPaid }

// Event converts the structured payload into a broadcastable event.
func (e RewardPaid) Event() *types.Event {
	return &types.Event{Type: TypeRewardPaid, Attributes: map[string]string{
		"account": addressHex(e.Account),
		"reward":  formatAmount(e.Reward),
	}}
}

// RewardsDeposited captures an operator deposit into the reward pool.
type RewardsDeposited struct {
	Amount         *big.Int
	TotalDeposited *big.Int
}

// EventType satisfies the Event interface.
func (RewardsDeposited) EventType() string { return TypeRewardsDeposited }

// Event converts the structured payload into a broadcastable event.
func (e RewardsDeposited) Event() *types.Event {
	attrs := map[string]string{"amount": formatAmount(e.Amount)}
	if e.TotalDeposited != nil {
		attrs["totalDeposited"] = formatAmount(e.TotalDeposited)
	}
	return &types.Event{Type: TypeRewardsDeposited, Attributes: attrs}
}

// MinStakeUpdated captures a change to the per-call minimum stake.
type MinStakeUpdated struct {
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (MinStakeUpdated) EventType() string { return TypeMinStakeUpdated }

// Event converts the structured payload into a broadcastable event.
func (e MinStakeUpdated) Event() *types.Event {
	return &types.Event{Type: TypeMinStakeUpdated, Attributes: map[string]string{
		"amount": formatAmount(e.Amount),
	}}
}

// MaxStakeUpdated captures a change to the per-account maximum stake.
type MaxStakeUpdated struct {
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (MaxStakeUpdated) EventType() string { return TypeMaxStakeUpdated }

// Event converts the structured payload into a broadcastable event.
func (e MaxStakeUpdated) Event() *types.Event {
	return &types.Event{Type: TypeMaxStakeUpdated, Attributes: map[string]string{
		"amount": formatAmount(e.Amount),
	}}
}

// PhaseChanged captures the new lifecycle phase after a transition commits.
type PhaseChanged struct {
	Phase uint8
}

// EventType satisfies the Event interface.
func (PhaseChanged) EventType() string { return TypePhaseChanged }

// Event converts the structured payload into a broadcastable event.
func (e PhaseChanged) Event() *types.Event {
	return &types.Event{Type: TypePhaseChanged, Attributes: map[string]string{
		"phase": strconv.FormatUint(uint64(e.Phase), 10),
	}}
}
