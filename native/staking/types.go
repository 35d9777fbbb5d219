package staking

import "math/big"

// Phase is the single global lifecycle state gating which operations are legal.
type Phase uint8

const (
	PhaseInitialized Phase = iota
	PhaseStakeable
	PhaseStaked
	PhaseReadyForUnstake
)

// String returns the canonical lowercase name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseInitialized:
		return "initialized"
	case PhaseStakeable:
		return "stakeable"
	case PhaseStaked:
		return "staked"
	case PhaseReadyForUnstake:
		return "readyForUnstake"
	default:
		return "unknown"
	}
}

// Valid reports whether the phase is one of the defined lifecycle states.
func (p Phase) Valid() bool { return p <= PhaseReadyForUnstake }

const (
	// DefaultMaxTotalStake caps aggregate principal when no explicit cap is
	// configured (7.2 million units).
	DefaultMaxTotalStake = 7_200_000

	// DefaultStakeablePeriod bounds the staking window (4 weeks).
	DefaultStakeablePeriod int64 = 4 * 7 * 24 * 60 * 60

	// DefaultLockupDuration is the minimum elapsed time after window-open
	// before rewards may be finalized (52 weeks).
	DefaultLockupDuration int64 = 52 * 7 * 24 * 60 * 60
)

// Window bounds the interval during which new stakes are accepted. Armed once
// when the phase first enters Stakeable and immutable afterwards.
type Window struct {
	OpensAt  int64 `json:"opensAt"`
	ClosesAt int64 `json:"closesAt"`
}

// Armed reports whether the window has been set.
func (w Window) Armed() bool { return w.OpensAt != 0 || w.ClosesAt != 0 }

// Limits carries the mutable stake bounds enforced while staking is open.
type Limits struct {
	MinStakePerCall    *big.Int `json:"minStakePerCall"`
	MaxStakePerAccount *big.Int `json:"maxStakePerAccount"`
	MaxAggregateStake  *big.Int `json:"maxAggregateStake"`
}

// Clone returns a deep copy of the limits.
func (l Limits) Clone() Limits {
	return Limits{
		MinStakePerCall:    copyBigInt(l.MinStakePerCall),
		MaxStakePerAccount: copyBigInt(l.MaxStakePerAccount),
		MaxAggregateStake:  copyBigInt(l.MaxAggregateStake),
	}
}

// StakeRecord tracks a single account's position. The zero value is a valid
// never-staked record.
type StakeRecord struct {
	Principal        *big.Int `json:"principal"`
	Reward           *big.Int `json:"reward"`
	RewardCalculated bool     `json:"rewardCalculated"`
	Claimed          bool     `json:"claimed"`
}

func (r StakeRecord) clone() StakeRecord {
	return StakeRecord{
		Principal:        copyBigInt(r.Principal),
		Reward:           copyBigInt(r.Reward),
		RewardCalculated: r.RewardCalculated,
		Claimed:          r.Claimed,
	}
}

// RewardPool tracks cumulative reward deposits against cumulative
// allocations. TotalAllocated never exceeds TotalDeposited.
type RewardPool struct {
	TotalDeposited *big.Int `json:"totalDeposited"`
	TotalAllocated *big.Int `json:"totalAllocated"`
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
