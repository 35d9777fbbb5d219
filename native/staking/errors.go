package staking

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnauthorized               = errors.New("staking: unauthorized")
	ErrOnlyWhenStakeable          = errors.New("staking: only when stakeable")
	ErrOnlyWhenReadyForUnstake    = errors.New("staking: only when ready for unstake")
	ErrStakingPeriodPassed        = errors.New("staking: staking period passed")
	ErrStakedDurationTooShort     = errors.New("staking: staked duration too short")
	ErrInsufficientBalance        = errors.New("staking: insufficient balance")
	ErrStakeWouldBeGreaterThanMax = errors.New("staking: cumulative stake would exceed account maximum")
	ErrRewardsAlreadyCalculated   = errors.New("staking: rewards already calculated")
	ErrRewardsCannotBeZero        = errors.New("staking: reward deposit cannot be zero")
	ErrZeroAddress                = errors.New("staking: zero address")
	ErrInvalidPhase               = errors.New("staking: invalid phase")
)

// InvalidMinimumStakeError reports a stake below the configured per-call
// minimum, carrying the minimum so callers can self-correct.
type InvalidMinimumStakeError struct {
	Minimum *big.Int
}

func (e *InvalidMinimumStakeError) Error() string {
	return fmt.Sprintf("staking: stake below minimum %s", e.Minimum)
}

// InvalidMaximumStakeError reports a single stake above the per-account
// maximum.
type InvalidMaximumStakeError struct {
	Maximum *big.Int
}

func (e *InvalidMaximumStakeError) Error() string {
	return fmt.Sprintf("staking: stake above maximum %s", e.Maximum)
}

// MaximumTotalStakeReachedError reports that a stake would push aggregate
// principal over the global cap. Shortfall is the largest amount the caller
// could still stake legally.
type MaximumTotalStakeReachedError struct {
	Maximum   *big.Int
	Total     *big.Int
	Shortfall *big.Int
	Requested *big.Int
}

func (e *MaximumTotalStakeReachedError) Error() string {
	return fmt.Sprintf("staking: aggregate cap %s reached (total %s, room %s, requested %s)",
		e.Maximum, e.Total, e.Shortfall, e.Requested)
}

// UserAlreadyClaimedRewardsError reports a second withdrawal attempt for an
// account whose reward was already paid out.
type UserAlreadyClaimedRewardsError struct {
	Account [20]byte
}

func (e *UserAlreadyClaimedRewardsError) Error() string {
	return fmt.Sprintf("staking: %s already claimed rewards", common.Address(e.Account).Hex())
}
