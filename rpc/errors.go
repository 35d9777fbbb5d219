package rpc

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"pillarstake/native/dao"
	"pillarstake/native/membership"
	"pillarstake/native/staking"
	"pillarstake/native/token"
)

// errorBody is the JSON error envelope. Data carries the structured context
// embedded in limit errors so callers can self-correct without a second
// round trip.
type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data,omitempty"`
}

func classify(err error) (int, errorBody) {
	body := errorBody{Message: err.Error()}

	var minErr *staking.InvalidMinimumStakeError
	if errors.As(err, &minErr) {
		body.Code = "invalid_minimum_stake"
		body.Data = map[string]string{"minimum": minErr.Minimum.String()}
		return http.StatusUnprocessableEntity, body
	}
	var maxErr *staking.InvalidMaximumStakeError
	if errors.As(err, &maxErr) {
		body.Code = "invalid_maximum_stake"
		body.Data = map[string]string{"maximum": maxErr.Maximum.String()}
		return http.StatusUnprocessableEntity, body
	}
	var capErr *staking.MaximumTotalStakeReachedError
	if errors.As(err, &capErr) {
		body.Code = "maximum_total_stake_reached"
		body.Data = map[string]string{
			"maximum":   capErr.Maximum.String(),
			"total":     capErr.Total.String(),
			"shortfall": capErr.Shortfall.String(),
			"requested": capErr.Requested.String(),
		}
		return http.StatusUnprocessableEntity, body
	}
	var claimedErr *staking.UserAlreadyClaimedRewardsError
	if errors.As(err, &claimedErr) {
		body.Code = "user_already_claimed_rewards"
		body.Data = map[string]string{"account": common.Address(claimedErr.Account).Hex()}
		return http.StatusConflict, body
	}

	switch {
	case errors.Is(err, staking.ErrUnauthorized),
		errors.Is(err, dao.ErrUnauthorized),
		errors.Is(err, membership.ErrNotOwner),
		errors.Is(err, membership.ErrNotController),
		errors.Is(err, token.ErrNotController):
		body.Code = "unauthorized"
		return http.StatusForbidden, body
	case errors.Is(err, staking.ErrOnlyWhenStakeable):
		body.Code = "only_when_stakeable"
		return http.StatusConflict, body
	case errors.Is(err, staking.ErrOnlyWhenReadyForUnstake):
		body.Code = "only_when_ready_for_unstake"
		return http.StatusConflict, body
	case errors.Is(err, staking.ErrStakingPeriodPassed):
		body.Code = "staking_period_passed"
		return http.StatusConflict, body
	case errors.Is(err, staking.ErrStakedDurationTooShort):
		body.Code = "staked_duration_too_short"
		return http.StatusConflict, body
	case errors.Is(err, staking.ErrStakeWouldBeGreaterThanMax):
		body.Code = "stake_would_be_greater_than_max"
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, staking.ErrRewardsAlreadyCalculated):
		body.Code = "rewards_already_calculated"
		return http.StatusConflict, body
	case errors.Is(err, staking.ErrRewardsCannotBeZero):
		body.Code = "rewards_cannot_be_zero"
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, staking.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance),
		errors.Is(err, dao.ErrInsufficientFunds):
		body.Code = "insufficient_balance"
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, staking.ErrZeroAddress),
		errors.Is(err, token.ErrZeroAddress),
		errors.Is(err, membership.ErrZeroAddress):
		body.Code = "zero_address"
		return http.StatusBadRequest, body
	case errors.Is(err, staking.ErrInvalidPhase):
		body.Code = "invalid_phase"
		return http.StatusBadRequest, body
	case errors.Is(err, dao.ErrInvalidStakeAmount):
		body.Code = "invalid_staked_amount"
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, dao.ErrAlreadyMember), errors.Is(err, membership.ErrAlreadyMember):
		body.Code = "already_member"
		return http.StatusConflict, body
	case errors.Is(err, dao.ErrNoDeposit):
		body.Code = "insufficient_balance_to_withdraw"
		return http.StatusConflict, body
	case errors.Is(err, dao.ErrTooEarly):
		body.Code = "too_early_to_withdraw"
		return http.StatusConflict, body
	case errors.Is(err, dao.ErrInvalidMember):
		body.Code = "invalid_member"
		return http.StatusBadRequest, body
	case errors.Is(err, dao.ErrInvalidTimestamp):
		body.Code = "invalid_timestamp"
		return http.StatusBadRequest, body
	case errors.Is(err, dao.ErrProtectedAsset):
		body.Code = "protected_asset"
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, membership.ErrUnknownToken):
		body.Code = "unknown_token"
		return http.StatusNotFound, body
	case errors.Is(err, membership.ErrNonTransferable), errors.Is(err, token.ErrTransferRestricted):
		body.Code = "non_transferable"
		return http.StatusForbidden, body
	case errors.Is(err, token.ErrInvalidAmount):
		body.Code = "invalid_amount"
		return http.StatusBadRequest, body
	}

	body.Code = "internal_error"
	return http.StatusInternalServerError, body
}
