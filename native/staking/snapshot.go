package staking

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RecordSnapshot is the persistable form of a stake record.
type RecordSnapshot struct {
	Principal        string `json:"principal"`
	Reward           string `json:"reward"`
	RewardCalculated bool   `json:"rewardCalculated"`
	Claimed          bool   `json:"claimed"`
}

// Snapshot is the persistable form of the engine's ledger state. Ledger
// collaborators snapshot themselves separately.
type Snapshot struct {
	Phase          uint8                     `json:"phase"`
	Window         Window                    `json:"window"`
	MinStake       string                    `json:"minStake"`
	MaxStake       string                    `json:"maxStake"`
	MaxTotalStake  string                    `json:"maxTotalStake"`
	Records        map[string]RecordSnapshot `json:"records"`
	Stakers        []string                  `json:"stakers"`
	TotalStaked    string                    `json:"totalStaked"`
	TotalDeposited string                    `json:"totalDeposited"`
	TotalAllocated string                    `json:"totalAllocated"`
}

// Snapshot captures the engine state for persistence.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := Snapshot{
		Phase:          uint8(e.phase),
		Window:         e.window,
		MinStake:       e.limits.MinStakePerCall.String(),
		MaxStake:       e.limits.MaxStakePerAccount.String(),
		MaxTotalStake:  e.limits.MaxAggregateStake.String(),
		Records:        make(map[string]RecordSnapshot, len(e.records)),
		Stakers:        make([]string, len(e.stakers)),
		TotalStaked:    e.totalStaked.String(),
		TotalDeposited: e.pool.TotalDeposited.String(),
		TotalAllocated: e.pool.TotalAllocated.String(),
	}
	for addr, record := range e.records {
		snap.Records[common.Address(addr).Hex()] = RecordSnapshot{
			Principal:        copyBigInt(record.Principal).String(),
			Reward:           copyBigInt(record.Reward).String(),
			RewardCalculated: record.RewardCalculated,
			Claimed:          record.Claimed,
		}
	}
	for i, addr := range e.stakers {
		snap.Stakers[i] = common.Address(addr).Hex()
	}
	return snap
}

// Restore replaces the engine's ledger state with the snapshot contents.
// Collaborator ledgers must be restored separately and consistently.
func (e *Engine) Restore(snap Snapshot) error {
	phase := Phase(snap.Phase)
	if !phase.Valid() {
		return ErrInvalidPhase
	}
	records := make(map[[20]byte]StakeRecord, len(snap.Records))
	for addr, rec := range snap.Records {
		principal, err := parseSnapshotAmount(rec.Principal)
		if err != nil {
			return fmt.Errorf("staking: restore principal for %s: %w", addr, err)
		}
		reward, err := parseSnapshotAmount(rec.Reward)
		if err != nil {
			return fmt.Errorf("staking: restore reward for %s: %w", addr, err)
		}
		records[common.HexToAddress(addr)] = StakeRecord{
			Principal:        principal,
			Reward:           reward,
			RewardCalculated: rec.RewardCalculated,
			Claimed:          rec.Claimed,
		}
	}
	stakers := make([][20]byte, len(snap.Stakers))
	index := make(map[[20]byte]int, len(snap.Stakers))
	for i, addr := range snap.Stakers {
		parsed := common.HexToAddress(addr)
		stakers[i] = parsed
		index[parsed] = i
	}
	minStake, err := parseSnapshotAmount(snap.MinStake)
	if err != nil {
		return fmt.Errorf("staking: restore min stake: %w", err)
	}
	maxStake, err := parseSnapshotAmount(snap.MaxStake)
	if err != nil {
		return fmt.Errorf("staking: restore max stake: %w", err)
	}
	maxTotal, err := parseSnapshotAmount(snap.MaxTotalStake)
	if err != nil {
		return fmt.Errorf("staking: restore aggregate cap: %w", err)
	}
	totalStaked, err := parseSnapshotAmount(snap.TotalStaked)
	if err != nil {
		return fmt.Errorf("staking: restore total staked: %w", err)
	}
	deposited, err := parseSnapshotAmount(snap.TotalDeposited)
	if err != nil {
		return fmt.Errorf("staking: restore deposited rewards: %w", err)
	}
	allocated, err := parseSnapshotAmount(snap.TotalAllocated)
	if err != nil {
		return fmt.Errorf("staking: restore allocated rewards: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.phase = phase
	e.window = snap.Window
	e.limits = Limits{MinStakePerCall: minStake, MaxStakePerAccount: maxStake, MaxAggregateStake: maxTotal}
	e.records = records
	e.stakers = stakers
	e.stakerIndex = index
	e.totalStaked = totalStaked
	e.pool = RewardPool{TotalDeposited: deposited, TotalAllocated: allocated}
	return nil
}

func parseSnapshotAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(raw, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return parsed, nil
}
