package rpc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"pillarstake/native/dao"
	"pillarstake/native/membership"
	"pillarstake/native/staking"
	"pillarstake/native/token"
	"pillarstake/observability"
)

// ServerConfig wires the ledger components into the HTTP surface.
type ServerConfig struct {
	Logger       *slog.Logger
	Engine       *staking.Engine
	Vault        *dao.Vault
	Members      *membership.Registry
	StakingAsset *token.Ledger
	RewardAsset  *token.Ledger
	Receipt      *token.Ledger
	Metrics      *observability.StakingMetrics
	// Persist is invoked after every committed mutation; pass nil for
	// ephemeral deployments.
	Persist func() error
}

// Server exposes every ledger operation as a JSON endpoint. All mutating
// calls funnel into the engines, which serialize them behind a single lock;
// the HTTP layer never touches ledger state directly.
type Server struct {
	log          *slog.Logger
	engine       *staking.Engine
	vault        *dao.Vault
	members      *membership.Registry
	stakingAsset *token.Ledger
	rewardAsset  *token.Ledger
	receipt      *token.Ledger
	metrics      *observability.StakingMetrics
	persist      func() error
}

// NewServer constructs the HTTP surface. Logger defaults to slog.Default.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		log:          logger,
		engine:       cfg.Engine,
		vault:        cfg.Vault,
		members:      cfg.Members,
		stakingAsset: cfg.StakingAsset,
		rewardAsset:  cfg.RewardAsset,
		receipt:      cfg.Receipt,
		metrics:      cfg.Metrics,
		persist:      cfg.Persist,
	}
}

// Handler returns the chi router for the service.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1/staking", func(sr chi.Router) {
		sr.Get("/", s.handleStakingState)
		sr.Get("/accounts", s.handleStakedAccounts)
		sr.Get("/accounts/{address}", s.handleStakingAccount)
		sr.Post("/phase", s.handleSetPhase)
		sr.Post("/stake", s.handleStake)
		sr.Post("/unstake", s.handleUnstake)
		sr.Post("/rewards/deposit", s.handleDepositRewards)
		sr.Post("/rewards/eligible", s.handleEligibleReward)
		sr.Post("/limits/min", s.handleUpdateMinStake)
		sr.Post("/limits/max", s.handleUpdateMaxStake)
	})

	r.Route("/v1/dao", func(dr chi.Router) {
		dr.Get("/members/{address}", s.handleVaultMember)
		dr.Post("/deposit", s.handleVaultDeposit)
		dr.Post("/withdraw", s.handleVaultWithdraw)
		dr.Post("/timestamp", s.handleSetDepositTimestamp)
	})

	r.Get("/v1/membership/{address}", s.handleMembership)

	r.Route("/v1/tokens/{kind}", func(tr chi.Router) {
		tr.Get("/balance/{address}", s.handleTokenBalance)
		tr.Post("/approve", s.handleTokenApprove)
	})

	return r
}

type addressRequest struct {
	Caller string `json:"caller"`
}

type amountRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type phaseRequest struct {
	Caller string `json:"caller"`
	Phase  string `json:"phase"`
}

type accountRequest struct {
	Account string `json:"account"`
}

type timestampRequest struct {
	Caller    string `json:"caller"`
	Member    string `json:"member"`
	Timestamp int64  `json:"timestamp"`
}

type approveRequest struct {
	Owner string `json:"owner"`
	// Spender defaults to the staking custody account; DAO deposits pass the
	// vault custody instead.
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount"`
}

func (s *Server) handleStakingState(w http.ResponseWriter, _ *http.Request) {
	limits := s.engine.Limits()
	pool := s.engine.RewardPool()
	window := s.engine.Window()
	writeJSON(w, http.StatusOK, map[string]any{
		"phase": s.engine.Phase().String(),
		"window": map[string]int64{
			"opensAt":  window.OpensAt,
			"closesAt": window.ClosesAt,
		},
		"limits": map[string]string{
			"minStakePerCall":    limits.MinStakePerCall.String(),
			"maxStakePerAccount": limits.MaxStakePerAccount.String(),
			"maxAggregateStake":  limits.MaxAggregateStake.String(),
		},
		"totalStaked":    s.engine.TotalStaked().String(),
		"totalDeposited": pool.TotalDeposited.String(),
		"totalAllocated": pool.TotalAllocated.String(),
		"receiptSupply":  s.receipt.TotalSupply().String(),
	})
}

func (s *Server) handleStakedAccounts(w http.ResponseWriter, _ *http.Request) {
	accounts := s.engine.StakedAccounts()
	out := make([]string, len(accounts))
	for i, addr := range accounts {
		out[i] = common.Address(addr).Hex()
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (s *Server) handleStakingAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	record := s.engine.Record(addr)
	writeJSON(w, http.StatusOK, map[string]any{
		"principal":        bigString(record.Principal),
		"reward":           bigString(record.Reward),
		"rewardCalculated": record.RewardCalculated,
		"claimed":          record.Claimed,
		"receiptBalance":   s.receipt.BalanceOf(addr).String(),
	})
}

func (s *Server) handleSetPhase(w http.ResponseWriter, r *http.Request) {
	var req phaseRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	phase, err := parsePhase(req.Phase)
	if err != nil {
		s.writeError(w, "set_phase", err)
		return
	}
	s.mutate(w, "set_phase", func() (any, error) {
		if err := s.engine.SetPhase(caller, phase); err != nil {
			return nil, err
		}
		return map[string]string{"phase": s.engine.Phase().String()}, nil
	})
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	caller, amount, ok := s.decodeAmount(w, r)
	if !ok {
		return
	}
	s.mutate(w, "stake", func() (any, error) {
		if err := s.engine.Stake(caller, amount); err != nil {
			return nil, err
		}
		return map[string]string{
			"principal":   s.engine.StakedAmountFor(caller).String(),
			"totalStaked": s.engine.TotalStaked().String(),
		}, nil
	})
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	s.mutate(w, "unstake", func() (any, error) {
		if err := s.engine.Unstake(caller); err != nil {
			return nil, err
		}
		return map[string]string{
			"reward":      s.engine.RewardAmountFor(caller).String(),
			"totalStaked": s.engine.TotalStaked().String(),
		}, nil
	})
}

func (s *Server) handleDepositRewards(w http.ResponseWriter, r *http.Request) {
	caller, amount, ok := s.decodeAmount(w, r)
	if !ok {
		return
	}
	s.mutate(w, "deposit_rewards", func() (any, error) {
		if err := s.engine.DepositRewards(caller, amount); err != nil {
			return nil, err
		}
		pool := s.engine.RewardPool()
		return map[string]string{"totalDeposited": pool.TotalDeposited.String()}, nil
	})
}

func (s *Server) handleEligibleReward(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !s.decode(w, r, &req) {
		return
	}
	account, ok := s.parseAddress(w, req.Account, "account")
	if !ok {
		return
	}
	s.mutate(w, "eligible_reward", func() (any, error) {
		reward, err := s.engine.EligibleRewardAmount(account)
		if err != nil {
			return nil, err
		}
		return map[string]string{"reward": reward.String()}, nil
	})
}

func (s *Server) handleUpdateMinStake(w http.ResponseWriter, r *http.Request) {
	caller, amount, ok := s.decodeAmount(w, r)
	if !ok {
		return
	}
	s.mutate(w, "update_min_stake", func() (any, error) {
		if err := s.engine.UpdateMinStakeLimit(caller, amount); err != nil {
			return nil, err
		}
		return map[string]string{"minStakePerCall": s.engine.Limits().MinStakePerCall.String()}, nil
	})
}

func (s *Server) handleUpdateMaxStake(w http.ResponseWriter, r *http.Request) {
	caller, amount, ok := s.decodeAmount(w, r)
	if !ok {
		return
	}
	s.mutate(w, "update_max_stake", func() (any, error) {
		if err := s.engine.UpdateMaxStakeLimit(caller, amount); err != nil {
			return nil, err
		}
		return map[string]string{"maxStakePerAccount": s.engine.Limits().MaxStakePerAccount.String()}, nil
	})
}

func (s *Server) handleVaultMember(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"membershipId": s.vault.MembershipID(addr),
		"balance":      s.vault.BalanceOf(addr).String(),
		"depositedAt":  s.vault.DepositTimestamp(addr),
		"canUnstake":   s.vault.CanUnstake(addr),
	})
}

func (s *Server) handleVaultDeposit(w http.ResponseWriter, r *http.Request) {
	caller, amount, ok := s.decodeAmount(w, r)
	if !ok {
		return
	}
	s.mutate(w, "dao_deposit", func() (any, error) {
		id, err := s.vault.Deposit(caller, amount)
		if err != nil {
			return nil, err
		}
		return map[string]any{"membershipId": id}, nil
	})
}

func (s *Server) handleVaultWithdraw(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	s.mutate(w, "dao_withdraw", func() (any, error) {
		if err := s.vault.Withdraw(caller); err != nil {
			return nil, err
		}
		return map[string]any{"membershipId": s.vault.MembershipID(caller)}, nil
	})
}

func (s *Server) handleSetDepositTimestamp(w http.ResponseWriter, r *http.Request) {
	var req timestampRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	member, ok := s.parseAddress(w, req.Member, "member")
	if !ok {
		return
	}
	s.mutate(w, "dao_set_timestamp", func() (any, error) {
		if err := s.vault.SetDepositTimestamp(caller, member, req.Timestamp); err != nil {
			return nil, err
		}
		return map[string]any{"depositedAt": s.vault.DepositTimestamp(member)}, nil
	})
}

func (s *Server) handleMembership(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	id := s.members.TokenOf(addr)
	out := map[string]any{"membershipId": id}
	if id != 0 {
		if uri, err := s.members.TokenURI(id); err == nil {
			out["tokenURI"] = uri
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	ledger, ok := s.ledgerFor(w, chi.URLParam(r, "kind"))
	if !ok {
		return
	}
	addr, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"symbol":  ledger.Symbol(),
		"balance": ledger.BalanceOf(addr).String(),
	})
}

// handleTokenApprove grants the staking custody account an allowance so a
// later stake or deposit can pull funds.
func (s *Server) handleTokenApprove(w http.ResponseWriter, r *http.Request) {
	ledger, ok := s.ledgerFor(w, chi.URLParam(r, "kind"))
	if !ok {
		return
	}
	var req approveRequest
	if !s.decode(w, r, &req) {
		return
	}
	owner, ok := s.parseAddress(w, req.Owner, "owner")
	if !ok {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount)
	if !ok {
		return
	}
	spender := s.engine.Custody()
	if req.Spender != "" {
		if spender, ok = s.parseAddress(w, req.Spender, "spender"); !ok {
			return
		}
	}
	s.mutate(w, "token_approve", func() (any, error) {
		if err := ledger.Approve(owner, spender, amount); err != nil {
			return nil, err
		}
		return map[string]string{"allowance": ledger.Allowance(owner, spender).String()}, nil
	})
}

func (s *Server) ledgerFor(w http.ResponseWriter, kind string) (*token.Ledger, bool) {
	switch kind {
	case "staking":
		return s.stakingAsset, true
	case "reward":
		return s.rewardAsset, true
	case "receipt":
		return s.receipt, true
	}
	writeJSON(w, http.StatusNotFound, map[string]errorBody{"error": {
		Code:    "unknown_token",
		Message: fmt.Sprintf("rpc: unknown token kind %q", kind),
	}})
	return nil, false
}

// mutate runs a serialized ledger mutation, records metrics, persists the
// snapshot on success and writes the JSON response.
func (s *Server) mutate(w http.ResponseWriter, op string, fn func() (any, error)) {
	start := time.Now()
	payload, err := fn()
	if err != nil {
		status, body := classify(err)
		s.metrics.ObserveOperation(op, body.Code, time.Since(start))
		s.log.Warn("operation rejected", "operation", op, "code", body.Code, "error", err)
		writeJSON(w, status, map[string]errorBody{"error": body})
		return
	}
	if s.persist != nil {
		if perr := s.persist(); perr != nil {
			// The mutation committed; losing the snapshot write is a
			// durability problem, not a correctness one.
			s.log.Error("snapshot persist failed", "operation", op, "error", perr)
		}
	}
	s.updateGauges()
	s.metrics.ObserveOperation(op, "", time.Since(start))
	s.log.Info("operation committed", "operation", op)
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) updateGauges() {
	if s.metrics == nil || s.engine == nil {
		return
	}
	pool := s.engine.RewardPool()
	unallocated := new(big.Int).Sub(pool.TotalDeposited, pool.TotalAllocated)
	s.metrics.SetTotals(s.engine.TotalStaked(), unallocated, len(s.engine.StakedAccounts()))
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status, body := classify(err)
	s.metrics.ObserveOperation(op, body.Code, 0)
	writeJSON(w, status, map[string]errorBody{"error": body})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {
			Code:    "invalid_request",
			Message: fmt.Sprintf("rpc: decode request: %v", err),
		}})
		return false
	}
	return true
}

func (s *Server) decodeAmount(w http.ResponseWriter, r *http.Request) ([20]byte, *big.Int, bool) {
	var req amountRequest
	if !s.decode(w, r, &req) {
		return [20]byte{}, nil, false
	}
	caller, ok := s.parseAddress(w, req.Caller, "caller")
	if !ok {
		return [20]byte{}, nil, false
	}
	amount, ok := s.parseAmount(w, req.Amount)
	if !ok {
		return [20]byte{}, nil, false
	}
	return caller, amount, true
}

func (s *Server) parseAddress(w http.ResponseWriter, raw, field string) ([20]byte, bool) {
	if !common.IsHexAddress(raw) {
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {
			Code:    "invalid_address",
			Message: fmt.Sprintf("rpc: invalid %s address %q", field, raw),
		}})
		return [20]byte{}, false
	}
	return common.HexToAddress(raw), true
}

func (s *Server) parseAmount(w http.ResponseWriter, raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {
			Code:    "invalid_amount",
			Message: fmt.Sprintf("rpc: invalid amount %q", raw),
		}})
		return nil, false
	}
	return amount, true
}

func (s *Server) pathAddress(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	return s.parseAddress(w, chi.URLParam(r, "address"), "path")
}

func parsePhase(raw string) (staking.Phase, error) {
	switch raw {
	case "initialized":
		return staking.PhaseInitialized, nil
	case "stakeable":
		return staking.PhaseStakeable, nil
	case "staked":
		return staking.PhaseStaked, nil
	case "readyForUnstake":
		return staking.PhaseReadyForUnstake, nil
	}
	return 0, staking.ErrInvalidPhase
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
