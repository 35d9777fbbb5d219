package membership

import (
	"errors"
	"strconv"
	"sync"

	"pillarstake/core/events"
)

var (
	ErrNotOwner        = errors.New("membership: caller is not the owner")
	ErrNotController   = errors.New("membership: caller is not the controller")
	ErrZeroAddress     = errors.New("membership: zero address")
	ErrAlreadyMember   = errors.New("membership: account already holds a credential")
	ErrUnknownToken    = errors.New("membership: unknown token id")
	ErrNonTransferable = errors.New("membership: credentials are non-transferable")
)

// Registry issues one non-transferable credential per account. Ids start at 1;
// id 0 means "no membership". All mutating calls are restricted to a single
// controller address (the vault), set by the registry owner.
type Registry struct {
	mu sync.Mutex

	name       string
	symbol     string
	owner      [20]byte
	controller [20]byte
	baseURI    string

	nextID  uint64
	owners  map[uint64][20]byte
	tokens  map[[20]byte]uint64
	emitter events.Emitter
}

// NewRegistry creates an empty registry administered by owner. The controller
// must be set before credentials can be issued.
func NewRegistry(name, symbol string, owner [20]byte) *Registry {
	return &Registry{
		name:    name,
		symbol:  symbol,
		owner:   owner,
		nextID:  1,
		owners:  make(map[uint64][20]byte),
		tokens:  make(map[[20]byte]uint64),
		emitter: events.NoopEmitter{},
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// Name returns the registry's display name.
func (r *Registry) Name() string { return r.name }

// Symbol returns the registry's ticker symbol.
func (r *Registry) Symbol() string { return r.symbol }

// Owner returns the administrative account.
func (r *Registry) Owner() [20]byte { return r.owner }

// Controller returns the sole address allowed to mint and burn.
func (r *Registry) Controller() [20]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controller
}

// SetController designates the vault address. Owner only.
func (r *Registry) SetController(caller, controller [20]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return ErrNotOwner
	}
	if controller == ([20]byte{}) {
		return ErrZeroAddress
	}
	r.controller = controller
	return nil
}

// SetBaseURI configures the metadata URI prefix. Owner only.
func (r *Registry) SetBaseURI(caller [20]byte, uri string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return ErrNotOwner
	}
	r.baseURI = uri
	return nil
}

// TokenURI returns the metadata URI for an issued credential.
func (r *Registry) TokenURI(id uint64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[id]; !ok {
		return "", ErrUnknownToken
	}
	return r.baseURI + strconv.FormatUint(id, 10), nil
}

// Mint issues a credential to the account and returns its id. Controller
// only; an account can hold at most one credential.
func (r *Registry) Mint(caller, to [20]byte) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller == ([20]byte{}) || caller != r.controller {
		return 0, ErrNotController
	}
	if to == ([20]byte{}) {
		return 0, ErrZeroAddress
	}
	if r.tokens[to] != 0 {
		return 0, ErrAlreadyMember
	}
	id := r.nextID
	r.nextID++
	r.owners[id] = to
	r.tokens[to] = id
	r.emitter.Emit(events.MembershipMinted{Account: to, TokenID: id})
	return id, nil
}

// Burn revokes an issued credential. Controller only.
func (r *Registry) Burn(caller [20]byte, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller == ([20]byte{}) || caller != r.controller {
		return ErrNotController
	}
	holder, ok := r.owners[id]
	if !ok {
		return ErrUnknownToken
	}
	delete(r.owners, id)
	delete(r.tokens, holder)
	r.emitter.Emit(events.MembershipBurned{Account: holder, TokenID: id})
	return nil
}

// TransferFrom always fails: credentials never move between accounts.
func (r *Registry) TransferFrom(caller, from, to [20]byte, id uint64) error {
	return ErrNonTransferable
}

// OwnerOf returns the holder of an issued credential.
func (r *Registry) OwnerOf(id uint64) ([20]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	holder, ok := r.owners[id]
	if !ok {
		return [20]byte{}, ErrUnknownToken
	}
	return holder, nil
}

// TokenOf returns the credential id held by the account, zero when none.
func (r *Registry) TokenOf(account [20]byte) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens[account]
}

// BalanceOf reports 1 when the account holds a credential, else 0.
func (r *Registry) BalanceOf(account [20]byte) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokens[account] != 0 {
		return 1
	}
	return 0
}
