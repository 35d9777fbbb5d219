package membership

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is the persistable form of the registry.
type Snapshot struct {
	Name       string            `json:"name"`
	Symbol     string            `json:"symbol"`
	Owner      string            `json:"owner"`
	Controller string            `json:"controller"`
	BaseURI    string            `json:"baseURI,omitempty"`
	NextID     uint64            `json:"nextId"`
	Holders    map[string]string `json:"holders"`
}

// Snapshot captures the registry state for persistence.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Snapshot{
		Name:       r.name,
		Symbol:     r.symbol,
		Owner:      common.Address(r.owner).Hex(),
		Controller: common.Address(r.controller).Hex(),
		BaseURI:    r.baseURI,
		NextID:     r.nextID,
		Holders:    make(map[string]string, len(r.owners)),
	}
	for id, holder := range r.owners {
		snap.Holders[strconv.FormatUint(id, 10)] = common.Address(holder).Hex()
	}
	return snap
}

// Restore replaces the registry state with the snapshot contents.
func (r *Registry) Restore(snap Snapshot) error {
	owners := make(map[uint64][20]byte, len(snap.Holders))
	tokens := make(map[[20]byte]uint64, len(snap.Holders))
	for rawID, holder := range snap.Holders {
		id, err := strconv.ParseUint(rawID, 10, 64)
		if err != nil || id == 0 {
			return fmt.Errorf("membership: restore token id %q", rawID)
		}
		addr := common.HexToAddress(holder)
		owners[id] = addr
		tokens[addr] = id
	}
	nextID := snap.NextID
	if nextID == 0 {
		nextID = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.name = snap.Name
	r.symbol = snap.Symbol
	r.owner = common.HexToAddress(snap.Owner)
	r.controller = common.HexToAddress(snap.Controller)
	r.baseURI = snap.BaseURI
	r.nextID = nextID
	r.owners = owners
	r.tokens = tokens
	return nil
}
