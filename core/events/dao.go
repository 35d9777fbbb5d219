package events

import (
	"math/big"
	"strconv"

	"pillarstake/core/types"
)

const (
	// TypeVaultDeposited captures a fixed membership deposit into the vault.
	TypeVaultDeposited = "dao.deposited"
	// TypeVaultWithdrawn captures the release of a membership deposit.
	TypeVaultWithdrawn = "dao.withdrawn"
	// TypeMembershipMinted captures issuance of a membership credential.
	TypeMembershipMinted = "membership.minted"
	// TypeMembershipBurned captures revocation of a membership credential.
	TypeMembershipBurned = "membership.burned"
)

// VaultDeposited captures the member and amount of a committed vault deposit.
type VaultDeposited struct {
	Member       [20]byte
	Amount       *big.Int
	MembershipID uint64
}

// EventType satisfies the Event interface.
func (VaultDeposited) EventType() string { return TypeVaultDeposited }

// Event converts the structured payload into a broadcastable event.
func (e VaultDeposited) Event() *types.Event {
	return &types.Event{Type: TypeVaultDeposited, Attributes: map[string]string{
		"member":       addressHex(e.Member),
		"amount":       formatAmount(e.Amount),
		"membershipId": strconv.FormatUint(e.MembershipID, 10),
	}}
}

// VaultWithdrawn captures the member and amount of a committed vault exit.
type VaultWithdrawn struct {
	Member [20]byte
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (VaultWithdrawn) EventType() string { return TypeVaultWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e VaultWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeVaultWithdrawn, Attributes: map[string]string{
		"member": addressHex(e.Member),
		"amount": formatAmount(e.Amount),
	}}
}

// MembershipMinted captures a credential grant.
type MembershipMinted struct {
	Account [20]byte
	TokenID uint64
}

// EventType satisfies the Event interface.
func (MembershipMinted) EventType() string { return TypeMembershipMinted }

// Event converts the structured payload into a broadcastable event.
func (e MembershipMinted) Event() *types.Event {
	return &types.Event{Type: TypeMembershipMinted, Attributes: map[string]string{
		"account": addressHex(e.Account),
		"tokenId": strconv.FormatUint(e.TokenID, 10),
	}}
}

// MembershipBurned captures a credential revocation.
type MembershipBurned struct {
	Account [20]byte
	TokenID uint64
}

// EventType satisfies the Event interface.
func (MembershipBurned) EventType() string { return TypeMembershipBurned }

// Event converts the structured payload into a broadcastable event.
func (e MembershipBurned) Event() *types.Event {
	return &types.Event{Type: TypeMembershipBurned, Attributes: map[string]string{
		"account": addressHex(e.Account),
		"tokenId": strconv.FormatUint(e.TokenID, 10),
	}}
}
