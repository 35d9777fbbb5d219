package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressHex(addr [20]byte) string {
	return common.Address(addr).Hex()
}
