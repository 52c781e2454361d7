package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Dedup returns the distinct values of in, keeping first-seen order.
func Dedup(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, e := range in {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// IsEVMAddress reports whether addr is a 20-byte hex address, with or without 0x prefix.
func IsEVMAddress(addr string) bool {
	return common.IsHexAddress(strings.TrimSpace(addr))
}

// NormalizeEVMAddress returns the lowercase 0x-prefixed form of a hex address so that checksummed
// and plain spellings of the same account compare equal. It returns addr unchanged when it is not
// a hex address.
func NormalizeEVMAddress(addr string) string {
	trimmed := strings.TrimSpace(addr)
	if !common.IsHexAddress(trimmed) {
		return addr
	}
	return strings.ToLower(common.HexToAddress(trimmed).Hex())
}
