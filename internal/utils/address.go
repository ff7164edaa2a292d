// internal/utils/address.go
package utils

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// IsValidAddress accepts 0x-prefixed 20 byte hex addresses. Mixed-case
// addresses must carry a correct EIP-55 checksum.
func IsValidAddress(address string) bool {
	if len(address) != 42 || !strings.HasPrefix(address, "0x") {
		return false
	}

	body := address[2:]
	if _, err := hex.DecodeString(body); err != nil {
		return false
	}

	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}

	return ChecksumAddress(address) == address
}

// ChecksumAddress returns the EIP-55 form of a hex address.
func ChecksumAddress(address string) string {
	lower := strings.ToLower(strings.TrimPrefix(address, "0x"))

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(lower))
	hash := hex.EncodeToString(hasher.Sum(nil))

	out := make([]byte, len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' && hash[i] >= '8' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}

	return "0x" + string(out)
}
