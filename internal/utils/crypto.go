// internal/utils/crypto.go
package utils

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

func randomFromCharset(charset string, length int) (string, error) {
	b := make([]byte, length)

	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		b[i] = charset[n.Int64()]
	}

	return string(b), nil
}

// GenerateReceiptNumber returns RCP-<base36 millis>-<6 random base36>, upper case.
func GenerateReceiptNumber(now time.Time) (string, error) {
	suffix, err := randomFromCharset("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ", 6)
	if err != nil {
		return "", err
	}

	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return "RCP-" + stamp + "-" + suffix, nil
}

// GenerateAffiliateCode returns an upper-case code of the given length.
func GenerateAffiliateCode(length int) (string, error) {
	return randomFromCharset("ABCDEFGHJKLMNPQRSTUVWXYZ23456789", length)
}
