package redemption

import (
	"crypto/rand"
	"encoding/hex"
)

const (
	redemptionCodeBytes = 12
	qrTokenBytes        = 16
)

func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
