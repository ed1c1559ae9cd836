package usagecode

import "crypto/rand"

// generateNumericCode produces a 4-or-5-digit candidate. The digit length
// is chosen at random per attempt to widen the effective code space.
func generateNumericCode() string {
	const digits = "0123456789"

	var lb [1]byte
	_, _ = rand.Read(lb[:])
	length := 4 + int(lb[0])%2

	b := make([]byte, length)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = digits[int(b[i])%len(digits)]
	}
	return string(b)
}

// ValidFormat reports whether a submitted code has the accepted shape:
// all digits, length 4 or 5.
func ValidFormat(code string) bool {
	if len(code) < 4 || len(code) > 5 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
