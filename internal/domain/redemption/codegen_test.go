package redemption

import "testing"

func TestGenerateSecureTokenLengthAndUniqueness(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok, err := generateSecureToken(redemptionCodeBytes)
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if len(tok) != redemptionCodeBytes*2 {
			t.Fatalf("expected %d hex chars, got %d", redemptionCodeBytes*2, len(tok))
		}
		if seen[tok] {
			t.Fatalf("token collision: %s", tok)
		}
		seen[tok] = true
	}
}
