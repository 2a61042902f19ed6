package webhook

import "testing"

func TestVerifierVerify(t *testing.T) {
	v := NewVerifier("correct-token")

	tests := []struct {
		name      string
		mode      string
		token     string
		challenge string
		want      string
		wantOK    bool
	}{
		{"subscribe with correct token", "subscribe", "correct-token", "xyz123", "xyz123", true},
		{"empty challenge echoed", "subscribe", "correct-token", "", "", true},
		{"wrong token", "subscribe", "wrong", "xyz123", "", false},
		{"token prefix", "subscribe", "correct", "xyz123", "", false},
		{"wrong mode", "unsubscribe", "correct-token", "xyz123", "", false},
		{"mode case sensitive", "Subscribe", "correct-token", "xyz123", "", false},
		{"empty mode", "", "correct-token", "xyz123", "", false},
		{"empty token", "subscribe", "", "xyz123", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := v.Verify(tt.mode, tt.token, tt.challenge)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Verify() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestVerifierEmptyConfiguredToken(t *testing.T) {
	v := NewVerifier("")
	if _, ok := v.Verify("subscribe", "", "c"); ok {
		t.Fatal("empty configured token must never match")
	}
}

func TestVerifierIdempotent(t *testing.T) {
	v := NewVerifier("t")
	for range 3 {
		got, ok := v.Verify("subscribe", "t", "abc")
		if !ok || got != "abc" {
			t.Fatalf("Verify() = (%q, %v)", got, ok)
		}
	}
}
