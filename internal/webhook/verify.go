package webhook

import "crypto/subtle"

// ModeSubscribe is the only hub.mode the handshake accepts.
const ModeSubscribe = "subscribe"

// Verifier answers the provider's subscription handshake.
type Verifier struct {
	token []byte
}

// NewVerifier returns a Verifier for the configured verify token.
func NewVerifier(token string) *Verifier {
	return &Verifier{token: []byte(token)}
}

// Verify returns challenge and true when mode is "subscribe" and token equals
// the configured verify token. An empty configured token never matches.
func (v *Verifier) Verify(mode, token, challenge string) (string, bool) {
	if mode != ModeSubscribe || len(v.token) == 0 {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), v.token) != 1 {
		return "", false
	}
	return challenge, true
}
