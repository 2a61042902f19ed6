package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// Algorithm is a named HMAC hash with a fixed hex digest length.
type Algorithm struct {
	Name   string
	New    func() hash.Hash
	HexLen int
}

var (
	// SHA1 is the algorithm the WhatsApp Cloud API signs X-Hub-Signature with.
	SHA1 = Algorithm{Name: "sha1", New: sha1.New, HexLen: 40}

	SHA256 = Algorithm{Name: "sha256", New: sha256.New, HexLen: 64}
)

// LookupAlgorithm returns the algorithm for name. Empty means sha1.
func LookupAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(name) {
	case "", SHA1.Name:
		return SHA1, nil
	case SHA256.Name:
		return SHA256, nil
	default:
		return Algorithm{}, fmt.Errorf("unsupported signature algorithm %q (want sha1 or sha256)", name)
	}
}

// Signer computes and checks "<algorithm>=<hex>" signatures for one secret.
type Signer struct {
	alg    Algorithm
	secret []byte
}

// NewSigner returns a Signer. The secret must not be empty.
func NewSigner(alg Algorithm, secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret is empty")
	}
	if alg.New == nil {
		return nil, fmt.Errorf("signature algorithm is not set")
	}
	return &Signer{alg: alg, secret: []byte(secret)}, nil
}

// Algorithm returns the configured algorithm.
func (s *Signer) Algorithm() Algorithm { return s.alg }

// Sign returns the header value a provider would send for body.
func (s *Signer) Sign(body []byte) string {
	return s.alg.Name + "=" + s.digest(body)
}

// Verify checks header against body. The algorithm token must match the
// configured one exactly; the digest is compared in constant time.
func (s *Signer) Verify(body []byte, header string) error {
	if header == "" {
		return ErrSignatureMissing
	}

	name, digest, ok := strings.Cut(header, "=")
	if !ok || name != s.alg.Name {
		return ErrSignatureMalformed
	}
	if len(digest) != s.alg.HexLen || !isLowerHex(digest) {
		return ErrSignatureMalformed
	}

	expected := s.digest(body)
	if !hmac.Equal([]byte(expected), []byte(digest)) {
		return ErrSignatureMismatch
	}
	return nil
}

func (s *Signer) digest(body []byte) string {
	mac := hmac.New(s.alg.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
