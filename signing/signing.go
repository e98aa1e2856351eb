// Package signing provides detached ed25519 signatures over committed
// response digests, so a caller can prove which party vouched for an
// invocation's outcome without re-running it. Grounded nearly verbatim on
// the teacher's signing/ed25519.go key-pair shape, retargeted from
// signing a run-proof hash to signing a response digest.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/reachcore/journal/digest"
)

// Algorithm names the signature scheme a Signature was produced with.
type Algorithm string

const AlgorithmEd25519 Algorithm = "ed25519"

// KeyPair holds an ed25519 key pair. PublicKey is hex-encoded for easy
// embedding in logs and resource fields; the private key never leaves
// the process.
type KeyPair struct {
	PublicKey  string
	privateKey ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh ed25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("signing: generate key: %w", err)
	}
	return &KeyPair{PublicKey: hex.EncodeToString(pub), privateKey: priv}, nil
}

// Signature is a detached signature over one response's digest.
type Signature struct {
	Algorithm Algorithm
	PublicKey string
	Signature string // hex
}

// SignResponse signs d, the digest of a committed Response, with kp.
func SignResponse(kp *KeyPair, d digest.Digest) Signature {
	sig := ed25519.Sign(kp.privateKey, []byte(d))
	return Signature{
		Algorithm: AlgorithmEd25519,
		PublicKey: kp.PublicKey,
		Signature: hex.EncodeToString(sig),
	}
}

// Verify reports whether sig is a valid signature over d under sig's
// claimed public key.
func Verify(d digest.Digest, sig Signature) (bool, error) {
	if sig.Algorithm != AlgorithmEd25519 {
		return false, fmt.Errorf("signing: unsupported algorithm %q", sig.Algorithm)
	}
	pub, err := hex.DecodeString(sig.PublicKey)
	if err != nil {
		return false, fmt.Errorf("signing: decode public key: %w", err)
	}
	raw, err := hex.DecodeString(sig.Signature)
	if err != nil {
		return false, fmt.Errorf("signing: decode signature: %w", err)
	}
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(d), raw), nil
}
