package signing

import (
	"testing"

	"github.com/reachcore/journal/digest"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	d := digest.Compute([]byte("a committed response"))
	sig := SignResponse(kp, d)

	ok, err := Verify(d, sig)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatalf("a freshly produced signature must verify")
	}
}

func TestVerifyRejectsTamperedDigest(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	d := digest.Compute([]byte("original"))
	sig := SignResponse(kp, d)

	tampered := digest.Compute([]byte("tampered"))
	ok, err := Verify(tampered, sig)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatalf("a signature over one digest must not verify against a different digest")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	kp1, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	kp2, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	d := digest.Compute([]byte("payload"))
	sig := SignResponse(kp1, d)
	sig.PublicKey = kp2.PublicKey

	ok, err := Verify(d, sig)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatalf("a signature must not verify under a different public key")
	}
}

func TestVerifyRejectsUnsupportedAlgorithm(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	d := digest.Compute([]byte("payload"))
	sig := SignResponse(kp, d)
	sig.Algorithm = "rsa"

	if _, err := Verify(d, sig); err == nil {
		t.Fatalf("Verify must reject an unsupported algorithm")
	}
}
