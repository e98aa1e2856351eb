// Package digest computes content addresses and models references between
// committed resources.
package digest

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/reachcore/journal/typeid"
)

// Digest is the lowercase-hex SHA-256 of a resource's canonical bytes.
type Digest string

// Compute returns H(canonical_bytes), the fixed collision-resistant hash
// named in spec.md section 3.
func Compute(canonicalBytes []byte) Digest {
	sum := sha256.Sum256(canonicalBytes)
	return Digest(hex.EncodeToString(sum[:]))
}

func (d Digest) String() string { return string(d) }

func (d Digest) IsZero() bool { return d == "" }

// Ref is an immutable (type_id, digest) pair naming a packed resource in
// some store. The target of a reference is immutable for the lifetime of
// its digest.
type Ref struct {
	TypeID typeid.TypeID
	Digest Digest
}

func New(t typeid.TypeID, d Digest) Ref {
	return Ref{TypeID: t, Digest: d}
}

func (r Ref) IsZero() bool {
	return r.TypeID.IsZero() && r.Digest.IsZero()
}

func (r Ref) Equal(o Ref) bool {
	return r.TypeID.Equal(o.TypeID) && r.Digest == o.Digest
}

// Compare orders references first by type digest, then by target digest,
// lexicographically on the hex strings. This is the ordering relation
// spec.md section 3 requires of references without defining it; the
// definition lives here so codec and store can rely on one stable order.
func (r Ref) Compare(o Ref) int {
	if r.TypeID.Digest != o.TypeID.Digest {
		if r.TypeID.Digest < o.TypeID.Digest {
			return -1
		}
		return 1
	}
	if r.Digest == o.Digest {
		return 0
	}
	if r.Digest < o.Digest {
		return -1
	}
	return 1
}

func (r Ref) String() string {
	return r.TypeID.Name + ":" + string(r.Digest)
}
