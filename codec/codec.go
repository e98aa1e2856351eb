// Package codec implements the canonicalizer: deterministic encoding of a
// resource into a packed dictionary used for hashing and transport, per
// spec.md section 4.2. Grounded on the teacher's
// determinism.canonicalize/CanonicalJSON (sorted map keys, stable primitive
// encoding via a pooled sha256 hasher) and pack/merkle.go's fixed hash-pair
// convention, generalized from "hash an arbitrary run record" to "hash a
// closed resource-value universe".
package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/reachcore/journal/digest"
	"github.com/reachcore/journal/registry"
	"github.com/reachcore/journal/resource"
	"github.com/reachcore/journal/typeid"
)

// PackedTypeID is the wire form of a typeid.TypeID.
type PackedTypeID struct {
	Name   string `json:"name"`
	Digest string `json:"digest"`
}

// Packed is the canonical wire form of a resource: a pair (type_id, fields)
// where fields maps field name to a recursively packed field value.
type Packed struct {
	TypeID PackedTypeID   `json:"type_id"`
	Fields map[string]any `json:"fields"`
}

// Pack encodes r into its canonical Packed form. Unregistered types are not
// rejected here (packing doesn't require a registry — only unpacking does);
// the packer still enforces the closed-universe and shape invariants.
func Pack(r resource.Resource) (Packed, error) {
	if err := resource.ValidateShape(r); err != nil {
		return Packed{}, err
	}
	names := r.FieldNames()
	values := r.FieldValues()
	fields := make(map[string]any, len(names))
	for i, name := range names {
		pv, err := packValue(values[i])
		if err != nil {
			return Packed{}, fmt.Errorf("field %q: %w", name, err)
		}
		fields[name] = pv
	}
	return Packed{
		TypeID: PackedTypeID{Name: r.TypeID().Name, Digest: r.TypeID().Digest},
		Fields: fields,
	}, nil
}

// CanonicalBytes returns the deterministic byte encoding used for hashing
// and persistence: JSON-equivalent, lexicographically sorted object keys
// (guaranteed by encoding/json for map[string]any), no insignificant
// whitespace, and the tagged primitive/ref forms built by packValue.
func CanonicalBytes(p Packed) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type_id": map[string]any{"name": p.TypeID.Name, "digest": p.TypeID.Digest},
		"fields":  p.Fields,
	})
}

// Digest computes H(canonical_bytes(p)).
func Digest(p Packed) (digest.Digest, error) {
	b, err := CanonicalBytes(p)
	if err != nil {
		return "", err
	}
	return digest.Compute(b), nil
}

// PackValue encodes a single Value into its tagged wire form, for callers
// (httpadapter) that need to transport a bare Value rather than a whole
// resource.
func PackValue(v resource.Value) (any, error) { return packValue(v) }

// UnpackValue decodes a single tagged wire value back into a Value.
func UnpackValue(raw any, reg *registry.Registry) (resource.Value, error) {
	return unpackValue(raw, reg)
}

// packValue recursively packs one field value into its tagged wire form.
// Every variant packs to a single-key object so the encoding is
// unambiguous and total over the closed value universe (spec.md section 3).
func packValue(v resource.Value) (any, error) {
	switch v.Kind() {
	case resource.KindNull:
		return map[string]any{"null": true}, nil
	case resource.KindInt:
		i, _ := v.AsInt()
		return map[string]any{"i": strconv.FormatInt(i, 10)}, nil
	case resource.KindFloat:
		f, _ := v.AsFloat()
		return map[string]any{"f": encodeFloat(f)}, nil
	case resource.KindBool:
		b, _ := v.AsBool()
		return map[string]any{"b": b}, nil
	case resource.KindString:
		s, _ := v.AsString()
		return map[string]any{"s": s}, nil
	case resource.KindBytes:
		b, _ := v.AsBytes()
		return map[string]any{"y": base64.StdEncoding.EncodeToString(b)}, nil
	case resource.KindRef:
		r, _ := v.AsRef()
		return map[string]any{"ref": map[string]any{
			"type_id": map[string]any{"name": r.TypeID.Name, "digest": r.TypeID.Digest},
			"digest":  string(r.Digest),
		}}, nil
	case resource.KindTypeHandle:
		t, _ := v.AsTypeHandle()
		return map[string]any{"type": map[string]any{"name": t.Name, "digest": t.Digest}}, nil
	case resource.KindList:
		items, _ := v.AsList()
		packed := make([]any, len(items))
		for i, item := range items {
			pv, err := packValue(item)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			packed[i] = pv
		}
		return map[string]any{"list": packed}, nil
	case resource.KindMap:
		m, _ := v.AsMap()
		packed := make(map[string]any, len(m))
		for k, val := range m {
			pv, err := packValue(val)
			if err != nil {
				return nil, fmt.Errorf("map[%q]: %w", k, err)
			}
			packed[k] = pv
		}
		return map[string]any{"map": packed}, nil
	case resource.KindResource:
		embedded, _ := v.AsResource()
		p, err := Pack(embedded)
		if err != nil {
			return nil, fmt.Errorf("embedded resource: %w", err)
		}
		return map[string]any{"resource": map[string]any{
			"type_id": map[string]any{"name": p.TypeID.Name, "digest": p.TypeID.Digest},
			"fields":  p.Fields,
		}}, nil
	default:
		return nil, fmt.Errorf("codec: value outside the closed universe (kind %s)", v.Kind())
	}
}

// encodeFloat renders a float64 in a fixed total form (sign, exponent,
// mantissa) so equal semantic values always produce equal bytes: the raw
// IEEE-754 bits, hex-encoded, distinguish it unambiguously from any integer
// encoding of the same numeral.
func encodeFloat(f float64) string {
	bits := math.Float64bits(f)
	return strconv.FormatUint(bits, 16)
}

func decodeFloat(s string) (float64, error) {
	bits, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// Unpack reconstructs a Resource from a Packed form, resolving the type via
// reg. Unpacking an unknown type_id fails with registry.ErrUnknownType.
func Unpack(p Packed, reg *registry.Registry) (resource.Resource, error) {
	id := typeid.TypeID{Name: p.TypeID.Name, Digest: p.TypeID.Digest}
	fields := make(map[string]resource.Value, len(p.Fields))
	for name, raw := range p.Fields {
		v, err := unpackValue(raw, reg)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		fields[name] = v
	}
	return reg.Construct(id, fields)
}

// UnpackBytes parses canonical bytes back into a Packed form (the inverse
// of CanonicalBytes), then reconstructs the Resource.
func UnpackBytes(b []byte, reg *registry.Registry) (resource.Resource, error) {
	var raw struct {
		TypeID PackedTypeID   `json:"type_id"`
		Fields map[string]any `json:"fields"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("codec: invalid canonical bytes: %w", err)
	}
	return Unpack(Packed{TypeID: raw.TypeID, Fields: raw.Fields}, reg)
}

func unpackValue(raw any, reg *registry.Registry) (resource.Value, error) {
	m, ok := raw.(map[string]any)
	if !ok || len(m) != 1 {
		return resource.Value{}, fmt.Errorf("codec: malformed packed value")
	}
	for tag, payload := range m {
		switch tag {
		case "null":
			return resource.Null(), nil
		case "i":
			s, _ := payload.(string)
			i, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return resource.Value{}, fmt.Errorf("codec: invalid int %q: %w", s, err)
			}
			return resource.NewInt(i), nil
		case "f":
			s, _ := payload.(string)
			f, err := decodeFloat(s)
			if err != nil {
				return resource.Value{}, fmt.Errorf("codec: invalid float %q: %w", s, err)
			}
			return resource.NewFloat(f), nil
		case "b":
			b, _ := payload.(bool)
			return resource.NewBool(b), nil
		case "s":
			s, _ := payload.(string)
			return resource.NewString(s), nil
		case "y":
			s, _ := payload.(string)
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return resource.Value{}, fmt.Errorf("codec: invalid bytes: %w", err)
			}
			return resource.NewBytes(b), nil
		case "ref":
			pm, _ := payload.(map[string]any)
			tid, _ := pm["type_id"].(map[string]any)
			d, _ := pm["digest"].(string)
			r := digest.New(
				typeid.TypeID{Name: fmt.Sprint(tid["name"]), Digest: fmt.Sprint(tid["digest"])},
				digest.Digest(d),
			)
			return resource.NewRef(r), nil
		case "type":
			pm, _ := payload.(map[string]any)
			t := typeid.TypeID{Name: fmt.Sprint(pm["name"]), Digest: fmt.Sprint(pm["digest"])}
			return resource.NewTypeHandle(t), nil
		case "list":
			items, _ := payload.([]any)
			values := make([]resource.Value, len(items))
			for i, item := range items {
				v, err := unpackValue(item, reg)
				if err != nil {
					return resource.Value{}, fmt.Errorf("list[%d]: %w", i, err)
				}
				values[i] = v
			}
			return resource.NewList(values), nil
		case "map":
			pm, _ := payload.(map[string]any)
			values := make(map[string]resource.Value, len(pm))
			for k, raw := range pm {
				v, err := unpackValue(raw, reg)
				if err != nil {
					return resource.Value{}, fmt.Errorf("map[%q]: %w", k, err)
				}
				values[k] = v
			}
			return resource.NewMap(values), nil
		case "resource":
			pm, _ := payload.(map[string]any)
			tid, _ := pm["type_id"].(map[string]any)
			pf, _ := pm["fields"].(map[string]any)
			sub, err := Unpack(Packed{
				TypeID: PackedTypeID{Name: fmt.Sprint(tid["name"]), Digest: fmt.Sprint(tid["digest"])},
				Fields: pf,
			}, reg)
			if err != nil {
				return resource.Value{}, fmt.Errorf("embedded resource: %w", err)
			}
			return resource.NewResource(sub), nil
		default:
			return resource.Value{}, fmt.Errorf("codec: unknown tag %q", tag)
		}
	}
	panic("unreachable")
}
