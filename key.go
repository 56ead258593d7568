// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// KeyKind discriminates the three shapes a Key can take.
type KeyKind int

const (
	KeyPk KeyKind = iota
	KeyXOnlyPk
	KeyExtended
)

// Wildcard describes the trailing "/*" of an extended key's derivation
// path. Hardened wildcards ("/*'" / "/*h") are rejected at parse time.
type Wildcard int

const (
	WildcardNone Wildcard = iota
	WildcardNormal
)

// extendedKey is the data behind a KeyExtended Key.
type extendedKey struct {
	rawText           string
	originFingerprint []byte // 4 bytes, nil when no origin was given
	originPath        []uint32
	xpub              *hdkeychain.ExtendedKey
	path              []uint32
	wildcard          Wildcard
	xOnly             bool
}

// Key is a tagged public key: a raw compressed/uncompressed SEC key, an
// x-only key, or an extended (BIP-32) key expression with optional origin,
// derivation path, and wildcard.
type Key struct {
	kind       KeyKind
	rawText    string
	pubKey     *btcec.PublicKey
	compressed bool
	ext        *extendedKey
}

// Identifier returns the canonical string for this key: the original
// descriptor text for extended keys, or the hex text of the definite key
// otherwise. Used for diagnostics and for the Serializer's round-trip.
func (k *Key) Identifier() string {
	return k.rawText
}

// IsCompressed reports whether the key's SEC encoding is compressed. X-only
// and extended keys are always considered compressed (they only ever
// derive to compressed or x-only definite keys).
func (k *Key) IsCompressed() bool {
	switch k.kind {
	case KeyPk:
		return k.compressed
	default:
		return true
	}
}

// AsDefinite returns the key itself when it is already a definite (non
// wildcard, non-extended) key, and (nil, false) for an extended key that
// has not yet been derived.
func (k *Key) AsDefinite() (*Key, bool) {
	if k.kind == KeyExtended {
		return nil, false
	}
	return k, true
}

// IsXOnly reports whether this key serializes as a 32-byte x-only key
// (true for KeyXOnlyPk, and for extended keys parsed inside a tr()).
func (k *Key) IsXOnly() bool {
	switch k.kind {
	case KeyXOnlyPk:
		return true
	case KeyExtended:
		return k.ext.xOnly
	default:
		return false
	}
}

// PubKey returns the underlying EC public key for a definite (non
// extended) key. It is nil for extended keys.
func (k *Key) PubKey() *btcec.PublicKey {
	return k.pubKey
}

// Bytes returns the script-push encoding of a definite key: 33 or 65 bytes
// for KeyPk, or 32 bytes for KeyXOnlyPk.
func (k *Key) Bytes() []byte {
	switch k.kind {
	case KeyPk:
		if k.compressed {
			return k.pubKey.SerializeCompressed()
		}
		return k.pubKey.SerializeUncompressed()
	case KeyXOnlyPk:
		b := k.pubKey.SerializeCompressed()
		return b[1:]
	default:
		return nil
	}
}

// Derive appends index as the wildcard child of an extended key with a
// Normal wildcard, derives through the full path, and returns the
// resulting definite key. A non-extended key, or an extended key without a
// wildcard, returns itself unchanged (identity). Derivation failures from
// the underlying BIP-32 engine are surfaced as opaque error strings, per
// the external collaborator's contract.
func (k *Key) Derive(index uint32) (*Key, error) {
	if k.kind != KeyExtended {
		return k, nil
	}
	ext := k.ext
	path := ext.path
	if ext.wildcard == WildcardNormal {
		path = append(append([]uint32{}, path...), index)
	}

	cur := ext.xpub
	for _, child := range path {
		derived, err := cur.Derive(child)
		if err != nil {
			return nil, newErrorf(ErrInvalidKey, NoPosition, "derive %s: %v", ext.rawText, err)
		}
		cur = derived
	}

	pub, err := cur.ECPubKey()
	if err != nil {
		return nil, newErrorf(ErrInvalidKey, NoPosition, "derive %s: %v", ext.rawText, err)
	}

	return &Key{
		kind:       keyKindFor(ext.xOnly),
		rawText:    ext.rawText,
		pubKey:     pub,
		compressed: true,
	}, nil
}

func keyKindFor(xOnly bool) KeyKind {
	if xOnly {
		return KeyXOnlyPk
	}
	return KeyPk
}

// parseKey parses a single key-position token under the given inner
// descriptor. Extended key expressions are recognized by containing the
// substring "pub"; everything else is a raw SEC or x-only key.
func parseKey(text string, pos Position, inner DescriptorKind) (*Key, error) {
	if strings.Contains(text, "pub") {
		return parseExtendedKey(text, pos, inner)
	}

	if inner == DescriptorTr {
		if len(text) != 66 && len(text) != 130 {
			return nil, newErrorf(ErrInvalidXOnlyLength, pos,
				"x-only key must be 66 or 130 hex characters, found %d", len(text))
		}
		b, err := hex.DecodeString(text)
		if err != nil {
			return nil, newErrorf(ErrInvalidKey, pos, "invalid hex: %q", text)
		}
		pub, err := btcec.ParsePubKey(b)
		if err != nil {
			return nil, newErrorf(ErrInvalidKey, pos, "invalid public key: %q", text)
		}
		return &Key{kind: KeyXOnlyPk, rawText: text, pubKey: pub, compressed: true}, nil
	}

	if len(text) != 66 && len(text) != 130 {
		return nil, newErrorf(ErrInvalidKey, pos, "invalid key length: %q", text)
	}
	b, err := hex.DecodeString(text)
	if err != nil {
		return nil, newErrorf(ErrInvalidKey, pos, "invalid hex: %q", text)
	}
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, newErrorf(ErrInvalidKey, pos, "invalid public key: %q", text)
	}
	return &Key{kind: KeyPk, rawText: text, pubKey: pub, compressed: len(text) == 66}, nil
}

// parseExtendedKey parses "[fingerprint(/child)*]xpub...(/child)*(/*)?".
func parseExtendedKey(text string, pos Position, inner DescriptorKind) (*Key, error) {
	remaining := text
	var originFingerprint []byte
	var originPath []uint32

	if strings.HasPrefix(remaining, "[") {
		end := strings.IndexByte(remaining, ']')
		if end == -1 {
			return nil, newErrorf(ErrInvalidKey, pos, "missing ']' in origin: %q", text)
		}
		originPart := remaining[1:end]
		if len(originPart) < 8 {
			return nil, newErrorf(ErrInvalidKey, pos, "invalid origin fingerprint: %q", text)
		}
		fp, err := hex.DecodeString(originPart[:8])
		if err != nil || len(fp) != 4 {
			return nil, newErrorf(ErrInvalidKey, pos, "invalid origin fingerprint: %q", text)
		}
		originFingerprint = fp

		rest := originPart[8:]
		if len(rest) > 0 {
			if rest[0] != '/' {
				return nil, newErrorf(ErrInvalidKey, pos, "invalid origin path: %q", text)
			}
			path, err := parseDerivationPath(rest[1:])
			if err != nil {
				return nil, newErrorf(ErrInvalidKey, pos, "invalid origin path: %q", text)
			}
			originPath = path
		}
		remaining = remaining[end+1:]
	}

	var wildcard Wildcard
	var path []uint32

	keyPart := remaining
	if slash := strings.IndexByte(remaining, '/'); slash != -1 {
		keyPart = remaining[:slash]
		tail := remaining[slash+1:]

		if strings.HasSuffix(tail, "/*'") || strings.HasSuffix(tail, "/*h") || tail == "*'" || tail == "*h" {
			return nil, newErrorf(ErrInvalidKey, pos, "hardened wildcard not allowed: %q", text)
		}
		if tail == "*" || strings.HasSuffix(tail, "/*") {
			wildcard = WildcardNormal
			tail = strings.TrimSuffix(tail, "*")
			tail = strings.TrimSuffix(tail, "/")
		}
		if tail != "" {
			p, err := parseDerivationPath(tail)
			if err != nil {
				return nil, newErrorf(ErrInvalidKey, pos, "invalid derivation path: %q", text)
			}
			path = p
		}
	}

	xpub, err := hdkeychain.NewKeyFromString(keyPart)
	if err != nil {
		return nil, newErrorf(ErrInvalidKey, pos, "invalid xpub: %q", text)
	}

	ext := &extendedKey{
		rawText:           text,
		originFingerprint: originFingerprint,
		originPath:        originPath,
		xpub:              xpub,
		path:              path,
		wildcard:          wildcard,
		xOnly:             inner == DescriptorTr,
	}
	return &Key{kind: KeyExtended, rawText: text, ext: ext}, nil
}

// parseDerivationPath parses a '/'-separated path of elements, each an
// unsigned decimal index optionally suffixed with ' or h for hardened.
func parseDerivationPath(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, "/")
	path := make([]uint32, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, newError(ErrInvalidKey, NoPosition, "empty path element")
		}
		hardened := false
		if strings.HasSuffix(p, "'") || strings.HasSuffix(p, "h") {
			hardened = true
			p = p[:len(p)-1]
		}
		idx, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, newErrorf(ErrInvalidKey, NoPosition, "invalid path element: %q", p)
		}
		child := uint32(idx)
		if hardened {
			child += hdkeychain.HardenedKeyStart
		}
		path = append(path, child)
	}
	return path, nil
}
