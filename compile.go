// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
)

// mergeableVerify maps an opcode that has a VERIFY-suffixed counterpart to
// that counterpart, used to fold a v: wrapper's OP_VERIFY into the
// previous opcode for free when the wrapped fragment's HasFreeVerify is
// set (c:, multi, multi_a, the hash fragments, and thresh all qualify).
var mergeableVerify = map[byte]byte{
	txscript.OP_EQUAL:         txscript.OP_EQUALVERIFY,
	txscript.OP_CHECKSIG:      txscript.OP_CHECKSIGVERIFY,
	txscript.OP_CHECKMULTISIG: txscript.OP_CHECKMULTISIGVERIFY,
	txscript.OP_NUMEQUAL:      txscript.OP_NUMEQUALVERIFY,
}

// BuildScript compiles a validated Context into its canonical Bitcoin
// script: each fragment's fixed opcode template, applied bottom-up. For
// a tr() context with no script path it returns an empty script (taproot
// key-path spends carry no script); for a tr() context with a script path
// it returns the tapscript leaf, not the output scriptPubKey — use
// BuildAddress for the actual output.
func (c *Context) BuildScript() ([]byte, error) {
	return compileFragment(c.nodes, c.root)
}

func compileFragment(nodes []Fragment, idx NodeIndex) ([]byte, error) {
	n := &nodes[idx]

	switch n.Kind {
	case FragFalse:
		return oneOp(txscript.OP_FALSE), nil

	case FragTrue:
		return oneOp(txscript.OP_TRUE), nil

	case FragPkK:
		return compileKeyPush(n.Key)

	case FragPkH, FragRawPkH:
		return compilePkH(n.Key)

	case FragOlder:
		b := txscript.NewScriptBuilder()
		b.AddInt64(int64(n.Locktime)).AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
		return b.Script()

	case FragAfter:
		b := txscript.NewScriptBuilder()
		b.AddInt64(int64(n.Locktime)).AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
		return b.Script()

	case FragSha256:
		return compileHashCheck(txscript.OP_SHA256, n.Hash)
	case FragHash256:
		return compileHashCheck(txscript.OP_HASH256, n.Hash)
	case FragRipemd160:
		return compileHashCheck(txscript.OP_RIPEMD160, n.Hash)
	case FragHash160:
		return compileHashCheck(txscript.OP_HASH160, n.Hash)

	case FragAndOr:
		x, err := compileFragment(nodes, n.Children[0])
		if err != nil {
			return nil, err
		}
		y, err := compileFragment(nodes, n.Children[1])
		if err != nil {
			return nil, err
		}
		z, err := compileFragment(nodes, n.Children[2])
		if err != nil {
			return nil, err
		}
		return concat(x, oneOp(txscript.OP_NOTIF), z, oneOp(txscript.OP_ELSE), y, oneOp(txscript.OP_ENDIF)), nil

	case FragAndV:
		return compileTwo(nodes, n.Children, nil)

	case FragAndB:
		return compileTwo(nodes, n.Children, []byte{txscript.OP_BOOLAND})

	case FragOrB:
		return compileTwo(nodes, n.Children, []byte{txscript.OP_BOOLOR})

	case FragOrC:
		x, err := compileFragment(nodes, n.Children[0])
		if err != nil {
			return nil, err
		}
		z, err := compileFragment(nodes, n.Children[1])
		if err != nil {
			return nil, err
		}
		return concat(x, oneOp(txscript.OP_NOTIF), z, oneOp(txscript.OP_ENDIF)), nil

	case FragOrD:
		x, err := compileFragment(nodes, n.Children[0])
		if err != nil {
			return nil, err
		}
		z, err := compileFragment(nodes, n.Children[1])
		if err != nil {
			return nil, err
		}
		return concat(x, oneOp(txscript.OP_IFDUP), oneOp(txscript.OP_NOTIF), z, oneOp(txscript.OP_ENDIF)), nil

	case FragOrI:
		x, err := compileFragment(nodes, n.Children[0])
		if err != nil {
			return nil, err
		}
		z, err := compileFragment(nodes, n.Children[1])
		if err != nil {
			return nil, err
		}
		return concat(oneOp(txscript.OP_IF), x, oneOp(txscript.OP_ELSE), z, oneOp(txscript.OP_ENDIF)), nil

	case FragThresh:
		var parts [][]byte
		for i, c := range n.Children {
			xs, err := compileFragment(nodes, c)
			if err != nil {
				return nil, err
			}
			parts = append(parts, xs)
			if i > 0 {
				parts = append(parts, oneOp(txscript.OP_ADD))
			}
		}
		b := txscript.NewScriptBuilder()
		b.AddInt64(int64(n.K))
		tail, err := b.Script()
		if err != nil {
			return nil, err
		}
		parts = append(parts, tail, oneOp(txscript.OP_EQUAL))
		return concat(parts...), nil

	case FragMulti:
		b := txscript.NewScriptBuilder()
		b.AddInt64(int64(n.K))
		for _, key := range n.Keys {
			kb, err := keyBytes(key)
			if err != nil {
				return nil, err
			}
			b.AddData(kb)
		}
		b.AddInt64(int64(len(n.Keys)))
		b.AddOp(txscript.OP_CHECKMULTISIG)
		return b.Script()

	case FragMultiA:
		b := txscript.NewScriptBuilder()
		for i, key := range n.Keys {
			kb, err := keyBytes(key)
			if err != nil {
				return nil, err
			}
			b.AddData(kb)
			if i == 0 {
				b.AddOp(txscript.OP_CHECKSIG)
			} else {
				b.AddOp(txscript.OP_CHECKSIGADD)
			}
		}
		b.AddInt64(int64(n.K))
		b.AddOp(txscript.OP_NUMEQUAL)
		return b.Script()

	case FragWrap:
		return compileWrap(nodes, n)

	case FragRawTr:
		if n.TrInner == NoChild {
			return nil, nil
		}
		return compileFragment(nodes, n.TrInner)

	default:
		return nil, newErrorf(ErrUnexpectedType, n.Pos, "unknown fragment kind %d", n.Kind)
	}
}

func compileTwo(nodes []Fragment, children []NodeIndex, tail []byte) ([]byte, error) {
	x, err := compileFragment(nodes, children[0])
	if err != nil {
		return nil, err
	}
	y, err := compileFragment(nodes, children[1])
	if err != nil {
		return nil, err
	}
	if tail == nil {
		return concat(x, y), nil
	}
	return concat(x, y, tail), nil
}

func compileWrap(nodes []Fragment, n *Fragment) ([]byte, error) {
	switch n.WrapKind {
	case WrapA:
		x, err := compileFragment(nodes, n.Child)
		if err != nil {
			return nil, err
		}
		return concat(oneOp(txscript.OP_TOALTSTACK), x, oneOp(txscript.OP_FROMALTSTACK)), nil

	case WrapS:
		x, err := compileFragment(nodes, n.Child)
		if err != nil {
			return nil, err
		}
		return concat(oneOp(txscript.OP_SWAP), x), nil

	case WrapC:
		x, err := compileFragment(nodes, n.Child)
		if err != nil {
			return nil, err
		}
		return concat(x, oneOp(txscript.OP_CHECKSIG)), nil

	case WrapD:
		x, err := compileFragment(nodes, n.Child)
		if err != nil {
			return nil, err
		}
		return concat(oneOp(txscript.OP_DUP), oneOp(txscript.OP_IF), x, oneOp(txscript.OP_ENDIF)), nil

	case WrapV:
		x, err := compileFragment(nodes, n.Child)
		if err != nil {
			return nil, err
		}
		if merged, ok := mergeVerify(x); ok {
			return merged, nil
		}
		return concat(x, oneOp(txscript.OP_VERIFY)), nil

	case WrapJ:
		x, err := compileFragment(nodes, n.Child)
		if err != nil {
			return nil, err
		}
		b := txscript.NewScriptBuilder()
		b.AddOp(txscript.OP_SIZE).AddOp(txscript.OP_0NOTEQUAL).AddOp(txscript.OP_IF)
		head, err := b.Script()
		if err != nil {
			return nil, err
		}
		return concat(head, x, oneOp(txscript.OP_ENDIF)), nil

	case WrapN:
		x, err := compileFragment(nodes, n.Child)
		if err != nil {
			return nil, err
		}
		b := txscript.NewScriptBuilder()
		b.AddOp(txscript.OP_0NOTEQUAL)
		tail, err := b.Script()
		if err != nil {
			return nil, err
		}
		return concat(x, tail), nil

	default:
		return nil, newErrorf(ErrUnexpectedType, n.Pos, "unknown wrapper kind %d", n.WrapKind)
	}
}

// mergeVerify folds a trailing VERIFY onto script's last opcode when it has
// a VERIFY-suffixed counterpart (HasFreeVerify), avoiding the
// extra OP_VERIFY byte the type checker already priced out of PkCost.
func mergeVerify(script []byte) ([]byte, bool) {
	if len(script) == 0 {
		return nil, false
	}
	last := script[len(script)-1]
	verify, ok := mergeableVerify[last]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(script))
	copy(out, script)
	out[len(out)-1] = verify
	return out, true
}

func compileHashCheck(hashOp byte, image []byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_SIZE).AddInt64(32).AddOp(txscript.OP_EQUALVERIFY).AddOp(hashOp).AddData(image).AddOp(txscript.OP_EQUAL)
	return b.Script()
}

func compilePkH(key *Key) ([]byte, error) {
	kb, err := keyBytes(key)
	if err != nil {
		return nil, err
	}
	hash := btcutil.Hash160(kb)
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).AddData(hash).AddOp(txscript.OP_EQUALVERIFY)
	return b.Script()
}

func compileKeyPush(key *Key) ([]byte, error) {
	kb, err := keyBytes(key)
	if err != nil {
		return nil, err
	}
	b := txscript.NewScriptBuilder()
	b.AddData(kb)
	return b.Script()
}

// keyBytes returns the script-push encoding of a definite key, failing with
// ErrNonDefiniteKey for an extended key that was never derived.
func keyBytes(key *Key) ([]byte, error) {
	definite, ok := key.AsDefinite()
	if !ok {
		return nil, newError(ErrNonDefiniteKey, NoPosition, key.Identifier())
	}
	return definite.Bytes(), nil
}

func oneOp(op byte) []byte {
	return []byte{op}
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
