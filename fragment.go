// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

// NodeIndex is an index into a Context's flat fragment arena. Children are
// referenced by index rather than by pointer so the whole tree can be
// built post-order in a single growable slice, and so the DP tables used
// by the type checker and satisfier can be keyed by a plain int.
type NodeIndex int

// FragmentKind identifies which Miniscript fragment a Fragment node holds.
type FragmentKind int

const (
	FragFalse FragmentKind = iota
	FragTrue
	FragPkK
	FragPkH
	FragRawPkH // the undesugared top-level key inside pkh()/wpkh()
	FragOlder
	FragAfter
	FragSha256
	FragHash256
	FragRipemd160
	FragHash160
	FragAndOr
	FragAndV
	FragAndB
	FragOrB
	FragOrC
	FragOrD
	FragOrI
	FragThresh
	FragMulti
	FragMultiA
	FragWrap  // one of the seven single-child identity wrappers; see WrapKind
	FragRawTr // the root of a tr() descriptor: key-path key plus an optional script-path tree
)

// NoChild marks the absence of a child node, used by FragRawTr when the
// taproot output has no script path.
const NoChild NodeIndex = -1

// WrapKind distinguishes the seven single-child wrapper fragments, each
// spelled as a prefix letter in a wrapper chain (and with no special
// spelling for FragAndV's "t:" / "l:" / "u:" sugar, which desugars to
// and_v/or_i trees instead of a wrapper node).
type WrapKind int

const (
	WrapA WrapKind = iota // a:
	WrapS                 // s:
	WrapC                 // c:
	WrapD                 // d:
	WrapV                 // v:
	WrapJ                 // j:
	WrapN                 // n:
)

var wrapLetters = map[byte]WrapKind{
	'a': WrapA,
	's': WrapS,
	'c': WrapC,
	'd': WrapD,
	'v': WrapV,
	'j': WrapJ,
	'n': WrapN,
}

// Fragment is one node of the flat AST arena. Only the fields relevant to
// Kind are populated; the rest are left at their zero value.
type Fragment struct {
	Kind FragmentKind
	Pos  Position

	// PkK, PkH, RawPkH.
	Key *Key

	// Older, After.
	Locktime uint32

	// Sha256, Hash256, Ripemd160, Hash160.
	Hash []byte

	// AndOr, AndV, AndB, OrB, OrC, OrD, OrI, Thresh: Children holds every
	// child in left-to-right order. AndOr has exactly 3 (X, Y, Z);
	// AndV/AndB/OrB/OrC/OrD/OrI have exactly 2; Thresh has 1..n.
	Children []NodeIndex

	// Thresh, Multi, MultiA.
	K    int
	Keys []*Key // Multi, MultiA only

	// Wrap.
	WrapKind WrapKind
	Child    NodeIndex

	// RawTr: TrKey is the internal key; TrInner is NoChild when the
	// output has no script path, or the root of the single tapscript
	// leaf otherwise.
	TrKey   *Key
	TrInner NodeIndex
}

// DescriptorKind identifies which top-level descriptor wrapper, if any,
// encloses the Miniscript expression. It governs which sub-grammar keys
// are parsed under (segwit v0 vs. taproot x-only) and which fragments are
// legal under the enclosing output type.
type DescriptorKind int

const (
	// DescriptorBare is a raw Miniscript expression with no enclosing
	// descriptor: legal only when its root type is B, and it has no
	// on-chain address of its own.
	DescriptorBare DescriptorKind = iota
	DescriptorPkH   // pkh(KEY) at top level
	DescriptorSh    // sh(MINISCRIPT)
	DescriptorShWsh // sh(wsh(MINISCRIPT)) or sh(wpkh(KEY))
	DescriptorWsh   // wsh(MINISCRIPT)
	DescriptorWpkh  // wpkh(KEY)
	DescriptorTr    // tr(KEY) or tr(KEY,TREE)
)

// IsSegwitV0 reports whether keys under this descriptor are parsed and
// validated as segwit v0 (compressed-only) keys.
func (d DescriptorKind) IsSegwitV0() bool {
	switch d {
	case DescriptorShWsh, DescriptorWsh, DescriptorWpkh:
		return true
	default:
		return false
	}
}
