// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

// validateDescriptor walks the AST from root, tracking the descriptor kind
// in force (the root's own inner kind; ShWsh behaves like Wsh/Wpkh for the
// segwit-v0 compressed-key rule), and enforces:
//
//   - Multi only under Wsh; MultiA only under Tr.
//   - Under Wpkh/Wsh/ShWsh, every PkK/PkH/RawPkH/Multi key must be
//     compressed.
//   - RawPkH only legal when the root itself is RawPkH under Pkh/Wpkh/
//     ShWsh; RawTr only legal when the root is RawTr under Tr. The
//     recursive parser never produces either fragment anywhere but the
//     tree root, so checking the root once suffices.
func validateDescriptor(nodes []Fragment, root NodeIndex, inner DescriptorKind) error {
	switch nodes[root].Kind {
	case FragRawPkH:
		if inner != DescriptorPkH && inner != DescriptorWpkh && inner != DescriptorShWsh {
			return newError(ErrIllegalFragment, nodes[root].Pos, "pkh key only legal directly inside pkh()/wpkh()")
		}
	case FragRawTr:
		if inner != DescriptorTr {
			return newError(ErrIllegalFragment, nodes[root].Pos, "tr() key only legal directly inside tr()")
		}
	}
	return validateNode(nodes, root, inner)
}

// validateNode performs the descriptor-legality walk. Every constraint only
// depends on the enclosing descriptor, not on results from children, so a
// pre-order walk suffices.
func validateNode(nodes []Fragment, idx NodeIndex, inner DescriptorKind) error {
	n := &nodes[idx]
	segwitV0 := inner == DescriptorShWsh || inner == DescriptorWsh || inner == DescriptorWpkh

	switch n.Kind {
	case FragPkK, FragPkH, FragRawPkH:
		if segwitV0 && n.Key != nil && !n.Key.IsCompressed() {
			return newError(ErrUncompressedKey, n.Pos, n.Key.Identifier())
		}
		return nil

	case FragMulti:
		if inner != DescriptorWsh && inner != DescriptorShWsh {
			return newError(ErrIllegalFragment, n.Pos, "multi only legal under wsh()")
		}
		for _, k := range n.Keys {
			if !k.IsCompressed() {
				return newError(ErrUncompressedKey, n.Pos, k.Identifier())
			}
		}
		return nil

	case FragMultiA:
		if inner != DescriptorTr {
			return newError(ErrIllegalFragment, n.Pos, "multi_a only legal under tr()")
		}
		return nil

	case FragRawTr:
		if n.TrInner != NoChild {
			return validateNode(nodes, n.TrInner, inner)
		}
		return nil

	case FragWrap:
		return validateNode(nodes, n.Child, inner)

	case FragAndOr, FragAndV, FragAndB, FragOrB, FragOrC, FragOrD, FragOrI, FragThresh:
		for _, c := range n.Children {
			if err := validateNode(nodes, c, inner); err != nil {
				return err
			}
		}
		return nil

	default:
		return nil
	}
}
