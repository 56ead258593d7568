// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"encoding/hex"
	"strconv"
	"strings"
)

var wrapKindLetter = func() map[WrapKind]byte {
	m := make(map[WrapKind]byte, len(wrapLetters))
	for letter, kind := range wrapLetters {
		m[kind] = letter
	}
	return m
}()

// Serialize prints c back to canonical descriptor text: the arena
// already holds desugared, canonicalized fragments, so pk/pkh and t:/l:/u:
// sugar are never reconstructed — only a chain of Identity wrappers
// collapses back into a single "letters:" prefix.
func (c *Context) Serialize() string {
	body := c.serializeBody()
	if c.topLevelDescriptor == DescriptorSh {
		return "sh(" + body + ")"
	}
	return body
}

// serializeBody prints the root fragment, including the innermost
// descriptor wrapper (pkh/wpkh/tr/wsh) that the parser folded into
// topLevelDescriptor/innerDescriptor rather than an explicit node.
func (c *Context) serializeBody() string {
	switch c.innerDescriptor {
	case DescriptorPkH:
		return "pkh(" + c.nodes[c.root].Key.Identifier() + ")"
	case DescriptorWpkh:
		return "wpkh(" + c.nodes[c.root].Key.Identifier() + ")"
	case DescriptorShWsh:
		if c.nodes[c.root].Kind == FragRawPkH {
			return "wpkh(" + c.nodes[c.root].Key.Identifier() + ")"
		}
		return "wsh(" + serializeFragment(c.nodes, c.root) + ")"
	case DescriptorWsh:
		return "wsh(" + serializeFragment(c.nodes, c.root) + ")"
	case DescriptorTr:
		return serializeFragment(c.nodes, c.root)
	default: // DescriptorBare, DescriptorSh
		return serializeFragment(c.nodes, c.root)
	}
}

func serializeFragment(nodes []Fragment, idx NodeIndex) string {
	n := &nodes[idx]

	switch n.Kind {
	case FragFalse:
		return "0"
	case FragTrue:
		return "1"

	case FragPkK:
		return "pk_k(" + n.Key.Identifier() + ")"
	case FragPkH:
		return "pk_h(" + n.Key.Identifier() + ")"
	case FragRawPkH:
		return n.Key.Identifier()

	case FragOlder:
		return "older(" + strconv.FormatUint(uint64(n.Locktime), 10) + ")"
	case FragAfter:
		return "after(" + strconv.FormatUint(uint64(n.Locktime), 10) + ")"

	case FragSha256:
		return "sha256(" + hex.EncodeToString(n.Hash) + ")"
	case FragHash256:
		return "hash256(" + hex.EncodeToString(n.Hash) + ")"
	case FragRipemd160:
		return "ripemd160(" + hex.EncodeToString(n.Hash) + ")"
	case FragHash160:
		return "hash160(" + hex.EncodeToString(n.Hash) + ")"

	case FragAndOr:
		return "andor(" + serializeChildren(nodes, n.Children) + ")"
	case FragAndV:
		return "and_v(" + serializeChildren(nodes, n.Children) + ")"
	case FragAndB:
		return "and_b(" + serializeChildren(nodes, n.Children) + ")"
	case FragOrB:
		return "or_b(" + serializeChildren(nodes, n.Children) + ")"
	case FragOrC:
		return "or_c(" + serializeChildren(nodes, n.Children) + ")"
	case FragOrD:
		return "or_d(" + serializeChildren(nodes, n.Children) + ")"
	case FragOrI:
		return "or_i(" + serializeChildren(nodes, n.Children) + ")"

	case FragThresh:
		parts := make([]string, 0, len(n.Children)+1)
		parts = append(parts, strconv.Itoa(n.K))
		for _, ch := range n.Children {
			parts = append(parts, serializeFragment(nodes, ch))
		}
		return "thresh(" + strings.Join(parts, ",") + ")"

	case FragMulti:
		return "multi(" + serializeKeyList(n.K, n.Keys) + ")"
	case FragMultiA:
		return "multi_a(" + serializeKeyList(n.K, n.Keys) + ")"

	case FragWrap:
		return serializeWrapChain(nodes, idx)

	case FragRawTr:
		s := n.TrKey.Identifier()
		if n.TrInner != NoChild {
			s += "," + serializeFragment(nodes, n.TrInner)
		}
		return "tr(" + s + ")"

	default:
		return ""
	}
}

func serializeChildren(nodes []Fragment, children []NodeIndex) string {
	parts := make([]string, len(children))
	for i, ch := range children {
		parts[i] = serializeFragment(nodes, ch)
	}
	return strings.Join(parts, ",")
}

func serializeKeyList(k int, keys []*Key) string {
	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, strconv.Itoa(k))
	for _, key := range keys {
		parts = append(parts, key.Identifier())
	}
	return strings.Join(parts, ",")
}

// serializeWrapChain collapses a run of nested FragWrap nodes into a single
// "letters:" prefix ahead of the first non-wrapper body, matching how the
// parser expands one wrapper chain token into that same run of nodes.
func serializeWrapChain(nodes []Fragment, idx NodeIndex) string {
	var letters []byte
	cur := idx
	for nodes[cur].Kind == FragWrap {
		n := &nodes[cur]
		letters = append(letters, wrapKindLetter[n.WrapKind])
		cur = n.Child
	}
	return string(letters) + ":" + serializeFragment(nodes, cur)
}
