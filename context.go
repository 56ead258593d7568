// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

// Context holds a fully parsed, type-checked, validated, and limit-checked
// descriptor: a flat fragment arena, the index of its root, the type
// information computed for every node, and the descriptor kind(s) that
// enclosed it.
type Context struct {
	nodes []Fragment
	root  NodeIndex
	types []TypeInfo

	topLevelDescriptor DescriptorKind
	innerDescriptor    DescriptorKind
}

// Parse runs the full pipeline described by the library surface: tokenize,
// parse, type-check, descriptor-validate, and limit-check. A *Context
// returned from Parse holding an extended key that has not been derived
// fails BuildScript and BuildAddress with ErrNonDefiniteKey until Derive
// is called.
func Parse(input string) (*Context, error) {
	toks, err := Tokenize(input)
	if err != nil {
		return nil, err
	}

	p := newParser(toks)
	root, err := p.parseDescriptor()
	if err != nil {
		return nil, err
	}
	if err := p.consumeTrailer(input); err != nil {
		return nil, err
	}

	types, err := typeCheck(p.ast)
	if err != nil {
		return nil, err
	}
	// The root-B rule applies to Miniscript expressions; the raw key inside
	// pkh()/wpkh() is not one (it compiles to a fixed output template), and
	// a tr() root already reports B from its own rule.
	if p.ast[root].Kind != FragRawPkH && types[root].Base != TypeB {
		return nil, newError(ErrNonTopLevel, p.ast[root].Pos, "")
	}

	if err := validateDescriptor(p.ast, root, p.innerDescriptor); err != nil {
		return nil, err
	}

	if err := checkRecursionDepth(types[root].TreeHeight); err != nil {
		return nil, err
	}
	if err := checkScriptSize(p.innerDescriptor, types[root].PkCost); err != nil {
		return nil, err
	}

	return &Context{
		nodes:              p.ast,
		root:               root,
		types:              types,
		topLevelDescriptor: p.topLevelDescriptor,
		innerDescriptor:    p.innerDescriptor,
	}, nil
}

// Root returns the index of the root fragment.
func (c *Context) Root() NodeIndex { return c.root }

// TopLevelDescriptor returns the outermost descriptor kind: the one named
// directly at the start of the input, or DescriptorBare when none was
// present.
func (c *Context) TopLevelDescriptor() DescriptorKind { return c.topLevelDescriptor }

// InnerDescriptor returns the descriptor kind that governs key parsing and
// validation for the Miniscript expression itself: the same as
// TopLevelDescriptor, except for sh(wsh(...))/sh(wpkh(...)) where it is
// DescriptorShWsh.
func (c *Context) InnerDescriptor() DescriptorKind { return c.innerDescriptor }

// IsWrapped reports whether the top-level descriptor is Sh (bare P2SH,
// including the sh(wsh(...))/sh(wpkh(...)) nested forms).
func (c *Context) IsWrapped() bool { return c.topLevelDescriptor == DescriptorSh }

// TypeOf returns the computed TypeInfo for node idx.
func (c *Context) TypeOf(idx NodeIndex) TypeInfo { return c.types[idx] }

// Derive replaces every extended (wildcard) key in the tree with its
// definite derivation at index, in place. It fails as soon as any key fails
// to derive, leaving earlier keys already replaced; callers that need
// atomicity should Derive a cloned Context.
func (c *Context) Derive(index uint32) error {
	return c.IterateKeysMut(func(k *Key) (*Key, error) {
		return k.Derive(index)
	})
}

// IterateKeys calls cb with every key reachable from the root, in tree
// order, stopping at the first error.
func (c *Context) IterateKeys(cb func(*Key) error) error {
	return c.IterateKeysMut(func(k *Key) (*Key, error) {
		return k, cb(k)
	})
}

// IterateKeysMut calls cb with every key reachable from the root and
// replaces it with cb's return value, stopping at the first error.
func (c *Context) IterateKeysMut(cb func(*Key) (*Key, error)) error {
	for i := range c.nodes {
		n := &c.nodes[i]
		switch n.Kind {
		case FragPkK, FragPkH, FragRawPkH:
			if n.Key == nil {
				continue
			}
			k, err := cb(n.Key)
			if err != nil {
				return err
			}
			n.Key = k
		case FragMulti, FragMultiA:
			for j, k := range n.Keys {
				nk, err := cb(k)
				if err != nil {
					return err
				}
				n.Keys[j] = nk
			}
		case FragRawTr:
			if n.TrKey == nil {
				continue
			}
			k, err := cb(n.TrKey)
			if err != nil {
				return err
			}
			n.TrKey = k
		}
	}
	return nil
}
