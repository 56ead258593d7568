// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

// Base types, as a one-hot bitset: a fragment has exactly one.
type BaseType uint8

const (
	TypeB BaseType = 1 << iota // Base: pushes 0 or 1 onto a clean stack
	TypeV                      // Verify: consumes the top of the stack, or fails the script
	TypeK                      // Key: pushes a public key
	TypeW                      // Wrapped: expects a stack with one extra element beneath it
)

// Correctness properties, as a bitset: a fragment has any subset.
type Property uint8

const (
	PropZ Property = 1 << iota // Zero-arg: consumes no witness elements
	PropO                      // One-arg: consumes exactly one witness element
	PropN                      // Nonzero: the top witness element, if consumed, is never empty
	PropD                      // Dissatisfiable: has a canonical dissatisfaction
	PropU                      // Unit: satisfaction leaves exactly "1" (not some other nonzero value) on success
)

// TypeInfo is the result of type-checking one AST node: its base type, its
// properties, and the bookkeeping the limits checker and script compiler
// need (serialized script cost, free-verify eligibility, tree height).
type TypeInfo struct {
	Base          BaseType
	Props         Property
	PkCost        int
	HasFreeVerify bool
	TreeHeight    int
}

func (t TypeInfo) hasProp(p Property) bool {
	return t.Props&p != 0
}

func (t TypeInfo) hasProps(p Property) bool {
	return t.Props&p == p
}

// scriptNumSize returns the number of bytes used to Script-encode the
// unsigned integer n, mirroring Bitcoin Script's CScriptNum minimal push
// encoding: small values collapse to a single OP_1..OP_16/OP_0 opcode.
func scriptNumSize(n uint64) int {
	switch {
	case n <= 0x10:
		return 1
	case n < 0x80:
		return 2
	case n < 0x8000:
		return 3
	case n < 0x800000:
		return 4
	case n < 0x80000000:
		return 5
	default:
		return 6
	}
}

// typeCheck computes the TypeInfo of every node in nodes and returns it
// indexed by NodeIndex. Because the arena is built post-order, a node's
// children always have a strictly smaller index, so one left-to-right
// pass suffices; no recursion or explicit memoization table is needed.
func typeCheck(nodes []Fragment) ([]TypeInfo, error) {
	infos := make([]TypeInfo, len(nodes))
	for i := range nodes {
		info, err := typeCheckNode(nodes, NodeIndex(i), infos)
		if err != nil {
			return nil, err
		}
		infos[i] = info
	}
	return infos, nil
}

func typeCheckNode(nodes []Fragment, idx NodeIndex, infos []TypeInfo) (TypeInfo, error) {
	n := &nodes[idx]
	pos := n.Pos

	switch n.Kind {
	case FragFalse:
		return TypeInfo{Base: TypeB, Props: PropZ | PropU | PropD, PkCost: 1}, nil

	case FragTrue:
		return TypeInfo{Base: TypeB, Props: PropZ | PropU, PkCost: 1}, nil

	case FragPkK:
		return TypeInfo{Base: TypeK, Props: PropO | PropN | PropD | PropU, PkCost: 34}, nil

	case FragPkH, FragRawPkH:
		return TypeInfo{Base: TypeK, Props: PropN | PropD | PropU, PkCost: 24}, nil

	case FragOlder:
		return TypeInfo{Base: TypeB, Props: PropZ, PkCost: scriptNumSize(uint64(n.Locktime)) + 1}, nil

	case FragAfter:
		return TypeInfo{Base: TypeB, Props: PropZ, PkCost: scriptNumSize(uint64(n.Locktime)) + 1}, nil

	case FragSha256, FragHash256:
		return TypeInfo{Base: TypeB, Props: PropO | PropN | PropD | PropU, PkCost: 33 + 6, HasFreeVerify: true}, nil

	case FragRipemd160, FragHash160:
		return TypeInfo{Base: TypeB, Props: PropO | PropN | PropD | PropU, PkCost: 21 + 6, HasFreeVerify: true}, nil

	case FragAndOr:
		x, y, z := infos[n.Children[0]], infos[n.Children[1]], infos[n.Children[2]]
		if x.Base != TypeB {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "andor(X,Y,Z): X must be type B")
		}
		if !x.hasProps(PropD | PropU) {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "andor(X,Y,Z): X must have property du")
		}
		if y.Base != z.Base {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "andor(X,Y,Z): Y and Z must have the same type")
		}
		if y.Base != TypeB && y.Base != TypeK && y.Base != TypeV {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "andor(X,Y,Z): Y must be type B, K, or V")
		}
		var props Property
		if x.hasProp(PropZ) && y.hasProp(PropZ) && z.hasProp(PropZ) {
			props |= PropZ
		}
		if (x.hasProp(PropZ) && y.hasProp(PropO) && z.hasProp(PropO)) ||
			(x.hasProp(PropO) && y.hasProp(PropZ) && z.hasProp(PropZ)) {
			props |= PropO
		}
		if y.hasProp(PropU) && z.hasProp(PropU) {
			props |= PropU
		}
		if z.hasProp(PropD) {
			props |= PropD
		}
		return TypeInfo{
			Base:       y.Base,
			Props:      props,
			PkCost:     x.PkCost + y.PkCost + z.PkCost + 3,
			TreeHeight: 1 + max3(x.TreeHeight, y.TreeHeight, z.TreeHeight),
		}, nil

	case FragAndV:
		x, y := infos[n.Children[0]], infos[n.Children[1]]
		if x.Base != TypeV {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "and_v(X,Y): X must be type V")
		}
		if y.Base != TypeB && y.Base != TypeK && y.Base != TypeV {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "and_v(X,Y): Y must be type B, K, or V")
		}
		var props Property
		if x.hasProp(PropZ) && y.hasProp(PropZ) {
			props |= PropZ
		}
		if (x.hasProp(PropZ) && y.hasProp(PropO)) || (x.hasProp(PropO) && y.hasProp(PropZ)) {
			props |= PropO
		}
		if x.hasProp(PropN) || (x.hasProp(PropZ) && y.hasProp(PropN)) {
			props |= PropN
		}
		if y.hasProp(PropU) {
			props |= PropU
		}
		return TypeInfo{
			Base:          y.Base,
			Props:         props,
			PkCost:        x.PkCost + y.PkCost,
			HasFreeVerify: y.HasFreeVerify,
			TreeHeight:    1 + max2(x.TreeHeight, y.TreeHeight),
		}, nil

	case FragAndB:
		x, y := infos[n.Children[0]], infos[n.Children[1]]
		if x.Base != TypeB {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "and_b(X,Y): X must be type B")
		}
		if y.Base != TypeW {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "and_b(X,Y): Y must be type W")
		}
		var props Property
		if x.hasProp(PropZ) && y.hasProp(PropZ) {
			props |= PropZ
		}
		if (x.hasProp(PropZ) && y.hasProp(PropO)) || (x.hasProp(PropO) && y.hasProp(PropZ)) {
			props |= PropO
		}
		if x.hasProp(PropN) || (x.hasProp(PropZ) && y.hasProp(PropN)) {
			props |= PropN
		}
		if x.hasProp(PropD) && y.hasProp(PropD) {
			props |= PropD
		}
		props |= PropU
		return TypeInfo{
			Base:       TypeB,
			Props:      props,
			PkCost:     x.PkCost + y.PkCost + 1,
			TreeHeight: 1 + max2(x.TreeHeight, y.TreeHeight),
		}, nil

	case FragOrB:
		x, z := infos[n.Children[0]], infos[n.Children[1]]
		if x.Base != TypeB {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "or_b(X,Z): X must be type B")
		}
		if !x.hasProp(PropD) {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "or_b(X,Z): X must have property D")
		}
		if z.Base != TypeW {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "or_b(X,Z): Z must be type W")
		}
		if !z.hasProp(PropD) {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "or_b(X,Z): Z must have property D")
		}
		var props Property
		if x.hasProp(PropZ) && z.hasProp(PropZ) {
			props |= PropZ
		}
		if (x.hasProp(PropZ) && z.hasProp(PropO)) || (x.hasProp(PropO) && z.hasProp(PropZ)) {
			props |= PropO
		}
		props |= PropD | PropU
		return TypeInfo{
			Base:       TypeB,
			Props:      props,
			PkCost:     x.PkCost + z.PkCost + 1,
			TreeHeight: 1 + max2(x.TreeHeight, z.TreeHeight),
		}, nil

	case FragOrC:
		x, z := infos[n.Children[0]], infos[n.Children[1]]
		if x.Base != TypeB {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "or_c(X,Z): X must be type B")
		}
		if !x.hasProps(PropD | PropU) {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "or_c(X,Z): X must have properties D and U")
		}
		if z.Base != TypeV {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "or_c(X,Z): Z must be type V")
		}
		var props Property
		if x.hasProp(PropZ) && z.hasProp(PropZ) {
			props |= PropZ
		}
		if x.hasProp(PropO) && z.hasProp(PropZ) {
			props |= PropO
		}
		return TypeInfo{
			Base:       TypeV,
			Props:      props,
			PkCost:     x.PkCost + z.PkCost + 2,
			TreeHeight: 1 + max2(x.TreeHeight, z.TreeHeight),
		}, nil

	case FragOrD:
		x, z := infos[n.Children[0]], infos[n.Children[1]]
		if x.Base != TypeB {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "or_d(X,Z): X must be type B")
		}
		if !x.hasProps(PropD | PropU) {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "or_d(X,Z): X must have properties D and U")
		}
		if z.Base != TypeB {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "or_d(X,Z): Z must be type B")
		}
		var props Property
		if x.hasProp(PropZ) && z.hasProp(PropZ) {
			props |= PropZ
		}
		if x.hasProp(PropO) && z.hasProp(PropZ) {
			props |= PropO
		}
		if z.hasProp(PropD) {
			props |= PropD
		}
		if z.hasProp(PropU) {
			props |= PropU
		}
		return TypeInfo{
			Base:       TypeB,
			Props:      props,
			PkCost:     x.PkCost + z.PkCost + 3,
			TreeHeight: 1 + max2(x.TreeHeight, z.TreeHeight),
		}, nil

	case FragOrI:
		x, z := infos[n.Children[0]], infos[n.Children[1]]
		if x.Base != z.Base {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "or_i(X,Z): X and Z must have the same type")
		}
		if x.Base != TypeB && x.Base != TypeK && x.Base != TypeV {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "or_i(X,Z): X must be type B, K, or V")
		}
		var props Property
		if x.hasProp(PropZ) && z.hasProp(PropZ) {
			props |= PropO
		}
		if x.hasProp(PropU) && z.hasProp(PropU) {
			props |= PropU
		}
		if x.hasProp(PropD) || z.hasProp(PropD) {
			props |= PropD
		}
		return TypeInfo{
			Base:       x.Base,
			Props:      props,
			PkCost:     x.PkCost + z.PkCost + 3,
			TreeHeight: 1 + max2(x.TreeHeight, z.TreeHeight),
		}, nil

	case FragThresh:
		k := n.K
		xs := n.Children
		if k < 1 {
			return TypeInfo{}, newErrorf(ErrInvalidThreshold, pos, "k=%d", k)
		}
		if len(xs) < k {
			return TypeInfo{}, newErrorf(ErrInvalidThreshold, pos, "k=%d exceeds n=%d", k, len(xs))
		}
		if len(xs) == 0 {
			return TypeInfo{}, newError(ErrEmptyThreshold, pos, "")
		}
		var zCount, oCount int
		totalCost := 1 + scriptNumSize(uint64(k))
		maxHeight := 0
		for i, xi := range xs {
			xt := infos[xi]
			if i == 0 {
				if xt.Base != TypeB {
					return TypeInfo{}, newError(ErrUnexpectedType, pos, "thresh(k,X1,...,Xn): X1 must be type B")
				}
			} else if xt.Base != TypeW {
				return TypeInfo{}, newError(ErrUnexpectedType, pos, "thresh(k,X1,...,Xn): Xi must be type W")
			}
			if !xt.hasProps(PropD | PropU) {
				return TypeInfo{}, newError(ErrUnexpectedType, pos, "thresh(k,X1,...,Xn): Xi must have properties D and U")
			}
			totalCost += xt.PkCost
			if xt.TreeHeight > maxHeight {
				maxHeight = xt.TreeHeight
			}
			if xt.hasProp(PropZ) {
				zCount++
			} else if xt.hasProp(PropO) {
				oCount++
			}
		}
		var props Property
		if zCount == len(xs) {
			props |= PropZ
		}
		if oCount == 1 && zCount == len(xs)-1 {
			props |= PropO
		}
		props |= PropD | PropU
		return TypeInfo{
			Base:          TypeB,
			Props:         props,
			PkCost:        totalCost + len(xs) - 1,
			HasFreeVerify: true,
			TreeHeight:    maxHeight + 1,
		}, nil

	case FragMulti:
		k, n2 := n.K, len(n.Keys)
		if k < 1 {
			return TypeInfo{}, newErrorf(ErrInvalidThreshold, pos, "k=%d", k)
		}
		if n2 < k {
			return TypeInfo{}, newErrorf(ErrInvalidThreshold, pos, "k=%d exceeds n=%d", k, n2)
		}
		if n2 == 0 {
			return TypeInfo{}, newError(ErrEmptyThreshold, pos, "")
		}
		numCost := numCostFor(k, n2)
		return TypeInfo{
			Base:          TypeB,
			Props:         PropN | PropD | PropU,
			PkCost:        numCost + 34*n2 + 1,
			HasFreeVerify: true,
		}, nil

	case FragMultiA:
		k, n2 := n.K, len(n.Keys)
		if k < 1 {
			return TypeInfo{}, newErrorf(ErrInvalidThreshold, pos, "k=%d", k)
		}
		if n2 < k {
			return TypeInfo{}, newErrorf(ErrInvalidThreshold, pos, "k=%d exceeds n=%d", k, n2)
		}
		if n2 == 0 {
			return TypeInfo{}, newError(ErrEmptyThreshold, pos, "")
		}
		numCost := numCostFor(k, n2)
		return TypeInfo{
			Base:          TypeB,
			Props:         PropD | PropU,
			PkCost:        numCost + 33*n2 + (n2 - 1) + 1,
			HasFreeVerify: true,
		}, nil

	case FragWrap:
		x := infos[n.Child]
		return typeCheckWrap(n.WrapKind, x, pos)

	case FragRawTr:
		// A tr() key-path-only output has no base-type constraint on the
		// internal key; with a script path the inner tree must be B, the
		// same rule an sh()/wsh() root obeys.
		if n.TrInner == NoChild {
			return TypeInfo{Base: TypeB, Props: PropZ | PropU | PropD}, nil
		}
		inner := infos[n.TrInner]
		if inner.Base != TypeB {
			return TypeInfo{}, newError(ErrNonTopLevel, pos, "tr() script path must be type B")
		}
		return inner, nil

	default:
		return TypeInfo{}, newErrorf(ErrUnexpectedType, pos, "unknown fragment kind %d", n.Kind)
	}
}

func typeCheckWrap(kind WrapKind, x TypeInfo, pos Position) (TypeInfo, error) {
	switch kind {
	case WrapA:
		if x.Base != TypeB {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "a:X: X must be type B")
		}
		var props Property
		if x.hasProp(PropD) {
			props |= PropD
		}
		if x.hasProp(PropU) {
			props |= PropU
		}
		return TypeInfo{Base: TypeW, Props: props, PkCost: x.PkCost + 2, TreeHeight: x.TreeHeight + 1}, nil

	case WrapS:
		if x.Base != TypeB {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "s:X: X must be type B")
		}
		if !x.hasProp(PropO) {
			return TypeInfo{}, newError(ErrSwapNonOne, pos, "")
		}
		var props Property
		if x.hasProp(PropD) {
			props |= PropD
		}
		if x.hasProp(PropU) {
			props |= PropU
		}
		return TypeInfo{Base: TypeW, Props: props, PkCost: x.PkCost + 1, HasFreeVerify: x.HasFreeVerify, TreeHeight: x.TreeHeight + 1}, nil

	case WrapC:
		if x.Base != TypeK {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "c:X: X must be type K")
		}
		var props Property
		if x.hasProp(PropO) {
			props |= PropO
		}
		if x.hasProp(PropN) {
			props |= PropN
		}
		if x.hasProp(PropD) {
			props |= PropD
		}
		props |= PropU
		return TypeInfo{Base: TypeB, Props: props, PkCost: x.PkCost + 1, HasFreeVerify: true, TreeHeight: x.TreeHeight + 1}, nil

	case WrapD:
		if x.Base != TypeV {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "d:X: X must be type V")
		}
		props := PropO | PropN | PropD | PropU
		return TypeInfo{Base: TypeB, Props: props, PkCost: x.PkCost + 3, TreeHeight: x.TreeHeight + 1}, nil

	case WrapV:
		if x.Base != TypeB {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "v:X: X must be type B")
		}
		var props Property
		if x.hasProp(PropZ) {
			props |= PropZ
		}
		if x.hasProp(PropO) {
			props |= PropO
		}
		if x.hasProp(PropN) {
			props |= PropN
		}
		verifyCost := 1
		if x.HasFreeVerify {
			verifyCost = 0
		}
		return TypeInfo{Base: TypeV, Props: props, PkCost: x.PkCost + verifyCost, TreeHeight: x.TreeHeight + 1}, nil

	case WrapJ:
		if x.Base != TypeB {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "j:X: X must be type B")
		}
		if !x.hasProp(PropN) {
			return TypeInfo{}, newError(ErrNonZeroZero, pos, "")
		}
		var props Property
		if x.hasProp(PropO) {
			props |= PropO
		}
		props |= PropN | PropD
		if x.hasProp(PropU) {
			props |= PropU
		}
		return TypeInfo{Base: TypeB, Props: props, PkCost: x.PkCost + 4, TreeHeight: x.TreeHeight + 1}, nil

	case WrapN:
		if x.Base != TypeB {
			return TypeInfo{}, newError(ErrUnexpectedType, pos, "n:X: X must be type B")
		}
		var props Property
		if x.hasProp(PropZ) {
			props |= PropZ
		}
		if x.hasProp(PropO) {
			props |= PropO
		}
		if x.hasProp(PropN) {
			props |= PropN
		}
		if x.hasProp(PropD) {
			props |= PropD
		}
		props |= PropU
		return TypeInfo{Base: TypeB, Props: props, PkCost: x.PkCost + 1, TreeHeight: x.TreeHeight + 1}, nil

	default:
		return TypeInfo{}, newErrorf(ErrUnexpectedType, pos, "unknown wrapper kind %d", kind)
	}
}

func numCostFor(k, n int) int {
	switch {
	case k > 16 && n > 16:
		return 4
	case n > 16:
		return 3
	case k > 16:
		return 3
	default:
		return 2
	}
}

func max2(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func max3(a, b, c int) int {
	return max2(a, max2(b, c))
}
