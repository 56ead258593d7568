// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

// HashFunc names the hash function behind a Sha256/Hash256/Ripemd160/
// Hash160 fragment, passed to Satisfier.Preimage so one oracle method can
// serve all four.
type HashFunc int

const (
	HashSha256 HashFunc = iota
	HashRipemd160
	HashHash256
	HashHash160
)

// Satisfier is the caller-supplied oracle the DP satisfier queries for
// everything it cannot derive from the AST alone: whether a timelock is
// satisfied by the spending transaction, a signature for a key, and a hash
// preimage. Every method returns ok=false when the oracle has no opinion
// at all (as opposed to an opinion that the witness is unavailable), which
// Satisfy surfaces as a dedicated error rather than silently treating the
// fragment as unsatisfiable.
type Satisfier interface {
	// CheckOlder reports whether the transaction's nSequence satisfies
	// OP_CHECKSEQUENCEVERIFY with the given relative locktime.
	CheckOlder(locktime uint32) (satisfied, ok bool)
	// CheckAfter reports whether the transaction's nLockTime satisfies
	// OP_CHECKLOCKTIMEVERIFY with the given absolute locktime.
	CheckAfter(locktime uint32) (satisfied, ok bool)
	// Sign returns a signature for key. available is false when the
	// caller knows the key but cannot produce a signature right now
	// (e.g. a hardware signer that is offline).
	Sign(key *Key) (sig []byte, available bool, ok bool)
	// Preimage returns the preimage of image under fn. available is
	// false when the caller knows of the hash but does not hold its
	// preimage.
	Preimage(fn HashFunc, image []byte) (preimage []byte, available bool, ok bool)
}

// Satisfaction is one candidate witness for a fragment: a stack of
// push-only witness elements plus the three flags the DP's `or` combinator
// orders candidates by.
type Satisfaction struct {
	Witness   [][]byte
	Available bool
	Malleable bool
	HasSig    bool
}

func satEmpty() Satisfaction       { return Satisfaction{Available: true} }
func satUnavailable() Satisfaction { return Satisfaction{} }
func satZero() Satisfaction        { return Satisfaction{Witness: [][]byte{{}}, Available: true} }
func satOne() Satisfaction         { return Satisfaction{Witness: [][]byte{{1}}, Available: true} }
func satWitness(b []byte) Satisfaction {
	return Satisfaction{Witness: [][]byte{b}, Available: true}
}

func (s Satisfaction) withSig() Satisfaction {
	s.HasSig = true
	return s
}

func (s Satisfaction) setAvailable(a bool) Satisfaction {
	s.Available = a
	return s
}

func (s Satisfaction) setMalleable(m bool) Satisfaction {
	s.Malleable = m
	return s
}

// and concatenates two witnesses: used to stack a fragment's own push on
// top of (or beneath) its children's.
func (s Satisfaction) and(o Satisfaction) Satisfaction {
	w := make([][]byte, 0, len(s.Witness)+len(o.Witness))
	w = append(w, s.Witness...)
	w = append(w, o.Witness...)
	return Satisfaction{
		Witness:   w,
		Available: s.Available && o.Available,
		Malleable: s.Malleable || o.Malleable,
		HasSig:    s.HasSig || o.HasSig,
	}
}

// or picks the better of two equivalent witnesses: prefer available, then,
// when exactly one carries a signature, prefer the one without it (a third
// party could produce the signature-free witness anyway). If neither
// candidate carries a signature, both become malleable — a third party could
// swap in the other branch's equally valid witness. Among two signed
// candidates, prefer non-malleable. Remaining ties go to the smaller witness.
func (s Satisfaction) or(o Satisfaction) Satisfaction {
	self, other := s, o

	if !self.Available {
		return other
	}
	if !other.Available {
		return self
	}
	if !self.HasSig && other.HasSig {
		return self
	}
	if self.HasSig && !other.HasSig {
		return other
	}
	if !self.HasSig && !other.HasSig {
		self.Malleable = true
		other.Malleable = true
	} else {
		if other.Malleable && !self.Malleable {
			return self
		}
		if self.Malleable && !other.Malleable {
			return other
		}
	}
	if witnessSize(self.Witness) <= witnessSize(other.Witness) {
		return self
	}
	return other
}

func witnessSize(w [][]byte) int {
	n := 0
	for _, item := range w {
		n += len(item)
	}
	return n
}

// satPair is the (dsat, sat) result the DP computes for one node.
type satPair struct {
	dsat Satisfaction
	sat  Satisfaction
}

// Satisfy runs the DP satisfier over c against oracle, returning the best
// dissatisfaction and satisfaction witness for the root, in that order.
func (c *Context) Satisfy(oracle Satisfier) (dsat, sat Satisfaction, err error) {
	memo := make([]satPair, len(c.nodes))
	for i := range c.nodes {
		p, err := satisfyNode(c.nodes, NodeIndex(i), memo, oracle)
		if err != nil {
			return Satisfaction{}, Satisfaction{}, err
		}
		memo[i] = p
	}
	root := memo[c.root]
	return root.dsat, root.sat, nil
}

func satisfyNode(nodes []Fragment, idx NodeIndex, memo []satPair, s Satisfier) (satPair, error) {
	n := &nodes[idx]

	switch n.Kind {
	case FragFalse:
		return satPair{dsat: satEmpty(), sat: satUnavailable()}, nil

	case FragTrue:
		return satPair{dsat: satUnavailable(), sat: satEmpty()}, nil

	case FragPkK:
		return satisfyPkK(n.Key, s)

	case FragPkH, FragRawPkH:
		return satisfyPkH(n.Key, s)

	case FragOlder:
		ok, known := s.CheckOlder(n.Locktime)
		if !known {
			return satPair{}, newErrorf(ErrMissingLockTime, n.Pos, "older(%d)", n.Locktime)
		}
		if ok {
			return satPair{dsat: satUnavailable(), sat: satEmpty()}, nil
		}
		return satPair{dsat: satUnavailable(), sat: satUnavailable()}, nil

	case FragAfter:
		ok, known := s.CheckAfter(n.Locktime)
		if !known {
			return satPair{}, newErrorf(ErrMissingLockTime, n.Pos, "after(%d)", n.Locktime)
		}
		if ok {
			return satPair{dsat: satUnavailable(), sat: satEmpty()}, nil
		}
		return satPair{dsat: satUnavailable(), sat: satUnavailable()}, nil

	case FragSha256:
		return satisfyHash(HashSha256, n.Hash, s)
	case FragHash256:
		return satisfyHash(HashHash256, n.Hash, s)
	case FragRipemd160:
		return satisfyHash(HashRipemd160, n.Hash, s)
	case FragHash160:
		return satisfyHash(HashHash160, n.Hash, s)

	case FragAndOr:
		x, y, z := memo[n.Children[0]], memo[n.Children[1]], memo[n.Children[2]]
		return satPair{
			dsat: z.dsat.and(x.dsat).or(y.dsat.and(x.sat)),
			sat:  y.sat.and(x.sat).or(z.sat.and(x.dsat)),
		}, nil

	case FragAndV:
		x, y := memo[n.Children[0]], memo[n.Children[1]]
		return satPair{dsat: y.dsat.and(x.sat), sat: y.sat.and(x.sat)}, nil

	case FragAndB:
		x, y := memo[n.Children[0]], memo[n.Children[1]]
		return satPair{
			dsat: y.dsat.and(x.dsat).
				or(y.sat.and(x.dsat).setMalleable(true)).
				or(y.dsat.and(x.sat).setMalleable(true)),
			sat: y.sat.and(x.sat),
		}, nil

	case FragOrB:
		x, z := memo[n.Children[0]], memo[n.Children[1]]
		return satPair{
			dsat: z.dsat.and(x.dsat),
			sat: z.dsat.and(x.sat).
				or(z.sat.and(x.dsat)).
				or(z.sat.and(x.sat).setMalleable(true)),
		}, nil

	case FragOrC:
		x, z := memo[n.Children[0]], memo[n.Children[1]]
		return satPair{dsat: satUnavailable(), sat: x.sat.or(z.sat.and(x.dsat))}, nil

	case FragOrD:
		x, z := memo[n.Children[0]], memo[n.Children[1]]
		return satPair{dsat: z.dsat.and(x.dsat), sat: x.sat.or(z.sat.and(x.dsat))}, nil

	case FragOrI:
		x, z := memo[n.Children[0]], memo[n.Children[1]]
		return satPair{
			dsat: x.dsat.and(satOne()).or(z.dsat.and(satZero())),
			sat:  x.sat.and(satOne()).or(z.sat.and(satZero())),
		}, nil

	case FragThresh:
		return satisfyThresh(n, memo)

	case FragMulti:
		return satisfyMulti(n, s)

	case FragMultiA:
		return satisfyMultiA(n, s)

	case FragWrap:
		return satisfyWrap(n, memo[n.Child])

	case FragRawTr:
		return satPair{}, newError(ErrTaprootNotSupported, n.Pos, "")

	default:
		return satPair{}, newErrorf(ErrUnexpectedType, n.Pos, "unknown fragment kind %d", n.Kind)
	}
}

func satisfyPkK(key *Key, s Satisfier) (satPair, error) {
	sig, avail, ok := s.Sign(key)
	if !ok {
		return satPair{}, newError(ErrMissingSignature, NoPosition, key.Identifier())
	}
	return satPair{
		dsat: satZero(),
		sat:  satWitness(sig).withSig().setAvailable(avail),
	}, nil
}

func satisfyPkH(key *Key, s Satisfier) (satPair, error) {
	sig, avail, ok := s.Sign(key)
	if !ok {
		return satPair{}, newError(ErrMissingSignature, NoPosition, key.Identifier())
	}
	definite, ok := key.AsDefinite()
	if !ok {
		return satPair{}, newError(ErrSatisfyNonDefiniteKey, NoPosition, key.Identifier())
	}
	keyBytes := satWitness(definite.Bytes())
	return satPair{
		dsat: satZero().and(keyBytes),
		sat:  satWitness(sig).withSig().setAvailable(avail).and(keyBytes),
	}, nil
}

func satisfyHash(fn HashFunc, image []byte, s Satisfier) (satPair, error) {
	preimage, avail, ok := s.Preimage(fn, image)
	if !ok {
		return satPair{}, newError(ErrMissingPreimage, NoPosition, "")
	}
	if avail && len(preimage) != 32 {
		return satPair{}, newError(ErrInvalidPreimage, NoPosition, "")
	}
	zeros := make([]byte, 32)
	return satPair{
		dsat: satWitness(zeros).setMalleable(true),
		sat:  satWitness(preimage).setAvailable(avail),
	}, nil
}

// satisfyThresh runs the classic DP over the k-of-n threshold's children:
// sats[j] is the best witness satisfying exactly j of the (remaining)
// subexpressions, folded in from the last child to the first.
func satisfyThresh(n *Fragment, memo []satPair) (satPair, error) {
	xs := n.Children
	count := len(xs)
	sats := make([]Satisfaction, 1, count+1)
	sats[0] = satEmpty()

	for i := 0; i < count; i++ {
		res := memo[xs[count-1-i]]
		next := make([]Satisfaction, 0, len(sats)+1)
		next = append(next, sats[0].and(res.dsat))
		for j := 1; j < len(sats); j++ {
			next = append(next, sats[j].and(res.dsat).or(sats[j-1].and(res.sat)))
		}
		next = append(next, sats[len(sats)-1].and(res.sat))
		sats = next
	}

	if n.K < 0 || n.K >= len(sats) {
		return satPair{}, newError(ErrThresholdIndexOutOfRange, n.Pos, "")
	}

	nsat := satUnavailable()
	for i := range sats {
		if i != 0 && i != n.K {
			sats[i] = sats[i].setMalleable(true)
		}
		if i != n.K {
			nsat = nsat.or(sats[i])
		}
	}
	return satPair{dsat: nsat, sat: sats[n.K]}, nil
}

// satisfyMulti runs the same DP over the key list, prepending a zero
// dissatisfaction element to every candidate (sats[0] starts at satZero(),
// not satEmpty()) to account for OP_CHECKMULTISIG's extra-pop bug.
func satisfyMulti(n *Fragment, s Satisfier) (satPair, error) {
	sats := make([]Satisfaction, 1, len(n.Keys)+1)
	sats[0] = satZero()

	for _, key := range n.Keys {
		sig, avail, ok := s.Sign(key)
		if !ok {
			return satPair{}, newError(ErrMissingSignature, NoPosition, key.Identifier())
		}
		sat := satWitness(sig).withSig().setAvailable(avail)

		next := make([]Satisfaction, 0, len(sats)+1)
		next = append(next, sats[0])
		for j := 1; j < len(sats); j++ {
			next = append(next, sats[j].or(sats[j-1].and(sat)))
		}
		next = append(next, sats[len(sats)-1].and(sat))
		sats = next
	}

	if n.K < 0 || n.K >= len(sats) {
		return satPair{}, newError(ErrThresholdIndexOutOfRange, n.Pos, "")
	}

	nsat := satZero()
	for i := 0; i < n.K; i++ {
		nsat = nsat.and(satZero())
	}
	return satPair{dsat: nsat, sat: sats[n.K]}, nil
}

// satisfyMultiA runs the analogous DP for multi_a, signing keys in reverse
// order (the first key's signature must end on top of the witness stack,
// the opposite of CHECKMULTISIG's convention) and with no extra-pop bug, so
// sats[0] starts at satEmpty() padded with one satZero() per key considered.
func satisfyMultiA(n *Fragment, s Satisfier) (satPair, error) {
	count := len(n.Keys)
	sats := make([]Satisfaction, 1, count+1)
	sats[0] = satEmpty()

	for i := 0; i < count; i++ {
		key := n.Keys[count-1-i]
		sig, avail, ok := s.Sign(key)
		if !ok {
			return satPair{}, newError(ErrMissingSignature, NoPosition, key.Identifier())
		}
		sat := satWitness(sig).withSig().setAvailable(avail)

		next := make([]Satisfaction, 0, len(sats)+1)
		next = append(next, sats[0].and(satZero()))
		for j := 1; j < len(sats); j++ {
			next = append(next, sats[j].and(satZero()).or(sats[j-1].and(sat)))
		}
		next = append(next, sats[len(sats)-1].and(sat))
		sats = next
	}

	if n.K <= 0 || n.K >= len(sats) {
		return satPair{}, newError(ErrThresholdIndexOutOfRange, n.Pos, "")
	}
	return satPair{dsat: sats[0], sat: sats[n.K]}, nil
}

func satisfyWrap(n *Fragment, x satPair) (satPair, error) {
	switch n.WrapKind {
	case WrapD:
		return satPair{dsat: satZero(), sat: x.sat.and(satOne())}, nil
	case WrapV:
		return satPair{dsat: satUnavailable(), sat: x.sat}, nil
	case WrapJ:
		return satPair{
			dsat: satZero().setMalleable(x.dsat.Available && !x.dsat.HasSig),
			sat:  x.sat,
		}, nil
	default:
		// a:, s:, c:, n: are witness-transparent: the wrapper changes
		// only the script, not the satisfying witness.
		return x, nil
	}
}
