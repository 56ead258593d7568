// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

// testOracle is a map-backed Satisfier. Keys are indexed by identifier,
// preimages by hex image. A nil map means "no opinion" (ok=false); an
// entry with a nil value means "known but unavailable".
type testOracle struct {
	sigs      map[string][]byte
	preimages map[string][]byte
	older     *bool
	after     *bool
}

func (o *testOracle) CheckOlder(locktime uint32) (bool, bool) {
	if o.older == nil {
		return false, false
	}
	return *o.older, true
}

func (o *testOracle) CheckAfter(locktime uint32) (bool, bool) {
	if o.after == nil {
		return false, false
	}
	return *o.after, true
}

func (o *testOracle) Sign(key *Key) ([]byte, bool, bool) {
	if o.sigs == nil {
		return nil, false, false
	}
	sig, found := o.sigs[key.Identifier()]
	if !found {
		return nil, false, false
	}
	return sig, sig != nil, true
}

func (o *testOracle) Preimage(fn HashFunc, image []byte) ([]byte, bool, bool) {
	if o.preimages == nil {
		return nil, false, false
	}
	pre, found := o.preimages[hex.EncodeToString(image)]
	if !found {
		return nil, false, false
	}
	return pre, pre != nil, true
}

func boolPtr(b bool) *bool { return &b }

// fakeSig returns a distinct placeholder signature per tag. The satisfier
// never inspects signature bytes, only their presence.
func fakeSig(tag byte) []byte {
	sig := make([]byte, 72)
	for i := range sig {
		sig[i] = tag
	}
	return sig
}

func fullOracle() *testOracle {
	return &testOracle{
		sigs: map[string][]byte{
			keyA: fakeSig(1),
			keyB: fakeSig(2),
			keyC: fakeSig(3),
		},
		older: boolPtr(true),
		after: boolPtr(true),
	}
}

const keyC = "03fff97bd5755eeea420453a14355235d382f6472f8568a18b2f057a1460297556"

func TestSatisfyPk(t *testing.T) {
	c, err := Parse("pk(" + keyA + ")")
	require.NoError(t, err)

	dsat, sat, err := c.Satisfy(fullOracle())
	require.NoError(t, err)

	require.True(t, sat.Available)
	require.True(t, sat.HasSig)
	require.False(t, sat.Malleable)
	require.Equal(t, [][]byte{fakeSig(1)}, sat.Witness)

	require.True(t, dsat.Available)
	require.False(t, dsat.HasSig)
	require.Equal(t, [][]byte{{}}, dsat.Witness)
}

func TestSatisfyPkh(t *testing.T) {
	c, err := Parse("sh(pkh(" + keyA + "))")
	require.NoError(t, err)

	keyPush, err := hex.DecodeString(keyA)
	require.NoError(t, err)

	dsat, sat, err := c.Satisfy(fullOracle())
	require.NoError(t, err)
	require.Equal(t, [][]byte{fakeSig(1), keyPush}, sat.Witness)
	require.Equal(t, [][]byte{{}, keyPush}, dsat.Witness)
}

func TestSatisfyMissingSignature(t *testing.T) {
	c, err := Parse("pk(" + keyA + ")")
	require.NoError(t, err)

	_, _, err = c.Satisfy(&testOracle{})
	require.Error(t, err)
	require.Equal(t, ErrMissingSignature, err.(*Error).Code)
}

func TestSatisfyUnavailableSignature(t *testing.T) {
	c, err := Parse("pk(" + keyA + ")")
	require.NoError(t, err)

	// Known key, no signature right now.
	_, sat, err := c.Satisfy(&testOracle{sigs: map[string][]byte{keyA: nil}})
	require.NoError(t, err)
	require.False(t, sat.Available)
}

func TestSatisfyHash(t *testing.T) {
	image := repeatHex("ab", 32)
	preimage := bytes.Repeat([]byte{0x77}, 32)

	c, err := Parse("sha256(" + image + ")")
	require.NoError(t, err)

	oracle := &testOracle{preimages: map[string][]byte{image: preimage}}
	dsat, sat, err := c.Satisfy(oracle)
	require.NoError(t, err)

	require.Equal(t, [][]byte{preimage}, sat.Witness)
	require.False(t, sat.HasSig)

	require.Equal(t, [][]byte{make([]byte, 32)}, dsat.Witness)
	require.True(t, dsat.Malleable)
}

func TestSatisfyHashWrongPreimageLength(t *testing.T) {
	image := repeatHex("ab", 32)
	c, err := Parse("hash256(" + image + ")")
	require.NoError(t, err)

	oracle := &testOracle{preimages: map[string][]byte{image: {1, 2, 3}}}
	_, _, err = c.Satisfy(oracle)
	require.Error(t, err)
	require.Equal(t, ErrInvalidPreimage, err.(*Error).Code)
}

func TestSatisfyMissingLocktime(t *testing.T) {
	c, err := Parse("older(144)")
	require.NoError(t, err)

	_, _, err = c.Satisfy(&testOracle{})
	require.Error(t, err)
	require.Equal(t, ErrMissingLockTime, err.(*Error).Code)
}

func TestSatisfyTimelock(t *testing.T) {
	c, err := Parse("older(144)")
	require.NoError(t, err)

	_, sat, err := c.Satisfy(&testOracle{older: boolPtr(true)})
	require.NoError(t, err)
	require.True(t, sat.Available)
	require.Empty(t, sat.Witness)

	_, sat, err = c.Satisfy(&testOracle{older: boolPtr(false)})
	require.NoError(t, err)
	require.False(t, sat.Available)
}

func TestSatisfyAndV(t *testing.T) {
	c, err := Parse("and_v(v:pk(" + keyA + "),pk(" + keyB + "))")
	require.NoError(t, err)

	_, sat, err := c.Satisfy(fullOracle())
	require.NoError(t, err)
	require.True(t, sat.Available)
	require.True(t, sat.HasSig)
	// Y's witness sits below X's push order: [sigB, sigA] with sigA on top.
	require.Equal(t, [][]byte{fakeSig(2), fakeSig(1)}, sat.Witness)
}

func TestSatisfyAndOr(t *testing.T) {
	// andor(X,Y,Z) = or(and(X,Y), and(not X, Z)).
	c, err := Parse("andor(pk(" + keyA + "),pk(" + keyB + "),older(144))")
	require.NoError(t, err)

	// With A's signature withheld and the timelock passing, the only
	// available satisfaction is Z plus X's dissatisfaction.
	oracle := &testOracle{
		sigs:  map[string][]byte{keyA: nil, keyB: fakeSig(2)},
		older: boolPtr(true),
	}
	_, sat, err := c.Satisfy(oracle)
	require.NoError(t, err)
	require.True(t, sat.Available)
	require.Equal(t, [][]byte{{}}, sat.Witness) // Z is a bare timelock
	require.False(t, sat.HasSig)
}

func TestSatisfyOrPrefersUnsigned(t *testing.T) {
	// Both branches available: the signature-free one wins, and because a
	// third party could produce it, the result carries no signature.
	c, err := Parse("or_d(pk(" + keyA + "),older(144))")
	require.NoError(t, err)

	_, sat, err := c.Satisfy(fullOracle())
	require.NoError(t, err)
	require.True(t, sat.Available)
	require.False(t, sat.HasSig)
	require.Equal(t, [][]byte{{}}, sat.Witness)

	// With the timelock failing, the signed branch is the only choice.
	oracle := fullOracle()
	oracle.older = boolPtr(false)
	_, sat, err = c.Satisfy(oracle)
	require.NoError(t, err)
	require.True(t, sat.Available)
	require.True(t, sat.HasSig)
	require.Equal(t, [][]byte{fakeSig(1)}, sat.Witness)
}

func TestSatisfyOrBothUnsignedMalleable(t *testing.T) {
	image1 := repeatHex("aa", 32)
	image2 := repeatHex("bb", 32)
	c, err := Parse("or_b(sha256(" + image1 + "),a:sha256(" + image2 + "))")
	require.NoError(t, err)

	oracle := &testOracle{preimages: map[string][]byte{
		image1: bytes.Repeat([]byte{1}, 32),
		image2: bytes.Repeat([]byte{2}, 32),
	}}
	_, sat, err := c.Satisfy(oracle)
	require.NoError(t, err)
	require.True(t, sat.Available)
	require.True(t, sat.Malleable)
}

func TestSatisfyOrI(t *testing.T) {
	c, err := Parse("or_i(pk(" + keyA + "),older(144))")
	require.NoError(t, err)

	oracle := fullOracle()
	oracle.older = boolPtr(false)
	dsat, sat, err := c.Satisfy(oracle)
	require.NoError(t, err)
	// Taking the left branch pushes the branch bit 1 on top.
	require.Equal(t, [][]byte{fakeSig(1), {1}}, sat.Witness)
	// or_i's canonical dissatisfaction takes a dissatisfiable branch.
	require.True(t, dsat.Available)
	require.Equal(t, [][]byte{{}, {1}}, dsat.Witness)
}

func TestSatisfyThresh(t *testing.T) {
	c, err := Parse("wsh(thresh(2,pk(" + keyA + "),s:pk(" + keyB + "),s:pk(" + keyC + ")))")
	require.NoError(t, err)

	dsat, sat, err := c.Satisfy(fullOracle())
	require.NoError(t, err)

	require.True(t, sat.Available)
	require.True(t, sat.HasSig)
	require.Len(t, sat.Witness, 3)
	signed := 0
	for _, item := range sat.Witness {
		if len(item) > 0 {
			signed++
		}
	}
	require.Equal(t, 2, signed)

	// The canonical dissatisfaction dissatisfies every child.
	require.True(t, dsat.Available)
	require.False(t, dsat.HasSig)
	require.False(t, dsat.Malleable)
	require.Equal(t, [][]byte{{}, {}, {}}, dsat.Witness)
}

func TestSatisfyMulti(t *testing.T) {
	c, err := Parse("wsh(multi(2," + keyA + "," + keyB + "," + keyC + "))")
	require.NoError(t, err)

	dsat, sat, err := c.Satisfy(fullOracle())
	require.NoError(t, err)

	// CHECKMULTISIG's extra pop: one leading empty push, then k signatures.
	require.Len(t, sat.Witness, 3)
	require.Equal(t, []byte{}, sat.Witness[0])
	require.True(t, sat.HasSig)

	// Dissatisfaction is k+1 empty pushes.
	require.Equal(t, [][]byte{{}, {}, {}}, dsat.Witness)
	require.True(t, dsat.Available)
}

func TestSatisfyMultiA(t *testing.T) {
	// The tr() root itself is unsatisfiable, regardless of the script-path
	// tree beneath it.
	c, err := Parse("tr(" + keyC + ",multi_a(1," + keyA + "," + keyB + "))")
	require.NoError(t, err)
	_, _, err = c.Satisfy(fullOracle())
	require.Error(t, err)
	require.Equal(t, ErrTaprootNotSupported, err.(*Error).Code)
}

func TestSatisfyTaprootKeyPath(t *testing.T) {
	c, err := Parse("tr(" + keyA + ")")
	require.NoError(t, err)
	_, _, err = c.Satisfy(fullOracle())
	require.Error(t, err)
	require.Equal(t, ErrTaprootNotSupported, err.(*Error).Code)
}

func TestSatisfyDWrapper(t *testing.T) {
	c, err := Parse("dv:older(144)")
	require.NoError(t, err)

	dsat, sat, err := c.Satisfy(fullOracle())
	require.NoError(t, err)
	require.Equal(t, [][]byte{{1}}, sat.Witness)
	require.Equal(t, [][]byte{{}}, dsat.Witness)
}

func TestSatisfyJWrapper(t *testing.T) {
	c, err := Parse("j:pk(" + keyA + ")")
	require.NoError(t, err)

	dsat, sat, err := c.Satisfy(fullOracle())
	require.NoError(t, err)
	require.Equal(t, [][]byte{fakeSig(1)}, sat.Witness)
	// pk's dissatisfaction is available without a signature, so the
	// wrapper's zero dissatisfaction is malleable.
	require.Equal(t, [][]byte{{}}, dsat.Witness)
	require.True(t, dsat.Malleable)
}

func TestSatisfyVWrapperNoDissatisfaction(t *testing.T) {
	c, err := Parse("and_v(v:pk(" + keyA + "),pk(" + keyB + "))")
	require.NoError(t, err)

	dsat, _, err := c.Satisfy(fullOracle())
	require.NoError(t, err)
	// The only dissatisfaction routes through v:'s child satisfaction, so
	// it must carry A's signature.
	require.True(t, dsat.HasSig)
}

// TestSatisfyFullOracleSignedExpressions: with an oracle that can satisfy
// everything, any expression whose every spending path needs a key must
// produce an available, signed satisfaction.
func TestSatisfyFullOracleSignedExpressions(t *testing.T) {
	image := repeatHex("cd", 32)
	exprs := []string{
		"pk(" + keyA + ")",
		"sh(pkh(" + keyB + "))",
		"and_v(v:pk(" + keyA + "),pk(" + keyB + "))",
		"and_b(pk(" + keyA + "),a:pk(" + keyB + "))",
		"wsh(multi(2," + keyA + "," + keyB + "))",
		"and_v(v:sha256(" + image + "),pk(" + keyC + "))",
	}
	oracle := fullOracle()
	oracle.preimages = map[string][]byte{image: bytes.Repeat([]byte{9}, 32)}

	for _, expr := range exprs {
		c, err := Parse(expr)
		require.NoErrorf(t, err, "parse %q", expr)
		_, sat, err := c.Satisfy(oracle)
		require.NoErrorf(t, err, "satisfy %q", expr)
		require.Truef(t, sat.Available, "%q: sat must be available", expr)
		require.Truef(t, sat.HasSig, "%q: sat must carry a signature", expr)
	}
}

func TestSatisfactionOrOrdering(t *testing.T) {
	signed := Satisfaction{Witness: [][]byte{fakeSig(1)}, Available: true, HasSig: true}
	unsigned := Satisfaction{Witness: [][]byte{{1}}, Available: true}
	unavailable := Satisfaction{}

	// Availability dominates.
	require.True(t, unavailable.or(signed).Available)
	require.True(t, signed.or(unavailable).HasSig)

	// A signature-free alternative beats a signed one.
	require.False(t, signed.or(unsigned).HasSig)
	require.False(t, unsigned.or(signed).HasSig)

	// Two signed candidates: the smaller non-malleable one wins.
	smaller := Satisfaction{Witness: [][]byte{fakeSig(2)[:10]}, Available: true, HasSig: true}
	require.Equal(t, smaller.Witness, signed.or(smaller).Witness)

	malleable := Satisfaction{Witness: [][]byte{{2}}, Available: true, HasSig: true, Malleable: true}
	require.False(t, signed.or(malleable).Malleable)
}
