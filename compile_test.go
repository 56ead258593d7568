// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

const testCompressedKey = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

func TestBuildScriptOlderAfter(t *testing.T) {
	c, err := Parse("older(100)")
	require.NoError(t, err)
	script, err := c.BuildScript()
	require.NoError(t, err)

	want, err := txscript.NewScriptBuilder().
		AddInt64(100).AddOp(txscript.OP_CHECKSEQUENCEVERIFY).Script()
	require.NoError(t, err)
	require.Equal(t, want, script)

	c, err = Parse("after(500000)")
	require.NoError(t, err)
	script, err = c.BuildScript()
	require.NoError(t, err)
	want, err = txscript.NewScriptBuilder().
		AddInt64(500000).AddOp(txscript.OP_CHECKLOCKTIMEVERIFY).Script()
	require.NoError(t, err)
	require.Equal(t, want, script)
}

func TestBuildScriptPkCostMatchesLength(t *testing.T) {
	exprs := []string{
		"pk(" + testCompressedKey + ")",
		"sha256(" + repeatHex("ab", 32) + ")",
		"hash160(" + repeatHex("cd", 20) + ")",
		"and_v(v:pk(" + testCompressedKey + "),pk(" + testCompressedKey + "))",
		"or_d(pk(" + testCompressedKey + "),older(1000))",
		"andor(pk(" + testCompressedKey + "),pk(" + testCompressedKey + "),older(1000))",
		"thresh(2,pk(" + testCompressedKey + "),s:pk(" + testCompressedKey + "),s:pk(" + testCompressedKey + "))",
		"wsh(multi(2," + testCompressedKey + "," + testCompressedKey + "," + testCompressedKey + "))",
	}
	for _, expr := range exprs {
		c, err := Parse(expr)
		require.NoErrorf(t, err, "parse %q", expr)
		script, err := c.BuildScript()
		require.NoErrorf(t, err, "compile %q", expr)
		info := c.TypeOf(c.Root())
		require.Equalf(t, info.PkCost, len(script), "%q: pk_cost mismatch", expr)
	}
}

func TestBuildScriptVerifyMerge(t *testing.T) {
	// c:pk_k(K) has free verify, so v:c:pk_k(K) must fold OP_CHECKSIG
	// straight into OP_CHECKSIGVERIFY instead of appending OP_VERIFY. The
	// t: wrapper restores a B root so the whole expression is parseable.
	c, err := Parse("tvc:pk_k(" + testCompressedKey + ")")
	require.NoError(t, err)
	script, err := c.BuildScript()
	require.NoError(t, err)
	require.Equal(t, byte(txscript.OP_TRUE), script[len(script)-1])
	require.Equal(t, byte(txscript.OP_CHECKSIGVERIFY), script[len(script)-2])
}

func TestMergeVerify(t *testing.T) {
	merged, ok := mergeVerify([]byte{txscript.OP_DUP, txscript.OP_CHECKSIG})
	require.True(t, ok)
	require.Equal(t, []byte{txscript.OP_DUP, txscript.OP_CHECKSIGVERIFY}, merged)

	// OP_CHECKSEQUENCEVERIFY has no VERIFY-suffixed counterpart to fold
	// into, so older()'s script is left untouched.
	_, ok = mergeVerify([]byte{txscript.OP_CHECKSEQUENCEVERIFY})
	require.False(t, ok)

	_, ok = mergeVerify(nil)
	require.False(t, ok)
}

func repeatHex(pair string, n int) string {
	s := make([]byte, 0, len(pair)*n)
	for i := 0; i < n; i++ {
		s = append(s, pair...)
	}
	return string(s)
}
