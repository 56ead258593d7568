// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func TestBuildAddressKinds(t *testing.T) {
	cases := []struct {
		expr   string
		kind   interface{}
		prefix string
	}{
		{"pkh(" + keyA + ")", (*btcutil.AddressPubKeyHash)(nil), "1"},
		{"wpkh(" + keyA + ")", (*btcutil.AddressWitnessPubKeyHash)(nil), "bc1q"},
		{"wsh(older(144))", (*btcutil.AddressWitnessScriptHash)(nil), "bc1q"},
		{"sh(older(144))", (*btcutil.AddressScriptHash)(nil), "3"},
		{"sh(wsh(older(144)))", (*btcutil.AddressScriptHash)(nil), "3"},
		{"sh(wpkh(" + keyA + "))", (*btcutil.AddressScriptHash)(nil), "3"},
		{"tr(" + keyA + ")", (*btcutil.AddressTaproot)(nil), "bc1p"},
		{"tr(" + keyA + ",pk(" + keyB + "))", (*btcutil.AddressTaproot)(nil), "bc1p"},
	}
	for _, tc := range cases {
		c, err := Parse(tc.expr)
		require.NoErrorf(t, err, "parse %q", tc.expr)
		addr, err := c.BuildAddress(&chaincfg.MainNetParams)
		require.NoErrorf(t, err, "address %q", tc.expr)
		require.IsTypef(t, tc.kind, addr, "%q address type", tc.expr)
		require.Truef(t, strings.HasPrefix(addr.EncodeAddress(), tc.prefix),
			"%q: address %s lacks prefix %s", tc.expr, addr.EncodeAddress(), tc.prefix)
	}
}

func TestBuildAddressBareHasNone(t *testing.T) {
	c, err := Parse("older(144)")
	require.NoError(t, err)
	_, err = c.BuildAddress(&chaincfg.MainNetParams)
	require.Error(t, err)
	require.Equal(t, ErrNoAddressForDescriptor, err.(*Error).Code)
}

func TestBuildAddressUnderivedKeyFails(t *testing.T) {
	c, err := Parse("wpkh(" + testXpub + "/*)")
	require.NoError(t, err)

	_, err = c.BuildAddress(&chaincfg.MainNetParams)
	require.Error(t, err)
	require.Equal(t, ErrNonDefiniteKey, err.(*Error).Code)

	require.NoError(t, c.Derive(0))
	addr, err := c.BuildAddress(&chaincfg.MainNetParams)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(addr.EncodeAddress(), "bc1q"))
}

func TestBuildAddressNetworkParams(t *testing.T) {
	c, err := Parse("wpkh(" + keyA + ")")
	require.NoError(t, err)

	mainnet, err := c.BuildAddress(&chaincfg.MainNetParams)
	require.NoError(t, err)
	testnet, err := c.BuildAddress(&chaincfg.TestNet3Params)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(mainnet.EncodeAddress(), "bc1q"))
	require.True(t, strings.HasPrefix(testnet.EncodeAddress(), "tb1q"))
}

func TestBuildAddressTaprootScriptPathDiffersFromKeyPath(t *testing.T) {
	keyPath, err := Parse("tr(" + keyA + ")")
	require.NoError(t, err)
	scriptPath, err := Parse("tr(" + keyA + ",pk(" + keyB + "))")
	require.NoError(t, err)

	a1, err := keyPath.BuildAddress(&chaincfg.MainNetParams)
	require.NoError(t, err)
	a2, err := scriptPath.BuildAddress(&chaincfg.MainNetParams)
	require.NoError(t, err)
	require.NotEqual(t, a1.EncodeAddress(), a2.EncodeAddress())
}
