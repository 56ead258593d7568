// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package checksum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeAndValidRoundTrip(t *testing.T) {
	bodies := []string{
		"pk(02a34b99f22c790c4e36b2b3c2c35a36db06226e41c692fc82b8b56ac1c540c5bd)",
		"wsh(or_d(pk(03a0434d9e47f3c86235477c7b1ae6ae5d3442d49b1943c2b752a68e2a47e247c7),and_v(v:pkh(03774ae7f858a9411e5ef4246b70c65aac5649980be5c17891bbec17895da008d),older(144))))",
		"",
	}
	for _, body := range bodies {
		sum, ok := Compute(body)
		require.True(t, ok)
		require.Len(t, sum, Length)
		require.True(t, Valid(body, sum))
		require.False(t, Valid(body+"x", sum))
	}
}

func TestValidRejectsBadLength(t *testing.T) {
	require.False(t, Valid("pk(...)", "short"))
	require.False(t, Valid("pk(...)", "toolongchecksum"))
}

func TestExpandRejectsForeignCharacters(t *testing.T) {
	_, ok := Compute("pk(\xffinvalid)")
	require.False(t, ok)
}

func TestKnownVector(t *testing.T) {
	// From BIP-380's own test vectors.
	body := "raw(deadbeef)"
	sum, ok := Compute(body)
	require.True(t, ok)
	require.Equal(t, "89f8spxm", sum)
	require.True(t, Valid(body, sum))
}
