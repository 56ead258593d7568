// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package checksum implements the BIP-380 descriptor checksum: an 8
// character bech32-style polymod suffix appended to a descriptor string
// after a '#'.
package checksum

import "strings"

const (
	alphabet         = "0123456789()[],'/*abcdefgh@:$%{}IJKLMNOPQRSTUVWXYZ&+-.;<=>?!^_|~ijklmnopqrstuvwxyzABCDEFGH`#\"\\ "
	checksumAlphabet = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

	// Length is the number of checksum characters following the '#'.
	Length = 8
)

var generator = []uint64{0xf5dee51989, 0xa9fdca3312, 0x1bab10e32d, 0x3706b1677a, 0x644d626ffd}

// expand maps s onto the generalized polymod's symbol alphabet. It reports
// false if s contains a character outside the 95-character descriptor
// alphabet.
func expand(s string) ([]byte, bool) {
	groups := make([]byte, 0, 3)
	syms := make([]byte, 0, len(s)*4/3+Length)
	for i := 0; i < len(s); i++ {
		idx := strings.IndexByte(alphabet, s[i])
		if idx == -1 {
			return nil, false
		}
		v := byte(idx)
		syms = append(syms, v&31)
		groups = append(groups, v>>5)
		if len(groups) == 3 {
			syms = append(syms, groups[0]*9+groups[1]*3+groups[2])
			groups = groups[:0]
		}
	}
	switch len(groups) {
	case 1:
		syms = append(syms, groups[0])
	case 2:
		syms = append(syms, groups[0]*3+groups[1])
	}
	return syms, true
}

func polymod(syms []byte) uint64 {
	chk := uint64(1)
	for _, v := range syms {
		top := chk >> 35
		chk = (chk&0x7ffffffff)<<5 ^ uint64(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 != 0 {
				chk ^= generator[i]
			}
		}
	}
	return chk
}

// Compute returns the 8 character checksum for the descriptor body s (the
// part before any '#'). It reports false if s contains a character outside
// the descriptor alphabet.
func Compute(s string) (string, bool) {
	syms, ok := expand(s)
	if !ok {
		return "", false
	}
	syms = append(syms, 0, 0, 0, 0, 0, 0, 0, 0)
	sum := polymod(syms) ^ 1
	var res [Length]byte
	for i := range res {
		res[i] = checksumAlphabet[(sum>>uint(5*(7-i)))&31]
	}
	return string(res[:]), true
}

// Valid reports whether c is the correct checksum for the descriptor body
// s, and whether both s and c consist only of characters from their
// respective alphabets.
func Valid(s, c string) bool {
	if len(c) != Length {
		return false
	}
	syms, ok := expand(s)
	if !ok {
		return false
	}
	for i := 0; i < len(c); i++ {
		idx := strings.IndexByte(checksumAlphabet, c[i])
		if idx == -1 {
			return false
		}
		syms = append(syms, byte(idx))
	}
	return polymod(syms) == 1
}
