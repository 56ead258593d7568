// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenizeSeparatorsAndPositions(t *testing.T) {
	toks, err := Tokenize("and_v(v:older(100),1)")
	require.NoError(t, err)

	want := []Token{
		{Kind: TokIdent, Text: "and_v", Pos: 1},
		{Kind: TokLeftParen, Text: "(", Pos: 6},
		{Kind: TokIdent, Text: "v", Pos: 7},
		{Kind: TokColon, Text: ":", Pos: 8},
		{Kind: TokIdent, Text: "older", Pos: 9},
		{Kind: TokLeftParen, Text: "(", Pos: 14},
		{Kind: TokIdent, Text: "100", Pos: 15},
		{Kind: TokRightParen, Text: ")", Pos: 18},
		{Kind: TokComma, Text: ",", Pos: 19},
		{Kind: TokIdent, Text: "1", Pos: 20},
		{Kind: TokRightParen, Text: ")", Pos: 21},
		{Kind: TokEOF, Text: "", Pos: 22},
	}
	require.Equal(t, want, toks)
}

func TestTokenizeIdentifierCharacters(t *testing.T) {
	// Identifiers absorb everything that is not a separator, including the
	// derivation-path and origin characters of an extended key.
	toks, err := Tokenize("pk([aabbccdd/10'/123]xpub/10/*)")
	require.NoError(t, err)
	require.Len(t, toks, 5) // pk ( key ) EOF
	require.Equal(t, "[aabbccdd/10'/123]xpub/10/*", toks[2].Text)
}

func TestTokenizeNonASCIIRejected(t *testing.T) {
	_, err := Tokenize("pk(\xc3\xa9)")
	require.Error(t, err)
	require.Equal(t, ErrNonASCII, err.(*Error).Code)

	_, err = Tokenize("ol\xffder(1)")
	require.Error(t, err)
	require.Equal(t, ErrNonASCII, err.(*Error).Code)
}

func TestTokenizeChecksumStaysOneToken(t *testing.T) {
	toks, err := Tokenize("older(1)#abcdefgh")
	require.NoError(t, err)
	// The tokenizer never splits on '#': the trailer is one identifier-like
	// token for the parser to interpret.
	require.Equal(t, "#abcdefgh", toks[len(toks)-2].Text)
}

func TestTokenizeEmptyInput(t *testing.T) {
	toks, err := Tokenize("")
	require.NoError(t, err)
	require.Len(t, toks, 1)
	require.Equal(t, TokEOF, toks[0].Kind)
	require.Equal(t, Position(1), toks[0].Pos)
}
