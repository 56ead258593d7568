// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package miniscript parses, type-checks, and compiles Bitcoin Miniscript
// expressions into Bitcoin Script, and satisfies them against a caller
// supplied witness oracle.
//
// The pipeline is tokenize -> parse -> type-check -> descriptor-validate ->
// limit-check -> script-emit, with a separate DP-based satisfier. Parse
// is the single entry point; it returns a Context exposing the AST, the
// compiled script, the on-chain address, and a satisfier. The Context is
// read-only apart from in-place key replacement (Derive, IterateKeysMut).
package miniscript
