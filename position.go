// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

// Position is a 1-based column index into the original input, attached to
// every token and every AST node for diagnostics. Descriptor text is always
// a single line, so unlike a general-purpose source-file lexer this tracks
// column only.
type Position int

// NoPosition marks errors that have no source location, such as limit-check,
// key-derivation, and script-emission failures.
const NoPosition Position = 0
