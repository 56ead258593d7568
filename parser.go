// Copyright (c) 2025 Miniscript developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/toole-brendan/miniscript/checksum"
)

// maxWrapperChain bounds the number of single-character wrappers consumed
// from one identifier; anything beyond this is a parse error rather than
// the silent truncation an earlier implementation of this grammar used.
const maxWrapperChain = 500

// Absolute-locktime validity window: Older/After carry a u32 with
// 1 <= n < 2^31 (see the Fragment data model).
const (
	minAbsoluteLocktime = 1
	maxAbsoluteLocktime = 1<<31 - 1
)

// parser holds the token stream and the growing fragment arena. The arena
// is built strictly post-order: every addNode call happens after its
// children have already been added, so NodeIndex values only ever grow.
type parser struct {
	toks []Token
	pos  int
	ast  []Fragment

	haveTopLevel       bool
	topLevelDescriptor DescriptorKind
	innerDescriptor    DescriptorKind
}

func newParser(toks []Token) *parser {
	return &parser{toks: toks}
}

func (p *parser) peek() Token {
	return p.toks[p.pos]
}

// peekAt returns the token offset tokens ahead of the cursor, clamped to
// the trailing EOF token.
func (p *parser) peekAt(offset int) Token {
	i := p.pos + offset
	if i >= len(p.toks) {
		i = len(p.toks) - 1
	}
	return p.toks[i]
}

func (p *parser) next() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind TokenKind, text string) (Token, error) {
	t := p.next()
	if t.Kind != kind || t.Text != text {
		return t, newErrorf(ErrUnexpectedToken, t.Pos, "expected %q, found %q", text, t.Text)
	}
	return t, nil
}

func (p *parser) addNode(f Fragment) NodeIndex {
	idx := NodeIndex(len(p.ast))
	p.ast = append(p.ast, f)
	return idx
}

// consumeTrailer tolerates exactly one trailing token, which must begin
// with '#' and carry a valid BIP-380 checksum over the rest of input.
func (p *parser) consumeTrailer(input string) error {
	tok := p.peek()
	if tok.Kind == TokEOF {
		return nil
	}
	if tok.Kind != TokIdent || !strings.HasPrefix(tok.Text, "#") {
		return newErrorf(ErrTrailingToken, tok.Pos, "%q", tok.Text)
	}
	p.next()
	if next := p.peek(); next.Kind != TokEOF {
		return newErrorf(ErrTrailingToken, next.Pos, "%q", next.Text)
	}

	sum := tok.Text[1:]
	if len(sum) != checksum.Length {
		return newErrorf(ErrInvalidChecksumLength, tok.Pos, "found %d characters", len(sum))
	}
	body := strings.TrimSuffix(input, tok.Text)
	if !checksum.Valid(body, sum) {
		return newErrorf(ErrChecksumMismatch, tok.Pos, "%q", tok.Text)
	}
	return nil
}

func descriptorKindFor(name string) (DescriptorKind, bool) {
	switch name {
	case "pkh":
		return DescriptorPkH, true
	case "sh":
		return DescriptorSh, true
	case "wpkh":
		return DescriptorWpkh, true
	case "wsh":
		return DescriptorWsh, true
	case "tr":
		return DescriptorTr, true
	default:
		return DescriptorBare, false
	}
}

// parseDescriptor parses the single outermost descriptor, or a Bare
// expression when the head token names none of the five descriptors. Only
// one level of sh(wsh(...)) / sh(wpkh(...)) nesting is permitted.
func (p *parser) parseDescriptor() (NodeIndex, error) {
	head := p.peek()
	if head.Kind != TokIdent {
		return NoChild, newError(ErrUnexpectedEOF, head.Pos, "parse_descriptor")
	}

	kind, ok := descriptorKindFor(head.Text)
	if !ok {
		p.setDescriptorContext(DescriptorBare)
		return p.parseFragment()
	}

	p.setDescriptorContext(kind)
	p.next() // consume the descriptor name

	if kind == DescriptorSh && p.checkNext(TokLeftParen, "(") &&
		(p.peekAt(1).Text == "wsh" || p.peekAt(1).Text == "wpkh") {
		return p.parseShNesting()
	}

	if _, err := p.expect(TokLeftParen, "("); err != nil {
		return NoChild, err
	}
	inner, err := p.parseTopInternal(kind, head.Pos)
	if err != nil {
		return NoChild, err
	}
	if _, err := p.expect(TokRightParen, ")"); err != nil {
		return NoChild, err
	}
	return inner, nil
}

// setDescriptorContext records kind as the inner descriptor for every key
// parsed from here on, and latches it as the top-level descriptor the
// first time it is called.
func (p *parser) setDescriptorContext(kind DescriptorKind) {
	if !p.haveTopLevel {
		p.topLevelDescriptor = kind
		p.haveTopLevel = true
	}
	p.innerDescriptor = kind
}

func (p *parser) checkNext(kind TokenKind, text string) bool {
	t := p.peek()
	return t.Kind == kind && t.Text == text
}

// parseShNesting parses sh(wsh(...)) / sh(wpkh(...)). The nested descriptor
// is parsed exactly like a top-level one (so it rejects a further level of
// nesting on its own), and the combined context becomes ShWsh: the root
// fragment produced by the nested wpkh()/wsh() parse is returned unchanged,
// since the fragment itself (RawPkH vs. a general script root) already
// records which of the two was nested.
func (p *parser) parseShNesting() (NodeIndex, error) {
	if _, err := p.expect(TokLeftParen, "("); err != nil {
		return NoChild, err
	}
	nested, err := p.parseDescriptor()
	if err != nil {
		return NoChild, err
	}
	if _, err := p.expect(TokRightParen, ")"); err != nil {
		return NoChild, err
	}
	p.topLevelDescriptor = DescriptorSh
	p.innerDescriptor = DescriptorShWsh
	return nested, nil
}

// parseTopInternal parses the body of a named descriptor: Pkh/Wpkh take a
// single raw key and produce RawPkH; Tr takes a key and an optional
// comma-separated script-path tree and produces RawTr; Sh/Wsh delegate to
// the general recursive fragment parser.
func (p *parser) parseTopInternal(kind DescriptorKind, pos Position) (NodeIndex, error) {
	switch kind {
	case DescriptorPkH, DescriptorWpkh:
		tok := p.next()
		if tok.Kind != TokIdent {
			return NoChild, newErrorf(ErrUnexpectedToken, tok.Pos, "expected key, found %q", tok.Text)
		}
		key, err := parseKey(tok.Text, tok.Pos, p.innerDescriptor)
		if err != nil {
			return NoChild, err
		}
		return p.addNode(Fragment{Kind: FragRawPkH, Pos: pos, Key: key}), nil

	case DescriptorTr:
		tok := p.next()
		if tok.Kind != TokIdent {
			return NoChild, newErrorf(ErrUnexpectedToken, tok.Pos, "expected key, found %q", tok.Text)
		}
		key, err := parseKey(tok.Text, tok.Pos, DescriptorTr)
		if err != nil {
			return NoChild, err
		}
		inner := NoChild
		if p.checkNext(TokComma, ",") {
			p.next()
			innerIdx, err := p.parseFragment()
			if err != nil {
				return NoChild, err
			}
			inner = innerIdx
		}
		return p.addNode(Fragment{Kind: FragRawTr, Pos: pos, TrKey: key, TrInner: inner}), nil

	default: // Sh, Wsh
		return p.parseFragment()
	}
}

// parseFragment is the general recursive-descent entry point: it handles
// the wrapper-chain prefix syntax, then dispatches on the head identifier.
func (p *parser) parseFragment() (NodeIndex, error) {
	head := p.peek()
	if head.Kind != TokIdent {
		return NoChild, newErrorf(ErrUnexpectedEOF, head.Pos, "parse")
	}

	if p.peekAt(1).Kind == TokColon {
		return p.parseWrapperChain()
	}

	switch head.Text {
	case "pk_k":
		return p.parseKeyCall(FragPkK, "pk_k")
	case "pk_h":
		return p.parseKeyCall(FragPkH, "pk_h")
	case "pk":
		return p.parseSugarC(FragPkK, "pk")
	case "pkh":
		return p.parseSugarC(FragPkH, "pkh")
	case "older":
		return p.parseTimelock(FragOlder, "older")
	case "after":
		return p.parseTimelock(FragAfter, "after")
	case "sha256":
		return p.parseHashCall(FragSha256, "sha256", 32)
	case "hash256":
		return p.parseHashCall(FragHash256, "hash256", 32)
	case "ripemd160":
		return p.parseHashCall(FragRipemd160, "ripemd160", 20)
	case "hash160":
		return p.parseHashCall(FragHash160, "hash160", 20)
	case "andor":
		return p.parseNAryCall(FragAndOr, 3)
	case "and_v":
		return p.parseNAryCall(FragAndV, 2)
	case "and_b":
		return p.parseNAryCall(FragAndB, 2)
	case "and_n":
		return p.parseAndN()
	case "or_b":
		return p.parseNAryCall(FragOrB, 2)
	case "or_c":
		return p.parseNAryCall(FragOrC, 2)
	case "or_d":
		return p.parseNAryCall(FragOrD, 2)
	case "or_i":
		return p.parseNAryCall(FragOrI, 2)
	case "thresh":
		return p.parseThresh()
	case "multi":
		return p.parseMulti(false)
	case "multi_a":
		return p.parseMulti(true)
	case "0":
		p.next()
		return p.addNode(Fragment{Kind: FragFalse, Pos: head.Pos}), nil
	case "1":
		p.next()
		return p.addNode(Fragment{Kind: FragTrue, Pos: head.Pos}), nil
	default:
		return NoChild, newErrorf(ErrUnexpectedToken, head.Pos, "unexpected token %q", head.Text)
	}
}

// parseKeyCall parses IDENT(KEY) where IDENT is pk_k or pk_h.
func (p *parser) parseKeyCall(kind FragmentKind, name string) (NodeIndex, error) {
	pos := p.peek().Pos
	p.next()
	if _, err := p.expect(TokLeftParen, "("); err != nil {
		return NoChild, err
	}
	keyTok := p.next()
	if keyTok.Kind != TokIdent {
		return NoChild, newErrorf(ErrUnexpectedToken, keyTok.Pos, "%s: expected key, found %q", name, keyTok.Text)
	}
	if _, err := p.expect(TokRightParen, ")"); err != nil {
		return NoChild, err
	}
	key, err := parseKey(keyTok.Text, keyTok.Pos, p.innerDescriptor)
	if err != nil {
		return NoChild, err
	}
	return p.addNode(Fragment{Kind: kind, Pos: pos, Key: key}), nil
}

// parseSugarC parses pk(K) / pkh(K), each of which desugars to
// c:pk_k(K) / c:pk_h(K).
func (p *parser) parseSugarC(innerKind FragmentKind, name string) (NodeIndex, error) {
	pos := p.peek().Pos
	p.next()
	if _, err := p.expect(TokLeftParen, "("); err != nil {
		return NoChild, err
	}
	keyTok := p.next()
	if keyTok.Kind != TokIdent {
		return NoChild, newErrorf(ErrUnexpectedToken, keyTok.Pos, "%s: expected key, found %q", name, keyTok.Text)
	}
	if _, err := p.expect(TokRightParen, ")"); err != nil {
		return NoChild, err
	}
	key, err := parseKey(keyTok.Text, keyTok.Pos, p.innerDescriptor)
	if err != nil {
		return NoChild, err
	}
	inner := p.addNode(Fragment{Kind: innerKind, Pos: pos, Key: key})
	return p.addNode(Fragment{Kind: FragWrap, Pos: pos, WrapKind: WrapC, Child: inner}), nil
}

func (p *parser) parseTimelock(kind FragmentKind, name string) (NodeIndex, error) {
	pos := p.peek().Pos
	p.next()
	if _, err := p.expect(TokLeftParen, "("); err != nil {
		return NoChild, err
	}
	nTok := p.next()
	if _, err := p.expect(TokRightParen, ")"); err != nil {
		return NoChild, err
	}
	n, err := parsePositiveU32(nTok)
	if err != nil {
		return NoChild, err
	}
	if n < minAbsoluteLocktime || n > maxAbsoluteLocktime {
		return NoChild, newErrorf(ErrInvalidLocktime, nTok.Pos, "%s(%d)", name, n)
	}
	return p.addNode(Fragment{Kind: kind, Pos: pos, Locktime: n}), nil
}

func (p *parser) parseHashCall(kind FragmentKind, name string, size int) (NodeIndex, error) {
	pos := p.peek().Pos
	p.next()
	if _, err := p.expect(TokLeftParen, "("); err != nil {
		return NoChild, err
	}
	hTok := p.next()
	if _, err := p.expect(TokRightParen, ")"); err != nil {
		return NoChild, err
	}
	if len(hTok.Text) != size*2 {
		return NoChild, newErrorf(ErrInvalidHexLength, hTok.Pos, "%s: expected %d hex characters, found %d", name, size*2, len(hTok.Text))
	}
	h, err := hex.DecodeString(hTok.Text)
	if err != nil {
		return NoChild, newErrorf(ErrInvalidHex, hTok.Pos, "%s: %q", name, hTok.Text)
	}
	return p.addNode(Fragment{Kind: kind, Pos: pos, Hash: h}), nil
}

// parseNAryCall parses IDENT(X1,...,Xn) for a fixed arity n.
func (p *parser) parseNAryCall(kind FragmentKind, arity int) (NodeIndex, error) {
	pos := p.peek().Pos
	p.next()
	if _, err := p.expect(TokLeftParen, "("); err != nil {
		return NoChild, err
	}
	children := make([]NodeIndex, 0, arity)
	x, err := p.parseFragment()
	if err != nil {
		return NoChild, err
	}
	children = append(children, x)
	for i := 1; i < arity; i++ {
		if _, err := p.expect(TokComma, ","); err != nil {
			return NoChild, err
		}
		xi, err := p.parseFragment()
		if err != nil {
			return NoChild, err
		}
		children = append(children, xi)
	}
	if _, err := p.expect(TokRightParen, ")"); err != nil {
		return NoChild, err
	}
	return p.addNode(Fragment{Kind: kind, Pos: pos, Children: children}), nil
}

// parseAndN parses and_n(X,Y), which desugars to andor(X,Y,0).
func (p *parser) parseAndN() (NodeIndex, error) {
	pos := p.peek().Pos
	p.next()
	if _, err := p.expect(TokLeftParen, "("); err != nil {
		return NoChild, err
	}
	x, err := p.parseFragment()
	if err != nil {
		return NoChild, err
	}
	if _, err := p.expect(TokComma, ","); err != nil {
		return NoChild, err
	}
	y, err := p.parseFragment()
	if err != nil {
		return NoChild, err
	}
	if _, err := p.expect(TokRightParen, ")"); err != nil {
		return NoChild, err
	}
	z := p.addNode(Fragment{Kind: FragFalse, Pos: pos})
	return p.addNode(Fragment{Kind: FragAndOr, Pos: pos, Children: []NodeIndex{x, y, z}}), nil
}

// parseThresh parses thresh(k,X1,...,Xn).
func (p *parser) parseThresh() (NodeIndex, error) {
	pos := p.peek().Pos
	p.next()
	if _, err := p.expect(TokLeftParen, "("); err != nil {
		return NoChild, err
	}
	kTok := p.next()
	k, err := parsePositiveInt(kTok)
	if err != nil {
		return NoChild, err
	}
	var xs []NodeIndex
	for p.peek().Text != ")" {
		if _, err := p.expect(TokComma, ","); err != nil {
			return NoChild, err
		}
		x, err := p.parseFragment()
		if err != nil {
			return NoChild, err
		}
		xs = append(xs, x)
	}
	if _, err := p.expect(TokRightParen, ")"); err != nil {
		return NoChild, err
	}
	return p.addNode(Fragment{Kind: FragThresh, Pos: pos, K: k, Children: xs}), nil
}

// parseMulti parses multi(k,key,...) / multi_a(k,key,...). multi_a's keys
// are always x-only, regardless of the surrounding descriptor.
func (p *parser) parseMulti(isMultiA bool) (NodeIndex, error) {
	pos := p.peek().Pos
	p.next()
	if _, err := p.expect(TokLeftParen, "("); err != nil {
		return NoChild, err
	}
	kTok := p.next()
	k, err := parsePositiveInt(kTok)
	if err != nil {
		return NoChild, err
	}

	keyInner := p.innerDescriptor
	if isMultiA {
		keyInner = DescriptorTr
	}

	var keys []*Key
	for p.peek().Text != ")" {
		if p.peek().Kind == TokComma {
			p.next()
		}
		keyTok := p.next()
		if keyTok.Kind != TokIdent {
			return NoChild, newErrorf(ErrUnexpectedToken, keyTok.Pos, "expected key, found %q", keyTok.Text)
		}
		key, err := parseKey(keyTok.Text, keyTok.Pos, keyInner)
		if err != nil {
			return NoChild, err
		}
		keys = append(keys, key)
	}
	if _, err := p.expect(TokRightParen, ")"); err != nil {
		return NoChild, err
	}

	kind := FragMulti
	if isMultiA {
		kind = FragMultiA
	}
	return p.addNode(Fragment{Kind: kind, Pos: pos, K: k, Keys: keys}), nil
}

// parseWrapperChain parses "LETTERS:BODY", where LETTERS is a run of
// single-character wrappers applied right to left around BODY.
func (p *parser) parseWrapperChain() (NodeIndex, error) {
	chainTok := p.next() // the letters
	if _, err := p.expect(TokColon, ":"); err != nil {
		return NoChild, err
	}
	// A wrapper chain's body is never itself another wrapper chain: two
	// adjacent colons ("a::X") and two directly-chained groups
	// ("uuuu:vvvv:X") are both rejected rather than silently nested.
	if p.peek().Kind == TokColon {
		return NoChild, newError(ErrMultiColon, p.peek().Pos, "")
	}
	if p.peek().Kind == TokIdent && p.peekAt(1).Kind == TokColon {
		return NoChild, newError(ErrMultiColon, p.peekAt(1).Pos, "")
	}

	if len(chainTok.Text) > maxWrapperChain {
		return NoChild, newErrorf(ErrWrapperChainTooLong, chainTok.Pos, "%d characters", len(chainTok.Text))
	}

	node, err := p.parseFragment()
	if err != nil {
		return NoChild, err
	}

	letters := chainTok.Text
	for i := len(letters) - 1; i >= 0; i-- {
		c := letters[i]
		switch c {
		case 'a', 's', 'c', 'd', 'v', 'j', 'n':
			node = p.addNode(Fragment{Kind: FragWrap, Pos: chainTok.Pos, WrapKind: wrapLetters[c], Child: node})
		case 't':
			// t:X = and_v(X,1)
			one := p.addNode(Fragment{Kind: FragTrue, Pos: chainTok.Pos})
			node = p.addNode(Fragment{Kind: FragAndV, Pos: chainTok.Pos, Children: []NodeIndex{node, one}})
		case 'l':
			// l:X = or_i(0,X)
			zero := p.addNode(Fragment{Kind: FragFalse, Pos: chainTok.Pos})
			node = p.addNode(Fragment{Kind: FragOrI, Pos: chainTok.Pos, Children: []NodeIndex{zero, node}})
		case 'u':
			// u:X = or_i(X,0)
			zero := p.addNode(Fragment{Kind: FragFalse, Pos: chainTok.Pos})
			node = p.addNode(Fragment{Kind: FragOrI, Pos: chainTok.Pos, Children: []NodeIndex{node, zero}})
		default:
			return NoChild, newErrorf(ErrUnknownWrapper, chainTok.Pos, "%q", string(c))
		}
	}
	return node, nil
}

// parsePositiveU32 parses a token as a u32 with no sign and no leading
// zero, requiring the first character to be a digit 1-9.
func parsePositiveU32(tok Token) (uint32, error) {
	if isInvalidNumber(tok.Text) {
		return 0, newErrorf(ErrInvalidNumber, tok.Pos, "%q", tok.Text)
	}
	n, err := strconv.ParseUint(tok.Text, 10, 32)
	if err != nil {
		return 0, newErrorf(ErrInvalidNumber, tok.Pos, "%q", tok.Text)
	}
	return uint32(n), nil
}

// parsePositiveInt parses a threshold k: a positive integer, no leading
// zero, fitting comfortably in an int.
func parsePositiveInt(tok Token) (int, error) {
	if isInvalidNumber(tok.Text) {
		return 0, newErrorf(ErrInvalidNumber, tok.Pos, "%q", tok.Text)
	}
	n, err := strconv.ParseInt(tok.Text, 10, 32)
	if err != nil {
		return 0, newErrorf(ErrInvalidNumber, tok.Pos, "%q", tok.Text)
	}
	return int(n), nil
}

func isInvalidNumber(s string) bool {
	if s == "" {
		return true
	}
	if s[0] < '1' || s[0] > '9' {
		return true
	}
	return false
}

