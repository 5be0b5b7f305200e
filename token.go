package mlang

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// TokenType classifies a lexical token of the schema language.
type TokenType int

const (
	TEOF TokenType = iota
	TIdent
	TKeyword
	TNumber
	TString
	TLBrace
	TRBrace
	TLParen
	TRParen
	TColon
	TComma
	TSemi
	TEquals
	TPipe
	TAmp
	TQuestion
	TStar
	TPlus
)

func (t TokenType) String() string {
	switch t {
	case TEOF:
		return "end of input"
	case TIdent:
		return "identifier"
	case TKeyword:
		return "keyword"
	case TNumber:
		return "number"
	case TString:
		return "string"
	case TLBrace:
		return "'{'"
	case TRBrace:
		return "'}'"
	case TLParen:
		return "'('"
	case TRParen:
		return "')'"
	case TColon:
		return "':'"
	case TComma:
		return "','"
	case TSemi:
		return "';'"
	case TEquals:
		return "'='"
	case TPipe:
		return "'|'"
	case TAmp:
		return "'&'"
	case TQuestion:
		return "'?'"
	case TStar:
		return "'*'"
	case TPlus:
		return "'+'"
	default:
		return fmt.Sprintf("TokenType(%d)", int(t))
	}
}

// Token is a positioned lexical token.
type Token struct {
	Type TokenType
	Text string
	Span Span
}

func (t Token) String() string {
	if t.Text == "" {
		return t.Type.String()
	}
	return fmt.Sprintf("%s %q", t.Type, t.Text)
}

// declaration keywords; `content` and `empty` are contextual and stay
// identifiers so they remain usable as attribute and element names.
var keywords = map[string]bool{
	"element": true,
	"leaf":    true,
	"mixin":   true,
	"group":   true,
	"enum":    true,
	"type":    true,
}

// Lexer turns schema source into a stream of positioned tokens. Comments are
// consumed and discarded, their bytes still counted so later spans stay
// aligned with the source. Lexical errors are accumulated as diagnostics and
// the lexer resynchronizes at the next whitespace or punctuation boundary,
// letting one pass report every malformed token.
type Lexer struct {
	src    []byte
	off    int
	peeked []Token
	diags  []Diagnostic
}

// NewLexer creates a lexer over UTF-8 schema source.
func NewLexer(src []byte) *Lexer {
	return &Lexer{src: src}
}

// Diagnostics returns the lexical diagnostics accumulated so far.
func (l *Lexer) Diagnostics() []Diagnostic {
	return l.diags
}

// Next returns the next token, or a TEOF token at end of input.
func (l *Lexer) Next() Token {
	if len(l.peeked) > 0 {
		t := l.peeked[0]
		l.peeked = l.peeked[1:]
		return t
	}
	return l.scan()
}

// Peek returns the k-th upcoming token without consuming it; Peek(0) is the
// token Next would return. The grammar needs only small fixed lookahead.
func (l *Lexer) Peek(k int) Token {
	for len(l.peeked) <= k {
		l.peeked = append(l.peeked, l.scan())
	}
	return l.peeked[k]
}

func (l *Lexer) scan() Token {
	l.skipBlank()
	start := l.off
	if l.off >= len(l.src) {
		return Token{Type: TEOF, Span: Span{Start: start, End: start}}
	}
	c := l.src[l.off]
	switch {
	case isIdentStart(c):
		return l.scanIdent()
	case c >= '0' && c <= '9':
		return l.scanNumber()
	case c == '"':
		return l.scanString()
	}
	if t, ok := punctType(c); ok {
		l.off++
		return Token{Type: t, Text: string(c), Span: Span{Start: start, End: l.off}}
	}
	// No token class matches. Skip to the next boundary and report the whole
	// run as one diagnostic, then continue scanning.
	for l.off < len(l.src) {
		b := l.src[l.off]
		if isBlank(b) || isBoundary(b) {
			break
		}
		l.off++
	}
	bad := Span{Start: start, End: l.off}
	l.diags = append(l.diags, errDiag(CodeLexInvalidToken, bad,
		"invalid token %q", string(l.src[start:l.off])))
	return l.scan()
}

func (l *Lexer) skipBlank() {
	for l.off < len(l.src) {
		c := l.src[l.off]
		switch {
		case isBlank(c):
			l.off++
		case c == '/' && l.off+1 < len(l.src) && l.src[l.off+1] == '/':
			for l.off < len(l.src) && l.src[l.off] != '\n' {
				l.off++
			}
		case c == '/' && l.off+1 < len(l.src) && l.src[l.off+1] == '*':
			start := l.off
			l.off += 2
			closed := false
			for l.off+1 < len(l.src) {
				if l.src[l.off] == '*' && l.src[l.off+1] == '/' {
					l.off += 2
					closed = true
					break
				}
				l.off++
			}
			if !closed {
				l.off = len(l.src)
				l.diags = append(l.diags, errDiag(CodeLexUnterminated,
					Span{Start: start, End: l.off}, "unterminated block comment"))
			}
		default:
			return
		}
	}
}

func (l *Lexer) scanIdent() Token {
	start := l.off
	for l.off < len(l.src) {
		r, size := utf8.DecodeRune(l.src[l.off:])
		if !isIdentPart(r) {
			break
		}
		l.off += size
	}
	text := string(l.src[start:l.off])
	typ := TIdent
	if keywords[text] {
		typ = TKeyword
	}
	return Token{Type: typ, Text: text, Span: Span{Start: start, End: l.off}}
}

func (l *Lexer) scanNumber() Token {
	start := l.off
	for l.off < len(l.src) && l.src[l.off] >= '0' && l.src[l.off] <= '9' {
		l.off++
	}
	return Token{Type: TNumber, Text: string(l.src[start:l.off]), Span: Span{Start: start, End: l.off}}
}

func (l *Lexer) scanString() Token {
	start := l.off
	l.off++ // opening quote
	var buf []byte
	for l.off < len(l.src) {
		c := l.src[l.off]
		if c == '"' {
			l.off++
			return Token{Type: TString, Text: string(buf), Span: Span{Start: start, End: l.off}}
		}
		if c == '\\' && l.off+1 < len(l.src) {
			l.off++
			switch l.src[l.off] {
			case 'n':
				buf = append(buf, '\n')
			case 't':
				buf = append(buf, '\t')
			default:
				buf = append(buf, l.src[l.off])
			}
			l.off++
			continue
		}
		if c == '\n' {
			break
		}
		buf = append(buf, c)
		l.off++
	}
	span := Span{Start: start, End: l.off}
	l.diags = append(l.diags, errDiag(CodeLexUnterminated, span, "unterminated string literal"))
	return Token{Type: TString, Text: string(buf), Span: span}
}

func punctType(c byte) (TokenType, bool) {
	switch c {
	case '{':
		return TLBrace, true
	case '}':
		return TRBrace, true
	case '(':
		return TLParen, true
	case ')':
		return TRParen, true
	case ':':
		return TColon, true
	case ',':
		return TComma, true
	case ';':
		return TSemi, true
	case '=':
		return TEquals, true
	case '|':
		return TPipe, true
	case '&':
		return TAmp, true
	case '?':
		return TQuestion, true
	case '*':
		return TStar, true
	case '+':
		return TPlus, true
	}
	return TEOF, false
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func isBoundary(c byte) bool {
	if _, ok := punctType(c); ok {
		return true
	}
	return c == '"' || isIdentStart(c) || (c >= '0' && c <= '9')
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
