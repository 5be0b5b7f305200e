package mlang

import (
	"sort"
	"strconv"
)

// Parse parses schema source into an AST. It always returns a best-effort
// AST: a malformed declaration is skipped up to the next declaration keyword
// and reported as one diagnostic, and parsing continues, so a single pass
// surfaces every independent problem. The diagnostics are ordered by source
// position. Parse performs no symbol resolution.
func Parse(src []byte) (*SchemaAST, []Diagnostic) {
	p := &parser{lex: NewLexer(src)}
	ast := p.parseSchema()
	diags := append(p.lex.Diagnostics(), p.diags...)
	sort.SliceStable(diags, func(i, j int) bool {
		return diags[i].Span.Start < diags[j].Span.Start
	})
	return ast, diags
}

type parser struct {
	lex   *Lexer
	diags []Diagnostic
}

func (p *parser) peek() Token      { return p.lex.Peek(0) }
func (p *parser) peekAt(k int) Token { return p.lex.Peek(k) }
func (p *parser) next() Token      { return p.lex.Next() }

func (p *parser) errorf(code ErrorCode, span Span, format string, args ...any) {
	p.diags = append(p.diags, errDiag(code, span, format, args...))
}

// expect consumes a token of the wanted type or reports a malformed
// declaration and leaves the token untouched for recovery.
func (p *parser) expect(t TokenType, context string) (Token, bool) {
	tok := p.peek()
	if tok.Type != t {
		p.errorf(CodeParseMalformedDecl, tok.Span, "expected %s in %s, found %s", t, context, tok)
		return tok, false
	}
	return p.next(), true
}

func (p *parser) parseSchema() *SchemaAST {
	ast := &SchemaAST{}
	for {
		tok := p.peek()
		switch tok.Type {
		case TEOF:
			return ast
		case TKeyword:
			decl, ok := p.parseDecl(tok.Text)
			if decl != nil {
				ast.Decls = append(ast.Decls, decl)
			}
			if !ok {
				p.recover()
			}
		default:
			start := tok.Span
			end := p.recover()
			p.errorf(CodeParseExpectedDecl, start.Extend(end),
				"expected a declaration keyword, found %s", tok)
		}
	}
}

// recover skips tokens until the next declaration keyword at brace depth
// zero, returning the span of the skipped region.
func (p *parser) recover() Span {
	depth := 0
	span := p.peek().Span
	for {
		tok := p.peek()
		switch tok.Type {
		case TEOF:
			return span
		case TKeyword:
			if depth <= 0 {
				return span
			}
		case TLBrace:
			depth++
		case TRBrace:
			depth--
		}
		span = span.Extend(tok.Span)
		p.next()
	}
}

func (p *parser) parseDecl(keyword string) (Decl, bool) {
	switch keyword {
	case "element":
		return p.parseElement(false)
	case "leaf":
		return p.parseElement(true)
	case "mixin":
		return p.parseMixin()
	case "group":
		return p.parseGroup()
	case "enum":
		return p.parseEnum()
	case "type":
		return p.parseType()
	default:
		tok := p.next()
		p.errorf(CodeParseMalformedDecl, tok.Span, "unexpected keyword %q", keyword)
		return nil, false
	}
}

func (p *parser) parseElement(leaf bool) (Decl, bool) {
	kw := p.next()
	name, ok := p.expect(TIdent, "element declaration")
	if !ok {
		return nil, false
	}
	d := &ElementDecl{
		Name:     name.Text,
		NameSpan: name.Span,
		Leaf:     leaf,
		Span:     kw.Span,
	}
	if t := p.peek(); t.Type == TKeyword && t.Text == "mixin" {
		p.next()
		mixin, ok := p.expect(TIdent, "mixin reference")
		if !ok {
			return d, false
		}
		d.Mixin = mixin.Text
		d.MixinSpan = mixin.Span
	}
	attrs, content, end, ok := p.parseMembers(d.Name)
	d.Attrs = attrs
	d.Content = content
	d.Span = kw.Span.Extend(end)
	return d, ok
}

func (p *parser) parseMixin() (Decl, bool) {
	kw := p.next()
	name, ok := p.expect(TIdent, "mixin declaration")
	if !ok {
		return nil, false
	}
	d := &MixinDecl{Name: name.Text, NameSpan: name.Span, Span: kw.Span}
	attrs, content, end, ok := p.parseMembers(d.Name)
	d.Attrs = attrs
	d.Content = content
	d.Span = kw.Span.Extend(end)
	return d, ok
}

// parseMembers parses a `{ member, ... }` body. The content member, when
// present, must be the final member: sequence commas inside a content
// expression bind to the expression, not to the member list.
func (p *parser) parseMembers(owner string) (attrs []*AttrDecl, content ContentExpr, end Span, ok bool) {
	open, okBrace := p.expect(TLBrace, "declaration body")
	end = open.Span
	if !okBrace {
		return nil, nil, end, false
	}
	for {
		tok := p.peek()
		switch {
		case tok.Type == TRBrace:
			p.next()
			return attrs, content, tok.Span, true
		case tok.Type == TEOF:
			p.errorf(CodeParseMalformedDecl, tok.Span, "unterminated body of %q", owner)
			return attrs, content, tok.Span, false
		case tok.Type == TIdent && tok.Text == "content" && p.peekAt(1).Type == TColon:
			p.next() // content
			p.next() // colon
			expr, okExpr := p.parseContentExpr()
			if !okExpr {
				return attrs, content, tok.Span, false
			}
			content = expr
		case tok.Type == TIdent:
			attr, okAttr := p.parseAttrMember()
			if !okAttr {
				return attrs, content, tok.Span, false
			}
			attrs = append(attrs, attr)
		default:
			p.errorf(CodeParseMalformedDecl, tok.Span,
				"expected a member or '}' in body of %q, found %s", owner, tok)
			return attrs, content, tok.Span, false
		}
		// member separator
		if t := p.peek(); t.Type == TComma {
			p.next()
		} else if t.Type != TRBrace {
			p.errorf(CodeParseMalformedDecl, t.Span,
				"expected ',' or '}' after member in body of %q, found %s", owner, t)
			return attrs, content, t.Span, false
		}
	}
}

func (p *parser) parseAttrMember() (*AttrDecl, bool) {
	name := p.next()
	if _, ok := p.expect(TColon, "attribute member"); !ok {
		return nil, false
	}
	typ, ok := p.expect(TIdent, "attribute type")
	if !ok {
		return nil, false
	}
	d := &AttrDecl{
		Name:     name.Text,
		NameSpan: name.Span,
		Type:     typ.Text,
		TypeSpan: typ.Span,
		Span:     name.Span.Extend(typ.Span),
	}
	if t := p.peek(); t.Type == TQuestion {
		p.next()
		d.Optional = true
		d.Span = d.Span.Extend(t.Span)
	}
	return d, true
}

func (p *parser) parseGroup() (Decl, bool) {
	kw := p.next()
	name, ok := p.expect(TIdent, "group declaration")
	if !ok {
		return nil, false
	}
	if _, ok := p.expect(TEquals, "group declaration"); !ok {
		return nil, false
	}
	expr, ok := p.parseContentExpr()
	if !ok {
		return nil, false
	}
	semi, ok := p.expect(TSemi, "group declaration")
	if !ok {
		return nil, false
	}
	return &GroupDecl{
		Name:     name.Text,
		NameSpan: name.Span,
		Expr:     expr,
		Span:     kw.Span.Extend(semi.Span),
	}, true
}

func (p *parser) parseEnum() (Decl, bool) {
	kw := p.next()
	name, ok := p.expect(TIdent, "enum declaration")
	if !ok {
		return nil, false
	}
	if _, ok := p.expect(TLBrace, "enum declaration"); !ok {
		return nil, false
	}
	d := &EnumDecl{Name: name.Text, NameSpan: name.Span, Span: kw.Span}
	for {
		tok := p.peek()
		if tok.Type == TRBrace {
			p.next()
			d.Span = kw.Span.Extend(tok.Span)
			return d, true
		}
		val, ok := p.expect(TIdent, "enum value")
		if !ok {
			return d, false
		}
		d.Values = append(d.Values, val.Text)
		if t := p.peek(); t.Type == TComma {
			p.next()
		} else if t.Type != TRBrace {
			p.errorf(CodeParseMalformedDecl, t.Span,
				"expected ',' or '}' in enum %q, found %s", d.Name, t)
			return d, false
		}
	}
}

func (p *parser) parseType() (Decl, bool) {
	kw := p.next()
	name, ok := p.expect(TIdent, "type declaration")
	if !ok {
		return nil, false
	}
	if _, ok := p.expect(TEquals, "type declaration"); !ok {
		return nil, false
	}
	target, ok := p.expect(TIdent, "type declaration")
	if !ok {
		return nil, false
	}
	semi, ok := p.expect(TSemi, "type declaration")
	if !ok {
		return nil, false
	}
	return &TypeDecl{
		Name:       name.Text,
		NameSpan:   name.Span,
		Target:     target.Text,
		TargetSpan: target.Span,
		Span:       kw.Span.Extend(semi.Span),
	}, true
}

// Content expressions, loosest to tightest: choice `|`, interleave `&`,
// sequence `,`, postfix `? * + {m,n}`.

func (p *parser) parseContentExpr() (ContentExpr, bool) {
	return p.parseChoice()
}

func (p *parser) parseChoice() (ContentExpr, bool) {
	first, ok := p.parseInterleave()
	if !ok {
		return nil, false
	}
	if p.peek().Type != TPipe {
		return first, true
	}
	parts := []ContentExpr{first}
	span := first.Pos()
	for p.peek().Type == TPipe {
		p.next()
		part, ok := p.parseInterleave()
		if !ok {
			return nil, false
		}
		parts = append(parts, part)
		span = span.Extend(part.Pos())
	}
	return &ChoiceExpr{Parts: parts, Span: span}, true
}

func (p *parser) parseInterleave() (ContentExpr, bool) {
	first, ok := p.parseSequence()
	if !ok {
		return nil, false
	}
	if p.peek().Type != TAmp {
		return first, true
	}
	parts := []ContentExpr{first}
	span := first.Pos()
	for p.peek().Type == TAmp {
		p.next()
		part, ok := p.parseSequence()
		if !ok {
			return nil, false
		}
		parts = append(parts, part)
		span = span.Extend(part.Pos())
	}
	return &InterleaveExpr{Parts: parts, Span: span}, true
}

func (p *parser) parseSequence() (ContentExpr, bool) {
	first, ok := p.parsePostfix()
	if !ok {
		return nil, false
	}
	if p.peek().Type != TComma {
		return first, true
	}
	parts := []ContentExpr{first}
	span := first.Pos()
	for p.peek().Type == TComma {
		p.next()
		part, ok := p.parsePostfix()
		if !ok {
			return nil, false
		}
		parts = append(parts, part)
		span = span.Extend(part.Pos())
	}
	return &SequenceExpr{Parts: parts, Span: span}, true
}

func (p *parser) parsePostfix() (ContentExpr, bool) {
	expr, ok := p.parsePrimary()
	if !ok {
		return nil, false
	}
	for {
		tok := p.peek()
		switch tok.Type {
		case TQuestion:
			p.next()
			expr = &RepeatExpr{Sub: expr, Min: 0, Max: 1, Span: expr.Pos().Extend(tok.Span)}
		case TStar:
			p.next()
			expr = &RepeatExpr{Sub: expr, Min: 0, Max: Unbounded, Span: expr.Pos().Extend(tok.Span)}
		case TPlus:
			p.next()
			expr = &RepeatExpr{Sub: expr, Min: 1, Max: Unbounded, Span: expr.Pos().Extend(tok.Span)}
		case TLBrace:
			rep, ok := p.parseBoundedRepeat(expr)
			if !ok {
				return nil, false
			}
			expr = rep
		default:
			return expr, true
		}
	}
}

func (p *parser) parseBoundedRepeat(sub ContentExpr) (ContentExpr, bool) {
	open := p.next() // '{'
	minTok, ok := p.expect(TNumber, "repetition bound")
	if !ok {
		return nil, false
	}
	minVal, err := strconv.Atoi(minTok.Text)
	if err != nil {
		p.errorf(CodeParseBadRepeat, minTok.Span, "invalid repetition bound %q", minTok.Text)
		return nil, false
	}
	maxVal := minVal
	if p.peek().Type == TComma {
		p.next()
		if t := p.peek(); t.Type == TNumber {
			p.next()
			maxVal, err = strconv.Atoi(t.Text)
			if err != nil {
				p.errorf(CodeParseBadRepeat, t.Span, "invalid repetition bound %q", t.Text)
				return nil, false
			}
		} else {
			maxVal = Unbounded
		}
	}
	closeTok, ok := p.expect(TRBrace, "repetition bound")
	if !ok {
		return nil, false
	}
	span := sub.Pos().Extend(open.Span).Extend(closeTok.Span)
	if maxVal != Unbounded && maxVal < minVal {
		p.errorf(CodeParseBadRepeat, span, "repetition maximum %d is below minimum %d", maxVal, minVal)
		maxVal = minVal
	}
	return &RepeatExpr{Sub: sub, Min: minVal, Max: maxVal, Span: span}, true
}

func (p *parser) parsePrimary() (ContentExpr, bool) {
	tok := p.peek()
	switch tok.Type {
	case TIdent:
		p.next()
		if tok.Text == "empty" {
			return &EmptyExpr{Span: tok.Span}, true
		}
		return &ReferenceExpr{Name: tok.Text, Span: tok.Span}, true
	case TLParen:
		p.next()
		expr, ok := p.parseContentExpr()
		if !ok {
			return nil, false
		}
		if _, ok := p.expect(TRParen, "content expression"); !ok {
			return nil, false
		}
		return expr, true
	default:
		p.errorf(CodeParseMalformedDecl, tok.Span,
			"expected an element name, 'empty' or '(' in content expression, found %s", tok)
		return nil, false
	}
}
