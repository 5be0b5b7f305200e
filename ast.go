package mlang

import (
	"fmt"
	"strings"
)

// SchemaAST is the parser's output: the declarations of one schema source in
// source order, before any name resolution. The binder reads it and discards
// it; nothing else holds on to AST nodes.
type SchemaAST struct {
	Decls []Decl
}

// Canonical renders the AST back to schema source in a normal form. Parsing
// the canonical text yields an AST structurally equal to the original, spans
// aside.
func (a *SchemaAST) Canonical() string {
	var b strings.Builder
	for i, d := range a.Decls {
		if i > 0 {
			b.WriteString("\n")
		}
		d.canon(&b)
		b.WriteString("\n")
	}
	return b.String()
}

// Decl is a top-level schema declaration.
type Decl interface {
	// DeclName returns the declared name.
	DeclName() string
	// Pos returns the span of the whole declaration.
	Pos() Span
	canon(b *strings.Builder)
}

// ElementDecl declares an element (or, with Leaf set, a text-carrying leaf
// element) together with its attribute members and content model.
type ElementDecl struct {
	Name      string
	NameSpan  Span
	Leaf      bool
	Mixin     string
	MixinSpan Span
	Attrs     []*AttrDecl
	Content   ContentExpr // nil when no content member was written
	Span      Span
}

func (d *ElementDecl) DeclName() string { return d.Name }
func (d *ElementDecl) Pos() Span        { return d.Span }

func (d *ElementDecl) canon(b *strings.Builder) {
	kw := "element"
	if d.Leaf {
		kw = "leaf"
	}
	fmt.Fprintf(b, "%s %s ", kw, d.Name)
	if d.Mixin != "" {
		fmt.Fprintf(b, "mixin %s ", d.Mixin)
	}
	b.WriteString("{")
	for i, a := range d.Attrs {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n    ")
		a.canon(b)
	}
	if d.Content != nil {
		if len(d.Attrs) > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n    content: ")
		b.WriteString(d.Content.String())
	}
	if len(d.Attrs) > 0 || d.Content != nil {
		b.WriteString("\n")
	}
	b.WriteString("}")
}

// AttrDecl declares one attribute member of an element or mixin.
type AttrDecl struct {
	Name     string
	NameSpan Span
	Type     string
	TypeSpan Span
	Optional bool
	Span     Span
}

func (d *AttrDecl) canon(b *strings.Builder) {
	fmt.Fprintf(b, "%s: %s", d.Name, d.Type)
	if d.Optional {
		b.WriteString("?")
	}
}

// MixinDecl declares a reusable member set merged into referencing elements.
type MixinDecl struct {
	Name     string
	NameSpan Span
	Attrs    []*AttrDecl
	Content  ContentExpr
	Span     Span
}

func (d *MixinDecl) DeclName() string { return d.Name }
func (d *MixinDecl) Pos() Span        { return d.Span }

func (d *MixinDecl) canon(b *strings.Builder) {
	fmt.Fprintf(b, "mixin %s {", d.Name)
	for i, a := range d.Attrs {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n    ")
		a.canon(b)
	}
	if d.Content != nil {
		if len(d.Attrs) > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n    content: ")
		b.WriteString(d.Content.String())
	}
	if len(d.Attrs) > 0 || d.Content != nil {
		b.WriteString("\n")
	}
	b.WriteString("}")
}

// GroupDecl names a content-model fragment for reuse inside content
// expressions. Groups are inlined by the binder and never validated as
// elements themselves.
type GroupDecl struct {
	Name     string
	NameSpan Span
	Expr     ContentExpr
	Span     Span
}

func (d *GroupDecl) DeclName() string { return d.Name }
func (d *GroupDecl) Pos() Span        { return d.Span }

func (d *GroupDecl) canon(b *strings.Builder) {
	fmt.Fprintf(b, "group %s = %s;", d.Name, d.Expr.String())
}

// EnumDecl declares an enumerated attribute value type.
type EnumDecl struct {
	Name     string
	NameSpan Span
	Values   []string
	Span     Span
}

func (d *EnumDecl) DeclName() string { return d.Name }
func (d *EnumDecl) Pos() Span        { return d.Span }

func (d *EnumDecl) canon(b *strings.Builder) {
	fmt.Fprintf(b, "enum %s { %s }", d.Name, strings.Join(d.Values, ", "))
}

// TypeDecl declares an alias for another attribute value type.
type TypeDecl struct {
	Name       string
	NameSpan   Span
	Target     string
	TargetSpan Span
	Span       Span
}

func (d *TypeDecl) DeclName() string { return d.Name }
func (d *TypeDecl) Pos() Span        { return d.Span }

func (d *TypeDecl) canon(b *strings.Builder) {
	fmt.Fprintf(b, "type %s = %s;", d.Name, d.Target)
}

// ContentExpr is the closed set of content-model expression nodes. Every
// consumer switches over all variants; adding an operator means visiting each
// switch.
type ContentExpr interface {
	Pos() Span
	// String renders the expression in canonical form with explicit
	// grouping where precedence requires it.
	String() string
	contentExpr()
}

// EmptyExpr matches the empty child sequence.
type EmptyExpr struct {
	Span Span
}

func (e *EmptyExpr) Pos() Span      { return e.Span }
func (e *EmptyExpr) String() string { return "empty" }
func (e *EmptyExpr) contentExpr()   {}

// ReferenceExpr names a declared element or group.
type ReferenceExpr struct {
	Name string
	Span Span
}

func (e *ReferenceExpr) Pos() Span      { return e.Span }
func (e *ReferenceExpr) String() string { return e.Name }
func (e *ReferenceExpr) contentExpr()   {}

// SequenceExpr matches its parts in order.
type SequenceExpr struct {
	Parts []ContentExpr
	Span  Span
}

func (e *SequenceExpr) Pos() Span    { return e.Span }
func (e *SequenceExpr) contentExpr() {}

func (e *SequenceExpr) String() string {
	return joinParts(e.Parts, ", ", func(p ContentExpr) bool {
		switch p.(type) {
		case *ChoiceExpr, *InterleaveExpr, *SequenceExpr:
			return true
		}
		return false
	})
}

// ChoiceExpr matches exactly one of its parts.
type ChoiceExpr struct {
	Parts []ContentExpr
	Span  Span
}

func (e *ChoiceExpr) Pos() Span    { return e.Span }
func (e *ChoiceExpr) contentExpr() {}

func (e *ChoiceExpr) String() string {
	return joinParts(e.Parts, " | ", func(p ContentExpr) bool {
		_, isChoice := p.(*ChoiceExpr)
		return isChoice
	})
}

// InterleaveExpr matches any interleaving of its parts.
type InterleaveExpr struct {
	Parts []ContentExpr
	Span  Span
}

func (e *InterleaveExpr) Pos() Span    { return e.Span }
func (e *InterleaveExpr) contentExpr() {}

func (e *InterleaveExpr) String() string {
	return joinParts(e.Parts, " & ", func(p ContentExpr) bool {
		switch p.(type) {
		case *ChoiceExpr, *InterleaveExpr:
			return true
		}
		return false
	})
}

// RepeatExpr matches between Min and Max occurrences of Sub; Max of
// Unbounded means no upper bound. Invariant: Min <= Max when bounded.
type RepeatExpr struct {
	Sub  ContentExpr
	Min  int
	Max  int
	Span Span
}

// Unbounded marks a RepeatExpr with no upper occurrence bound.
const Unbounded = -1

func (e *RepeatExpr) Pos() Span    { return e.Span }
func (e *RepeatExpr) contentExpr() {}

func (e *RepeatExpr) String() string {
	sub := e.Sub.String()
	switch e.Sub.(type) {
	case *SequenceExpr, *ChoiceExpr, *InterleaveExpr, *RepeatExpr:
		sub = "(" + sub + ")"
	}
	switch {
	case e.Min == 0 && e.Max == 1:
		return sub + "?"
	case e.Min == 0 && e.Max == Unbounded:
		return sub + "*"
	case e.Min == 1 && e.Max == Unbounded:
		return sub + "+"
	case e.Max == Unbounded:
		return fmt.Sprintf("%s{%d,}", sub, e.Min)
	case e.Min == e.Max:
		return fmt.Sprintf("%s{%d}", sub, e.Min)
	default:
		return fmt.Sprintf("%s{%d,%d}", sub, e.Min, e.Max)
	}
}

func joinParts(parts []ContentExpr, sep string, needsParens func(ContentExpr) bool) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		s := p.String()
		if needsParens(p) {
			s = "(" + s + ")"
		}
		strs[i] = s
	}
	return strings.Join(strs, sep)
}
