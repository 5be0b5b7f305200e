package mlang

import (
	"sort"

	"github.com/pkg/errors"
)

// Bind resolves a parsed schema into its compiled IR. Name collection,
// reference resolution, mixin merging, group inlining and productivity
// analysis each report independently, so one pass surfaces every problem; an
// unresolved reference degrades to an empty content model rather than
// poisoning unrelated declarations. A Schema is returned only when no
// error-severity diagnostic was produced. The returned error is reserved for
// compile faults (internal inconsistencies or the automaton state ceiling),
// which abort the whole schema.
func Bind(ast *SchemaAST, limits CompileLimits) (*Schema, []Diagnostic, error) {
	b := &binder{
		schema:  &Schema{},
		limits:  limits,
		mixins:  map[string]*MixinDecl{},
		groups:  map[string]*GroupDecl{},
		seen:    map[string]Span{},
		grpMark: map[string]int{},
	}
	b.collect(ast)
	b.bindTypes(ast)
	b.bindElements()
	b.checkGroups()
	b.checkProductivity()

	sort.SliceStable(b.diags, func(i, j int) bool {
		return b.diags[i].Span.Start < b.diags[j].Span.Start
	})
	if HasErrors(b.diags) {
		return nil, b.diags, nil
	}
	if err := b.compileAutomata(); err != nil {
		return nil, b.diags, err
	}
	b.schema.rebuildIndexes()
	return b.schema, b.diags, nil
}

type binder struct {
	schema *Schema
	limits CompileLimits
	diags  []Diagnostic

	elemDecls []*ElementDecl // handle-aligned with schema.Elements
	mixins    map[string]*MixinDecl
	groups    map[string]*GroupDecl

	// seen records the first declaration span per namespaced name; keys are
	// prefixed with the namespace so kinds collide only where the language
	// shares a lookup space (elements with groups, types with enums).
	seen map[string]Span

	enumDecls  []*EnumDecl
	aliasDecls []*TypeDecl

	mixinAttrs map[string][]AttrHandle
	grpModels  map[string]*ContentModel
	grpMark    map[string]int // 0 unvisited, 1 in progress, 2 done
}

func (b *binder) errorf(code ErrorCode, span Span, format string, args ...any) {
	b.diags = append(b.diags, errDiag(code, span, format, args...))
}

func (b *binder) duplicate(kind, name string, span, first Span) {
	d := errDiag(CodeBindDuplicate, span, "duplicate %s %q", kind, name)
	d.Related = []Related{{Label: "previous declaration is here", Span: first}}
	b.diags = append(b.diags, d)
}

// declare enters name into a namespace, reporting a duplicate and returning
// false when the name is taken. The first occurrence wins.
func (b *binder) declare(namespace, kind, name string, span Span) bool {
	key := namespace + "\x00" + name
	if first, ok := b.seen[key]; ok {
		b.duplicate(kind, name, span, first)
		return false
	}
	b.seen[key] = span
	return true
}

// collect builds the per-kind name tables. Elements and groups share the
// content-reference namespace; enums and type aliases share the value-type
// namespace with the builtins.
func (b *binder) collect(ast *SchemaAST) {
	for _, bt := range builtinTypes {
		b.seen["type\x00"+bt.Name] = Span{}
	}
	for _, decl := range ast.Decls {
		switch d := decl.(type) {
		case *ElementDecl:
			if b.declare("ref", "element", d.Name, d.NameSpan) {
				b.schema.Elements = append(b.schema.Elements, ElementDef{
					Handle: ElemHandle(len(b.schema.Elements)),
					Name:   d.Name,
					Leaf:   d.Leaf,
				})
				b.elemDecls = append(b.elemDecls, d)
			}
		case *GroupDecl:
			if b.declare("ref", "group", d.Name, d.NameSpan) {
				b.groups[d.Name] = d
			}
		case *MixinDecl:
			if b.declare("mixin", "mixin", d.Name, d.NameSpan) {
				b.mixins[d.Name] = d
			}
		case *EnumDecl:
			if b.declare("type", "type", d.Name, d.NameSpan) {
				b.enumDecls = append(b.enumDecls, d)
			}
		case *TypeDecl:
			if b.declare("type", "type", d.Name, d.NameSpan) {
				b.aliasDecls = append(b.aliasDecls, d)
			}
		default:
			panic(errors.Errorf("unhandled declaration %T", decl))
		}
	}
}

// bindTypes seeds the builtin value types and resolves enums and aliases.
func (b *binder) bindTypes(ast *SchemaAST) {
	for _, bt := range builtinTypes {
		b.schema.Types = append(b.schema.Types, TypeDef{
			Handle: TypeHandle(len(b.schema.Types)),
			Name:   bt.Name,
			Kind:   TypeBuiltin,
			Base:   -1,
		})
	}
	for _, d := range b.enumDecls {
		b.schema.Types = append(b.schema.Types, TypeDef{
			Handle: TypeHandle(len(b.schema.Types)),
			Name:   d.Name,
			Kind:   TypeEnum,
			Base:   -1,
			Values: d.Values,
		})
	}
	// aliases enter the arena first so that forward and mutual references
	// resolve; targets are filled in a second pass.
	aliasBase := len(b.schema.Types)
	b.schema.Types = append(b.schema.Types, make([]TypeDef, len(b.aliasDecls))...)
	b.schema.rebuildIndexes()
	for i, d := range b.aliasDecls {
		h := TypeHandle(aliasBase + i)
		def := TypeDef{Handle: h, Name: d.Name, Kind: TypeAlias, Base: -1}
		target, ok := b.schema.TypeByName(d.Target)
		if !ok {
			b.errorf(CodeBindUnresolved, d.TargetSpan, "unknown type %q", d.Target)
			target, _ = b.schema.TypeByName("string")
		}
		def.Base = target
		b.schema.Types[h] = def
	}
	b.breakAliasCycles()
}

// breakAliasCycles reports alias chains that never reach a builtin or enum
// and reroutes them to string so later value checks stay total.
func (b *binder) breakAliasCycles() {
	str, _ := b.schema.TypeByName("string")
	for i := range b.schema.Types {
		def := &b.schema.Types[i]
		if def.Kind != TypeAlias {
			continue
		}
		slow := def.Base
		hops := 0
		for {
			t := b.schema.Type(slow)
			if t == nil || t.Kind != TypeAlias {
				break
			}
			slow = t.Base
			hops++
			if hops > len(b.schema.Types) {
				b.errorf(CodeBindGroupCycle, b.aliasSpan(def.Name),
					"recursive type alias %q", def.Name)
				def.Base = str
				break
			}
		}
	}
}

func (b *binder) aliasSpan(name string) Span {
	for _, d := range b.aliasDecls {
		if d.Name == name {
			return d.NameSpan
		}
	}
	return Span{}
}

// bindElements merges mixins and resolves attribute and content members for
// every element, in handle order.
func (b *binder) bindElements() {
	b.mixinAttrs = map[string][]AttrHandle{}
	for i, decl := range b.elemDecls {
		def := &b.schema.Elements[i]

		attrs := decl.Attrs
		content := decl.Content
		if decl.Mixin != "" {
			mixin, ok := b.mixins[decl.Mixin]
			if !ok {
				b.errorf(CodeBindUnknownMixin, decl.MixinSpan, "unknown mixin %q", decl.Mixin)
			} else {
				content = b.mergeContent(decl, mixin)
				def.Attrs = append(def.Attrs, b.sharedMixinAttrs(mixin)...)
			}
		}

		names := map[string]Span{}
		for _, h := range def.Attrs {
			names[b.schema.Attribute(h).Name] = Span{}
		}
		for _, a := range attrs {
			if first, dup := names[a.Name]; dup {
				d := errDiag(CodeBindDuplicateMember, a.NameSpan,
					"duplicate attribute %q on element %q", a.Name, decl.Name)
				if first != (Span{}) {
					d.Related = []Related{{Label: "previous declaration is here", Span: first}}
				}
				b.diags = append(b.diags, d)
				continue
			}
			names[a.Name] = a.NameSpan
			def.Attrs = append(def.Attrs, b.newAttr(a))
		}

		if decl.Leaf && content != nil {
			b.errorf(CodeBindBadMember, decl.NameSpan,
				"leaf element %q cannot declare a content model", decl.Name)
			content = nil
		}
		if content == nil {
			def.Content = &ContentModel{Kind: ContentEmpty}
		} else {
			def.Content = b.resolveExpr(content)
		}
	}
}

// mergeContent applies the mixin's content member when the element has none.
func (b *binder) mergeContent(decl *ElementDecl, mixin *MixinDecl) ContentExpr {
	if mixin.Content == nil {
		return decl.Content
	}
	if decl.Content != nil {
		d := errDiag(CodeBindDuplicateMember, decl.NameSpan,
			"element %q and mixin %q both declare content", decl.Name, mixin.Name)
		d.Related = []Related{{Label: "mixin content is here", Span: mixin.Content.Pos()}}
		b.diags = append(b.diags, d)
		return decl.Content
	}
	return mixin.Content
}

// sharedMixinAttrs materializes a mixin's attribute definitions once; every
// element using the mixin shares the same handles.
func (b *binder) sharedMixinAttrs(mixin *MixinDecl) []AttrHandle {
	if hs, ok := b.mixinAttrs[mixin.Name]; ok {
		return hs
	}
	var hs []AttrHandle
	names := map[string]bool{}
	for _, a := range mixin.Attrs {
		if names[a.Name] {
			b.errorf(CodeBindDuplicateMember, a.NameSpan,
				"duplicate attribute %q in mixin %q", a.Name, mixin.Name)
			continue
		}
		names[a.Name] = true
		hs = append(hs, b.newAttr(a))
	}
	b.mixinAttrs[mixin.Name] = hs
	return hs
}

func (b *binder) newAttr(a *AttrDecl) AttrHandle {
	typ, ok := b.schema.TypeByName(a.Type)
	if !ok {
		b.errorf(CodeBindUnresolved, a.TypeSpan, "unknown type %q", a.Type)
		typ, _ = b.schema.TypeByName("string")
	}
	h := AttrHandle(len(b.schema.Attributes))
	b.schema.Attributes = append(b.schema.Attributes, AttributeDef{
		Handle:   h,
		Name:     a.Name,
		Type:     typ,
		Optional: a.Optional,
	})
	return h
}

// resolveExpr lowers a content expression to its handle form, inlining group
// references. An unresolved reference degrades to Empty after reporting, so
// the rest of the model still binds and compiles.
func (b *binder) resolveExpr(expr ContentExpr) *ContentModel {
	switch e := expr.(type) {
	case *EmptyExpr:
		return &ContentModel{Kind: ContentEmpty}
	case *ReferenceExpr:
		if h, ok := b.elemHandle(e.Name); ok {
			return &ContentModel{Kind: ContentRef, Ref: h}
		}
		if _, ok := b.groups[e.Name]; ok {
			return b.groupModel(e.Name, e.Span)
		}
		b.errorf(CodeBindUnresolved, e.Span, "unknown element or group %q", e.Name)
		return &ContentModel{Kind: ContentEmpty}
	case *SequenceExpr:
		return &ContentModel{Kind: ContentSeq, Parts: b.resolveParts(e.Parts)}
	case *ChoiceExpr:
		return &ContentModel{Kind: ContentChoice, Parts: b.resolveParts(e.Parts)}
	case *InterleaveExpr:
		return &ContentModel{Kind: ContentInterleave, Parts: b.resolveParts(e.Parts)}
	case *RepeatExpr:
		return &ContentModel{
			Kind:  ContentRepeat,
			Parts: []*ContentModel{b.resolveExpr(e.Sub)},
			Min:   e.Min,
			Max:   e.Max,
		}
	default:
		panic(errors.Errorf("unhandled content expression %T", expr))
	}
}

func (b *binder) resolveParts(parts []ContentExpr) []*ContentModel {
	out := make([]*ContentModel, len(parts))
	for i, p := range parts {
		out[i] = b.resolveExpr(p)
	}
	return out
}

func (b *binder) elemHandle(name string) (ElemHandle, bool) {
	// indexes were built by bindTypes, after collection finished
	return b.schema.ElementByName(name)
}

// groupModel resolves a group body with cycle detection: a group reached
// again while still being expanded is recursive, which inlining cannot
// express.
func (b *binder) groupModel(name string, refSpan Span) *ContentModel {
	if b.grpModels == nil {
		b.grpModels = map[string]*ContentModel{}
	}
	switch b.grpMark[name] {
	case 2:
		return b.grpModels[name]
	case 1:
		b.errorf(CodeBindGroupCycle, refSpan, "recursive group %q", name)
		return &ContentModel{Kind: ContentEmpty}
	}
	b.grpMark[name] = 1
	model := b.resolveExpr(b.groups[name].Expr)
	b.grpMark[name] = 2
	b.grpModels[name] = model
	return model
}

// checkGroups forces resolution of groups no element references, so their
// own errors still surface.
func (b *binder) checkGroups() {
	names := make([]string, 0, len(b.groups))
	for name := range b.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.groupModel(name, b.groups[name].NameSpan)
	}
}

// checkProductivity rejects elements whose content model no finite child
// sequence can satisfy. This is a fixpoint over the element reference graph,
// not a plain cycle check: direct recursion under a zero-minimum repeat is
// legal because it can match zero occurrences.
func (b *binder) checkProductivity() {
	productive := make([]bool, len(b.schema.Elements))
	for changed := true; changed; {
		changed = false
		for i := range b.schema.Elements {
			if productive[i] {
				continue
			}
			if modelProductive(b.schema.Elements[i].Content, productive) {
				productive[i] = true
				changed = true
			}
		}
	}
	for i, ok := range productive {
		if ok {
			continue
		}
		decl := b.elemDecls[i]
		b.errorf(CodeBindNonProductive, decl.NameSpan,
			"content model of element %q can never be satisfied", decl.Name)
	}
}

func modelProductive(m *ContentModel, productive []bool) bool {
	if m == nil {
		return true
	}
	switch m.Kind {
	case ContentEmpty:
		return true
	case ContentRef:
		return productive[m.Ref]
	case ContentSeq, ContentInterleave:
		for _, p := range m.Parts {
			if !modelProductive(p, productive) {
				return false
			}
		}
		return true
	case ContentChoice:
		for _, p := range m.Parts {
			if modelProductive(p, productive) {
				return true
			}
		}
		return false
	case ContentRepeat:
		return m.Min == 0 || modelProductive(m.Parts[0], productive)
	default:
		panic(errors.Errorf("unhandled content kind %q", m.Kind))
	}
}

// compileAutomata compiles every element's content model. Productivity has
// been verified, so failures are internal faults; the first one aborts
// compilation of the whole schema.
func (b *binder) compileAutomata() error {
	for i := range b.schema.Elements {
		def := &b.schema.Elements[i]
		dfa, err := compileContent(def.Content, b.limits)
		if err != nil {
			b.errorf(CodeFaultStateLimit, b.elemDecls[i].NameSpan,
				"cannot compile content model of element %q: %v", def.Name, err)
			return errors.Wrapf(err, "compile content model of element %q", def.Name)
		}
		def.Automaton = dfa
	}
	return nil
}
