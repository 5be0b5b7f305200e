package mlang

import "fmt"

// Handles identify resolved declarations by arena index instead of by name.
// Lookups through a handle are O(1) and survive renames in source; a negative
// handle is invalid.
type (
	// ElemHandle identifies an ElementDef within its Schema.
	ElemHandle int
	// AttrHandle identifies an AttributeDef within its Schema.
	AttrHandle int
	// TypeHandle identifies a TypeDef within its Schema.
	TypeHandle int
)

// Valid reports whether the handle points at a definition.
func (h ElemHandle) Valid() bool { return h >= 0 }

// Valid reports whether the handle points at a definition.
func (h AttrHandle) Valid() bool { return h >= 0 }

// Valid reports whether the handle points at a definition.
func (h TypeHandle) Valid() bool { return h >= 0 }

// Schema is the compiled, closed representation of one schema source: the
// binder's output with every name resolved to a handle and every content
// model compiled to its automaton. A Schema is immutable once compilation
// completes and is safe for concurrent use by any number of validation
// sessions. All fields are plain data, so the IR can be handed to code
// generators or serialized as-is.
type Schema struct {
	Elements   []ElementDef   `json:"elements"`
	Attributes []AttributeDef `json:"attributes"`
	Types      []TypeDef      `json:"types"`

	elemByName map[string]ElemHandle
	typeByName map[string]TypeHandle
}

// ElementDef is one resolved element declaration.
type ElementDef struct {
	Handle    ElemHandle        `json:"handle"`
	Name      string            `json:"name"`
	Leaf      bool              `json:"leaf,omitempty"`
	Attrs     []AttrHandle      `json:"attrs,omitempty"`
	Content   *ContentModel     `json:"content,omitempty"`
	Automaton *ContentAutomaton `json:"automaton,omitempty"`
}

// AttributeDef is one resolved attribute declaration. Attributes merged in
// from a mixin share one AttributeDef across every element using the mixin.
type AttributeDef struct {
	Handle   AttrHandle `json:"handle"`
	Name     string     `json:"name"`
	Type     TypeHandle `json:"type"`
	Optional bool       `json:"optional,omitempty"`
}

// TypeKind classifies an attribute value type.
type TypeKind string

const (
	TypeBuiltin TypeKind = "builtin"
	TypeAlias   TypeKind = "alias"
	TypeEnum    TypeKind = "enum"
)

// TypeDef is one resolved attribute value type.
type TypeDef struct {
	Handle TypeHandle `json:"handle"`
	Name   string     `json:"name"`
	Kind   TypeKind   `json:"kind"`
	// Base is the aliased type for TypeAlias definitions.
	Base TypeHandle `json:"base,omitempty"`
	// Values are the permitted literals of a TypeEnum definition.
	Values []string `json:"values,omitempty"`
}

// ContentKind tags a ContentModel node.
type ContentKind string

const (
	ContentEmpty      ContentKind = "empty"
	ContentRef        ContentKind = "ref"
	ContentSeq        ContentKind = "seq"
	ContentChoice     ContentKind = "choice"
	ContentInterleave ContentKind = "interleave"
	ContentRepeat     ContentKind = "repeat"
)

// ContentModel is the resolved form of a content expression: references are
// element handles, group references are already inlined. For ContentRepeat
// the single operand is Parts[0] and Max of Unbounded means no upper bound.
type ContentModel struct {
	Kind  ContentKind     `json:"kind"`
	Ref   ElemHandle      `json:"ref,omitempty"`
	Parts []*ContentModel `json:"parts,omitempty"`
	Min   int             `json:"min,omitempty"`
	Max   int             `json:"max,omitempty"`
}

// Element returns the definition behind a handle.
func (s *Schema) Element(h ElemHandle) *ElementDef {
	if !h.Valid() || int(h) >= len(s.Elements) {
		return nil
	}
	return &s.Elements[h]
}

// ElementByName resolves an element name to its handle.
func (s *Schema) ElementByName(name string) (ElemHandle, bool) {
	h, ok := s.elemByName[name]
	return h, ok
}

// Attribute returns the definition behind a handle.
func (s *Schema) Attribute(h AttrHandle) *AttributeDef {
	if !h.Valid() || int(h) >= len(s.Attributes) {
		return nil
	}
	return &s.Attributes[h]
}

// Type returns the definition behind a handle.
func (s *Schema) Type(h TypeHandle) *TypeDef {
	if !h.Valid() || int(h) >= len(s.Types) {
		return nil
	}
	return &s.Types[h]
}

// TypeByName resolves a type name to its handle.
func (s *Schema) TypeByName(name string) (TypeHandle, bool) {
	h, ok := s.typeByName[name]
	return h, ok
}

// ElementNames renders a handle list as element names, for diagnostics.
func (s *Schema) ElementNames(hs []ElemHandle) []string {
	names := make([]string, len(hs))
	for i, h := range hs {
		if def := s.Element(h); def != nil {
			names[i] = def.Name
		} else {
			names[i] = fmt.Sprintf("element#%d", int(h))
		}
	}
	return names
}

// rebuildIndexes fills the name lookup maps from the arenas. Called once at
// the end of binding; the maps are read-only afterwards.
func (s *Schema) rebuildIndexes() {
	s.elemByName = make(map[string]ElemHandle, len(s.Elements))
	for i := range s.Elements {
		s.elemByName[s.Elements[i].Name] = ElemHandle(i)
	}
	s.typeByName = make(map[string]TypeHandle, len(s.Types))
	for i := range s.Types {
		s.typeByName[s.Types[i].Name] = TypeHandle(i)
	}
}
