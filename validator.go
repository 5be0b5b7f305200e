package mlang

import (
	"fmt"
	"strings"
)

// DocumentAttr is one attribute assignment reported with an element-open
// event.
type DocumentAttr struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Position Position `json:"position"`
}

// Session validates one document's structural events against a compiled
// schema. A session owns a stack of open elements, each with its own
// automaton state; the schema itself is read-only, so any number of sessions
// may share it concurrently. Sessions are not safe for concurrent use and
// are discarded after Finish.
type Session struct {
	schema *Schema
	root   string
	stack  []sessionFrame
	all    []Violation
	opened bool
	done   bool
}

// sessionFrame tracks one currently-open element. A nil def marks an
// undeclared element validated permissively, so one structural mistake does
// not cascade into a violation for every descendant.
type sessionFrame struct {
	def          *ElementDef
	state        int
	name         string
	textReported bool
	// contentErrored suppresses the incomplete-content check at close once
	// an unexpected child was reported, so one mistake yields one violation.
	contentErrored bool
}

// NewSession starts validating a document whose root element must be root.
func NewSession(schema *Schema, root string) *Session {
	return &Session{schema: schema, root: root}
}

// Violations returns every violation reported so far, in document order.
func (s *Session) Violations() []Violation {
	return s.all
}

// Valid reports whether the document conformed so far.
func (s *Session) Valid() bool {
	return len(s.all) == 0
}

func (s *Session) report(v Violation) {
	s.all = append(s.all, v)
}

// OnOpen consumes an element-open event and returns the violations it
// produced. On an unexpected element the parent's automaton state is left
// unchanged and the element is validated against its own declaration when it
// has one, so later siblings are judged from the pre-error state.
func (s *Session) OnOpen(name string, attrs []DocumentAttr, pos Position) []Violation {
	mark := len(s.all)
	if s.done {
		s.report(Violation{
			Code:     CodeEventAfterEnd,
			Message:  fmt.Sprintf("element <%s> opened after the document ended", name),
			Element:  name,
			Position: pos,
		})
		return s.all[mark:]
	}

	if len(s.stack) == 0 {
		if s.opened {
			s.report(Violation{
				Code:     CodeEventAfterEnd,
				Message:  fmt.Sprintf("second root element <%s>", name),
				Element:  name,
				Position: pos,
			})
		} else if name != s.root {
			s.report(Violation{
				Code:     CodeRootMismatch,
				Message:  fmt.Sprintf("root element is <%s>, expected <%s>", name, s.root),
				Element:  name,
				Expected: []string{s.root},
				Actual:   name,
				Position: pos,
			})
		}
		s.opened = true
	} else {
		s.stepParent(name, pos)
	}

	frame := sessionFrame{name: name, state: -1}
	if h, ok := s.schema.ElementByName(name); ok {
		frame.def = s.schema.Element(h)
		frame.state = frame.def.Automaton.Start()
	}
	s.stack = append(s.stack, frame)
	s.checkAttrs(frame.def, name, attrs, pos)
	return s.all[mark:]
}

// stepParent advances the parent automaton over the child name, reporting an
// unexpected element when no transition is defined.
func (s *Session) stepParent(name string, pos Position) {
	top := &s.stack[len(s.stack)-1]
	if top.def == nil {
		return // unknown element: permissive content
	}
	h, declared := s.schema.ElementByName(name)
	if declared {
		if next, ok := top.def.Automaton.Step(top.state, h); ok {
			top.state = next
			return
		}
	}
	top.contentErrored = true
	expected := s.schema.ElementNames(top.def.Automaton.Expected(top.state))
	msg := fmt.Sprintf("element <%s> is not allowed here in <%s>", name, top.name)
	if len(expected) > 0 {
		msg += fmt.Sprintf("; expected one of {%s}", strings.Join(expected, ", "))
	} else if top.def.Leaf {
		msg = fmt.Sprintf("leaf element <%s> cannot contain child elements", top.name)
	}
	s.report(Violation{
		Code:     CodeUnexpectedElement,
		Message:  msg,
		Element:  top.name,
		Expected: expected,
		Actual:   name,
		Position: pos,
	})
}

// checkAttrs validates the open event's attributes against the element's
// declared set. Attribute checks are independent of content-model state and
// never alter it.
func (s *Session) checkAttrs(def *ElementDef, name string, attrs []DocumentAttr, pos Position) {
	if def == nil {
		return
	}
	declared := make(map[string]*AttributeDef, len(def.Attrs))
	for _, h := range def.Attrs {
		declared[s.schema.Attribute(h).Name] = s.schema.Attribute(h)
	}
	present := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		if present[a.Name] {
			continue
		}
		present[a.Name] = true
		decl, ok := declared[a.Name]
		if !ok {
			s.report(Violation{
				Code:      CodeUnknownAttribute,
				Message:   fmt.Sprintf("attribute %q is not declared on element <%s>", a.Name, name),
				Element:   name,
				Attribute: a.Name,
				Position:  a.Position,
			})
			continue
		}
		if err := s.schema.CheckValue(decl.Type, a.Value); err != nil {
			s.report(Violation{
				Code: CodeInvalidAttributeValue,
				Message: fmt.Sprintf("attribute %q of element <%s>: %v",
					a.Name, name, err),
				Element:   name,
				Attribute: a.Name,
				Actual:    a.Value,
				Position:  a.Position,
			})
		}
	}
	for _, h := range def.Attrs {
		decl := s.schema.Attribute(h)
		if decl.Optional || present[decl.Name] {
			continue
		}
		s.report(Violation{
			Code:      CodeMissingAttribute,
			Message:   fmt.Sprintf("required attribute %q is missing on element <%s>", decl.Name, name),
			Element:   name,
			Attribute: decl.Name,
			Position:  pos,
		})
	}
}

// OnText consumes a character-data event. Text is legal only inside leaf
// elements; the violation is reported once per open element.
func (s *Session) OnText(pos Position) []Violation {
	mark := len(s.all)
	if s.done || len(s.stack) == 0 {
		s.report(Violation{
			Code:     CodeEventAfterEnd,
			Message:  "text outside of any open element",
			Position: pos,
		})
		return s.all[mark:]
	}
	top := &s.stack[len(s.stack)-1]
	if top.def != nil && !top.def.Leaf && !top.textReported {
		top.textReported = true
		s.report(Violation{
			Code:     CodeTextNotAllowed,
			Message:  fmt.Sprintf("element <%s> does not allow text content", top.name),
			Element:  top.name,
			Position: pos,
		})
	}
	return s.all[mark:]
}

// OnClose consumes an element-close event, checking that the content model
// of the closing element accepted.
func (s *Session) OnClose(pos Position) []Violation {
	mark := len(s.all)
	if s.done || len(s.stack) == 0 {
		s.report(Violation{
			Code:     CodeEventAfterEnd,
			Message:  "element close without a matching open",
			Position: pos,
		})
		return s.all[mark:]
	}
	top := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	if top.def != nil && !top.contentErrored && !top.def.Automaton.Accepting(top.state) {
		expected := s.schema.ElementNames(top.def.Automaton.Expected(top.state))
		msg := fmt.Sprintf("element <%s> closed before its content completed", top.name)
		if len(expected) > 0 {
			msg += fmt.Sprintf("; expected one of {%s}", strings.Join(expected, ", "))
		}
		s.report(Violation{
			Code:     CodeIncompleteContent,
			Message:  msg,
			Element:  top.name,
			Expected: expected,
			Position: pos,
		})
	}
	return s.all[mark:]
}

// Finish ends the document. Every element still open is reported; the
// session accepts no further events afterwards.
func (s *Session) Finish() []Violation {
	mark := len(s.all)
	for i := len(s.stack) - 1; i >= 0; i-- {
		s.report(Violation{
			Code:    CodeUnclosedElement,
			Message: fmt.Sprintf("element <%s> was never closed", s.stack[i].name),
			Element: s.stack[i].name,
		})
	}
	s.stack = nil
	s.done = true
	return s.all[mark:]
}
