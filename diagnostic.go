package mlang

import (
	"fmt"
	"strings"
)

// ErrorCode is a stable machine-checkable identifier for a schema error or a
// document violation. Codes never change meaning between releases; tooling
// may match on them without parsing messages.
type ErrorCode string

const (
	// CodeLexInvalidToken indicates a byte sequence matching no token class.
	CodeLexInvalidToken ErrorCode = "mls-lex.1"
	// CodeLexUnterminated indicates an unterminated string or block comment.
	CodeLexUnterminated ErrorCode = "mls-lex.2"

	// CodeParseExpectedDecl indicates source where a declaration keyword was expected.
	CodeParseExpectedDecl ErrorCode = "mls-parse.1"
	// CodeParseMalformedDecl indicates a declaration that could not be parsed.
	CodeParseMalformedDecl ErrorCode = "mls-parse.2"
	// CodeParseBadRepeat indicates a malformed {m,n} repetition bound.
	CodeParseBadRepeat ErrorCode = "mls-parse.3"

	// CodeBindDuplicate indicates a duplicate declaration name within a kind.
	CodeBindDuplicate ErrorCode = "mls-bind.1"
	// CodeBindUnresolved indicates a reference to an undeclared name.
	CodeBindUnresolved ErrorCode = "mls-bind.2"
	// CodeBindUnknownMixin indicates an element naming an undeclared mixin.
	CodeBindUnknownMixin ErrorCode = "mls-bind.3"
	// CodeBindDuplicateMember indicates a member collision after mixin merge.
	CodeBindDuplicateMember ErrorCode = "mls-bind.4"
	// CodeBindGroupCycle indicates recursive group definitions.
	CodeBindGroupCycle ErrorCode = "mls-bind.5"
	// CodeBindBadMember indicates an ill-placed member, such as content on a leaf.
	CodeBindBadMember ErrorCode = "mls-bind.6"
	// CodeBindNonProductive indicates a content model no finite document can satisfy.
	CodeBindNonProductive ErrorCode = "mls-bind.7"

	// CodeFaultStateLimit indicates the compiled automaton exceeded the state ceiling.
	CodeFaultStateLimit ErrorCode = "mls-fault.1"

	// CodeRootMismatch indicates the document root differs from the requested root.
	CodeRootMismatch ErrorCode = "mvc-root.1"
	// CodeUnexpectedElement indicates a child element the content model does not allow here.
	CodeUnexpectedElement ErrorCode = "mvc-content.1"
	// CodeIncompleteContent indicates an element closed before its content model accepted.
	CodeIncompleteContent ErrorCode = "mvc-content.2"
	// CodeMissingAttribute indicates a required attribute is absent.
	CodeMissingAttribute ErrorCode = "mvc-attr.1"
	// CodeUnknownAttribute indicates an attribute the element does not declare.
	CodeUnknownAttribute ErrorCode = "mvc-attr.2"
	// CodeInvalidAttributeValue indicates an attribute value outside its declared type.
	CodeInvalidAttributeValue ErrorCode = "mvc-attr.3"
	// CodeTextNotAllowed indicates character data inside a non-leaf element.
	CodeTextNotAllowed ErrorCode = "mvc-text.1"
	// CodeUnclosedElement indicates an element still open when the document ended.
	CodeUnclosedElement ErrorCode = "mvc-doc.1"
	// CodeEventAfterEnd indicates a document event on a finished or empty session.
	CodeEventAfterEnd ErrorCode = "mvc-doc.2"
)

// Severity represents the severity level of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic reports a problem found in the schema source by the lexer,
// parser or binder. Diagnostics are purely additive: stages append them in
// source order and never mutate earlier entries.
type Diagnostic struct {
	Severity Severity  `json:"severity"`
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
	Span     Span      `json:"span"`
	Related  []Related `json:"related,omitempty"`
}

// Related points at a second source location involved in a diagnostic, such
// as the first occurrence of a duplicated name.
type Related struct {
	Label string `json:"label"`
	Span  Span   `json:"span"`
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s [%s] %s at %s", d.Severity, d.Code, d.Message, d.Span)
}

// Render formats the diagnostic with resolved line/column positions.
func (d Diagnostic) Render(sm *SourceMap) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]: %s", d.Severity, d.Code, d.Message)
	if sm != nil {
		fmt.Fprintf(&b, " at %s", sm.SpanPosition(d.Span))
	}
	for _, r := range d.Related {
		fmt.Fprintf(&b, "\n  %s", r.Label)
		if sm != nil {
			fmt.Fprintf(&b, " at %s", sm.SpanPosition(r.Span))
		}
	}
	return b.String()
}

// HasErrors reports whether any diagnostic in diags is an error.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

func errDiag(code ErrorCode, span Span, format string, args ...any) Diagnostic {
	return Diagnostic{
		Severity: SeverityError,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Span:     span,
	}
}

// Violation reports a document-conformance failure found by a validation
// session. Violations carry document positions supplied by the event source,
// not schema spans.
type Violation struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Element   string    `json:"element,omitempty"`
	Attribute string    `json:"attribute,omitempty"`
	Expected  []string  `json:"expected,omitempty"`
	Actual    string    `json:"actual,omitempty"`
	Position  Position  `json:"position"`
}

func (v Violation) Error() string {
	if v.Position == (Position{}) {
		return fmt.Sprintf("[%s] %s", v.Code, v.Message)
	}
	return fmt.Sprintf("[%s] %s at %s", v.Code, v.Message, v.Position)
}
