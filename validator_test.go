package mlang

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attr(name, value string) DocumentAttr {
	return DocumentAttr{Name: name, Value: value}
}

func at(line int) Position {
	return Position{Line: line, Column: 1, Offset: line * 10}
}

func violationCodes(vs []Violation) []ErrorCode {
	if len(vs) == 0 {
		return nil
	}
	codes := make([]ErrorCode, len(vs))
	for i, v := range vs {
		codes[i] = v.Code
	}
	return codes
}

func TestSessionValidDocument(t *testing.T) {
	schema := mustBind(t, docSchema)
	s := NewSession(schema, "Doc")

	s.OnOpen("Doc", []DocumentAttr{attr("lang", "en")}, at(1))
	s.OnOpen("Title", nil, at(2))
	s.OnText(at(2))
	s.OnClose(at(2))
	s.OnOpen("Para", []DocumentAttr{attr("align", "left")}, at(3))
	s.OnText(at(3))
	s.OnClose(at(3))
	s.OnOpen("Para", nil, at(4))
	s.OnClose(at(4))
	s.OnClose(at(5))
	s.Finish()

	assert.True(t, s.Valid())
	assert.Empty(t, s.Violations())
}

func TestSessionRootMismatch(t *testing.T) {
	schema := mustBind(t, docSchema)
	s := NewSession(schema, "Doc")

	vs := s.OnOpen("Para", nil, at(1))
	require.Len(t, vs, 1)
	assert.Equal(t, CodeRootMismatch, vs[0].Code)
	assert.Equal(t, []string{"Doc"}, vs[0].Expected)
	assert.Equal(t, "Para", vs[0].Actual)

	// the wrong root is still validated against its own declaration
	s.OnClose(at(1))
	s.Finish()
	assert.Equal(t, []ErrorCode{CodeRootMismatch}, violationCodes(s.Violations()))
}

// An out-of-place child is reported once; the parent state stays where it
// was, so the remaining siblings validate from the pre-error state and the
// close check stays quiet.
func TestSessionUnexpectedElementNoCascade(t *testing.T) {
	schema := mustBind(t, docSchema)
	s := NewSession(schema, "Doc")

	s.OnOpen("Doc", []DocumentAttr{attr("lang", "en")}, at(1))
	vs := s.OnOpen("Para", nil, at(2)) // Title must come first
	require.Len(t, vs, 1)
	assert.Equal(t, CodeUnexpectedElement, vs[0].Code)
	assert.Equal(t, "Doc", vs[0].Element)
	assert.Equal(t, "Para", vs[0].Actual)
	assert.Equal(t, []string{"Title"}, vs[0].Expected)
	s.OnClose(at(2))

	s.OnOpen("Title", nil, at(3))
	s.OnClose(at(3))
	s.OnOpen("Para", nil, at(4))
	s.OnClose(at(4))
	s.OnClose(at(5))
	s.Finish()

	assert.Equal(t, []ErrorCode{CodeUnexpectedElement}, violationCodes(s.Violations()))
}

func TestSessionIncompleteContent(t *testing.T) {
	schema := mustBind(t, docSchema)
	s := NewSession(schema, "Doc")

	s.OnOpen("Doc", []DocumentAttr{attr("lang", "en")}, at(1))
	vs := s.OnClose(at(2))
	require.Len(t, vs, 1)
	assert.Equal(t, CodeIncompleteContent, vs[0].Code)
	assert.Equal(t, []string{"Title"}, vs[0].Expected)
}

func TestSessionLeafRejectsChildren(t *testing.T) {
	schema := mustBind(t, docSchema)
	s := NewSession(schema, "Doc")

	s.OnOpen("Doc", []DocumentAttr{attr("lang", "en")}, at(1))
	s.OnOpen("Title", nil, at(2))
	vs := s.OnOpen("Para", nil, at(3))
	require.Len(t, vs, 1)
	assert.Equal(t, CodeUnexpectedElement, vs[0].Code)
	assert.Contains(t, vs[0].Message, "leaf element <Title>")
}

func TestSessionAttributeChecks(t *testing.T) {
	schema := mustBind(t, docSchema)

	tests := []struct {
		name  string
		attrs []DocumentAttr
		want  []ErrorCode
	}{
		{
			name:  "all declared",
			attrs: []DocumentAttr{attr("lang", "en")},
			want:  nil,
		},
		{
			name:  "missing required",
			attrs: nil,
			want:  []ErrorCode{CodeMissingAttribute},
		},
		{
			name:  "unknown attribute",
			attrs: []DocumentAttr{attr("lang", "en"), attr("color", "red")},
			want:  []ErrorCode{CodeUnknownAttribute},
		},
		{
			name:  "repeated attribute checked once",
			attrs: []DocumentAttr{attr("lang", "en"), attr("bogus", "x"), attr("bogus", "y")},
			want:  []ErrorCode{CodeUnknownAttribute},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(schema, "Doc")
			vs := s.OnOpen("Doc", tt.attrs, at(1))
			assert.Equal(t, tt.want, violationCodes(vs))
		})
	}
}

func TestSessionAttributeValueTypes(t *testing.T) {
	schema := mustBind(t, docSchema)
	s := NewSession(schema, "Doc")

	s.OnOpen("Doc", []DocumentAttr{attr("lang", "en")}, at(1))
	s.OnOpen("Title", nil, at(2))
	s.OnClose(at(2))
	vs := s.OnOpen("Para", []DocumentAttr{attr("align", "justify")}, at(3))
	require.Len(t, vs, 1)
	assert.Equal(t, CodeInvalidAttributeValue, vs[0].Code)
	assert.Equal(t, "align", vs[0].Attribute)
	assert.Equal(t, "justify", vs[0].Actual)

	// the attribute violation does not disturb content matching
	s.OnClose(at(3))
	s.OnClose(at(4))
	s.Finish()
	assert.Equal(t, []ErrorCode{CodeInvalidAttributeValue}, violationCodes(s.Violations()))
}

func TestSessionTextOnlyInLeaves(t *testing.T) {
	schema := mustBind(t, docSchema)
	s := NewSession(schema, "Doc")

	s.OnOpen("Doc", []DocumentAttr{attr("lang", "en")}, at(1))
	vs := s.OnText(at(2))
	require.Len(t, vs, 1)
	assert.Equal(t, CodeTextNotAllowed, vs[0].Code)
	assert.Equal(t, "Doc", vs[0].Element)

	// reported once per open element, not once per text run
	vs = s.OnText(at(3))
	assert.Empty(t, vs)
}

func TestSessionUnknownElementIsPermissive(t *testing.T) {
	schema := mustBind(t, docSchema)
	s := NewSession(schema, "Doc")

	s.OnOpen("Doc", []DocumentAttr{attr("lang", "en")}, at(1))
	s.OnOpen("Title", nil, at(2))
	s.OnClose(at(2))

	vs := s.OnOpen("Mystery", []DocumentAttr{attr("anything", "goes")}, at(3))
	require.Len(t, vs, 1)
	assert.Equal(t, CodeUnexpectedElement, vs[0].Code)

	// inside the undeclared element nothing more is reported
	assert.Empty(t, s.OnOpen("AlsoUnknown", nil, at(4)))
	assert.Empty(t, s.OnText(at(4)))
	assert.Empty(t, s.OnClose(at(4)))
	assert.Empty(t, s.OnClose(at(5)))

	// back in Doc, validation resumes from the pre-error state
	assert.Empty(t, s.OnOpen("Para", nil, at(6)))
	s.OnClose(at(6))
	s.OnClose(at(7))
	s.Finish()
	assert.Equal(t, []ErrorCode{CodeUnexpectedElement}, violationCodes(s.Violations()))
}

func TestSessionUnclosedElements(t *testing.T) {
	schema := mustBind(t, docSchema)
	s := NewSession(schema, "Doc")

	s.OnOpen("Doc", []DocumentAttr{attr("lang", "en")}, at(1))
	s.OnOpen("Title", nil, at(2))
	vs := s.Finish()
	require.Len(t, vs, 2)
	// innermost first
	assert.Equal(t, "Title", vs[0].Element)
	assert.Equal(t, "Doc", vs[1].Element)
	assert.Equal(t, CodeUnclosedElement, vs[0].Code)
	assert.Equal(t, CodeUnclosedElement, vs[1].Code)
}

func TestSessionEventsAfterEnd(t *testing.T) {
	schema := mustBind(t, docSchema)
	s := NewSession(schema, "Doc")
	s.Finish()

	vs := s.OnOpen("Doc", nil, at(1))
	require.Len(t, vs, 1)
	assert.Equal(t, CodeEventAfterEnd, vs[0].Code)

	vs = s.OnClose(at(2))
	require.Len(t, vs, 1)
	assert.Equal(t, CodeEventAfterEnd, vs[0].Code)
}

func TestSessionSecondRoot(t *testing.T) {
	schema := mustBind(t, `element Doc { content: empty }`)
	s := NewSession(schema, "Doc")

	s.OnOpen("Doc", nil, at(1))
	s.OnClose(at(1))
	vs := s.OnOpen("Doc", nil, at(2))
	require.Len(t, vs, 1)
	assert.Equal(t, CodeEventAfterEnd, vs[0].Code)
}

func TestSessionCloseWithoutOpen(t *testing.T) {
	schema := mustBind(t, `element Doc { content: empty }`)
	s := NewSession(schema, "Doc")
	vs := s.OnClose(at(1))
	require.Len(t, vs, 1)
	assert.Equal(t, CodeEventAfterEnd, vs[0].Code)
}

func TestSessionViolationPositions(t *testing.T) {
	schema := mustBind(t, docSchema)
	s := NewSession(schema, "Doc")

	pos := Position{Line: 7, Column: 12, Offset: 88}
	vs := s.OnOpen("Wrong", nil, pos)
	require.Len(t, vs, 1)
	assert.Equal(t, pos, vs[0].Position)
}

// One compiled schema, many concurrent sessions.
func TestSessionsShareSchemaConcurrently(t *testing.T) {
	schema := mustBind(t, docSchema)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s := NewSession(schema, "Doc")
				s.OnOpen("Doc", []DocumentAttr{attr("lang", "en")}, at(1))
				s.OnOpen("Title", nil, at(2))
				s.OnClose(at(2))
				for p := 0; p < i%4; p++ {
					s.OnOpen("Para", nil, at(3+p))
					s.OnClose(at(3 + p))
				}
				s.OnClose(at(9))
				s.Finish()
				if !s.Valid() {
					errs <- fmt.Errorf("iteration %d: %v", i, s.Violations())
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
