package mlang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseOne(t *testing.T, src string) Decl {
	t.Helper()
	ast, diags := Parse([]byte(src))
	require.Empty(t, diags)
	require.Len(t, ast.Decls, 1)
	return ast.Decls[0]
}

func TestParseElementDecl(t *testing.T) {
	d := parseOne(t, `element Doc {
		lang: string,
		version: int?,
		content: Title, Para*
	}`)
	elem, ok := d.(*ElementDecl)
	require.True(t, ok)
	assert.Equal(t, "Doc", elem.Name)
	assert.False(t, elem.Leaf)
	require.Len(t, elem.Attrs, 2)
	assert.Equal(t, "lang", elem.Attrs[0].Name)
	assert.Equal(t, "string", elem.Attrs[0].Type)
	assert.False(t, elem.Attrs[0].Optional)
	assert.Equal(t, "version", elem.Attrs[1].Name)
	assert.True(t, elem.Attrs[1].Optional)
	require.NotNil(t, elem.Content)
	assert.Equal(t, "Title, Para*", elem.Content.String())
}

func TestParseLeafAndMixin(t *testing.T) {
	ast, diags := Parse([]byte(`
		mixin Common { id: string? }
		leaf Title mixin Common {}
	`))
	require.Empty(t, diags)
	require.Len(t, ast.Decls, 2)

	mix, ok := ast.Decls[0].(*MixinDecl)
	require.True(t, ok)
	assert.Equal(t, "Common", mix.Name)
	require.Len(t, mix.Attrs, 1)

	elem, ok := ast.Decls[1].(*ElementDecl)
	require.True(t, ok)
	assert.True(t, elem.Leaf)
	assert.Equal(t, "Common", elem.Mixin)
	assert.Empty(t, elem.Attrs)
	assert.Nil(t, elem.Content)
}

func TestParseGroupEnumType(t *testing.T) {
	ast, diags := Parse([]byte(`
		group Blocks = Para | Note | List;
		enum Align { left, center, right }
		type Lang = string;
	`))
	require.Empty(t, diags)
	require.Len(t, ast.Decls, 3)

	grp := ast.Decls[0].(*GroupDecl)
	assert.Equal(t, "Blocks", grp.Name)
	assert.Equal(t, "Para | Note | List", grp.Expr.String())

	enum := ast.Decls[1].(*EnumDecl)
	assert.Equal(t, []string{"left", "center", "right"}, enum.Values)

	typ := ast.Decls[2].(*TypeDecl)
	assert.Equal(t, "Lang", typ.Name)
	assert.Equal(t, "string", typ.Target)
}

// Operator precedence, loosest to tightest: `|`, `&`, `,`, postfix. The
// canonical rendering makes the parsed shape visible without walking nodes.
func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`a, b | c, d`, `a, b | c, d`},
		{`(a, b) | (c, d)`, `a, b | c, d`},
		{`a & b, c`, `a & b, c`},
		{`(a & b), c`, `(a & b), c`},
		{`a | b & c`, `a | b & c`},
		{`(a | b) & c`, `(a | b) & c`},
		{`a, b?`, `a, b?`},
		{`(a, b)?`, `(a, b)?`},
		{`(a | b)*`, `(a | b)*`},
		{`a | b & c | d`, `a | b & c | d`},
		{`a{2,4}`, `a{2,4}`},
		{`a{3}`, `a{3}`},
		{`a{2,}`, `a{2,}`},
		{`(a, b){1,2}`, `(a, b){1,2}`},
		{`a**`, `(a*)*`},
		{`empty`, `empty`},
		{`empty | a`, `empty | a`},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			d := parseOne(t, "group G = "+tt.src+";")
			assert.Equal(t, tt.want, d.(*GroupDecl).Expr.String())
		})
	}
}

func TestParseContentMemberIsLast(t *testing.T) {
	// the sequence comma after Title binds to the content expression, so the
	// trailing ident must parse as part of it, not as a new member
	d := parseOne(t, `element Doc { content: Title, Para }`)
	elem := d.(*ElementDecl)
	assert.Empty(t, elem.Attrs)
	assert.Equal(t, "Title, Para", elem.Content.String())
}

func TestParseContextualIdentifiers(t *testing.T) {
	// `empty` and `content` are not reserved; `empty` works as an attribute
	// name and an element may be named `content`
	ast, diags := Parse([]byte(`
		element content { empty: string, content: empty }
	`))
	require.Empty(t, diags)
	require.Len(t, ast.Decls, 1)
	elem := ast.Decls[0].(*ElementDecl)
	assert.Equal(t, "content", elem.Name)
	require.Len(t, elem.Attrs, 1)
	assert.Equal(t, "empty", elem.Attrs[0].Name)
	_, isEmpty := elem.Content.(*EmptyExpr)
	assert.True(t, isEmpty)
}

func TestParseRecoverySkipsToNextDecl(t *testing.T) {
	src := `
		element Good1 { content: empty }
		element { content: empty }
		element Good2 { content: empty }
		group Bad = ;
		leaf Good3 {}
	`
	ast, diags := Parse([]byte(src))
	require.NotEmpty(t, diags)

	var names []string
	for _, d := range ast.Decls {
		names = append(names, d.DeclName())
	}
	assert.Equal(t, []string{"Good1", "Good2", "Good3"}, names)

	for _, d := range diags {
		assert.Equal(t, SeverityError, d.Severity)
	}
}

func TestParseGarbageBetweenDecls(t *testing.T) {
	ast, diags := Parse([]byte(`42 element Doc { content: empty }`))
	require.Len(t, diags, 1)
	assert.Equal(t, CodeParseExpectedDecl, diags[0].Code)
	require.Len(t, ast.Decls, 1)
	assert.Equal(t, "Doc", ast.Decls[0].DeclName())
}

func TestParseBadRepeatBounds(t *testing.T) {
	ast, diags := Parse([]byte(`group G = a{4,2};`))
	require.Len(t, diags, 1)
	assert.Equal(t, CodeParseBadRepeat, diags[0].Code)
	// the node is still produced with max clamped to min
	require.Len(t, ast.Decls, 1)
	rep := ast.Decls[0].(*GroupDecl).Expr.(*RepeatExpr)
	assert.Equal(t, 4, rep.Min)
	assert.Equal(t, 4, rep.Max)
}

func TestParseDiagnosticsSortedBySource(t *testing.T) {
	_, diags := Parse([]byte("element { } @@@\nelement Also {"))
	require.GreaterOrEqual(t, len(diags), 2)
	for i := 1; i < len(diags); i++ {
		assert.LessOrEqual(t, diags[i-1].Span.Start, diags[i].Span.Start)
	}
}

func TestParseEmptySource(t *testing.T) {
	ast, diags := Parse(nil)
	assert.Empty(t, diags)
	assert.Empty(t, ast.Decls)
}
