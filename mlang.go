// Package mlang compiles schemas written in the mlang schema description
// language and validates streams of document structural events against them.
//
// A schema declares element names, their attributes and value types, and a
// content model per element describing which child elements may occur, in
// what order and multiplicity. Compile parses and binds the schema and
// compiles every content model into a deterministic automaton; the resulting
// Schema is immutable and may be shared by any number of concurrent
// validation sessions. The package never parses concrete markup: callers
// feed an already-tokenized event stream (element-open, text, element-close)
// through a Session.
package mlang

// CompileOption configures schema compilation.
type CompileOption interface{ apply(*compileOptions) }

type compileOptions struct {
	limits CompileLimits
}

type compileOptionFunc func(*compileOptions)

func (f compileOptionFunc) apply(cfg *compileOptions) {
	if cfg != nil {
		f(cfg)
	}
}

// WithLimits overrides the default compilation limits.
func WithLimits(limits CompileLimits) CompileOption {
	return compileOptionFunc(func(cfg *compileOptions) {
		cfg.limits = limits
	})
}

// Compile parses, binds and compiles schema source in one step.
//
// The diagnostics are always returned. A malformed declaration costs only
// itself: the parser recovers past it and the binder still produces a Schema
// for the declarations that bound cleanly, so the Schema can be non-nil even
// when parse diagnostics are present. The Schema is nil only when binding
// itself reported errors. Callers wanting strictness check HasErrors. The
// error return is reserved for compile faults — internal inconsistencies and
// the automaton state ceiling — which abort compilation of the whole schema.
func Compile(src []byte, opts ...CompileOption) (*Schema, []Diagnostic, error) {
	cfg := &compileOptions{limits: DefaultLimits}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	ast, parseDiags := Parse(src)
	schema, bindDiags, err := Bind(ast, cfg.limits)
	diags := append(parseDiags, bindDiags...)
	if err != nil {
		return nil, diags, err
	}
	return schema, diags, nil
}
