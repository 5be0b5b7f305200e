package mlang

import (
	"github.com/pkg/errors"
)

// CompileLimits constrain content-model compilation. Deeply nested interleave
// and repetition can explode the determinized automaton, so compilation is
// capped rather than allowed to grow without bound; hitting the cap is a
// fault that aborts schema compilation.
type CompileLimits struct {
	MaxDFAStates int
	MaxOccurs    int
}

// DefaultLimits are applied when a caller does not override them.
var DefaultLimits = CompileLimits{MaxDFAStates: 8192, MaxOccurs: 1024}

// compileContent compiles a bound content model into its DFA. The binder has
// already verified references and productivity, so any failure here reflects
// an internal inconsistency or the state ceiling, never a user mistake.
func compileContent(model *ContentModel, limits CompileLimits) (*ContentAutomaton, error) {
	if limits.MaxDFAStates <= 0 {
		limits.MaxDFAStates = DefaultLimits.MaxDFAStates
	}
	if limits.MaxOccurs <= 0 {
		limits.MaxOccurs = DefaultLimits.MaxOccurs
	}
	n := &nfa{}
	n.start = n.newState()
	f, err := buildNFA(n, model, limits)
	if err != nil {
		return nil, err
	}
	n.addEps(n.start, f.start)
	n.states[f.end].accept = true

	dfa, err := n.determinize(limits.MaxDFAStates)
	if err != nil {
		return nil, err
	}
	dfa, err = dfa.trim()
	if err != nil {
		return nil, errors.Wrap(err, "content model is not productive after binding")
	}
	return dfa.minimize(), nil
}

// frag is a fragment under construction: entry state and a single dangling
// exit state.
type frag struct {
	start, end int
}

func buildNFA(n *nfa, model *ContentModel, limits CompileLimits) (frag, error) {
	switch model.Kind {
	case ContentEmpty:
		s := n.newState()
		return frag{start: s, end: s}, nil

	case ContentRef:
		s := n.newState()
		e := n.newState()
		n.addTrans(s, model.Ref, e)
		return frag{start: s, end: e}, nil

	case ContentSeq:
		return buildSequence(n, model.Parts, limits)

	case ContentChoice:
		s := n.newState()
		e := n.newState()
		for _, part := range model.Parts {
			pf, err := buildNFA(n, part, limits)
			if err != nil {
				return frag{}, err
			}
			n.addEps(s, pf.start)
			n.addEps(pf.end, e)
		}
		return frag{start: s, end: e}, nil

	case ContentInterleave:
		return buildInterleave(n, model.Parts, limits)

	case ContentRepeat:
		return buildRepeat(n, model, limits)

	default:
		return frag{}, errors.Errorf("unknown content kind %q", model.Kind)
	}
}

func buildSequence(n *nfa, parts []*ContentModel, limits CompileLimits) (frag, error) {
	if len(parts) == 0 {
		s := n.newState()
		return frag{start: s, end: s}, nil
	}
	first, err := buildNFA(n, parts[0], limits)
	if err != nil {
		return frag{}, err
	}
	prev := first
	for _, part := range parts[1:] {
		pf, err := buildNFA(n, part, limits)
		if err != nil {
			return frag{}, err
		}
		n.addEps(prev.end, pf.start)
		prev = pf
	}
	return frag{start: first.start, end: prev.end}, nil
}

// buildRepeat unrolls bounded repetition into min mandatory copies followed
// by optional copies (or an unbounded tail), keeping the downstream
// construction uniform.
func buildRepeat(n *nfa, model *ContentModel, limits CompileLimits) (frag, error) {
	if model.Min > limits.MaxOccurs || (model.Max != Unbounded && model.Max > limits.MaxOccurs) {
		return frag{}, errors.Errorf("repetition bound exceeds the occurrence limit %d", limits.MaxOccurs)
	}
	sub := model.Parts[0]
	s := n.newState()
	prev := s
	for i := 0; i < model.Min; i++ {
		pf, err := buildNFA(n, sub, limits)
		if err != nil {
			return frag{}, err
		}
		n.addEps(prev, pf.start)
		prev = pf.end
	}
	if model.Max == Unbounded {
		// Kleene tail: zero or more further occurrences.
		pf, err := buildNFA(n, sub, limits)
		if err != nil {
			return frag{}, err
		}
		e := n.newState()
		n.addEps(prev, pf.start)
		n.addEps(prev, e)
		n.addEps(pf.end, pf.start)
		n.addEps(pf.end, e)
		return frag{start: s, end: e}, nil
	}
	e := n.newState()
	n.addEps(prev, e)
	for i := model.Min; i < model.Max; i++ {
		pf, err := buildNFA(n, sub, limits)
		if err != nil {
			return frag{}, err
		}
		n.addEps(prev, pf.start)
		n.addEps(pf.end, e)
		prev = pf.end
	}
	return frag{start: s, end: e}, nil
}

// buildInterleave compiles each operand to its own DFA and splices their
// shuffle product into the surrounding NFA. Interleave is not expressible by
// concatenation and union alone, hence the product construction; the result
// may be nondeterministic when operands share symbols, which the outer
// determinization resolves.
func buildInterleave(n *nfa, parts []*ContentModel, limits CompileLimits) (frag, error) {
	dfas := make([]*ContentAutomaton, len(parts))
	for i, part := range parts {
		d, err := compileContent(part, limits)
		if err != nil {
			return frag{}, err
		}
		dfas[i] = d
	}

	type tuple string
	key := func(states []int) tuple {
		b := make([]byte, 0, len(states)*3)
		for _, s := range states {
			b = append(b, byte(s), byte(s>>8), byte(s>>16))
		}
		return tuple(b)
	}

	ids := map[tuple]int{}
	var tuples [][]int
	e := n.newState()

	intern := func(states []int) int {
		k := key(states)
		if id, ok := ids[k]; ok {
			return id
		}
		id := n.newState()
		ids[k] = id
		copied := append([]int(nil), states...)
		tuples = append(tuples, copied)
		all := true
		for i, s := range copied {
			if !dfas[i].Accepting(s) {
				all = false
				break
			}
		}
		if all {
			n.addEps(id, e)
		}
		return id
	}

	startTuple := make([]int, len(dfas))
	for i, d := range dfas {
		startTuple[i] = d.Start()
	}
	start := intern(startTuple)

	for work := 0; work < len(tuples); work++ {
		states := tuples[work]
		id := ids[key(states)]
		for i, d := range dfas {
			for sym, to := range d.States[states[i]].Transitions {
				next := append([]int(nil), states...)
				next[i] = to
				n.addTrans(id, sym, intern(next))
			}
		}
		if len(tuples) > limits.MaxDFAStates {
			return frag{}, errors.Errorf("interleave product exceeds %d states", limits.MaxDFAStates)
		}
	}
	return frag{start: start, end: e}, nil
}
