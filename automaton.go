package mlang

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ContentAutomaton is the deterministic finite automaton compiled from one
// element's content model. Symbols are element handles; a state is accepting
// when the element may legally close there. The automaton is immutable after
// compilation and is driven incrementally by validation sessions.
type ContentAutomaton struct {
	States  []AutomatonState `json:"states"`
	Initial int              `json:"initial"`
}

// AutomatonState is one DFA state: its outgoing transitions and whether the
// content model accepts here. A symbol without a transition is a reject.
type AutomatonState struct {
	Transitions map[ElemHandle]int `json:"transitions,omitempty"`
	Accepting   bool               `json:"accepting"`
}

// Start returns the initial state.
func (a *ContentAutomaton) Start() int { return a.Initial }

// Step advances from state on sym. ok is false when the content model does
// not allow sym here; the state is then unchanged.
func (a *ContentAutomaton) Step(state int, sym ElemHandle) (int, bool) {
	if state < 0 || state >= len(a.States) {
		return state, false
	}
	next, ok := a.States[state].Transitions[sym]
	if !ok {
		return state, false
	}
	return next, true
}

// Accepting reports whether the element may close in the given state.
func (a *ContentAutomaton) Accepting(state int) bool {
	return state >= 0 && state < len(a.States) && a.States[state].Accepting
}

// Expected returns the symbols with defined transitions out of state, in
// handle order. Minimization trims states that cannot reach acceptance, so
// every expected symbol genuinely leads somewhere useful.
func (a *ContentAutomaton) Expected(state int) []ElemHandle {
	if state < 0 || state >= len(a.States) {
		return nil
	}
	syms := make([]ElemHandle, 0, len(a.States[state].Transitions))
	for sym := range a.States[state].Transitions {
		syms = append(syms, sym)
	}
	sort.Slice(syms, func(i, j int) bool { return syms[i] < syms[j] })
	return syms
}

// Accepts reports whether the automaton accepts the whole symbol sequence.
func (a *ContentAutomaton) Accepts(seq []ElemHandle) bool {
	state := a.Initial
	for _, sym := range seq {
		next, ok := a.Step(state, sym)
		if !ok {
			return false
		}
		state = next
	}
	return a.Accepting(state)
}

// nfa is the intermediate nondeterministic automaton the compiler builds from
// a content model before determinization.
type nfa struct {
	states []nfaState
	start  int
}

type nfaState struct {
	eps    []int
	trans  map[ElemHandle][]int
	accept bool
}

func (n *nfa) newState() int {
	n.states = append(n.states, nfaState{})
	return len(n.states) - 1
}

func (n *nfa) addEps(from, to int) {
	n.states[from].eps = append(n.states[from].eps, to)
}

func (n *nfa) addTrans(from int, sym ElemHandle, to int) {
	if n.states[from].trans == nil {
		n.states[from].trans = make(map[ElemHandle][]int)
	}
	n.states[from].trans[sym] = append(n.states[from].trans[sym], to)
}

// closure expands a state set over epsilon edges, in place.
func (n *nfa) closure(set map[int]bool) {
	work := make([]int, 0, len(set))
	for s := range set {
		work = append(work, s)
	}
	for len(work) > 0 {
		s := work[len(work)-1]
		work = work[:len(work)-1]
		for _, t := range n.states[s].eps {
			if !set[t] {
				set[t] = true
				work = append(work, t)
			}
		}
	}
}

func setKey(set map[int]bool) string {
	ids := make([]int, 0, len(set))
	for s := range set {
		ids = append(ids, s)
	}
	sort.Ints(ids)
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "%d.", id)
	}
	return b.String()
}

// determinize runs the subset construction. maxStates bounds the DFA size;
// exceeding it is a compile fault, not a user diagnostic.
func (n *nfa) determinize(maxStates int) (*ContentAutomaton, error) {
	startSet := map[int]bool{n.start: true}
	n.closure(startSet)

	dfa := &ContentAutomaton{}
	ids := map[string]int{}
	var sets []map[int]bool

	intern := func(set map[int]bool) int {
		key := setKey(set)
		if id, ok := ids[key]; ok {
			return id
		}
		id := len(dfa.States)
		accept := false
		for s := range set {
			if n.states[s].accept {
				accept = true
				break
			}
		}
		dfa.States = append(dfa.States, AutomatonState{Accepting: accept})
		ids[key] = id
		sets = append(sets, set)
		return id
	}

	dfa.Initial = intern(startSet)
	for work := 0; work < len(sets); work++ {
		if len(dfa.States) > maxStates {
			return nil, errors.Errorf("content automaton exceeds %d states", maxStates)
		}
		set := sets[work]
		moves := map[ElemHandle]map[int]bool{}
		for s := range set {
			for sym, targets := range n.states[s].trans {
				move := moves[sym]
				if move == nil {
					move = map[int]bool{}
					moves[sym] = move
				}
				for _, t := range targets {
					move[t] = true
				}
			}
		}
		for sym, move := range moves {
			n.closure(move)
			target := intern(move)
			if dfa.States[work].Transitions == nil {
				dfa.States[work].Transitions = make(map[ElemHandle]int)
			}
			dfa.States[work].Transitions[sym] = target
		}
		if len(dfa.States) > maxStates {
			return nil, errors.Errorf("content automaton exceeds %d states", maxStates)
		}
	}
	return dfa, nil
}

// trim removes states that cannot reach an accepting state, so that every
// surviving transition is worth suggesting in a diagnostic. The binder's
// productivity analysis guarantees the initial state survives.
func (a *ContentAutomaton) trim() (*ContentAutomaton, error) {
	reverse := make([][]int, len(a.States))
	for from, st := range a.States {
		for _, to := range st.Transitions {
			reverse[to] = append(reverse[to], from)
		}
	}
	alive := make([]bool, len(a.States))
	var work []int
	for i, st := range a.States {
		if st.Accepting {
			alive[i] = true
			work = append(work, i)
		}
	}
	for len(work) > 0 {
		s := work[len(work)-1]
		work = work[:len(work)-1]
		for _, from := range reverse[s] {
			if !alive[from] {
				alive[from] = true
				work = append(work, from)
			}
		}
	}
	if !alive[a.Initial] {
		return nil, errors.New("initial state cannot reach acceptance")
	}
	remap := make([]int, len(a.States))
	out := &ContentAutomaton{}
	for i, ok := range alive {
		if !ok {
			remap[i] = -1
			continue
		}
		remap[i] = len(out.States)
		out.States = append(out.States, AutomatonState{Accepting: a.States[i].Accepting})
	}
	for i, st := range a.States {
		if !alive[i] {
			continue
		}
		for sym, to := range st.Transitions {
			if !alive[to] {
				continue
			}
			ns := &out.States[remap[i]]
			if ns.Transitions == nil {
				ns.Transitions = make(map[ElemHandle]int)
			}
			ns.Transitions[sym] = remap[to]
		}
	}
	out.Initial = remap[a.Initial]
	return out, nil
}

// minimize merges indistinguishable states by partition refinement.
func (a *ContentAutomaton) minimize() *ContentAutomaton {
	class := make([]int, len(a.States))
	for i, st := range a.States {
		if st.Accepting {
			class[i] = 1
		}
	}
	for {
		sig := make([]string, len(a.States))
		for i, st := range a.States {
			syms := make([]ElemHandle, 0, len(st.Transitions))
			for sym := range st.Transitions {
				syms = append(syms, sym)
			}
			sort.Slice(syms, func(x, y int) bool { return syms[x] < syms[y] })
			var b strings.Builder
			fmt.Fprintf(&b, "%d;", class[i])
			for _, sym := range syms {
				fmt.Fprintf(&b, "%d>%d;", sym, class[st.Transitions[sym]])
			}
			sig[i] = b.String()
		}
		next := make([]int, len(a.States))
		seen := map[string]int{}
		n := 0
		for i := range a.States {
			id, ok := seen[sig[i]]
			if !ok {
				id = n
				n++
				seen[sig[i]] = id
			}
			next[i] = id
		}
		same := true
		for i := range class {
			if class[i] != next[i] {
				same = false
				break
			}
		}
		class = next
		if same {
			break
		}
	}

	classes := 0
	for _, c := range class {
		if c+1 > classes {
			classes = c + 1
		}
	}
	out := &ContentAutomaton{States: make([]AutomatonState, classes)}
	for i, st := range a.States {
		c := class[i]
		out.States[c].Accepting = st.Accepting
		for sym, to := range st.Transitions {
			if out.States[c].Transitions == nil {
				out.States[c].Transitions = make(map[ElemHandle]int)
			}
			out.States[c].Transitions[sym] = class[to]
		}
	}
	out.Initial = class[a.Initial]
	return out
}
