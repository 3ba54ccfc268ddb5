package chtl

// scopeFrame is one lexical scope: local identifiers (attribute
// shorthand bindings, specialization-visible names) and variables set by
// "Group(name = value)"-style contexts (spec.md §4.G).
type scopeFrame struct {
	Name      string
	Context   ContextType
	Symbols   map[string]*Node
	Variables map[string]string
}

// ScopeManager is the stack of lexical frames spec.md §4.G describes.
// Like Registry, it is a plain struct threaded through parsing/resolution,
// never package state.
type ScopeManager struct {
	frames []*scopeFrame
}

func NewScopeManager() *ScopeManager {
	return &ScopeManager{}
}

func (s *ScopeManager) Push(name string, ctx ContextType) {
	s.frames = append(s.frames, &scopeFrame{
		Name:      name,
		Context:   ctx,
		Symbols:   map[string]*Node{},
		Variables: map[string]string{},
	})
}

func (s *ScopeManager) Pop() {
	if len(s.frames) == 0 {
		return
	}
	s.frames = s.frames[:len(s.frames)-1]
}

func (s *ScopeManager) Define(name string, n *Node) {
	if len(s.frames) == 0 {
		return
	}
	s.frames[len(s.frames)-1].Symbols[name] = n
}

// Lookup searches innermost-outward, like normal lexical scoping.
func (s *ScopeManager) Lookup(name string) (*Node, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if n, ok := s.frames[i].Symbols[name]; ok {
			return n, true
		}
	}
	return nil, false
}

func (s *ScopeManager) SetVar(name, value string) {
	if len(s.frames) == 0 {
		return
	}
	s.frames[len(s.frames)-1].Variables[name] = value
}

func (s *ScopeManager) GetVar(name string) (string, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i].Variables[name]; ok {
			return v, true
		}
	}
	return "", false
}

func (s *ScopeManager) Depth() int { return len(s.frames) }
