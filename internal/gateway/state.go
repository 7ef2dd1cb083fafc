package gateway

import "sync"

// State is the session-scoped bundle of fields the interpreter-side bridge
// library historically kept as process globals: the cached gateway handle,
// the entry view singleton, the callback registration counter, the active
// session pointer, and the python includes path. Each bridge session owns
// one bundle and resets it at teardown so the next session in the same
// process bootstraps from a clean slate instead of observing stale state.
type State struct {
	mu           sync.Mutex
	gateway      *Handle
	entryView    Target
	callbackSeq  int
	session      string
	includesPath string
}

func NewState() *State {
	return &State{}
}

func (s *State) setGateway(h *Handle, view Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gateway = h
	s.entryView = view
}

func (s *State) Gateway() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gateway
}

func (s *State) EntryView() Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entryView
}

func (s *State) setSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = id
}

func (s *State) ActiveSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *State) bumpCallbackSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbackSeq++
	return s.callbackSeq
}

func (s *State) CallbackSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callbackSeq
}

func (s *State) setIncludesPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.includesPath = path
}

func (s *State) IncludesPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.includesPath
}

// Reset clears every field back to its initial value. Runs at teardown;
// required so a later session in the same process does not inherit a cached
// gateway, a stale session pointer, or a non-zero counter.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gateway = nil
	s.entryView = nil
	s.callbackSeq = 0
	s.session = ""
	s.includesPath = ""
}
