package session

import "sync"

// Phase is the coarse session state.
type Phase int

const (
	PhaseBootstrapping Phase = iota
	PhaseAnonymous
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseBootstrapping:
		return "bootstrapping"
	case PhaseAnonymous:
		return "anonymous"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot of the session.
type State struct {
	Phase Phase

	// Initializing is true until bootstrap has finished. Reads taken while
	// it is true are provisional.
	Initializing bool

	// Refreshing is true while at least one refresh call is in flight.
	Refreshing bool

	User *Identity
}

// Authenticated reports whether the snapshot carries a user.
func (s State) Authenticated() bool {
	return s.User != nil
}

// subscribers is a registry of state listeners.
type subscribers struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]func(State)
}

func (s *subscribers) add(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fns == nil {
		s.fns = make(map[uint64]func(State))
	}
	id := s.next
	s.next++
	s.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

func (s *subscribers) publish(state State) {
	s.mu.Lock()
	fns := make([]func(State), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
