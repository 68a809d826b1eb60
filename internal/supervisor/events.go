package supervisor

// Event tells subscribers that something changed. It carries no payload;
// subscribers re-read whatever state they need.
type Event int

const (
	EventStateChanged Event = iota
	EventProjectDirectoryChanged
)

func (e Event) String() string {
	switch e {
	case EventStateChanged:
		return "state-changed"
	case EventProjectDirectoryChanged:
		return "project-directory-changed"
	default:
		return "unknown"
	}
}

// Subscribe registers fn for every future event and returns a function that removes it.
// fn runs on the goroutine that caused the change, never while internal locks are held.
func (s *Supervisor) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Supervisor) notify(e Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}
