package shutdown

import "sync"

// SignalCounter counts shutdown signals: the first starts a graceful
// shutdown, reaching forceAfter calls onForce.
type SignalCounter struct {
	mu         sync.Mutex
	count      int
	forceAfter int
	onForce    func()
}

// NewSignalCounter creates a counter that calls onForce when the
// forceAfter-th signal arrives. onForce may be nil, in which case the
// counter only counts.
//
// Manager uses it for the "first signal drains, second signal exits" rule:
//
//	counter := NewSignalCounter(2, func() {
//	    logger.Warn("Received second signal, forcing exit")
//	    os.Exit(core.ExitCodeSIGINT)
//	})
//
//	for range sigChan {
//	    if counter.Increment() == 1 {
//	        cancel() // start the graceful drain
//	    }
//	}
func NewSignalCounter(forceAfter int, onForce func()) *SignalCounter {
	return &SignalCounter{forceAfter: forceAfter, onForce: onForce}
}

// Increment records one signal and returns the new count. onForce runs
// under the lock, once, when the count reaches forceAfter.
func (s *SignalCounter) Increment() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	if s.count == s.forceAfter && s.onForce != nil {
		s.onForce()
	}
	return s.count
}

// Count returns the number of signals seen.
func (s *SignalCounter) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
