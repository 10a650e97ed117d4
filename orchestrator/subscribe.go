package orchestrator

import "sync"

// subscriber keeps only the newest undelivered snapshot. publish never
// waits on it; a slow reader skips intermediate versions but always ends
// up with the latest one.
type subscriber struct {
	out    chan Snapshot
	wake   chan struct{}
	stop   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	latest Snapshot
	have   bool
}

func newSubscriber(buffer int) *subscriber {
	if buffer < 0 {
		buffer = 0
	}
	return &subscriber{
		out:  make(chan Snapshot, buffer),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

func (s *subscriber) offer(snap Snapshot) {
	s.mu.Lock()
	s.latest, s.have = snap, true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) take() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.latest, s.have
	s.latest, s.have = Snapshot{}, false
	return snap, ok
}

// pump delivers snapshots until stop is closed, then closes out.
func (s *subscriber) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		}
		snap, ok := s.take()
		if !ok {
			continue
		}
		select {
		case s.out <- snap:
		case <-s.stop:
			return
		}
	}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.stop) })
}

// Subscribe returns a channel receiving a snapshot now and after every
// change. buffer sizes the channel. The channel is closed by the returned
// cancel func or by Close.
func (o *Orchestrator) Subscribe(buffer int) (<-chan Snapshot, func()) {
	s := newSubscriber(buffer)
	go s.pump()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		s.close()
		return s.out, func() {}
	}
	id := o.nextSub
	o.nextSub++
	o.subs[id] = s
	o.metrics.SetSubscribers(len(o.subs))
	s.offer(o.snapshotLocked())
	o.mu.Unlock()

	cancel := func() {
		o.mu.Lock()
		if _, ok := o.subs[id]; ok {
			delete(o.subs, id)
			o.metrics.SetSubscribers(len(o.subs))
		}
		o.mu.Unlock()
		s.close()
	}
	return s.out, cancel
}
