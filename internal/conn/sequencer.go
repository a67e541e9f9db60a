package conn

import "sync"

// pendingRequest is one client->server request queued for a session's
// dispatcher, along with the means to deliver its eventual response.
type pendingRequest struct {
	handle func()
}

// sequencer is the Request Sequencer of spec §4.3, realized as a single
// worker goroutine per session draining a FIFO channel: because exactly
// one goroutine ever calls into the Data Manager on this session's
// behalf, "at most one in-flight request to DM" and "response order
// equals request arrival order" both hold by construction, without the
// source's explicit rp_req_cnt/rp_resp_expected bookkeeping.
type sequencer struct {
	queue chan pendingRequest
	done  chan struct{}
}

func newSequencer() *sequencer {
	s := &sequencer{queue: make(chan pendingRequest, 64), done: make(chan struct{})}
	go s.run()
	return s
}

func (s *sequencer) run() {
	for req := range s.queue {
		req.handle()
	}
	close(s.done)
}

// Submit enqueues handle to run on this session's dispatcher goroutine. It
// blocks only if the queue is full (backpressure on a session that is
// issuing requests faster than DM can answer them).
func (s *sequencer) Submit(handle func()) {
	s.queue <- pendingRequest{handle: handle}
}

func (s *sequencer) Stop() {
	close(s.queue)
	<-s.done
}

// sequencerRegistry tracks one sequencer per live session id on a
// connection.
type sequencerRegistry struct {
	mu   sync.Mutex
	byID map[uint32]*sequencer
}

func newSequencerRegistry() *sequencerRegistry {
	return &sequencerRegistry{byID: make(map[uint32]*sequencer)}
}

func (r *sequencerRegistry) get(sessionID uint32) *sequencer {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[sessionID]
	if !ok {
		s = newSequencer()
		r.byID[sessionID] = s
	}
	return s
}

func (r *sequencerRegistry) remove(sessionID uint32) {
	r.mu.Lock()
	s, ok := r.byID[sessionID]
	delete(r.byID, sessionID)
	r.mu.Unlock()
	if ok {
		s.Stop()
	}
}

func (r *sequencerRegistry) stopAll() {
	r.mu.Lock()
	all := make([]*sequencer, 0, len(r.byID))
	for _, s := range r.byID {
		all = append(all, s)
	}
	r.byID = make(map[uint32]*sequencer)
	r.mu.Unlock()
	for _, s := range all {
		s.Stop()
	}
}
