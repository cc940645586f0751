package queue

import (
	"encoding/json"
	"sync"
)

// State is the shared queue engine. It owns every named queue, the
// id-to-queue index, the in-progress set, the id allocator, and the waiter
// registry. A single mutex serializes all transitions, so each exported
// method is linearizable with respect to the others.
//
// Invariants between calls: an id lives in at most one of a queue or the
// in-progress set; idToQueue mirrors queue membership exactly; nextID is
// strictly greater than every id ever issued.
type State struct {
	mu        sync.Mutex
	queues    map[string]*jobSet
	idToQueue map[uint32]string
	active    map[uint32]Job
	nextID    uint32
	waiters   []*Notifier
}

// NewState creates an empty engine.
func NewState() *State {
	return &State{
		queues:    make(map[string]*jobSet),
		idToQueue: make(map[uint32]string),
		active:    make(map[uint32]Job),
	}
}

// Add assigns a fresh id to the job data, inserts it into the named queue,
// and wakes all registered waiters. The queue is created on first use and
// never removed. Returns the stored job, id included.
func (s *State) Add(queue string, pri uint32, data json.RawMessage) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := Job{ID: s.nextID, Pri: pri, Data: data}
	s.nextID++
	s.insert(queue, job)
	return job
}

// insert places an existing job (id already assigned) into a queue and
// notifies waiters. Caller holds the lock.
func (s *State) insert(queue string, job Job) {
	set, ok := s.queues[queue]
	if !ok {
		set = newJobSet()
		s.queues[queue] = set
	}
	set.insert(job)
	s.idToQueue[job.ID] = queue
	s.notifyAll()
}

// notifyAll wakes every registered waiter and clears the registry. Woken
// waiters whose queues are still empty simply re-register; only one of them
// can take any given job because re-evaluation happens under the lock.
func (s *State) notifyAll() {
	for _, n := range s.waiters {
		n.Notify()
	}
	s.waiters = s.waiters[:0]
}

// Take removes the single highest-priority job across the candidate queues
// and moves it to the in-progress set. Returns the job and its origin
// queue, or ok=false if every candidate is empty.
func (s *State) Take(queues []string) (Job, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.take(queues)
}

// TakeOrNotify is Take, except that on failure it registers and returns a
// fresh Notifier under the same lock hold. The caller must wait on the
// notifier and retry; registering atomically with the failed attempt is
// what prevents a concurrent Add from slipping between the two.
func (s *State) TakeOrNotify(queues []string) (Job, string, *Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, origin, ok := s.take(queues); ok {
		return job, origin, nil
	}
	n := NewNotifier()
	s.waiters = append(s.waiters, n)
	return Job{}, "", n
}

func (s *State) take(queues []string) (Job, string, bool) {
	var best Job
	var bestQueue string
	foundAny := false
	for _, name := range queues {
		set, ok := s.queues[name]
		if !ok {
			continue
		}
		head, ok := set.peek()
		if !ok {
			continue
		}
		if !foundAny || best.less(head) {
			best, bestQueue, foundAny = head, name, true
		}
	}
	if !foundAny {
		return Job{}, "", false
	}

	job, _ := s.queues[bestQueue].takeMax()
	delete(s.idToQueue, job.ID)
	s.active[job.ID] = job
	return job, bestQueue, true
}

// Delete removes a job by id wherever it currently lives: a queue or the
// in-progress set. Reports whether the id was found. Deleting a held job
// leaves the holder's ledger entry dangling; the holder's eventual abort
// finds nothing and is reported as such.
func (s *State) Delete(id uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if queue, ok := s.idToQueue[id]; ok {
		s.queues[queue].remove(id)
		delete(s.idToQueue, id)
		return true
	}
	if _, ok := s.active[id]; ok {
		delete(s.active, id)
		return true
	}
	return false
}

// Abort moves an in-progress job back onto its origin queue, keeping its
// id and priority, and wakes waiters. Reports false if the id is not
// in progress (typically because someone deleted it while it was held).
func (s *State) Abort(id uint32, queue string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.active[id]
	if !ok {
		return false
	}
	delete(s.active, id)
	s.insert(queue, job)
	return true
}

// Snapshot is a point-in-time view of engine state for monitoring.
type Snapshot struct {
	// Queues maps queue name to current depth, including emptied queues.
	Queues map[string]int `json:"queues"`
	// Active is the number of jobs currently held by clients.
	Active int `json:"active"`
	// Waiters is the number of gets currently blocked.
	Waiters int `json:"waiters"`
	// NextID is the next id the allocator will issue.
	NextID uint32 `json:"next_id"`
}

// Snapshot captures current depths and counts under the lock.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Queues:  make(map[string]int, len(s.queues)),
		Active:  len(s.active),
		Waiters: len(s.waiters),
		NextID:  s.nextID,
	}
	for name, set := range s.queues {
		snap.Queues[name] = set.len()
	}
	return snap
}
