package queue

import "container/heap"

// jobSet is one named queue: a max-heap ordered by (priority, id) with an
// id index so removal by id stays O(log n). Items track their heap position
// the way an indexed heap must.
type jobSet struct {
	items jobHeap
	byID  map[uint32]*jobItem
}

type jobItem struct {
	job Job
	// heapIdx is the item's index in the heap, maintained by Swap.
	heapIdx int
}

func newJobSet() *jobSet {
	return &jobSet{byID: make(map[uint32]*jobItem)}
}

func (s *jobSet) insert(job Job) {
	item := &jobItem{job: job}
	s.byID[job.ID] = item
	heap.Push(&s.items, item)
}

// peek returns the highest-ordered job without removing it.
func (s *jobSet) peek() (Job, bool) {
	if len(s.items) == 0 {
		return Job{}, false
	}
	return s.items[0].job, true
}

// takeMax removes and returns the highest-ordered job.
func (s *jobSet) takeMax() (Job, bool) {
	if len(s.items) == 0 {
		return Job{}, false
	}
	item := heap.Pop(&s.items).(*jobItem)
	delete(s.byID, item.job.ID)
	return item.job, true
}

// remove deletes the job with the given id, wherever it sits in the heap.
func (s *jobSet) remove(id uint32) bool {
	item, ok := s.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&s.items, item.heapIdx)
	delete(s.byID, id)
	return true
}

func (s *jobSet) len() int {
	return len(s.items)
}

// jobHeap implements heap.Interface as a max-heap on (priority, id).
type jobHeap []*jobItem

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	return h[j].job.less(h[i].job)
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *jobHeap) Push(x any) {
	item := x.(*jobItem)
	item.heapIdx = len(*h)
	*h = append(*h, item)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.heapIdx = -1
	*h = old[:n-1]
	return item
}
