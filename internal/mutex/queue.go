package mutex

import "container/heap"

// DeferredQueue holds the requests a voter could not grant yet, released in
// Request.Less order.
// The zero value is an empty queue ready to use.
type DeferredQueue struct {
	h requestHeap
}

// Insert adds r to the queue.
func (q *DeferredQueue) Insert(r Request) {
	heap.Push(&q.h, r)
}

// ExtractMin removes and returns the highest priority request.
// Returns ErrEmptyQueue if the queue is empty.
func (q *DeferredQueue) ExtractMin() (Request, error) {
	if len(q.h) == 0 {
		return Request{}, ErrEmptyQueue
	}
	return heap.Pop(&q.h).(Request), nil
}

// Peek returns the highest priority request without removing it.
func (q *DeferredQueue) Peek() (Request, bool) {
	if len(q.h) == 0 {
		return Request{}, false
	}
	return q.h[0], true
}

// IsEmpty reports whether the queue holds no requests.
func (q *DeferredQueue) IsEmpty() bool {
	return len(q.h) == 0
}

// Len returns the number of queued requests.
func (q *DeferredQueue) Len() int {
	return len(q.h)
}

type requestHeap []Request

func (h requestHeap) Len() int           { return len(h) }
func (h requestHeap) Less(i, j int) bool { return h[i].Less(h[j]) }
func (h requestHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *requestHeap) Push(x any) {
	*h = append(*h, x.(Request))
}

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	*h = old[:n-1]
	return r
}
