package core

import "container/heap"

// entry carries an insertion sequence so equal scores dequeue in FIFO order.
type entry[T any] struct {
	item  T
	score int
	seq   uint64
}

type entryHeap[T any] []*entry[T]

func (h entryHeap[T]) Len() int { return len(h) }

func (h entryHeap[T]) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score > h[j].score
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap[T]) Push(x any) { *h = append(*h, x.(*entry[T])) }

func (h *entryHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// PriorityQueue is a max-priority queue. Higher scores are served first and
// equal scores keep insertion order. It is not safe for concurrent use.
type PriorityQueue[T any] struct {
	h   entryHeap[T]
	seq uint64
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{}
}

func (q *PriorityQueue[T]) Enqueue(item T, score int) {
	q.seq++
	heap.Push(&q.h, &entry[T]{item: item, score: score, seq: q.seq})
}

// Dequeue removes the highest-priority item. ok is false when the queue is empty.
func (q *PriorityQueue[T]) Dequeue() (item T, ok bool) {
	if len(q.h) == 0 {
		return item, false
	}
	e := heap.Pop(&q.h).(*entry[T])
	return e.item, true
}

// Peek returns the highest-priority item without removing it.
func (q *PriorityQueue[T]) Peek() (item T, ok bool) {
	if len(q.h) == 0 {
		return item, false
	}
	return q.h[0].item, true
}

// Remove drops every item matching pred and returns how many were removed.
func (q *PriorityQueue[T]) Remove(pred func(T) bool) int {
	kept := q.h[:0]
	removed := 0
	for _, e := range q.h {
		if pred(e.item) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0
	}
	for i := len(kept); i < len(q.h); i++ {
		q.h[i] = nil
	}
	q.h = kept
	heap.Init(&q.h)
	return removed
}

func (q *PriorityQueue[T]) Len() int { return len(q.h) }

func (q *PriorityQueue[T]) IsEmpty() bool { return len(q.h) == 0 }

func (q *PriorityQueue[T]) Clear() {
	q.h = nil
}
