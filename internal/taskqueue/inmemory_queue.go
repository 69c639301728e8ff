package taskqueue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// InMemoryQueue is a Queue backed by a min-heap ordered by NotBefore, then
// by enqueue order. It is safe for concurrent use.
type InMemoryQueue struct {
	mu    sync.Mutex
	items taskHeap
	byOp  map[string]*item
	seq   uint64
}

// NewInMemoryQueue creates an empty queue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{byOp: make(map[string]*item)}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if old, ok := q.byOp[t.OperationID]; ok {
		heap.Remove(&q.items, old.index)
		delete(q.byOp, t.OperationID)
	}

	q.seq++
	it := &item{task: t, seq: q.seq}
	heap.Push(&q.items, it)
	q.byOp[t.OperationID] = it
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context, now time.Time) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, nil
	}
	next := q.items[0]
	if next.task.NotBefore.After(now) {
		return nil, nil
	}
	heap.Pop(&q.items)
	delete(q.byOp, next.task.OperationID)
	t := next.task
	return &t, nil
}

func (q *InMemoryQueue) Remove(ctx context.Context, operationID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.byOp[operationID]
	if !ok {
		return false, nil
	}
	heap.Remove(&q.items, it.index)
	delete(q.byOp, operationID)
	return true, nil
}

func (q *InMemoryQueue) Contains(operationID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byOp[operationID]
	return ok
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type item struct {
	task  Task
	seq   uint64
	index int
}

type taskHeap []*item

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.NotBefore.Equal(h[j].task.NotBefore) {
		return h[i].seq < h[j].seq
	}
	return h[i].task.NotBefore.Before(h[j].task.NotBefore)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}
