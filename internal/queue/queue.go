// Package queue implements the ordered, optionally bounded container every
// pile is built on.
//
// Appending or popping at either end is O(1) amortized. Inserting or
// removing in the middle shifts elements and is O(n); interactive piles hold
// tens of entries, so this is fine.
//
// A Queue is not safe for concurrent use. Callers that share one between
// goroutines must hold their own lock (see dispatch.Context).
package queue

// Queue is a ring-buffer deque with a saturation threshold.
type Queue[T any] struct {
	buf      []T
	head     int
	n        int
	capacity int
	hooks    Hooks[T]
}

// New returns an empty queue. A negative capacity means unbounded.
func New[T any](capacity int, hooks Hooks[T]) *Queue[T] {
	return &Queue[T]{capacity: capacity, hooks: hooks}
}

// From returns a queue pre-filled with items in order.
func From[T any](items []T, capacity int, hooks Hooks[T]) *Queue[T] {
	q := New(capacity, hooks)
	q.buf = make([]T, max(len(items), 8))
	copy(q.buf, items)
	q.n = len(items)
	return q
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int { return q.n }

// Capacity returns the saturation threshold (negative when unbounded).
func (q *Queue[T]) Capacity() int { return q.capacity }

// SetCapacity changes the saturation threshold. Items already queued are
// kept even if the new threshold is lower.
func (q *Queue[T]) SetCapacity(capacity int) { q.capacity = capacity }

// Saturated reports whether the queue has reached its capacity.
func (q *Queue[T]) Saturated() bool {
	return q.capacity >= 0 && q.n >= q.capacity
}

// Append inserts item at pos. Saturation is not enforced here; callers that
// need a hard bound check Saturated first.
func (q *Queue[T]) Append(item T, pos Position) error {
	if pos.kind == at && (pos.index < 0 || pos.index > q.n) {
		return ErrOutOfRange
	}
	if q.hooks.BeforeAppend != nil {
		q.hooks.BeforeAppend(q, item)
	}
	switch pos.kind {
	case head:
		q.pushFront(item)
	case at:
		// The hook may have shrunk the queue.
		idx := min(pos.index, q.n)
		q.insert(idx, item)
	default:
		q.pushBack(item)
	}
	return nil
}

// PopAt removes and returns the k-th item counting from the front (k = 0 is
// the front). The relative order of the remaining items is preserved.
func (q *Queue[T]) PopAt(k int) (T, error) {
	var zero T
	if q.n == 0 {
		return zero, ErrEmpty
	}
	if k < 0 || k >= q.n {
		return zero, ErrOutOfRange
	}

	var item T
	switch k {
	case 0:
		item = q.buf[q.head]
		q.buf[q.head] = zero
		q.head = (q.head + 1) % len(q.buf)
		q.n--
	default:
		item = q.remove(k)
	}

	if q.hooks.OnRetire != nil {
		q.hooks.OnRetire(item)
	}
	return item, nil
}

// PopFront is PopAt(0).
func (q *Queue[T]) PopFront() (T, error) { return q.PopAt(0) }

// Front returns the first item without removing it.
func (q *Queue[T]) Front() (T, bool) {
	if q.n == 0 {
		var zero T
		return zero, false
	}
	return q.buf[q.head], true
}

// Get returns the item at offset i.
func (q *Queue[T]) Get(i int) (T, bool) {
	if i < 0 || i >= q.n {
		var zero T
		return zero, false
	}
	return q.buf[q.index(i)], true
}

// Snapshot copies the queue contents front to back.
func (q *Queue[T]) Snapshot() []T {
	out := make([]T, q.n)
	for i := range q.n {
		out[i] = q.buf[q.index(i)]
	}
	return out
}

// Head copies the first n items (fewer if the queue is shorter).
func (q *Queue[T]) Head(n int) []T {
	if n < 0 || n > q.n {
		n = q.n
	}
	out := make([]T, n)
	for i := range n {
		out[i] = q.buf[q.index(i)]
	}
	return out
}

// Tail copies the last n items (fewer if the queue is shorter).
func (q *Queue[T]) Tail(n int) []T {
	if n < 0 || n > q.n {
		n = q.n
	}
	out := make([]T, n)
	for i := range n {
		out[i] = q.buf[q.index(q.n-n+i)]
	}
	return out
}

// Clear drops every item without running OnRetire.
func (q *Queue[T]) Clear() {
	clear(q.buf)
	q.head = 0
	q.n = 0
}

func (q *Queue[T]) index(i int) int {
	return (q.head + i) % len(q.buf)
}

func (q *Queue[T]) grow() {
	if q.n < len(q.buf) {
		return
	}
	next := make([]T, max(2*len(q.buf), 8))
	for i := range q.n {
		next[i] = q.buf[q.index(i)]
	}
	q.buf = next
	q.head = 0
}

func (q *Queue[T]) pushBack(item T) {
	q.grow()
	q.buf[q.index(q.n)] = item
	q.n++
}

func (q *Queue[T]) pushFront(item T) {
	q.grow()
	q.head = (q.head - 1 + len(q.buf)) % len(q.buf)
	q.buf[q.head] = item
	q.n++
}

func (q *Queue[T]) insert(i int, item T) {
	q.grow()
	for j := q.n; j > i; j-- {
		q.buf[q.index(j)] = q.buf[q.index(j-1)]
	}
	q.buf[q.index(i)] = item
	q.n++
}

func (q *Queue[T]) remove(i int) T {
	var zero T
	item := q.buf[q.index(i)]
	for j := i; j < q.n-1; j++ {
		q.buf[q.index(j)] = q.buf[q.index(j+1)]
	}
	q.buf[q.index(q.n-1)] = zero
	q.n--
	return item
}
