package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrEmpty is returned when popping from an empty queue.
	ErrEmpty = errors.New("queue is empty")
	// ErrOutOfRange is returned for an offset outside the queue.
	ErrOutOfRange = errors.New("queue offset out of range")
)

// Unbounded disables the saturation predicate.
const Unbounded = -1

// Position selects where Append places an item.
type Position struct {
	kind  positionKind
	index int
}

type positionKind int

const (
	tail positionKind = iota
	head
	at
)

var (
	// Tail appends after the last item.
	Tail = Position{kind: tail}
	// Head prepends before the first item.
	Head = Position{kind: head}
)

// At places the item so it ends up at offset i from the front. At(0) is
// equivalent to Head and At(Len()) to Tail.
func At(i int) Position {
	return Position{kind: at, index: i}
}

func (p Position) String() string {
	switch p.kind {
	case head:
		return "head"
	case at:
		return fmt.Sprintf("@%d", p.index)
	default:
		return "tail"
	}
}

// Hooks are narrow policy callbacks that specialise a Queue without
// wrapping every method.
type Hooks[T any] struct {
	// BeforeAppend runs before an item is inserted, with the queue in its
	// pre-append state. It may pop from the queue.
	BeforeAppend func(q *Queue[T], item T)
	// OnRetire runs for every item removed by PopAt.
	OnRetire func(item T)
}
