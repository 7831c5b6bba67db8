package db

import "errors"

var errNilNode = errors.New("db: nil list node")

type ListNode[T any] struct {
	Prev  *ListNode[T]
	Next  *ListNode[T]
	Value T
}

type ListIter[T any] struct {
	next      *ListNode[T]
	direction int
}

// Next returns the current node and advances; it returns nil at the end.
// Removing the returned node is safe.
func (it *ListIter[T]) Next() *ListNode[T] {
	curr := it.next
	if curr != nil {
		if it.direction == DIRECTION_HEAD {
			it.next = curr.Next
		} else {
			it.next = curr.Prev
		}
	}
	return curr
}

type List[T any] struct {
	Head   *ListNode[T]
	Tail   *ListNode[T]
	Length int
}

const (
	// DIRECTION_HEAD iterates from head to tail
	DIRECTION_HEAD = iota
	DIRECTION_TAIL
)

func NewList[T any]() *List[T] {
	return &List[T]{}
}

// Empty the list
func (l *List[T]) Empty() {
	for current := l.Head; current != nil; {
		next := current.Next
		current.Prev, current.Next = nil, nil
		current = next
	}
	l.Head, l.Tail = nil, nil
	l.Length = 0
}

// Release the list
func (l *List[T]) Release() {
	l.Empty()
}

func (l *List[T]) AddNodeHead(value T) *ListNode[T] {
	node := &ListNode[T]{Value: value}
	if l.Head == nil {
		l.Head, l.Tail = node, node
	} else {
		node.Next, l.Head.Prev, l.Head = l.Head, node, node
	}
	l.Length++
	return node
}

func (l *List[T]) AddNodeTail(value T) *ListNode[T] {
	node := &ListNode[T]{Value: value}
	if l.Tail == nil {
		l.Head, l.Tail = node, node
	} else {
		node.Prev, l.Tail.Next, l.Tail = l.Tail, node, node
	}
	l.Length++
	return node
}

func (l *List[T]) InsertNode(oldNode *ListNode[T], value T, after bool) error {
	if oldNode == nil {
		return errNilNode
	}
	if after && oldNode.Next == nil {
		l.AddNodeTail(value)
		return nil
	}
	if !after && oldNode.Prev == nil {
		l.AddNodeHead(value)
		return nil
	}

	node := &ListNode[T]{Value: value}
	if after {
		node.Prev, node.Next = oldNode, oldNode.Next
	} else {
		node.Prev, node.Next = oldNode.Prev, oldNode
	}
	node.Prev.Next = node
	node.Next.Prev = node
	l.Length++
	return nil
}

// RemoveNode a node from the list
func (l *List[T]) RemoveNode(node *ListNode[T]) error {
	if node == nil {
		return errNilNode
	}
	if node.Prev != nil {
		node.Prev.Next = node.Next
	} else {
		l.Head = node.Next
	}
	if node.Next != nil {
		node.Next.Prev = node.Prev
	} else {
		l.Tail = node.Prev
	}
	node.Next, node.Prev = nil, nil
	l.Length--
	return nil
}

// Index returns the node at index, counting from the tail when index is
// negative (-1 is the tail). It returns nil when out of range.
func (l *List[T]) Index(index int) *ListNode[T] {
	if index < 0 {
		index = -index - 1
		n := l.Tail
		for ; n != nil && index > 0; index-- {
			n = n.Prev
		}
		return n
	}
	n := l.Head
	for ; n != nil && index > 0; index-- {
		n = n.Next
	}
	return n
}

func (l *List[T]) Iter(direction int) *ListIter[T] {
	if direction == DIRECTION_HEAD {
		return &ListIter[T]{next: l.Head, direction: direction}
	}
	return &ListIter[T]{next: l.Tail, direction: direction}
}

// Len ...
func (l *List[T]) Len() int {
	return l.Length
}
