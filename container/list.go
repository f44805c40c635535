package container

type ListNode[T any] struct {
	Prev  *ListNode[T]
	Next  *ListNode[T]
	Value T
}

type List[T any] struct {
	Head   *ListNode[T]
	Tail   *ListNode[T]
	Length int
}

func NewList[T any]() *List[T] {
	return &List[T]{}
}

// AddNodeTail appends value and returns its node so callers can unlink it in
// O(1) later.
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

func (l *List[T]) RemoveNode(node *ListNode[T]) {
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
	node.Prev, node.Next = nil, nil
	l.Length--
}

// Range walks the list head to tail; returning false stops the walk.
func (l *List[T]) Range(fn func(value T) bool) {
	for node := l.Head; node != nil; node = node.Next {
		if !fn(node.Value) {
			return
		}
	}
}

// Empty the list
func (l *List[T]) Empty() {
	l.Head, l.Tail = nil, nil
	l.Length = 0
}
