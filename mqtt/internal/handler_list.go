// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"iter"
	"sync"
)

type listNode[T any] struct {
	value T
	prev  *listNode[T]
	next  *listNode[T]
}

// HandlerList is a concurrency-safe list of callbacks which supports O(1)
// removal of any entry through the function returned on append.
type HandlerList[T any] struct {
	mu    sync.RWMutex
	first *listNode[T]
	last  *listNode[T]
}

func NewHandlerList[T any]() *HandlerList[T] {
	return &HandlerList[T]{}
}

// Append adds the value to the end of the list. The returned function removes
// it again and is safe to call more than once.
func (l *HandlerList[T]) Append(value T) (remove func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	node := &listNode[T]{value: value, prev: l.last}
	if l.last == nil {
		l.first = node
	} else {
		l.last.next = node
	}
	l.last = node

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if node == nil {
			return
		}

		if node.prev == nil {
			l.first = node.next
		} else {
			node.prev.next = node.next
		}

		if node.next == nil {
			l.last = node.prev
		} else {
			node.next.prev = node.prev
		}

		node = nil
	}
}

// All iterates the values in insertion order. The list must not be modified
// from within the loop body.
func (l *HandlerList[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		l.mu.RLock()
		defer l.mu.RUnlock()

		for curr := l.first; curr != nil; curr = curr.next {
			if !yield(curr.value) {
				return
			}
		}
	}
}

// Len returns the number of entries.
func (l *HandlerList[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for curr := l.first; curr != nil; curr = curr.next {
		n++
	}
	return n
}
