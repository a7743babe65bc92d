package stack

import (
	"github.com/pkg/errors"
)

var ErrStackEmpty = errors.New("stack is empty")

// Stack is a slice backed LIFO. It is not safe for concurrent use.
type Stack[T any] struct{ underlying []T }

func New[T any](cap uint) *Stack[T] {
	return &Stack[T]{underlying: make([]T, 0, cap)}
}

func (s *Stack[T]) Len() uint {
	return uint(len(s.underlying))
}

func (s *Stack[T]) Push(data T) {
	s.underlying = append(s.underlying, data)
}

func (s *Stack[T]) Pop() (T, error) {
	var zero T
	if s.Len() == 0 {
		return zero, ErrStackEmpty
	}

	data := s.underlying[s.Len()-1]
	s.underlying[s.Len()-1] = zero
	s.underlying = s.underlying[:s.Len()-1]

	return data, nil
}

// Drain empties the stack and returns what it held, bottom first.
func (s *Stack[T]) Drain() []T {
	out := s.underlying
	s.underlying = nil
	return out
}
