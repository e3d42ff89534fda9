package pool

import (
	"sync"
)

// Pool типизированная обертка над sync.Pool
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T) T
}

// New создает пул. newFn создает объект, reset очищает объект перед возвратом в пул.
func New[T any](newFn func() T, reset func(T) T) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		return newFn()
	}
	return p
}

// Get получает объект из пула
func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put возвращает объект в пул
func (p *Pool[T]) Put(v T) {
	if p.reset != nil {
		v = p.reset(v)
	}
	p.pool.Put(v)
}

// ByteSlices пул буферов для сериализации
var ByteSlices = New(
	func() *[]byte {
		b := make([]byte, 0, 1024)
		return &b
	},
	func(b *[]byte) *[]byte {
		*b = (*b)[:0]
		return b
	},
)
