package action

import "sync"

// Watch は値の変化を検出する。
// 同じ値が続けて観測された場合は変化なしとみなす。
type Watch[T comparable] struct {
	mu   sync.Mutex
	last T
	set  bool
}

// Observe はvを記録し、直前の値から変化した場合にtrueを返す。
// ゼロ値は変化として扱わない。
func (w *Watch[T]) Observe(v T) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	var zero T
	if v == zero {
		return false
	}
	if w.set && w.last == v {
		return false
	}
	w.last = v
	w.set = true
	return true
}

// Last は最後に観測した値を返す。
func (w *Watch[T]) Last() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}
