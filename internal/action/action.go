// Package action はボタン単位の非同期処理の状態（idle → loading → success | error）を管理する。
package action

import (
	"context"
	"sync"
	"time"
)

// Status は処理の状態を表す。
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Snapshot はある時点の状態のコピー。
type Snapshot[T any] struct {
	Status    Status
	Value     T
	Err       error
	UpdatedAt time.Time
}

// Loading は処理中かどうかを返す。
func (s Snapshot[T]) Loading() bool {
	return s.Status == StatusLoading
}

// Action は1つの非同期処理の状態機械。
// 失敗時はエラーのみを記録し、直前に成功した値はそのまま残す。
// 複数のRunが並行した場合は完了した順に状態が上書きされる。
type Action[T any] struct {
	mu        sync.RWMutex
	status    Status
	value     T
	err       error
	updatedAt time.Time
	now       func() time.Time
}

// New は初期状態（idle）のActionを生成する。
func New[T any]() *Action[T] {
	return &Action[T]{status: StatusIdle, now: time.Now}
}

// Run はfnを実行し、その結果で状態を更新する。fnのエラーをそのまま返す。
func (a *Action[T]) Run(ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	a.set(func() {
		a.status = StatusLoading
	})

	v, err := fn(ctx)

	a.set(func() {
		if err != nil {
			a.status = StatusError
			a.err = err
			return
		}
		a.status = StatusSuccess
		a.value = v
		a.err = nil
	})
	return v, err
}

// Snapshot は現在の状態のコピーを返す。
func (a *Action[T]) Snapshot() Snapshot[T] {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Snapshot[T]{
		Status:    a.status,
		Value:     a.value,
		Err:       a.err,
		UpdatedAt: a.updatedAt,
	}
}

// Value は最後に成功した値を返す。
func (a *Action[T]) Value() T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.value
}

func (a *Action[T]) set(update func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	update()
	a.updatedAt = a.now()
}
