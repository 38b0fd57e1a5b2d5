package poll

import (
	"context"
	"slices"
	"sync"
	"time"
)

// View は最後に読み込んだスナップショットと、そこから導出した表示用の一覧を保持する。
// 読み込みのたびに前回の内容を差分なしで丸ごと置き換える。
type View[T any] struct {
	load   func(ctx context.Context) ([]T, error)
	derive func([]T) []T

	mu          sync.RWMutex
	raw         []T
	derived     []T
	version     uint64
	refreshedAt time.Time
}

// NewView はViewを生成する。deriveがnilの場合は読み込んだ順序のまま表示する。
func NewView[T any](load func(ctx context.Context) ([]T, error), derive func([]T) []T) *View[T] {
	if derive == nil {
		derive = func(items []T) []T { return items }
	}
	return &View[T]{load: load, derive: derive}
}

// Refresh はコレクションを読み込み直してスナップショットを置き換える。
// 読み込みに失敗した場合は前回のスナップショットを保持する。
func (v *View[T]) Refresh(ctx context.Context) error {
	items, err := v.load(ctx)
	if err != nil {
		return err
	}
	derived := v.derive(slices.Clone(items))

	v.mu.Lock()
	defer v.mu.Unlock()
	v.raw = items
	v.derived = derived
	v.version++
	v.refreshedAt = time.Now()
	return nil
}

// Snapshot は導出済みの表示用一覧のコピーを返す。
func (v *View[T]) Snapshot() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.derived)
}

// Raw は最後に読み込んだままの一覧のコピーを返す。
func (v *View[T]) Raw() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.raw)
}

// Version は読み込みに成功した回数を返す。
func (v *View[T]) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// RefreshedAt は最後に読み込みに成功した時刻を返す。
func (v *View[T]) RefreshedAt() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.refreshedAt
}

// Subscription はこのViewを定期的に読み込む購読を返す。
func (v *View[T]) Subscription(name string, interval time.Duration, collections ...string) Subscription {
	return Subscription{
		Name:        name,
		Interval:    interval,
		Collections: collections,
		Refresh:     v.Refresh,
	}
}
