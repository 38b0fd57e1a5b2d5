package store

import "context"

// Modify はmatchに一致した要素にfnを適用して書き戻す。
// 一致する要素がない場合は何も書き込まず、found=falseを返す（エラーにはしない）。
// fnは一致した全要素に適用される。
func Modify[T any](ctx context.Context, s *Store, c Collection[T], match func(T) bool, fn func(*T)) (bool, error) {
	found := false
	err := Update(ctx, s, c, func(items []T) ([]T, error) {
		found = false
		for i := range items {
			if match(items[i]) {
				fn(&items[i])
				found = true
			}
		}
		if !found {
			return nil, ErrUnchanged
		}
		return items, nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// Prepend は要素を先頭に追加する。新しいものが先頭に並ぶ。
func Prepend[T any](ctx context.Context, s *Store, c Collection[T], item T) error {
	return Update(ctx, s, c, func(items []T) ([]T, error) {
		return append([]T{item}, items...), nil
	})
}

// Append は要素を末尾に追加する。挿入順が表示順になる。
func Append[T any](ctx context.Context, s *Store, c Collection[T], item T) error {
	return Update(ctx, s, c, func(items []T) ([]T, error) {
		return append(items, item), nil
	})
}

// Remove はmatchに一致した要素を取り除き、取り除いた件数を返す。一致しない場合は何もしない。
func Remove[T any](ctx context.Context, s *Store, c Collection[T], match func(T) bool) (int, error) {
	removed := 0
	err := Update(ctx, s, c, func(items []T) ([]T, error) {
		removed = 0
		kept := items[:0]
		for _, it := range items {
			if match(it) {
				removed++
				continue
			}
			kept = append(kept, it)
		}
		if removed == 0 {
			return nil, ErrUnchanged
		}
		return kept, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
