package poll

import (
	"context"
	"slices"
	"testing"
)

func TestView_RefreshReplacesWholesale(t *testing.T) {
	data := []int{3, 1, 2}
	v := NewView(func(ctx context.Context) ([]int, error) {
		return slices.Clone(data), nil
	}, func(items []int) []int {
		slices.Sort(items)
		return items
	})
	ctx := context.Background()

	if err := v.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got := v.Snapshot(); !slices.Equal(got, []int{1, 2, 3}) {
		t.Errorf("Snapshot = %v", got)
	}
	if got := v.Raw(); !slices.Equal(got, []int{3, 1, 2}) {
		t.Errorf("Raw = %v, derive must not reorder the raw snapshot", got)
	}

	data = []int{9}
	_ = v.Refresh(ctx)
	if got := v.Snapshot(); !slices.Equal(got, []int{9}) {
		t.Errorf("Snapshot after second refresh = %v, want [9]", got)
	}
	if v.Version() != 2 || v.RefreshedAt().IsZero() {
		t.Errorf("Version = %d RefreshedAt = %v", v.Version(), v.RefreshedAt())
	}
}

func TestView_SnapshotIsCopy(t *testing.T) {
	v := NewView(func(ctx context.Context) ([]string, error) {
		return []string{"a"}, nil
	}, nil)
	_ = v.Refresh(context.Background())

	snap := v.Snapshot()
	snap[0] = "mutated"
	if v.Snapshot()[0] != "a" {
		t.Error("Snapshotの変更がViewに反映されています")
	}
}

func TestView_EmptyBeforeFirstRefresh(t *testing.T) {
	v := NewView(func(ctx context.Context) ([]string, error) { return nil, nil }, nil)
	if len(v.Snapshot()) != 0 || v.Version() != 0 {
		t.Error("初回読み込み前は空であるべきです")
	}
}
