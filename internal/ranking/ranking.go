// Package ranking は表示用の並び順を決める純粋関数を提供する。
//
// 通常の投稿は保存順（追加時に先頭へ挿入されるため新しい順）をそのまま使う。
// イベントは「開催予定を近い順、終了済みを新しい順、開催予定が常に先」の
// 単一の全順序で並べる。
package ranking

import (
	"cmp"
	"slices"
	"time"

	"github.com/hitoshi/unihub/internal/model"
)

// Scheduled は日付と時刻を持つランキング対象。
type Scheduled interface {
	Schedule() (date, clock string)
	RankID() string
}

// Scoped はカレッジの公開範囲を持つ要素。
type Scoped interface {
	Scope() model.College
}

// Chronological は保存順のコピーを返す。再ソートはしない。
func Chronological[T any](items []T) []T {
	return slices.Clone(items)
}

type rankKey struct {
	past    bool
	instant time.Time
	id      string
}

func keyOf(item Scheduled, now time.Time, loc *time.Location) rankKey {
	date, clock := item.Schedule()
	instant, err := model.ParseInstant(date, clock, loc)
	if err != nil {
		// 解釈できない日時は最も古い終了済みとして末尾に回す
		return rankKey{past: true, id: item.RankID()}
	}
	return rankKey{past: instant.Before(now), instant: instant, id: item.RankID()}
}

func compareKeys(a, b rankKey) int {
	if a.past != b.past {
		if a.past {
			return 1
		}
		return -1
	}
	if c := a.instant.Compare(b.instant); c != 0 {
		if a.past {
			return -c
		}
		return c
	}
	return cmp.Compare(a.id, b.id)
}

// Compare は2つの要素をイベント順で比較する。
// nowちょうどの開催時刻は開催予定として扱う。
func Compare(a, b Scheduled, now time.Time, loc *time.Location) int {
	return compareKeys(keyOf(a, now, loc), keyOf(b, now, loc))
}

// Upcoming はイベント順に並べ替えたコピーを返す。
// 日時の解釈は要素ごとに一度だけ行う。
func Upcoming[T Scheduled](items []T, now time.Time, loc *time.Location) []T {
	type keyed struct {
		key  rankKey
		item T
	}
	ks := make([]keyed, len(items))
	for i, it := range items {
		ks[i] = keyed{key: keyOf(it, now, loc), item: it}
	}
	slices.SortFunc(ks, func(a, b keyed) int { return compareKeys(a.key, b.key) })

	out := make([]T, len(ks))
	for i, k := range ks {
		out[i] = k.item
	}
	return out
}

// FilterByCollege は指定カレッジとGlobalの要素を元の順序のまま返す。
// collegeが空またはGlobalの場合は全件を返す。
func FilterByCollege[T Scoped](items []T, college model.College) []T {
	if college == "" || college == model.CollegeGlobal {
		return slices.Clone(items)
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if s := it.Scope(); s == college || s == model.CollegeGlobal {
			out = append(out, it)
		}
	}
	return out
}

// Feed は通常の投稿フィードを返す。
func Feed(posts []model.Post, college model.College) []model.Post {
	return Chronological(FilterByCollege(posts, college))
}

// EventFeed はカレンダーのイベント一覧を返す。
func EventFeed(events []model.CalendarEvent, college model.College, now time.Time, loc *time.Location) []model.CalendarEvent {
	return Upcoming(FilterByCollege(events, college), now, loc)
}

// Broadcasts はイベント共有の投稿だけをイベント順で返す。
func Broadcasts(posts []model.Post, now time.Time, loc *time.Location) []model.Post {
	out := make([]model.Post, 0, len(posts))
	for _, p := range posts {
		if p.Event != nil {
			out = append(out, p)
		}
	}
	return Upcoming(out, now, loc)
}
