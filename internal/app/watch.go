package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hitoshi/unihub/internal/config"
	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/notification"
	"github.com/hitoshi/unihub/internal/ranking"
	"github.com/hitoshi/unihub/internal/security"
	"github.com/hitoshi/unihub/internal/store"
	"github.com/hitoshi/unihub/internal/worker/poll"
)

// watchコマンドで表示できるビュー
const (
	viewFeed          = "feed"
	viewEvents        = "events"
	viewNotifications = "notifications"
)

// snapshotPrinter はビューの読み込みごとに一覧を出力する。
// 複数の購読から呼ばれても出力が混ざらないようにする。
type snapshotPrinter struct {
	mu        sync.Mutex
	out       io.Writer
	sanitizer security.Sanitizer
	now       func() time.Time
}

func newSnapshotPrinter(out io.Writer) *snapshotPrinter {
	return &snapshotPrinter{out: out, sanitizer: security.NewSanitizer(), now: time.Now}
}

func printSnapshot[T any](p *snapshotPrinter, name string, version uint64, items []T, line func(T) string, footer func([]T) string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "== %s #%d %s (%d件)\n", name, version, p.now().Format("15:04:05"), len(items))
	for _, it := range items {
		fmt.Fprintf(p.out, "  %s\n", line(it))
	}
	if footer != nil {
		fmt.Fprintf(p.out, "  -- %s\n", footer(items))
	}
}

// watchView はViewを定期的に読み込み、読み込みのたびに表示用の一覧を出力する購読を返す。
func watchView[T any](
	p *snapshotPrinter,
	name string,
	interval time.Duration,
	collection string,
	load func(ctx context.Context) ([]T, error),
	derive func([]T) []T,
	line func(T) string,
	footer func([]T) string,
) poll.Subscription {
	v := poll.NewView(load, derive)
	sub := v.Subscription(name, interval, collection)
	sub.Refresh = func(ctx context.Context) error {
		if err := v.Refresh(ctx); err != nil {
			return err
		}
		printSnapshot(p, name, v.Version(), v.Snapshot(), line, footer)
		return nil
	}
	return sub
}

// newWatchSubscription はビュー名に対応する購読を組み立てる。
// フィードとイベントは現在のユーザーのカレッジで絞り込む。
func newWatchSubscription(ctx context.Context, name string, cfg *config.Config, svc *services, p *snapshotPrinter) (poll.Subscription, error) {
	college := model.CollegeGlobal
	if u, err := svc.users.CurrentUser(ctx); err != nil {
		return poll.Subscription{}, err
	} else if u != nil {
		college = u.College
	}

	switch name {
	case viewFeed:
		return watchView(p, name, cfg.FeedPollInterval, store.Posts.Key,
			svc.posts.GetPosts,
			func(posts []model.Post) []model.Post { return ranking.Feed(posts, college) },
			p.formatPost,
			nil,
		), nil
	case viewEvents:
		return watchView(p, name, cfg.EventsPollInterval, store.Events.Key,
			svc.events.GetEvents,
			func(events []model.CalendarEvent) []model.CalendarEvent {
				return ranking.EventFeed(events, college, p.now(), cfg.EventTimezone)
			},
			formatEvent,
			nil,
		), nil
	case viewNotifications:
		return watchView(p, name, cfg.NotificationsPollInterval, store.Notifications.Key,
			svc.notifications.GetNotifications,
			nil,
			formatNotification,
			unreadSummary,
		), nil
	default:
		return poll.Subscription{}, fmt.Errorf("unknown view %q (feed, events, notifications)", name)
	}
}

func (p *snapshotPrinter) formatPost(post model.Post) string {
	text := truncate(p.sanitizer.PlainText(post.Content), 40)
	return fmt.Sprintf("[%s] %s %s likes=%d comments=%d views=%d",
		post.College, post.AuthorID, text, post.Likes, post.Comments, post.Views)
}

func formatEvent(e model.CalendarEvent) string {
	return fmt.Sprintf("%s %s %s @%s (%d人)", e.Date, e.Time, e.Title, e.Location, len(e.AttendeeIDs))
}

func formatNotification(n model.Notification) string {
	mark := "●"
	if n.IsRead {
		mark = "○"
	}
	return fmt.Sprintf("%s %s %s", mark, n.Timestamp.Format("01/02 15:04"), n.Title)
}

// unreadSummary は通知ビューの末尾に表示する未読数の行を返す。
func unreadSummary(ns []model.Notification) string {
	return fmt.Sprintf("未読 %d件", notification.CountUnread(ns))
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
