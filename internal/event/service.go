// Package event はカレンダーイベントとチケットへのアクセスを提供する。
package event

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/notification"
	"github.com/hitoshi/unihub/internal/store"
)

// Service はイベントとチケットのサービス層。
type Service struct {
	store *store.Store
	loc   *time.Location
	now   func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// locはイベントの日付・時刻を解釈するタイムゾーン。
func NewService(st *store.Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: st, loc: loc, now: time.Now}
}

// Location はイベント日時の解釈に使うタイムゾーンを返す。
func (s *Service) Location() *time.Location { return s.loc }

// GetEvents はイベント一覧を保存順で返す。表示順はranking.EventFeedで決める。
func (s *Service) GetEvents(ctx context.Context) ([]model.CalendarEvent, error) {
	return store.Load(ctx, s.store, store.Events)
}

// SaveEvents はイベント一覧を丸ごと置き換える。
// IDの重複は拒否し、参加者の重複は取り除いて保存する。
func (s *Service) SaveEvents(ctx context.Context, events []model.CalendarEvent) error {
	if err := model.CheckUniqueIDs("イベント", events, func(e model.CalendarEvent) string { return e.ID }); err != nil {
		return err
	}
	events = slices.Clone(events)
	for i := range events {
		if events[i].AttendeeIDs != nil {
			events[i].AttendeeIDs = model.DedupeIDs(events[i].AttendeeIDs)
		}
	}
	return store.Save(ctx, s.store, store.Events, events)
}

// AddEvent はイベントを追加する。日付と時刻は解釈できる形式でなければならない。
func (s *Service) AddEvent(ctx context.Context, e model.CalendarEvent) (model.CalendarEvent, error) {
	if strings.TrimSpace(e.Title) == "" {
		return model.CalendarEvent{}, model.NewInvalidInputError("タイトルは必須です")
	}
	if _, err := e.Instant(s.loc); err != nil {
		return model.CalendarEvent{}, model.NewInvalidInputError(fmt.Sprintf("日時の形式が正しくありません: %s %s", e.Date, e.Time))
	}
	if e.Price < 0 {
		return model.CalendarEvent{}, model.NewInvalidInputError("価格は0以上で指定してください")
	}
	if e.ID == "" {
		e.ID = model.NewID("evt")
	}
	if e.College == "" {
		e.College = model.CollegeGlobal
	}
	e.AttendeeIDs = model.DedupeIDs(e.AttendeeIDs)
	if err := store.Prepend(ctx, s.store, store.Events, e); err != nil {
		return model.CalendarEvent{}, err
	}
	return e, nil
}

// RegisterForEvent はユーザーを参加者に追加する。
// 登録済みの場合と存在しないイベントの場合は何もしない。
func (s *Service) RegisterForEvent(ctx context.Context, eventID, userID string) error {
	if userID == "" {
		return model.NewInvalidInputError("ユーザーIDは必須です")
	}
	_, err := store.Modify(ctx, s.store, store.Events,
		func(e model.CalendarEvent) bool { return e.ID == eventID && !e.HasAttendee(userID) },
		func(e *model.CalendarEvent) { e.AttendeeIDs = append(e.AttendeeIDs, userID) },
	)
	return err
}

// GetTickets は購入済みチケットを返す。
func (s *Service) GetTickets(ctx context.Context) ([]model.Ticket, error) {
	return store.Load(ctx, s.store, store.Tickets)
}

// SaveTickets はチケット一覧を丸ごと置き換える。
func (s *Service) SaveTickets(ctx context.Context, tickets []model.Ticket) error {
	if err := model.CheckUniqueIDs("チケット", tickets, func(t model.Ticket) string { return t.ID }); err != nil {
		return err
	}
	return store.Save(ctx, s.store, store.Tickets, tickets)
}

// PurchaseTicket はチケットを保存し、同時にイベント通知を1件追加する。
// 2つの書き込みは1回のコミットで行われ、片方だけが反映されることはない。
// EventIDの存在は検証しない。EventTitleが空の場合のみイベントから補完する。
func (s *Service) PurchaseTicket(ctx context.Context, t model.Ticket) (model.Ticket, error) {
	if t.EventID == "" {
		return model.Ticket{}, model.NewInvalidInputError("イベントIDは必須です")
	}
	if strings.TrimSpace(t.OwnerName) == "" {
		return model.Ticket{}, model.NewInvalidInputError("購入者名は必須です")
	}
	if t.ID == "" {
		t.ID = model.NewID("tkt")
	}
	if t.Status == "" {
		t.Status = model.TicketStatusValid
	}
	if t.SecurityHash == "" {
		t.SecurityHash = displayToken()
	}
	now := s.now()
	if t.PurchasedAt.IsZero() {
		t.PurchasedAt = now
	}

	err := s.store.Batch(ctx, func(tx *store.Tx) error {
		if t.EventTitle == "" || t.EventDate == "" {
			events, err := store.LoadTx(tx, store.Events)
			if err != nil {
				return err
			}
			for _, e := range events {
				if e.ID == t.EventID {
					if t.EventTitle == "" {
						t.EventTitle = e.Title
					}
					if t.EventDate == "" {
						t.EventDate = e.Date
					}
					break
				}
			}
		}

		tickets, err := store.LoadTx(tx, store.Tickets)
		if err != nil {
			return err
		}
		for _, existing := range tickets {
			if existing.ID == t.ID {
				return model.NewInvalidInputError("チケットIDが重複しています: " + t.ID)
			}
		}
		if err := store.StageTx(tx, store.Tickets, append([]model.Ticket{t}, tickets...)); err != nil {
			return err
		}

		notes, err := store.LoadTx(tx, store.Notifications)
		if err != nil {
			return err
		}
		n := notification.Build(model.NotificationEvent,
			"チケットを購入しました",
			fmt.Sprintf("「%s」のチケットを購入しました。", t.EventTitle),
			t.EventID,
			now,
		)
		return store.StageTx(tx, store.Notifications, append([]model.Notification{n}, notes...))
	}, store.Events, store.Tickets, store.Notifications)
	if err != nil {
		return model.Ticket{}, err
	}
	return t, nil
}

// displayToken はチケット画面に表示する照合用の文字列を生成する。
func displayToken() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
