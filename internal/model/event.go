package model

import (
	"fmt"
	"time"
)

// DateLayout と ClockLayout はイベントの日付・時刻の保存形式。
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// CalendarEvent はキャンパスカレンダーのイベントを表す。
// AttendeeIDsは重複を含まない追記のみの集合。
type CalendarEvent struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Date        string   `json:"date" yaml:"date"`
	Time        string   `json:"time" yaml:"time"`
	Location    string   `json:"location" yaml:"location"`
	College     College  `json:"college" yaml:"college"`
	Price       int      `json:"price" yaml:"price"`
	AttendeeIDs []string `json:"attendeeIds" yaml:"attendeeIds"`
	CreatedBy   string   `json:"createdBy" yaml:"createdBy"`
}

// Schedule はランキング用に日付と時刻を返す。
func (e CalendarEvent) Schedule() (date, clock string) { return e.Date, e.Time }

// RankID はランキングの同順位を解決するためのIDを返す。
func (e CalendarEvent) RankID() string { return e.ID }

// Scope は公開範囲のカレッジを返す。
func (e CalendarEvent) Scope() College { return e.College }

// Instant は日付と時刻を1つの時刻として返す。
func (e CalendarEvent) Instant(loc *time.Location) (time.Time, error) {
	return ParseInstant(e.Date, e.Time, loc)
}

// HasAttendee はユーザーが登録済みかを返す。
func (e CalendarEvent) HasAttendee(userID string) bool {
	for _, id := range e.AttendeeIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ParseInstant は日付と時刻の文字列を1つの時刻に変換する。
// 時刻が空の場合はその日の0時として扱う。
func ParseInstant(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if date == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if clock == "" {
		return time.ParseInLocation(DateLayout, date, loc)
	}
	return time.ParseInLocation(DateLayout+" "+ClockLayout, date+" "+clock, loc)
}

// TicketStatus はチケットの状態。
type TicketStatus string

const (
	TicketStatusValid TicketStatus = "Valid"
	TicketStatusUsed  TicketStatus = "Used"
)

// Ticket はイベントの購入済みチケットを表す。作成後は変更しない。
// EventIDは弱参照であり、イベントの存在は検証しない。
type Ticket struct {
	ID           string       `json:"id" yaml:"id"`
	EventID      string       `json:"eventId" yaml:"eventId"`
	EventTitle   string       `json:"eventTitle" yaml:"eventTitle"`
	EventDate    string       `json:"eventDate,omitempty" yaml:"eventDate,omitempty"`
	OwnerName    string       `json:"ownerName" yaml:"ownerName"`
	Status       TicketStatus `json:"status" yaml:"status"`
	SecurityHash string       `json:"securityHash" yaml:"securityHash"` // 表示用トークン。暗号学的な意味はない
	PurchasedAt  time.Time    `json:"purchasedAt" yaml:"purchasedAt"`
}
