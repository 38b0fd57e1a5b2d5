package model

import "time"

// Category は分類サービスが判定する投稿カテゴリ。
type Category string

const (
	CategoryAcademic Category = "Academic"
	CategorySocial   Category = "Social"
	CategoryCareer   Category = "Career"
	CategoryUrgent   Category = "Urgent"
)

// Valid はカテゴリが定義済みの値かを返す。
func (c Category) Valid() bool {
	switch c {
	case CategoryAcademic, CategorySocial, CategoryCareer, CategoryUrgent:
		return true
	}
	return false
}

// Attachment は投稿に添付されたメディアへの参照。
type Attachment struct {
	URL      string `json:"url" yaml:"url"`
	MimeType string `json:"mimeType,omitempty" yaml:"mimeType,omitempty"`
}

// Moderation は投稿作成時に確定するモデレーション結果。作成後は変更しない。
type Moderation struct {
	Category Category `json:"category" yaml:"category"`
	IsSafe   bool     `json:"isSafe" yaml:"isSafe"`
}

// EventBroadcast はカレンダーイベントを投稿として再共有した場合の付加情報。
type EventBroadcast struct {
	EventID  string `json:"eventId,omitempty" yaml:"eventId,omitempty"`
	Title    string `json:"title" yaml:"title"`
	Date     string `json:"date" yaml:"date"`
	Time     string `json:"time" yaml:"time"`
	Location string `json:"location" yaml:"location"`
}

// Post はフィードに表示される投稿を表す。
// モデレーションを通過した投稿のみがストアに存在する。
type Post struct {
	ID          string          `json:"id" yaml:"id"`
	AuthorID    string          `json:"authorId" yaml:"authorId"`
	Content     string          `json:"content" yaml:"content"` // サニタイズ済みHTML
	Attachments []Attachment    `json:"attachments,omitempty" yaml:"attachments,omitempty"`
	College     College         `json:"college" yaml:"college"`
	CreatedAt   time.Time       `json:"createdAt" yaml:"createdAt"`
	Likes       int             `json:"likes" yaml:"likes"`
	Comments    int             `json:"comments" yaml:"comments"`
	Views       int             `json:"views" yaml:"views"`
	Moderation  Moderation      `json:"moderation" yaml:"moderation"`
	Event       *EventBroadcast `json:"event,omitempty" yaml:"event,omitempty"`
}

// Schedule はランキング用に日付と時刻を返す。イベント共有でない投稿は空文字列を返す。
func (p Post) Schedule() (date, clock string) {
	if p.Event == nil {
		return "", ""
	}
	return p.Event.Date, p.Event.Time
}

// RankID はランキングの同順位を解決するためのIDを返す。
func (p Post) RankID() string { return p.ID }

// Scope は公開範囲のカレッジを返す。
func (p Post) Scope() College { return p.College }
