package model

import "time"

// Resource は学習リソース（資料・リンク・学内ニュースなど）を表す。
// 外部フィードから取り込まれたものはSourceURLとGUIDを持つ。
type Resource struct {
	ID           string    `json:"id" yaml:"id"`
	Title        string    `json:"title" yaml:"title"`
	Summary      string    `json:"summary,omitempty" yaml:"summary,omitempty"` // サニタイズ済みHTML
	Link         string    `json:"link" yaml:"link"`
	Kind         string    `json:"kind" yaml:"kind"`
	College      College   `json:"college" yaml:"college"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty" yaml:"thumbnailUrl,omitempty"`
	SourceURL    string    `json:"sourceUrl,omitempty" yaml:"sourceUrl,omitempty"`
	GUID         string    `json:"guid,omitempty" yaml:"guid,omitempty"`
	ContentHash  string    `json:"contentHash,omitempty" yaml:"contentHash,omitempty"`
	PublishedAt  time.Time `json:"publishedAt" yaml:"publishedAt"`
}

// Scope は公開範囲のカレッジを返す。
func (r Resource) Scope() College { return r.College }

// LostFoundType は落とし物・拾得物の種別。
type LostFoundType string

const (
	LostFoundLost  LostFoundType = "Lost"
	LostFoundFound LostFoundType = "Found"
)

// LostFoundStatus は落とし物の状態。OpenからResolvedへの一方向のみ遷移する。
type LostFoundStatus string

const (
	LostFoundOpen     LostFoundStatus = "Open"
	LostFoundResolved LostFoundStatus = "Resolved"
)

// LostFoundItem は落とし物掲示板の項目を表す。
type LostFoundItem struct {
	ID          string          `json:"id" yaml:"id"`
	Type        LostFoundType   `json:"type" yaml:"type"`
	Title       string          `json:"title" yaml:"title"`
	Description string          `json:"description" yaml:"description"`
	Location    string          `json:"location" yaml:"location"`
	Contact     string          `json:"contact,omitempty" yaml:"contact,omitempty"`
	Status      LostFoundStatus `json:"status" yaml:"status"`
	AuthorID    string          `json:"authorId" yaml:"authorId"`
	CreatedAt   time.Time       `json:"createdAt" yaml:"createdAt"`
}

// AudioLesson は語学などの音声レッスンを表す。Progressは0〜100で単調増加する。
type AudioLesson struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Language    string `json:"language" yaml:"language"`
	Level       string `json:"level" yaml:"level"`
	DurationSec int    `json:"durationSec" yaml:"durationSec"`
	AudioURL    string `json:"audioUrl" yaml:"audioUrl"`
	Progress    int    `json:"progress" yaml:"progress"`
	Completed   bool   `json:"completed" yaml:"completed"`
}
