package model

import "time"

// NotificationType は通知の種別。
type NotificationType string

const (
	NotificationEngagement NotificationType = "engagement"
	NotificationFollow     NotificationType = "follow"
	NotificationEvent      NotificationType = "event"
	NotificationSystem     NotificationType = "system"
	NotificationSkillMatch NotificationType = "skill_match"
)

// Valid は通知種別が定義済みの値かを返す。
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationEngagement, NotificationFollow, NotificationEvent, NotificationSystem, NotificationSkillMatch:
		return true
	}
	return false
}

// Notification はユーザーへの通知を表す。IsReadはfalseからtrueにのみ変化する。
type Notification struct {
	ID        string           `json:"id" yaml:"id"`
	Type      NotificationType `json:"type" yaml:"type"`
	Title     string           `json:"title" yaml:"title"`
	Message   string           `json:"message" yaml:"message"`
	RefID     string           `json:"refId,omitempty" yaml:"refId,omitempty"`
	IsRead    bool             `json:"isRead" yaml:"isRead"`
	Timestamp time.Time        `json:"timestamp" yaml:"timestamp"`
}
