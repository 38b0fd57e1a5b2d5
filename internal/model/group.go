package model

import "time"

// Group は学内のグループ（サークル・ゼミなど）を表す。
// MemberIDsは重複を含まない集合。
type Group struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	College     College  `json:"college" yaml:"college"`
	MemberIDs   []string `json:"memberIds" yaml:"memberIds"`
	Members     int      `json:"members" yaml:"members"`
}

// HasMember はユーザーがグループに所属しているかを返す。
func (g Group) HasMember(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// GroupMessage はグループ内のメッセージを表す。挿入順が表示順になる。
type GroupMessage struct {
	ID        string    `json:"id" yaml:"id"`
	GroupID   string    `json:"groupId" yaml:"groupId"`
	AuthorID  string    `json:"authorId" yaml:"authorId"`
	Text      string    `json:"text" yaml:"text"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// ChatMessage は1対1チャットのメッセージ。
type ChatMessage struct {
	ID        string    `json:"id" yaml:"id"`
	SenderID  string    `json:"senderId" yaml:"senderId"`
	Text      string    `json:"text" yaml:"text"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// ChatConversation はチャットの会話を表す。Messagesは追記のみ。
type ChatConversation struct {
	ID             string        `json:"id" yaml:"id"`
	ParticipantIDs []string      `json:"participantIds" yaml:"participantIds"`
	Messages       []ChatMessage `json:"messages" yaml:"messages"`
	Unread         int           `json:"unread" yaml:"unread"`
}
