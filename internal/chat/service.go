// Package chat は1対1チャットの会話へのアクセスを提供する。
package chat

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/store"
)

// Service はチャットのサービス層。
type Service struct {
	store *store.Store
	now   func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(st *store.Store) *Service {
	return &Service{store: st, now: time.Now}
}

// GetChats は会話一覧を返す。
func (s *Service) GetChats(ctx context.Context) ([]model.ChatConversation, error) {
	return store.Load(ctx, s.store, store.Chats)
}

// SaveChats は会話一覧を丸ごと置き換える。
func (s *Service) SaveChats(ctx context.Context, chats []model.ChatConversation) error {
	if err := model.CheckUniqueIDs("会話", chats, func(c model.ChatConversation) string { return c.ID }); err != nil {
		return err
	}
	return store.Save(ctx, s.store, store.Chats, chats)
}

// OpenConversation は2人の会話を返す。存在しない場合は作成する。
func (s *Service) OpenConversation(ctx context.Context, userA, userB string) (model.ChatConversation, error) {
	if userA == "" || userB == "" || userA == userB {
		return model.ChatConversation{}, model.NewInvalidInputError("会話の参加者が正しくありません")
	}
	var conv model.ChatConversation
	err := store.Update(ctx, s.store, store.Chats, func(chats []model.ChatConversation) ([]model.ChatConversation, error) {
		for _, c := range chats {
			if slices.Contains(c.ParticipantIDs, userA) && slices.Contains(c.ParticipantIDs, userB) {
				conv = c
				return nil, store.ErrUnchanged
			}
		}
		conv = model.ChatConversation{
			ID:             model.NewID("chat"),
			ParticipantIDs: []string{userA, userB},
			Messages:       []model.ChatMessage{},
		}
		return append([]model.ChatConversation{conv}, chats...), nil
	})
	if err != nil {
		return model.ChatConversation{}, err
	}
	return conv, nil
}

// SendMessage はメッセージを会話の末尾に追加し、未読数を1増やす。
// 存在しない会話の場合は何もせず、found=falseを返す。
func (s *Service) SendMessage(ctx context.Context, chatID, senderID, text string) (model.ChatMessage, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ChatMessage{}, false, model.NewInvalidInputError("メッセージは必須です")
	}
	msg := model.ChatMessage{
		ID:        model.NewID("cmsg"),
		SenderID:  senderID,
		Text:      text,
		Timestamp: s.now(),
	}
	found, err := store.Modify(ctx, s.store, store.Chats,
		func(c model.ChatConversation) bool { return c.ID == chatID },
		func(c *model.ChatConversation) {
			c.Messages = append(c.Messages, msg)
			c.Unread++
		},
	)
	if err != nil {
		return model.ChatMessage{}, false, err
	}
	return msg, found, nil
}

// MarkChatRead は会話の未読数を0にする。
func (s *Service) MarkChatRead(ctx context.Context, chatID string) error {
	_, err := store.Modify(ctx, s.store, store.Chats,
		func(c model.ChatConversation) bool { return c.ID == chatID && c.Unread > 0 },
		func(c *model.ChatConversation) { c.Unread = 0 },
	)
	return err
}

// TotalUnread は全会話の未読数の合計を返す。
func TotalUnread(chats []model.ChatConversation) int {
	total := 0
	for _, c := range chats {
		total += c.Unread
	}
	return total
}
