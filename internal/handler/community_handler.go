package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/unihub/internal/middleware"
	"github.com/hitoshi/unihub/internal/model"
)

// GroupServiceInterface はグループハンドラーが必要とするサービスインターフェース。
type GroupServiceInterface interface {
	GetGroups(ctx context.Context) ([]model.Group, error)
	JoinGroup(ctx context.Context, groupID, userID string) error
	GetMessages(ctx context.Context, groupID string) ([]model.GroupMessage, error)
	PostMessage(ctx context.Context, groupID, authorID, text string) (model.GroupMessage, error)
}

// ChatServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	GetChats(ctx context.Context) ([]model.ChatConversation, error)
	OpenConversation(ctx context.Context, userA, userB string) (model.ChatConversation, error)
	SendMessage(ctx context.Context, chatID, senderID, text string) (model.ChatMessage, bool, error)
	MarkChatRead(ctx context.Context, chatID string) error
}

// CommunityHandler はグループとチャットのHTTPハンドラー。
type CommunityHandler struct {
	groups GroupServiceInterface
	chats  ChatServiceInterface
}

// NewCommunityHandler はCommunityHandlerを生成する。
func NewCommunityHandler(groups GroupServiceInterface, chats ChatServiceInterface) *CommunityHandler {
	return &CommunityHandler{groups: groups, chats: chats}
}

// messageRequest はメッセージ送信リクエストのボディ。
type messageRequest struct {
	Text string `json:"text"`
}

// openChatRequest は会話開始リクエストのボディ。
type openChatRequest struct {
	ParticipantID string `json:"participantId"`
}

// ListGroups はグループ一覧を返す。
// GET /api/groups
func (h *CommunityHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.GetGroups(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// JoinGroup はリクエストのユーザーをグループに参加させる。
// POST /api/groups/{id}/join
func (h *CommunityHandler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.groups.JoinGroup(r.Context(), chi.URLParam(r, "id"), requestUserID(r)); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListGroupMessages はグループのメッセージを投稿順で返す。
// GET /api/groups/{id}/messages
func (h *CommunityHandler) ListGroupMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.groups.GetMessages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// PostGroupMessage はグループにメッセージを投稿する。
// POST /api/groups/{id}/messages
func (h *CommunityHandler) PostGroupMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	m, err := h.groups.PostMessage(r.Context(), chi.URLParam(r, "id"), requestUserID(r), req.Text)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// ListChats は会話一覧を返す。
// GET /api/chats
func (h *CommunityHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.chats.GetChats(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

// OpenChat はリクエストのユーザーと相手の会話を返す。存在しない場合は作成する。
// POST /api/chats
func (h *CommunityHandler) OpenChat(w http.ResponseWriter, r *http.Request) {
	var req openChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	conv, err := h.chats.OpenConversation(r.Context(), requestUserID(r), req.ParticipantID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// SendChatMessage は会話にメッセージを送る。会話が存在しない場合は404を返す。
// POST /api/chats/{id}/messages
func (h *CommunityHandler) SendChatMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	chatID := chi.URLParam(r, "id")
	msg, found, err := h.chats.SendMessage(r.Context(), chatID, requestUserID(r), req.Text)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if !found {
		middleware.WriteError(w, r, model.NewNotFoundError("会話", chatID))
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// MarkChatRead は会話の未読数を0にする。
// POST /api/chats/{id}/read
func (h *CommunityHandler) MarkChatRead(w http.ResponseWriter, r *http.Request) {
	if err := h.chats.MarkChatRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
