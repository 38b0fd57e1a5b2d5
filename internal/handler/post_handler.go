package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/unihub/internal/middleware"
	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/moderation"
	"github.com/hitoshi/unihub/internal/ranking"
)

// PostServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	GetPosts(ctx context.Context) ([]model.Post, error)
	ListByCollege(ctx context.Context, college model.College) ([]model.Post, error)
	LikePost(ctx context.Context, id string) error
	CommentPost(ctx context.Context, id string) error
	ViewPost(ctx context.Context, id string) error
	DeletePost(ctx context.Context, actor model.User, id string) error
}

// PostSubmitter は審査を経て投稿を登録する。moderation.Gateが実装する。
type PostSubmitter interface {
	Submit(ctx context.Context, composerID string, d moderation.Draft) (model.Post, error)
	ShareEvent(ctx context.Context, composerID, authorID string, e model.CalendarEvent, comment string) (model.Post, error)
}

// UserFinder はIDからユーザーを引く。見つからない場合はnilを返す。
type UserFinder interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// PostHandler は投稿関連のHTTPハンドラー。
type PostHandler struct {
	service   PostServiceInterface
	submitter PostSubmitter
	users     UserFinder
	loc       *time.Location
	now       func() time.Time
}

// NewPostHandler はPostHandlerを生成する。locはイベント共有投稿の日時の解釈に使う。
func NewPostHandler(service PostServiceInterface, submitter PostSubmitter, users UserFinder, loc *time.Location) *PostHandler {
	return &PostHandler{
		service:   service,
		submitter: submitter,
		users:     users,
		loc:       loc,
		now:       time.Now,
	}
}

// submitPostRequest は投稿リクエストのボディ。
type submitPostRequest struct {
	ComposerID  string             `json:"composerId"`
	Content     string             `json:"content"`
	College     model.College      `json:"college"`
	Attachments []model.Attachment `json:"attachments"`
	Image       *inlineImage       `json:"image"`
}

// inlineImage は投稿に直接添付する画像。dataはbase64で送る。
type inlineImage struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mimeType"`
}

// ListPosts は投稿一覧を保存順で返す。collegeを指定した場合はそのカレッジとGlobalに絞り込む。
// GET /api/posts
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	college, filtered, err := parseCollege(r)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	var posts []model.Post
	if filtered {
		posts, err = h.service.ListByCollege(r.Context(), college)
	} else {
		posts, err = h.service.GetPosts(r.Context())
	}
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ranking.Chronological(posts))
}

// ListBroadcasts はイベント共有投稿を開催日時の順で返す。
// GET /api/posts/broadcasts
func (h *PostHandler) ListBroadcasts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.service.GetPosts(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ranking.Broadcasts(posts, h.now(), h.loc))
}

// SubmitPost は投稿を審査し、安全と判定された場合に登録する。
// POST /api/posts
func (h *PostHandler) SubmitPost(w http.ResponseWriter, r *http.Request) {
	var req submitPostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	userID := requestUserID(r)
	draft := moderation.Draft{
		AuthorID:    userID,
		Content:     req.Content,
		College:     req.College,
		Attachments: req.Attachments,
	}
	if req.Image != nil {
		draft.Image = &moderation.Image{Data: req.Image.Data, MimeType: req.Image.MimeType}
	}

	post, err := h.submitter.Submit(r.Context(), composerID(r, req.ComposerID, userID), draft)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// LikePost はいいね数を増やす。
// POST /api/posts/{id}/like
func (h *PostHandler) LikePost(w http.ResponseWriter, r *http.Request) {
	h.counter(w, r, h.service.LikePost)
}

// CommentPost はコメント数を増やす。
// POST /api/posts/{id}/comment
func (h *PostHandler) CommentPost(w http.ResponseWriter, r *http.Request) {
	h.counter(w, r, h.service.CommentPost)
}

// ViewPost は閲覧数を増やす。
// POST /api/posts/{id}/view
func (h *PostHandler) ViewPost(w http.ResponseWriter, r *http.Request) {
	h.counter(w, r, h.service.ViewPost)
}

func (h *PostHandler) counter(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	if err := fn(r.Context(), chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeletePost は投稿を削除する。管理者のみ実行できる。
// DELETE /api/posts/{id}
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	actor, err := h.users.GetUser(r.Context(), requestUserID(r))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if actor == nil {
		middleware.WriteError(w, r, model.NewForbiddenError())
		return
	}

	if err := h.service.DeletePost(r.Context(), *actor, chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// composerID は作成画面のIDを返す。ヘッダー、ボディの順に探し、どちらもなければユーザーIDを使う。
func composerID(r *http.Request, fromBody, userID string) string {
	if id := strings.TrimSpace(r.Header.Get(middleware.ComposerHeader)); id != "" {
		return id
	}
	if id := strings.TrimSpace(fromBody); id != "" {
		return id
	}
	return userID
}
