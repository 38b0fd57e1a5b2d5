package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/unihub/internal/middleware"
	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetUsers(ctx context.Context) ([]model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	CurrentUser(ctx context.Context) (*model.User, error)
	SetCurrentUser(ctx context.Context, id string) error
	UpdateProfile(ctx context.Context, id string, upd user.ProfileUpdate) error
	Follow(ctx context.Context, followerID, targetID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// setCurrentUserRequest は現在のユーザー切り替えリクエストのボディ。
type setCurrentUserRequest struct {
	UserID string `json:"userId"`
}

// updateProfileRequest はプロフィール更新リクエストのボディ。省略したフィールドは変更しない。
type updateProfileRequest struct {
	Name    *string        `json:"name"`
	Avatar  *string        `json:"avatar"`
	Status  *string        `json:"status"`
	Bio     *string        `json:"bio"`
	College *model.College `json:"college"`
}

// ListUsers はユーザー一覧を返す。
// GET /api/users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.GetUsers(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// GetCurrentUser は端末の現在のユーザーを返す。ユーザーが1人もいない場合は404を返す。
// GET /api/users/current
func (h *UserHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.CurrentUser(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if u == nil {
		middleware.WriteError(w, r, model.NewNotFoundError("ユーザー", "current"))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// SetCurrentUser は端末の現在のユーザーを切り替える。
// PUT /api/users/current
func (h *UserHandler) SetCurrentUser(w http.ResponseWriter, r *http.Request) {
	var req setCurrentUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	if err := h.service.SetCurrentUser(r.Context(), req.UserID); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUser はユーザーを返す。
// GET /api/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	u, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if u == nil {
		middleware.WriteError(w, r, model.NewNotFoundError("ユーザー", id))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// UpdateProfile はプロフィールを更新する。
// PATCH /api/users/{id}
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	err := h.service.UpdateProfile(r.Context(), chi.URLParam(r, "id"), user.ProfileUpdate{
		Name:    req.Name,
		Avatar:  req.Avatar,
		Status:  req.Status,
		Bio:     req.Bio,
		College: req.College,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Follow はリクエストのユーザーが対象のユーザーをフォローする。
// POST /api/users/{id}/follow
func (h *UserHandler) Follow(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Follow(r.Context(), requestUserID(r), chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
