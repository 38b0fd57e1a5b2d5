package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/unihub/internal/middleware"
	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/ranking"
)

// ResourceServiceInterface はリソースハンドラーが必要とするサービスインターフェース。
// 学習リソース、落とし物掲示板、音声レッスンを扱う。
type ResourceServiceInterface interface {
	GetResources(ctx context.Context) ([]model.Resource, error)
	GetLostFound(ctx context.Context) ([]model.LostFoundItem, error)
	ReportLostFound(ctx context.Context, item model.LostFoundItem) (model.LostFoundItem, error)
	ResolveLostFound(ctx context.Context, id string) error
	DeleteLostFound(ctx context.Context, id string) error
	GetLessons(ctx context.Context) ([]model.AudioLesson, error)
	RecordProgress(ctx context.Context, id string, progress int) error
	CompleteLesson(ctx context.Context, id string) error
}

// ResourceHandler は学習リソース関連のHTTPハンドラー。
type ResourceHandler struct {
	service ResourceServiceInterface
}

// NewResourceHandler はResourceHandlerを生成する。
func NewResourceHandler(service ResourceServiceInterface) *ResourceHandler {
	return &ResourceHandler{service: service}
}

// reportLostFoundRequest は落とし物登録リクエストのボディ。
type reportLostFoundRequest struct {
	Type        model.LostFoundType `json:"type"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Location    string              `json:"location"`
	Contact     string              `json:"contact"`
}

// progressRequest はレッスン進捗更新リクエストのボディ。
type progressRequest struct {
	Progress int `json:"progress"`
}

// ListResources は学習リソースを返す。collegeを指定した場合はそのカレッジとGlobalに絞り込む。
// GET /api/resources
func (h *ResourceHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	college, filtered, err := parseCollege(r)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	resources, err := h.service.GetResources(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if filtered {
		resources = ranking.FilterByCollege(resources, college)
	}
	writeJSON(w, http.StatusOK, resources)
}

// ListLostFound は落とし物掲示板を返す。
// GET /api/lost-found
func (h *ResourceHandler) ListLostFound(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.GetLostFound(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ReportLostFound は落とし物・拾得物を登録する。
// POST /api/lost-found
func (h *ResourceHandler) ReportLostFound(w http.ResponseWriter, r *http.Request) {
	var req reportLostFoundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	item, err := h.service.ReportLostFound(r.Context(), model.LostFoundItem{
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Contact:     req.Contact,
		AuthorID:    requestUserID(r),
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// ResolveLostFound は項目を解決済みにする。
// POST /api/lost-found/{id}/resolve
func (h *ResourceHandler) ResolveLostFound(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ResolveLostFound(r.Context(), chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteLostFound は項目を削除する。
// DELETE /api/lost-found/{id}
func (h *ResourceHandler) DeleteLostFound(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteLostFound(r.Context(), chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListLessons は音声レッスン一覧を返す。
// GET /api/lessons
func (h *ResourceHandler) ListLessons(w http.ResponseWriter, r *http.Request) {
	lessons, err := h.service.GetLessons(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lessons)
}

// RecordProgress はレッスンの再生進捗を記録する。
// PUT /api/lessons/{id}/progress
func (h *ResourceHandler) RecordProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	if err := h.service.RecordProgress(r.Context(), chi.URLParam(r, "id"), req.Progress); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompleteLesson はレッスンを完了にする。
// POST /api/lessons/{id}/complete
func (h *ResourceHandler) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CompleteLesson(r.Context(), chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
