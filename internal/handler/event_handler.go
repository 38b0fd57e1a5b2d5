package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/unihub/internal/middleware"
	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/ranking"
)

// EventServiceInterface はイベントハンドラーが必要とするサービスインターフェース。
type EventServiceInterface interface {
	Location() *time.Location
	GetEvents(ctx context.Context) ([]model.CalendarEvent, error)
	AddEvent(ctx context.Context, e model.CalendarEvent) (model.CalendarEvent, error)
	RegisterForEvent(ctx context.Context, eventID, userID string) error
	GetTickets(ctx context.Context) ([]model.Ticket, error)
	PurchaseTicket(ctx context.Context, t model.Ticket) (model.Ticket, error)
}

// EventHandler はイベントとチケットのHTTPハンドラー。
type EventHandler struct {
	service   EventServiceInterface
	submitter PostSubmitter
	users     UserFinder
	now       func() time.Time
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(service EventServiceInterface, submitter PostSubmitter, users UserFinder) *EventHandler {
	return &EventHandler{
		service:   service,
		submitter: submitter,
		users:     users,
		now:       time.Now,
	}
}

// addEventRequest はイベント追加リクエストのボディ。
type addEventRequest struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Date        string        `json:"date"`
	Time        string        `json:"time"`
	Location    string        `json:"location"`
	College     model.College `json:"college"`
	Price       int           `json:"price"`
}

// purchaseTicketRequest はチケット購入リクエストのボディ。
type purchaseTicketRequest struct {
	OwnerName string `json:"ownerName"`
}

// shareEventRequest はイベント共有リクエストのボディ。
type shareEventRequest struct {
	ComposerID string `json:"composerId"`
	Comment    string `json:"comment"`
}

// ListEvents はイベントを開催日時の順で返す。これからのイベントが先、終わったイベントが後になる。
// GET /api/events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	college, filtered, err := parseCollege(r)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	events, err := h.service.GetEvents(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	now := h.now()
	if filtered {
		writeJSON(w, http.StatusOK, ranking.EventFeed(events, college, now, h.service.Location()))
		return
	}
	writeJSON(w, http.StatusOK, ranking.Upcoming(events, now, h.service.Location()))
}

// AddEvent はイベントを追加する。作成者はリクエストのユーザーになる。
// POST /api/events
func (h *EventHandler) AddEvent(w http.ResponseWriter, r *http.Request) {
	var req addEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	e, err := h.service.AddEvent(r.Context(), model.CalendarEvent{
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		Time:        req.Time,
		Location:    req.Location,
		College:     req.College,
		Price:       req.Price,
		AttendeeIDs: []string{},
		CreatedBy:   requestUserID(r),
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// RegisterForEvent はリクエストのユーザーをイベントの参加者に追加する。
// POST /api/events/{id}/register
func (h *EventHandler) RegisterForEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RegisterForEvent(r.Context(), chi.URLParam(r, "id"), requestUserID(r)); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ShareEvent はイベントを投稿として共有する。投稿と同じ審査を通る。
// POST /api/events/{id}/share
func (h *EventHandler) ShareEvent(w http.ResponseWriter, r *http.Request) {
	var req shareEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	e, err := h.findEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	userID := requestUserID(r)
	post, err := h.submitter.ShareEvent(r.Context(), composerID(r, req.ComposerID, userID), userID, e, req.Comment)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// PurchaseTicket はイベントのチケットを購入する。購入者名を省略した場合はユーザー名を使う。
// POST /api/events/{id}/tickets
func (h *EventHandler) PurchaseTicket(w http.ResponseWriter, r *http.Request) {
	var req purchaseTicketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	if req.OwnerName == "" {
		u, err := h.users.GetUser(r.Context(), requestUserID(r))
		if err != nil {
			middleware.WriteError(w, r, err)
			return
		}
		if u != nil {
			req.OwnerName = u.Name
		}
	}

	t, err := h.service.PurchaseTicket(r.Context(), model.Ticket{
		EventID:   chi.URLParam(r, "id"),
		OwnerName: req.OwnerName,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// ListTickets は購入済みチケットを返す。
// GET /api/tickets
func (h *EventHandler) ListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.service.GetTickets(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *EventHandler) findEvent(ctx context.Context, id string) (model.CalendarEvent, error) {
	events, err := h.service.GetEvents(ctx)
	if err != nil {
		return model.CalendarEvent{}, err
	}
	for _, e := range events {
		if e.ID == id {
			return e, nil
		}
	}
	return model.CalendarEvent{}, model.NewNotFoundError("イベント", id)
}
