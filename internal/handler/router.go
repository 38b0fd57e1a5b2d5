package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/unihub/internal/metrics"
	"github.com/hitoshi/unihub/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	RequestRecorder   middleware.RequestRecorder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ヘルスチェックとメトリクス
	Pinger   Pinger
	Gatherer prometheus.Gatherer

	// 投稿と審査
	PostService PostServiceInterface
	Submitter   PostSubmitter

	// イベントとチケット
	EventService EventServiceInterface

	// 通知
	NotificationService NotificationServiceInterface

	// グループとチャット
	GroupService GroupServiceInterface
	ChatService  ChatServiceInterface

	// 学習リソース・落とし物・音声レッスン
	ResourceService ResourceServiceInterface

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Identity → RateLimit(General)
//
// /health と /metrics はIDとレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.RequestRecorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	postHandler := NewPostHandler(deps.PostService, deps.Submitter, deps.UserService, deps.EventService.Location())
	eventHandler := NewEventHandler(deps.EventService, deps.Submitter, deps.UserService)
	notificationHandler := NewNotificationHandler(deps.NotificationService)
	communityHandler := NewCommunityHandler(deps.GroupService, deps.ChatService)
	resourceHandler := NewResourceHandler(deps.ResourceService)
	userHandler := NewUserHandler(deps.UserService)

	// --- 運用向けのルート ---
	r.Get("/health", NewHealthHandler(deps.Pinger))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- API ---
	// ミドルウェアスタック: Identity → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.UserService))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 投稿
		r.Route("/api/posts", func(r chi.Router) {
			r.Get("/", postHandler.ListPosts)
			r.Get("/broadcasts", postHandler.ListBroadcasts)
			// POST /api/posts - 投稿（審査を伴うため投稿専用レート制限を追加）
			r.With(deps.RateLimiter.PublishMiddleware()).Post("/", postHandler.SubmitPost)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", postHandler.DeletePost)
				r.Post("/like", postHandler.LikePost)
				r.Post("/comment", postHandler.CommentPost)
				r.Post("/view", postHandler.ViewPost)
			})
		})

		// イベント
		r.Route("/api/events", func(r chi.Router) {
			r.Get("/", eventHandler.ListEvents)
			r.Post("/", eventHandler.AddEvent)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/register", eventHandler.RegisterForEvent)
				r.Post("/tickets", eventHandler.PurchaseTicket)
				// POST /api/events/{id}/share - イベント共有（投稿と同じ制限）
				r.With(deps.RateLimiter.PublishMiddleware()).Post("/share", eventHandler.ShareEvent)
			})
		})
		r.Get("/api/tickets", eventHandler.ListTickets)

		// 通知
		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", notificationHandler.ListNotifications)
			r.Get("/unread-count", notificationHandler.UnreadCount)
			r.Post("/read-all", notificationHandler.MarkAllRead)
			r.Post("/{id}/read", notificationHandler.MarkRead)
		})

		// グループ
		r.Route("/api/groups", func(r chi.Router) {
			r.Get("/", communityHandler.ListGroups)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/join", communityHandler.JoinGroup)
				r.Get("/messages", communityHandler.ListGroupMessages)
				r.Post("/messages", communityHandler.PostGroupMessage)
			})
		})

		// チャット
		r.Route("/api/chats", func(r chi.Router) {
			r.Get("/", communityHandler.ListChats)
			r.Post("/", communityHandler.OpenChat)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/messages", communityHandler.SendChatMessage)
				r.Post("/read", communityHandler.MarkChatRead)
			})
		})

		// 学習リソース
		r.Get("/api/resources", resourceHandler.ListResources)

		r.Route("/api/lost-found", func(r chi.Router) {
			r.Get("/", resourceHandler.ListLostFound)
			r.Post("/", resourceHandler.ReportLostFound)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", resourceHandler.DeleteLostFound)
				r.Post("/resolve", resourceHandler.ResolveLostFound)
			})
		})

		r.Route("/api/lessons", func(r chi.Router) {
			r.Get("/", resourceHandler.ListLessons)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/progress", resourceHandler.RecordProgress)
				r.Post("/complete", resourceHandler.CompleteLesson)
			})
		})

		// ユーザー
		r.Route("/api/users", func(r chi.Router) {
			r.Get("/", userHandler.ListUsers)
			r.Get("/current", userHandler.GetCurrentUser)
			r.Put("/current", userHandler.SetCurrentUser)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", userHandler.GetUser)
				r.Patch("/", userHandler.UpdateProfile)
				r.Post("/follow", userHandler.Follow)
			})
		})
	})

	return r
}
