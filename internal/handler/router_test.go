package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/unihub/internal/chat"
	"github.com/hitoshi/unihub/internal/event"
	"github.com/hitoshi/unihub/internal/group"
	"github.com/hitoshi/unihub/internal/metrics"
	"github.com/hitoshi/unihub/internal/middleware"
	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/moderation"
	"github.com/hitoshi/unihub/internal/notification"
	"github.com/hitoshi/unihub/internal/post"
	"github.com/hitoshi/unihub/internal/repository"
	"github.com/hitoshi/unihub/internal/resource"
	"github.com/hitoshi/unihub/internal/security"
	"github.com/hitoshi/unihub/internal/store"
	"github.com/hitoshi/unihub/internal/user"
)

// stubClassifier は本文に "NG" を含む投稿だけを拒否する分類サービス。
type stubClassifier struct{}

func (stubClassifier) Classify(ctx context.Context, req moderation.Request) (moderation.Verdict, error) {
	if strings.Contains(req.Text, "NG") {
		return moderation.Verdict{Category: model.CategorySocial, IsSafe: false, SafetyReason: "不適切な表現"}, nil
	}
	return moderation.Verdict{Category: model.CategoryAcademic, IsSafe: true}, nil
}

type routerFixture struct {
	handler http.Handler
	store   *store.Store
	users   *user.Service
	posts   *post.Service
}

// newRouterFixture はメモリストア上の実サービスでルーターを構築する。
func newRouterFixture(t *testing.T, rlConfig middleware.RateLimiterConfig) *routerFixture {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	st := store.New(repository.NewMemoryKVStore(), logger, collector)
	sanitizer := security.NewSanitizer()
	postSvc := post.NewService(st)
	userSvc := user.NewService(st)
	gate := moderation.NewGate(stubClassifier{}, postSvc, sanitizer, logger, 5*time.Second,
		moderation.WithAuthorRecorder(userSvc),
		moderation.WithMetrics(collector),
	)
	rl := middleware.NewRateLimiter(rlConfig)
	t.Cleanup(rl.Stop)

	h := NewRouter(&RouterDeps{
		Logger:              logger,
		RequestRecorder:     collector,
		CORSAllowedOrigin:   "http://localhost:3000",
		RateLimiter:         rl,
		Pinger:              st,
		Gatherer:            reg,
		PostService:         postSvc,
		Submitter:           gate,
		EventService:        event.NewService(st, time.UTC),
		NotificationService: notification.NewService(st),
		GroupService:        group.NewService(st),
		ChatService:         chat.NewService(st),
		ResourceService:     resource.NewService(st, sanitizer),
		UserService:         userSvc,
	})
	return &routerFixture{handler: h, store: st, users: userSvc, posts: postSvc}
}

func (f *routerFixture) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if userID != "" {
		req.Header.Set(middleware.UserHeader, userID)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decodeInto[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v (%s)", err, w.Body.String())
	}
	return v
}

func TestNewRouter_HealthAndMetrics(t *testing.T) {
	f := newRouterFixture(t, middleware.DefaultRateLimiterConfig())

	w := f.do(t, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want %d", w.Code, http.StatusOK)
	}

	f.do(t, http.MethodGet, "/api/posts", "u_aoi", "")
	w = f.do(t, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "unihub_http_requests_total") {
		t.Errorf("リクエストのメトリクスが記録されていません:\n%s", w.Body.String())
	}
}

func TestNewRouter_SecurityAndCORSHeaders(t *testing.T) {
	f := newRouterFixture(t, middleware.DefaultRateLimiterConfig())

	req := httptest.NewRequest(http.MethodOptions, "/api/posts", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("OPTIONS status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func TestNewRouter_SubmitPostFlow(t *testing.T) {
	f := newRouterFixture(t, middleware.DefaultRateLimiterConfig())
	before, _ := f.users.GetUser(context.Background(), "u_aoi")

	w := f.do(t, http.MethodPost, "/api/posts", "u_aoi", `{"content":"<p>明日の実験<script>x()</script></p>","college":"Science"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /api/posts status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	created := decodeInto[model.Post](t, w)
	if strings.Contains(created.Content, "script") {
		t.Errorf("content = %q, want sanitized", created.Content)
	}
	if created.Moderation.Category != model.CategoryAcademic || !created.Moderation.IsSafe {
		t.Errorf("moderation = %+v", created.Moderation)
	}

	posts := decodeInto[[]model.Post](t, f.do(t, http.MethodGet, "/api/posts?college=Science", "u_aoi", ""))
	if len(posts) == 0 || posts[0].ID != created.ID {
		t.Fatalf("新しい投稿がフィードの先頭にありません: %+v", posts)
	}

	after, _ := f.users.GetUser(context.Background(), "u_aoi")
	if after.Posts != before.Posts+1 {
		t.Errorf("posts counter = %d, want %d", after.Posts, before.Posts+1)
	}
}

func TestNewRouter_RejectedPostIsNotStored(t *testing.T) {
	f := newRouterFixture(t, middleware.DefaultRateLimiterConfig())
	before, _ := f.posts.GetPosts(context.Background())

	w := f.do(t, http.MethodPost, "/api/posts", "u_aoi", `{"content":"これはNGな投稿"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	if body := parseAPIErrorResponse(t, w); body.Message != "不適切な表現" {
		t.Errorf("message = %q, want classifier reason", body.Message)
	}

	after, _ := f.posts.GetPosts(context.Background())
	if len(after) != len(before) {
		t.Errorf("拒否された投稿が保存されました: %d -> %d", len(before), len(after))
	}
}

func TestNewRouter_PublishRateLimit(t *testing.T) {
	cfg := middleware.DefaultRateLimiterConfig()
	cfg.PublishRate = 0.01
	cfg.PublishBurst = 1
	f := newRouterFixture(t, cfg)

	if w := f.do(t, http.MethodPost, "/api/posts", "u_ren", `{"content":"1件目"}`); w.Code != http.StatusCreated {
		t.Fatalf("1件目 status = %d, want %d", w.Code, http.StatusCreated)
	}
	w := f.do(t, http.MethodPost, "/api/posts", "u_ren", `{"content":"2件目"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("2件目 status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-Afterヘッダーがありません")
	}

	// 投稿以外のAPIは影響を受けない
	if w := f.do(t, http.MethodGet, "/api/posts", "u_ren", ""); w.Code != http.StatusOK {
		t.Errorf("GET status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestNewRouter_DeletePostRequiresAdmin(t *testing.T) {
	f := newRouterFixture(t, middleware.DefaultRateLimiterConfig())
	p, err := f.posts.AddPost(context.Background(), model.Post{AuthorID: "u_aoi", Content: "x"})
	if err != nil {
		t.Fatalf("AddPost failed: %v", err)
	}

	if w := f.do(t, http.MethodDelete, "/api/posts/"+p.ID, "u_aoi", ""); w.Code != http.StatusForbidden {
		t.Fatalf("一般ユーザーの削除 status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if w := f.do(t, http.MethodDelete, "/api/posts/"+p.ID, "u_admin", ""); w.Code != http.StatusNoContent {
		t.Fatalf("管理者の削除 status = %d, want %d", w.Code, http.StatusNoContent)
	}

	posts, _ := f.posts.GetPosts(context.Background())
	for _, existing := range posts {
		if existing.ID == p.ID {
			t.Fatal("投稿が削除されていません")
		}
	}
}

func TestNewRouter_TicketPurchaseAddsNotification(t *testing.T) {
	f := newRouterFixture(t, middleware.DefaultRateLimiterConfig())
	before := decodeInto[unreadCountResponse](t, f.do(t, http.MethodGet, "/api/notifications/unread-count", "u_aoi", ""))

	w := f.do(t, http.MethodPost, "/api/events/evt_seed_orientation/tickets", "u_aoi", `{}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("チケット購入 status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	ticket := decodeInto[model.Ticket](t, w)
	if ticket.OwnerName != "佐藤 葵" || ticket.EventTitle == "" {
		t.Errorf("ticket = %+v", ticket)
	}

	after := decodeInto[unreadCountResponse](t, f.do(t, http.MethodGet, "/api/notifications/unread-count", "u_aoi", ""))
	if after.Count != before.Count+1 {
		t.Errorf("unread = %d, want %d", after.Count, before.Count+1)
	}

	if w := f.do(t, http.MethodPost, "/api/notifications/read-all", "u_aoi", ""); w.Code != http.StatusNoContent {
		t.Fatalf("read-all status = %d", w.Code)
	}
	final := decodeInto[unreadCountResponse](t, f.do(t, http.MethodGet, "/api/notifications/unread-count", "u_aoi", ""))
	if final.Count != 0 {
		t.Errorf("unread = %d, want 0", final.Count)
	}
}

func TestNewRouter_CurrentUserSwitch(t *testing.T) {
	f := newRouterFixture(t, middleware.DefaultRateLimiterConfig())

	if w := f.do(t, http.MethodPut, "/api/users/current", "", `{"userId":"u_ren"}`); w.Code != http.StatusNoContent {
		t.Fatalf("PUT status = %d, want %d", w.Code, http.StatusNoContent)
	}
	current := decodeInto[model.User](t, f.do(t, http.MethodGet, "/api/users/current", "", ""))
	if current.ID != "u_ren" {
		t.Errorf("current = %q, want u_ren", current.ID)
	}

	w := f.do(t, http.MethodPut, "/api/users/current", "", `{"userId":"ghost"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("存在しないユーザー status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestNewRouter_ChatFlow(t *testing.T) {
	f := newRouterFixture(t, middleware.DefaultRateLimiterConfig())

	conv := decodeInto[model.ChatConversation](t, f.do(t, http.MethodPost, "/api/chats", "u_aoi", `{"participantId":"u_ren"}`))
	if conv.ID == "" {
		t.Fatal("会話が作成されていません")
	}

	w := f.do(t, http.MethodPost, "/api/chats/"+conv.ID+"/messages", "u_aoi", `{"text":"レポート終わった？"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("送信 status = %d, want %d", w.Code, http.StatusCreated)
	}
	if w := f.do(t, http.MethodPost, "/api/chats/missing/messages", "u_aoi", `{"text":"x"}`); w.Code != http.StatusNotFound {
		t.Errorf("存在しない会話 status = %d, want %d", w.Code, http.StatusNotFound)
	}

	// 同じ2人で開くと既存の会話が返る
	again := decodeInto[model.ChatConversation](t, f.do(t, http.MethodPost, "/api/chats", "u_ren", `{"participantId":"u_aoi"}`))
	if again.ID != conv.ID || len(again.Messages) != 1 || again.Unread != 1 {
		t.Errorf("conversation = %+v", again)
	}
}

func TestNewRouter_LostFoundLifecycle(t *testing.T) {
	f := newRouterFixture(t, middleware.DefaultRateLimiterConfig())

	w := f.do(t, http.MethodPost, "/api/lost-found", "u_aoi", `{"type":"Lost","title":"学生証","location":"食堂"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("登録 status = %d, want %d", w.Code, http.StatusCreated)
	}
	item := decodeInto[model.LostFoundItem](t, w)
	if item.Status != model.LostFoundOpen || item.AuthorID != "u_aoi" {
		t.Errorf("item = %+v", item)
	}

	if w := f.do(t, http.MethodPost, "/api/lost-found/"+item.ID+"/resolve", "u_aoi", ""); w.Code != http.StatusNoContent {
		t.Fatalf("resolve status = %d", w.Code)
	}
	items := decodeInto[[]model.LostFoundItem](t, f.do(t, http.MethodGet, "/api/lost-found", "u_aoi", ""))
	if items[0].ID != item.ID || items[0].Status != model.LostFoundResolved {
		t.Errorf("items[0] = %+v", items[0])
	}

	if w := f.do(t, http.MethodPost, "/api/lost-found", "u_aoi", `{"type":"Stolen","title":"x"}`); w.Code != http.StatusBadRequest {
		t.Errorf("不正な種別 status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestNewRouter_MissingIDMutationIsNoOp(t *testing.T) {
	f := newRouterFixture(t, middleware.DefaultRateLimiterConfig())

	paths := []string{
		"/api/posts/missing/like",
		"/api/notifications/missing/read",
		"/api/groups/missing/join",
		"/api/lessons/missing/complete",
	}
	for _, p := range paths {
		if w := f.do(t, http.MethodPost, p, "u_aoi", ""); w.Code != http.StatusNoContent {
			t.Errorf("POST %s status = %d, want %d", p, w.Code, http.StatusNoContent)
		}
	}
}
