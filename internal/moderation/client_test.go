package moderation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/unihub/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newClassifierServer(t *testing.T, handler http.HandlerFunc) (*Client, *bytes.Buffer) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	var buf bytes.Buffer
	return NewClient(server.Client(), newTestLogger(&buf), server.URL, "test-key"), &buf
}

func TestClassify_SendsWireContract(t *testing.T) {
	image := []byte{0x89, 'P', 'N', 'G'}
	c, _ := newClassifierServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("リクエストのデコードに失敗: %v", err)
		}
		if body["text"] != "明日の講義は休講です" {
			t.Errorf("text = %v", body["text"])
		}
		if body["imageBytes"] != base64.StdEncoding.EncodeToString(image) {
			t.Errorf("imageBytes = %v, want base64", body["imageBytes"])
		}
		if body["mimeType"] != "image/png" {
			t.Errorf("mimeType = %v", body["mimeType"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"category":"Academic","isSafe":true}`))
	})

	v, err := c.Classify(context.Background(), Request{Text: "明日の講義は休講です", ImageBytes: image, MimeType: "image/png"})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if v.Category != model.CategoryAcademic || !v.IsSafe {
		t.Errorf("verdict = %+v", v)
	}
}

func TestClassify_TextOnlyOmitsImageFields(t *testing.T) {
	c, _ := newClassifierServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["imageBytes"]; ok {
			t.Error("imageBytes should be omitted")
		}
		if _, ok := body["mimeType"]; ok {
			t.Error("mimeType should be omitted")
		}
		_, _ = w.Write([]byte(`{"category":"Social","isSafe":true}`))
	})

	if _, err := c.Classify(context.Background(), Request{Text: "hi"}); err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
}

func TestClassify_UnsafeKeepsReason(t *testing.T) {
	c, _ := newClassifierServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"category":"Social","isSafe":false,"safetyReason":"個人情報が含まれています"}`))
	})

	v, err := c.Classify(context.Background(), Request{Text: "x"})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if v.IsSafe || v.SafetyReason != "個人情報が含まれています" {
		t.Errorf("verdict = %+v", v)
	}
}

func TestClassify_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"サーバーエラー", http.StatusInternalServerError, `{"category":"Social","isSafe":true}`},
		{"レート制限", http.StatusTooManyRequests, ``},
		{"自由形式テキスト", http.StatusOK, `This post looks fine to me.`},
		{"isSafe欠落", http.StatusOK, `{"category":"Social"}`},
		{"未知のカテゴリで安全", http.StatusOK, `{"category":"Gossip","isSafe":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newClassifierServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			if _, err := c.Classify(context.Background(), Request{Text: "x"}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestClassify_UnknownCategoryOnRejectionIsAccepted(t *testing.T) {
	c, _ := newClassifierServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"isSafe":false,"safetyReason":"暴力的な表現"}`))
	})

	v, err := c.Classify(context.Background(), Request{Text: "x"})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if v.IsSafe || v.SafetyReason != "暴力的な表現" {
		t.Errorf("verdict = %+v", v)
	}
}

func TestClassify_NetworkErrorIsLogged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	var buf bytes.Buffer
	c := NewClient(http.DefaultClient, newTestLogger(&buf), url, "")
	if _, err := c.Classify(context.Background(), Request{Text: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(buf.String(), "分類サービスの呼び出しに失敗しました") {
		t.Errorf("エラーログが出力されていません: %s", buf.String())
	}
}
