package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/unihub/internal/model"
	"github.com/hitoshi/unihub/internal/user"
)

type mockUserService struct {
	current  *model.User
	updateFn func(ctx context.Context, id string, upd user.ProfileUpdate) error
	followFn func(ctx context.Context, followerID, targetID string) error
}

func (m *mockUserService) GetUsers(ctx context.Context) ([]model.User, error) {
	return []model.User{}, nil
}

func (m *mockUserService) GetUser(ctx context.Context, id string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserService) CurrentUser(ctx context.Context) (*model.User, error) {
	return m.current, nil
}

func (m *mockUserService) SetCurrentUser(ctx context.Context, id string) error { return nil }

func (m *mockUserService) UpdateProfile(ctx context.Context, id string, upd user.ProfileUpdate) error {
	return m.updateFn(ctx, id, upd)
}

func (m *mockUserService) Follow(ctx context.Context, followerID, targetID string) error {
	return m.followFn(ctx, followerID, targetID)
}

func TestGetCurrentUser_NoUsersReturns404(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	w := httptest.NewRecorder()
	h.GetCurrentUser(w, httptest.NewRequest(http.MethodGet, "/api/users/current", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUpdateProfile_OmittedFieldsStayNil(t *testing.T) {
	var gotID string
	var got user.ProfileUpdate
	h := NewUserHandler(&mockUserService{updateFn: func(ctx context.Context, id string, upd user.ProfileUpdate) error {
		gotID, got = id, upd
		return nil
	}})

	req := httptest.NewRequest(http.MethodPatch, "/api/users/u_aoi", bytes.NewBufferString(`{"status":"実験中","college":"Science"}`))
	w := httptest.NewRecorder()
	h.UpdateProfile(w, withChiURLParam(req, "id", "u_aoi"))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if gotID != "u_aoi" {
		t.Errorf("id = %q", gotID)
	}
	if got.Name != nil || got.Avatar != nil || got.Bio != nil {
		t.Errorf("省略したフィールドが設定されています: %+v", got)
	}
	if got.Status == nil || *got.Status != "実験中" || got.College == nil || *got.College != model.CollegeScience {
		t.Errorf("update = %+v", got)
	}
}

func TestFollow_FollowerIsRequestUser(t *testing.T) {
	var follower, target string
	h := NewUserHandler(&mockUserService{followFn: func(ctx context.Context, followerID, targetID string) error {
		follower, target = followerID, targetID
		return nil
	}})

	req := withUserID(withChiURLParam(httptest.NewRequest(http.MethodPost, "/api/users/u_ren/follow", nil), "id", "u_ren"), "u_aoi")
	w := httptest.NewRecorder()
	h.Follow(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if follower != "u_aoi" || target != "u_ren" {
		t.Errorf("follower = %q target = %q", follower, target)
	}
}

func TestFollow_StoreErrorReturns500(t *testing.T) {
	h := NewUserHandler(&mockUserService{followFn: func(ctx context.Context, followerID, targetID string) error {
		return errors.New("disk full")
	}})

	req := withUserID(withChiURLParam(httptest.NewRequest(http.MethodPost, "/api/users/u_ren/follow", nil), "id", "u_ren"), "u_aoi")
	w := httptest.NewRecorder()
	h.Follow(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if strings.Contains(w.Body.String(), "disk full") {
		t.Error("内部エラーの詳細がレスポンスに含まれています")
	}
}

func TestDecodeJSON_RejectsOversizedBody(t *testing.T) {
	body := `{"text":"` + strings.Repeat("a", maxRequestBodySize) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var v messageRequest
	err := decodeJSON(httptest.NewRecorder(), req, &v)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidInput {
		t.Fatalf("err = %v, want INVALID_INPUT", err)
	}
}
