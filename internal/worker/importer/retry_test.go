package importer

import (
	"testing"
	"time"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   FetchResult
	}{
		{200, FetchResultOK},
		{304, FetchResultNotModified},
		{401, FetchResultStop},
		{403, FetchResultStop},
		{404, FetchResultStop},
		{410, FetchResultStop},
		{429, FetchResultBackoff},
		{500, FetchResultBackoff},
		{503, FetchResultBackoff},
		{301, FetchResultUnknown},
		{418, FetchResultUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyHTTPStatus(tt.status); got != tt.want {
			t.Errorf("ClassifyHTTPStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		errors int
		want   time.Duration
	}{
		{0, 30 * time.Minute},
		{1, time.Hour},
		{2, 2 * time.Hour},
		{4, 8 * time.Hour},
		{5, 12 * time.Hour},
		{50, 12 * time.Hour},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(tt.errors); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.errors, got, tt.want)
		}
	}
}

func TestSourceState_Due(t *testing.T) {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	if !(SourceState{}).Due(now) {
		t.Error("初期状態は取得対象であるべきです")
	}
	if (SourceState{NextFetchAt: now.Add(time.Minute)}).Due(now) {
		t.Error("予定時刻前は取得対象外であるべきです")
	}
	if (SourceState{Stopped: true}).Due(now) {
		t.Error("停止済みは取得対象外であるべきです")
	}
}

func TestSourceState_BackoffThenSuccessResets(t *testing.T) {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	var s SourceState

	s.backoff(now, "503")
	s.backoff(now, "503")
	if s.ConsecutiveErrors != 2 || !s.NextFetchAt.Equal(now.Add(time.Hour)) {
		t.Errorf("state = %+v", s)
	}

	s.succeed(now, 30*time.Minute)
	if s.ConsecutiveErrors != 0 || s.ErrorMessage != "" || !s.NextFetchAt.Equal(now.Add(30*time.Minute)) {
		t.Errorf("state = %+v", s)
	}
}
