package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vishanth10/supabase-traversaal/internal/action"
	"github.com/vishanth10/supabase-traversaal/internal/auth"
	"github.com/vishanth10/supabase-traversaal/internal/model"
)

// --- モック定義 ---

type mockBackend struct {
	getOAuthURLFn       func(ctx context.Context, service model.Service, customerID string) (string, error)
	listDataSourcesFn   func(ctx context.Context, customerID string) ([]model.DataSource, error)
	listFilesFn         func(ctx context.Context, service model.Service, customerID string) ([]model.RemoteFile, error)
	listUploadedFilesFn func(ctx context.Context, service model.Service, customerID string) ([]model.UploadedFile, error)
	searchDocumentsFn   func(ctx context.Context, query string, fileIDs []model.ID, customerID string) ([]model.SearchResult, error)
	uploadFileFn        func(ctx context.Context, customerID, filename string, content io.Reader) (string, error)
}

func (m *mockBackend) GetOAuthURL(ctx context.Context, service model.Service, customerID string) (string, error) {
	if m.getOAuthURLFn != nil {
		return m.getOAuthURLFn(ctx, service, customerID)
	}
	return "", nil
}

func (m *mockBackend) ListDataSources(ctx context.Context, customerID string) ([]model.DataSource, error) {
	if m.listDataSourcesFn != nil {
		return m.listDataSourcesFn(ctx, customerID)
	}
	return []model.DataSource{}, nil
}

func (m *mockBackend) ListFiles(ctx context.Context, service model.Service, customerID string) ([]model.RemoteFile, error) {
	if m.listFilesFn != nil {
		return m.listFilesFn(ctx, service, customerID)
	}
	return []model.RemoteFile{}, nil
}

func (m *mockBackend) ListUploadedFiles(ctx context.Context, service model.Service, customerID string) ([]model.UploadedFile, error) {
	if m.listUploadedFilesFn != nil {
		return m.listUploadedFilesFn(ctx, service, customerID)
	}
	return []model.UploadedFile{}, nil
}

func (m *mockBackend) SearchDocuments(ctx context.Context, query string, fileIDs []model.ID, customerID string) ([]model.SearchResult, error) {
	if m.searchDocumentsFn != nil {
		return m.searchDocumentsFn(ctx, query, fileIDs, customerID)
	}
	return []model.SearchResult{}, nil
}

func (m *mockBackend) UploadFile(ctx context.Context, customerID, filename string, content io.Reader) (string, error) {
	if m.uploadFileFn != nil {
		return m.uploadFileFn(ctx, customerID, filename, content)
	}
	return "", nil
}

type mockValidator struct {
	validateFn func(rawURL string) error
}

func (m *mockValidator) ValidateURL(rawURL string) error {
	if m.validateFn != nil {
		return m.validateFn(rawURL)
	}
	return nil
}

var _ Backend = (*mockBackend)(nil)
var _ URLValidator = (*mockValidator)(nil)

// captureLog はテスト中のslog出力をバッファに差し替える。
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

// --- テスト ---

func TestNewBoard_Defaults(t *testing.T) {
	b := NewBoard()
	v := b.Render()

	if v.Service != model.ServiceGoogleDrive {
		t.Errorf("Service = %q, want GOOGLE_DRIVE", v.Service)
	}
	if v.DataSources.Status != action.StatusIdle {
		t.Errorf("DataSources status = %q, want idle", v.DataSources.Status)
	}
	if v.Alert != "" || v.OpenURL != "" || v.Loading() {
		t.Errorf("unexpected initial view: %+v", v)
	}
}

func TestListDataSources_SingleItem(t *testing.T) {
	backend := &mockBackend{
		listDataSourcesFn: func(_ context.Context, customerID string) ([]model.DataSource, error) {
			if customerID != "user-1" {
				t.Errorf("customerID = %q, want user-1", customerID)
			}
			return []model.DataSource{{ID: model.NewNumericID(1), Type: "GOOGLE_DRIVE"}}, nil
		},
	}
	svc := NewService(backend, nil)
	b := NewBoard()

	if err := svc.ListDataSources(context.Background(), b, "user-1"); err != nil {
		t.Fatalf("ListDataSources returned error: %v", err)
	}

	v := b.Render()
	if v.DataSources.Status != action.StatusSuccess {
		t.Errorf("status = %q, want success", v.DataSources.Status)
	}
	if len(v.DataSources.Value) != 1 || v.DataSources.Value[0].ID.String() != "1" {
		t.Errorf("data sources = %+v", v.DataSources.Value)
	}
}

func TestFailure_LogsAlertsAndKeepsPriorData(t *testing.T) {
	logs := captureLog(t)

	fail := false
	backend := &mockBackend{
		listFilesFn: func(context.Context, model.Service, string) ([]model.RemoteFile, error) {
			if fail {
				return nil, errors.New("connection refused")
			}
			return []model.RemoteFile{{Name: "a.txt"}}, nil
		},
	}
	svc := NewService(backend, nil)
	b := NewBoard()

	if err := svc.ListFiles(context.Background(), b, "user-1", model.ServiceDropbox); err != nil {
		t.Fatalf("first ListFiles returned error: %v", err)
	}

	fail = true
	if err := svc.ListFiles(context.Background(), b, "user-1", model.ServiceDropbox); err == nil {
		t.Fatal("expected error")
	}

	v := b.Render()
	if v.Alert != FailureAlert {
		t.Errorf("Alert = %q, want %q", v.Alert, FailureAlert)
	}
	if v.Files.Status != action.StatusError {
		t.Errorf("status = %q, want error", v.Files.Status)
	}
	if len(v.Files.Value) != 1 || v.Files.Value[0].Name != "a.txt" {
		t.Errorf("prior data should be untouched, got %+v", v.Files.Value)
	}
	if !strings.Contains(logs.String(), "dashboard action failed") || !strings.Contains(logs.String(), "list_files") {
		t.Errorf("error should be logged, got %s", logs.String())
	}

	if again := b.Render(); again.Alert != "" {
		t.Errorf("alert should be shown once, got %q", again.Alert)
	}
}

func TestFailure_OtherActionsUnaffected(t *testing.T) {
	captureLog(t)

	backend := &mockBackend{
		listDataSourcesFn: func(context.Context, string) ([]model.DataSource, error) {
			return []model.DataSource{{ID: model.NewID("ds-1")}}, nil
		},
		listUploadedFilesFn: func(context.Context, model.Service, string) ([]model.UploadedFile, error) {
			return nil, errors.New("boom")
		},
	}
	svc := NewService(backend, nil)
	b := NewBoard()

	svc.ListDataSources(context.Background(), b, "user-1")
	svc.ListUploadedFiles(context.Background(), b, "user-1", model.ServiceGoogleDrive)

	v := b.Render()
	if v.DataSources.Status != action.StatusSuccess {
		t.Errorf("data sources status = %q, want success", v.DataSources.Status)
	}
	if v.UploadedFiles.Status != action.StatusError {
		t.Errorf("uploaded files status = %q, want error", v.UploadedFiles.Status)
	}
}

func TestConnect_OpensChangedValidURLOnce(t *testing.T) {
	urls := []string{"https://accounts.google.com/o/oauth2/auth?a=1", "https://accounts.google.com/o/oauth2/auth?a=1", "https://accounts.google.com/o/oauth2/auth?a=2"}
	call := 0
	var gotService model.Service
	backend := &mockBackend{
		getOAuthURLFn: func(_ context.Context, service model.Service, _ string) (string, error) {
			gotService = service
			u := urls[call]
			call++
			return u, nil
		},
	}
	svc := NewService(backend, &mockValidator{})
	b := NewBoard()

	svc.Connect(context.Background(), b, "user-1", model.ServiceNotion)
	if gotService != model.ServiceNotion || b.Service() != model.ServiceNotion {
		t.Errorf("service = %q / board %q, want NOTION", gotService, b.Service())
	}
	if v := b.Render(); v.OpenURL != urls[0] {
		t.Errorf("OpenURL = %q, want %q", v.OpenURL, urls[0])
	}
	if v := b.Render(); v.OpenURL != "" {
		t.Errorf("OpenURL should be consumed, got %q", v.OpenURL)
	}

	svc.Connect(context.Background(), b, "user-1", model.ServiceNotion)
	if v := b.Render(); v.OpenURL != "" {
		t.Errorf("unchanged URL should not reopen, got %q", v.OpenURL)
	}

	svc.Connect(context.Background(), b, "user-1", model.ServiceNotion)
	v := b.Render()
	if v.OpenURL != urls[2] {
		t.Errorf("OpenURL = %q, want %q", v.OpenURL, urls[2])
	}
	if v.OAuthURL.Value != urls[2] {
		t.Errorf("OAuthURL value = %q", v.OAuthURL.Value)
	}
}

func TestConnect_UnsafeURLNotOpened(t *testing.T) {
	captureLog(t)

	backend := &mockBackend{
		getOAuthURLFn: func(context.Context, model.Service, string) (string, error) {
			return "javascript:alert(1)", nil
		},
	}
	validator := &mockValidator{
		validateFn: func(string) error { return errors.New("scheme not allowed") },
	}
	svc := NewService(backend, validator)
	b := NewBoard()

	err := svc.Connect(context.Background(), b, "user-1", model.ServiceGoogleDrive)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnsafeURL {
		t.Fatalf("err = %v, want UNSAFE_URL", err)
	}

	v := b.Render()
	if v.OpenURL != "" {
		t.Errorf("unsafe URL should not be opened, got %q", v.OpenURL)
	}
	if v.Alert != FailureAlert {
		t.Errorf("Alert = %q", v.Alert)
	}
}

func TestConnect_BackendError_Alerts(t *testing.T) {
	captureLog(t)

	backend := &mockBackend{
		getOAuthURLFn: func(context.Context, model.Service, string) (string, error) {
			return "", errors.New("Invalid service")
		},
	}
	svc := NewService(backend, &mockValidator{})
	b := NewBoard()

	if err := svc.Connect(context.Background(), b, "user-1", model.ServiceOneDrive); err == nil {
		t.Fatal("expected error")
	}
	v := b.Render()
	if v.Alert != FailureAlert || v.OpenURL != "" {
		t.Errorf("unexpected view: alert=%q open=%q", v.Alert, v.OpenURL)
	}
}

func TestSearch_UsesListedUploadedFileIDs(t *testing.T) {
	var gotIDs []model.ID
	var gotQuery string
	backend := &mockBackend{
		listUploadedFilesFn: func(context.Context, model.Service, string) ([]model.UploadedFile, error) {
			return []model.UploadedFile{{ID: model.NewNumericID(7)}, {ID: model.NewID("x9")}}, nil
		},
		searchDocumentsFn: func(_ context.Context, query string, fileIDs []model.ID, _ string) ([]model.SearchResult, error) {
			gotQuery, gotIDs = query, fileIDs
			return []model.SearchResult{{Source: "doc"}}, nil
		},
	}
	svc := NewService(backend, nil)
	b := NewBoard()

	svc.ListUploadedFiles(context.Background(), b, "user-1", model.ServiceGoogleDrive)
	if err := svc.Search(context.Background(), b, "user-1", "revenue"); err != nil {
		t.Fatalf("Search returned error: %v", err)
	}

	if gotQuery != "revenue" || b.Query() != "revenue" {
		t.Errorf("query = %q / board %q", gotQuery, b.Query())
	}
	if len(gotIDs) != 2 || gotIDs[0].String() != "7" || gotIDs[1].String() != "x9" {
		t.Errorf("file IDs = %v", gotIDs)
	}
}

func TestSearch_NoUploadedFiles_SendsEmptyIDs(t *testing.T) {
	var gotIDs []model.ID
	backend := &mockBackend{
		searchDocumentsFn: func(_ context.Context, _ string, fileIDs []model.ID, _ string) ([]model.SearchResult, error) {
			gotIDs = fileIDs
			return nil, nil
		},
	}
	svc := NewService(backend, nil)

	if err := svc.Search(context.Background(), NewBoard(), "user-1", "q"); err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if gotIDs == nil || len(gotIDs) != 0 {
		t.Errorf("file IDs = %#v, want empty slice", gotIDs)
	}
}

func TestUpload_StoresMessage(t *testing.T) {
	backend := &mockBackend{
		uploadFileFn: func(_ context.Context, customerID, filename string, content io.Reader) (string, error) {
			b, _ := io.ReadAll(content)
			if customerID != "user-1" || filename != "a.txt" || string(b) != "hi" {
				t.Errorf("unexpected upload: %s %s %q", customerID, filename, b)
			}
			return "File uploaded successfully", nil
		},
	}
	svc := NewService(backend, nil)
	b := NewBoard()

	if err := svc.Upload(context.Background(), b, "user-1", "a.txt", strings.NewReader("hi")); err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if v := b.Render(); v.Upload.Value != "File uploaded successfully" {
		t.Errorf("upload message = %q", v.Upload.Value)
	}
}

func TestStore_GetCreatesAndReuses(t *testing.T) {
	s := NewStore()

	b1 := s.Get("s1")
	b2 := s.Get("s1")
	if b1 != b2 {
		t.Error("same session should reuse the board")
	}
	if s.Get("s2") == b1 {
		t.Error("different sessions should have different boards")
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
}

func TestStore_HandleEvent_DropsOnSignedOut(t *testing.T) {
	s := NewStore()
	s.Get("s1")
	s.Get("s2")

	s.HandleEvent(auth.Event{Type: auth.EventTokenRefreshed, SessionID: "s1"})
	if s.Len() != 2 {
		t.Errorf("TOKEN_REFRESHED should keep boards, Len = %d", s.Len())
	}

	s.HandleEvent(auth.Event{Type: auth.EventSignedOut, SessionID: "s1"})
	if s.Len() != 1 {
		t.Errorf("SIGNED_OUT should drop the board, Len = %d", s.Len())
	}
}

func TestStore_WiredToEvents(t *testing.T) {
	s := NewStore()
	events := auth.NewEvents(nil)
	events.AddListener(s.HandleEvent)

	s.Get("s1")
	events.Publish(auth.Event{Type: auth.EventSignedOut, SessionID: "s1"})

	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestStore_Evict_ReleasesBoardsOfExpiredSessions(t *testing.T) {
	const maxAge = 7 * 24 * time.Hour
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore()
	s.now = func() time.Time { return now }

	for i := 0; i < 1000; i++ {
		s.Get(fmt.Sprintf("expired-%d", i))
	}

	now = now.Add(maxAge - time.Hour)
	s.Get("active")

	now = now.Add(2 * time.Hour)
	if got := s.Evict(maxAge); got != 1000 {
		t.Errorf("Evict = %d, want 1000", got)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}

	// アクセスのあったBoardはそのまま使われる
	b := s.Get("active")
	if s.Len() != 1 || b == nil {
		t.Error("active board should be kept")
	}
}

func TestStore_RunEviction_StopsOnContextCancel(t *testing.T) {
	s := NewStore()
	base := time.Now()
	var mu sync.Mutex
	now := base
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	s.Get("s1")

	mu.Lock()
	now = base.Add(time.Hour)
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunEviction(ctx, 5*time.Millisecond, time.Minute)
		close(done)
	}()

	deadline := time.After(time.Second)
	for s.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("board was not evicted")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunEviction did not return after cancel")
	}
}
