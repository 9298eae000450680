// Package dashboard はセッションごとのダッシュボード状態と、その操作を提供する。
package dashboard

import (
	"sync"

	"github.com/vishanth10/supabase-traversaal/internal/action"
	"github.com/vishanth10/supabase-traversaal/internal/model"
)

// FailureAlert はバックエンド呼び出しが失敗したときにユーザーへ表示する文言。
const FailureAlert = "Failed to complete the request. Please try again."

// Board は1セッション分のダッシュボード状態。
// ボタンごとに独立した状態機械を持ち、互いの完了順序は保証しない。
type Board struct {
	OAuthURL      *action.Action[string]
	DataSources   *action.Action[[]model.DataSource]
	Files         *action.Action[[]model.RemoteFile]
	UploadedFiles *action.Action[[]model.UploadedFile]
	Search        *action.Action[[]model.SearchResult]
	Upload        *action.Action[string]

	oauthWatch action.Watch[string]

	mu      sync.Mutex
	service model.Service
	query   string
	openURL string
	alert   string
}

// NewBoard は初期状態のBoardを生成する。
func NewBoard() *Board {
	return &Board{
		OAuthURL:      action.New[string](),
		DataSources:   action.New[[]model.DataSource](),
		Files:         action.New[[]model.RemoteFile](),
		UploadedFiles: action.New[[]model.UploadedFile](),
		Search:        action.New[[]model.SearchResult](),
		Upload:        action.New[string](),
		service:       model.DefaultService,
	}
}

// Service は選択中のデータソース種別を返す。
func (b *Board) Service() model.Service {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.service
}

// SelectService はデータソース種別を選択する。
func (b *Board) SelectService(s model.Service) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.service = s
}

// Query は直近の検索クエリを返す。
func (b *Board) Query() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.query
}

func (b *Board) setQuery(q string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.query = q
}

func (b *Board) setAlert(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alert = msg
}

func (b *Board) setOpenURL(u string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openURL = u
}

// TakeAlert は未表示のアラートを返し、クリアする。
func (b *Board) TakeAlert() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg := b.alert
	b.alert = ""
	return msg
}

// TakeOpenURL は新しいタブで開くべきOAuth URLを返し、クリアする。
func (b *Board) TakeOpenURL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.openURL
	b.openURL = ""
	return u
}

// View は描画用のスナップショット。
type View struct {
	Service       model.Service
	Query         string
	OAuthURL      action.Snapshot[string]
	DataSources   action.Snapshot[[]model.DataSource]
	Files         action.Snapshot[[]model.RemoteFile]
	UploadedFiles action.Snapshot[[]model.UploadedFile]
	Search        action.Snapshot[[]model.SearchResult]
	Upload        action.Snapshot[string]
	OpenURL       string
	Alert         string
}

// Loading はいずれかの操作が処理中かどうかを返す。
func (v View) Loading() bool {
	return v.OAuthURL.Loading() || v.DataSources.Loading() || v.Files.Loading() ||
		v.UploadedFiles.Loading() || v.Search.Loading() || v.Upload.Loading()
}

// Render は描画用のスナップショットを作成する。アラートとOAuth URLは一度だけ返す。
func (b *Board) Render() View {
	return View{
		Service:       b.Service(),
		Query:         b.Query(),
		OAuthURL:      b.OAuthURL.Snapshot(),
		DataSources:   b.DataSources.Snapshot(),
		Files:         b.Files.Snapshot(),
		UploadedFiles: b.UploadedFiles.Snapshot(),
		Search:        b.Search.Snapshot(),
		Upload:        b.Upload.Snapshot(),
		OpenURL:       b.TakeOpenURL(),
		Alert:         b.TakeAlert(),
	}
}
