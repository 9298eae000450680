package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vishanth10/supabase-traversaal/internal/dashboard"
	"github.com/vishanth10/supabase-traversaal/internal/middleware"
	"github.com/vishanth10/supabase-traversaal/internal/model"
	"github.com/vishanth10/supabase-traversaal/internal/view"
)

// DashboardServiceInterface はダッシュボードハンドラーが必要とするサービスインターフェース。
// dashboard.Serviceが実装する。エラーはBoardのアラートにも反映済みで、ハンドラーは返り値を使わない。
type DashboardServiceInterface interface {
	Connect(ctx context.Context, b *dashboard.Board, customerID string, service model.Service) error
	ListDataSources(ctx context.Context, b *dashboard.Board, customerID string) error
	ListFiles(ctx context.Context, b *dashboard.Board, customerID string, service model.Service) error
	ListUploadedFiles(ctx context.Context, b *dashboard.Board, customerID string, service model.Service) error
	Search(ctx context.Context, b *dashboard.Board, customerID, query string) error
	Upload(ctx context.Context, b *dashboard.Board, customerID, filename string, content io.Reader) error
}

// BoardStore はセッションごとのダッシュボード状態を返す。dashboard.Storeが実装する。
type BoardStore interface {
	Get(sessionID string) *dashboard.Board
}

// DashboardHandler はダッシュボード画面と各操作のHTTPハンドラー。
// 操作はPOST後に303でダッシュボードへ戻し、結果は次の表示に反映する。
type DashboardHandler struct {
	service DashboardServiceInterface
	boards  BoardStore
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(service DashboardServiceInterface, boards BoardStore) *DashboardHandler {
	return &DashboardHandler{
		service: service,
		boards:  boards,
	}
}

// Show はダッシュボード画面を表示する。
// GET /dashboard
func (h *DashboardHandler) Show(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
		return
	}

	board := h.boards.Get(session.ID)
	renderHTML(w, r, http.StatusOK, view.DashboardPage(view.DashboardData{
		Email:     session.Email,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Board:     board.Render(),
	}))
}

// Connect は選択したデータソースのOAuth URLを取得する。
// POST /dashboard/connect
func (h *DashboardHandler) Connect(w http.ResponseWriter, r *http.Request) {
	h.withBoard(w, r, "connect", func(ctx context.Context, b *dashboard.Board, customerID string) error {
		service, err := model.ParseService(r.PostFormValue("service"))
		if err != nil {
			return err
		}
		return h.service.Connect(ctx, b, customerID, service)
	})
}

// ListDataSources は接続済みデータソースの一覧を取得する。
// POST /dashboard/data-sources
func (h *DashboardHandler) ListDataSources(w http.ResponseWriter, r *http.Request) {
	h.withBoard(w, r, "data-sources", func(ctx context.Context, b *dashboard.Board, customerID string) error {
		return h.service.ListDataSources(ctx, b, customerID)
	})
}

// ListFiles は選択中のデータソースのファイル一覧を取得する。
// POST /dashboard/files
func (h *DashboardHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	h.withBoard(w, r, "files", func(ctx context.Context, b *dashboard.Board, customerID string) error {
		service, err := formService(r, b)
		if err != nil {
			return err
		}
		return h.service.ListFiles(ctx, b, customerID, service)
	})
}

// ListUploadedFiles は取り込み済みファイルの一覧を取得する。
// POST /dashboard/uploaded-files
func (h *DashboardHandler) ListUploadedFiles(w http.ResponseWriter, r *http.Request) {
	h.withBoard(w, r, "uploaded-files", func(ctx context.Context, b *dashboard.Board, customerID string) error {
		service, err := formService(r, b)
		if err != nil {
			return err
		}
		return h.service.ListUploadedFiles(ctx, b, customerID, service)
	})
}

// Search は取り込み済みファイルを対象に検索する。
// POST /dashboard/search
func (h *DashboardHandler) Search(w http.ResponseWriter, r *http.Request) {
	h.withBoard(w, r, "search", func(ctx context.Context, b *dashboard.Board, customerID string) error {
		return h.service.Search(ctx, b, customerID, strings.TrimSpace(r.PostFormValue("query")))
	})
}

// Upload はファイルをバックエンドにアップロードする。
// POST /dashboard/upload (multipart/form-data)
func (h *DashboardHandler) Upload(w http.ResponseWriter, r *http.Request) {
	h.withBoard(w, r, "upload", func(ctx context.Context, b *dashboard.Board, customerID string) error {
		file, header, err := r.FormFile("file")
		if err != nil {
			return model.NewInvalidRequestError("file is required")
		}
		defer file.Close()
		return h.service.Upload(ctx, b, customerID, header.Filename, file)
	})
}

// withBoard はセッションのBoardに対して操作を実行し、ダッシュボードの該当セクションへ戻す。
// 入力不備（APIError）は400で返す。バックエンドの失敗はBoardのアラートとして表示される。
func (h *DashboardHandler) withBoard(
	w http.ResponseWriter,
	r *http.Request,
	section string,
	fn func(ctx context.Context, b *dashboard.Board, customerID string) error,
) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	board := h.boards.Get(session.ID)
	if err := fn(r.Context(), board, session.UserID); err != nil {
		if apiErr, ok := asInputError(err); ok {
			slog.Warn("invalid dashboard request",
				slog.String("section", section),
				slog.String("code", apiErr.Code),
			)
			middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
			return
		}
	}

	http.Redirect(w, r, dashboardPath+"#"+section, http.StatusSeeOther)
}

// formService はフォームのserviceを返す。未指定の場合は選択中のものを使う。
func formService(r *http.Request, b *dashboard.Board) (model.Service, error) {
	raw := r.PostFormValue("service")
	if raw == "" {
		return b.Service(), nil
	}
	return model.ParseService(raw)
}

// asInputError はリクエスト内容の不備を表すAPIErrorを取り出す。
func asInputError(err error) (*model.APIError, bool) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return nil, false
	}
	switch apiErr.Code {
	case model.ErrCodeInvalidService, model.ErrCodeInvalidRequest:
		return apiErr, true
	default:
		return nil, false
	}
}
