package dashboard

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vishanth10/supabase-traversaal/internal/model"
)

// Backend はダッシュボードが呼び出すバックエンドのインターフェース。backend.Clientが実装する。
type Backend interface {
	GetOAuthURL(ctx context.Context, service model.Service, customerID string) (string, error)
	ListDataSources(ctx context.Context, customerID string) ([]model.DataSource, error)
	ListFiles(ctx context.Context, service model.Service, customerID string) ([]model.RemoteFile, error)
	ListUploadedFiles(ctx context.Context, service model.Service, customerID string) ([]model.UploadedFile, error)
	SearchDocuments(ctx context.Context, query string, fileIDs []model.ID, customerID string) ([]model.SearchResult, error)
	UploadFile(ctx context.Context, customerID, filename string, content io.Reader) (string, error)
}

// URLValidator は新しいタブで開くURLを検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Service はダッシュボードの各操作を実行する。
// 各操作はバックエンド呼び出し1回のみで、失敗時はログとアラートを残し、表示中のデータには触れない。
type Service struct {
	backend   Backend
	validator URLValidator
}

// NewService はServiceを生成する。
func NewService(backend Backend, validator URLValidator) *Service {
	return &Service{backend: backend, validator: validator}
}

// Connect は選択したデータソースのOAuth URLを取得する。
// URLが前回から変化し、検証を通過した場合は次の描画で新しいタブに開く。
func (s *Service) Connect(ctx context.Context, b *Board, customerID string, service model.Service) error {
	b.SelectService(service)

	oauthURL, err := b.OAuthURL.Run(ctx, func(ctx context.Context) (string, error) {
		return s.backend.GetOAuthURL(ctx, service, customerID)
	})
	if err != nil {
		return s.fail(b, "get_oauth_url", customerID, err)
	}

	if !b.oauthWatch.Observe(oauthURL) {
		return nil
	}
	if s.validator != nil {
		if err := s.validator.ValidateURL(oauthURL); err != nil {
			return s.fail(b, "get_oauth_url", customerID, model.NewUnsafeURLError(err.Error()))
		}
	}
	b.setOpenURL(oauthURL)
	return nil
}

// ListDataSources は接続済みデータソースの一覧を取得する。
func (s *Service) ListDataSources(ctx context.Context, b *Board, customerID string) error {
	_, err := b.DataSources.Run(ctx, func(ctx context.Context) ([]model.DataSource, error) {
		return s.backend.ListDataSources(ctx, customerID)
	})
	if err != nil {
		return s.fail(b, "list_user_data_sources", customerID, err)
	}
	return nil
}

// ListFiles は選択中のデータソースのファイル一覧を取得する。
func (s *Service) ListFiles(ctx context.Context, b *Board, customerID string, service model.Service) error {
	b.SelectService(service)

	_, err := b.Files.Run(ctx, func(ctx context.Context) ([]model.RemoteFile, error) {
		return s.backend.ListFiles(ctx, service, customerID)
	})
	if err != nil {
		return s.fail(b, "list_files", customerID, err)
	}
	return nil
}

// ListUploadedFiles は取り込み済みファイルの一覧を取得する。
func (s *Service) ListUploadedFiles(ctx context.Context, b *Board, customerID string, service model.Service) error {
	b.SelectService(service)

	_, err := b.UploadedFiles.Run(ctx, func(ctx context.Context) ([]model.UploadedFile, error) {
		return s.backend.ListUploadedFiles(ctx, service, customerID)
	})
	if err != nil {
		return s.fail(b, "list_uploaded_files", customerID, err)
	}
	return nil
}

// Search は現在表示中の取り込み済みファイルを対象に検索する。
func (s *Service) Search(ctx context.Context, b *Board, customerID, query string) error {
	b.setQuery(query)
	fileIDs := model.UploadedFileIDs(b.UploadedFiles.Value())

	_, err := b.Search.Run(ctx, func(ctx context.Context) ([]model.SearchResult, error) {
		return s.backend.SearchDocuments(ctx, query, fileIDs, customerID)
	})
	if err != nil {
		return s.fail(b, "search_documents", customerID, err)
	}
	return nil
}

// Upload はファイルをバックエンドにアップロードする。
func (s *Service) Upload(ctx context.Context, b *Board, customerID, filename string, content io.Reader) error {
	_, err := b.Upload.Run(ctx, func(ctx context.Context) (string, error) {
		return s.backend.UploadFile(ctx, customerID, filename, content)
	})
	if err != nil {
		return s.fail(b, "upload", customerID, err)
	}
	return nil
}

// fail はエラーをログに記録し、アラートを設定する。
func (s *Service) fail(b *Board, endpoint, customerID string, err error) error {
	slog.Error("dashboard action failed",
		slog.String("endpoint", endpoint),
		slog.String("user_id", customerID),
		slog.String("error", err.Error()),
	)
	b.setAlert(FailureAlert)
	return fmt.Errorf("%s: %w", endpoint, err)
}
