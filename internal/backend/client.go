// Package backend はデータソース連携バックエンドのRESTクライアントを提供する。
// 各呼び出しはJSONボディのPOST1回のみで、リトライ・バッチ・キャッシュは行わない。
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vishanth10/supabase-traversaal/internal/metrics"
	"github.com/vishanth10/supabase-traversaal/internal/model"
)

const (
	// DefaultBaseURL はバックエンドの既定アドレス。
	DefaultBaseURL = "http://localhost:3200"

	// maxResponseSize はバックエンドレスポンスとして読み込む最大バイト数。
	maxResponseSize = 10 << 20
)

// エンドポイントのパス。
const (
	PathGetOAuthURL       = "/get_oauth_url"
	PathListDataSources   = "/list_user_data_sources"
	PathListFiles         = "/list_files"
	PathListUploadedFiles = "/list_uploaded_files"
	PathSearchDocuments   = "/search_documents"
	PathUpload            = "/upload"
	requestIDHeader       = "X-Request-ID"
	contentTypeJSON       = "application/json"
)

// StatusError はバックエンドが2xx以外を返したことを表す。
type StatusError struct {
	Path    string
	Status  int
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend %s returned %d: %s", e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("backend %s returned %d", e.Path, e.Status)
}

// Client はバックエンドAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLが空の場合はDefaultBaseURLを使用する。
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger, mc metrics.MetricsCollector) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    mc,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// GetOAuthURL はデータソース接続用のOAuth URLを取得する。
func (c *Client) GetOAuthURL(ctx context.Context, service model.Service, customerID string) (string, error) {
	req := map[string]string{
		"service":     string(service),
		"customer_id": customerID,
	}
	var resp struct {
		OAuthURL string `json:"oauth_url"`
	}
	if err := c.postJSON(ctx, PathGetOAuthURL, req, &resp); err != nil {
		return "", err
	}
	return resp.OAuthURL, nil
}

// ListDataSources は接続済みデータソースの一覧を取得する。
func (c *Client) ListDataSources(ctx context.Context, customerID string) ([]model.DataSource, error) {
	req := map[string]string{
		"customer_id": customerID,
	}
	var resp struct {
		DataSources []model.DataSource `json:"data_sources"`
	}
	if err := c.postJSON(ctx, PathListDataSources, req, &resp); err != nil {
		return nil, err
	}
	return nonNil(resp.DataSources), nil
}

// ListFiles はデータソース上のファイル一覧を取得する。
func (c *Client) ListFiles(ctx context.Context, service model.Service, customerID string) ([]model.RemoteFile, error) {
	req := map[string]string{
		"service":     string(service),
		"customer_id": customerID,
	}
	var resp struct {
		Files []model.RemoteFile `json:"files"`
	}
	if err := c.postJSON(ctx, PathListFiles, req, &resp); err != nil {
		return nil, err
	}
	return nonNil(resp.Files), nil
}

// ListUploadedFiles は取り込み済みファイルの一覧を取得する。
func (c *Client) ListUploadedFiles(ctx context.Context, service model.Service, customerID string) ([]model.UploadedFile, error) {
	req := map[string]string{
		"service":     string(service),
		"customer_id": customerID,
	}
	var resp struct {
		UploadedFiles []model.UploadedFile `json:"uploaded_files"`
	}
	if err := c.postJSON(ctx, PathListUploadedFiles, req, &resp); err != nil {
		return nil, err
	}
	return nonNil(resp.UploadedFiles), nil
}

// SearchDocuments は取り込み済みドキュメントを検索する。
// fileIDsが空でも空配列として送信する。
func (c *Client) SearchDocuments(ctx context.Context, query string, fileIDs []model.ID, customerID string) ([]model.SearchResult, error) {
	if fileIDs == nil {
		fileIDs = []model.ID{}
	}
	req := struct {
		Query      string     `json:"query"`
		FileIDs    []model.ID `json:"file_ids"`
		CustomerID string     `json:"customer_id"`
	}{
		Query:      query,
		FileIDs:    fileIDs,
		CustomerID: customerID,
	}
	var resp struct {
		SearchResults []model.SearchResult `json:"search_results"`
	}
	if err := c.postJSON(ctx, PathSearchDocuments, req, &resp); err != nil {
		return nil, err
	}
	return nonNil(resp.SearchResults), nil
}

// UploadFile はファイルをmultipart/form-dataでアップロードし、バックエンドのメッセージを返す。
func (c *Client) UploadFile(ctx context.Context, customerID, filename string, content io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("customer_id", customerID); err != nil {
		return "", fmt.Errorf("failed to write form field: %w", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("failed to copy file content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var resp struct {
		Message string `json:"message"`
	}
	if err := c.post(ctx, PathUpload, mw.FormDataContentType(), &buf, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// postJSON はJSONボディでPOSTする。
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.post(ctx, path, contentTypeJSON, bytes.NewReader(b), out)
}

// post はバックエンドにPOSTし、結果をメトリクスとログに記録する。
func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, out any) (err error) {
	endpoint := strings.TrimPrefix(path, "/")
	requestID := uuid.NewString()
	start := time.Now()

	defer func() {
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeFailure
		}
		c.metrics.RecordBackendCall(endpoint, outcome, time.Since(start))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set(requestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("backend request failed",
			slog.String("endpoint", endpoint),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("backend %s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	c.metrics.RecordBackendStatus(resp.StatusCode)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read backend response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{
			Path:    path,
			Status:  resp.StatusCode,
			Message: errorMessage(respBody),
		}
		c.logger.Error("backend returned error status",
			slog.String("endpoint", endpoint),
			slog.String("request_id", requestID),
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", statusErr.Message),
		)
		return statusErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		c.logger.Error("failed to parse backend response",
			slog.String("endpoint", endpoint),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to parse backend %s response: %w", path, err)
	}

	c.logger.Debug("backend request completed",
		slog.String("endpoint", endpoint),
		slog.String("request_id", requestID),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

// errorMessage はエラーレスポンスのerrorフィールドを取り出す。
func errorMessage(body []byte) string {
	var v struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &v); err == nil && v.Error != "" {
		return v.Error
	}
	return ""
}

// nonNil はレスポンスに配列が含まれない場合に空スライスを返す。
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
