package model

import (
	"encoding/json"
	"fmt"
)

// Service はデータソースの提供元を表す。
type Service string

const (
	ServiceGoogleDrive Service = "GOOGLE_DRIVE"
	ServiceDropbox     Service = "DROPBOX"
	ServiceNotion      Service = "NOTION"
	ServiceOneDrive    Service = "ONE_DRIVE"
)

// DefaultService はダッシュボードの初期選択。
const DefaultService = ServiceGoogleDrive

// Services は選択可能なサービスを表示順で返す。
func Services() []Service {
	return []Service{ServiceGoogleDrive, ServiceDropbox, ServiceNotion, ServiceOneDrive}
}

// ParseService は文字列をServiceに変換する。未知の値はエラー。
func ParseService(s string) (Service, error) {
	for _, svc := range Services() {
		if string(svc) == s {
			return svc, nil
		}
	}
	return "", NewInvalidServiceError(s)
}

// Label は画面表示用の名称を返す。
func (s Service) Label() string {
	switch s {
	case ServiceGoogleDrive:
		return "Google Drive"
	case ServiceDropbox:
		return "Dropbox"
	case ServiceNotion:
		return "Notion"
	case ServiceOneDrive:
		return "OneDrive"
	default:
		return string(s)
	}
}

// DataSource はユーザーが接続したデータソース。バックエンドが所有し、ここでは表示のみ行う。
type DataSource struct {
	ID         ID     `json:"id"`
	ExternalID string `json:"external_id"`
	Type       string `json:"type"`
	SyncStatus string `json:"sync_status"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// RemoteFile はデータソース上のファイル一覧の1件。
type RemoteFile struct {
	Name string `json:"name"`
}

// UploadedFile はバックエンドが取り込み済みのファイル。
type UploadedFile struct {
	ID                           ID     `json:"id"`
	OrganizationSuppliedUserID   string `json:"organization_supplied_user_id"`
	OrganizationUserDataSourceID ID     `json:"organization_user_data_source_id"`
	ExternalURL                  string `json:"external_url"`
}

// SearchResult は取り込み済みドキュメントの検索結果。
type SearchResult struct {
	Source       string          `json:"source"`
	SourceURL    string          `json:"source_url"`
	SourceType   string          `json:"source_type"`
	PresignedURL string          `json:"presigned_url"`
	Tags         json.RawMessage `json:"tags"`
}

// TagsText はタグ集合をJSON文字列として返す。
func (r SearchResult) TagsText() string {
	if len(r.Tags) == 0 {
		return "null"
	}
	return string(r.Tags)
}

// UploadedFileIDs は取り込み済みファイルのID一覧を返す。
func UploadedFileIDs(files []UploadedFile) []ID {
	ids := make([]ID, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	return ids
}

// String はログ出力用の表現を返す。
func (d DataSource) String() string {
	return fmt.Sprintf("data_source(%s, %s)", d.ID, d.Type)
}
