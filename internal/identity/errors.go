package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ProviderError はIdPがリクエストを拒否したことを表す。
// Messageはユーザーにそのまま表示できるIdPの文言。
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity provider returned %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("identity provider returned %d: %s", e.Status, e.Message)
}

// IsUnauthorized はトークンが無効・期限切れで拒否されたかどうかを返す。
func (e *ProviderError) IsUnauthorized() bool {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return true
	}
	// refresh_token の失効は400 invalid_grant で返る
	return e.Code == "invalid_grant" || e.Code == "refresh_token_not_found" || e.Code == "session_not_found"
}

// AsProviderError はerrがProviderErrorを含む場合にそれを返す。
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// newProviderError はエラーレスポンスのボディからProviderErrorを生成する。
// GoTrueはバージョンやエンドポイントによって異なる形式でエラーを返すため、
// msg → error_description → message → error の順で最初の非空の値を採用する。
func newProviderError(status int, body []byte) *ProviderError {
	pe := &ProviderError{Status: status}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		pe.Message = strings.TrimSpace(string(body))
		if pe.Message == "" {
			pe.Message = http.StatusText(status)
		}
		return pe
	}

	for _, key := range []string{"msg", "error_description", "message", "error"} {
		if v, ok := fields[key].(string); ok && v != "" {
			pe.Message = v
			break
		}
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(status)
	}

	if v, ok := fields["error_code"].(string); ok && v != "" {
		pe.Code = v
	} else if v, ok := fields["error"].(string); ok && v != pe.Message {
		pe.Code = v
	}

	return pe
}
