package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// maxDisplayNameLength は表示名として受け付ける最大文字数。
const maxDisplayNameLength = 100

// TextSanitizerService はユーザー入力のプレーンテキスト化のインターフェースを定義する。
// サインアップ時の表示名をIdPのユーザーメタデータに保存する前に使用される。
type TextSanitizerService interface {
	// SanitizeDisplayName は全てのHTMLタグを除去し、空白を正規化した表示名を返す。
	// 最大100文字に切り詰める。
	SanitizeDisplayName(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyは全てのタグを除去する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeDisplayName は表示名をプレーンテキストに正規化する。
func (s *textSanitizer) SanitizeDisplayName(raw string) string {
	// StrictPolicyはテキストをHTMLエスケープして返すため、元の文字に戻す
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) > maxDisplayNameLength {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:maxDisplayNameLength]))
	}
	return text
}
