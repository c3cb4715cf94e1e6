// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizerService はIdPから受け取る表示名をプレーンテキストに正規化し、
// 保存型XSSなどのセキュリティリスクからユーザーを保護する。
// bluemondayライブラリのStrictPolicyで全HTMLタグを除去する。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// maxNameLength は表示名として保存する最大文字数（ルーン数）。
const maxNameLength = 255

// NameSanitizerService は表示名のサニタイズ機能のインターフェースを定義する。
// コールバック処理でIdPのnameクレームを保存する前に使用される。
type NameSanitizerService interface {
	// Sanitize は表示名をサニタイズしてプレーンテキストを返す。
	// HTMLタグと制御文字を除去し、前後の空白をトリムする。
	// 255文字を超える場合は切り詰める。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(name string) string
}

// nameSanitizer はNameSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは全てのタグと属性を除去し、テキストのみを通過させる。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は表示名をサニタイズしてプレーンテキストを返す。
// StrictPolicyはテキストをHTMLエンティティにエンコードするため、
// 除去後にUnescapeStringで元の文字に戻す。表示名はJSONレスポンスとして
// 返却されるのみで、HTMLとして解釈される経路はない。
func (s *nameSanitizer) Sanitize(name string) string {
	stripped := s.policy.Sanitize(name)
	decoded := html.UnescapeString(stripped)
	cleaned := removeControlChars(decoded)
	cleaned = strings.TrimSpace(cleaned)
	return truncateRunes(cleaned, maxNameLength)
}

// removeControlChars は制御文字を除去する。改行・タブも表示名には不要なため
// 空白1文字に置き換え、連続する空白は1つにまとめる。
func removeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return b.String()
}

// truncateRunes は文字列をルーン数でnに切り詰める。
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
