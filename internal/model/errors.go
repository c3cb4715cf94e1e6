// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
// OAuthフローの失敗（コード交換、state不一致）はAPIErrorにならず、
// フロントエンドへのエラーリダイレクトに吸収される。
const (
	ErrCodeInvalidPhone     = "INVALID_PHONE"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeDirectoryFailure = "DIRECTORY_FAILURE"
)

// NewInvalidPhoneError は電話番号の形式が無効な場合のエラーを生成する。
func NewInvalidPhoneError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPhone,
		Message:  fmt.Sprintf("無効な電話番号です: %s", reason),
		Category: "validation",
		Action:   "数字、ハイフン、括弧、先頭の + のみを使って入力してください。",
	}
}

// NewInvalidRequestError はリクエストボディが解釈できない場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストの形式が不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewDirectoryFailureError はユーザー情報の保存・取得に失敗した場合のエラーを生成する。
func NewDirectoryFailureError() *APIError {
	return &APIError{
		Code:     ErrCodeDirectoryFailure,
		Message:  "ユーザー情報の処理に失敗しました。",
		Category: "system",
		Action:   "時間をおいて再度お試しください。",
	}
}
