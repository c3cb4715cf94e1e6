// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/renraku/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// 同一の (provider, provider_user_id) が既に存在する場合は
	// ErrDuplicateIdentity を返す。呼び出し側は再検索で既存ユーザーに解決する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdatePhone は電話番号と同意フラグを更新する。
	UpdatePhone(ctx context.Context, userID, phone string, consentGiven bool) error

	// List は全ユーザーを作成日時降順で返す。
	List(ctx context.Context, limit int) ([]*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessionsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// UpdateData はセッションのスナップショットを更新する。
	UpdateData(ctx context.Context, id string, data model.SessionData) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// StatusCheckRepository はクライアント死活報告の永続化インターフェース。
type StatusCheckRepository interface {
	// Create は死活報告を作成する。
	Create(ctx context.Context, check *model.StatusCheck) error
	// List は死活報告をtimestamp降順で最大limit件返す。
	List(ctx context.Context, limit int) ([]*model.StatusCheck, error)
}
