// Package user はユーザーディレクトリのドメインロジックを提供する。
package user

import (
	"context"
	"log/slog"

	"github.com/hitoshi/renraku/internal/model"
	"github.com/hitoshi/renraku/internal/repository"
)

// Service はユーザーディレクトリのサービス層。
// 一覧取得と退会処理を提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
	}
}

// List は全ユーザーを作成日時降順で最大limit件返す。
// ストレージ障害はDIRECTORY_FAILUREのAPIErrorとして返す。
func (s *Service) List(ctx context.Context, limit int) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx, limit)
	if err != nil {
		slog.Error("ユーザー一覧の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewDirectoryFailureError()
	}
	return users, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（+ CASCADE: identities）
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	// ユーザー存在確認
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		slog.Error("ユーザーの取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return model.NewDirectoryFailureError()
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. セッションを削除
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		slog.Error("セッションの削除に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return model.NewDirectoryFailureError()
	}

	// 2. ユーザーを削除（identitiesはCASCADE削除）
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		slog.Error("ユーザーの削除に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return model.NewDirectoryFailureError()
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
