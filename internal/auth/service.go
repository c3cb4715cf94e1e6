// Package auth はOAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/renraku/internal/model"
	"github.com/hitoshi/renraku/internal/repository"
)

// ErrUnauthenticated はセッションが存在しないか期限切れの場合に返す。
var ErrUnauthenticated = errors.New("not authenticated")

// Claims はOAuthプロバイダーから取得したユーザー情報を表す。
// AccessTokenは電話番号取得にのみ使用し、永続化しない。
type Claims struct {
	Provider       string // "google" 等
	ProviderUserID string
	Email          string
	Name           string
	Picture        string
	AccessToken    string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*Claims, error)
}

// PhoneEnricher は外部APIからユーザーの電話番号を取得するインターフェース。
// 取得は常にベストエフォート: errorは呼び出し側のenrichPhoneが「電話番号なし」
// として吸収し、外部には伝播しない。未登録（absent）と取得失敗（error）を
// 区別して計測するためにerrorを返す形にしている。
type PhoneEnricher interface {
	// FetchPhone はアクセストークンで電話番号を取得する。
	// 電話番号が未登録の場合は空文字列を返す。
	FetchPhone(ctx context.Context, accessToken string) (string, error)
}

// NameSanitizer はIdPから受け取った表示名を保存前に無害化するインターフェース。
type NameSanitizer interface {
	Sanitize(s string) string
}

// Recorder は認証フローの結果を計測するインターフェース。
type Recorder interface {
	LoginSucceeded()
	LoginFailed()
	EnrichmentResult(result string)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge   int // セッション有効期間（秒）
	FrontendURL     string
	ExchangeTimeout time.Duration
	EnrichTimeout   time.Duration
}

// CallbackOutcome はOAuthコールバック処理の結果を表す。
// 失敗時もRedirectURLは必ず設定され、HTTP層は302を返すだけでよい。
type CallbackOutcome struct {
	Session     *model.Session
	RedirectURL string
	Failed      bool
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	enricher    PhoneEnricher
	sanitizer   NameSanitizer
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	recorder    Recorder
	config      ServiceConfig
}

// NewService はServiceを生成する。
// enricher、sanitizer、recorderはnilを許容する（その機能を無効化）。
func NewService(
	oauth OAuthProvider,
	enricher PhoneEnricher,
	sanitizer NameSanitizer,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	recorder Recorder,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		enricher:    enricher,
		sanitizer:   sanitizer,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		recorder:    recorder,
		config:      config,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はusersレコードとidentitiesレコードを同時に自動作成する。
// 登録済みユーザーの場合はidentitiesテーブルで既存ユーザーを特定しログインする。
// 電話番号の取得はベストエフォートで、失敗してもログインは成功する。
// すべての失敗はフロントエンドへのエラーリダイレクトに吸収される。
func (s *Service) HandleCallback(ctx context.Context, code string) *CallbackOutcome {
	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	exCtx, cancel := context.WithTimeout(ctx, s.config.ExchangeTimeout)
	defer cancel()

	claims, err := s.oauth.ExchangeCode(exCtx, code)
	if err != nil {
		slog.Warn("oauth code exchange failed", slog.String("error", err.Error()))
		return s.failureOutcome()
	}

	if s.sanitizer != nil {
		claims.Name = s.sanitizer.Sanitize(claims.Name)
	}

	// 2. ユーザーを解決（既存ユーザーの特定または新規作成）
	user, err := s.resolveUser(ctx, claims)
	if err != nil {
		slog.Error("failed to resolve user", slog.String("error", err.Error()))
		return s.failureOutcome()
	}

	// 3. セッションを発行
	session, err := s.createSession(ctx, user, claims)
	if err != nil {
		slog.Error("failed to create session", slog.String("error", err.Error()))
		return s.failureOutcome()
	}

	// 4. 電話番号の取得（ベストエフォート）
	phone := s.enrichPhone(ctx, claims.AccessToken)

	if s.recorder != nil {
		s.recorder.LoginSucceeded()
	}

	return &CallbackOutcome{
		Session:     session,
		RedirectURL: s.successRedirectURL(phone),
	}
}

// resolveUser はIdPのclaimsからユーザーを解決する。
// 同時初回ログインの競合はidentitiesのユニーク制約で検出し、再検索で解決する。
func (s *Service) resolveUser(ctx context.Context, claims *Claims) (*model.User, error) {
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, claims.Provider, claims.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	if identity != nil {
		user, err := s.userRepo.FindByID(ctx, identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("user not found for identity: %s", identity.UserID)
		}
		slog.Info("existing user logged in",
			slog.String("user_id", user.ID),
			slog.String("provider", claims.Provider),
		)
		return user, nil
	}

	now := time.Now()
	newUser := &model.User{
		ID:        uuid.New().String(),
		Email:     claims.Email,
		Name:      claims.Name,
		Picture:   claims.Picture,
		CreatedAt: now,
		UpdatedAt: now,
	}
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         newUser.ID,
		Provider:       claims.Provider,
		ProviderUserID: claims.ProviderUserID,
		CreatedAt:      now,
	}

	err = s.userRepo.CreateWithIdentity(ctx, newUser, newIdentity)
	if err == nil {
		slog.Info("new user created",
			slog.String("user_id", newUser.ID),
			slog.String("provider", claims.Provider),
		)
		return newUser, nil
	}

	if !errors.Is(err, repository.ErrDuplicateIdentity) {
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}

	// 競合: 別リクエストが先にユーザーを作成済み。再検索で既存ユーザーに解決する。
	identity, err = s.identRepo.FindByProviderAndProviderUserID(ctx, claims.Provider, claims.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-find identity after conflict: %w", err)
	}
	if identity == nil {
		return nil, fmt.Errorf("identity not found after duplicate conflict")
	}

	user, err := s.userRepo.FindByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user after conflict: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found after conflict: %s", identity.UserID)
	}

	slog.Info("concurrent signup resolved to existing user",
		slog.String("user_id", user.ID),
		slog.String("provider", claims.Provider),
	)
	return user, nil
}

// enrichPhone は電話番号をベストエフォートで取得する。
// 取得結果はリダイレクトURLのヒントにのみ使用し、永続化しない。
func (s *Service) enrichPhone(ctx context.Context, accessToken string) string {
	if s.enricher == nil || accessToken == "" {
		s.recordEnrichment("skipped")
		return ""
	}

	enCtx, cancel := context.WithTimeout(ctx, s.config.EnrichTimeout)
	defer cancel()

	phone, err := s.enricher.FetchPhone(enCtx, accessToken)
	if err != nil {
		slog.Warn("phone enrichment failed", slog.String("error", err.Error()))
		s.recordEnrichment("error")
		return ""
	}
	if phone == "" {
		s.recordEnrichment("absent")
		return ""
	}

	s.recordEnrichment("found")
	return phone
}

func (s *Service) recordEnrichment(result string) {
	if s.recorder != nil {
		s.recorder.EnrichmentResult(result)
	}
}

// successRedirectURL は電話番号登録ページへのリダイレクトURLを生成する。
// 取得済みの電話番号はプリフィル用クエリパラメータとして付加する。
func (s *Service) successRedirectURL(phone string) string {
	base := strings.TrimSuffix(s.config.FrontendURL, "/") + "/phone"
	if phone == "" {
		return base
	}
	return base + "?prefilled=" + url.QueryEscape(phone)
}

// failureOutcome は失敗時のリダイレクト先を含むOutcomeを生成する。
func (s *Service) failureOutcome() *CallbackOutcome {
	if s.recorder != nil {
		s.recorder.LoginFailed()
	}
	return &CallbackOutcome{
		RedirectURL: strings.TrimSuffix(s.config.FrontendURL, "/") + "/?error=auth_failed",
		Failed:      true,
	}
}

// GetCurrentUser はセッションからプリンシパルのスナップショットを取得する。
// セッションが存在しないか期限切れの場合はErrUnauthenticatedを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.SessionData, error) {
	if sessionID == "" {
		return nil, ErrUnauthenticated
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, ErrUnauthenticated
	}

	data := session.Data
	return &data, nil
}

// UpdatePhone はユーザーの電話番号と同意フラグを更新する。
// usersテーブルとセッションのスナップショットを両方更新する。
func (s *Service) UpdatePhone(ctx context.Context, sessionID, phone string, consentGiven bool) (*model.SessionData, error) {
	if sessionID == "" {
		return nil, ErrUnauthenticated
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, ErrUnauthenticated
	}

	phone = strings.TrimSpace(phone)
	if apiErr := validatePhone(phone); apiErr != nil {
		return nil, apiErr
	}

	if err := s.userRepo.UpdatePhone(ctx, session.UserID, phone, consentGiven); err != nil {
		return nil, fmt.Errorf("failed to update phone: %w", err)
	}

	data := session.Data
	data.Phone = &phone
	data.ConsentGiven = consentGiven
	if err := s.sessionRepo.UpdateData(ctx, sessionID, data); err != nil {
		return nil, fmt.Errorf("failed to update session data: %w", err)
	}

	slog.Info("phone number updated",
		slog.String("user_id", session.UserID),
		slog.Bool("consent_given", consentGiven),
	)

	return &data, nil
}

// Logout はセッションを破棄する。セッションが存在しなくてもエラーにしない。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// createSession はプリンシパルのスナップショット付きセッションを作成し永続化する。
// スナップショットは解決済みのユーザーレコードから構築する。既存ユーザーの
// 再ログインでは保存済みのプロフィールがそのまま引き継がれる。
func (s *Service) createSession(ctx context.Context, user *model.User, claims *Claims) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:     sessionID,
		UserID: user.ID,
		Data: model.SessionData{
			UserID:         user.ID,
			ProviderUserID: claims.ProviderUserID,
			Email:          user.Email,
			Name:           user.Name,
			Picture:        user.Picture,
			Phone:          user.Phone,
			ConsentGiven:   user.ConsentGiven,
		},
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// validatePhone は電話番号の形式を検証する。
// 数字、ハイフン、括弧、空白、ドット、先頭の + のみを許容する。
func validatePhone(phone string) *model.APIError {
	if phone == "" {
		return model.NewInvalidPhoneError("空の電話番号")
	}
	if len(phone) > 32 {
		return model.NewInvalidPhoneError("長すぎます")
	}
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
		case r == '-' || r == '(' || r == ')' || r == ' ' || r == '.':
		case r == '+' && i == 0:
		default:
			return model.NewInvalidPhoneError("使用できない文字が含まれています")
		}
	}
	return nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
