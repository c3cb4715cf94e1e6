package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/renraku/internal/metrics"
	"github.com/hitoshi/renraku/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder      middleware.SessionFinder
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	CSRFConfig         middleware.CSRFConfig

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー
	UserService   UserServiceInterface
	UserDirectory UserDirectoryInterface

	// 死活報告
	StatusStore StatusStoreInterface

	// システム
	DB          DBPinger
	FrontendURL string

	// アクセスログ
	Logger *slog.Logger // nil許容

	// メトリクス
	MetricsCollector metrics.MetricsCollector // nil許容
	MetricsGatherer  prometheus.Gatherer      // nil許容
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → Metrics → CORS → (認証ルートのみ) Session → RateLimit(General) → CSRF
//
// LoggingとMetricsはそれぞれLogger、MetricsCollectorが指定された場合のみ有効になる。
//
// OAuthフロー（/auth/login, /auth/callback）とシステム系ルートは
// セッションミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.MetricsCollector != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.MetricsCollector))
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService, deps.UserDirectory, deps.MetricsCollector)
	statusHandler := NewStatusHandler(deps.StatusStore)
	systemHandler := NewSystemHandler(deps.DB, deps.FrontendURL)

	// --- 認証不要のルート ---

	// システム系
	r.Get("/", systemHandler.Root)
	r.Get("/health", systemHandler.Health)
	r.Get("/qr", systemHandler.QR)
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// 死活報告
	r.Route("/status", func(r chi.Router) {
		r.Post("/", statusHandler.Create)
		r.Get("/", statusHandler.List)
	})

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		// ログイン開始は未認証アクセスのためIP単位でレート制限する
		r.With(deps.RateLimiter.LoginMiddleware()).Get("/login", authHandler.Login)
		r.Get("/callback", withCallbackLatency(deps.MetricsCollector, authHandler.Callback))
		r.Post("/logout", authHandler.Logout)
		r.Method(http.MethodGet, "/csrf", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// 現在のユーザー
		r.Route("/user", func(r chi.Router) {
			r.Get("/me", userHandler.Me)
			r.Post("/phone", userHandler.UpdatePhone)
			r.Delete("/me", userHandler.Withdraw)
		})

		// ユーザー一覧
		r.Get("/users", userHandler.ListUsers)
	})

	return r
}

// withCallbackLatency はOAuthコールバック処理のレイテンシをヒストグラムに記録する。
// recorderがnilの場合は計測せずにそのままハンドラーを返す。
func withCallbackLatency(recorder metrics.MetricsCollector, next http.HandlerFunc) http.HandlerFunc {
	if recorder == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		recorder.RecordCallbackLatency(time.Since(start))
	}
}
