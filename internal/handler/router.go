package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/quizroom/internal/metrics"
	"github.com/hitoshi/quizroom/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 公開エンドポイント
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer

	// ミドルウェア依存
	Verifier          *middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector
	Logger            *slog.Logger

	// クイズ
	QuizService QuizServiceInterface

	// ルーム
	RoomService RoomServiceInterface

	// リアルタイム（RealtimeServerがnilの場合はWebSocketルートを登録しない）
	RealtimeServer RealtimeServer
	Upgrader       *websocket.Upgrader

	// 設定
	SettingsService SettingsServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Metrics → Logging → Auth → RateLimit(General)
//
// /healthと/metricsは認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewMetricsMiddleware(mc))
	r.Use(middleware.NewLoggingMiddleware(logger))

	quizHandler := NewQuizHandler(deps.QuizService)
	roomHandler := NewRoomHandler(deps.RoomService)
	settingsHandler := NewSettingsHandler(deps.SettingsService)

	var realtime http.HandlerFunc
	if deps.RealtimeServer != nil {
		upgrader := deps.Upgrader
		if upgrader == nil {
			upgrader = &websocket.Upgrader{}
		}
		realtime = NewRealtimeHandler(deps.RoomService, deps.RealtimeServer, upgrader).Connect
	}

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Verifier))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		quizHandler.routes(r)
		roomHandler.routes(r, realtime)
		settingsHandler.routes(r)
	})

	return r
}
