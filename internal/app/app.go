package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/quizroom/internal/config"
	"github.com/hitoshi/quizroom/internal/database"
	"github.com/hitoshi/quizroom/internal/handler"
	"github.com/hitoshi/quizroom/internal/llm"
	"github.com/hitoshi/quizroom/internal/logger"
	"github.com/hitoshi/quizroom/internal/mailer"
	"github.com/hitoshi/quizroom/internal/metrics"
	"github.com/hitoshi/quizroom/internal/middleware"
	"github.com/hitoshi/quizroom/internal/quiz"
	"github.com/hitoshi/quizroom/internal/quota"
	"github.com/hitoshi/quizroom/internal/realtime"
	"github.com/hitoshi/quizroom/internal/repository"
	"github.com/hitoshi/quizroom/internal/room"
	"github.com/hitoshi/quizroom/internal/security"
	"github.com/hitoshi/quizroom/internal/settings"
	"github.com/hitoshi/quizroom/internal/translate"
	"github.com/hitoshi/quizroom/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHelp {
		writeUsage(w)
		return nil
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newLimiter はクイズ生成の利用上限カウンタを生成する。
// REDIS_URLが設定されていればRedisの固定ウィンドウ、なければプロセス内カウンタを使う。
// 戻り値のcloseは呼び出し側で必ず実行する。
func newLimiter(cfg *config.Config) (quota.Limiter, func(), error) {
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL is not set; using in-process generation quota")
		return quota.NewMemoryLimiter(cfg.GenerationLimit, cfg.GenerationWindow), func() {}, nil
	}

	client, err := quota.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close redis client", slog.String("error", err.Error()))
		}
	}
	return quota.NewRedisLimiter(client, cfg.GenerationLimit, cfg.GenerationWindow), closeFn, nil
}

// serverWriteTimeout はHTTPサーバーの書き込みタイムアウトを返す。
// クイズ生成はLLMの応答を待つため、生成タイムアウトに余裕を持たせる。
func serverWriteTimeout(cfg *config.Config) time.Duration {
	timeout := cfg.GenerationTimeout + 15*time.Second
	if timeout < 15*time.Second {
		return 15 * time.Second
	}
	return timeout
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mc := metrics.NewCollector(reg)

	// 3. リポジトリの初期化
	quizRepo := repository.NewPostgresQuizRepo(db)
	attemptRepo := repository.NewPostgresAttemptRepo(db)
	usageRepo := repository.NewPostgresUsageRepo(db)
	roomRepo := repository.NewPostgresRoomRepo(db)
	playerRepo := repository.NewPostgresPlayerRepo(db)
	settingsRepo := repository.NewPostgresSettingsRepo(db)

	// 4. 外部サービスクライアントの初期化
	sanitizer := security.NewTextSanitizer()

	generator, err := llm.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	defer generator.Close()

	// nilの*Translatorをインターフェースに入れないよう、有効時のみ代入する
	var translator quiz.QuestionTranslator
	if cfg.TranslationEnabled() {
		backend, err := translate.NewAWSTranslator(ctx, cfg.AWSRegion)
		if err != nil {
			return fmt.Errorf("failed to initialize translator: %w", err)
		}
		translator = translate.NewTranslator(backend, cfg.TranslateSourceLanguage, nil, mc, slog.Default())
		slog.Info("translation enabled",
			slog.String("region", cfg.AWSRegion),
			slog.String("source_language", cfg.TranslateSourceLanguage),
		)
	}

	limiter, closeLimiter, err := newLimiter(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize generation quota: %w", err)
	}
	defer closeLimiter()

	var inviteSender room.InviteSender
	if cfg.EmailEnabled() {
		inviteSender = mailer.NewResendClient(nil, cfg.ResendAPIKey, cfg.EmailFrom, slog.Default())
	}

	realtimeManager := realtime.NewManager(mc, slog.Default())

	// 5. ドメインサービスの初期化
	settingsService := settings.NewService(settingsRepo)

	quizService := quiz.NewService(quiz.Deps{
		QuizRepo:    quizRepo,
		AttemptRepo: attemptRepo,
		UsageRepo:   usageRepo,
		Settings:    settingsService,
		Generator:   generator,
		Translator:  translator,
		Limiter:     limiter,
		Sanitizer:   sanitizer,
		Metrics:     mc,
		Logger:      slog.Default(),
		Timeout:     cfg.GenerationTimeout,
	})

	roomService := room.NewService(
		roomRepo, playerRepo, quizService, realtimeManager, inviteSender,
		sanitizer, mc, slog.Default(),
		room.Config{
			MaxPlayers: cfg.RoomMaxPlayers,
			CodeLength: cfg.RoomCodeLength,
			BaseURL:    cfg.BaseURL,
		},
	)

	// 6. ルーターの構築
	// configのRateLimitGeneralはreq/min単位なのでreq/secに変換する
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		HealthChecker: db,
		Gatherer:      reg,

		Verifier:          middleware.NewTokenVerifier(cfg.JWTSecret),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Metrics:           mc,
		Logger:            slog.Default(),

		QuizService: quizService,
		RoomService: roomService,

		RealtimeServer: realtimeManager,
		Upgrader:       realtime.NewUpgrader(cfg.CORSAllowedOrigin),

		SettingsService: settingsService,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	// WebSocketはHijack後に自前の読み書き期限を設定するため、WriteTimeoutの影響を受けない
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: serverWriteTimeout(cfg),
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Bool("translation_enabled", cfg.TranslationEnabled()),
			slog.Bool("email_enabled", cfg.EmailEnabled()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れルームのクリーンアップジョブを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. メトリクス（ワーカー専用ポートで/metricsを公開する）
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	mc := metrics.NewCollector(reg)
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker metrics server starting", slog.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server error", slog.String("error", err.Error()))
		}
	}()

	// 3. リポジトリとジョブの初期化
	roomRepo := repository.NewPostgresRoomRepo(db)
	cleanupJob := cleanup.NewCleanupJob(roomRepo, mc, slog.Default(), cfg.RoomTTL)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("room_ttl", cfg.RoomTTL),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.CleanupInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("failed to shutdown worker metrics server", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
