package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/finwise/internal/auth"
	"github.com/hitoshi/finwise/internal/config"
	"github.com/hitoshi/finwise/internal/database"
	"github.com/hitoshi/finwise/internal/handler"
	"github.com/hitoshi/finwise/internal/logger"
	"github.com/hitoshi/finwise/internal/mailer"
	"github.com/hitoshi/finwise/internal/metrics"
	"github.com/hitoshi/finwise/internal/middleware"
	"github.com/hitoshi/finwise/internal/password"
	"github.com/hitoshi/finwise/internal/repository"
	"github.com/hitoshi/finwise/internal/throttle"
	"github.com/hitoshi/finwise/internal/token"
	"github.com/hitoshi/finwise/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

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
		slog.String("env", cfg.AppEnv),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandCleanup:
		return runCleanup(cfg)
	case CommandMigrate:
		margs, err := ParseMigrateArgs(args[1:])
		if err != nil {
			return err
		}
		return runMigrate(cfg, margs)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := database.Connect(connectCtx, cfg.DatabaseURL, database.DefaultPoolConfig())
	cancelConnect()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	verificationRepo := repository.NewPostgresVerificationTokenRepo(db)
	resetRepo := repository.NewPostgresResetTokenRepo(db)

	// 3. トークン・パスワード
	codec, err := token.NewCodec(token.Config{
		AccessSecret:  cfg.AccessJWTSecret,
		RefreshSecret: cfg.RefreshJWTSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create token codec: %w", err)
	}
	hasher := password.NewBcryptHasher(cfg.BcryptCost)

	// 4. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 5. 外部サービス
	sender := newMailSender(cfg)

	var throttler auth.Throttler
	if cfg.ThrottleEnabled() {
		t, err := throttle.NewFromURL(cfg.RedisURL, throttle.Config{
			Max:    cfg.ThrottleMax,
			Window: cfg.ThrottleWindow,
		})
		if err != nil {
			return fmt.Errorf("failed to create throttle: %w", err)
		}
		defer t.Close()

		pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
		if err := t.Ping(pingCtx); err != nil {
			// 回数制限はRedis不達時に許可側へ倒れるため、起動は継続する
			slog.Warn("redis is unreachable, throttle will allow all requests",
				slog.String("error", err.Error()),
			)
		}
		cancelPing()
		throttler = t
	}

	var oauthProviders []auth.OAuthProvider
	if cfg.GoogleOAuthEnabled() {
		oauthProviders = append(oauthProviders, auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}))
	}
	if cfg.GitHubOAuthEnabled() {
		oauthProviders = append(oauthProviders, auth.NewGitHubOAuthProvider(auth.GitHubOAuthConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
		}))
	}

	// 6. ドメインサービスの初期化
	authService := auth.NewService(auth.Deps{
		Users:              userRepo,
		Identities:         identRepo,
		VerificationTokens: verificationRepo,
		ResetTokens:        resetRepo,
		Hasher:             hasher,
		Tokens:             codec,
		Mailer:             sender,
		Throttle:           throttler,
		Metrics:            collector,
		OAuth:              oauthProviders,
	}, auth.ServiceConfig{
		VerificationTokenTTL: cfg.VerificationTokenTTL,
		ResetTokenTTL:        cfg.ResetTokenTTL,
	})

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitAuth))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:  cfg.FrontendURL,
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
			RefreshTTL:   codec.RefreshTTL(),
		},
		TokenVerifier: codec,

		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Metrics:           collector,
		HSTS:              cfg.IsProduction(),
		TrustProxyHeaders: cfg.TrustProxyHeaders,

		Health:         handler.NewHealthHandler(db),
		MetricsHandler: metrics.Handler(registry),
	})

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("API server starting",
		slog.String("addr", server.Addr),
		slog.Bool("smtp", cfg.SMTPEnabled()),
		slog.Bool("throttle", cfg.ThrottleEnabled()),
		slog.Bool("google_oauth", cfg.GoogleOAuthEnabled()),
		slog.Bool("github_oauth", cfg.GitHubOAuthEnabled()),
		slog.Bool("trust_proxy_headers", cfg.TrustProxyHeaders),
	)
	return serveUntilSignal(server)
}

// newMailSender はSMTPが設定されていればSMTP送信、なければログ出力の送信者を返す。
func newMailSender(cfg *config.Config) mailer.Sender {
	links := mailer.Links{FrontendURL: cfg.FrontendURL}
	if !cfg.SMTPEnabled() {
		slog.Warn("SMTP is not configured, emails will be written to the log")
		return mailer.NewLogSender(slog.Default(), links)
	}
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}, links)
}

// serveUntilSignal はサーバーを起動し、SIGINT/SIGTERMでグレースフルシャットダウンする。
func serveUntilSignal(server *http.Server) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}

	slog.Info("shutting down server...", slog.String("addr", server.Addr))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped gracefully", slog.String("addr", server.Addr))
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れメール確認トークンのクリーンアップを定期実行し、/metricsを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続（ワーカーは同時接続数を絞る）
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := database.Connect(connectCtx, cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	})
	cancelConnect()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. クリーンアップジョブ
	job := cleanup.NewJob(repository.NewPostgresVerificationTokenRepo(db), slog.Default(), collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.SetupMetricsRoute(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.String("error", err.Error()))
		}
	}()

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting", slog.Duration("cleanup_interval", cfg.CleanupInterval))

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.CleanupInterval)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = metricsServer.Shutdown(shutdownCtx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runCleanup は期限切れの確認トークンを1回だけ削除して終了する。
func runCleanup(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	job := cleanup.NewJob(repository.NewPostgresVerificationTokenRepo(db), slog.Default(), metrics.Nop{})
	if err := job.Run(ctx); err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	return nil
}

// runMigrate はスキーマの適用、ロールバック、バージョン表示を行う。
func runMigrate(cfg *config.Config, args MigrateArgs) error {
	dbAttr := slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL))

	switch args.Action {
	case MigrateDown:
		slog.Warn("rolling back database migrations", dbAttr, slog.Int("steps", args.Steps))
		if err := database.RollbackMigrations(cfg.DatabaseURL, args.Steps); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case MigrateUp:
		slog.Info("applying database migrations", dbAttr)
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	slog.Info("database schema",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードを伏せた文字列を返す。
// 解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
