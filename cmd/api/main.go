package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"translator-agent/internal/content"
	"translator-agent/internal/core/auth"
	"translator-agent/internal/core/config"
	"translator-agent/internal/core/database"
	"translator-agent/internal/core/kv"
	"translator-agent/internal/core/logger"
	"translator-agent/internal/core/server"
	"translator-agent/internal/crawl"
	"translator-agent/internal/engine"
	authmod "translator-agent/internal/feature/auth"
	"translator-agent/internal/feature/membership"
	"translator-agent/internal/feature/payment"
	"translator-agent/internal/feature/translate"
	"translator-agent/internal/llm"
	"translator-agent/internal/payment/zpay"
	"translator-agent/internal/pipeline"
	"translator-agent/internal/quota"
	"translator-agent/internal/repo"
	"translator-agent/internal/service"
	"translator-agent/internal/transport/http/router"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load(os.Getenv("CONFIG_PATH"))
	log, cleanup := logger.FromOptions(logger.Options{
		Level: cfg.Log.Level,
		JSON:  cfg.Log.JSON,
		Rotate: logger.FileRotate{
			Enable:     cfg.Log.File.Enable,
			Filename:   cfg.Log.File.Filename,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		},
	})
	defer cleanup()
	defer logger.RedirectStdLog(log, zapcore.InfoLevel)()
	// gin 自身的调试/错误输出也走 zap
	gin.DefaultWriter = logger.ToWriter(log, zapcore.DebugLevel)
	gin.DefaultErrorWriter = logger.ToWriter(log, zapcore.ErrorLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 数据库（失败会直接 Fatal）
	db := mustOpenDB(cfg, log)
	defer func() { _ = database.Close(db) }()
	log.Info("database connected", zap.String("driver", cfg.DB.Driver))

	if cfg.DB.AutoMigrate {
		if err := repo.Migrate(db); err != nil {
			log.Fatal("automigrate failed", zap.Error(err))
		}
		log.Info("automigrate done")
	}

	store := kv.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer func() { _ = store.Close() }()

	tokens := auth.Pair{
		Access: &auth.JWTer{
			Secret: []byte(cfg.JWT.Secret),
			Issuer: cfg.JWT.Issuer,
			TTL:    time.Duration(cfg.JWT.AccessTokenTTLMin) * time.Minute,
			Kind:   auth.KindAccess,
		},
		Refresh: &auth.JWTer{
			Secret: []byte(cfg.JWT.RefreshSecret),
			Issuer: cfg.JWT.Issuer,
			TTL:    time.Duration(cfg.JWT.RefreshTokenTTLMin) * time.Minute,
			Kind:   auth.KindRefresh,
		},
	}

	// 仓储
	users := repo.NewUserRepo(db)
	plans := repo.NewPlanRepo(db)
	memberships := repo.NewMembershipRepo(db)
	usage := repo.NewUsageRepo(db)
	orders := repo.NewPaymentRepo(db)
	records := repo.NewTranslationRepo(db)

	// 外部服务
	crawler := crawl.New(crawl.Options{
		BaseURL:      cfg.Crawl.BaseURL,
		MaxAttempts:  cfg.Crawl.MaxAttempts,
		PollInterval: time.Duration(cfg.Crawl.PollIntervalMs) * time.Millisecond,
		Timeout:      time.Duration(cfg.Crawl.TimeoutSec) * time.Second,
	}, log)
	model := llm.New(llm.Options{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	}, log)
	gateway := zpay.New(zpay.Options{
		MerchantID: cfg.ZPay.MerchantID,
		SecretKey:  cfg.ZPay.SecretKey,
		APIURL:     cfg.ZPay.APIURL,
		Timeout:    time.Duration(cfg.ZPay.TimeoutSec) * time.Second,
	}, log)

	ledger := quota.NewLedger(memberships, usage, cfg.Quota.FreeMonthly)
	eng := engine.New(model, time.Duration(cfg.Content.BatchDelayMs)*time.Millisecond, log).
		WithBatchBudget(time.Duration(cfg.Content.BatchTimeoutSec) * time.Second)
	if cfg.Content.BatchTimeoutSec >= cfg.App.HTTP.WriteTimeoutSec {
		log.Warn("batch budget not below http write timeout, slow batches may lose their response",
			zap.Int("batch_timeout_sec", cfg.Content.BatchTimeoutSec),
			zap.Int("write_timeout_sec", cfg.App.HTTP.WriteTimeoutSec),
		)
	}
	orch := pipeline.New(content.New(crawler, cfg.Content.FileRoot), ledger, eng, records, log)

	authSvc := service.NewAuthService(users, memberships, tokens, log)
	memberSvc := service.NewMembershipService(plans, memberships, usage, ledger, log)
	paySvc := service.NewPaymentService(plans, orders, memberships, gateway, store, service.PaymentURLs{
		NotifyURL: cfg.App.PublicURL + "/api/v1/payment/webhook/zpay",
		ReturnURL: cfg.App.WebURL + "/payment/success",
		CancelURL: cfg.App.WebURL + "/payment/cancel",
	}, log)
	transSvc := service.NewTranslateService(orch, eng, records, ledger,
		cfg.Content.FileRoot, int64(cfg.Content.MaxUploadMB)<<20, log)

	if cfg.DB.SeedPlans {
		if err := memberSvc.SeedDefaults(ctx); err != nil {
			log.Fatal("seed plans failed", zap.Error(err))
		}
	}

	router.Register(
		authmod.New(authSvc, log),
		membership.New(memberSvc, log),
		payment.New(paySvc, log),
		translate.New(transSvc, db, store, translate.Options{
			PerMinute: cfg.Limits.UserTranslatePerMin,
			MaxBatch:  cfg.Content.BatchMaxItems,
		}, log),
	)

	r := router.NewAPIEngine(log, tokens.Access, router.Options{
		Origins:        cfg.App.HTTP.AllowedOrigins,
		GlobalRPS:      cfg.Limits.GlobalRPS,
		GlobalBurst:    cfg.Limits.GlobalBurst,
		MaxConcurrent:  cfg.Limits.MaxConcurrent,
		MaxBodyBytes:   cfg.Limits.MaxBodyMB << 20,
		HandlerTimeout: time.Duration(cfg.App.HTTP.HandlerTimeoutSec) * time.Second,
		// 只有翻译主流程走外部模型和抓取，耗时由各自客户端和批量预算控制
		TimeoutSkip: []string{"/api/v1/translate", "/api/v1/translate/batch"},
	}, healthChecks(db, store)...)

	addr := server.Addr(cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	srv := server.BuildServer(
		addr, r,
		time.Duration(cfg.App.HTTP.ReadTimeoutSec)*time.Second,
		time.Duration(cfg.App.HTTP.WriteTimeoutSec)*time.Second,
		time.Duration(cfg.App.HTTP.IdleTimeoutSec)*time.Second,
	)

	host4human := cfg.App.HTTP.Host
	if host4human == "" || host4human == "0.0.0.0" {
		host4human = "127.0.0.1"
	}
	baseURL := "http://" + host4human + ":" + fmt.Sprint(cfg.App.HTTP.Port)
	log.Info("user api starting",
		zap.String("env", cfg.App.Env),
		zap.String("open", baseURL),
		zap.String("health", baseURL+"/health"),
		zap.String("api_v1", baseURL+"/api/v1"),
	)

	if err := server.Run(ctx, srv, 10*time.Second, log); err != nil {
		log.Error("user api stopped with error", zap.Error(err))
		return
	}
	log.Info("user api stopped gracefully")
}

func healthChecks(db *gorm.DB, store *kv.Store) []router.HealthCheck {
	return []router.HealthCheck{
		{Name: "database", Ping: func(ctx context.Context) error { return database.Ping(ctx, db) }},
		{Name: "redis", Ping: store.Ping},
	}
}

func mustOpenDB(cfg *config.Config, l *zap.Logger) *gorm.DB {
	db, err := database.NewGorm(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
		Logger:             l,
	})
	if err != nil {
		l.Fatal("db open", zap.Error(err))
	}
	return db
}
