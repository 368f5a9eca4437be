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

	"translator-agent/internal/core/auth"
	"translator-agent/internal/core/config"
	"translator-agent/internal/core/database"
	"translator-agent/internal/core/kv"
	"translator-agent/internal/core/logger"
	"translator-agent/internal/core/server"
	"translator-agent/internal/feature/admin"
	"translator-agent/internal/feature/membership"
	"translator-agent/internal/feature/payment"
	"translator-agent/internal/payment/zpay"
	"translator-agent/internal/quota"
	"translator-agent/internal/repo"
	"translator-agent/internal/service"
	"translator-agent/internal/transport/http/router"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load(os.Getenv("CONFIG_PATH"))
	log, cleanup := logger.New(cfg.Log.Level, cfg.Log.JSON)
	defer cleanup()
	log = log.Named("admin")
	// gin 自身的调试/错误输出也走 zap
	gin.DefaultWriter = logger.ToWriter(log, zapcore.DebugLevel)
	gin.DefaultErrorWriter = logger.ToWriter(log, zapcore.ErrorLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB 连接（失败直接 Fatal）
	db := mustOpenDB(cfg, log)
	defer func() { _ = database.Close(db) }()
	log.Info("database connected", zap.String("driver", cfg.DB.Driver))

	store := kv.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer func() { _ = store.Close() }()

	// 只认 access token，角色在中间件里校验
	jwter := &auth.JWTer{
		Secret: []byte(cfg.JWT.Secret),
		Issuer: cfg.JWT.Issuer,
		TTL:    time.Duration(cfg.JWT.AccessTokenTTLMin) * time.Minute,
		Kind:   auth.KindAccess,
	}

	users := repo.NewUserRepo(db)
	plans := repo.NewPlanRepo(db)
	memberships := repo.NewMembershipRepo(db)
	usage := repo.NewUsageRepo(db)
	orders := repo.NewPaymentRepo(db)

	gateway := zpay.New(zpay.Options{
		MerchantID: cfg.ZPay.MerchantID,
		SecretKey:  cfg.ZPay.SecretKey,
		APIURL:     cfg.ZPay.APIURL,
		Timeout:    time.Duration(cfg.ZPay.TimeoutSec) * time.Second,
	}, log)
	ledger := quota.NewLedger(memberships, usage, cfg.Quota.FreeMonthly)

	router.Register(
		admin.New(service.NewAdminService(users, log), log),
		membership.New(service.NewMembershipService(plans, memberships, usage, ledger, log), log),
		payment.New(service.NewPaymentService(plans, orders, memberships, gateway, store, service.PaymentURLs{
			NotifyURL: cfg.App.PublicURL + "/api/v1/payment/webhook/zpay",
			ReturnURL: cfg.App.WebURL + "/payment/success",
			CancelURL: cfg.App.WebURL + "/payment/cancel",
		}, log), log),
	)

	r := router.NewAdminEngine(log, jwter, router.Options{
		Origins:        cfg.App.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.Limits.MaxBodyMB << 20,
		HandlerTimeout: time.Duration(cfg.App.HTTP.HandlerTimeoutSec) * time.Second,
	},
		router.HealthCheck{Name: "database", Ping: func(ctx context.Context) error { return database.Ping(ctx, db) }},
		router.HealthCheck{Name: "redis", Ping: store.Ping},
	)

	addr := server.Addr(cfg.App.Admin.Host, cfg.App.Admin.Port)
	srv := server.BuildServer(addr, r, 5*time.Second, 10*time.Second, 60*time.Second)

	// 启动前打印可点击地址
	host4human := cfg.App.Admin.Host
	if host4human == "" || host4human == "0.0.0.0" {
		host4human = "127.0.0.1"
	}
	baseURL := "http://" + host4human + ":" + fmt.Sprint(cfg.App.Admin.Port)
	log.Info("admin api starting",
		zap.String("open", baseURL),
		zap.String("health", baseURL+"/health"),
		zap.String("admin_v1", baseURL+"/admin/v1"),
	)

	if err := server.Run(ctx, srv, 10*time.Second, log); err != nil {
		log.Error("admin api stopped with error", zap.Error(err))
		return
	}
	log.Info("admin api stopped gracefully")
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
	})
	if err != nil {
		l.Fatal("db open", zap.Error(err))
	}
	return db
}
