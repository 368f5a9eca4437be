package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type HTTP struct {
	Host            string
	Port            int
	ReadTimeoutSec  int
	WriteTimeoutSec int
	IdleTimeoutSec  int

	// 单请求处理超时（翻译接口自身带外部调用超时，不受此限制）
	HandlerTimeoutSec int
	AllowedOrigins    []string
}
type AdminHTTP struct {
	Host string
	Port int
}

type App struct {
	Name  string
	Env   string
	HTTP  HTTP
	Admin AdminHTTP

	// 回调、跳转地址拼接用
	PublicURL string
	WebURL    string
}

type LogFile struct {
	Enable     bool
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Log struct {
	Level string
	JSON  bool
	File  LogFile
}

type JWT struct {
	Secret             string
	Issuer             string
	AccessTokenTTLMin  int
	RefreshSecret      string
	RefreshTokenTTLMin int
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DB struct {
	Driver             string
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	AutoMigrate        bool
	SeedPlans          bool
	LogLevel           string
}

// LLM OpenAI 兼容的模型服务
type LLM struct {
	BaseURL    string
	APIKey     string
	Model      string
	TimeoutSec int
}

// Crawl 网页抓取服务（Crawl4AI）
type Crawl struct {
	BaseURL        string
	MaxAttempts    int
	PollIntervalMs int
	TimeoutSec     int
}

type ZPay struct {
	MerchantID string
	SecretKey  string
	APIURL     string
	TimeoutSec int
}

type Quota struct {
	FreeMonthly int
}

type Content struct {
	FileRoot      string
	MaxUploadMB   int
	BatchDelayMs  int
	BatchMaxItems int
	// 批量翻译总耗时上限，需小于 app.http.writeTimeoutSec
	BatchTimeoutSec int
}

type Limits struct {
	UserTranslatePerMin int
	GlobalRPS           float64
	GlobalBurst         int
	MaxConcurrent       int64
	MaxBodyMB           int64
}

type Config struct {
	App     App
	Log     Log
	JWT     JWT
	DB      DB
	Redis   Redis `mapstructure:"redis"`
	LLM     LLM
	Crawl   Crawl
	ZPay    ZPay
	Quota   Quota
	Content Content
	Limits  Limits
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "translator-agent")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.http.host", "0.0.0.0")
	v.SetDefault("app.http.port", 3001)
	v.SetDefault("app.http.readTimeoutSec", 15)
	v.SetDefault("app.http.writeTimeoutSec", 120)
	v.SetDefault("app.http.idleTimeoutSec", 60)
	v.SetDefault("app.http.handlerTimeoutSec", 10)
	v.SetDefault("app.admin.host", "127.0.0.1")
	v.SetDefault("app.admin.port", 3002)
	v.SetDefault("app.publicURL", "http://localhost:3001")
	v.SetDefault("app.webURL", "http://localhost:3000")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file.filename", "logs/app.log")
	v.SetDefault("log.file.maxSizeMB", 100)
	v.SetDefault("log.file.maxBackups", 7)
	v.SetDefault("log.file.maxAgeDays", 30)

	v.SetDefault("jwt.issuer", "translator-agent")
	v.SetDefault("jwt.accessTokenTTLMin", 24*60)
	v.SetDefault("jwt.refreshTokenTTLMin", 7*24*60)

	v.SetDefault("db.driver", "mysql")
	v.SetDefault("db.maxOpenConns", 20)
	v.SetDefault("db.maxIdleConns", 10)
	v.SetDefault("db.connMaxLifetimeMin", 30)
	v.SetDefault("db.seedPlans", true)

	v.SetDefault("llm.model", "doubao-seed-1-6-250615")
	v.SetDefault("llm.timeoutSec", 60)

	v.SetDefault("crawl.baseURL", "http://localhost:11235")
	v.SetDefault("crawl.maxAttempts", 30)
	v.SetDefault("crawl.pollIntervalMs", 1000)
	v.SetDefault("crawl.timeoutSec", 10)

	v.SetDefault("zpay.timeoutSec", 30)

	v.SetDefault("quota.freeMonthly", 1000)

	v.SetDefault("content.fileRoot", "./data/uploads")
	v.SetDefault("content.maxUploadMB", 5)
	v.SetDefault("content.batchDelayMs", 500)
	v.SetDefault("content.batchMaxItems", 20)
	v.SetDefault("content.batchTimeoutSec", 90)

	v.SetDefault("limits.userTranslatePerMin", 30)
	v.SetDefault("limits.globalRPS", 200)
	v.SetDefault("limits.globalBurst", 400)
	v.SetDefault("limits.maxConcurrent", 300)
	v.SetDefault("limits.maxBodyMB", 16)
}

// Read 读取配置文件 + APP_ 前缀环境变量
func Read(path string) (*Config, error) {
	v := viper.New()
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "./configs/config.local.yaml"
		}
	}
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.JWT.RefreshSecret == "" {
		c.JWT.RefreshSecret = c.JWT.Secret + ".refresh"
	}
	return &c, nil
}

func Load(path string) *Config {
	c, err := Read(path)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return c
}
