// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Chat          ChatConfig          `mapstructure:"chat"`
	Prompt        PromptConfig        `mapstructure:"prompt"`
	GitHub        GitHubConfig        `mapstructure:"github"`
	Mail          MailConfig          `mapstructure:"mail"`
	Contact       ContactConfig       `mapstructure:"contact"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Admin         AdminConfig         `mapstructure:"admin"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// LLMConfig 描述所有模型供应商以及按选择器分组的回退链。
type LLMConfig struct {
	Providers       map[string]ProviderConfig  `mapstructure:"providers"`
	Chains          map[string][]AttemptConfig `mapstructure:"chains"`
	Aliases         map[string]string          `mapstructure:"aliases"`
	DefaultSelector string                     `mapstructure:"default_selector"`
}

// ProviderConfig 单个供应商的连接参数。
type ProviderConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AttemptConfig 回退链中的一项。
type AttemptConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// ChatConfig 聊天请求的窗口与限制。
type ChatConfig struct {
	HistoryWindow          int `mapstructure:"history_window"`
	InspectorHistoryWindow int `mapstructure:"inspector_history_window"`
	InspectorMaxTokens     int `mapstructure:"inspector_max_tokens"`
	StoredHistoryLimit     int `mapstructure:"stored_history_limit"`
}

// PromptConfig 系统提示内容。
type PromptConfig struct {
	AssistantName  string `mapstructure:"assistant_name"`
	Profile        string `mapstructure:"profile"`
	InspectorIntro string `mapstructure:"inspector_intro"`
}

// GitHubConfig 存储 GitHub 快照缓存相关的配置。
type GitHubConfig struct {
	Username string        `mapstructure:"username"`
	APIBase  string        `mapstructure:"api_base"`
	Token    string        `mapstructure:"token"`
	PerPage  int           `mapstructure:"per_page"`
	MaxPages int           `mapstructure:"max_pages"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Featured []string      `mapstructure:"featured"`
}

// MailConfig 存储邮件服务（Resend）的配置。
type MailConfig struct {
	APIKey           string `mapstructure:"api_key"`
	From             string `mapstructure:"from"`
	ConfirmationFrom string `mapstructure:"confirmation_from"`
}

// ContactConfig 联系表单相关配置。
type ContactConfig struct {
	OwnerName        string `mapstructure:"owner_name"`
	OwnerEmail       string `mapstructure:"owner_email"`
	SiteURL          string `mapstructure:"site_url"`
	SendConfirmation bool   `mapstructure:"send_confirmation"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	SnapshotObject  string `mapstructure:"snapshot_object"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// AdminConfig 管理员账号，密码以 bcrypt 哈希保存。
type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

// RateLimitConfig 每个客户端 IP 的限流参数。
type RateLimitConfig struct {
	ChatPerMinute    int `mapstructure:"chat_per_minute"`
	ContactPerMinute int `mapstructure:"contact_per_minute"`
	Burst            int `mapstructure:"burst"`
}

// 这些环境变量名与部署平台保持一致，直接绑定到对应的配置键。
var envBindings = map[string]string{
	"llm.providers.gemini.api_key": "GEMINI_API_KEY",
	"llm.providers.groq.api_key":   "GROQ_API_KEY",
	"github.token":                 "GITHUB_TOKEN",
	"mail.api_key":                 "RESEND_API_KEY",
	"server.port":                  "PORT",
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

// Load 读取配置文件并叠加环境变量。配置文件不存在时仅使用默认值与环境变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("绑定环境变量 %s 失败: %w", env, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("llm.default_selector", "gemini")
	v.SetDefault("chat.history_window", 3)
	v.SetDefault("chat.inspector_history_window", 2)
	v.SetDefault("chat.inspector_max_tokens", 400)
	v.SetDefault("chat.stored_history_limit", 20)
	v.SetDefault("prompt.assistant_name", "Mohamed")
	v.SetDefault("github.username", "MeeksonJr")
	v.SetDefault("github.api_base", "https://api.github.com")
	v.SetDefault("github.per_page", 100)
	v.SetDefault("github.max_pages", 10)
	v.SetDefault("github.cache_ttl", "10m")
	v.SetDefault("github.timeout", "15s")
	v.SetDefault("github.featured", []string{"edusphere-ai", "interview-prep-ai", "ai-content-generator", "portfolio-2025"})
	v.SetDefault("contact.owner_name", "Mohamed")
	v.SetDefault("contact.send_confirmation", true)
	v.SetDefault("kafka.topic", "portfolio-chat-exchanges")
	v.SetDefault("kafka.group_id", "portfolio-go-consumer")
	v.SetDefault("elasticsearch.index_name", "github_repositories")
	v.SetDefault("minio.snapshot_object", "github/snapshot.json")
	v.SetDefault("jwt.access_token_expire_hours", 12)
	v.SetDefault("rate_limit.chat_per_minute", 20)
	v.SetDefault("rate_limit.contact_per_minute", 3)
	v.SetDefault("rate_limit.burst", 5)
}

// applyDefaults 补齐无法通过 viper 默认值表达的结构（回退链与别名）。
func applyDefaults(cfg *Config) {
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]ProviderConfig{}
	}
	if len(cfg.LLM.Chains) == 0 {
		cfg.LLM.Chains = DefaultChains()
	}
	if len(cfg.LLM.Aliases) == 0 {
		cfg.LLM.Aliases = map[string]string{
			"gemini":       "gemini",
			"groq":         "groq",
			"groq-llama":   "groq",
			"groq-mixtral": "groq",
			"groq-gemma":   "groq",
		}
	}
}

// DefaultChains 返回内置的回退链：Gemini 系列优先，失败后转向 Groq。
func DefaultChains() map[string][]AttemptConfig {
	groq := []AttemptConfig{
		{Provider: "groq", Model: "llama-3.1-70b-versatile", MaxTokens: 500, Temperature: 0.7},
		{Provider: "groq", Model: "llama-3.1-8b-instant", MaxTokens: 500, Temperature: 0.7},
		{Provider: "groq", Model: "mixtral-8x7b-32768", MaxTokens: 500, Temperature: 0.7},
		{Provider: "groq", Model: "gemma2-9b-it", MaxTokens: 500, Temperature: 0.7},
		{Provider: "groq", Model: "llama3-70b-8192", MaxTokens: 500, Temperature: 0.7},
		{Provider: "groq", Model: "llama3-8b-8192", MaxTokens: 500, Temperature: 0.7},
	}
	gemini := []AttemptConfig{
		{Provider: "gemini", Model: "gemini-1.5-flash", MaxTokens: 500, Temperature: 0.7},
		{Provider: "gemini", Model: "gemini-1.5-pro", MaxTokens: 500, Temperature: 0.7},
		{Provider: "gemini", Model: "gemini-pro", MaxTokens: 500, Temperature: 0.7},
	}
	gemini = append(gemini, groq[:3]...)
	return map[string][]AttemptConfig{
		"gemini": gemini,
		"groq":   groq,
	}
}
