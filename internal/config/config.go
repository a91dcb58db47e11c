// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Image    ImageConfig    `mapstructure:"image"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
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

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时只在进程内广播 feed 事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// Enabled 表示是否配置了 Kafka。
func (k KafkaConfig) Enabled() bool {
	return k.Brokers != ""
}

// MinIOConfig 存储 MinIO 对象存储的配置。Endpoint 为空时不归档图片。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// Enabled 表示是否配置了 MinIO。
func (m MinIOConfig) Enabled() bool {
	return m.Endpoint != ""
}

// LLMConfig 存储大语言模型（Gemini）相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	MaxTurns   int                 `mapstructure:"max_turns"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置首轮注入知识库时使用的角色说明。
type LLMPromptConfig struct {
	Rules string `mapstructure:"rules"`
}

// AuthConfig 存储登录邮箱域名限制。
// AllowedEmailDomain 为空表示不限制；以 "." 开头表示后缀匹配（如 ".edu"）；否则要求 "@domain" 结尾。
type AuthConfig struct {
	AllowedEmailDomain string `mapstructure:"allowed_email_domain"`
}

// FeedConfig 存储信息流相关的配置。
type FeedConfig struct {
	MaxPosts int `mapstructure:"max_posts"`
}

// ImageConfig 存储图片压缩相关的配置。
type ImageConfig struct {
	MaxUploadBytes  int64 `mapstructure:"max_upload_bytes"`
	MaxEncodedBytes int   `mapstructure:"max_encoded_bytes"`
	MaxDimension    int   `mapstructure:"max_dimension"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

// Load 读取并解析配置文件，未填写的字段使用默认值。
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults 为零值字段填充默认值。
func (c *Config) ApplyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8081"
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.JWT.AccessTokenExpireHours == 0 {
		c.JWT.AccessTokenExpireHours = 24
	}
	if c.JWT.RefreshTokenExpireDays == 0 {
		c.JWT.RefreshTokenExpireDays = 7
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "lostfound-feed-events"
	}
	if c.MinIO.BucketName == "" {
		c.MinIO.BucketName = "lostfound"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gemini-2.5-flash"
	}
	if c.LLM.MaxTurns == 0 {
		c.LLM.MaxTurns = 40
	}
	if c.LLM.Prompt.Rules == "" {
		c.LLM.Prompt.Rules = "You are a campus assistant."
	}
	if c.Feed.MaxPosts == 0 {
		c.Feed.MaxPosts = 50
	}
	if c.Image.MaxUploadBytes == 0 {
		c.Image.MaxUploadBytes = 2 * 1024 * 1024
	}
	if c.Image.MaxEncodedBytes == 0 {
		c.Image.MaxEncodedBytes = 700 * 1024
	}
	if c.Image.MaxDimension == 0 {
		c.Image.MaxDimension = 1200
	}
}
