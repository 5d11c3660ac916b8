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
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Run           RunConfig           `mapstructure:"run"`
	Evaluation    EvaluationConfig    `mapstructure:"evaluation"`
	Iteration     IterationConfig     `mapstructure:"iteration"`
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

// KafkaConfig 存储 Kafka 相关的配置，topic 承载摄取源投递的抽取任务。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TikaConfig 存储 Tika 服务器相关的配置，用于从输入文档提取纯文本。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
// IndexName 指向评估结果的复核索引。
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
}

// LLMConfig 存储推理能力（抽取模型）相关的配置。
type LLMConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TimeoutSec  int     `mapstructure:"timeout_sec"`
}

// RunConfig 存储抽取运行生命周期相关的配置。
type RunConfig struct {
	// MaxRetries 是同一输入允许的最大重试次数，超过后转为永久失败。
	MaxRetries int `mapstructure:"max_retries"`
}

// EvaluationConfig 存储评估引擎的字段对比策略。
type EvaluationConfig struct {
	// NumericTolerance 为数值字段的允许误差，默认 0（精确相等）。
	NumericTolerance float64 `mapstructure:"numeric_tolerance"`
	// DateLayouts 是日期归一化时依次尝试的解析格式。
	DateLayouts []string `mapstructure:"date_layouts"`
	// ExtrasInPrecision 控制 ground truth 之外的多余字段是否计入精确率分母。
	ExtrasInPrecision *bool `mapstructure:"extras_in_precision"`
}

// IterationConfig 存储迭代控制器的配置。
type IterationConfig struct {
	// AccuracyThreshold 低于该准确率的评估才允许触发新的提示词版本。
	AccuracyThreshold float64 `mapstructure:"accuracy_threshold"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}

	applyDefaults()
}

// applyDefaults 为未配置的关键项填充默认值。
func applyDefaults() {
	if Conf.Run.MaxRetries == 0 {
		Conf.Run.MaxRetries = 3
	}
	if len(Conf.Evaluation.DateLayouts) == 0 {
		Conf.Evaluation.DateLayouts = []string{
			"2006-01-02",
			"2006/01/02",
			"02/01/2006",
			"2006-01-02T15:04:05Z07:00",
		}
	}
	if Conf.Evaluation.ExtrasInPrecision == nil {
		t := true
		Conf.Evaluation.ExtrasInPrecision = &t
	}
	if Conf.Iteration.AccuracyThreshold == 0 {
		Conf.Iteration.AccuracyThreshold = 0.9
	}
	if Conf.LLM.TimeoutSec == 0 {
		Conf.LLM.TimeoutSec = 120
	}
}
