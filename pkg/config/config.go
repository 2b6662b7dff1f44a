// Copyright 2026 trieungoctam
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API          APIConfig          `mapstructure:"api"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Lock         LockConfig         `mapstructure:"lock"`
	History      HistoryConfig      `mapstructure:"history"`
	Job          JobConfig          `mapstructure:"job"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	AI           AIConfig           `mapstructure:"ai"`
	Platform     PlatformConfig     `mapstructure:"platform"`
	Secrets      SecretsConfig      `mapstructure:"secrets"`
	Log          LogConfig          `mapstructure:"log"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port    int    `mapstructure:"port"`
	Host    string `mapstructure:"host"`
	Timeout string `mapstructure:"timeout"`
}

// CacheConfig 共享缓存配置（redis 为跨实例协调后端；memory 仅单实例）
type CacheConfig struct {
	Type     string `mapstructure:"type"` // redis | memory
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	// ProbeInterval 降级后重探测主后端的间隔，如 "30s"，空则默认 30s
	ProbeInterval string `mapstructure:"probe_interval"`
}

// ConversationConfig 会话持久化存储配置
type ConversationConfig struct {
	Type     string `mapstructure:"type"` // memory | postgres
	DSN      string `mapstructure:"dsn"`  // Postgres 连接串，type=postgres 时必填
	PoolSize int    `mapstructure:"pool_size"`
}

// LockConfig 会话锁配置
type LockConfig struct {
	TTL string `mapstructure:"ttl"` // 锁 TTL，如 "1h"，空则默认 1h
	// CleanupMaxAgeHours 周期清理时判定孤儿锁的最大年龄（小时），<=0 默认 24
	CleanupMaxAgeHours int `mapstructure:"cleanup_max_age_hours"`
}

// HistoryConfig 历史增量处理配置
type HistoryConfig struct {
	MaxMessages int    `mapstructure:"max_messages"` // 单次处理消息数上限，<=0 默认 50
	MaxChars    int    `mapstructure:"max_chars"`    // 单次处理总字符上限，<=0 默认 10000
	SnapshotTTL string `mapstructure:"snapshot_ttl"` // 已处理快照 TTL，如 "1h"
}

// JobConfig 后台 Job 记录配置
type JobConfig struct {
	TTL string `mapstructure:"ttl"` // Job 记录 TTL，如 "1h"，空则默认 1h
}

// WorkerConfig Worker 池配置
type WorkerConfig struct {
	Concurrency int    `mapstructure:"concurrency"`        // 并发 worker 数，<=0 默认 4
	QueueSize   int    `mapstructure:"queue_size"`         // FIFO 队列长度，<=0 默认 64
	Heartbeat   string `mapstructure:"heartbeat_interval"` // 心跳间隔，如 "5s"
	// StartTimeout Enqueue 确认池健康的等待上限，超时则内联同步执行，如 "2s"
	StartTimeout string `mapstructure:"start_timeout"`
}

// AIConfig 外部 AI 服务默认配置（会话级配置缺失时的 in-process 默认）
type AIConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	// AuthTokenKey 在 secrets store 中解析 auth token 的键；空则不带认证
	AuthTokenKey string  `mapstructure:"auth_token_key"`
	Timeout      string  `mapstructure:"timeout"`     // 单次调用超时，如 "30s"
	RetryCount   int     `mapstructure:"retry_count"` // 传输层重试次数
	QPS          float64 `mapstructure:"qps"`         // 限流 QPS，<=0 不限
	Burst        int     `mapstructure:"burst"`
}

// PlatformConfig 平台通知配置（动作回投）
type PlatformConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	AuthToken string `mapstructure:"auth_token"`
	Timeout   string `mapstructure:"timeout"`
}

// SecretsConfig Secret Store 配置
type SecretsConfig struct {
	Provider string      `mapstructure:"provider"` // env | vault | memory
	Vault    VaultConfig `mapstructure:"vault"`
}

// VaultConfig Vault 后端配置
type VaultConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置（指标经 API /api/system/metrics 暴露）
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	// 替换环境变量
	replaceEnvVars(&config)

	return &config, nil
}

// replaceEnvVars 替换配置中 ${ENV} 形式的凭据字段
func replaceEnvVars(config *Config) {
	config.Cache.Password = expandEnv(config.Cache.Password)
	config.Conversation.DSN = expandEnv(config.Conversation.DSN)
	config.Platform.AuthToken = expandEnv(config.Platform.AuthToken)
	config.Secrets.Vault.Token = expandEnv(config.Secrets.Vault.Token)
}

func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		envVar := strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}")
		if val := os.Getenv(envVar); val != "" {
			return val
		}
	}
	return value
}

// LoadAPIConfig 加载 API 配置（configs/api.yaml）
func LoadAPIConfig() (*Config, error) {
	return LoadConfig("configs/api.yaml")
}
