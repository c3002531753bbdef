// Copyright 2026 fanjia1024
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
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API          APIConfig          `mapstructure:"api"`
	Telephony    TelephonyConfig    `mapstructure:"telephony"`
	Engine       EngineConfig       `mapstructure:"engine"`
	Routing      RoutingConfig      `mapstructure:"routing"`
	Integrations IntegrationsConfig `mapstructure:"integrations"`
	Outcome      OutcomeConfig      `mapstructure:"outcome"`
	Secrets      SecretsConfig      `mapstructure:"secrets"`
	Log          LogConfig          `mapstructure:"log"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
	RateLimits   RateLimitsConfig   `mapstructure:"rate_limits"`
	Redaction    RedactionConfig    `mapstructure:"redaction"`
	Cache        CacheConfig        `mapstructure:"cache"`
}

// APIConfig HTTP 服务配置（状态回调、健康检查、诊断、metrics）
type APIConfig struct {
	Port    int    `mapstructure:"port"`
	Host    string `mapstructure:"host"`
	Timeout string `mapstructure:"timeout"`
}

// TelephonyConfig 电话会话 websocket 端点配置
type TelephonyConfig struct {
	Port             int    `mapstructure:"port"`
	Path             string `mapstructure:"path"`              // 如 /elevenlabs-s2s
	Subprotocol      string `mapstructure:"subprotocol"`       // 默认 ws.jambonz.org
	MaxMessageBytes  int64  `mapstructure:"max_message_bytes"` // <=0 不限制
	HandshakeTimeout string `mapstructure:"handshake_timeout"`
}

// EngineConfig 语音到语音 AI 引擎（经电话运行时的 llm verb 桥接）
type EngineConfig struct {
	Vendor           string `mapstructure:"vendor"`
	Model            string `mapstructure:"model"`
	APIKeyRef        string `mapstructure:"api_key_ref"` // 通过 secrets 解析的 key 名
	InputSampleRate  int    `mapstructure:"input_sample_rate"`
	OutputSampleRate int    `mapstructure:"output_sample_rate"`
	ActionHook       string `mapstructure:"action_hook"`
	EventHook        string `mapstructure:"event_hook"`
	ToolHook         string `mapstructure:"tool_hook"`
	PauseSeconds     int    `mapstructure:"pause_seconds"`
}

// RoutingConfig 被叫号码 -> agent 映射，启动时加载一次
type RoutingConfig struct {
	CountryCode     string            `mapstructure:"country_code"`
	TrunkPrefix     string            `mapstructure:"trunk_prefix"`
	NationalLength  int               `mapstructure:"national_length"`
	DefaultAgentID  string            `mapstructure:"default_agent_id"`
	FallbackAgentID string            `mapstructure:"fallback_agent_id"`
	Numbers         map[string]string `mapstructure:"numbers"`
	EnvPrefix       string            `mapstructure:"env_prefix"` // 如 PHONE_，空则不扫描环境变量
	EnvSuffix       string            `mapstructure:"env_suffix"` // 如 _AGENT_ID
}

// IntegrationsConfig 外部 HTTP 集成
type IntegrationsConfig struct {
	Timeout string        `mapstructure:"timeout"`
	Weather WeatherConfig `mapstructure:"weather"`
	CRM     CRMConfig     `mapstructure:"crm"`
}

// WeatherConfig 地理编码与天气预报接口
type WeatherConfig struct {
	GeocodingURL string `mapstructure:"geocoding_url"`
	ForecastURL  string `mapstructure:"forecast_url"`
}

// CRMConfig 代表请求登记接口
type CRMConfig struct {
	URL       string `mapstructure:"url"`
	APIKeyRef string `mapstructure:"api_key_ref"`
	APIKey    string `mapstructure:"api_key"` // APIKeyRef 解析失败时的兜底
}

// OutcomeConfig 通话结果持久化
type OutcomeConfig struct {
	PersistTimeout string `mapstructure:"persist_timeout"`
}

// SecretsConfig 凭据来源
type SecretsConfig struct {
	Provider string            `mapstructure:"provider"` // env | memory | vault
	Vault    VaultSecretConfig `mapstructure:"vault"`
	Values   map[string]string `mapstructure:"values"` // provider=memory 时的初始值
}

// VaultSecretConfig Vault 连接配置
type VaultSecretConfig struct {
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

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
	Protocol       string `mapstructure:"protocol"` // grpc（默认，obs-opentelemetry provider）| http
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// RateLimitsConfig 限流配置（Tool + 外部集成）
type RateLimitsConfig struct {
	Tools        map[string]RateLimitConfig `mapstructure:"tools"`
	Integrations map[string]RateLimitConfig `mapstructure:"integrations"` // key: weather | crm
}

// RateLimitConfig 令牌桶参数
type RateLimitConfig struct {
	QPS           float64 `mapstructure:"qps"`
	Burst         int     `mapstructure:"burst"`          // 默认为 QPS
	MaxConcurrent int     `mapstructure:"max_concurrent"` // 仅工具限流使用
}

type CacheConfig struct {
	Type       string      `mapstructure:"type"`        // memory | redis | none
	GeocodeTTL string      `mapstructure:"geocode_ttl"` // 地理编码结果缓存时长
	Redis      RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type RedactionConfig struct {
	Enable bool                  `mapstructure:"enable"`
	Rules  []RedactionRuleConfig `mapstructure:"rules"`
}

type RedactionRuleConfig struct {
	Kind string `mapstructure:"kind"` // dial_status | tool_args；空表示全部
	Path string `mapstructure:"path"` // 如 from、args.telefon
	Mode string `mapstructure:"mode"` // redact | hash | mask | remove
	Salt string `mapstructure:"salt"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("telephony.port", 3000)
	v.SetDefault("telephony.path", "/elevenlabs-s2s")
	v.SetDefault("telephony.subprotocol", "ws.jambonz.org")
	v.SetDefault("telephony.handshake_timeout", "5s")
	v.SetDefault("engine.vendor", "elevenlabs")
	v.SetDefault("engine.model", "eleven_flash_v2_5")
	v.SetDefault("engine.api_key_ref", "ELEVENLABS_API_KEY")
	v.SetDefault("engine.input_sample_rate", 16000)
	v.SetDefault("engine.output_sample_rate", 16000)
	v.SetDefault("engine.action_hook", "/final")
	v.SetDefault("engine.event_hook", "/event")
	v.SetDefault("engine.tool_hook", "/toolCall")
	v.SetDefault("engine.pause_seconds", 1)
	v.SetDefault("routing.country_code", "90")
	v.SetDefault("routing.trunk_prefix", "0")
	v.SetDefault("routing.national_length", 10)
	v.SetDefault("routing.default_agent_id", "${ELEVENLABS_AGENT_ID_DEFAULT}")
	v.SetDefault("routing.fallback_agent_id", "${ELEVENLABS_AGENT_ID}")
	v.SetDefault("routing.env_prefix", "PHONE_")
	v.SetDefault("routing.env_suffix", "_AGENT_ID")
	v.SetDefault("integrations.timeout", "10s")
	v.SetDefault("integrations.weather.geocoding_url", "https://geocoding-api.open-meteo.com/v1/search")
	v.SetDefault("integrations.weather.forecast_url", "https://api.open-meteo.com/v1/forecast")
	v.SetDefault("integrations.crm.url", "https://api.maivo.com.tr/api/temsilci/kayit")
	v.SetDefault("integrations.crm.api_key_ref", "MAIVO_API_KEY")
	v.SetDefault("outcome.persist_timeout", "10s")
	v.SetDefault("secrets.provider", "env")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.tracing.service_name", "voice-platform")
	v.SetDefault("monitoring.tracing.protocol", "grpc")
	v.SetDefault("redaction.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.geocode_ttl", "24h")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.key_prefix", "voice:")
}

// LoadConfig 加载配置文件；configPath 为空时仅使用默认值与环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("无法读取配置文件: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// LoadAPIConfig 加载 API 配置（configs/api.yaml，不存在时使用默认值）
func LoadAPIConfig() (*Config, error) {
	path := "configs/api.yaml"
	if p := os.Getenv("VOICE_CONFIG"); p != "" {
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		return LoadConfig("")
	}
	return LoadConfig(path)
}

// replaceEnvVars 替换配置中 ${VAR} 形式的值
func replaceEnvVars(config *Config) {
	config.Routing.DefaultAgentID = expandEnv(config.Routing.DefaultAgentID)
	config.Routing.FallbackAgentID = expandEnv(config.Routing.FallbackAgentID)
	for number, agentID := range config.Routing.Numbers {
		config.Routing.Numbers[number] = expandEnv(agentID)
	}
	config.Integrations.CRM.APIKey = expandEnv(config.Integrations.CRM.APIKey)
	config.Integrations.CRM.URL = expandEnv(config.Integrations.CRM.URL)
	config.Secrets.Vault.Token = expandEnv(config.Secrets.Vault.Token)
	config.Cache.Redis.Password = expandEnv(config.Cache.Redis.Password)
	for k, val := range config.Secrets.Values {
		config.Secrets.Values[k] = expandEnv(val)
	}
}

// expandEnv 仅处理整串为 ${VAR} 或 $VAR 的值；变量未设置时返回空串
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "$") {
		return s
	}
	name := strings.TrimPrefix(strings.TrimSuffix(s, "}"), "${")
	name = strings.TrimPrefix(name, "$")
	return os.Getenv(name)
}

// ParseDuration 解析如 "10s" 的时长配置，空或非法时返回 def
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
