package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultLMSBaseURL       = "http://localhost:8100" // 默认远端平台地址
	DefaultLMSTimeout       = 30                      // 默认请求超时（秒）
	DefaultLMSService       = "exam_submission"       // 默认 Web Service 名称
	DefaultLMSForceFinalize = false                   // 默认尊重远端 can_finalize 标志

	// 熔断器配置常量.

	DefaultBreakerMaxRequests = 3  // 半开状态下允许的最大请求数
	DefaultBreakerInterval    = 60 // 熔断器统计周期（秒）
	DefaultBreakerTimeout     = 30 // 熔断器打开后恢复等待（秒）
	DefaultBreakerFailures    = 5  // 触发熔断的连续失败次数
)

// LMSConfig 远端学习平台对接配置.
type LMSConfig struct {
	BaseURL       string           `mapstructure:"base_url"       rule:"required,url"`
	Timeout       int              `mapstructure:"timeout"        rule:"min=1,max=300"`
	Service       string           `mapstructure:"service"`
	AdminToken    string           `mapstructure:"admin_token"`
	ForceFinalize bool             `mapstructure:"force_finalize"`
	Breaker       LMSBreakerConfig `mapstructure:"breaker"`
}

// LMSBreakerConfig 远端调用的熔断器配置.
type LMSBreakerConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MaxRequests int  `mapstructure:"max_requests" rule:"min=1,max=100"`
	Interval    int  `mapstructure:"interval"     rule:"min=1,max=3600"`
	Timeout     int  `mapstructure:"timeout"      rule:"min=1,max=3600"`
	MaxFailures int  `mapstructure:"max_failures" rule:"min=1,max=100"`
}

// GetTimeoutDuration 返回请求超时作为 time.Duration.
func (c *LMSConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// setDefaults 设置 LMS 配置的默认值.
func (c *LMSConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("lms.base_url", DefaultLMSBaseURL)
	v.SetDefault("lms.timeout", DefaultLMSTimeout)
	v.SetDefault("lms.service", DefaultLMSService)
	v.SetDefault("lms.admin_token", "")
	v.SetDefault("lms.force_finalize", DefaultLMSForceFinalize)

	v.SetDefault("lms.breaker.enabled", true)
	v.SetDefault("lms.breaker.max_requests", DefaultBreakerMaxRequests)
	v.SetDefault("lms.breaker.interval", DefaultBreakerInterval)
	v.SetDefault("lms.breaker.timeout", DefaultBreakerTimeout)
	v.SetDefault("lms.breaker.max_failures", DefaultBreakerFailures)
}
