package configs

import (
	"github.com/spf13/viper"
)

const (
	DefaultRetryBatchSize     = 50            // 单次排空处理的最大条目数
	DefaultRetryMaxAttempts   = 5             // 单条目最大重试次数
	DefaultRetryDrainCron     = "*/5 * * * *" // 排空任务的 cron 表达式
	DefaultRetryStaleCron     = "0 * * * *"   // 滞留条目回收任务的 cron 表达式
	DefaultRetryStaleAfterMin = 30            // 处理中条目超过该分钟数视为滞留
)

// RetryConfig 重试队列配置.
type RetryConfig struct {
	BatchSize     int    `mapstructure:"batch_size"      rule:"min=1,max=1000"`
	MaxAttempts   int    `mapstructure:"max_attempts"    rule:"min=1,max=50"`
	DrainCron     string `mapstructure:"drain_cron"      rule:"required"`
	StaleCron     string `mapstructure:"stale_cron"      rule:"required"`
	StaleAfterMin int    `mapstructure:"stale_after_min" rule:"min=1,max=1440"`
	EnableJobs    bool   `mapstructure:"enable_jobs"`
}

// setDefaults 设置重试队列配置的默认值.
func (c *RetryConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("retry.batch_size", DefaultRetryBatchSize)
	v.SetDefault("retry.max_attempts", DefaultRetryMaxAttempts)
	v.SetDefault("retry.drain_cron", DefaultRetryDrainCron)
	v.SetDefault("retry.stale_cron", DefaultRetryStaleCron)
	v.SetDefault("retry.stale_after_min", DefaultRetryStaleAfterMin)
	v.SetDefault("retry.enable_jobs", true)
}
