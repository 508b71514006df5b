// Package configs 管理应用程序配置，包括数据库、对象存储、消息队列与 LMS 对接的配置信息.
// configs 包支持多种配置格式（YAML、JSON、TOML、dotenv）并启用热重载.
//
// Example:
//
//	import "github.com/yeisme/exambridge/pkg/configs"
//
//	err := configs.InitConfig("./")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	config := configs.GetConfig()
//	fmt.Println(config.Server.Port)
//	fmt.Println(config.LMS.BaseURL)
package configs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AppVersion 应用版本号，构建时可通过 ldflags 覆盖.
var AppVersion = "dev"

type (
	// AppConfig 全局应用程序配置.
	AppConfig struct {
		DB      DBConfig      `mapstructure:"db"`      // DBConfig 数据库配置
		S3      S3Config      `mapstructure:"s3"`      // S3Config 扫描件对象存储配置
		MQ      MQConfig      `mapstructure:"mq"`      // MQConfig 生命周期事件队列配置
		KV      KVConfig      `mapstructure:"kv"`      // KVConfig 映射缓存后端配置
		LMS     LMSConfig     `mapstructure:"lms"`     // LMSConfig 远端学习平台对接配置
		Retry   RetryConfig   `mapstructure:"retry"`   // RetryConfig 重试队列配置
		Server  ServerConfig  `mapstructure:"server"`  // ServerConfig 服务器端口、超时等
		Auth    AuthConfig    `mapstructure:"auth"`    // AuthConfig 管理端令牌校验

		RateLimit RateLimitConfig `mapstructure:"rate_limit"` // RateLimitConfig 速率限制
		Log     LogConfig     `mapstructure:"log"`     // LogConfig 日志相关配置
		Metrics MetricsConfig `mapstructure:"metrics"` // MetricsConfig 监控指标配置
		Tracing TracingConfig `mapstructure:"tracing"` // TracingConfig 分布式追踪配置
	}
)

var (
	// globalConfig 全局配置实例.
	globalConfig AppConfig
	// appViper 全局 Viper 实例.
	appViper *viper.Viper
)

// InitConfig 加载应用程序配置，支持多种格式(yaml、json、toml、dotenv)并启用热重载.
func InitConfig(path string) error {
	appViper = viper.New()
	// 设置默认值
	setAllDefaults(appViper)

	// path 为文件时直接使用，否则按目录探测 config.* 文件
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		appViper.SetConfigFile(path)
	} else {
		appViper.SetConfigName("config")
		appViper.AddConfigPath(path)
		appViper.AddConfigPath(path + "/configs")

		exts := []string{"yaml", "yml", "json", "toml", "env", "dotenv"}

		for _, ext := range exts {
			cfg := filepath.Join(path, "config."+ext)
			if _, err := os.Stat(cfg); err == nil {
				appViper.SetConfigFile(cfg)

				break
			}
		}
	}

	appViper.AutomaticEnv()
	appViper.SetEnvPrefix("EXAMBRIDGE")

	// 读取配置；找不到配置文件时退回默认值 + 环境变量
	if err := appViper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	// 解析到全局配置
	if err := appViper.Unmarshal(&globalConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	reloadConfigs(appViper, globalConfig.Server.ReloadConfig)

	return nil
}

// setAllDefaults 设置所有配置的默认值.
func setAllDefaults(v *viper.Viper) {
	var cfg AppConfig

	cfg.Server.setDefaults(v)
	cfg.DB.setDefaults(v)
	cfg.S3.setDefaults(v)
	cfg.MQ.setDefaults(v)
	cfg.KV.setDefaults(v)
	cfg.LMS.setDefaults(v)
	cfg.Retry.setDefaults(v)
	cfg.Auth.setDefaults(v)
	cfg.RateLimit.setDefaults(v)
	cfg.Log.setDefaults(v)
	cfg.Metrics.setDefaults(v)
	cfg.Tracing.setDefaults(v)
}

func reloadConfigs(v *viper.Viper, isHotReload bool) {
	if !isHotReload {
		return
	}
	// 启用配置热重载
	v.OnConfigChange(func(e fsnotify.Event) {
		fmt.Println("Config file changed:", e.Name)
		fmt.Println("Reloading configuration...")

		if err := v.Unmarshal(&globalConfig); err != nil {
			fmt.Printf("Error reloading config: %v\n", err)
		}
	})
	v.WatchConfig()
}

// GetConfig 返回全局配置实例.
func GetConfig() *AppConfig {
	return &globalConfig
}

// GetViper 返回全局 Viper 实例.
func GetViper() *viper.Viper {
	return appViper
}
